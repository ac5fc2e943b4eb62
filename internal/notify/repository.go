package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists notifications.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert inserts an alert or refreshes the open one for the same SKU and
// kind. Relies on the partial unique index over (sku_id, kind) where not
// resolved.
func (r *Repository) Upsert(ctx context.Context, n Notification) (Notification, error) {
	query := `INSERT INTO notifications (sku_id, material_id, kind, message, resolved, created_at)
	          VALUES ($1, $2, $3, $4, FALSE, $5)
	          ON CONFLICT (sku_id, kind) WHERE NOT resolved
	          DO UPDATE SET message = EXCLUDED.message, created_at = EXCLUDED.created_at
	          RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, n.SKUID, n.MaterialID, n.Kind, n.Message, now).Scan(&n.ID)
	if err != nil {
		return Notification{}, err
	}
	n.CreatedAt = now
	return n, nil
}

// ResolveForSKU marks every open alert of the SKU resolved and reports how
// many rows changed.
func (r *Repository) ResolveForSKU(ctx context.Context, skuID int64) (int64, error) {
	query := `UPDATE notifications SET resolved = TRUE, resolved_at = $1 WHERE sku_id = $2 AND NOT resolved`
	tag, err := r.db.Exec(ctx, query, time.Now(), skuID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Resolve marks one alert resolved.
func (r *Repository) Resolve(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET resolved = TRUE, resolved_at = $1 WHERE id = $2 AND NOT resolved`, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// List returns notifications newest first, optionally only open ones.
func (r *Repository) List(ctx context.Context, openOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, sku_id, COALESCE(material_id, 0), kind, message, resolved, created_at, resolved_at FROM notifications`
	if openOnly {
		query += ` WHERE NOT resolved`
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.SKUID, &n.MaterialID, &n.Kind, &n.Message, &n.Resolved, &n.CreatedAt, &n.ResolvedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
