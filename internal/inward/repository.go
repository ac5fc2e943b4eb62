package inward

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chroma-erp/chroma-erp/internal/platform/db"
)

// Repository persists inward entries and performs the transactional
// stock-reversing deletion.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const entryColumns = `i.id, i.material_id, m.name, m.material_type, COALESCE(i.sku_id, 0), COALESCE(s.name, ''),
	i.supplier_id, COALESCE(sup.name, ''), i.bill_no, i.bill_date, i.qty, i.unit_price, i.total_cost,
	i.created_at, i.updated_at`

const entryJoins = `FROM inward_entries i
	JOIN master_materials m ON m.id = i.material_id
	LEFT JOIN skus s ON s.id = i.sku_id
	LEFT JOIN suppliers sup ON sup.id = i.supplier_id`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.MaterialID, &e.MaterialName, &e.MaterialType, &e.SKUID, &e.SKUName,
		&e.SupplierID, &e.SupplierName, &e.BillNo, &e.Date, &e.Qty, &e.UnitPrice, &e.TotalCost,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrInwardNotFound
	}
	return e, err
}

func (r *Repository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	return scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` `+entryJoins+` WHERE i.id = $1`, id))
}

func (r *Repository) ListByBill(ctx context.Context, key BillKey) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` ` + entryJoins + `
	          WHERE i.bill_no = $1 AND i.supplier_id = $2 AND i.bill_date = $3 ORDER BY i.id`
	rows, err := r.db.Query(ctx, query, key.BillNo, key.SupplierID, key.Date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *Repository) List(ctx context.Context, materialID int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + entryColumns + ` ` + entryJoins
	args := []any{}
	if materialID > 0 {
		query += ` WHERE i.material_id = $1`
		args = append(args, materialID)
	}
	query += ` ORDER BY i.bill_date DESC, i.id DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// InsertEntries writes all bill lines in one transaction and re-fetches them
// with joined display fields.
func (r *Repository) InsertEntries(ctx context.Context, entries []Entry) ([]Entry, error) {
	now := time.Now()
	ids := make([]int64, 0, len(entries))
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, e := range entries {
			var id int64
			err := tx.QueryRow(ctx,
				`INSERT INTO inward_entries (material_id, sku_id, supplier_id, bill_no, bill_date, qty, unit_price, total_cost, created_at, updated_at)
				 VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
				e.MaterialID, e.SKUID, e.SupplierID, e.BillNo, e.Date, e.Qty, e.UnitPrice, e.Qty*e.UnitPrice, now).Scan(&id)
			if err != nil {
				return translateDuplicate(err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.FetchByIDs(ctx, ids)
}

func (r *Repository) FetchByIDs(ctx context.Context, ids []int64) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` `+entryJoins+` WHERE i.id = ANY($1) ORDER BY i.id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// UpdateRow rewrites the persisted fields of one entry. Stock adjustments are
// the caller's responsibility.
func (r *Repository) UpdateRow(ctx context.Context, id int64, e Entry) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE inward_entries
		 SET material_id = $1, sku_id = NULLIF($2, 0), qty = $3, unit_price = $4, total_cost = $5, updated_at = $6
		 WHERE id = $7`,
		e.MaterialID, e.SKUID, e.Qty, e.UnitPrice, e.Qty*e.UnitPrice, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInwardNotFound
	}
	return nil
}

// DeleteRows removes entries without touching stock. Used to clean up a
// partially failed bill insert.
func (r *Repository) DeleteRows(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `DELETE FROM inward_entries WHERE id = ANY($1)`, ids)
	return err
}

// ReverseAndDelete validates that reversing every line leaves no stock record
// negative, then applies all decrements and deletes the lines, as one
// transaction. Validation uses cumulative per-target totals under row locks.
func (r *Repository) ReverseAndDelete(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		plan := reversalPlan(entries)
		for target, qty := range plan {
			if target.SKUID != 0 {
				var name string
				var available, weight, capacity float64
				err := tx.QueryRow(ctx,
					`SELECT name, available_qty, available_weight_kg, package_capacity_kg FROM skus WHERE id = $1 FOR UPDATE`,
					target.SKUID).Scan(&name, &available, &weight, &capacity)
				if err != nil {
					return err
				}
				if available < qty {
					return reversalError(name, qty, available)
				}
				_, err = tx.Exec(ctx,
					`UPDATE skus SET available_qty = available_qty - $1, available_weight_kg = available_weight_kg - $2, updated_at = $3 WHERE id = $4`,
					qty, weightReversal(qty, capacity, weight), time.Now(), target.SKUID)
				if err != nil {
					return err
				}
				continue
			}
			var name string
			var available float64
			err := tx.QueryRow(ctx,
				`SELECT name, available_qty FROM master_materials WHERE id = $1 FOR UPDATE`,
				target.MaterialID).Scan(&name, &available)
			if err != nil {
				return err
			}
			if available < qty {
				return reversalError(name, qty, available)
			}
			_, err = tx.Exec(ctx,
				`UPDATE master_materials SET available_qty = available_qty - $1, updated_at = $2 WHERE id = $3`,
				qty, time.Now(), target.MaterialID)
			if err != nil {
				return err
			}
		}

		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		_, err := tx.Exec(ctx, `DELETE FROM inward_entries WHERE id = ANY($1)`, ids)
		return err
	})
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func translateDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateReference
	}
	return err
}
