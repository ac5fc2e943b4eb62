package production

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chroma-erp/chroma-erp/internal/platform/db"
)

// Repository persists batches and their lines.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const batchColumns = `b.id, b.material_id, m.name, b.planned_qty, b.density, b.scheduled_for, b.supervisor_id, b.status,
	b.actual_qty, b.actual_density, b.actual_weight_kg, b.actual_minutes, b.created_at, b.updated_at, b.completed_at`

func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	query := `SELECT ` + batchColumns + `
	          FROM production_batches b JOIN master_materials m ON m.id = b.material_id
	          WHERE b.id = $1`
	var b Batch
	err := r.db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.MaterialID, &b.MaterialName, &b.PlannedQty, &b.Density, &b.ScheduledFor, &b.SupervisorID, &b.Status,
		&b.ActualQty, &b.ActualDensity, &b.ActualWeightKg, &b.ActualMinutes, &b.CreatedAt, &b.UpdatedAt, &b.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return b, err
}

func (r *Repository) ListBatches(ctx context.Context, status BatchStatus, limit int) ([]Batch, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + batchColumns + `
	          FROM production_batches b JOIN master_materials m ON m.id = b.material_id`
	args := []any{}
	if status != "" {
		query += ` WHERE b.status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY b.scheduled_for DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(
			&b.ID, &b.MaterialID, &b.MaterialName, &b.PlannedQty, &b.Density, &b.ScheduledFor, &b.SupervisorID, &b.Status,
			&b.ActualQty, &b.ActualDensity, &b.ActualWeightKg, &b.ActualMinutes, &b.CreatedAt, &b.UpdatedAt, &b.CompletedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// CreateBatch inserts the batch with its material and product lines in one
// transaction.
func (r *Repository) CreateBatch(ctx context.Context, batch Batch, materials []BatchMaterial, products []BatchProduct) (int64, error) {
	now := time.Now()
	var batchID int64
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO production_batches (material_id, planned_qty, density, scheduled_for, supervisor_id, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
			batch.MaterialID, batch.PlannedQty, batch.Density, batch.ScheduledFor, batch.SupervisorID, StatusScheduled, now).Scan(&batchID)
		if err != nil {
			return err
		}
		for _, line := range materials {
			_, err = tx.Exec(ctx,
				`INSERT INTO batch_materials (batch_id, material_id, sku_id, required_qty) VALUES ($1, $2, NULLIF($3, 0), $4)`,
				batchID, line.MaterialID, line.SKUID, line.RequiredQty)
			if err != nil {
				return err
			}
		}
		for _, line := range products {
			_, err = tx.Exec(ctx,
				`INSERT INTO batch_products (batch_id, sku_id, order_id, planned_units, fulfilled) VALUES ($1, $2, NULLIF($3, 0), $4, FALSE)`,
				batchID, line.SKUID, line.OrderID, line.PlannedUnits)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return batchID, nil
}

func (r *Repository) ListMaterials(ctx context.Context, batchID int64) ([]BatchMaterial, error) {
	query := `SELECT bm.id, bm.batch_id, bm.material_id, m.material_type, m.name, COALESCE(bm.sku_id, 0), m.unit, bm.required_qty,
	                 COALESCE(bm.actual_qty, 0), COALESCE(bm.variance, 0)
	          FROM batch_materials bm JOIN master_materials m ON m.id = bm.material_id
	          WHERE bm.batch_id = $1 ORDER BY bm.id`
	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []BatchMaterial
	for rows.Next() {
		var l BatchMaterial
		if err := rows.Scan(&l.ID, &l.BatchID, &l.MaterialID, &l.MaterialType, &l.MaterialName, &l.SKUID, &l.Unit, &l.RequiredQty, &l.ActualQty, &l.Variance); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Repository) ListProducts(ctx context.Context, batchID int64) ([]BatchProduct, error) {
	query := `SELECT id, batch_id, sku_id, COALESCE(order_id, 0), planned_units,
	                 COALESCE(produced_units, 0), COALESCE(produced_weight_kg, 0), fulfilled
	          FROM batch_products WHERE batch_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []BatchProduct
	for rows.Next() {
		var l BatchProduct
		if err := rows.Scan(&l.ID, &l.BatchID, &l.SKUID, &l.OrderID, &l.PlannedUnits, &l.ProducedUnits, &l.ProducedWeightKg, &l.Fulfilled); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// TransitionStatus flips the batch state, guarded by the expected current
// status so concurrent transitions cannot race past each other.
func (r *Repository) TransitionStatus(ctx context.Context, batchID int64, from, to BatchStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE production_batches SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, time.Now(), batchID, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SaveCompletion persists the batch actuals and flips it to Completed.
func (r *Repository) SaveCompletion(ctx context.Context, batch Batch) error {
	now := time.Now()
	tag, err := r.db.Exec(ctx,
		`UPDATE production_batches
		 SET status = $1, actual_qty = $2, actual_density = $3, actual_weight_kg = $4, actual_minutes = $5,
		     completed_at = $6, updated_at = $6
		 WHERE id = $7 AND status = $8`,
		StatusCompleted, batch.ActualQty, batch.ActualDensity, batch.ActualWeightKg, batch.ActualMinutes, now, batch.ID, StatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SaveMaterialActuals records what a consumption line actually used.
func (r *Repository) SaveMaterialActuals(ctx context.Context, lineID int64, actualQty, variance float64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE batch_materials SET actual_qty = $1, variance = $2 WHERE id = $3`,
		actualQty, variance, lineID)
	return err
}

// SaveProductOutput records the distributed output of one product line.
func (r *Repository) SaveProductOutput(ctx context.Context, lineID int64, producedUnits, producedWeightKg float64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE batch_products SET produced_units = $1, produced_weight_kg = $2, fulfilled = TRUE WHERE id = $3`,
		producedUnits, producedWeightKg, lineID)
	return err
}

// MarkOrdersReadyForDispatch transitions every order an output line was made
// for. Orders live outside this module; only the status field moves.
func (r *Repository) MarkOrdersReadyForDispatch(ctx context.Context, orderIDs []int64) error {
	if len(orderIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE orders SET status = 'READY_FOR_DISPATCH', updated_at = $1 WHERE id = ANY($2)`,
		time.Now(), orderIDs)
	return err
}
