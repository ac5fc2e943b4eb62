package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists stock records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service. Every
// read that precedes a write locks the row with FOR UPDATE.
type TxRepository interface {
	GetSKUForUpdate(ctx context.Context, skuID int64) (SKU, error)
	UpdateSKUBalances(ctx context.Context, skuID int64, units, weight Balance) error
	GetMaterialForUpdate(ctx context.Context, materialID int64) (MasterMaterial, error)
	ApplyMaterialDelta(ctx context.Context, materialID int64, deltaQty float64) (float64, error)
	AnchorSKU(ctx context.Context, materialID int64) (SKU, error)
}

type txRepository struct {
	tx pgx.Tx
}

const skuColumns = `id, master_material_id, name, package_capacity_kg, available_qty, reserved_qty, available_weight_kg, reserved_weight_kg, min_stock_level, active, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetSKU loads one SKU by id.
func (r *Repository) GetSKU(ctx context.Context, skuID int64) (SKU, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+skuColumns+` FROM skus WHERE id=$1`, skuID)
	return scanSKU(row)
}

// ListSiblings returns all active SKUs of one master material.
func (r *Repository) ListSiblings(ctx context.Context, materialID int64) ([]SKU, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+skuColumns+` FROM skus WHERE master_material_id=$1 AND active ORDER BY package_capacity_kg`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var skus []SKU
	for rows.Next() {
		sku, err := scanSKU(rows)
		if err != nil {
			return nil, err
		}
		skus = append(skus, sku)
	}
	return skus, rows.Err()
}

// GetMaterial loads one master material by id.
func (r *Repository) GetMaterial(ctx context.Context, materialID int64) (MasterMaterial, error) {
	var m MasterMaterial
	err := r.pool.QueryRow(ctx, `SELECT id, name, material_type, unit, available_qty, min_stock_level FROM master_materials WHERE id=$1`, materialID).
		Scan(&m.ID, &m.Name, &m.Type, &m.Unit, &m.AvailableQty, &m.MinStockLevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MasterMaterial{}, ErrMaterialNotFound
		}
		return MasterMaterial{}, err
	}
	return m, nil
}

// InsertLedgerEntry appends one movement to the inventory ledger. Called
// after the stock transaction commits; the ledger is best-effort audit and
// never blocks the stock update.
func (r *Repository) InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO inventory_ledger (sku_id, tx_type, delta_qty, delta_weight_kg, density, balance_before, balance_after, ref_type, ref_id, actor_id, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())`,
		entry.SKUID, string(entry.Type), entry.DeltaQty, entry.DeltaWeightKg, entry.Density,
		entry.BalanceBefore, entry.BalanceAfter, entry.RefType, entry.RefID, entry.ActorID, entry.Notes)
	return err
}

// ListLedger returns the most recent ledger entries for one SKU.
func (r *Repository) ListLedger(ctx context.Context, skuID int64, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sku_id, tx_type, delta_qty, delta_weight_kg, density, balance_before, balance_after, ref_type, ref_id, actor_id, notes, created_at
FROM inventory_ledger WHERE sku_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, skuID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.SKUID, &e.Type, &e.DeltaQty, &e.DeltaWeightKg, &e.Density, &e.BalanceBefore, &e.BalanceAfter, &e.RefType, &e.RefID, &e.ActorID, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) GetSKUForUpdate(ctx context.Context, skuID int64) (SKU, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+skuColumns+` FROM skus WHERE id=$1 FOR UPDATE`, skuID)
	return scanSKU(row)
}

func (r *txRepository) UpdateSKUBalances(ctx context.Context, skuID int64, units, weight Balance) error {
	tag, err := r.tx.Exec(ctx, `UPDATE skus SET available_qty=$2, reserved_qty=$3, available_weight_kg=$4, reserved_weight_kg=$5, updated_at=NOW() WHERE id=$1`,
		skuID, units.Available, units.Reserved, weight.Available, weight.Reserved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSKUNotFound
	}
	return nil
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, materialID int64) (MasterMaterial, error) {
	var m MasterMaterial
	err := r.tx.QueryRow(ctx, `SELECT id, name, material_type, unit, available_qty, min_stock_level FROM master_materials WHERE id=$1 FOR UPDATE`, materialID).
		Scan(&m.ID, &m.Name, &m.Type, &m.Unit, &m.AvailableQty, &m.MinStockLevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MasterMaterial{}, ErrMaterialNotFound
		}
		return MasterMaterial{}, err
	}
	return m, nil
}

func (r *txRepository) ApplyMaterialDelta(ctx context.Context, materialID int64, deltaQty float64) (float64, error) {
	var newQty float64
	err := r.tx.QueryRow(ctx, `UPDATE master_materials SET available_qty = available_qty + $2 WHERE id=$1 RETURNING available_qty`, materialID, deltaQty).Scan(&newQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrMaterialNotFound
		}
		return 0, err
	}
	return newQty, nil
}

// AnchorSKU returns the ledger-anchor SKU of a material, creating it when the
// material was provisioned before anchors existed. Anchors carry zero package
// capacity and are created once per material.
func (r *txRepository) AnchorSKU(ctx context.Context, materialID int64) (SKU, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+skuColumns+` FROM skus WHERE master_material_id=$1 ORDER BY id LIMIT 1 FOR UPDATE`, materialID)
	sku, err := scanSKU(row)
	if err == nil {
		return sku, nil
	}
	if !errors.Is(err, ErrSKUNotFound) {
		return SKU{}, err
	}
	row = r.tx.QueryRow(ctx, `INSERT INTO skus (master_material_id, name, package_capacity_kg, available_qty, reserved_qty, available_weight_kg, reserved_weight_kg, min_stock_level, active, updated_at)
SELECT id, name || ' (stock)', 0, 0, 0, 0, 0, 0, TRUE, NOW() FROM master_materials WHERE id=$1
RETURNING `+skuColumns, materialID)
	sku, err = scanSKU(row)
	if errors.Is(err, ErrSKUNotFound) {
		return SKU{}, ErrMaterialNotFound
	}
	return sku, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSKU(row rowScanner) (SKU, error) {
	var sku SKU
	err := row.Scan(&sku.ID, &sku.MasterMaterialID, &sku.Name, &sku.PackageCapacity,
		&sku.Units.Available, &sku.Units.Reserved, &sku.Weight.Available, &sku.Weight.Reserved,
		&sku.MinStockLevel, &sku.Active, &sku.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SKU{}, ErrSKUNotFound
		}
		return SKU{}, fmt.Errorf("stock: scan sku: %w", err)
	}
	return sku, nil
}
