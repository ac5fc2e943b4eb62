package masterdata

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the material and SKU catalog.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const materialColumns = `id, code, name, material_type, unit, density, min_stock_level, available_qty, created_at, updated_at`

func (r *Repository) ListMaterials(ctx context.Context, materialType string) ([]Material, error) {
	query := `SELECT ` + materialColumns + ` FROM master_materials`
	args := []any{}
	if materialType != "" {
		query += ` WHERE material_type = $1`
		args = append(args, materialType)
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var materials []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.Code, &m.Name, &m.Type, &m.Unit, &m.Density, &m.MinStockLevel, &m.AvailableQty, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

func (r *Repository) GetMaterial(ctx context.Context, id int64) (Material, error) {
	query := `SELECT ` + materialColumns + ` FROM master_materials WHERE id = $1`
	var m Material
	err := r.db.QueryRow(ctx, query, id).Scan(&m.ID, &m.Code, &m.Name, &m.Type, &m.Unit, &m.Density, &m.MinStockLevel, &m.AvailableQty, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, ErrMaterialNotFound
	}
	return m, err
}

func (r *Repository) CreateMaterial(ctx context.Context, material Material) (Material, error) {
	query := `INSERT INTO master_materials (code, name, material_type, unit, density, min_stock_level, available_qty, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, material.Code, material.Name, material.Type, material.Unit, material.Density, material.MinStockLevel, now).Scan(&material.ID)
	if err != nil {
		return Material{}, translateDuplicate(err)
	}
	material.CreatedAt = now
	material.UpdatedAt = now
	return material, nil
}

func (r *Repository) UpdateMaterial(ctx context.Context, id int64, material Material) error {
	query := `UPDATE master_materials SET code = $1, name = $2, unit = $3, density = $4, min_stock_level = $5, updated_at = $6 WHERE id = $7`
	tag, err := r.db.Exec(ctx, query, material.Code, material.Name, material.Unit, material.Density, material.MinStockLevel, time.Now(), id)
	if err != nil {
		return translateDuplicate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMaterialNotFound
	}
	return nil
}

const skuDefColumns = `id, master_material_id, code, name, package_capacity_kg, min_stock_level, active, created_at, updated_at`

func (r *Repository) ListSKUs(ctx context.Context, materialID int64) ([]SKUDefinition, error) {
	query := `SELECT ` + skuDefColumns + ` FROM skus WHERE master_material_id = $1 ORDER BY package_capacity_kg`
	rows, err := r.db.Query(ctx, query, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var skus []SKUDefinition
	for rows.Next() {
		var s SKUDefinition
		if err := rows.Scan(&s.ID, &s.MaterialID, &s.Code, &s.Name, &s.PackageCapacityKg, &s.MinStockLevel, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		skus = append(skus, s)
	}
	return skus, rows.Err()
}

func (r *Repository) GetSKU(ctx context.Context, id int64) (SKUDefinition, error) {
	query := `SELECT ` + skuDefColumns + ` FROM skus WHERE id = $1`
	var s SKUDefinition
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.MaterialID, &s.Code, &s.Name, &s.PackageCapacityKg, &s.MinStockLevel, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SKUDefinition{}, ErrSKUNotFound
	}
	return s, err
}

func (r *Repository) CreateSKU(ctx context.Context, sku SKUDefinition) (SKUDefinition, error) {
	query := `INSERT INTO skus (master_material_id, code, name, package_capacity_kg, min_stock_level, active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, sku.MaterialID, sku.Code, sku.Name, sku.PackageCapacityKg, sku.MinStockLevel, sku.Active, now).Scan(&sku.ID)
	if err != nil {
		return SKUDefinition{}, translateDuplicate(err)
	}
	sku.CreatedAt = now
	sku.UpdatedAt = now
	return sku, nil
}

func (r *Repository) UpdateSKU(ctx context.Context, id int64, sku SKUDefinition) error {
	query := `UPDATE skus SET code = $1, name = $2, package_capacity_kg = $3, min_stock_level = $4, active = $5, updated_at = $6 WHERE id = $7`
	tag, err := r.db.Exec(ctx, query, sku.Code, sku.Name, sku.PackageCapacityKg, sku.MinStockLevel, sku.Active, time.Now(), id)
	if err != nil {
		return translateDuplicate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSKUNotFound
	}
	return nil
}

// DeactivateSKU retires a package size without touching its stock history.
func (r *Repository) DeactivateSKU(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE skus SET active = FALSE, updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSKUNotFound
	}
	return nil
}

func translateDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCode
	}
	return err
}
