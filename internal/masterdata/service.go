package masterdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RepositoryPort abstracts catalog persistence for the service.
type RepositoryPort interface {
	ListMaterials(ctx context.Context, materialType string) ([]Material, error)
	GetMaterial(ctx context.Context, id int64) (Material, error)
	CreateMaterial(ctx context.Context, material Material) (Material, error)
	UpdateMaterial(ctx context.Context, id int64, material Material) error
	ListSKUs(ctx context.Context, materialID int64) ([]SKUDefinition, error)
	GetSKU(ctx context.Context, id int64) (SKUDefinition, error)
	CreateSKU(ctx context.Context, sku SKUDefinition) (SKUDefinition, error)
	UpdateSKU(ctx context.Context, id int64, sku SKUDefinition) error
	DeactivateSKU(ctx context.Context, id int64) error
}

// AnchorProvisioner creates the zero-capacity stock anchor for a raw or
// packaging material. Implemented by the stock service.
type AnchorProvisioner interface {
	EnsureAnchorSKU(ctx context.Context, materialID int64) (anchorID int64, err error)
}

// Service implements catalog management.
type Service struct {
	repo    RepositoryPort
	anchors AnchorProvisioner
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, anchors AnchorProvisioner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, anchors: anchors, logger: logger}
}

func (s *Service) ListMaterials(ctx context.Context, materialType string) ([]Material, error) {
	if materialType != "" && !validType(materialType) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMaterial, materialType)
	}
	return s.repo.ListMaterials(ctx, materialType)
}

func (s *Service) GetMaterial(ctx context.Context, id int64) (Material, error) {
	if id <= 0 {
		return Material{}, ErrMaterialNotFound
	}
	return s.repo.GetMaterial(ctx, id)
}

// CreateMaterial registers a catalog row. Raw and packaging materials get an
// anchor SKU immediately so their first stock movement has a ledger anchor;
// the adjustment path still self-heals if provisioning fails here.
func (s *Service) CreateMaterial(ctx context.Context, material Material) (Material, error) {
	if err := validateMaterial(material); err != nil {
		return Material{}, err
	}
	created, err := s.repo.CreateMaterial(ctx, material)
	if err != nil {
		return Material{}, err
	}
	if created.Type != TypeFinished && s.anchors != nil {
		if _, err := s.anchors.EnsureAnchorSKU(ctx, created.ID); err != nil {
			s.logger.Warn("anchor sku provisioning failed",
				slog.Int64("material_id", created.ID),
				slog.Any("error", err))
		}
	}
	return created, nil
}

func (s *Service) UpdateMaterial(ctx context.Context, id int64, material Material) error {
	if id <= 0 {
		return ErrMaterialNotFound
	}
	if err := validateMaterial(material); err != nil {
		return err
	}
	return s.repo.UpdateMaterial(ctx, id, material)
}

func (s *Service) ListSKUs(ctx context.Context, materialID int64) ([]SKUDefinition, error) {
	if materialID <= 0 {
		return nil, ErrMaterialNotFound
	}
	return s.repo.ListSKUs(ctx, materialID)
}

func (s *Service) GetSKU(ctx context.Context, id int64) (SKUDefinition, error) {
	if id <= 0 {
		return SKUDefinition{}, ErrSKUNotFound
	}
	return s.repo.GetSKU(ctx, id)
}

// CreateSKU registers a package size under a finished good. Anchor SKUs for
// raw and packaging materials are owned by the stock engine, not created
// through here.
func (s *Service) CreateSKU(ctx context.Context, sku SKUDefinition) (SKUDefinition, error) {
	if err := validateSKU(sku); err != nil {
		return SKUDefinition{}, err
	}
	material, err := s.repo.GetMaterial(ctx, sku.MaterialID)
	if err != nil {
		return SKUDefinition{}, err
	}
	if material.Type != TypeFinished {
		return SKUDefinition{}, fmt.Errorf("%w: material %q is %s, package sizes belong to finished goods", ErrInvalidSKU, material.Name, material.Type)
	}
	sku.Active = true
	return s.repo.CreateSKU(ctx, sku)
}

func (s *Service) UpdateSKU(ctx context.Context, id int64, sku SKUDefinition) error {
	if id <= 0 {
		return ErrSKUNotFound
	}
	if err := validateSKU(sku); err != nil {
		return err
	}
	return s.repo.UpdateSKU(ctx, id, sku)
}

func (s *Service) DeactivateSKU(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrSKUNotFound
	}
	return s.repo.DeactivateSKU(ctx, id)
}

func validateMaterial(material Material) error {
	if strings.TrimSpace(material.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidMaterial)
	}
	if strings.TrimSpace(material.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMaterial)
	}
	if !validType(material.Type) {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMaterial, material.Type)
	}
	if strings.TrimSpace(material.Unit) == "" {
		return fmt.Errorf("%w: unit is required", ErrInvalidMaterial)
	}
	if material.Density < 0 || material.MinStockLevel < 0 {
		return fmt.Errorf("%w: density and min stock level cannot be negative", ErrInvalidMaterial)
	}
	return nil
}

func validateSKU(sku SKUDefinition) error {
	if sku.MaterialID <= 0 {
		return fmt.Errorf("%w: material ID is required", ErrInvalidSKU)
	}
	if strings.TrimSpace(sku.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidSKU)
	}
	if strings.TrimSpace(sku.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSKU)
	}
	if sku.PackageCapacityKg <= 0 {
		return fmt.Errorf("%w: package capacity must be positive", ErrInvalidSKU)
	}
	if sku.MinStockLevel < 0 {
		return fmt.Errorf("%w: min stock level cannot be negative", ErrInvalidSKU)
	}
	return nil
}
