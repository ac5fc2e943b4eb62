package masterdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	materials map[int64]Material
	skus      map[int64]SKUDefinition
	nextID    int64
	codes     map[string]bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{materials: map[int64]Material{}, skus: map[int64]SKUDefinition{}, codes: map[string]bool{}}
}

func (f *fakeCatalog) ListMaterials(ctx context.Context, materialType string) ([]Material, error) {
	var out []Material
	for _, m := range f.materials {
		if materialType == "" || m.Type == materialType {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetMaterial(ctx context.Context, id int64) (Material, error) {
	m, ok := f.materials[id]
	if !ok {
		return Material{}, ErrMaterialNotFound
	}
	return m, nil
}

func (f *fakeCatalog) CreateMaterial(ctx context.Context, material Material) (Material, error) {
	if f.codes[material.Code] {
		return Material{}, ErrDuplicateCode
	}
	f.nextID++
	material.ID = f.nextID
	material.CreatedAt = time.Now()
	material.UpdatedAt = material.CreatedAt
	f.materials[material.ID] = material
	f.codes[material.Code] = true
	return material, nil
}

func (f *fakeCatalog) UpdateMaterial(ctx context.Context, id int64, material Material) error {
	if _, ok := f.materials[id]; !ok {
		return ErrMaterialNotFound
	}
	material.ID = id
	f.materials[id] = material
	return nil
}

func (f *fakeCatalog) ListSKUs(ctx context.Context, materialID int64) ([]SKUDefinition, error) {
	var out []SKUDefinition
	for _, s := range f.skus {
		if s.MaterialID == materialID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetSKU(ctx context.Context, id int64) (SKUDefinition, error) {
	s, ok := f.skus[id]
	if !ok {
		return SKUDefinition{}, ErrSKUNotFound
	}
	return s, nil
}

func (f *fakeCatalog) CreateSKU(ctx context.Context, sku SKUDefinition) (SKUDefinition, error) {
	if f.codes[sku.Code] {
		return SKUDefinition{}, ErrDuplicateCode
	}
	f.nextID++
	sku.ID = f.nextID
	f.skus[sku.ID] = sku
	f.codes[sku.Code] = true
	return sku, nil
}

func (f *fakeCatalog) UpdateSKU(ctx context.Context, id int64, sku SKUDefinition) error {
	if _, ok := f.skus[id]; !ok {
		return ErrSKUNotFound
	}
	sku.ID = id
	f.skus[id] = sku
	return nil
}

func (f *fakeCatalog) DeactivateSKU(ctx context.Context, id int64) error {
	s, ok := f.skus[id]
	if !ok {
		return ErrSKUNotFound
	}
	s.Active = false
	f.skus[id] = s
	return nil
}

type fakeAnchors struct {
	provisioned []int64
	fail        bool
}

func (f *fakeAnchors) EnsureAnchorSKU(ctx context.Context, materialID int64) (int64, error) {
	if f.fail {
		return 0, errors.New("anchor provisioning down")
	}
	f.provisioned = append(f.provisioned, materialID)
	return materialID + 1000, nil
}

func TestCreateRawMaterialProvisionsAnchor(t *testing.T) {
	catalog := newFakeCatalog()
	anchors := &fakeAnchors{}
	svc := NewService(catalog, anchors, nil)

	created, err := svc.CreateMaterial(context.Background(), Material{Code: "RM-TIO2", Name: "Titanium Dioxide", Type: TypeRaw, Unit: "kg"})
	require.NoError(t, err)
	require.Equal(t, []int64{created.ID}, anchors.provisioned)
}

func TestCreateFinishedGoodSkipsAnchor(t *testing.T) {
	catalog := newFakeCatalog()
	anchors := &fakeAnchors{}
	svc := NewService(catalog, anchors, nil)

	_, err := svc.CreateMaterial(context.Background(), Material{Code: "FG-GW", Name: "Gloss White", Type: TypeFinished, Unit: "kg", Density: 1.3})
	require.NoError(t, err)
	require.Empty(t, anchors.provisioned)
}

func TestCreateMaterialSurvivesAnchorFailure(t *testing.T) {
	catalog := newFakeCatalog()
	anchors := &fakeAnchors{fail: true}
	svc := NewService(catalog, anchors, nil)

	created, err := svc.CreateMaterial(context.Background(), Material{Code: "PM-TIN20", Name: "20L Tin", Type: TypePackaging, Unit: "pcs"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestCreateMaterialRejectsUnknownType(t *testing.T) {
	svc := NewService(newFakeCatalog(), nil, nil)

	_, err := svc.CreateMaterial(context.Background(), Material{Code: "X", Name: "X", Type: "WIP", Unit: "kg"})
	require.ErrorIs(t, err, ErrInvalidMaterial)
}

func TestCreateMaterialDuplicateCode(t *testing.T) {
	catalog := newFakeCatalog()
	svc := NewService(catalog, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateMaterial(ctx, Material{Code: "RM-TIO2", Name: "Titanium Dioxide", Type: TypeRaw, Unit: "kg"})
	require.NoError(t, err)
	_, err = svc.CreateMaterial(ctx, Material{Code: "RM-TIO2", Name: "Copy", Type: TypeRaw, Unit: "kg"})
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestCreateSKURequiresFinishedGood(t *testing.T) {
	catalog := newFakeCatalog()
	svc := NewService(catalog, nil, nil)
	ctx := context.Background()

	rm, err := svc.CreateMaterial(ctx, Material{Code: "RM-TIO2", Name: "Titanium Dioxide", Type: TypeRaw, Unit: "kg"})
	require.NoError(t, err)
	_, err = svc.CreateSKU(ctx, SKUDefinition{MaterialID: rm.ID, Code: "SKU-1", Name: "TiO2 25kg", PackageCapacityKg: 25})
	require.ErrorIs(t, err, ErrInvalidSKU)

	fg, err := svc.CreateMaterial(ctx, Material{Code: "FG-GW", Name: "Gloss White", Type: TypeFinished, Unit: "kg", Density: 1.3})
	require.NoError(t, err)
	sku, err := svc.CreateSKU(ctx, SKUDefinition{MaterialID: fg.ID, Code: "SKU-GW25", Name: "Gloss White 25kg", PackageCapacityKg: 25})
	require.NoError(t, err)
	require.True(t, sku.Active)
}

func TestCreateSKURejectsNonPositiveCapacity(t *testing.T) {
	svc := NewService(newFakeCatalog(), nil, nil)

	_, err := svc.CreateSKU(context.Background(), SKUDefinition{MaterialID: 1, Code: "SKU-0", Name: "Zero", PackageCapacityKg: 0})
	require.ErrorIs(t, err, ErrInvalidSKU)
}

func TestDeactivateSKU(t *testing.T) {
	catalog := newFakeCatalog()
	svc := NewService(catalog, nil, nil)
	ctx := context.Background()

	fg, err := svc.CreateMaterial(ctx, Material{Code: "FG-GW", Name: "Gloss White", Type: TypeFinished, Unit: "kg"})
	require.NoError(t, err)
	sku, err := svc.CreateSKU(ctx, SKUDefinition{MaterialID: fg.ID, Code: "SKU-GW25", Name: "Gloss White 25kg", PackageCapacityKg: 25})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateSKU(ctx, sku.ID))
	got, err := svc.GetSKU(ctx, sku.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
}
