package stock

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	skus       map[int64]SKU
	materials  map[int64]MasterMaterial
	ledger     []LedgerEntry
	nextSKUID  int64
	failLedger bool
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{skus: map[int64]SKU{}, materials: map[int64]MasterMaterial{}, nextSKUID: 100}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetSKU(ctx context.Context, skuID int64) (SKU, error) {
	sku, ok := r.skus[skuID]
	if !ok {
		return SKU{}, ErrSKUNotFound
	}
	return sku, nil
}

func (r *memoryRepo) ListSiblings(ctx context.Context, materialID int64) ([]SKU, error) {
	var skus []SKU
	for _, sku := range r.skus {
		if sku.MasterMaterialID == materialID && sku.Active {
			skus = append(skus, sku)
		}
	}
	return skus, nil
}

func (r *memoryRepo) GetMaterial(ctx context.Context, materialID int64) (MasterMaterial, error) {
	m, ok := r.materials[materialID]
	if !ok {
		return MasterMaterial{}, ErrMaterialNotFound
	}
	return m, nil
}

func (r *memoryRepo) InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error {
	if r.failLedger {
		return errors.New("ledger unavailable")
	}
	r.ledger = append(r.ledger, entry)
	return nil
}

func (r *memoryRepo) ListLedger(ctx context.Context, skuID int64, limit int) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	for _, e := range r.ledger {
		if e.SKUID == skuID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (tx *memoryTx) GetSKUForUpdate(ctx context.Context, skuID int64) (SKU, error) {
	return tx.repo.GetSKU(ctx, skuID)
}

func (tx *memoryTx) UpdateSKUBalances(ctx context.Context, skuID int64, units, weight Balance) error {
	sku, ok := tx.repo.skus[skuID]
	if !ok {
		return ErrSKUNotFound
	}
	sku.Units = units
	sku.Weight = weight
	tx.repo.skus[skuID] = sku
	return nil
}

func (tx *memoryTx) GetMaterialForUpdate(ctx context.Context, materialID int64) (MasterMaterial, error) {
	return tx.repo.GetMaterial(ctx, materialID)
}

func (tx *memoryTx) ApplyMaterialDelta(ctx context.Context, materialID int64, deltaQty float64) (float64, error) {
	m, ok := tx.repo.materials[materialID]
	if !ok {
		return 0, ErrMaterialNotFound
	}
	m.AvailableQty += deltaQty
	tx.repo.materials[materialID] = m
	return m.AvailableQty, nil
}

func (tx *memoryTx) AnchorSKU(ctx context.Context, materialID int64) (SKU, error) {
	for _, sku := range tx.repo.skus {
		if sku.MasterMaterialID == materialID {
			return sku, nil
		}
	}
	m, ok := tx.repo.materials[materialID]
	if !ok {
		return SKU{}, ErrMaterialNotFound
	}
	tx.repo.nextSKUID++
	sku := SKU{ID: tx.repo.nextSKUID, MasterMaterialID: materialID, Name: m.Name + " (stock)", Active: true}
	tx.repo.skus[sku.ID] = sku
	return sku, nil
}

type recordingNotifier struct {
	calls []int64
	fail  bool
}

func (n *recordingNotifier) ClearResolvedShortageAlerts(ctx context.Context, skuID int64, currentQty, threshold float64) error {
	n.calls = append(n.calls, skuID)
	if n.fail {
		return errors.New("notifier down")
	}
	return nil
}

func newTestService(repo *memoryRepo, notifier NotifierPort) *Service {
	return NewService(repo, nil, notifier, nil, slog.Default())
}

func seedSKU(repo *memoryRepo) SKU {
	sku := SKU{
		ID:               1,
		MasterMaterialID: 7,
		Name:             "Gloss White 25kg",
		PackageCapacity:  25,
		Units:            Balance{Available: 100},
		Weight:           Balance{Available: 2500},
		MinStockLevel:    10,
		Active:           true,
	}
	repo.skus[sku.ID] = sku
	return sku
}

func TestReserveThenReleaseRestoresReserved(t *testing.T) {
	repo := newMemoryRepo()
	seedSKU(repo)
	svc := newTestService(repo, nil)
	ctx := context.Background()

	totals, err := svc.Reserve(ctx, ReserveInput{SKUID: 1, Qty: 20, WeightKg: 500})
	require.NoError(t, err)
	require.InDelta(t, 20.0, totals.ReservedQty, 0.0001)
	require.InDelta(t, 500.0, totals.ReservedWeightKg, 0.0001)

	// available untouched by reservation
	sku := repo.skus[1]
	require.InDelta(t, 100.0, sku.Units.Available, 0.0001)

	totals, err = svc.Release(ctx, ReleaseInput{SKUID: 1, Qty: 20, WeightKg: 500})
	require.NoError(t, err)
	require.Zero(t, totals.ReservedQty)
	require.Zero(t, totals.ReservedWeightKg)
}

func TestReserveInsufficientNamesMaterial(t *testing.T) {
	repo := newMemoryRepo()
	seedSKU(repo)
	svc := newTestService(repo, nil)

	_, err := svc.Reserve(context.Background(), ReserveInput{SKUID: 1, Qty: 200})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "Gloss White 25kg")
	require.Contains(t, err.Error(), "200.00")
	require.Contains(t, err.Error(), "100.00")
}

func TestReleaseClampsAndNeverGoesNegative(t *testing.T) {
	repo := newMemoryRepo()
	sku := seedSKU(repo)
	sku.Units.Reserved = 5
	repo.skus[1] = sku
	svc := newTestService(repo, nil)

	totals, err := svc.Release(context.Background(), ReleaseInput{SKUID: 1, Qty: 50})
	require.NoError(t, err)
	require.Zero(t, totals.ReservedQty)
}

func TestAddThenDeductRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	seedSKU(repo)
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.Add(ctx, MovementInput{SKUID: 1, Qty: 40, WeightKg: 1000, Type: TransactionInward, RefType: "inward", RefID: "11"})
	require.NoError(t, err)
	avail, err := svc.Deduct(ctx, MovementInput{SKUID: 1, Qty: 40, WeightKg: 1000, Type: TransactionOrderConsumption, RefType: "order", RefID: "12"})
	require.NoError(t, err)
	require.InDelta(t, 100.0, avail.AvailableQty, 0.0001)
	require.InDelta(t, 2500.0, avail.AvailableWeightKg, 0.0001)

	require.Len(t, repo.ledger, 2)
	require.InDelta(t, 40.0, repo.ledger[0].DeltaQty, 0.0001)
	require.InDelta(t, 100.0, repo.ledger[0].BalanceBefore, 0.0001)
	require.InDelta(t, 140.0, repo.ledger[0].BalanceAfter, 0.0001)
	require.InDelta(t, -40.0, repo.ledger[1].DeltaQty, 0.0001)
	require.InDelta(t, 140.0, repo.ledger[1].BalanceBefore, 0.0001)
	require.InDelta(t, 100.0, repo.ledger[1].BalanceAfter, 0.0001)
}

func TestDeductInsufficientLeavesRecordUnchanged(t *testing.T) {
	repo := newMemoryRepo()
	seedSKU(repo)
	svc := newTestService(repo, nil)

	_, err := svc.Deduct(context.Background(), MovementInput{SKUID: 1, Qty: 101, Type: TransactionOrderConsumption})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.InDelta(t, 100.0, repo.skus[1].Units.Available, 0.0001)
	require.Empty(t, repo.ledger)
}

func TestLedgerFailureDoesNotFailStockUpdate(t *testing.T) {
	repo := newMemoryRepo()
	seedSKU(repo)
	repo.failLedger = true
	svc := newTestService(repo, nil)

	avail, err := svc.Add(context.Background(), MovementInput{SKUID: 1, Qty: 10, Type: TransactionInward})
	require.NoError(t, err)
	require.InDelta(t, 110.0, avail.AvailableQty, 0.0001)
}

func TestAddClearsShortageAlerts(t *testing.T) {
	repo := newMemoryRepo()
	seedSKU(repo)
	notifier := &recordingNotifier{}
	svc := newTestService(repo, notifier)

	_, err := svc.Add(context.Background(), MovementInput{SKUID: 1, Qty: 10, Type: TransactionInward})
	require.NoError(t, err)
	require.Equal(t, []int64{1}, notifier.calls)
}

func TestAddSucceedsWhenNotifierFails(t *testing.T) {
	repo := newMemoryRepo()
	seedSKU(repo)
	notifier := &recordingNotifier{fail: true}
	svc := newTestService(repo, notifier)

	avail, err := svc.Add(context.Background(), MovementInput{SKUID: 1, Qty: 10, Type: TransactionInward})
	require.NoError(t, err)
	require.InDelta(t, 110.0, avail.AvailableQty, 0.0001)
}

func TestAdjustMasterMaterialDeduct(t *testing.T) {
	repo := newMemoryRepo()
	repo.materials[3] = MasterMaterial{ID: 3, Name: "Titanium Dioxide", Type: MaterialRaw, Unit: "kg", AvailableQty: 50}
	svc := newTestService(repo, nil)
	ctx := context.Background()

	err := svc.AdjustMasterStock(ctx, AdjustInput{Target: RMTarget{MaterialID: 3}, Qty: -20, Type: TransactionProductionConsumption, RefType: "batch", RefID: "5"})
	require.NoError(t, err)
	require.InDelta(t, 30.0, repo.materials[3].AvailableQty, 0.0001)

	// anchor SKU created for the ledger reference
	require.Len(t, repo.ledger, 1)
	require.NotZero(t, repo.ledger[0].SKUID)
	require.InDelta(t, -20.0, repo.ledger[0].DeltaQty, 0.0001)

	err = svc.AdjustMasterStock(ctx, AdjustInput{Target: RMTarget{MaterialID: 3}, Qty: -31, Type: TransactionProductionConsumption})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "Titanium Dioxide")
	require.InDelta(t, 30.0, repo.materials[3].AvailableQty, 0.0001)
}

func TestAdjustSKUTargetUsesPackageWeight(t *testing.T) {
	repo := newMemoryRepo()
	seedSKU(repo)
	svc := newTestService(repo, nil)

	err := svc.AdjustMasterStock(context.Background(), AdjustInput{Target: SKUTarget{SKUID: 1}, Qty: 4, Type: TransactionInward, RefType: "inward", RefID: "9"})
	require.NoError(t, err)
	sku := repo.skus[1]
	require.InDelta(t, 104.0, sku.Units.Available, 0.0001)
	require.InDelta(t, 2600.0, sku.Weight.Available, 0.0001)
}

func TestGetAvailabilityUnknownSKU(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	_, err := svc.GetAvailability(context.Background(), 42)
	require.ErrorIs(t, err, ErrSKUNotFound)
}
