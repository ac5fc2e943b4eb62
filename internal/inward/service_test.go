package inward

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chroma-erp/chroma-erp/internal/shared"
	"github.com/chroma-erp/chroma-erp/internal/stock"
)

type stockRecord struct {
	name      string
	available float64
}

// fakeRepo keeps entries in memory and runs ReverseAndDelete with the same
// cumulative plan the real repository uses.
type fakeRepo struct {
	entries   map[int64]Entry
	nextID    int64
	skus      map[int64]*stockRecord
	materials map[int64]*stockRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		entries:   map[int64]Entry{},
		nextID:    1,
		skus:      map[int64]*stockRecord{},
		materials: map[int64]*stockRecord{},
	}
}

func (r *fakeRepo) GetEntry(_ context.Context, id int64) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrInwardNotFound
	}
	return e, nil
}

func (r *fakeRepo) ListByBill(_ context.Context, key BillKey) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.BillNo == key.BillNo && e.SupplierID == key.SupplierID && e.Date.Equal(key.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) List(_ context.Context, materialID int64, _ int) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if materialID == 0 || e.MaterialID == materialID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) InsertEntries(_ context.Context, entries []Entry) ([]Entry, error) {
	stored := make([]Entry, len(entries))
	for i, e := range entries {
		e.ID = r.nextID
		r.nextID++
		e.TotalCost = e.Qty * e.UnitPrice
		r.entries[e.ID] = e
		stored[i] = e
	}
	return stored, nil
}

func (r *fakeRepo) UpdateRow(_ context.Context, id int64, e Entry) error {
	if _, ok := r.entries[id]; !ok {
		return ErrInwardNotFound
	}
	e.ID = id
	e.TotalCost = e.Qty * e.UnitPrice
	r.entries[id] = e
	return nil
}

func (r *fakeRepo) DeleteRows(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(r.entries, id)
	}
	return nil
}

func (r *fakeRepo) ReverseAndDelete(_ context.Context, entries []Entry) error {
	plan := reversalPlan(entries)
	for target, qty := range plan {
		rec := r.materials[target.MaterialID]
		if target.SKUID != 0 {
			rec = r.skus[target.SKUID]
		}
		if rec == nil {
			return ErrInwardNotFound
		}
		if rec.available < qty {
			return reversalError(rec.name, qty, rec.available)
		}
	}
	for target, qty := range plan {
		if target.SKUID != 0 {
			r.skus[target.SKUID].available -= qty
		} else {
			r.materials[target.MaterialID].available -= qty
		}
	}
	for _, e := range entries {
		delete(r.entries, e.ID)
	}
	return nil
}

type adjustment struct {
	target stock.StockTarget
	qty    float64
	txType stock.TransactionType
}

type fakeStock struct {
	adjustments []adjustment
	failAfter   int
	anchors     map[int64]int64
}

func (f *fakeStock) Add(_ context.Context, _ stock.MovementInput) (stock.Availability, error) {
	return stock.Availability{}, nil
}

func (f *fakeStock) AdjustMasterStock(_ context.Context, input stock.AdjustInput) error {
	if f.failAfter > 0 && input.Qty > 0 && len(f.adjustments) >= f.failAfter {
		return stock.InsufficientError("Resin", 10, 2, "kg")
	}
	f.adjustments = append(f.adjustments, adjustment{target: input.Target, qty: input.Qty, txType: input.Type})
	return nil
}

func (f *fakeStock) EnsureAnchorSKU(_ context.Context, materialID int64) (stock.SKU, error) {
	id, ok := f.anchors[materialID]
	if !ok {
		id = 9000 + materialID
	}
	return stock.SKU{ID: id, MasterMaterialID: materialID}, nil
}

type fakeLedger struct {
	entries []stock.LedgerEntry
}

func (f *fakeLedger) InsertLedgerEntry(_ context.Context, entry stock.LedgerEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeIdem struct {
	seen map[string]bool
}

func (f *fakeIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	f.seen[key] = true
	return nil
}

func (f *fakeIdem) Delete(_ context.Context, key string) error {
	delete(f.seen, key)
	return nil
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	f.actions = append(f.actions, log.Action)
	return nil
}

func inwardRig(t *testing.T) (*Service, *fakeRepo, *fakeStock, *fakeLedger, *fakeIdem) {
	t.Helper()
	repo := newFakeRepo()
	st := &fakeStock{}
	ledger := &fakeLedger{}
	idem := &fakeIdem{}
	svc := NewService(repo, st, ledger, idem, &fakeAudit{}, nil)
	return svc, repo, st, ledger, idem
}

func billInput(billNo string, lines ...Line) CreateInput {
	return CreateInput{
		SupplierID: 7,
		BillNo:     billNo,
		Date:       time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Lines:      lines,
	}
}

func TestCreateInwardCreditsEachLine(t *testing.T) {
	svc, repo, st, _, _ := inwardRig(t)

	entries, err := svc.CreateInward(context.Background(), billInput("B-100",
		Line{MaterialID: 1, MaterialType: "RM", Qty: 50, UnitPrice: 4},
		Line{MaterialID: 2, MaterialType: "PM", Qty: 200, UnitPrice: 0.5},
		Line{MaterialID: 3, SKUID: 30, Qty: 12, UnitPrice: 90},
	))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, 200.0, entries[0].TotalCost)
	require.Len(t, repo.entries, 3)

	require.Len(t, st.adjustments, 3)
	require.Equal(t, stock.RMTarget{MaterialID: 1}, st.adjustments[0].target)
	require.Equal(t, stock.PMTarget{MaterialID: 2}, st.adjustments[1].target)
	require.Equal(t, stock.SKUTarget{SKUID: 30}, st.adjustments[2].target)
	for _, adj := range st.adjustments {
		require.Equal(t, stock.TransactionInward, adj.txType)
		require.Greater(t, adj.qty, 0.0)
	}
}

func TestCreateInwardCompensatesOnCreditFailure(t *testing.T) {
	svc, repo, st, _, _ := inwardRig(t)
	st.failAfter = 1

	_, err := svc.CreateInward(context.Background(), billInput("B-101",
		Line{MaterialID: 1, MaterialType: "RM", Qty: 50, UnitPrice: 4},
		Line{MaterialID: 2, MaterialType: "RM", Qty: 30, UnitPrice: 4},
	))
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	require.Empty(t, repo.entries)
	// first credit plus its compensating reversal
	require.Len(t, st.adjustments, 2)
	require.Equal(t, 50.0, st.adjustments[0].qty)
	require.Equal(t, -50.0, st.adjustments[1].qty)
	require.Equal(t, stock.TransactionReturn, st.adjustments[1].txType)
}

func TestCreateInwardDuplicateKey(t *testing.T) {
	svc, _, _, _, idem := inwardRig(t)

	input := billInput("B-102", Line{MaterialID: 1, MaterialType: "RM", Qty: 10, UnitPrice: 1})
	input.IdempotencyKey = "bill-102"
	_, err := svc.CreateInward(context.Background(), input)
	require.NoError(t, err)
	require.True(t, idem.seen["bill-102"])

	_, err = svc.CreateInward(context.Background(), input)
	require.ErrorIs(t, err, ErrDuplicateReference)
}

func TestDeleteBillCumulativeValidation(t *testing.T) {
	svc, repo, _, _, _ := inwardRig(t)
	repo.materials[1] = &stockRecord{name: "Resin", available: 20}

	input := billInput("B-103",
		Line{MaterialID: 1, MaterialType: "RM", Qty: 10, UnitPrice: 4},
		Line{MaterialID: 1, MaterialType: "RM", Qty: 15, UnitPrice: 4},
	)
	_, err := svc.CreateInward(context.Background(), input)
	require.NoError(t, err)

	key := BillKey{BillNo: "B-103", SupplierID: 7, Date: input.Date}
	err = svc.DeleteBill(context.Background(), key, 1)
	require.ErrorIs(t, err, ErrInsufficientStockToReverse)
	require.Contains(t, err.Error(), "Resin")
	require.Contains(t, err.Error(), "25.00")
	require.Contains(t, err.Error(), "20.00")

	// nothing touched: rows and stock stay as they were
	require.Len(t, repo.entries, 2)
	require.Equal(t, 20.0, repo.materials[1].available)
}

func TestDeleteBillReversesAndLogsLedger(t *testing.T) {
	svc, repo, st, ledger, _ := inwardRig(t)
	repo.materials[1] = &stockRecord{name: "Resin", available: 40}
	st.anchors = map[int64]int64{1: 501}

	input := billInput("B-104",
		Line{MaterialID: 1, MaterialType: "RM", Qty: 10, UnitPrice: 4},
		Line{MaterialID: 1, MaterialType: "RM", Qty: 15, UnitPrice: 4},
	)
	_, err := svc.CreateInward(context.Background(), input)
	require.NoError(t, err)

	key := BillKey{BillNo: "B-104", SupplierID: 7, Date: input.Date}
	require.NoError(t, svc.DeleteBill(context.Background(), key, 1))

	require.Empty(t, repo.entries)
	require.Equal(t, 15.0, repo.materials[1].available)

	require.Len(t, ledger.entries, 2)
	for _, entry := range ledger.entries {
		require.Equal(t, int64(501), entry.SKUID)
		require.Equal(t, stock.TransactionReturn, entry.Type)
		require.Less(t, entry.DeltaQty, 0.0)
	}
}

func TestDeleteInwardSingleEntry(t *testing.T) {
	svc, repo, _, ledger, _ := inwardRig(t)
	repo.skus[30] = &stockRecord{name: "Gloss White 1L", available: 8}

	entries, err := svc.CreateInward(context.Background(), billInput("B-105",
		Line{MaterialID: 3, SKUID: 30, Qty: 5, UnitPrice: 90}))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteInward(context.Background(), entries[0].ID, 1))
	require.Empty(t, repo.entries)
	require.Equal(t, 3.0, repo.skus[30].available)
	require.Len(t, ledger.entries, 1)
	require.Equal(t, int64(30), ledger.entries[0].SKUID)
	require.Equal(t, -5.0, ledger.entries[0].DeltaQty)
}

func TestDeleteBillUnknown(t *testing.T) {
	svc, _, _, _, _ := inwardRig(t)
	err := svc.DeleteBill(context.Background(), BillKey{BillNo: "missing", SupplierID: 7, Date: time.Now()}, 1)
	require.ErrorIs(t, err, ErrInwardNotFound)
}

func TestUpdateInwardQuantityChange(t *testing.T) {
	svc, repo, st, _, _ := inwardRig(t)

	entries, err := svc.CreateInward(context.Background(), billInput("B-106",
		Line{MaterialID: 1, MaterialType: "RM", Qty: 50, UnitPrice: 4}))
	require.NoError(t, err)
	st.adjustments = nil

	updated, err := svc.UpdateInward(context.Background(), entries[0].ID, UpdateInput{
		MaterialID: 1, Qty: 60, UnitPrice: 4,
	})
	require.NoError(t, err)
	require.Equal(t, 60.0, updated.Qty)
	require.Equal(t, 240.0, updated.TotalCost)

	require.Len(t, st.adjustments, 1)
	require.Equal(t, 10.0, st.adjustments[0].qty)
	require.Equal(t, stock.TransactionInward, st.adjustments[0].txType)

	require.Equal(t, 60.0, repo.entries[entries[0].ID].Qty)
}

func TestUpdateInwardTargetChange(t *testing.T) {
	svc, _, st, _, _ := inwardRig(t)

	entries, err := svc.CreateInward(context.Background(), billInput("B-107",
		Line{MaterialID: 1, MaterialType: "RM", Qty: 50, UnitPrice: 4}))
	require.NoError(t, err)
	st.adjustments = nil

	_, err = svc.UpdateInward(context.Background(), entries[0].ID, UpdateInput{
		MaterialID: 2, Qty: 50, UnitPrice: 4,
	})
	require.NoError(t, err)

	require.Len(t, st.adjustments, 2)
	require.Equal(t, stock.RMTarget{MaterialID: 1}, st.adjustments[0].target)
	require.Equal(t, -50.0, st.adjustments[0].qty)
	require.Equal(t, stock.TransactionReturn, st.adjustments[0].txType)
	require.Equal(t, stock.RMTarget{MaterialID: 2}, st.adjustments[1].target)
	require.Equal(t, 50.0, st.adjustments[1].qty)
}

func TestUpdateInwardPriceOnly(t *testing.T) {
	svc, repo, st, _, _ := inwardRig(t)

	entries, err := svc.CreateInward(context.Background(), billInput("B-108",
		Line{MaterialID: 1, MaterialType: "RM", Qty: 50, UnitPrice: 4}))
	require.NoError(t, err)
	st.adjustments = nil

	updated, err := svc.UpdateInward(context.Background(), entries[0].ID, UpdateInput{
		MaterialID: 1, Qty: 50, UnitPrice: 5,
	})
	require.NoError(t, err)
	require.Empty(t, st.adjustments)
	require.Equal(t, 250.0, updated.TotalCost)
	require.Equal(t, 5.0, repo.entries[entries[0].ID].UnitPrice)
}

func TestUpdateInwardRejectsInvalidInput(t *testing.T) {
	svc, repo, _, _, _ := inwardRig(t)
	repo.entries[1] = Entry{ID: 1, MaterialID: 1, Qty: 10, UnitPrice: 1}

	_, err := svc.UpdateInward(context.Background(), 1, UpdateInput{MaterialID: 1, Qty: 0, UnitPrice: 1})
	require.ErrorIs(t, err, ErrInvalidInward)
}

func TestReversalPlanSumsPerTarget(t *testing.T) {
	plan := reversalPlan([]Entry{
		{MaterialID: 1, Qty: 10},
		{MaterialID: 1, Qty: 15},
		{MaterialID: 2, SKUID: 30, Qty: 4},
		{MaterialID: 2, SKUID: 30, Qty: 6},
	})
	require.Equal(t, 25.0, plan[reversalTarget{MaterialID: 1}])
	require.Equal(t, 10.0, plan[reversalTarget{SKUID: 30}])
}

func TestWeightReversalClampsToRecordedWeight(t *testing.T) {
	// full weight on hand: reverse qty times capacity
	require.InDelta(t, 200.0, weightReversal(10, 20, 500), 0.0001)
	// quantity-only inwards left the weight short of qty times capacity
	require.InDelta(t, 120.0, weightReversal(10, 20, 120), 0.0001)
	require.Zero(t, weightReversal(10, 20, 0))
	require.Zero(t, weightReversal(10, 20, -5))
	require.Zero(t, weightReversal(10, 0, 500))
}

func TestCreateInwardRejectsBadLines(t *testing.T) {
	svc, _, _, _, _ := inwardRig(t)
	cases := []CreateInput{
		billInput(""),
		billInput("B-109"),
		billInput("B-110", Line{MaterialID: 0, Qty: 5, UnitPrice: 1}),
		billInput("B-111", Line{MaterialID: 1, Qty: -1, UnitPrice: 1}),
	}
	for i, input := range cases {
		_, err := svc.CreateInward(context.Background(), input)
		require.ErrorIs(t, err, ErrInvalidInward, fmt.Sprintf("case %d", i))
	}
}
