package inward

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/chroma-erp/chroma-erp/internal/shared"
	"github.com/chroma-erp/chroma-erp/internal/stock"
)

// RepositoryPort abstracts inward persistence.
type RepositoryPort interface {
	GetEntry(ctx context.Context, id int64) (Entry, error)
	ListByBill(ctx context.Context, key BillKey) ([]Entry, error)
	List(ctx context.Context, materialID int64, limit int) ([]Entry, error)
	InsertEntries(ctx context.Context, entries []Entry) ([]Entry, error)
	UpdateRow(ctx context.Context, id int64, e Entry) error
	DeleteRows(ctx context.Context, ids []int64) error
	ReverseAndDelete(ctx context.Context, entries []Entry) error
}

// StockPort is the slice of the stock engine inward receipts need.
type StockPort interface {
	Add(ctx context.Context, input stock.MovementInput) (stock.Availability, error)
	AdjustMasterStock(ctx context.Context, input stock.AdjustInput) error
	EnsureAnchorSKU(ctx context.Context, materialID int64) (stock.SKU, error)
}

// LedgerPort appends compensating ledger entries for deletions, which bypass
// the stock service and mutate stock rows directly in the deletion
// transaction.
type LedgerPort interface {
	InsertLedgerEntry(ctx context.Context, entry stock.LedgerEntry) error
}

// IdempotencyPort guards against duplicate bill submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records inward lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the bill/inward lifecycle.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	ledger      LedgerPort
	idempotency IdempotencyPort
	audit       AuditPort
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, stockPort StockPort, ledger LedgerPort, idempotency IdempotencyPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stockPort, ledger: ledger, idempotency: idempotency, audit: audit, logger: logger}
}

// Line is one received-goods line of a create request.
type Line struct {
	MaterialID   int64
	MaterialType string
	SKUID        int64
	Qty          float64
	UnitPrice    float64
}

// CreateInput describes a bill receipt with one or more lines.
type CreateInput struct {
	SupplierID     int64
	BillNo         string
	Date           time.Time
	Lines          []Line
	ActorID        int64
	IdempotencyKey string
}

// UpdateInput is the full desired state of one entry after the edit.
type UpdateInput struct {
	MaterialID int64
	SKUID      int64
	Qty        float64
	UnitPrice  float64
	ActorID    int64
}

// CreateInward inserts the bill lines, credits stock per line and returns the
// stored entries with joined display fields. If any stock credit fails the
// already-applied lines are compensated.
func (s *Service) CreateInward(ctx context.Context, input CreateInput) ([]Entry, error) {
	if input.BillNo == "" || len(input.Lines) == 0 {
		return nil, ErrInvalidInward
	}
	for _, line := range input.Lines {
		if line.MaterialID <= 0 || line.Qty <= 0 || line.UnitPrice < 0 {
			return nil, ErrInvalidInward
		}
	}
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "inward"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, ErrDuplicateReference
			}
			return nil, err
		}
	}

	entries := make([]Entry, len(input.Lines))
	for i, line := range input.Lines {
		entries[i] = Entry{
			MaterialID:   line.MaterialID,
			MaterialType: line.MaterialType,
			SKUID:        line.SKUID,
			SupplierID:   input.SupplierID,
			BillNo:       input.BillNo,
			Date:         input.Date,
			Qty:          line.Qty,
			UnitPrice:    line.UnitPrice,
		}
	}
	stored, err := s.repo.InsertEntries(ctx, entries)
	if err != nil {
		s.dropKey(ctx, input.IdempotencyKey)
		return nil, err
	}

	for i, entry := range stored {
		if err := s.creditStock(ctx, entry, input.ActorID); err != nil {
			s.compensate(ctx, stored[:i], input.ActorID)
			ids := make([]int64, len(stored))
			for j, e := range stored {
				ids[j] = e.ID
			}
			if delErr := s.repo.DeleteRows(ctx, ids); delErr != nil {
				s.logger.Error("removing failed bill lines", slog.Any("error", delErr))
			}
			s.dropKey(ctx, input.IdempotencyKey)
			return nil, err
		}
	}
	s.recordAudit(ctx, input.ActorID, "inward:create", input.BillNo, map[string]any{"lines": len(stored)})
	return stored, nil
}

// DeleteInward reverses and removes a single entry.
func (s *Service) DeleteInward(ctx context.Context, id, actorID int64) error {
	entry, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.ReverseAndDelete(ctx, []Entry{entry}); err != nil {
		return err
	}
	s.appendReversalLedger(ctx, []Entry{entry}, actorID)
	s.recordAudit(ctx, actorID, "inward:delete", strconv.FormatInt(id, 10), nil)
	return nil
}

// DeleteBill reverses and removes every line of a bill. Validation is
// cumulative: lines against the same stock record are summed before the
// check, so a bill whose combined reversal exceeds current stock fails as a
// whole.
func (s *Service) DeleteBill(ctx context.Context, key BillKey, actorID int64) error {
	entries, err := s.repo.ListByBill(ctx, key)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrInwardNotFound
	}
	if err := s.repo.ReverseAndDelete(ctx, entries); err != nil {
		return err
	}
	s.appendReversalLedger(ctx, entries, actorID)
	s.recordAudit(ctx, actorID, "inward:delete_bill", key.BillNo, map[string]any{"lines": len(entries)})
	return nil
}

// UpdateInward applies the three edit shapes: target change (reverse old,
// credit new), quantity change on the same target (signed difference), or a
// price-only rewrite.
func (s *Service) UpdateInward(ctx context.Context, id int64, input UpdateInput) (Entry, error) {
	current, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if input.MaterialID <= 0 || input.Qty <= 0 || input.UnitPrice < 0 {
		return Entry{}, ErrInvalidInward
	}
	next := current
	next.MaterialID = input.MaterialID
	next.SKUID = input.SKUID
	next.Qty = input.Qty
	next.UnitPrice = input.UnitPrice

	targetChanged := next.MaterialID != current.MaterialID || next.SKUID != current.SKUID
	ref := inwardRef(current.ID)
	switch {
	case targetChanged:
		if err := s.adjust(ctx, current.MaterialID, current.MaterialType, current.SKUID, -current.Qty, ref, input.ActorID); err != nil {
			return Entry{}, translateReversal(err)
		}
		if err := s.adjust(ctx, next.MaterialID, next.MaterialType, next.SKUID, next.Qty, ref, input.ActorID); err != nil {
			return Entry{}, err
		}
	case next.Qty != current.Qty:
		delta := next.Qty - current.Qty
		if err := s.adjust(ctx, current.MaterialID, current.MaterialType, current.SKUID, delta, ref, input.ActorID); err != nil {
			return Entry{}, translateReversal(err)
		}
	}

	if err := s.repo.UpdateRow(ctx, id, next); err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inward:update", strconv.FormatInt(id, 10), nil)
	return s.repo.GetEntry(ctx, id)
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	return s.repo.GetEntry(ctx, id)
}

// List returns entries newest first.
func (s *Service) List(ctx context.Context, materialID int64, limit int) ([]Entry, error) {
	return s.repo.List(ctx, materialID, limit)
}

func (s *Service) creditStock(ctx context.Context, entry Entry, actorID int64) error {
	return s.adjust(ctx, entry.MaterialID, entry.MaterialType, entry.SKUID, entry.Qty, inwardRef(entry.ID), actorID)
}

// adjust routes a signed quantity to the right stock target.
func (s *Service) adjust(ctx context.Context, materialID int64, materialType string, skuID int64, qty float64, refID string, actorID int64) error {
	var target stock.StockTarget
	switch {
	case skuID != 0:
		target = stock.SKUTarget{SKUID: skuID}
	case materialType == string(stock.MaterialPackaging):
		target = stock.PMTarget{MaterialID: materialID}
	default:
		target = stock.RMTarget{MaterialID: materialID}
	}
	txType := stock.TransactionInward
	if qty < 0 {
		txType = stock.TransactionReturn
	}
	return s.stock.AdjustMasterStock(ctx, stock.AdjustInput{
		Target:  target,
		Qty:     qty,
		Type:    txType,
		RefType: "inward",
		RefID:   refID,
		ActorID: actorID,
	})
}

// compensate reverses already-credited lines of a failed bill.
func (s *Service) compensate(ctx context.Context, applied []Entry, actorID int64) {
	for _, entry := range applied {
		if err := s.adjust(ctx, entry.MaterialID, entry.MaterialType, entry.SKUID, -entry.Qty, inwardRef(entry.ID), actorID); err != nil {
			s.logger.Error("compensating failed bill line",
				slog.Int64("inward_id", entry.ID),
				slog.Any("error", err))
		}
	}
}

// appendReversalLedger writes compensating entries after a deletion commit.
// The deletion transaction is authoritative; ledger failures are logged only.
func (s *Service) appendReversalLedger(ctx context.Context, entries []Entry, actorID int64) {
	if s.ledger == nil {
		return
	}
	for _, entry := range entries {
		skuID := entry.SKUID
		if skuID == 0 {
			anchor, err := s.stock.EnsureAnchorSKU(ctx, entry.MaterialID)
			if err != nil {
				s.logger.Warn("resolving ledger anchor failed", slog.Int64("material_id", entry.MaterialID), slog.Any("error", err))
				continue
			}
			skuID = anchor.ID
		}
		err := s.ledger.InsertLedgerEntry(ctx, stock.LedgerEntry{
			SKUID:    skuID,
			Type:     stock.TransactionReturn,
			DeltaQty: -entry.Qty,
			RefType:  "inward",
			RefID:    inwardRef(entry.ID),
			ActorID:  actorID,
			Notes:    "inward deletion reversal",
		})
		if err != nil {
			s.logger.Error("reversal ledger append failed", slog.Int64("inward_id", entry.ID), slog.Any("error", err))
		}
	}
}

func (s *Service) dropKey(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Delete(ctx, key); err != nil {
		s.logger.Warn("dropping idempotency key failed", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.EntityInward,
		EntityID: entityID,
		Meta:     meta,
	})
}

func translateReversal(err error) error {
	if errors.Is(err, stock.ErrInsufficientStock) {
		return ErrInsufficientStockToReverse
	}
	return err
}

// inwardRef derives a stable ledger reference for an entry.
func inwardRef(id int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("inward:"+strconv.FormatInt(id, 10))).String()
}
