package production

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/chroma-erp/chroma-erp/internal/notify"
	"github.com/chroma-erp/chroma-erp/internal/shared"
	"github.com/chroma-erp/chroma-erp/internal/stock"
)

// RepositoryPort abstracts batch persistence.
type RepositoryPort interface {
	GetBatch(ctx context.Context, id int64) (Batch, error)
	ListBatches(ctx context.Context, status BatchStatus, limit int) ([]Batch, error)
	CreateBatch(ctx context.Context, batch Batch, materials []BatchMaterial, products []BatchProduct) (int64, error)
	ListMaterials(ctx context.Context, batchID int64) ([]BatchMaterial, error)
	ListProducts(ctx context.Context, batchID int64) ([]BatchProduct, error)
	TransitionStatus(ctx context.Context, batchID int64, from, to BatchStatus) error
	SaveCompletion(ctx context.Context, batch Batch) error
	SaveMaterialActuals(ctx context.Context, lineID int64, actualQty, variance float64) error
	SaveProductOutput(ctx context.Context, lineID int64, producedUnits, producedWeightKg float64) error
	MarkOrdersReadyForDispatch(ctx context.Context, orderIDs []int64) error
}

// StockPort is the slice of the stock engine the batch lifecycle needs.
type StockPort interface {
	Reserve(ctx context.Context, input stock.ReserveInput) (stock.ReservedTotals, error)
	Release(ctx context.Context, input stock.ReleaseInput) (stock.ReservedTotals, error)
	Add(ctx context.Context, input stock.MovementInput) (stock.Availability, error)
	Deduct(ctx context.Context, input stock.MovementInput) (stock.Availability, error)
	AdjustMasterStock(ctx context.Context, input stock.AdjustInput) error
	GetMaterial(ctx context.Context, materialID int64) (stock.MasterMaterial, error)
	GetAvailability(ctx context.Context, skuID int64) (stock.Availability, error)
	Siblings(ctx context.Context, materialID int64) ([]stock.SKU, error)
	EnsureAnchorSKU(ctx context.Context, materialID int64) (stock.SKU, error)
}

// NotifierPort raises and clears shortage alerts, best-effort.
type NotifierPort interface {
	CreateMaterialShortageNotifications(ctx context.Context, shortages []notify.Shortage) error
	ClearResolvedShortageAlerts(ctx context.Context, skuID int64, currentQty, threshold float64) error
}

// AuditPort records batch lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the batch lifecycle.
type Service struct {
	repo     RepositoryPort
	stock    StockPort
	notifier NotifierPort
	audit    AuditPort
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, stockPort StockPort, notifier NotifierPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stockPort, notifier: notifier, audit: audit, logger: logger}
}

// ScheduleInput describes a new batch with its planned lines.
type ScheduleInput struct {
	MaterialID   int64
	PlannedQty   float64
	Density      float64
	ScheduledFor time.Time
	SupervisorID int64
	Materials    []BatchMaterial
	Products     []BatchProduct
}

// CompleteInput carries the completion actuals. ConsumedQty overrides planned
// consumption per material line; ProducedUnits overrides output distribution
// per product line.
type CompleteInput struct {
	BatchID       int64
	ActualQty     float64
	ActualDensity float64
	ActualMinutes int
	ActorID       int64
	ConsumedQty   map[int64]float64
	ProducedUnits map[int64]float64
}

// Schedule records a new batch in Scheduled state.
func (s *Service) Schedule(ctx context.Context, input ScheduleInput) (Batch, error) {
	if input.MaterialID <= 0 || input.PlannedQty <= 0 || input.Density <= 0 {
		return Batch{}, ErrInvalidBatch
	}
	if len(input.Products) == 0 {
		return Batch{}, ErrInvalidBatch
	}
	batchID, err := s.repo.CreateBatch(ctx, Batch{
		MaterialID:   input.MaterialID,
		PlannedQty:   input.PlannedQty,
		Density:      input.Density,
		ScheduledFor: input.ScheduledFor,
		SupervisorID: input.SupervisorID,
	}, input.Materials, input.Products)
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, input.SupervisorID, "production:schedule", batchID, nil)
	return s.repo.GetBatch(ctx, batchID)
}

// Start verifies every consumption line can be covered, reserves SKU-level
// lines and flips the batch to In Progress. Master-level lines (RM/PM) are
// availability-checked only: the master row carries no reserved bucket, so
// their consumption is taken from available at completion.
func (s *Service) Start(ctx context.Context, batchID, actorID int64) error {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != StatusScheduled {
		return ErrInvalidTransition
	}
	materials, err := s.repo.ListMaterials(ctx, batchID)
	if err != nil {
		return err
	}

	var shortages []notify.Shortage
	for _, line := range materials {
		if line.SKUID != 0 {
			avail, err := s.stock.GetAvailability(ctx, line.SKUID)
			if err != nil {
				return err
			}
			if avail.NetQty < line.RequiredQty {
				shortages = append(shortages, shortage(line, avail.NetQty))
			}
			continue
		}
		material, err := s.stock.GetMaterial(ctx, line.MaterialID)
		if err != nil {
			return err
		}
		if material.AvailableQty < line.RequiredQty {
			short := shortage(line, material.AvailableQty)
			// alerts key on a SKU; master lines use their anchor
			if anchor, err := s.stock.EnsureAnchorSKU(ctx, line.MaterialID); err == nil {
				short.SKUID = anchor.ID
			}
			shortages = append(shortages, short)
		}
	}
	if len(shortages) > 0 {
		s.raiseShortages(ctx, shortages)
		first := shortages[0]
		return MaterialShortageError(first.MaterialName, first.RequiredQty, first.AvailableQty, first.Unit)
	}

	var reserved []BatchMaterial
	for _, line := range materials {
		if line.SKUID == 0 {
			continue
		}
		_, err := s.stock.Reserve(ctx, stock.ReserveInput{SKUID: line.SKUID, Qty: line.RequiredQty, ActorID: actorID})
		if err != nil {
			s.releaseLines(ctx, reserved, actorID)
			return err
		}
		reserved = append(reserved, line)
	}

	if err := s.repo.TransitionStatus(ctx, batchID, StatusScheduled, StatusInProgress); err != nil {
		s.releaseLines(ctx, reserved, actorID)
		return err
	}
	s.recordAudit(ctx, actorID, "production:start", batchID, nil)
	return nil
}

// Cancel aborts a batch. From In Progress it releases the reservations made
// at Start; from Scheduled there is nothing to reverse.
func (s *Service) Cancel(ctx context.Context, batchID, actorID int64) error {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	switch batch.Status {
	case StatusScheduled:
		if err := s.repo.TransitionStatus(ctx, batchID, StatusScheduled, StatusCancelled); err != nil {
			return err
		}
	case StatusInProgress:
		if err := s.repo.TransitionStatus(ctx, batchID, StatusInProgress, StatusCancelled); err != nil {
			return err
		}
		materials, err := s.repo.ListMaterials(ctx, batchID)
		if err != nil {
			return err
		}
		s.releaseLines(ctx, materials, actorID)
	default:
		return ErrInvalidTransition
	}
	s.recordAudit(ctx, actorID, "production:cancel", batchID, nil)
	return nil
}

// Complete consumes the batch inputs and distributes the produced weight
// across the output SKUs.
func (s *Service) Complete(ctx context.Context, input CompleteInput) (Batch, error) {
	if input.ActualQty <= 0 || input.ActualDensity <= 0 {
		return Batch{}, ErrInvalidBatch
	}
	batch, err := s.repo.GetBatch(ctx, input.BatchID)
	if err != nil {
		return Batch{}, err
	}
	if batch.Status != StatusInProgress {
		return Batch{}, ErrInvalidTransition
	}
	materials, err := s.repo.ListMaterials(ctx, input.BatchID)
	if err != nil {
		return Batch{}, err
	}
	products, err := s.repo.ListProducts(ctx, input.BatchID)
	if err != nil {
		return Batch{}, err
	}

	actualWeight := ActualWeightKg(input.ActualQty, input.ActualDensity)
	refID := batchRef(input.BatchID)

	for _, line := range materials {
		consumed := line.RequiredQty
		if override, ok := input.ConsumedQty[line.ID]; ok {
			consumed = override
		}
		if err := s.consumeLine(ctx, line, consumed, refID, input.ActorID); err != nil {
			return Batch{}, err
		}
		if err := s.repo.SaveMaterialActuals(ctx, line.ID, consumed, consumed-line.RequiredQty); err != nil {
			return Batch{}, err
		}
	}

	var orderIDs []int64
	for _, line := range products {
		avail, err := s.stock.GetAvailability(ctx, line.SKUID)
		if err != nil {
			return Batch{}, err
		}
		units, inferred := resolveOutput(line, products, input.ProducedUnits, actualWeight, avail.PackageCapacityKg)
		if inferred && units == 0 {
			s.logger.Warn("ambiguous output distribution, produced units left at zero",
				slog.Int64("batch_id", batch.ID),
				slog.Int64("sku_id", line.SKUID))
		}
		producedWeight := units * avail.PackageCapacityKg
		if err := s.repo.SaveProductOutput(ctx, line.ID, units, producedWeight); err != nil {
			return Batch{}, err
		}
		if units > 0 {
			_, err = s.stock.Add(ctx, stock.MovementInput{
				SKUID:    line.SKUID,
				Qty:      units,
				WeightKg: producedWeight,
				Density:  input.ActualDensity,
				Type:     stock.TransactionProductionOutput,
				RefType:  "batch",
				RefID:    refID,
				ActorID:  input.ActorID,
			})
			if err != nil {
				return Batch{}, err
			}
		}
		if line.OrderID != 0 {
			orderIDs = append(orderIDs, line.OrderID)
		}
	}

	batch.ActualQty = input.ActualQty
	batch.ActualDensity = input.ActualDensity
	batch.ActualWeightKg = actualWeight
	batch.ActualMinutes = input.ActualMinutes
	if err := s.repo.SaveCompletion(ctx, batch); err != nil {
		return Batch{}, err
	}
	if err := s.repo.MarkOrdersReadyForDispatch(ctx, orderIDs); err != nil {
		s.logger.Error("marking orders ready for dispatch failed",
			slog.Int64("batch_id", batch.ID),
			slog.Any("error", err))
	}
	s.clearSiblingAlerts(ctx, batch.MaterialID)
	s.recordAudit(ctx, input.ActorID, "production:complete", batch.ID, map[string]any{
		"actual_qty":       input.ActualQty,
		"actual_weight_kg": actualWeight,
	})
	return s.repo.GetBatch(ctx, batch.ID)
}

// Get returns one batch with its lines.
func (s *Service) Get(ctx context.Context, batchID int64) (Batch, []BatchMaterial, []BatchProduct, error) {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return Batch{}, nil, nil, err
	}
	materials, err := s.repo.ListMaterials(ctx, batchID)
	if err != nil {
		return Batch{}, nil, nil, err
	}
	products, err := s.repo.ListProducts(ctx, batchID)
	if err != nil {
		return Batch{}, nil, nil, err
	}
	return batch, materials, products, nil
}

// List returns batches newest first.
func (s *Service) List(ctx context.Context, status BatchStatus, limit int) ([]Batch, error) {
	return s.repo.ListBatches(ctx, status, limit)
}

// consumeLine deducts one input line: SKU lines release their Start
// reservation and deduct units; master lines take the quantity off the
// aggregate row.
// consumeLine settles one material line at completion. SKU lines always
// release the reservation made at Start, even when nothing was consumed.
func (s *Service) consumeLine(ctx context.Context, line BatchMaterial, consumed float64, refID string, actorID int64) error {
	if line.SKUID != 0 {
		if _, err := s.stock.Release(ctx, stock.ReleaseInput{SKUID: line.SKUID, Qty: line.RequiredQty, ActorID: actorID}); err != nil {
			return err
		}
		if consumed <= 0 {
			return nil
		}
		_, err := s.stock.Deduct(ctx, stock.MovementInput{
			SKUID:   line.SKUID,
			Qty:     consumed,
			Type:    stock.TransactionProductionConsumption,
			RefType: "batch",
			RefID:   refID,
			ActorID: actorID,
		})
		return err
	}
	if consumed <= 0 {
		return nil
	}
	var target stock.StockTarget
	if line.MaterialType == string(stock.MaterialPackaging) {
		target = stock.PMTarget{MaterialID: line.MaterialID}
	} else {
		target = stock.RMTarget{MaterialID: line.MaterialID}
	}
	return s.stock.AdjustMasterStock(ctx, stock.AdjustInput{
		Target:  target,
		Qty:     -consumed,
		Type:    stock.TransactionProductionConsumption,
		RefType: "batch",
		RefID:   refID,
		ActorID: actorID,
	})
}

// resolveOutput picks produced units for one line: explicit value first, then
// the single-SKU make-to-stock inference, else zero. The second return value
// reports that inference was attempted.
func resolveOutput(line BatchProduct, all []BatchProduct, explicit map[int64]float64, actualWeight, capacityKg float64) (float64, bool) {
	if units, ok := explicit[line.ID]; ok {
		return units, false
	}
	if len(all) == 1 && !MakeToOrder(all) && capacityKg > 0 {
		return math.Round(actualWeight / capacityKg), true
	}
	return 0, true
}

func shortage(line BatchMaterial, available float64) notify.Shortage {
	return notify.Shortage{
		SKUID:        line.SKUID,
		MaterialID:   line.MaterialID,
		MaterialName: line.MaterialName,
		RequiredQty:  line.RequiredQty,
		AvailableQty: available,
		Unit:         line.Unit,
	}
}

func (s *Service) releaseLines(ctx context.Context, lines []BatchMaterial, actorID int64) {
	for _, line := range lines {
		if line.SKUID == 0 {
			continue
		}
		if _, err := s.stock.Release(ctx, stock.ReleaseInput{SKUID: line.SKUID, Qty: line.RequiredQty, ActorID: actorID}); err != nil {
			s.logger.Error("releasing batch reservation failed",
				slog.Int64("sku_id", line.SKUID),
				slog.Any("error", err))
		}
	}
}

func (s *Service) raiseShortages(ctx context.Context, shortages []notify.Shortage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.CreateMaterialShortageNotifications(ctx, shortages); err != nil {
		s.logger.Warn("raising shortage notifications failed", slog.Any("error", err))
	}
}

func (s *Service) clearSiblingAlerts(ctx context.Context, materialID int64) {
	if s.notifier == nil {
		return
	}
	siblings, err := s.stock.Siblings(ctx, materialID)
	if err != nil {
		s.logger.Warn("listing siblings for alert clearing failed", slog.Any("error", err))
		return
	}
	for _, sib := range siblings {
		if err := s.notifier.ClearResolvedShortageAlerts(ctx, sib.ID, sib.Units.Available, sib.MinStockLevel); err != nil {
			s.logger.Warn("clearing sibling alerts failed", slog.Int64("sku_id", sib.ID), slog.Any("error", err))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, batchID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.EntityBatch,
		EntityID: strconv.FormatInt(batchID, 10),
		Meta:     meta,
	})
}

// batchRef derives a stable ledger reference for a batch.
func batchRef(batchID int64) string {
	id := strconv.FormatInt(batchID, 10)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("batch:"+id)).String()
}
