package stock

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/chroma-erp/chroma-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSKU(ctx context.Context, skuID int64) (SKU, error)
	ListSiblings(ctx context.Context, materialID int64) ([]SKU, error)
	GetMaterial(ctx context.Context, materialID int64) (MasterMaterial, error)
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error
	ListLedger(ctx context.Context, skuID int64, limit int) ([]LedgerEntry, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NotifierPort clears shortage alerts once stock recovers. Fire-and-forget:
// failures are logged and never fail the stock update.
type NotifierPort interface {
	ClearResolvedShortageAlerts(ctx context.Context, skuID int64, currentQty, threshold float64) error
}

// Service is the reservation manager and availability calculator facade.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier NotifierPort
	cache    *Cache
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, notifier NotifierPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, cache: cache, logger: logger}
}

// ReserveInput describes a reservation request. WeightKg zero means the
// caller tracks units only.
type ReserveInput struct {
	SKUID    int64
	Qty      float64
	WeightKg float64
	ActorID  int64
}

// ReleaseInput mirrors ReserveInput for returning promised stock.
type ReleaseInput = ReserveInput

// MovementInput describes a deduction or addition with its ledger cause.
type MovementInput struct {
	SKUID    int64
	Qty      float64
	WeightKg float64
	Density  float64
	Type     TransactionType
	RefType  string
	RefID    string
	ActorID  int64
	Notes    string
}

// AdjustInput targets a master-level adjustment. Qty is signed.
type AdjustInput struct {
	Target  StockTarget
	Qty     float64
	Type    TransactionType
	RefType string
	RefID   string
	ActorID int64
	Notes   string
}

// ReservedTotals reports the reserved buckets after a reserve/release.
type ReservedTotals struct {
	SKUID            int64   `json:"sku_id"`
	ReservedQty      float64 `json:"reserved_qty"`
	ReservedWeightKg float64 `json:"reserved_weight_kg"`
}

// Reserve promises qty (and weight, when tracked) to an open order or batch.
// Available is untouched: consumption deducts it later.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (ReservedTotals, error) {
	if input.Qty <= 0 {
		return ReservedTotals{}, ErrInvalidQuantity
	}
	var totals ReservedTotals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sku, err := tx.GetSKUForUpdate(ctx, input.SKUID)
		if err != nil {
			return err
		}
		if err := sku.Units.Reserve(input.Qty); err != nil {
			return InsufficientError(sku.Name, input.Qty, sku.Units.Available, "units")
		}
		if input.WeightKg > 0 {
			if err := sku.Weight.Reserve(input.WeightKg); err != nil {
				return InsufficientError(sku.Name, input.WeightKg, sku.Weight.Available, "kg")
			}
		}
		if err := tx.UpdateSKUBalances(ctx, sku.ID, sku.Units, sku.Weight); err != nil {
			return err
		}
		totals = ReservedTotals{SKUID: sku.ID, ReservedQty: sku.Units.Reserved, ReservedWeightKg: sku.Weight.Reserved}
		return nil
	})
	if err != nil {
		return ReservedTotals{}, err
	}
	s.afterMutation(ctx, input.ActorID, "stock:reserve", input.SKUID, shared.MovementMeta(input.Qty, input.WeightKg, "", ""))
	return totals, nil
}

// Release returns reserved stock. It clamps at zero rather than erroring and
// logs a warning when the request exceeds what is reserved.
func (s *Service) Release(ctx context.Context, input ReleaseInput) (ReservedTotals, error) {
	if input.Qty < 0 || input.WeightKg < 0 {
		return ReservedTotals{}, ErrInvalidQuantity
	}
	var totals ReservedTotals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sku, err := tx.GetSKUForUpdate(ctx, input.SKUID)
		if err != nil {
			return err
		}
		if released := sku.Units.Release(input.Qty); released < input.Qty {
			s.logger.Warn("release exceeds reserved units, clamping",
				slog.Int64("sku_id", sku.ID),
				slog.Float64("requested", input.Qty),
				slog.Float64("released", released))
		}
		if input.WeightKg > 0 {
			if released := sku.Weight.Release(input.WeightKg); released < input.WeightKg {
				s.logger.Warn("release exceeds reserved weight, clamping",
					slog.Int64("sku_id", sku.ID),
					slog.Float64("requested_kg", input.WeightKg),
					slog.Float64("released_kg", released))
			}
		}
		if err := tx.UpdateSKUBalances(ctx, sku.ID, sku.Units, sku.Weight); err != nil {
			return err
		}
		totals = ReservedTotals{SKUID: sku.ID, ReservedQty: sku.Units.Reserved, ReservedWeightKg: sku.Weight.Reserved}
		return nil
	})
	if err != nil {
		return ReservedTotals{}, err
	}
	s.afterMutation(ctx, input.ActorID, "stock:release", input.SKUID, shared.MovementMeta(input.Qty, input.WeightKg, "", ""))
	return totals, nil
}

// Deduct consumes available stock for dispatch or production and appends a
// negative ledger entry after commit.
func (s *Service) Deduct(ctx context.Context, input MovementInput) (Availability, error) {
	if input.Qty <= 0 {
		return Availability{}, ErrInvalidQuantity
	}
	var (
		updated SKU
		before  float64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sku, err := tx.GetSKUForUpdate(ctx, input.SKUID)
		if err != nil {
			return err
		}
		before = sku.Units.Available
		if err := sku.Units.Deduct(input.Qty); err != nil {
			return InsufficientError(sku.Name, input.Qty, before, "units")
		}
		if input.WeightKg > 0 {
			if err := sku.Weight.Deduct(input.WeightKg); err != nil {
				return InsufficientError(sku.Name, input.WeightKg, sku.Weight.Available, "kg")
			}
		}
		if err := tx.UpdateSKUBalances(ctx, sku.ID, sku.Units, sku.Weight); err != nil {
			return err
		}
		updated = sku
		return nil
	})
	if err != nil {
		return Availability{}, err
	}
	s.appendLedger(ctx, LedgerEntry{
		SKUID:         updated.ID,
		Type:          input.Type,
		DeltaQty:      -input.Qty,
		DeltaWeightKg: -input.WeightKg,
		Density:       input.Density,
		BalanceBefore: before,
		BalanceAfter:  updated.Units.Available,
		RefType:       input.RefType,
		RefID:         input.RefID,
		ActorID:       input.ActorID,
		Notes:         input.Notes,
	})
	s.afterMutation(ctx, input.ActorID, "stock:deduct", updated.ID, shared.MovementMeta(input.Qty, input.WeightKg, input.RefType, input.RefID))
	return Summarise(updated), nil
}

// Add credits available stock (inward receipt, production output, return) and
// appends a positive ledger entry after commit. Shortage alerts that the new
// level resolves are cleared best-effort.
func (s *Service) Add(ctx context.Context, input MovementInput) (Availability, error) {
	if input.Qty <= 0 {
		return Availability{}, ErrInvalidQuantity
	}
	var (
		updated SKU
		before  float64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sku, err := tx.GetSKUForUpdate(ctx, input.SKUID)
		if err != nil {
			return err
		}
		before = sku.Units.Available
		if err := sku.Units.Add(input.Qty); err != nil {
			return err
		}
		if input.WeightKg > 0 {
			if err := sku.Weight.Add(input.WeightKg); err != nil {
				return err
			}
		}
		if err := tx.UpdateSKUBalances(ctx, sku.ID, sku.Units, sku.Weight); err != nil {
			return err
		}
		updated = sku
		return nil
	})
	if err != nil {
		return Availability{}, err
	}
	s.appendLedger(ctx, LedgerEntry{
		SKUID:         updated.ID,
		Type:          input.Type,
		DeltaQty:      input.Qty,
		DeltaWeightKg: input.WeightKg,
		Density:       input.Density,
		BalanceBefore: before,
		BalanceAfter:  updated.Units.Available,
		RefType:       input.RefType,
		RefID:         input.RefID,
		ActorID:       input.ActorID,
		Notes:         input.Notes,
	})
	s.clearAlerts(ctx, updated.ID, updated.Units.Available, updated.MinStockLevel)
	s.afterMutation(ctx, input.ActorID, "stock:add", updated.ID, shared.MovementMeta(input.Qty, input.WeightKg, input.RefType, input.RefID))
	return Summarise(updated), nil
}

// AdjustMasterStock applies a signed quantity delta to a stock target. Raw
// and packaging materials mutate the master row; the ledger entry anchors on
// the material's anchor SKU so every movement has a SKU reference. Finished
// goods resolve to the specific SKU supplied by the caller.
func (s *Service) AdjustMasterStock(ctx context.Context, input AdjustInput) error {
	switch target := input.Target.(type) {
	case SKUTarget:
		return s.adjustSKU(ctx, target.SKUID, input)
	case RMTarget:
		return s.adjustMaterial(ctx, target.MaterialID, input)
	case PMTarget:
		return s.adjustMaterial(ctx, target.MaterialID, input)
	default:
		return fmt.Errorf("stock: unknown stock target %T", input.Target)
	}
}

// adjustSKU derives the weight delta from an unlocked capacity read; a
// concurrent catalog edit to package_capacity_kg can leave the weight at the
// pre-edit value. The quantity checks still run under the row lock inside
// Add and Deduct.
func (s *Service) adjustSKU(ctx context.Context, skuID int64, input AdjustInput) error {
	sku, err := s.repo.GetSKU(ctx, skuID)
	if err != nil {
		return err
	}
	movement := MovementInput{
		SKUID:    skuID,
		Qty:      input.Qty,
		WeightKg: input.Qty * sku.PackageCapacity,
		Type:     input.Type,
		RefType:  input.RefType,
		RefID:    input.RefID,
		ActorID:  input.ActorID,
		Notes:    input.Notes,
	}
	if input.Qty >= 0 {
		_, err = s.Add(ctx, movement)
		return err
	}
	movement.Qty = -input.Qty
	movement.WeightKg = -movement.WeightKg
	_, err = s.Deduct(ctx, movement)
	return err
}

func (s *Service) adjustMaterial(ctx context.Context, materialID int64, input AdjustInput) error {
	var (
		anchor   SKU
		material MasterMaterial
		newQty   float64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		material, err = tx.GetMaterialForUpdate(ctx, materialID)
		if err != nil {
			return err
		}
		if input.Qty < 0 && material.AvailableQty < -input.Qty {
			return InsufficientError(material.Name, -input.Qty, material.AvailableQty, material.Unit)
		}
		newQty, err = tx.ApplyMaterialDelta(ctx, materialID, input.Qty)
		if err != nil {
			return err
		}
		anchor, err = tx.AnchorSKU(ctx, materialID)
		return err
	})
	if err != nil {
		return err
	}
	s.appendLedger(ctx, LedgerEntry{
		SKUID:         anchor.ID,
		Type:          input.Type,
		DeltaQty:      input.Qty,
		BalanceBefore: material.AvailableQty,
		BalanceAfter:  newQty,
		RefType:       input.RefType,
		RefID:         input.RefID,
		ActorID:       input.ActorID,
		Notes:         input.Notes,
	})
	if input.Qty > 0 {
		s.clearAlerts(ctx, anchor.ID, newQty, material.MinStockLevel)
	}
	s.afterMutation(ctx, input.ActorID, "stock:adjust_master", anchor.ID, map[string]any{"material_id": materialID, "qty": input.Qty})
	return nil
}

// EnsureAnchorSKU provisions the zero-capacity anchor SKU for a raw or
// packaging material. Idempotent: an existing anchor is returned as is.
func (s *Service) EnsureAnchorSKU(ctx context.Context, materialID int64) (SKU, error) {
	var anchor SKU
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		anchor, err = tx.AnchorSKU(ctx, materialID)
		return err
	})
	if err != nil {
		return SKU{}, err
	}
	return anchor, nil
}

// GetAvailability returns the availability snapshot of one SKU. Reads are
// cached and concurrent lookups for the same SKU are coalesced.
func (s *Service) GetAvailability(ctx context.Context, skuID int64) (Availability, error) {
	key := "stock:availability:" + strconv.FormatInt(skuID, 10)
	value, err, _ := s.group.Do(key, func() (any, error) {
		cacheKey, err := s.cache.BuildKey(ctx, "stock", "availability", strconv.FormatInt(skuID, 10))
		if err != nil {
			return nil, err
		}
		var avail Availability
		err = s.cache.FetchJSON(ctx, cacheKey, &avail, func(ctx context.Context) (any, error) {
			sku, err := s.repo.GetSKU(ctx, skuID)
			if err != nil {
				return nil, err
			}
			return Summarise(sku), nil
		})
		return avail, err
	})
	if err != nil {
		return Availability{}, err
	}
	return value.(Availability), nil
}

// CheckFulfillment classifies whether requiredKg can ship from the SKU now,
// offering sibling package sizes on a partial cover.
func (s *Service) CheckFulfillment(ctx context.Context, skuID int64, requiredKg float64) (Fulfillment, error) {
	if requiredKg <= 0 {
		return Fulfillment{}, ErrInvalidQuantity
	}
	sku, err := s.repo.GetSKU(ctx, skuID)
	if err != nil {
		return Fulfillment{}, err
	}
	siblings, err := s.repo.ListSiblings(ctx, sku.MasterMaterialID)
	if err != nil {
		return Fulfillment{}, err
	}
	return CheckFulfillment(sku, requiredKg, siblings), nil
}

// GetMaterial returns one master material record.
func (s *Service) GetMaterial(ctx context.Context, materialID int64) (MasterMaterial, error) {
	return s.repo.GetMaterial(ctx, materialID)
}

// Siblings lists the active SKUs of one master material.
func (s *Service) Siblings(ctx context.Context, materialID int64) ([]SKU, error) {
	return s.repo.ListSiblings(ctx, materialID)
}

// Ledger lists recent ledger entries for one SKU.
func (s *Service) Ledger(ctx context.Context, skuID int64, limit int) ([]LedgerEntry, error) {
	return s.repo.ListLedger(ctx, skuID, limit)
}

// appendLedger writes the audit movement after the stock transaction has
// committed. The stock record is authoritative; a ledger failure is logged
// and swallowed.
func (s *Service) appendLedger(ctx context.Context, entry LedgerEntry) {
	if err := s.repo.InsertLedgerEntry(ctx, entry); err != nil {
		s.logger.Error("ledger append failed",
			slog.Int64("sku_id", entry.SKUID),
			slog.String("tx_type", string(entry.Type)),
			slog.Any("error", err))
	}
}

func (s *Service) clearAlerts(ctx context.Context, skuID int64, currentQty, threshold float64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ClearResolvedShortageAlerts(ctx, skuID, currentQty, threshold); err != nil {
		s.logger.Warn("clear shortage alerts failed", slog.Int64("sku_id", skuID), slog.Any("error", err))
	}
}

func (s *Service) afterMutation(ctx context.Context, actorID int64, action string, skuID int64, meta map[string]any) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("availability cache bump failed", slog.Any("error", err))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   shared.EntitySKU,
			EntityID: strconv.FormatInt(skuID, 10),
			Meta:     meta,
		})
	}
}
