// Package stock implements the weight-aware inventory engine: stock records
// for SKUs and master materials, the reservation primitives that move
// quantity and weight between available and reserved buckets, the append-only
// inventory ledger and the read-only availability calculator.
package stock

import (
	"errors"
	"fmt"
	"time"
)

// MaterialType classifies a master material.
type MaterialType string

const (
	// MaterialRaw is a raw material consumed by production.
	MaterialRaw MaterialType = "RM"
	// MaterialPackaging is a packaging material consumed by production.
	MaterialPackaging MaterialType = "PM"
	// MaterialFinished is a finished-good family stocked through its SKUs.
	MaterialFinished MaterialType = "FG"
)

// TransactionType enumerates ledger movement causes.
type TransactionType string

const (
	TransactionInward                TransactionType = "INWARD"
	TransactionProductionOutput      TransactionType = "PRODUCTION_OUTPUT"
	TransactionProductionConsumption TransactionType = "PRODUCTION_CONSUMPTION"
	TransactionOrderConsumption      TransactionType = "ORDER_CONSUMPTION"
	TransactionReturn                TransactionType = "RETURN"
)

// SKU is a sellable package size of a finished good, or the ledger anchor row
// of an RM/PM material. Quantities are discrete units; weights are kilograms.
type SKU struct {
	ID               int64
	MasterMaterialID int64
	Name             string
	PackageCapacity  float64
	Units            Balance
	Weight           Balance
	MinStockLevel    float64
	Active           bool
	UpdatedAt        time.Time
}

// MasterMaterial is the aggregate material record. RM/PM track stock directly
// in AvailableQty; FG stocks through SKUs and keeps AvailableQty at zero.
type MasterMaterial struct {
	ID            int64
	Name          string
	Type          MaterialType
	Unit          string
	AvailableQty  float64
	MinStockLevel float64
}

// LedgerEntry is one immutable stock movement with before/after balances.
type LedgerEntry struct {
	ID            int64
	SKUID         int64
	Type          TransactionType
	DeltaQty      float64
	DeltaWeightKg float64
	Density       float64
	BalanceBefore float64
	BalanceAfter  float64
	RefType       string
	RefID         string
	ActorID       int64
	Notes         string
	CreatedAt     time.Time
}

// StockTarget identifies where a master-level stock adjustment lands. The set
// is closed: raw and packaging materials adjust the master row, finished
// goods adjust a specific SKU.
type StockTarget interface {
	isStockTarget()
}

// RMTarget adjusts a raw material's master stock.
type RMTarget struct{ MaterialID int64 }

// PMTarget adjusts a packaging material's master stock.
type PMTarget struct{ MaterialID int64 }

// SKUTarget adjusts a finished-good SKU directly.
type SKUTarget struct{ SKUID int64 }

func (RMTarget) isStockTarget()  {}
func (PMTarget) isStockTarget()  {}
func (SKUTarget) isStockTarget() {}

// Sentinel errors surfaced by the engine. Wrapped messages always carry the
// material name plus the required and available amounts so operators know
// exactly what to act on.
var (
	ErrSKUNotFound       = errors.New("stock: sku not found")
	ErrMaterialNotFound  = errors.New("stock: master material not found")
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	ErrInvalidQuantity   = errors.New("stock: quantity must be positive")
)

// InsufficientError builds the operator-facing insufficient stock failure.
func InsufficientError(name string, required, available float64, unit string) error {
	return fmt.Errorf("%w: %s requires %.2f %s, available %.2f %s", ErrInsufficientStock, name, required, unit, available, unit)
}
