// Package production runs the batch lifecycle: scheduling, material
// reservation at start, and the completion algorithm that consumes inputs and
// distributes produced weight across finished-good SKUs.
package production

import (
	"errors"
	"fmt"
	"time"
)

// BatchStatus is the batch state machine position.
type BatchStatus string

const (
	StatusScheduled  BatchStatus = "SCHEDULED"
	StatusInProgress BatchStatus = "IN_PROGRESS"
	StatusCompleted  BatchStatus = "COMPLETED"
	StatusCancelled  BatchStatus = "CANCELLED"
)

// Batch is one scheduled unit of manufacturing.
type Batch struct {
	ID             int64       `json:"id"`
	MaterialID     int64       `json:"material_id"`
	MaterialName   string      `json:"material_name,omitempty"`
	PlannedQty     float64     `json:"planned_qty"`
	Density        float64     `json:"density"`
	ScheduledFor   time.Time   `json:"scheduled_for"`
	SupervisorID   int64       `json:"supervisor_id"`
	Status         BatchStatus `json:"status"`
	ActualQty      float64     `json:"actual_qty,omitempty"`
	ActualDensity  float64     `json:"actual_density,omitempty"`
	ActualWeightKg float64     `json:"actual_weight_kg,omitempty"`
	ActualMinutes  int         `json:"actual_minutes,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// BatchMaterial is one planned consumption line. SKUID is set on legacy lines
// that consume a specific SKU instead of a master material.
type BatchMaterial struct {
	ID           int64   `json:"id"`
	BatchID      int64   `json:"batch_id"`
	MaterialID   int64   `json:"material_id"`
	MaterialType string  `json:"material_type"`
	MaterialName string  `json:"material_name,omitempty"`
	SKUID        int64   `json:"sku_id,omitempty"`
	Unit         string  `json:"unit"`
	RequiredQty  float64 `json:"required_qty"`
	ActualQty    float64 `json:"actual_qty,omitempty"`
	Variance     float64 `json:"variance,omitempty"`
}

// BatchProduct is one planned output line. OrderID links a make-to-order
// line; zero means make-to-stock.
type BatchProduct struct {
	ID               int64   `json:"id"`
	BatchID          int64   `json:"batch_id"`
	SKUID            int64   `json:"sku_id"`
	OrderID          int64   `json:"order_id,omitempty"`
	PlannedUnits     float64 `json:"planned_units"`
	ProducedUnits    float64 `json:"produced_units"`
	ProducedWeightKg float64 `json:"produced_weight_kg"`
	Fulfilled        bool    `json:"fulfilled"`
}

var (
	ErrBatchNotFound        = errors.New("production: batch not found")
	ErrInvalidTransition    = errors.New("production: invalid status transition")
	ErrInsufficientMaterial = errors.New("production: insufficient material")
	ErrInvalidBatch         = errors.New("production: invalid batch")
)

// MaterialShortageError reports which input is missing and by how much.
func MaterialShortageError(name string, required, available float64, unit string) error {
	return fmt.Errorf("%w: %s requires %.2f %s, available %.2f %s", ErrInsufficientMaterial, name, required, unit, available, unit)
}

// ActualWeightKg is the weight law: produced weight is quantity times
// density, exactly.
func ActualWeightKg(quantity, density float64) float64 {
	return quantity * density
}

// MakeToOrder reports whether any output line references a customer order.
func MakeToOrder(products []BatchProduct) bool {
	for _, p := range products {
		if p.OrderID != 0 {
			return true
		}
	}
	return false
}
