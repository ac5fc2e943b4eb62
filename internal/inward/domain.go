// Package inward records received goods against bills and keeps stock and
// bill lines consistent: every edit or deletion is validated against current
// stock before any reversal is applied.
package inward

import (
	"errors"
	"time"
)

// Entry is one received-goods line. SKUID is set for finished-good receipts;
// raw and packaging receipts target the master material directly.
type Entry struct {
	ID           int64     `json:"id"`
	MaterialID   int64     `json:"material_id"`
	MaterialName string    `json:"material_name,omitempty"`
	MaterialType string    `json:"material_type,omitempty"`
	SKUID        int64     `json:"sku_id,omitempty"`
	SKUName      string    `json:"sku_name,omitempty"`
	SupplierID   int64     `json:"supplier_id"`
	SupplierName string    `json:"supplier_name,omitempty"`
	BillNo       string    `json:"bill_no"`
	Date         time.Time `json:"date"`
	Qty          float64   `json:"qty"`
	UnitPrice    float64   `json:"unit_price"`
	TotalCost    float64   `json:"total_cost"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BillKey identifies all lines of one bill.
type BillKey struct {
	BillNo     string
	SupplierID int64
	Date       time.Time
}

var (
	ErrInwardNotFound             = errors.New("inward: entry not found")
	ErrInsufficientStockToReverse = errors.New("inward: insufficient stock to reverse")
	ErrDuplicateReference         = errors.New("inward: duplicate bill reference")
	ErrInvalidInward              = errors.New("inward: invalid entry")
)
