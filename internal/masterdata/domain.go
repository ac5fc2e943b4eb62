// Package masterdata manages the material and SKU catalog: raw materials,
// packaging materials and finished goods, plus the package-size SKU
// definitions sold under each finished good.
package masterdata

import (
	"errors"
	"time"
)

// Material type codes.
const (
	TypeRaw       = "RM"
	TypePackaging = "PM"
	TypeFinished  = "FG"
)

// Material is a master catalog row. AvailableQty is maintained by the stock
// engine; masterdata only reads it for display.
type Material struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Unit          string    `json:"unit"`
	Density       float64   `json:"density,omitempty"`
	MinStockLevel float64   `json:"min_stock_level"`
	AvailableQty  float64   `json:"available_qty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SKUDefinition is a sellable package size of a finished good.
type SKUDefinition struct {
	ID                int64     `json:"id"`
	MaterialID        int64     `json:"material_id"`
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	PackageCapacityKg float64   `json:"package_capacity_kg"`
	MinStockLevel     float64   `json:"min_stock_level"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

var (
	ErrMaterialNotFound = errors.New("masterdata: material not found")
	ErrSKUNotFound      = errors.New("masterdata: sku not found")
	ErrDuplicateCode    = errors.New("masterdata: code already exists")
	ErrInvalidMaterial  = errors.New("masterdata: invalid material")
	ErrInvalidSKU       = errors.New("masterdata: invalid sku")
)

// ValidTypes lists the accepted material type codes.
func ValidTypes() []string {
	return []string{TypeRaw, TypePackaging, TypeFinished}
}

func validType(t string) bool {
	switch t {
	case TypeRaw, TypePackaging, TypeFinished:
		return true
	}
	return false
}
