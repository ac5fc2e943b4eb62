// Package notify manages stock shortage alerts: creation when production or
// dispatch finds material missing, and clearing once replenishment brings the
// level back over its threshold.
package notify

import (
	"errors"
	"time"
)

// Alert kinds.
const (
	KindLowStock         = "LOW_STOCK"
	KindMaterialShortage = "MATERIAL_SHORTAGE"
)

// Notification is one open or resolved stock alert. At most one open alert
// exists per SKU and kind; repeated triggers refresh the existing row.
type Notification struct {
	ID         int64      `json:"id"`
	SKUID      int64      `json:"sku_id"`
	MaterialID int64      `json:"material_id,omitempty"`
	Kind       string     `json:"kind"`
	Message    string     `json:"message"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Shortage describes one missing material found during a stock check.
type Shortage struct {
	SKUID        int64
	MaterialID   int64
	MaterialName string
	RequiredQty  float64
	AvailableQty float64
	Unit         string
}

var ErrNotificationNotFound = errors.New("notify: notification not found")
