// Package shared holds cross-module infrastructure: audit logging and
// idempotency keys.
package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audited entity kinds. Every module writes one of these so the trail can be
// filtered by entity without knowing module internals.
const (
	EntitySKU    = "sku"
	EntityBatch  = "production_batch"
	EntityInward = "inward"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// MovementMeta shapes the metadata for a stock-affecting action. All modules
// use the same keys so movements stay queryable across the trail. Zero weight
// and empty references are omitted.
func MovementMeta(qty, weightKg float64, refType, refID string) map[string]any {
	meta := map[string]any{"qty": qty}
	if weightKg != 0 {
		meta["weight_kg"] = weightKg
	}
	if refID != "" {
		meta["ref_type"] = refType
		meta["ref_id"] = refID
	}
	return meta
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}
