// Package jobs runs the background side of the stock engine: alert delivery,
// the low-stock snapshot and housekeeping crons, all on Asynq queues.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/chroma-erp/chroma-erp/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDispatchNotification delivers a stock alert to its channels.
	TaskDispatchNotification = "notify:dispatch"
	// TaskStockSnapshot scans SKUs against their minimum stock levels.
	TaskStockSnapshot = "stock:snapshot"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// DispatchPayload carries one alert to the delivery handler.
type DispatchPayload struct {
	NotificationID int64  `json:"notification_id"`
	SKUID          int64  `json:"sku_id"`
	Kind           string `json:"kind"`
	Message        string `json:"message"`
}

// NewDispatchTask constructs the delivery task for an alert.
func NewDispatchTask(n notify.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(DispatchPayload{
		NotificationID: n.ID,
		SKUID:          n.SKUID,
		Kind:           n.Kind,
		Message:        n.Message,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDispatchNotification, data), nil
}

// NewStockSnapshotTask constructs the cron snapshot task.
func NewStockSnapshotTask() *asynq.Task {
	return asynq.NewTask(TaskStockSnapshot, nil)
}

// NewIdempotencyCleanupTask constructs the cron cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// DispatchHandler builds the handler that delivers alerts. Delivery is a
// structured log line today; the handler is where mail or webhook fan-out
// would plug in.
func DispatchHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DispatchPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		log := logger
		if log == nil {
			log = slog.Default()
		}
		log.Info("stock alert",
			slog.Int64("notification_id", payload.NotificationID),
			slog.Int64("sku_id", payload.SKUID),
			slog.String("kind", payload.Kind),
			slog.String("message", payload.Message),
		)
		return nil
	}
}
