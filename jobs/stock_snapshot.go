package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chroma-erp/chroma-erp/internal/observability"
)

// LowStockNotifier raises a low-stock alert for one SKU.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, skuID int64, name string, currentQty, threshold float64, unit string) error
}

// StockSnapshotJob scans active SKUs against their minimum stock levels.
// Reservations count as gone: the check uses available minus reserved, so a
// SKU fully promised to running batches alerts before the units leave the
// shelf.
type StockSnapshotJob struct {
	Pool     *pgxpool.Pool
	Notifier LowStockNotifier
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// NewStockSnapshotJob initialises the snapshot handler.
func NewStockSnapshotJob(pool *pgxpool.Pool, notifier LowStockNotifier, logger *slog.Logger, metrics *observability.Metrics) *StockSnapshotJob {
	return &StockSnapshotJob{Pool: pool, Notifier: notifier, Logger: logger, Metrics: metrics}
}

type lowStockRow struct {
	SKUID     int64
	Name      string
	Net       float64
	Threshold float64
}

// Handle executes one snapshot run.
func (j *StockSnapshotJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("stock snapshot: handler not configured")
	}
	start := time.Now()
	tracker := j.Metrics.Track(TaskStockSnapshot)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	rows, err := j.Pool.Query(ctx, `
		SELECT id, name, available_qty - reserved_qty, min_stock_level
		FROM skus
		WHERE active AND min_stock_level > 0
		  AND available_qty - reserved_qty <= min_stock_level
		ORDER BY id`)
	if err != nil {
		resultErr = err
		logger.Error("snapshot query failed", slog.Any("error", err))
		return resultErr
	}
	defer rows.Close()

	var low []lowStockRow
	for rows.Next() {
		var r lowStockRow
		if err := rows.Scan(&r.SKUID, &r.Name, &r.Net, &r.Threshold); err != nil {
			resultErr = err
			return resultErr
		}
		low = append(low, r)
	}
	if err := rows.Err(); err != nil {
		resultErr = err
		return resultErr
	}

	raised := 0
	for _, r := range low {
		if j.Notifier == nil {
			break
		}
		if err := j.Notifier.NotifyLowStock(ctx, r.SKUID, r.Name, r.Net, r.Threshold, "units"); err != nil {
			logger.Warn("low stock alert failed", slog.Int64("sku_id", r.SKUID), slog.Any("error", err))
			continue
		}
		raised++
	}
	j.Metrics.SetLowStockSKUs(len(low))

	logger.Info("completed stock snapshot",
		slog.Int("low_skus", len(low)),
		slog.Int("alerts_raised", raised),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *StockSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskStockSnapshot))
}
