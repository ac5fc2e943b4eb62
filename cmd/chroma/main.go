package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/chroma-erp/chroma-erp/internal/app"
	"github.com/chroma-erp/chroma-erp/internal/inward"
	"github.com/chroma-erp/chroma-erp/internal/masterdata"
	"github.com/chroma-erp/chroma-erp/internal/notify"
	"github.com/chroma-erp/chroma-erp/internal/observability"
	"github.com/chroma-erp/chroma-erp/internal/platform/cache"
	"github.com/chroma-erp/chroma-erp/internal/platform/db"
	"github.com/chroma-erp/chroma-erp/internal/production"
	"github.com/chroma-erp/chroma-erp/internal/shared"
	"github.com/chroma-erp/chroma-erp/internal/stock"
	"github.com/chroma-erp/chroma-erp/jobs"
)

// anchorAdapter narrows the stock service to the catalog's anchor port.
type anchorAdapter struct {
	svc *stock.Service
}

func (a anchorAdapter) EnsureAnchorSKU(ctx context.Context, materialID int64) (int64, error) {
	sku, err := a.svc.EnsureAnchorSKU(ctx, materialID)
	if err != nil {
		return 0, err
	}
	return sku.ID, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, availability cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	dispatcher := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	notifyRepo := notify.NewRepository(pool)
	notifyService := notify.NewService(notifyRepo, dispatcher, logger)
	notifyHandler := notify.NewHandler(logger, notifyService)

	stockRepo := stock.NewRepository(pool)
	stockCache := stock.NewCache(redisClient, cfg.CacheTTL)
	stockService := stock.NewService(stockRepo, auditLogger, notifyService, stockCache, logger)
	stockHandler := stock.NewHandler(logger, stockService)

	masterdataService := masterdata.NewService(masterdata.NewRepository(pool), anchorAdapter{svc: stockService}, logger)
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	productionService := production.NewService(production.NewRepository(pool), stockService, notifyService, auditLogger, logger)
	productionHandler := production.NewHandler(logger, productionService)

	inwardService := inward.NewService(inward.NewRepository(pool), stockService, stockRepo, idempotencyStore, auditLogger, logger)
	inwardHandler := inward.NewHandler(logger, inwardService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		StockHandler:      stockHandler,
		MasterDataHandler: masterdataHandler,
		NotifyHandler:     notifyHandler,
		ProductionHandler: productionHandler,
		InwardHandler:     inwardHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
