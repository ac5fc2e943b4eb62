package notify

import (
	"context"
	"log/slog"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RepositoryPort abstracts notification persistence.
type RepositoryPort interface {
	Upsert(ctx context.Context, n Notification) (Notification, error)
	ResolveForSKU(ctx context.Context, skuID int64) (int64, error)
	Resolve(ctx context.Context, id int64) error
	List(ctx context.Context, openOnly bool, limit int) ([]Notification, error)
}

// Dispatcher pushes a freshly created alert to the background queue for
// delivery (email, dashboard push). Nil dispatcher means store-only.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Service implements alert lifecycle.
type Service struct {
	repo       RepositoryPort
	dispatcher Dispatcher
	logger     *slog.Logger
	printer    *message.Printer
}

// NewService builds Service.
func NewService(repo RepositoryPort, dispatcher Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
		printer:    message.NewPrinter(language.English),
	}
}

// CreateMaterialShortageNotifications records one alert per missing material.
// Existing open alerts for the same SKU are refreshed, not duplicated.
func (s *Service) CreateMaterialShortageNotifications(ctx context.Context, shortages []Shortage) error {
	for _, shortage := range shortages {
		text := s.printer.Sprintf("%s short by %.2f %s: requires %.2f, available %.2f",
			shortage.MaterialName,
			shortage.RequiredQty-shortage.AvailableQty, shortage.Unit,
			shortage.RequiredQty, shortage.AvailableQty)
		created, err := s.repo.Upsert(ctx, Notification{
			SKUID:      shortage.SKUID,
			MaterialID: shortage.MaterialID,
			Kind:       KindMaterialShortage,
			Message:    text,
		})
		if err != nil {
			return err
		}
		s.dispatch(ctx, created)
	}
	return nil
}

// NotifyLowStock raises a low-stock alert when the level sits at or under the
// configured minimum.
func (s *Service) NotifyLowStock(ctx context.Context, skuID int64, name string, currentQty, threshold float64, unit string) error {
	if threshold <= 0 || currentQty > threshold {
		return nil
	}
	text := s.printer.Sprintf("%s low on stock: %.2f %s left, minimum %.2f", name, currentQty, unit, threshold)
	created, err := s.repo.Upsert(ctx, Notification{
		SKUID:   skuID,
		Kind:    KindLowStock,
		Message: text,
	})
	if err != nil {
		return err
	}
	s.dispatch(ctx, created)
	return nil
}

// ClearResolvedShortageAlerts resolves open alerts of a SKU once stock rises
// back above its threshold. Called by the stock engine after additions.
func (s *Service) ClearResolvedShortageAlerts(ctx context.Context, skuID int64, currentQty, threshold float64) error {
	if currentQty <= threshold {
		return nil
	}
	resolved, err := s.repo.ResolveForSKU(ctx, skuID)
	if err != nil {
		return err
	}
	if resolved > 0 {
		s.logger.Info("shortage alerts cleared",
			slog.Int64("sku_id", skuID),
			slog.Int64("count", resolved),
			slog.Float64("current_qty", currentQty))
	}
	return nil
}

// Resolve closes one alert by hand.
func (s *Service) Resolve(ctx context.Context, id int64) error {
	return s.repo.Resolve(ctx, id)
}

// List returns notifications newest first.
func (s *Service) List(ctx context.Context, openOnly bool, limit int) ([]Notification, error) {
	return s.repo.List(ctx, openOnly, limit)
}

func (s *Service) dispatch(ctx context.Context, n Notification) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		s.logger.Warn("notification dispatch failed", slog.Int64("notification_id", n.ID), slog.Any("error", err))
	}
}
