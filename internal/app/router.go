package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/chroma-erp/chroma-erp/internal/inward"
	"github.com/chroma-erp/chroma-erp/internal/masterdata"
	"github.com/chroma-erp/chroma-erp/internal/notify"
	"github.com/chroma-erp/chroma-erp/internal/observability"
	"github.com/chroma-erp/chroma-erp/internal/production"
	"github.com/chroma-erp/chroma-erp/internal/stock"
	"github.com/chroma-erp/chroma-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	StockHandler      *stock.Handler
	MasterDataHandler *masterdata.Handler
	NotifyHandler     *notify.Handler
	ProductionHandler *production.Handler
	InwardHandler     *inward.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.StockHandler != nil {
		r.Route("/stock", params.StockHandler.MountRoutes)
	}
	if params.MasterDataHandler != nil {
		params.MasterDataHandler.MountRoutes(r)
	}
	if params.NotifyHandler != nil {
		params.NotifyHandler.MountRoutes(r)
	}
	if params.ProductionHandler != nil {
		params.ProductionHandler.MountRoutes(r)
	}
	if params.InwardHandler != nil {
		params.InwardHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
