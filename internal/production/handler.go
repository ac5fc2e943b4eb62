package production

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chroma-erp/chroma-erp/internal/platform/httpx"
	"github.com/chroma-erp/chroma-erp/internal/stock"
)

// Handler wires HTTP endpoints for batches.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers batch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/batches", h.list)
	r.Post("/batches", h.schedule)
	r.Get("/batches/{id}", h.get)
	r.Post("/batches/{id}/start", h.start)
	r.Post("/batches/{id}/cancel", h.cancel)
	r.Post("/batches/{id}/complete", h.complete)
}

type scheduleRequest struct {
	MaterialID   int64     `json:"material_id" validate:"required,gt=0"`
	PlannedQty   float64   `json:"planned_qty" validate:"gt=0"`
	Density      float64   `json:"density" validate:"gt=0"`
	ScheduledFor time.Time `json:"scheduled_for" validate:"required"`
	SupervisorID int64     `json:"supervisor_id"`
	Materials    []struct {
		MaterialID  int64   `json:"material_id" validate:"required,gt=0"`
		SKUID       int64   `json:"sku_id"`
		RequiredQty float64 `json:"required_qty" validate:"gt=0"`
	} `json:"materials" validate:"dive"`
	Products []struct {
		SKUID        int64   `json:"sku_id" validate:"required,gt=0"`
		OrderID      int64   `json:"order_id"`
		PlannedUnits float64 `json:"planned_units" validate:"gte=0"`
	} `json:"products" validate:"required,min=1,dive"`
}

type completeRequest struct {
	ActualQty     float64           `json:"actual_qty" validate:"gt=0"`
	ActualDensity float64           `json:"actual_density" validate:"gt=0"`
	ActualMinutes int               `json:"actual_minutes" validate:"gte=0"`
	ActorID       int64             `json:"actor_id"`
	ConsumedQty   map[int64]float64 `json:"consumed_qty"`
	ProducedUnits map[int64]float64 `json:"produced_units"`
}

type actorRequest struct {
	ActorID int64 `json:"actor_id"`
}

type batchResponse struct {
	Batch     Batch           `json:"batch"`
	Materials []BatchMaterial `json:"materials"`
	Products  []BatchProduct  `json:"products"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	batches, err := h.service.List(r.Context(), BatchStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	batch, materials, products, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batchResponse{Batch: batch, Materials: materials, Products: products})
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := ScheduleInput{
		MaterialID:   req.MaterialID,
		PlannedQty:   req.PlannedQty,
		Density:      req.Density,
		ScheduledFor: req.ScheduledFor,
		SupervisorID: req.SupervisorID,
	}
	for _, m := range req.Materials {
		input.Materials = append(input.Materials, BatchMaterial{MaterialID: m.MaterialID, SKUID: m.SKUID, RequiredQty: m.RequiredQty})
	}
	for _, p := range req.Products {
		input.Products = append(input.Products, BatchProduct{SKUID: p.SKUID, OrderID: p.OrderID, PlannedUnits: p.PlannedUnits})
	}
	batch, err := h.service.Schedule(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req actorRequest
	_ = httpx.DecodeJSON(r, &req)
	if err := h.service.Start(r.Context(), id, req.ActorID); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req actorRequest
	_ = httpx.DecodeJSON(r, &req)
	if err := h.service.Cancel(r.Context(), id, req.ActorID); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if !h.decode(w, r, &req) {
		return
	}
	batch, err := h.service.Complete(r.Context(), CompleteInput{
		BatchID:       id,
		ActualQty:     req.ActualQty,
		ActualDensity: req.ActualDensity,
		ActualMinutes: req.ActualMinutes,
		ActorID:       req.ActorID,
		ConsumedQty:   req.ConsumedQty,
		ProducedUnits: req.ProducedUnits,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBatchNotFound), errors.Is(err, stock.ErrSKUNotFound), errors.Is(err, stock.ErrMaterialNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientMaterial), errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusBadRequest, "Insufficient Material", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrInvalidBatch):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("production request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
