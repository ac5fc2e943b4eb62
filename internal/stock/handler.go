package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chroma-erp/chroma-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock engine.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/skus/{id}/availability", h.handleAvailability)
	r.Get("/skus/{id}/fulfillment", h.handleFulfillment)
	r.Get("/skus/{id}/ledger", h.handleLedger)
	r.Post("/skus/{id}/reserve", h.handleReserve)
	r.Post("/skus/{id}/release", h.handleRelease)
	r.Post("/skus/{id}/deduct", h.handleDeduct)
	r.Post("/skus/{id}/add", h.handleAdd)
	r.Post("/adjustments", h.handleAdjust)
}

type reserveRequest struct {
	Qty      float64 `json:"qty" validate:"gt=0"`
	WeightKg float64 `json:"weight_kg" validate:"gte=0"`
	ActorID  int64   `json:"actor_id"`
}

type movementRequest struct {
	Qty      float64 `json:"qty" validate:"gt=0"`
	WeightKg float64 `json:"weight_kg" validate:"gte=0"`
	Density  float64 `json:"density" validate:"gte=0"`
	Type     string  `json:"type" validate:"omitempty,oneof=INWARD PRODUCTION_OUTPUT PRODUCTION_CONSUMPTION ORDER_CONSUMPTION RETURN"`
	RefType  string  `json:"ref_type"`
	RefID    string  `json:"ref_id"`
	ActorID  int64   `json:"actor_id"`
	Notes    string  `json:"notes"`
}

type adjustRequest struct {
	TargetType string  `json:"target_type" validate:"required,oneof=RM PM SKU"`
	MaterialID int64   `json:"material_id" validate:"required_unless=TargetType SKU"`
	SKUID      int64   `json:"sku_id" validate:"required_if=TargetType SKU"`
	Qty        float64 `json:"qty" validate:"required"`
	Type       string  `json:"type" validate:"omitempty,oneof=INWARD PRODUCTION_OUTPUT PRODUCTION_CONSUMPTION ORDER_CONSUMPTION RETURN"`
	RefType    string  `json:"ref_type"`
	RefID      string  `json:"ref_id"`
	ActorID    int64   `json:"actor_id"`
	Notes      string  `json:"notes"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	skuID, ok := pathID(w, r)
	if !ok {
		return
	}
	avail, err := h.service.GetAvailability(r.Context(), skuID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, avail)
}

func (h *Handler) handleFulfillment(w http.ResponseWriter, r *http.Request) {
	skuID, ok := pathID(w, r)
	if !ok {
		return
	}
	requiredKg, err := strconv.ParseFloat(r.URL.Query().Get("required_kg"), 64)
	if err != nil || requiredKg <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "required_kg must be a positive number")
		return
	}
	result, err := h.service.CheckFulfillment(r.Context(), skuID, requiredKg)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	skuID, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.Ledger(r.Context(), skuID, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	skuID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reserveRequest
	if !h.decode(w, r, &req) {
		return
	}
	totals, err := h.service.Reserve(r.Context(), ReserveInput{SKUID: skuID, Qty: req.Qty, WeightKg: req.WeightKg, ActorID: req.ActorID})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	skuID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reserveRequest
	if !h.decode(w, r, &req) {
		return
	}
	totals, err := h.service.Release(r.Context(), ReleaseInput{SKUID: skuID, Qty: req.Qty, WeightKg: req.WeightKg, ActorID: req.ActorID})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) handleDeduct(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, func(input MovementInput) (Availability, error) {
		if input.Type == "" {
			input.Type = TransactionOrderConsumption
		}
		return h.service.Deduct(r.Context(), input)
	})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, func(input MovementInput) (Availability, error) {
		if input.Type == "" {
			input.Type = TransactionInward
		}
		return h.service.Add(r.Context(), input)
	})
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request, apply func(MovementInput) (Availability, error)) {
	skuID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if !h.decode(w, r, &req) {
		return
	}
	avail, err := apply(MovementInput{
		SKUID:    skuID,
		Qty:      req.Qty,
		WeightKg: req.WeightKg,
		Density:  req.Density,
		Type:     TransactionType(req.Type),
		RefType:  req.RefType,
		RefID:    req.RefID,
		ActorID:  req.ActorID,
		Notes:    req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, avail)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	var target StockTarget
	switch req.TargetType {
	case "RM":
		target = RMTarget{MaterialID: req.MaterialID}
	case "PM":
		target = PMTarget{MaterialID: req.MaterialID}
	case "SKU":
		target = SKUTarget{SKUID: req.SKUID}
	}
	err := h.service.AdjustMasterStock(r.Context(), AdjustInput{
		Target:  target,
		Qty:     req.Qty,
		Type:    TransactionType(req.Type),
		RefType: req.RefType,
		RefID:   req.RefID,
		ActorID: req.ActorID,
		Notes:   req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
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
	case errors.Is(err, ErrSKUNotFound), errors.Is(err, ErrMaterialNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusBadRequest, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("stock request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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
