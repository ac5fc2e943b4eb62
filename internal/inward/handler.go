package inward

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

// Handler wires HTTP endpoints for inward bills.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inward handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inward routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/inwards", h.list)
	r.Post("/inwards", h.create)
	r.Get("/inwards/{id}", h.get)
	r.Put("/inwards/{id}", h.update)
	r.Delete("/inwards/{id}", h.deleteOne)
	r.Delete("/bills", h.deleteBill)
}

type createRequest struct {
	SupplierID int64     `json:"supplier_id" validate:"required,gt=0"`
	BillNo     string    `json:"bill_no" validate:"required"`
	Date       time.Time `json:"date" validate:"required"`
	ActorID    int64     `json:"actor_id"`
	Lines      []struct {
		MaterialID   int64   `json:"material_id" validate:"required,gt=0"`
		MaterialType string  `json:"material_type" validate:"omitempty,oneof=RM PM FG"`
		SKUID        int64   `json:"sku_id"`
		Qty          float64 `json:"qty" validate:"gt=0"`
		UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

type updateRequest struct {
	MaterialID int64   `json:"material_id" validate:"required,gt=0"`
	SKUID      int64   `json:"sku_id"`
	Qty        float64 `json:"qty" validate:"gt=0"`
	UnitPrice  float64 `json:"unit_price" validate:"gte=0"`
	ActorID    int64   `json:"actor_id"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	materialID, _ := strconv.ParseInt(r.URL.Query().Get("material_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.List(r.Context(), materialID, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := CreateInput{
		SupplierID:     req.SupplierID,
		BillNo:         req.BillNo,
		Date:           req.Date,
		ActorID:        req.ActorID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, Line{
			MaterialID:   line.MaterialID,
			MaterialType: line.MaterialType,
			SKUID:        line.SKUID,
			Qty:          line.Qty,
			UnitPrice:    line.UnitPrice,
		})
	}
	entries, err := h.service.CreateInward(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entries)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.UpdateInward(r.Context(), id, UpdateInput{
		MaterialID: req.MaterialID,
		SKUID:      req.SKUID,
		Qty:        req.Qty,
		UnitPrice:  req.UnitPrice,
		ActorID:    req.ActorID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) deleteOne(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actorID, _ := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	if err := h.service.DeleteInward(r.Context(), id, actorID); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) deleteBill(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	date, err := time.Parse("2006-01-02", q.Get("date"))
	if q.Get("bill_no") == "" || supplierID <= 0 || err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "bill_no, supplier_id and date are required")
		return
	}
	actorID, _ := strconv.ParseInt(q.Get("actor_id"), 10, 64)
	key := BillKey{BillNo: q.Get("bill_no"), SupplierID: supplierID, Date: date}
	if err := h.service.DeleteBill(r.Context(), key, actorID); err != nil {
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
	case errors.Is(err, ErrInwardNotFound), errors.Is(err, stock.ErrSKUNotFound), errors.Is(err, stock.ErrMaterialNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStockToReverse):
		httpx.Problem(w, http.StatusBadRequest, "Insufficient Stock To Reverse", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusBadRequest, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrDuplicateReference):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidInward):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("inward request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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
