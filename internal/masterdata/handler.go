package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chroma-erp/chroma-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the catalog.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the masterdata handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/materials", h.listMaterials)
	r.Post("/materials", h.createMaterial)
	r.Get("/materials/{id}", h.getMaterial)
	r.Put("/materials/{id}", h.updateMaterial)
	r.Get("/materials/{id}/skus", h.listSKUs)
	r.Post("/materials/{id}/skus", h.createSKU)
	r.Get("/catalog/skus/{id}", h.getSKU)
	r.Put("/catalog/skus/{id}", h.updateSKU)
	r.Delete("/catalog/skus/{id}", h.deactivateSKU)
}

type materialRequest struct {
	Code          string  `json:"code" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	Type          string  `json:"type" validate:"required,oneof=RM PM FG"`
	Unit          string  `json:"unit" validate:"required"`
	Density       float64 `json:"density" validate:"gte=0"`
	MinStockLevel float64 `json:"min_stock_level" validate:"gte=0"`
}

type skuRequest struct {
	Code              string  `json:"code" validate:"required"`
	Name              string  `json:"name" validate:"required"`
	PackageCapacityKg float64 `json:"package_capacity_kg" validate:"gt=0"`
	MinStockLevel     float64 `json:"min_stock_level" validate:"gte=0"`
	Active            bool    `json:"active"`
}

func (h *Handler) listMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.service.ListMaterials(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, materials)
}

func (h *Handler) getMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	material, err := h.service.GetMaterial(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.service.CreateMaterial(r.Context(), Material{
		Code:          req.Code,
		Name:          req.Name,
		Type:          req.Type,
		Unit:          req.Unit,
		Density:       req.Density,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req materialRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.service.UpdateMaterial(r.Context(), id, Material{
		Code:          req.Code,
		Name:          req.Name,
		Type:          req.Type,
		Unit:          req.Unit,
		Density:       req.Density,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) listSKUs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	skus, err := h.service.ListSKUs(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, skus)
}

func (h *Handler) createSKU(w http.ResponseWriter, r *http.Request) {
	materialID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req skuRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.service.CreateSKU(r.Context(), SKUDefinition{
		MaterialID:        materialID,
		Code:              req.Code,
		Name:              req.Name,
		PackageCapacityKg: req.PackageCapacityKg,
		MinStockLevel:     req.MinStockLevel,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) getSKU(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sku, err := h.service.GetSKU(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sku)
}

func (h *Handler) updateSKU(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req skuRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.service.UpdateSKU(r.Context(), id, SKUDefinition{
		Code:              req.Code,
		Name:              req.Name,
		PackageCapacityKg: req.PackageCapacityKg,
		MinStockLevel:     req.MinStockLevel,
		Active:            req.Active,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) deactivateSKU(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateSKU(r.Context(), id); err != nil {
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
	case errors.Is(err, ErrMaterialNotFound), errors.Is(err, ErrSKUNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidMaterial), errors.Is(err, ErrInvalidSKU):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("masterdata request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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
