package presentation

import (
	"context"
	"net/http"
	"strconv"

	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/RaikyD/btc-content-shop/internal/presentation/helpers"
	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type CatalogService interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error)
	ListLocations(ctx context.Context) ([]domain.Location, error)
	AddCategory(ctx context.Context, name string) (domain.Category, error)
	AddProduct(ctx context.Context, categoryID int64, name, description string, price decimal.Decimal) (domain.Product, error)
	AddLocation(ctx context.Context, name string) (domain.Location, error)
	AddContent(ctx context.Context, locationID int64, payloads []string) (int, error)
	CountAvailable(ctx context.Context, locationID int64) (int, error)
}

type RateSource interface {
	Snapshot(ctx context.Context) domain.RateSnapshot
}

type CatalogHandler struct {
	svc        CatalogService
	rates      RateSource
	validate   *validatorv10.Validate
	isOperator func(int64) bool
}

func NewCatalogHandler(svc CatalogService, rates RateSource, v *validatorv10.Validate, isOperator func(int64) bool) *CatalogHandler {
	return &CatalogHandler{svc: svc, rates: rates, validate: v, isOperator: isOperator}
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/rate", h.GetRate)
	r.Get("/catalog/categories", h.ListCategories)
	r.Get("/catalog/categories/{id}/products", h.ListProducts)
	r.Get("/catalog/locations", h.ListLocations)

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireOperator(h.isOperator))
		r.Post("/categories", h.AddCategory)
		r.Post("/products", h.AddProduct)
		r.Post("/locations", h.AddLocation)
		r.Post("/locations/{id}/content", h.AddContent)
		r.Get("/locations/{id}/stock", h.Stock)
	})
}

func (h *CatalogHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, h.rates.Snapshot(r.Context()))
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, nonNil(cats))
}

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r)
	if !ok {
		return
	}
	products, err := h.svc.ListProducts(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, nonNil(products))
}

func (h *CatalogHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.svc.ListLocations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, nonNil(locs))
}

func (h *CatalogHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req addCategoryRequest
	if err := helpers.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}
	cat, err := h.svc.AddCategory(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, cat)
}

func (h *CatalogHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if err := helpers.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}
	p, err := h.svc.AddProduct(r.Context(), req.CategoryID, req.Name, req.Description, req.PriceFiat)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) AddLocation(w http.ResponseWriter, r *http.Request) {
	var req addLocationRequest
	if err := helpers.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}
	loc, err := h.svc.AddLocation(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, loc)
}

func (h *CatalogHandler) AddContent(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r)
	if !ok {
		return
	}
	var req addContentRequest
	if err := helpers.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}
	n, err := h.svc.AddContent(r.Context(), id, req.Payloads)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, map[string]any{"location_id": id, "added": n})
}

func (h *CatalogHandler) Stock(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r)
	if !ok {
		return
	}
	n, err := h.svc.CountAvailable(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"location_id": id, "available": n})
}

func int64Param(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		helpers.HttpError(w, http.StatusBadRequest, domain.ErrInvalidID.Error())
		return 0, false
	}
	return id, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
