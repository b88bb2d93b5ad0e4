package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/order-platform/catalog-service/internal/catalog"
	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
	"github.com/vasiliy-maslov/order-platform/pkg/auth"
	"github.com/vasiliy-maslov/order-platform/pkg/httpx"
)

var errInvalidID = apperr.New(apperr.InvalidInput, "invalid id parameter")

type CreateProductRequest struct {
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Stock       int              `json:"stock" validate:"gte=0"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
}

// ProductResponse is the wire contract the order service's catalog client
// decodes.
type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ProductHandler struct {
	service  catalog.Service
	verifier auth.Verifier
}

func NewProductHandler(service catalog.Service, verifier auth.Verifier) *ProductHandler {
	return &ProductHandler{service: service, verifier: verifier}
}

// RegisterRoutes mounts every product route behind the auth gate. Mutations
// additionally require the admin role.
func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/products", func(r chi.Router) {
		r.Use(auth.Gate(h.verifier))

		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)

		r.Group(func(admin chi.Router) {
			admin.Use(auth.RequireRole(auth.RoleAdmin))
			admin.Post("/", h.handleCreate)
			admin.Put("/{id}", h.handleUpdate)
			admin.Delete("/{id}", h.handleDelete)
		})
	})
}

func (h *ProductHandler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("handler: failed to list products")
		httpx.RespondError(w, err)
		return
	}

	resp := make([]ProductResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toProductResponse(&items[i]))
	}
	httpx.RespondData(w, http.StatusOK, resp, "")
}

// handleGet treats an id that is not a UUID as an unknown product, so
// lookups only ever distinguish found from not found.
func (h *ProductHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, catalog.ErrNotFound)
		return
	}

	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondData(w, http.StatusOK, toProductResponse(item), "")
}

func (h *ProductHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !httpx.Decode(w, r, &req) {
		return
	}

	item, err := h.service.Create(r.Context(), catalog.CreateInput{
		Name:              req.Name,
		Description:       req.Description,
		UnitPrice:         *req.Price,
		AvailableQuantity: req.Stock,
	})
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("handler: failed to create product")
		httpx.RespondError(w, err)
		return
	}

	httpx.RespondData(w, http.StatusCreated, toProductResponse(item), "Product created successfully")
}

func (h *ProductHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateProductRequest
	if !httpx.Decode(w, r, &req) {
		return
	}

	item, err := h.service.Update(r.Context(), id, catalog.UpdateInput{
		Name:              req.Name,
		Description:       req.Description,
		UnitPrice:         req.Price,
		AvailableQuantity: req.Stock,
	})
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Stringer("product_id", id).Msg("handler: failed to update product")
		httpx.RespondError(w, err)
		return
	}

	httpx.RespondData(w, http.StatusOK, toProductResponse(item), "Product updated successfully")
}

func (h *ProductHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, httpx.Response[any]{Success: true, Message: "Product deleted successfully"})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.FromString(idParam)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("id", idParam).Msg("handler: failed to parse id parameter from URL")
		httpx.RespondError(w, errInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func toProductResponse(item *catalog.Item) ProductResponse {
	return ProductResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Price:       item.UnitPrice,
		Stock:       item.AvailableQuantity,
		CreatedAt:   item.CreatedAt,
	}
}
