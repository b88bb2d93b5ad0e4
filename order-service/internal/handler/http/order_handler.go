package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/order-platform/order-service/internal/idempotency"
	"github.com/vasiliy-maslov/order-platform/order-service/internal/order"
	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
	"github.com/vasiliy-maslov/order-platform/pkg/auth"
	"github.com/vasiliy-maslov/order-platform/pkg/httpx"
)

const IdempotencyKeyHeader = "Idempotency-Key"

var (
	errInvalidID         = apperr.New(apperr.InvalidInput, "invalid id parameter")
	errMissingPrincipal  = apperr.New(apperr.Unauthorized, "invalid or expired token")
	errInvalidIdempotent = apperr.New(apperr.InvalidInput, "idempotency key must be at most 255 characters")
)

type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type CreateOrderRequest struct {
	Items []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderItemResponse struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderResponse struct {
	ID        uuid.UUID           `json:"id"`
	UserID    uuid.UUID           `json:"user_id"`
	Items     []OrderItemResponse `json:"items"`
	Total     decimal.Decimal     `json:"total"`
	Status    string              `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type OrderHandler struct {
	service  order.Service
	verifier auth.Verifier
	guard    idempotency.Guard
}

func NewOrderHandler(service order.Service, verifier auth.Verifier, guard idempotency.Guard) *OrderHandler {
	return &OrderHandler{service: service, verifier: verifier, guard: guard}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/orders", func(r chi.Router) {
		r.Use(auth.Gate(h.verifier))

		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdateStatus)
		r.Post("/{id}/cancel", h.handleCancel)
	})
}

func (h *OrderHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if !httpx.Decode(w, r, &req) {
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if len(key) > 255 {
		httpx.RespondError(w, errInvalidIdempotent)
		return
	}

	lines := make([]order.LineRequest, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, order.LineRequest{ItemID: item.ProductID, Quantity: item.Quantity})
	}

	if key == "" || h.guard == nil {
		if created, ok := h.create(w, r, principal, lines); ok {
			httpx.RespondData(w, http.StatusCreated, toOrderResponse(created), "Order created successfully")
		}
		return
	}

	// Keys are scoped per owner so two users never collide.
	key = principal.ID.String() + ":" + key
	fingerprint := fingerprintLines(lines)

	previous, err := h.guard.Begin(r.Context(), key, fingerprint)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("handler: idempotency key rejected")
		httpx.RespondError(w, err)
		return
	}
	if previous != "" {
		h.replay(w, r, principal, previous)
		return
	}

	// The reservation outlives the request context, and is released on
	// every path that does not complete it, panics included.
	guardCtx := context.WithoutCancel(r.Context())
	completed := false
	defer func() {
		if completed {
			return
		}
		if err := h.guard.Release(guardCtx, key); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("handler: failed to release idempotency key")
		}
	}()

	created, ok := h.create(w, r, principal, lines)
	if !ok {
		return
	}

	// A failed Complete leaves the reservation to lapse after its pending
	// TTL; releasing it here would let a retry create a second order.
	completed = true
	if err := h.guard.Complete(guardCtx, key, fingerprint, created.ID.String()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Stringer("order_id", created.ID).Msg("handler: failed to store idempotency result")
	}

	httpx.RespondData(w, http.StatusCreated, toOrderResponse(created), "Order created successfully")
}

// create writes the error response itself and reports whether an order was
// created.
func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request, principal auth.Principal, lines []order.LineRequest) (*order.Order, bool) {
	// The gate guarantees a credential whenever a principal is present.
	credential, _ := auth.CredentialFrom(r.Context())

	created, err := h.service.Create(r.Context(), principal.ID, lines, credential)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	return created, true
}

// fingerprintLines hashes the requested lines in submission order, so the
// same key with a different basket is told apart from a retry.
func fingerprintLines(lines []order.LineRequest) string {
	hash := sha256.New()
	for _, l := range lines {
		fmt.Fprintf(hash, "%s\x00%d\n", l.ItemID, l.Quantity)
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func (h *OrderHandler) replay(w http.ResponseWriter, r *http.Request, principal auth.Principal, previous string) {
	id, err := uuid.FromString(previous)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("stored", previous).Msg("handler: corrupt idempotency record")
		httpx.RespondError(w, err)
		return
	}

	o, err := h.service.Get(r.Context(), id, principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	hlog.FromRequest(r).Info().Stringer("order_id", id).Msg("handler: replayed idempotent order creation")
	httpx.RespondData(w, http.StatusCreated, toOrderResponse(o), "Order created successfully")
}

func (h *OrderHandler) handleList(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListByOwner(r.Context(), principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	httpx.RespondData(w, http.StatusOK, resp, "")
}

func (h *OrderHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	o, err := h.service.Get(r.Context(), id, principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondData(w, http.StatusOK, toOrderResponse(o), "")
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !httpx.Decode(w, r, &req) {
		return
	}

	o, err := h.service.UpdateStatus(r.Context(), id, principal.ID, order.Status(req.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondData(w, http.StatusOK, toOrderResponse(o), "Order status updated successfully")
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	o, err := h.service.Cancel(r.Context(), id, principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondData(w, http.StatusOK, toOrderResponse(o), "Order cancelled successfully")
}

func principalFrom(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		httpx.RespondError(w, errMissingPrincipal)
		return auth.Principal{}, false
	}
	return principal, true
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

func toOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, OrderItemResponse{
			ProductID: l.ItemID,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
		})
	}
	return OrderResponse{
		ID:        o.ID,
		UserID:    o.OwnerID,
		Items:     items,
		Total:     o.Total,
		Status:    o.Status.String(),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}
