package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vasiliy-maslov/order-platform/order-service/internal/catalog"
	"github.com/vasiliy-maslov/order-platform/order-service/internal/events"
	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
	"github.com/vasiliy-maslov/order-platform/pkg/auth"
	"github.com/vasiliy-maslov/order-platform/pkg/logger"
)

var ErrInsufficientStock = apperr.New(apperr.InsufficientStock, "insufficient stock")

type Service interface {
	Create(ctx context.Context, ownerID uuid.UUID, lines []LineRequest, credential auth.Credential) (*Order, error)
	Get(ctx context.Context, id, ownerID uuid.UUID) (*Order, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Order, error)
	UpdateStatus(ctx context.Context, id, ownerID uuid.UUID, newStatus Status) (*Order, error)
	Cancel(ctx context.Context, id, ownerID uuid.UUID) (*Order, error)
}

type service struct {
	store     Store
	catalog   catalog.Client
	publisher events.Publisher
	outcomes  *prometheus.CounterVec
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*service)

func WithPublisher(p events.Publisher) Option {
	return func(s *service) {
		s.publisher = p
	}
}

// WithOutcomeCounter counts create outcomes under the label "outcome".
func WithOutcomeCounter(c *prometheus.CounterVec) Option {
	return func(s *service) {
		s.outcomes = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func NewService(store Store, catalogClient catalog.Client, opts ...Option) Service {
	s := &service{
		store:     store,
		catalog:   catalogClient,
		publisher: events.NoopPublisher{},
		tracer:    otel.Tracer("order-service/order"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates every line against the catalog, in submission order, and
// stops at the first failure. Nothing is stored unless all lines pass. Stock
// is read but never reserved, so concurrent orders may oversell.
func (s *service) Create(ctx context.Context, ownerID uuid.UUID, requested []LineRequest, credential auth.Credential) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create", trace.WithAttributes(
		attribute.String("order.owner_id", ownerID.String()),
		attribute.Int("order.lines", len(requested)),
	))
	defer span.End()

	o, err := s.create(ctx, ownerID, requested, credential)
	if err != nil {
		kind := apperr.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		s.countOutcome(kind.String())

		event := logger.FromContext(ctx).Warn()
		if kind == apperr.Internal {
			event = logger.FromContext(ctx).Error()
		}
		event.Err(err).Stringer("user_id", ownerID).Msg("service: order creation rejected")
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", o.ID.String()))
	s.countOutcome("created")
	logger.FromContext(ctx).Info().
		Stringer("order_id", o.ID).
		Stringer("user_id", ownerID).
		Stringer("total", o.Total).
		Msg("service: order created successfully")

	s.publish(ctx, events.Event{
		Type:       events.TypeOrderCreated,
		OrderID:    o.ID,
		OwnerID:    o.OwnerID,
		Status:     o.Status.String(),
		Total:      o.Total,
		OccurredAt: o.CreatedAt,
	})
	return o, nil
}

func (s *service) create(ctx context.Context, ownerID uuid.UUID, requested []LineRequest, credential auth.Credential) (*Order, error) {
	if len(requested) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, req := range requested {
		if req.ItemID == "" {
			return nil, apperr.New(apperr.InvalidInput, "item id is required")
		}
		if req.Quantity <= 0 {
			return nil, apperr.Wrap(ErrInvalidQuantity, apperr.InvalidInput,
				fmt.Sprintf("quantity for product %s must be greater than zero", req.ItemID))
		}
	}

	lines := make([]Line, 0, len(requested))
	for _, req := range requested {
		item, err := s.catalog.Fetch(ctx, req.ItemID, credential)
		if err != nil {
			if apperr.KindOf(err) == apperr.NotFound {
				return nil, apperr.Wrap(err, apperr.NotFound, fmt.Sprintf("product %s not found", req.ItemID))
			}
			return nil, fmt.Errorf("service: failed to validate product %s: %w", req.ItemID, err)
		}

		if req.Quantity > item.AvailableQuantity {
			return nil, apperr.Wrap(ErrInsufficientStock, apperr.InsufficientStock,
				fmt.Sprintf("insufficient stock for product %s", displayName(item)))
		}

		lines = append(lines, Line{
			ItemID:    req.ItemID,
			Quantity:  req.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	now := s.now().UTC()
	o := &Order{
		ID:        id,
		OwnerID:   ownerID,
		Lines:     lines,
		Total:     computeTotal(lines),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Append(ctx, o); err != nil {
		return nil, fmt.Errorf("service: failed to store order: %w", err)
	}
	return o, nil
}

func displayName(item *catalog.Item) string {
	if item.Name != "" {
		return item.Name
	}
	return item.ID
}

// Get checks existence before ownership.
func (s *service) Get(ctx context.Context, id, ownerID uuid.UUID) (*Order, error) {
	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			logger.FromContext(ctx).Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		logger.FromContext(ctx).Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	if o.OwnerID != ownerID {
		logger.FromContext(ctx).Warn().
			Stringer("order_id", id).
			Stringer("user_id", ownerID).
			Msg("service: access to another user's order")
		return nil, ErrForbidden
	}

	return o, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Order, error) {
	orders, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Stringer("user_id", ownerID).Msg("service: failed to fetch user orders")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

func (s *service) UpdateStatus(ctx context.Context, id, ownerID uuid.UUID, newStatus Status) (*Order, error) {
	if !newStatus.Valid() {
		return nil, ErrInvalidStatus
	}

	current, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, current, newStatus)
}

// Cancel never succeeds as a no-op: terminal orders get a dedicated error.
func (s *service) Cancel(ctx context.Context, id, ownerID uuid.UUID) (*Order, error) {
	current, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	switch current.Status {
	case StatusCancelled:
		return nil, ErrAlreadyCancelled
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	}

	return s.transition(ctx, current, StatusCancelled)
}

func (s *service) transition(ctx context.Context, current *Order, newStatus Status) (*Order, error) {
	if !CanTransition(current.Status, newStatus) {
		logger.FromContext(ctx).Warn().
			Stringer("order_id", current.ID).
			Stringer("current_status", current.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return nil, apperr.Wrap(ErrInvalidState, apperr.InvalidState,
			fmt.Sprintf("cannot change order status from %s to %s", current.Status, newStatus))
	}

	updated, err := s.store.UpdateStatus(ctx, current.ID, current.Status, newStatus, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrOrderNotFound) {
			logger.FromContext(ctx).Warn().Err(err).Stringer("order_id", current.ID).Msg("service: order changed concurrently")
			return nil, err
		}
		logger.FromContext(ctx).Error().Err(err).Stringer("order_id", current.ID).Msg("service: failed to update order status")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	logger.FromContext(ctx).Info().
		Stringer("order_id", updated.ID).
		Stringer("old_status", current.Status).
		Stringer("new_status", updated.Status).
		Msg("service: order status updated successfully")

	s.publish(ctx, events.Event{
		Type:       events.TypeOrderStatusChanged,
		OrderID:    updated.ID,
		OwnerID:    updated.OwnerID,
		Status:     updated.Status.String(),
		Previous:   current.Status.String(),
		Total:      updated.Total,
		OccurredAt: updated.UpdatedAt,
	})
	return updated, nil
}

// publish never fails the operation that triggered it.
func (s *service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		logger.FromContext(ctx).Error().Err(err).
			Stringer("order_id", e.OrderID).
			Str("event", string(e.Type)).
			Msg("service: failed to publish order event")
	}
}

func (s *service) countOutcome(outcome string) {
	if s.outcomes != nil {
		s.outcomes.WithLabelValues(outcome).Inc()
	}
}
