package order

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// Store is the authoritative collection of orders.
type Store interface {
	Append(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Order, error)
	// UpdateStatus moves an order from one status to another and fails with
	// ErrInvalidState if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (*Order, error)
	Count(ctx context.Context) (int, error)
}

type memoryStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Order
	byOwner map[uuid.UUID][]uuid.UUID
}

// NewMemoryStore keeps orders for the lifetime of the process. Callers only
// ever see copies.
func NewMemoryStore() Store {
	return &memoryStore{
		byID:    make(map[uuid.UUID]*Order),
		byOwner: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *memoryStore) Append(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[o.ID] = o.Clone()
	s.byOwner[o.OwnerID] = append(s.byOwner[o.OwnerID], o.ID)
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *memoryStore) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byOwner[ownerID]
	orders := make([]Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, *s.byID[id].Clone())
	}
	return orders, nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, at time.Time) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if o.Status != from {
		return nil, ErrInvalidState
	}

	o.Status = to
	o.UpdatedAt = at
	return o.Clone(), nil
}

func (s *memoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}
