package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/order-platform/order-service/internal/catalog"
	"github.com/vasiliy-maslov/order-platform/order-service/internal/events"
	"github.com/vasiliy-maslov/order-platform/order-service/internal/order"
	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
	"github.com/vasiliy-maslov/order-platform/pkg/auth"
)

const credential = auth.Credential("Bearer token-of-alice")

type MockCatalogClient struct {
	mock.Mock
}

func (m *MockCatalogClient) Fetch(ctx context.Context, itemID string, cred auth.Credential) (*catalog.Item, error) {
	args := m.Called(ctx, itemID, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Item), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e events.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

func item(id, price string, stock int) *catalog.Item {
	return &catalog.Item{ID: id, Name: "Item " + id, UnitPrice: decimal.RequireFromString(price), AvailableQuantity: stock}
}

func storeCount(t *testing.T, store order.Store) int {
	t.Helper()
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestOrderService_Create_Success(t *testing.T) {
	store := order.NewMemoryStore()
	mockCatalog := new(MockCatalogClient)
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := order.NewService(store, mockCatalog, order.WithClock(func() time.Time { return fixed }))

	mockCatalog.On("Fetch", mock.Anything, "I1", credential).Return(item("I1", "10.00", 5), nil).Once()
	mockCatalog.On("Fetch", mock.Anything, "I2", credential).Return(item("I2", "2.50", 10), nil).Once()

	ownerID := uuid.Must(uuid.NewV4())
	created, err := svc.Create(context.Background(), ownerID, []order.LineRequest{
		{ItemID: "I1", Quantity: 3},
		{ItemID: "I2", Quantity: 4},
	}, credential)
	require.NoError(t, err)

	expectedLines := []order.Line{
		{ItemID: "I1", Quantity: 3, UnitPrice: decimal.RequireFromString("10.00")},
		{ItemID: "I2", Quantity: 4, UnitPrice: decimal.RequireFromString("2.50")},
	}
	if diff := cmp.Diff(expectedLines, created.Lines, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, created.Total.Equal(decimal.RequireFromString("40.00")), "total was %s", created.Total)
	assert.Equal(t, order.StatusPending, created.Status)
	assert.Equal(t, ownerID, created.OwnerID)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, fixed, created.CreatedAt)
	assert.Equal(t, 1, storeCount(t, store))

	mockCatalog.AssertExpectations(t)
}

func TestOrderService_Create_ExampleScenario(t *testing.T) {
	store := order.NewMemoryStore()
	mockCatalog := new(MockCatalogClient)
	svc := order.NewService(store, mockCatalog)

	// The catalog is never decremented, so the second order sees the same stock.
	mockCatalog.On("Fetch", mock.Anything, "I1", credential).Return(item("I1", "10.00", 5), nil).Twice()

	alice := uuid.Must(uuid.NewV4())
	first, err := svc.Create(context.Background(), alice, []order.LineRequest{{ItemID: "I1", Quantity: 3}}, credential)
	require.NoError(t, err)
	assert.Equal(t, "30", first.Total.String())
	require.Len(t, first.Lines, 1)
	assert.True(t, first.Lines[0].UnitPrice.Equal(decimal.NewFromInt(10)))

	second, err := svc.Create(context.Background(), alice, []order.LineRequest{{ItemID: "I1", Quantity: 3}}, credential)
	require.NoError(t, err, "overselling is accepted: stock is not reserved")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, storeCount(t, store))

	mockCatalog.AssertExpectations(t)
}

func TestOrderService_Create_Failures(t *testing.T) {
	upstreamErr := apperr.Wrap(errors.New("dial tcp: connection refused"), apperr.UpstreamUnavailable, "catalog service unavailable")

	testCases := []struct {
		name         string
		lines        []order.LineRequest
		setup        func(m *MockCatalogClient)
		expectedKind apperr.Kind
		expectedIs   error
	}{
		{
			name:         "empty order",
			lines:        nil,
			setup:        func(m *MockCatalogClient) {},
			expectedKind: apperr.InvalidInput,
			expectedIs:   order.ErrEmptyOrder,
		},
		{
			name:         "zero quantity",
			lines:        []order.LineRequest{{ItemID: "I1", Quantity: 1}, {ItemID: "I2", Quantity: 0}},
			setup:        func(m *MockCatalogClient) {},
			expectedKind: apperr.InvalidInput,
			expectedIs:   order.ErrInvalidQuantity,
		},
		{
			name:  "second line unknown",
			lines: []order.LineRequest{{ItemID: "I1", Quantity: 1}, {ItemID: "NOPE", Quantity: 1}, {ItemID: "I3", Quantity: 1}},
			setup: func(m *MockCatalogClient) {
				m.On("Fetch", mock.Anything, "I1", credential).Return(item("I1", "1.00", 10), nil).Once()
				m.On("Fetch", mock.Anything, "NOPE", credential).Return(nil, catalog.ErrItemNotFound).Once()
			},
			expectedKind: apperr.NotFound,
			expectedIs:   catalog.ErrItemNotFound,
		},
		{
			name:  "first line short of stock",
			lines: []order.LineRequest{{ItemID: "I1", Quantity: 6}, {ItemID: "NOPE", Quantity: 1}},
			setup: func(m *MockCatalogClient) {
				m.On("Fetch", mock.Anything, "I1", credential).Return(item("I1", "1.00", 5), nil).Once()
			},
			expectedKind: apperr.InsufficientStock,
			expectedIs:   order.ErrInsufficientStock,
		},
		{
			name:  "catalog unavailable",
			lines: []order.LineRequest{{ItemID: "I1", Quantity: 1}},
			setup: func(m *MockCatalogClient) {
				m.On("Fetch", mock.Anything, "I1", credential).Return(nil, upstreamErr).Once()
			},
			expectedKind: apperr.UpstreamUnavailable,
		},
		{
			name:  "catalog rejects credential",
			lines: []order.LineRequest{{ItemID: "I1", Quantity: 1}},
			setup: func(m *MockCatalogClient) {
				m.On("Fetch", mock.Anything, "I1", credential).Return(nil, catalog.ErrCredentialRejected).Once()
			},
			expectedKind: apperr.Unauthorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := order.NewMemoryStore()
			mockCatalog := new(MockCatalogClient)
			tc.setup(mockCatalog)
			svc := order.NewService(store, mockCatalog)

			created, err := svc.Create(context.Background(), uuid.Must(uuid.NewV4()), tc.lines, credential)
			require.Error(t, err)
			assert.Nil(t, created)
			assert.Equal(t, tc.expectedKind, apperr.KindOf(err))
			if tc.expectedIs != nil {
				assert.ErrorIs(t, err, tc.expectedIs)
			}
			assert.Equal(t, 0, storeCount(t, store), "no partial order may be stored")

			// Lines after the failing one are never looked up.
			mockCatalog.AssertExpectations(t)
		})
	}
}

func TestOrderService_Create_CountsOutcomes(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orders_test_total"}, []string{"outcome"})
	mockCatalog := new(MockCatalogClient)
	svc := order.NewService(order.NewMemoryStore(), mockCatalog, order.WithOutcomeCounter(counter))

	mockCatalog.On("Fetch", mock.Anything, "I1", credential).Return(item("I1", "1", 1), nil).Twice()

	_, err := svc.Create(context.Background(), uuid.Must(uuid.NewV4()), []order.LineRequest{{ItemID: "I1", Quantity: 1}}, credential)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), uuid.Must(uuid.NewV4()), []order.LineRequest{{ItemID: "I1", Quantity: 2}}, credential)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues(string(apperr.InsufficientStock))))
}

func TestOrderService_Create_PublishFailureIsNotFatal(t *testing.T) {
	mockCatalog := new(MockCatalogClient)
	publisher := new(MockPublisher)
	svc := order.NewService(order.NewMemoryStore(), mockCatalog, order.WithPublisher(publisher))

	mockCatalog.On("Fetch", mock.Anything, "I1", credential).Return(item("I1", "1", 1), nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.TypeOrderCreated && e.Status == "pending"
	})).Return(errors.New("broker down")).Once()

	created, err := svc.Create(context.Background(), uuid.Must(uuid.NewV4()), []order.LineRequest{{ItemID: "I1", Quantity: 1}}, credential)
	require.NoError(t, err)
	assert.NotNil(t, created)
	publisher.AssertExpectations(t)
}

// seedOrder creates a pending order owned by ownerID.
func seedOrder(t *testing.T, svc order.Service, m *MockCatalogClient, ownerID uuid.UUID) *order.Order {
	t.Helper()
	m.On("Fetch", mock.Anything, "I1", credential).Return(item("I1", "10.00", 100), nil).Once()
	o, err := svc.Create(context.Background(), ownerID, []order.LineRequest{{ItemID: "I1", Quantity: 1}}, credential)
	require.NoError(t, err)
	return o
}

func TestOrderService_Get(t *testing.T) {
	mockCatalog := new(MockCatalogClient)
	svc := order.NewService(order.NewMemoryStore(), mockCatalog)
	owner := uuid.Must(uuid.NewV4())
	o := seedOrder(t, svc, mockCatalog, owner)

	got, err := svc.Get(context.Background(), o.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = svc.Get(context.Background(), uuid.Must(uuid.NewV4()), owner)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)

	_, err = svc.Get(context.Background(), o.ID, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, order.ErrForbidden)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestOrderService_ListByOwner_InsertionOrder(t *testing.T) {
	mockCatalog := new(MockCatalogClient)
	svc := order.NewService(order.NewMemoryStore(), mockCatalog)
	alice := uuid.Must(uuid.NewV4())
	bob := uuid.Must(uuid.NewV4())

	a1 := seedOrder(t, svc, mockCatalog, alice)
	seedOrder(t, svc, mockCatalog, bob)
	a2 := seedOrder(t, svc, mockCatalog, alice)
	a3 := seedOrder(t, svc, mockCatalog, alice)

	orders, err := svc.ListByOwner(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, []uuid.UUID{a1.ID, a2.ID, a3.ID}, []uuid.UUID{orders[0].ID, orders[1].ID, orders[2].ID})

	none, err := svc.ListByOwner(context.Background(), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOrderService_UpdateStatus_Transitions(t *testing.T) {
	testCases := []struct {
		name         string
		path         []order.Status
		target       order.Status
		expectedKind apperr.Kind
	}{
		{name: "pending to processing", target: order.StatusProcessing},
		{name: "processing to completed", path: []order.Status{order.StatusProcessing}, target: order.StatusCompleted},
		{name: "pending to cancelled", target: order.StatusCancelled},
		{name: "processing to cancelled", path: []order.Status{order.StatusProcessing}, target: order.StatusCancelled},
		{name: "pending to completed", target: order.StatusCompleted, expectedKind: apperr.InvalidState},
		{name: "pending to pending", target: order.StatusPending, expectedKind: apperr.InvalidState},
		{name: "processing back to pending", path: []order.Status{order.StatusProcessing}, target: order.StatusPending, expectedKind: apperr.InvalidState},
		{name: "out of completed", path: []order.Status{order.StatusProcessing, order.StatusCompleted}, target: order.StatusCancelled, expectedKind: apperr.InvalidState},
		{name: "out of cancelled", path: []order.Status{order.StatusCancelled}, target: order.StatusProcessing, expectedKind: apperr.InvalidState},
		{name: "unknown status", target: order.Status("shipped"), expectedKind: apperr.InvalidInput},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockCatalog := new(MockCatalogClient)
			svc := order.NewService(order.NewMemoryStore(), mockCatalog)
			owner := uuid.Must(uuid.NewV4())
			o := seedOrder(t, svc, mockCatalog, owner)

			for _, step := range tc.path {
				_, err := svc.UpdateStatus(context.Background(), o.ID, owner, step)
				require.NoError(t, err)
			}
			before, err := svc.Get(context.Background(), o.ID, owner)
			require.NoError(t, err)

			updated, err := svc.UpdateStatus(context.Background(), o.ID, owner, tc.target)
			if tc.expectedKind == "" {
				require.NoError(t, err)
				assert.Equal(t, tc.target, updated.Status)
				assert.True(t, updated.Total.Equal(o.Total), "total is never recomputed")
				return
			}

			require.Error(t, err)
			assert.Equal(t, tc.expectedKind, apperr.KindOf(err))
			after, err := svc.Get(context.Background(), o.ID, owner)
			require.NoError(t, err)
			assert.Equal(t, before.Status, after.Status, "failed transition must not change status")
		})
	}
}

func TestOrderService_Cancel(t *testing.T) {
	testCases := []struct {
		name       string
		path       []order.Status
		expectedIs error
	}{
		{name: "pending", expectedIs: nil},
		{name: "processing", path: []order.Status{order.StatusProcessing}, expectedIs: nil},
		{name: "already cancelled", path: []order.Status{order.StatusCancelled}, expectedIs: order.ErrAlreadyCancelled},
		{name: "already completed", path: []order.Status{order.StatusProcessing, order.StatusCompleted}, expectedIs: order.ErrAlreadyCompleted},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockCatalog := new(MockCatalogClient)
			svc := order.NewService(order.NewMemoryStore(), mockCatalog)
			owner := uuid.Must(uuid.NewV4())
			o := seedOrder(t, svc, mockCatalog, owner)

			for _, step := range tc.path {
				_, err := svc.UpdateStatus(context.Background(), o.ID, owner, step)
				require.NoError(t, err)
			}
			before, err := svc.Get(context.Background(), o.ID, owner)
			require.NoError(t, err)

			cancelled, err := svc.Cancel(context.Background(), o.ID, owner)
			if tc.expectedIs == nil {
				require.NoError(t, err)
				assert.Equal(t, order.StatusCancelled, cancelled.Status)
				return
			}

			require.ErrorIs(t, err, tc.expectedIs)
			after, err := svc.Get(context.Background(), o.ID, owner)
			require.NoError(t, err)
			assert.Equal(t, before.Status, after.Status)
		})
	}
}

func TestOrderService_NonOwnerCannotMutate(t *testing.T) {
	mockCatalog := new(MockCatalogClient)
	svc := order.NewService(order.NewMemoryStore(), mockCatalog)
	owner := uuid.Must(uuid.NewV4())
	intruder := uuid.Must(uuid.NewV4())
	o := seedOrder(t, svc, mockCatalog, owner)

	_, err := svc.UpdateStatus(context.Background(), o.ID, intruder, order.StatusProcessing)
	assert.ErrorIs(t, err, order.ErrForbidden)

	_, err = svc.Cancel(context.Background(), o.ID, intruder)
	assert.ErrorIs(t, err, order.ErrForbidden)

	got, err := svc.Get(context.Background(), o.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
}

func TestOrderService_ConcurrentCancel(t *testing.T) {
	mockCatalog := new(MockCatalogClient)
	publisher := new(MockPublisher)
	svc := order.NewService(order.NewMemoryStore(), mockCatalog, order.WithPublisher(publisher))
	owner := uuid.Must(uuid.NewV4())

	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
	o := seedOrder(t, svc, mockCatalog, owner)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Cancel(context.Background(), o.ID, owner)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		kind := apperr.KindOf(err)
		assert.True(t, kind == apperr.AlreadyCancelled || kind == apperr.InvalidState, "unexpected kind %s", kind)
	}
	assert.Equal(t, 1, succeeded, "exactly one cancellation wins")
}
