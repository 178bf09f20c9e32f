package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feastline/orderflow/internal/domain/domainerr"
	"github.com/feastline/orderflow/internal/domain/pricing"
	"github.com/feastline/orderflow/internal/domain/restaurant"
	"github.com/feastline/orderflow/internal/events"
	"github.com/feastline/orderflow/internal/tx"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	mu      sync.Mutex
	seq     int64
	byID    map[int64]Order
	numbers map[string]int64
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		byID:    make(map[int64]Order),
		numbers: make(map[string]int64),
	}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.numbers[o.OrderNumber]; taken {
		return ErrNumberConflict
	}
	m.seq++
	o.ID = m.seq
	m.byID[o.ID] = *o
	m.numbers[o.OrderNumber] = o.ID
	return nil
}

func (m *mockOrderRepo) get(id int64) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := o
	return &out, nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *mockOrderRepo) GetByIDForUpdate(_ context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.numbers[number]
	if !ok {
		return nil, ErrNotFound
	}
	return m.get(id)
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[o.ID]; !ok {
		return ErrNotFound
	}
	m.byID[o.ID] = *o
	return nil
}

func (m *mockOrderRepo) SetDeliveryPartner(_ context.Context, orderID, partnerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok {
		return ErrNotFound
	}
	o.DeliveryPartnerID = &partnerID
	m.byID[orderID] = o
	return nil
}

func (m *mockOrderRepo) ListByCustomer(_ context.Context, customerID int64, _ Page) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.byID {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ListByRestaurant(_ context.Context, restaurantID int64, _ Page) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.byID {
		if o.RestaurantID == restaurantID {
			out = append(out, o)
		}
	}
	return out, nil
}

type mockRestaurants struct {
	restaurants map[int64]*restaurant.Restaurant
	menu        map[int64]*restaurant.MenuItem
}

func (m *mockRestaurants) GetRestaurant(_ context.Context, id int64) (*restaurant.Restaurant, error) {
	r, ok := m.restaurants[id]
	if !ok {
		return nil, &restaurant.NotFoundError{ID: id}
	}
	return r, nil
}

func (m *mockRestaurants) GetMenuItem(_ context.Context, id int64) (*restaurant.MenuItem, error) {
	item, ok := m.menu[id]
	if !ok {
		return nil, &restaurant.NotFoundError{ID: id}
	}
	return item, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*events.OrderEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, ev *events.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) last() *events.OrderEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

// lockScope simulates row-level mutual exclusion: only one Execute runs at a
// time, like competing transactions serializing on the same order row.
type lockScope struct {
	mu sync.Mutex
}

func (s *lockScope) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

// --- Helpers ---

func testCatalog() *mockRestaurants {
	return &mockRestaurants{
		restaurants: map[int64]*restaurant.Restaurant{
			1: {
				ID:          1,
				Name:        "Spice Route",
				Status:      restaurant.StatusActive,
				Address:     "12 Fort Road",
				City:        "Mumbai",
				DeliveryFee: decimal.RequireFromString("30"),
			},
			2: {
				ID:     2,
				Name:   "Closed Kitchen",
				Status: restaurant.StatusInactive,
			},
		},
		menu: map[int64]*restaurant.MenuItem{
			1: {ID: 1, RestaurantID: 1, Name: "Paneer Tikka", Price: decimal.RequireFromString("150"), Available: true},
			2: {ID: 2, RestaurantID: 1, Name: "Garlic Naan", Price: decimal.RequireFromString("99"), Available: true},
		},
	}
}

func placeRequest() PlaceRequest {
	return PlaceRequest{
		CustomerID:      10,
		RestaurantID:    1,
		Lines:           []pricing.CartLine{{MenuItemID: 1, Quantity: 2}, {MenuItemID: 2, Quantity: 1}},
		DeliveryAddress: "48 Hill View",
		DeliveryCity:    "Mumbai",
		DeliveryPincode: "400001",
		DeliveryPhone:   "+91-9000000000",
	}
}

func newTestService(t *testing.T) (*Service, *mockOrderRepo, *mockPublisher) {
	t.Helper()
	repo := newMockOrderRepo()
	pub := &mockPublisher{}
	svc := NewService(repo, testCatalog(), tx.Passthrough{}, pub)
	return svc, repo, pub
}

func placedOrder(t *testing.T, svc *Service) *Order {
	t.Helper()
	o, err := svc.Place(context.Background(), placeRequest())
	require.NoError(t, err)
	return o
}

// --- Tests ---

func TestPlace_ComputesTotalsAndSnapshots(t *testing.T) {
	svc, _, pub := newTestService(t)

	o := placedOrder(t, svc)

	assert.Equal(t, StatusPlaced, o.Status)
	assert.True(t, decimal.RequireFromString("399").Equal(o.Subtotal))
	assert.True(t, decimal.RequireFromString("71.82").Equal(o.Tax))
	assert.True(t, decimal.RequireFromString("30").Equal(o.DeliveryFee))
	assert.True(t, decimal.RequireFromString("500.82").Equal(o.TotalAmount))
	assert.NotEmpty(t, o.OrderNumber)

	require.Len(t, o.Lines, 2)
	assert.Equal(t, "Paneer Tikka", o.Lines[0].Name)
	assert.True(t, decimal.RequireFromString("300").Equal(o.Lines[0].LineTotal))

	ev := pub.last()
	require.NotNil(t, ev)
	assert.Equal(t, events.TypeOrderPlaced, ev.EventType)
	assert.Equal(t, o.OrderNumber, ev.OrderNumber)
	assert.True(t, o.TotalAmount.Equal(ev.TotalAmount))
}

func TestPlace_RestaurantUnavailable(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := placeRequest()
	req.RestaurantID = 2
	_, err := svc.Place(context.Background(), req)
	require.ErrorIs(t, err, ErrRestaurantUnavailable)
}

func TestPlace_RestaurantNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := placeRequest()
	req.RestaurantID = 99
	_, err := svc.Place(context.Background(), req)
	require.ErrorIs(t, err, domainerr.ErrNotFound)
}

func TestPlace_PublishFailureDoesNotFailPlacement(t *testing.T) {
	repo := newMockOrderRepo()
	pub := &mockPublisher{err: errors.Wrap(domainerr.ErrUpstreamUnavailable, "broker down")}
	svc := NewService(repo, testCatalog(), tx.Passthrough{}, pub)

	o, err := svc.Place(context.Background(), placeRequest())
	require.NoError(t, err)

	// The order committed regardless of the notification failure.
	stored, err := svc.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaced, stored.Status)
}

func TestAdvanceStatus_ForwardEdge(t *testing.T) {
	svc, _, pub := newTestService(t)
	o := placedOrder(t, svc)

	updated, err := svc.AdvanceStatus(context.Background(), o.ID, StatusAccepted, 50)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, updated.Status)

	ev := pub.last()
	require.NotNil(t, ev)
	assert.Equal(t, events.TypeOrderAccepted, ev.EventType)
	assert.Equal(t, "ACCEPTED", ev.Status)
}

func TestAdvanceStatus_SkipAheadRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	o := placedOrder(t, svc)

	_, err := svc.AdvanceStatus(context.Background(), o.ID, StatusPicked, 50)

	var itErr *IllegalTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, StatusPlaced, itErr.From)
	assert.Equal(t, StatusPicked, itErr.To)
	assert.ErrorIs(t, err, domainerr.ErrIllegalTransition)
}

func TestAdvanceStatus_PickedBindsPartner(t *testing.T) {
	svc, _, _ := newTestService(t)
	o := placedOrder(t, svc)

	ctx := context.Background()
	_, err := svc.AdvanceStatus(ctx, o.ID, StatusAccepted, 1)
	require.NoError(t, err)
	_, err = svc.AdvanceStatus(ctx, o.ID, StatusPreparing, 1)
	require.NoError(t, err)

	updated, err := svc.AdvanceStatus(ctx, o.ID, StatusPicked, 77)
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveryPartnerID)
	assert.Equal(t, int64(77), *updated.DeliveryPartnerID)
}

func TestAdvanceStatus_TerminalRejectsEverything(t *testing.T) {
	svc, _, _ := newTestService(t)
	o := placedOrder(t, svc)

	ctx := context.Background()
	for _, next := range []Status{StatusAccepted, StatusPreparing, StatusPicked, StatusDelivered} {
		_, err := svc.AdvanceStatus(ctx, o.ID, next, 1)
		require.NoError(t, err)
	}

	for _, next := range []Status{StatusPlaced, StatusAccepted, StatusPreparing, StatusPicked, StatusDelivered} {
		_, err := svc.AdvanceStatus(ctx, o.ID, next, 1)
		assert.ErrorIs(t, err, ErrFinalized, "target %s", next)
	}
}

func TestAdvanceStatus_CancelledNotReachable(t *testing.T) {
	svc, _, _ := newTestService(t)
	o := placedOrder(t, svc)

	_, err := svc.AdvanceStatus(context.Background(), o.ID, StatusCancelled, 10)
	require.ErrorIs(t, err, domainerr.ErrIllegalTransition)
}

func TestAdvanceStatus_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.AdvanceStatus(context.Background(), 404, StatusAccepted, 1)
	require.ErrorIs(t, err, domainerr.ErrNotFound)
}

func TestCancel_NotOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	o := placedOrder(t, svc)

	_, err := svc.Cancel(context.Background(), o.ID, 999)
	require.ErrorIs(t, err, ErrNotOwner)
	assert.ErrorIs(t, err, domainerr.ErrForbidden)
}

func TestCancel_OwnerOnPreparingOrder(t *testing.T) {
	svc, _, pub := newTestService(t)
	o := placedOrder(t, svc)

	ctx := context.Background()
	_, err := svc.AdvanceStatus(ctx, o.ID, StatusAccepted, 1)
	require.NoError(t, err)
	_, err = svc.AdvanceStatus(ctx, o.ID, StatusPreparing, 1)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, o.ID, o.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, events.TypeOrderCancelled, pub.last().EventType)
}

func TestCancel_AlreadyFinalized(t *testing.T) {
	svc, _, _ := newTestService(t)
	o := placedOrder(t, svc)

	ctx := context.Background()
	_, err := svc.Cancel(ctx, o.ID, o.CustomerID)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, o.ID, o.CustomerID)
	require.ErrorIs(t, err, ErrFinalized)
}

func TestAdvanceStatus_ConcurrentRace(t *testing.T) {
	repo := newMockOrderRepo()
	pub := &mockPublisher{}
	svc := NewService(repo, testCatalog(), &lockScope{}, pub)

	o, err := svc.Place(context.Background(), placeRequest())
	require.NoError(t, err)

	// Two callers race the same PLACED->ACCEPTED edge. The row lock
	// serializes them: one wins, the loser re-reads ACCEPTED and is
	// rejected against the new current state.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.AdvanceStatus(context.Background(), o.ID, StatusAccepted, 1)
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, domainerr.ErrIllegalTransition)
		}
	}
	assert.Equal(t, 1, winners)

	current, err := svc.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, current.Status)
}

func TestGetByNumber(t *testing.T) {
	svc, _, _ := newTestService(t)
	o := placedOrder(t, svc)

	found, err := svc.GetByNumber(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, o.ID, found.ID)

	_, err = svc.GetByNumber(context.Background(), "ORD0")
	require.ErrorIs(t, err, domainerr.ErrNotFound)
}

func TestOrderNumberDerivedFromClock(t *testing.T) {
	now := time.Unix(1700000000, 42)
	assert.Equal(t, "ORD1700000000000000042", newOrderNumber(now))
}
