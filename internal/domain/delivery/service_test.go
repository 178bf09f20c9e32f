package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feastline/orderflow/internal/domain/domainerr"
	"github.com/feastline/orderflow/internal/domain/order"
	"github.com/feastline/orderflow/internal/domain/restaurant"
	"github.com/feastline/orderflow/internal/events"
	"github.com/feastline/orderflow/internal/tx"
)

// --- Mock implementations ---

type mockDeliveryRepo struct {
	mu      sync.Mutex
	seq     int64
	byOrder map[int64]Delivery
}

func newMockDeliveryRepo() *mockDeliveryRepo {
	return &mockDeliveryRepo{byOrder: make(map[int64]Delivery)}
}

func (m *mockDeliveryRepo) Create(_ context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byOrder[d.OrderID]; exists {
		return ErrAlreadyExists
	}
	m.seq++
	d.ID = m.seq
	m.byOrder[d.OrderID] = *d
	return nil
}

func (m *mockDeliveryRepo) Update(_ context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byOrder[d.OrderID]; !exists {
		return ErrNotFound
	}
	m.byOrder[d.OrderID] = *d
	return nil
}

func (m *mockDeliveryRepo) GetByOrderID(_ context.Context, orderID int64) (*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	out := d
	return &out, nil
}

func (m *mockDeliveryRepo) GetByOrderIDForUpdate(ctx context.Context, orderID int64) (*Delivery, error) {
	return m.GetByOrderID(ctx, orderID)
}

type mockOrderRepo struct {
	order.Repository

	mu     sync.Mutex
	orders map[int64]*order.Order
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	out := *o
	return &out, nil
}

func (m *mockOrderRepo) SetDeliveryPartner(_ context.Context, orderID, partnerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	o.DeliveryPartnerID = &partnerID
	return nil
}

type mockRestaurants struct {
	restaurant.Repository

	restaurants map[int64]*restaurant.Restaurant
}

func (m *mockRestaurants) GetRestaurant(_ context.Context, id int64) (*restaurant.Restaurant, error) {
	r, ok := m.restaurants[id]
	if !ok {
		return nil, &restaurant.NotFoundError{ID: id}
	}
	return r, nil
}

// --- Helpers ---

func fixedClock() func() time.Time {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newTestDeliveryService() (*Service, *mockDeliveryRepo, *mockOrderRepo) {
	prep := 20
	restaurants := &mockRestaurants{
		restaurants: map[int64]*restaurant.Restaurant{
			1: {
				ID:              1,
				Name:            "Spice Route",
				Status:          restaurant.StatusActive,
				Address:         "12 Fort Road",
				City:            "Mumbai",
				PrepTimeMinutes: &prep,
			},
			2: {ID: 2, Name: "No Prep Estimate", Status: restaurant.StatusActive, Address: "5 Lake Lane", City: "Pune"},
		},
	}
	orders := &mockOrderRepo{
		orders: map[int64]*order.Order{
			1: {
				ID:              1,
				OrderNumber:     "ORD1700000000000000000",
				CustomerID:      10,
				RestaurantID:    1,
				Status:          order.StatusAccepted,
				TotalAmount:     decimal.RequireFromString("500.82"),
				DeliveryAddress: "48 Hill View",
			},
			2: {
				ID:              2,
				OrderNumber:     "ORD1700000000000000001",
				CustomerID:      11,
				RestaurantID:    2,
				Status:          order.StatusAccepted,
				TotalAmount:     decimal.RequireFromString("120"),
				DeliveryAddress: "9 River Walk",
			},
		},
	}
	repo := newMockDeliveryRepo()
	svc := NewService(repo, orders, restaurants, tx.Passthrough{})
	svc.now = fixedClock()
	return svc, repo, orders
}

// --- Tests ---

func TestCreate_BuildsDeliveryFromOrderAndRestaurant(t *testing.T) {
	svc, _, _ := newTestDeliveryService()

	d, err := svc.Create(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, d.Status)
	assert.Equal(t, "12 Fort Road, Mumbai", d.PickupAddress)
	assert.Equal(t, "48 Hill View", d.DeliveryAddress)
	assert.Equal(t, trackingBaseURL+"ORD1700000000000000000", d.TrackingURL)
	assert.Equal(t, fixedClock()().Add(20*time.Minute), d.EstimatedDeliveryTime)
	assert.Nil(t, d.ActualDeliveryTime)
	assert.Nil(t, d.DeliveryPartnerID)
}

func TestCreate_DefaultPrepEstimate(t *testing.T) {
	svc, _, _ := newTestDeliveryService()

	d, err := svc.Create(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, fixedClock()().Add(30*time.Minute), d.EstimatedDeliveryTime)
}

func TestCreate_OrderNotFound(t *testing.T) {
	svc, _, _ := newTestDeliveryService()

	_, err := svc.Create(context.Background(), 404)
	require.ErrorIs(t, err, domainerr.ErrNotFound)
}

func TestCreate_DuplicateRejected(t *testing.T) {
	svc, repo, _ := newTestDeliveryService()

	ctx := context.Background()
	_, err := svc.Create(ctx, 1)
	require.NoError(t, err)

	_, err = svc.Create(ctx, 1)
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Len(t, repo.byOrder, 1, "exactly one delivery row")
}

func TestAssignPartner(t *testing.T) {
	svc, _, orders := newTestDeliveryService()

	ctx := context.Background()
	_, err := svc.Create(ctx, 1)
	require.NoError(t, err)

	d, err := svc.AssignPartner(ctx, 1, 77)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, d.Status)
	require.NotNil(t, d.DeliveryPartnerID)
	assert.Equal(t, int64(77), *d.DeliveryPartnerID)

	// The assignment propagates onto the order aggregate.
	o, err := orders.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, o.DeliveryPartnerID)
	assert.Equal(t, int64(77), *o.DeliveryPartnerID)
}

func TestAssignPartner_NotPending(t *testing.T) {
	svc, _, _ := newTestDeliveryService()

	ctx := context.Background()
	_, err := svc.Create(ctx, 1)
	require.NoError(t, err)
	_, err = svc.AssignPartner(ctx, 1, 77)
	require.NoError(t, err)

	_, err = svc.AssignPartner(ctx, 1, 88)
	require.ErrorIs(t, err, ErrNotPending)
	assert.ErrorIs(t, err, domainerr.ErrConflict)
}

func TestUpdateStatus_BoundPartnerOnly(t *testing.T) {
	svc, _, _ := newTestDeliveryService()

	ctx := context.Background()
	_, err := svc.Create(ctx, 1)
	require.NoError(t, err)
	_, err = svc.AssignPartner(ctx, 1, 77)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, 1, StatusPickedUp, 99)
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, err, domainerr.ErrForbidden)

	d, err := svc.UpdateStatus(ctx, 1, StatusPickedUp, 77)
	require.NoError(t, err)
	assert.Equal(t, StatusPickedUp, d.Status)
}

func TestUpdateStatus_DeliveredStampsActualTime(t *testing.T) {
	svc, _, _ := newTestDeliveryService()

	ctx := context.Background()
	_, err := svc.Create(ctx, 1)
	require.NoError(t, err)
	_, err = svc.AssignPartner(ctx, 1, 77)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, 1, StatusPickedUp, 77)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, 1, StatusInTransit, 77)
	require.NoError(t, err)

	d, err := svc.UpdateStatus(ctx, 1, StatusDelivered, 77)
	require.NoError(t, err)
	require.NotNil(t, d.ActualDeliveryTime)
	assert.Equal(t, fixedClock()(), *d.ActualDeliveryTime)
}

func TestUpdateStatus_IllegalEdge(t *testing.T) {
	svc, _, _ := newTestDeliveryService()

	ctx := context.Background()
	_, err := svc.Create(ctx, 1)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, 1, StatusDelivered, 77)
	var itErr *IllegalTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, StatusPending, itErr.From)
}

func TestConsumer_CreatesOnOrderAccepted(t *testing.T) {
	svc, repo, _ := newTestDeliveryService()
	consumer := NewConsumer(svc)

	ev := events.NewOrderEvent(events.TypeOrderAccepted)
	ev.OrderID = 1
	ev.OrderNumber = "ORD1700000000000000000"

	require.NoError(t, consumer.Handle(context.Background(), ev))
	assert.Len(t, repo.byOrder, 1)
}

func TestConsumer_SwallowsDuplicate(t *testing.T) {
	svc, repo, _ := newTestDeliveryService()
	consumer := NewConsumer(svc)

	ctx := context.Background()

	// Explicit API call races the reactive path and wins.
	_, err := svc.Create(ctx, 1)
	require.NoError(t, err)

	ev := events.NewOrderEvent(events.TypeOrderAccepted)
	ev.OrderID = 1
	ev.OrderNumber = "ORD1700000000000000000"

	// The duplicate is swallowed, not escalated: escalation would trigger
	// pointless redelivery.
	require.NoError(t, consumer.Handle(ctx, ev))
	require.NoError(t, consumer.Handle(ctx, ev))
	assert.Len(t, repo.byOrder, 1, "exactly one delivery row")
}

func TestConsumer_IgnoresOtherEventTypes(t *testing.T) {
	svc, repo, _ := newTestDeliveryService()
	consumer := NewConsumer(svc)

	ev := events.NewOrderEvent(events.TypeOrderPlaced)
	ev.OrderID = 1

	require.NoError(t, consumer.Handle(context.Background(), ev))
	assert.Empty(t, repo.byOrder)
}

func TestConsumer_PropagatesRealFailures(t *testing.T) {
	svc, _, _ := newTestDeliveryService()
	consumer := NewConsumer(svc)

	ev := events.NewOrderEvent(events.TypeOrderAccepted)
	ev.OrderID = 404

	require.Error(t, consumer.Handle(context.Background(), ev))
}
