package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/feastline/orderflow/internal/domain/pricing"
	"github.com/feastline/orderflow/internal/domain/restaurant"
	"github.com/feastline/orderflow/internal/events"
	"github.com/feastline/orderflow/internal/tx"
)

// PlaceRequest holds the input for placing an order.
type PlaceRequest struct {
	CustomerID          int64
	RestaurantID        int64
	Lines               []pricing.CartLine
	DeliveryAddress     string
	DeliveryCity        string
	DeliveryPincode     string
	DeliveryPhone       string
	SpecialInstructions string
}

// Service owns order placement and the status state machine. Every
// read-modify-write runs inside the transaction scope so racing callers
// serialize on the order row.
type Service struct {
	orders      Repository
	restaurants restaurant.Repository
	scope       tx.Scope
	publisher   events.Publisher
	now         func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(
	orders Repository,
	restaurants restaurant.Repository,
	scope tx.Scope,
	publisher events.Publisher,
) *Service {
	return &Service{
		orders:      orders,
		restaurants: restaurants,
		scope:       scope,
		publisher:   publisher,
		now:         time.Now,
	}
}

// Place prices the cart, snapshots the items, and persists a PLACED order.
// It emits ORDER_PLACED after the commit; a publish failure is logged as a
// warning and never rolls the order back.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*Order, error) {
	r, err := s.restaurants.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurant")
	}
	if !r.Orderable() {
		return nil, ErrRestaurantUnavailable
	}

	quote, err := pricing.Compute(ctx, r, req.Lines, s.restaurants)
	if err != nil {
		return nil, err
	}

	lines := make([]Line, len(quote.Lines))
	for i, pl := range quote.Lines {
		lines[i] = Line{
			MenuItemID: pl.MenuItemID,
			Name:       pl.Name,
			Quantity:   pl.Quantity,
			UnitPrice:  pl.UnitPrice,
			LineTotal:  pl.LineTotal,
		}
	}

	now := s.now().UTC()
	o := &Order{
		OrderNumber:         newOrderNumber(now),
		CustomerID:          req.CustomerID,
		RestaurantID:        req.RestaurantID,
		Status:              StatusPlaced,
		Lines:               lines,
		Subtotal:            quote.Subtotal,
		DeliveryFee:         quote.DeliveryFee,
		Tax:                 quote.Tax,
		TotalAmount:         quote.Total,
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryCity:        req.DeliveryCity,
		DeliveryPincode:     req.DeliveryPincode,
		DeliveryPhone:       req.DeliveryPhone,
		SpecialInstructions: req.SpecialInstructions,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.scope.Execute(ctx, func(ctx context.Context) error {
		return s.orders.Create(ctx, o)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.publish(ctx, o, events.TypeOrderPlaced)
	return o, nil
}

// AdvanceStatus moves the order along the forward edge table. Transitions
// into PICKED bind the acting user as the delivery partner.
func (s *Service) AdvanceStatus(ctx context.Context, orderID int64, next Status, actingUserID int64) (*Order, error) {
	var o *Order
	err := s.scope.Execute(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return ErrFinalized
		}
		if !o.Status.CanAdvanceTo(next) {
			return &IllegalTransitionError{From: o.Status, To: next}
		}

		if next == StatusPicked {
			o.DeliveryPartnerID = &actingUserID
		}
		o.Status = next
		o.UpdatedAt = s.now().UTC()
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, o, "ORDER_"+string(next))
	return o, nil
}

// Cancel transitions the order to CANCELLED on behalf of the customer who
// placed it.
func (s *Service) Cancel(ctx context.Context, orderID, customerID int64) (*Order, error) {
	var o *Order
	err := s.scope.Execute(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.CustomerID != customerID {
			return ErrNotOwner
		}
		if o.Status.Terminal() {
			return ErrFinalized
		}

		o.Status = StatusCancelled
		o.UpdatedAt = s.now().UTC()
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, o, events.TypeOrderCancelled)
	return o, nil
}

// GetByID returns the order's current state.
func (s *Service) GetByID(ctx context.Context, orderID int64) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// GetByNumber returns the order with the given order number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return s.orders.GetByNumber(ctx, number)
}

// ListByCustomer returns the customer's orders, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64, page Page) ([]Order, error) {
	return s.orders.ListByCustomer(ctx, customerID, page.withDefaults())
}

// ListByRestaurant returns the restaurant's orders, newest first.
func (s *Service) ListByRestaurant(ctx context.Context, restaurantID int64, page Page) ([]Order, error) {
	return s.orders.ListByRestaurant(ctx, restaurantID, page.withDefaults())
}

// publish emits the lifecycle event for an already-committed state change.
// It runs after the transaction and outside the row lock, so two
// back-to-back transitions on one order can publish in inverted order;
// consumers must key off the event type, not the relative arrival order.
// The channel's own redelivery policy handles eventual delivery; the
// producer only logs the failure.
func (s *Service) publish(ctx context.Context, o *Order, eventType string) {
	ev := events.NewOrderEvent(eventType)
	ev.OrderID = o.ID
	ev.OrderNumber = o.OrderNumber
	ev.CustomerID = o.CustomerID
	ev.RestaurantID = o.RestaurantID
	ev.Status = string(o.Status)
	ev.TotalAmount = o.TotalAmount

	if err := s.publisher.Publish(ctx, ev); err != nil {
		zctx.From(ctx).Warn("order event publish failed",
			zap.String("event_type", eventType),
			zap.String("order_number", o.OrderNumber),
			zap.Error(err),
		)
	}
}

// newOrderNumber derives a human-readable unique number from a clock tick.
// The storage layer's unique constraint turns a collision into a hard error.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD%d", now.UnixNano())
}
