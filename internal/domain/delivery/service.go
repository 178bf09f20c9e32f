package delivery

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/feastline/orderflow/internal/domain/order"
	"github.com/feastline/orderflow/internal/domain/restaurant"
	"github.com/feastline/orderflow/internal/tx"
)

const defaultPrepMinutes = 30

// trackingBaseURL is the public tracking endpoint; the order number is the
// only variable part.
const trackingBaseURL = "https://track.feastline.dev/"

// Service creates, assigns, and advances delivery records, both explicitly
// and reactively off the order event stream.
type Service struct {
	deliveries  Repository
	orders      order.Repository
	restaurants restaurant.Repository
	scope       tx.Scope
	now         func() time.Time
}

// NewService creates a delivery Service with the required dependencies.
func NewService(
	deliveries Repository,
	orders order.Repository,
	restaurants restaurant.Repository,
	scope tx.Scope,
) *Service {
	return &Service{
		deliveries:  deliveries,
		orders:      orders,
		restaurants: restaurants,
		scope:       scope,
		now:         time.Now,
	}
}

// Create builds the PENDING delivery record for an order. It may be invoked
// twice for the same order, once reactively and once explicitly; the second
// call fails with ErrAlreadyExists off the uniqueness constraint.
func (s *Service) Create(ctx context.Context, orderID int64) (*Delivery, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	r, err := s.restaurants.GetRestaurant(ctx, o.RestaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurant")
	}

	prep := defaultPrepMinutes
	if r.PrepTimeMinutes != nil {
		prep = *r.PrepTimeMinutes
	}

	now := s.now().UTC()
	d := &Delivery{
		OrderID:               o.ID,
		Status:                StatusPending,
		PickupAddress:         r.PickupAddress(),
		DeliveryAddress:       o.DeliveryAddress,
		EstimatedDeliveryTime: now.Add(time.Duration(prep) * time.Minute),
		TrackingURL:           trackingBaseURL + o.OrderNumber,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err = s.scope.Execute(ctx, func(ctx context.Context) error {
		return s.deliveries.Create(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// AssignPartner binds a partner to a PENDING delivery. The delivery row and
// the order's partner field are written in one transaction, the single
// cross-aggregate write in the system.
func (s *Service) AssignPartner(ctx context.Context, orderID, partnerID int64) (*Delivery, error) {
	var d *Delivery
	err := s.scope.Execute(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.deliveries.GetByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if d.Status != StatusPending {
			return ErrNotPending
		}

		d.DeliveryPartnerID = &partnerID
		d.Status = StatusAssigned
		d.UpdatedAt = s.now().UTC()
		if err := s.deliveries.Update(ctx, d); err != nil {
			return err
		}
		return s.orders.SetDeliveryPartner(ctx, orderID, partnerID)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateStatus advances the delivery. Only the bound partner may act once
// one is assigned; arriving at DELIVERED stamps the actual delivery time.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, next Status, actingPartnerID int64) (*Delivery, error) {
	var d *Delivery
	err := s.scope.Execute(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.deliveries.GetByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if d.DeliveryPartnerID != nil && *d.DeliveryPartnerID != actingPartnerID {
			return ErrPermissionDenied
		}
		if !d.Status.CanTransitionTo(next) {
			return &IllegalTransitionError{From: d.Status, To: next}
		}

		d.Status = next
		now := s.now().UTC()
		if next == StatusDelivered {
			d.ActualDeliveryTime = &now
		}
		d.UpdatedAt = now
		return s.deliveries.Update(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetByOrder returns the delivery for an order.
func (s *Service) GetByOrder(ctx context.Context, orderID int64) (*Delivery, error) {
	return s.deliveries.GetByOrderID(ctx, orderID)
}
