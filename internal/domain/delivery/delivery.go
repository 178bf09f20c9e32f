package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/feastline/orderflow/internal/domain/domainerr"
)

// Status is the delivery lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAssigned  Status = "ASSIGNED"
	StatusPickedUp  Status = "PICKED_UP"
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// forward holds the permitted transitions. FAILED is reachable from any
// in-progress state; DELIVERED only off the road.
var forward = map[Status][]Status{
	StatusPending:   {StatusAssigned},
	StatusAssigned:  {StatusPickedUp, StatusFailed},
	StatusPickedUp:  {StatusInTransit, StatusFailed},
	StatusInTransit: {StatusDelivered, StatusFailed},
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// CanTransitionTo reports whether next is a permitted edge.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range forward[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseStatus validates a status name from the transport layer.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusAssigned, StatusPickedUp, StatusInTransit, StatusDelivered, StatusFailed:
		return Status(s), nil
	}
	return "", errors.Wrapf(domainerr.ErrValidation, "unknown delivery status %q", s)
}

// Delivery tracks the hand-off of one order. OrderID is unique: the row's
// uniqueness constraint is the idempotency guard that makes reactive and
// explicit creation commute.
type Delivery struct {
	ID                    int64
	OrderID               int64
	DeliveryPartnerID     *int64
	Status                Status
	PickupAddress         string
	DeliveryAddress       string
	EstimatedDeliveryTime time.Time
	ActualDeliveryTime    *time.Time
	TrackingURL           string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

var (
	// ErrNotFound is returned when no delivery exists for the order.
	ErrNotFound = fmt.Errorf("delivery %w", domainerr.ErrNotFound)

	// ErrAlreadyExists enforces at most one delivery per order.
	ErrAlreadyExists = errors.Wrap(domainerr.ErrConflict, "delivery already exists for this order")

	// ErrNotPending rejects partner assignment once the delivery left
	// PENDING, preventing mid-flight reassignment.
	ErrNotPending = errors.Wrap(domainerr.ErrConflict, "delivery is already assigned or in progress")

	// ErrPermissionDenied rejects status updates by a partner the delivery
	// is not bound to.
	ErrPermissionDenied = errors.Wrap(domainerr.ErrForbidden, "delivery is bound to another partner")
)

// IllegalTransitionError rejects a delivery status change with no permitted
// edge.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot transition delivery from %s to %s", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error { return domainerr.ErrIllegalTransition }

// Repository defines persistence for deliveries. Create returns
// ErrAlreadyExists on an order id uniqueness violation.
type Repository interface {
	Create(ctx context.Context, d *Delivery) error
	Update(ctx context.Context, d *Delivery) error
	GetByOrderID(ctx context.Context, orderID int64) (*Delivery, error)
	GetByOrderIDForUpdate(ctx context.Context, orderID int64) (*Delivery, error)
}
