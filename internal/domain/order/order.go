package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/feastline/orderflow/internal/domain/domainerr"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusAccepted  Status = "ACCEPTED"
	StatusPreparing Status = "PREPARING"
	StatusPicked    Status = "PICKED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// forward is the canonical edge table. CANCELLED is reachable only through
// Cancel, never through AdvanceStatus, and only from non-terminal states.
var forward = map[Status]Status{
	StatusPlaced:    StatusAccepted,
	StatusAccepted:  StatusPreparing,
	StatusPreparing: StatusPicked,
	StatusPicked:    StatusDelivered,
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanAdvanceTo reports whether next is the adjacent forward edge. Skip-ahead
// jumps are rejected.
func (s Status) CanAdvanceTo(next Status) bool {
	return forward[s] == next
}

// ParseStatus validates a status name from the transport layer.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPlaced, StatusAccepted, StatusPreparing, StatusPicked, StatusDelivered, StatusCancelled:
		return Status(s), nil
	}
	return "", errors.Wrapf(domainerr.ErrValidation, "unknown order status %q", s)
}

// Line is one immutable item snapshot on a placed order. Menu edits after
// placement never alter it.
type Line struct {
	MenuItemID int64
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
}

// Order is the order aggregate. TotalAmount always equals
// Subtotal + DeliveryFee + Tax; orders are never deleted, cancellation is a
// terminal status.
type Order struct {
	ID                  int64
	OrderNumber         string
	CustomerID          int64
	RestaurantID        int64
	Status              Status
	Lines               []Line
	Subtotal            decimal.Decimal
	DeliveryFee         decimal.Decimal
	Tax                 decimal.Decimal
	TotalAmount         decimal.Decimal
	DeliveryAddress     string
	DeliveryCity        string
	DeliveryPincode     string
	DeliveryPhone       string
	SpecialInstructions string
	DeliveryPartnerID   *int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

var (
	// ErrNotFound is returned when the order does not exist.
	ErrNotFound = fmt.Errorf("order %w", domainerr.ErrNotFound)

	// ErrFinalized rejects any transition once the order is DELIVERED or
	// CANCELLED.
	ErrFinalized = errors.Wrap(domainerr.ErrConflict, "order already finalized")

	// ErrNotOwner rejects cancellation by anyone but the placing customer.
	ErrNotOwner = errors.Wrap(domainerr.ErrForbidden, "order belongs to another customer")

	// ErrRestaurantUnavailable rejects placement against a restaurant that
	// is not accepting orders.
	ErrRestaurantUnavailable = errors.Wrap(domainerr.ErrValidation, "restaurant is not available for orders")

	// ErrNumberConflict surfaces an order number collision at creation.
	// Collisions are a construction failure, never silently retried.
	ErrNumberConflict = errors.Wrap(domainerr.ErrConflict, "order number already exists")
)

// IllegalTransitionError rejects a status change whose edge is not in the
// forward table.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error { return domainerr.ErrIllegalTransition }

// Page bounds list reads.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) withDefaults() Page {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Repository defines persistence for orders. Create persists the order and
// its line snapshots together and returns ErrNumberConflict when the order
// number is taken. GetByIDForUpdate takes a row lock inside an enclosing
// transaction scope so concurrent read-modify-write sequences serialize.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	SetDeliveryPartner(ctx context.Context, orderID, partnerID int64) error
	ListByCustomer(ctx context.Context, customerID int64, page Page) ([]Order, error)
	ListByRestaurant(ctx context.Context, restaurantID int64, page Page) ([]Order, error)
}
