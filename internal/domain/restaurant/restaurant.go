package restaurant

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/feastline/orderflow/internal/domain/domainerr"
)

// Status describes whether a restaurant currently accepts orders.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Restaurant holds the subset of catalog data the order flow depends on:
// orderability, the fee schedule, and the pickup location.
type Restaurant struct {
	ID                 int64
	Name               string
	Status             Status
	Address            string
	City               string
	DeliveryFee        decimal.Decimal
	MinimumOrderAmount *decimal.Decimal
	PrepTimeMinutes    *int
}

// Orderable reports whether the restaurant accepts new orders.
func (r *Restaurant) Orderable() bool {
	return r.Status == StatusActive
}

// PickupAddress is the single-line address used on delivery records.
func (r *Restaurant) PickupAddress() string {
	return r.Address + ", " + r.City
}

// MenuItem is a priced catalog entry. Price and availability are read at
// order time; placed orders keep their own snapshot.
type MenuItem struct {
	ID           int64
	RestaurantID int64
	Name         string
	Price        decimal.Decimal
	Available    bool
}

// NotFoundError indicates the referenced restaurant does not exist.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("restaurant %d not found", e.ID)
}

func (e *NotFoundError) Unwrap() error { return domainerr.ErrNotFound }

// Repository is the catalog lookup contract consumed by the order flow.
type Repository interface {
	GetRestaurant(ctx context.Context, id int64) (*Restaurant, error)
	GetMenuItem(ctx context.Context, id int64) (*MenuItem, error)
}
