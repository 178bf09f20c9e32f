// Package pricing turns a cart into priced line snapshots and totals.
package pricing

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/feastline/orderflow/internal/domain/domainerr"
	"github.com/feastline/orderflow/internal/domain/restaurant"
)

// TaxRate is applied to the subtotal of every order.
var TaxRate = decimal.RequireFromString("0.18")

// CartLine references a menu item and a quantity.
type CartLine struct {
	MenuItemID int64
	Quantity   int
}

// PricedLine is an immutable snapshot of one cart line at quote time. Later
// menu edits must not affect it.
type PricedLine struct {
	MenuItemID int64
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
}

// Quote holds the computed totals for a cart. Total is always
// Subtotal + DeliveryFee + Tax; it is never stored independently.
type Quote struct {
	Lines       []PricedLine
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

// ErrEmptyCart is returned when the cart has no lines.
var ErrEmptyCart = fmt.Errorf("cart items required: %w", domainerr.ErrValidation)

// ItemNotFoundError indicates a cart line references a menu item that does
// not resolve.
type ItemNotFoundError struct {
	MenuItemID int64
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("menu item %d not found", e.MenuItemID)
}

func (e *ItemNotFoundError) Unwrap() error { return domainerr.ErrNotFound }

// ItemUnavailableError indicates a referenced menu item is not currently
// orderable.
type ItemUnavailableError struct {
	MenuItemID int64
	Name       string
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("menu item %q not available", e.Name)
}

func (e *ItemUnavailableError) Unwrap() error { return domainerr.ErrValidation }

// InvalidQuantityError indicates a cart line has a non-positive quantity.
type InvalidQuantityError struct {
	MenuItemID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for menu item %d", e.MenuItemID)
}

func (e *InvalidQuantityError) Unwrap() error { return domainerr.ErrValidation }

// BelowMinimumOrderError indicates the cart subtotal is below the
// restaurant's configured minimum.
type BelowMinimumOrderError struct {
	Minimum decimal.Decimal
}

func (e *BelowMinimumOrderError) Error() string {
	return fmt.Sprintf("order amount must be at least %s", e.Minimum)
}

func (e *BelowMinimumOrderError) Unwrap() error { return domainerr.ErrValidation }

// MenuLookup resolves menu item references at quote time.
type MenuLookup interface {
	GetMenuItem(ctx context.Context, id int64) (*restaurant.MenuItem, error)
}

// Compute prices a cart against the restaurant's fee schedule. All
// arithmetic is exact decimal; tax is Subtotal x 0.18 with no rounding.
// The function has no side effects beyond the menu reads.
func Compute(ctx context.Context, r *restaurant.Restaurant, lines []CartLine, menu MenuLookup) (*Quote, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	priced := make([]PricedLine, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{MenuItemID: line.MenuItemID}
		}

		item, err := menu.GetMenuItem(ctx, line.MenuItemID)
		if err != nil {
			if errors.Is(err, domainerr.ErrNotFound) {
				return nil, &ItemNotFoundError{MenuItemID: line.MenuItemID}
			}
			return nil, errors.Wrap(err, "lookup menu item")
		}
		if !item.Available {
			return nil, &ItemUnavailableError{MenuItemID: item.ID, Name: item.Name}
		}

		lineTotal := item.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		priced = append(priced, PricedLine{
			MenuItemID: item.ID,
			Name:       item.Name,
			Quantity:   line.Quantity,
			UnitPrice:  item.Price,
			LineTotal:  lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	if r.MinimumOrderAmount != nil && subtotal.LessThan(*r.MinimumOrderAmount) {
		return nil, &BelowMinimumOrderError{Minimum: *r.MinimumOrderAmount}
	}

	fee := r.DeliveryFee
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	tax := subtotal.Mul(TaxRate)

	return &Quote{
		Lines:       priced,
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Tax:         tax,
		Total:       subtotal.Add(fee).Add(tax),
	}, nil
}
