// Package domainerr defines the error kinds shared by all domain services.
// Concrete domain errors wrap exactly one kind so that transport layers can
// classify failures with errors.Is without knowing every sentinel.
package domainerr

import "github.com/go-faster/errors"

var (
	// ErrNotFound marks lookups of absent orders, payments, deliveries,
	// restaurants, or menu items.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks duplicate creations (payment/delivery already
	// exists), already-finalized orders, and not-pending deliveries.
	ErrConflict = errors.New("conflict")

	// ErrForbidden marks ownership or permission mismatches.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation marks bad carts, unavailable items, and below-minimum
	// orders.
	ErrValidation = errors.New("validation failed")

	// ErrIllegalTransition marks state-machine edge violations.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrUpstreamUnavailable marks event-channel publish failures. Callers
	// log it as a warning next to an already-committed domain result; the
	// state change is never rolled back for it.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
