// Package tx abstracts the transactional boundary that read-modify-write
// sequences on an aggregate run inside.
package tx

import "context"

// Scope executes fn within one transaction: committed when fn returns nil,
// rolled back otherwise. The context passed to fn carries the transaction
// for repositories to pick up, so every read inside sees at least
// read-committed isolation and row locks taken with the store's
// select-for-update mechanics are held until the scope ends.
type Scope interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// Passthrough runs fn directly with no transaction. Used by tests and by
// stores that already serialize internally.
type Passthrough struct{}

func (Passthrough) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
