package payment

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the external payment processor surrogate. Charge blocks for the
// duration of the simulated network call and reports whether the charge was
// accepted; err is reserved for cancellation.
type Gateway interface {
	Charge(ctx context.Context, amount decimal.Decimal, method Method) (accepted bool, err error)
}

// SimulatedGateway approves a configurable fraction of charges after a
// configurable processing delay. The wait is timer-based and aborts when the
// context is done, so callers stay cancellable.
type SimulatedGateway struct {
	SuccessRate float64
	Delay       time.Duration
}

var _ Gateway = (*SimulatedGateway)(nil)

func (g *SimulatedGateway) Charge(ctx context.Context, _ decimal.Decimal, _ Method) (bool, error) {
	if g.Delay > 0 {
		timer := time.NewTimer(g.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}
	return rand.Float64() < g.SuccessRate, nil
}
