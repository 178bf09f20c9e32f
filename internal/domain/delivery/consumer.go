package delivery

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/feastline/orderflow/internal/events"
)

// Consumer reacts to ORDER_ACCEPTED events by creating the delivery record.
// Duplicate deliveries are the channel's idempotency contract at work, not a
// fault: they are logged and acked, never propagated as handler failures.
type Consumer struct {
	service *Service

	// seen routes likely redeliveries to a cheap read instead of an
	// insert that would bounce off the uniqueness constraint. The
	// constraint stays the authority; a bloom positive only changes the
	// path, never the outcome.
	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewConsumer creates a Consumer for the given delivery service.
func NewConsumer(service *Service) *Consumer {
	return &Consumer{
		service: service,
		seen:    bloom.NewWithEstimates(100_000, 0.01),
	}
}

// Handle implements events.Handler.
func (c *Consumer) Handle(ctx context.Context, event *events.OrderEvent) error {
	if event.EventType != events.TypeOrderAccepted {
		return nil
	}
	lg := zctx.From(ctx).With(
		zap.String("order_number", event.OrderNumber),
		zap.Int64("order_id", event.OrderID),
	)

	if c.test(event.EventID) {
		if _, err := c.service.GetByOrder(ctx, event.OrderID); err == nil {
			lg.Debug("delivery already created, skipping redelivered event")
			return nil
		}
	}

	_, err := c.service.Create(ctx, event.OrderID)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			lg.Debug("delivery already exists, duplicate event swallowed")
			c.add(event.EventID)
			return nil
		}
		return errors.Wrap(err, "create delivery from event")
	}

	lg.Info("delivery created from order event")
	c.add(event.EventID)
	return nil
}

func (c *Consumer) test(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen.TestString(eventID)
}

func (c *Consumer) add(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen.AddString(eventID)
}
