package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/feastline/orderflow/internal/domain/domainerr"
)

// BusConfig tunes the in-process event bus.
type BusConfig struct {
	// QueueSize bounds each subscriber's pending queue. Publish fails once
	// a queue is full rather than blocking the producer.
	QueueSize int
	// MaxAttempts is how many times a failing handler sees the same event
	// before it is dropped.
	MaxAttempts int
	// RetryDelay is the pause between redeliveries to a failing handler.
	RetryDelay time.Duration
}

func (c *BusConfig) withDefaults() BusConfig {
	cfg := *c
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	return cfg
}

// Bus is an in-process event channel. Each subscriber drains its own queue
// on a single goroutine, so events are delivered in publish order (and
// therefore in order per key). Failed handlers get bounded inline
// redelivery, which keeps the at-least-once contract without reordering.
type Bus struct {
	cfg BusConfig
	lg  *zap.Logger

	mu     sync.Mutex
	queues []chan *OrderEvent
	closed bool
	wg     sync.WaitGroup
}

var _ Publisher = (*Bus)(nil)
var _ Subscriber = (*Bus)(nil)

// NewBus creates a bus with the given config.
func NewBus(lg *zap.Logger, cfg BusConfig) *Bus {
	return &Bus{
		cfg: cfg.withDefaults(),
		lg:  lg.Named("bus"),
	}
}

// Subscribe registers a handler and starts its dispatch goroutine.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	queue := make(chan *OrderEvent, b.cfg.QueueSize)
	b.queues = append(b.queues, queue)

	b.wg.Add(1)
	go b.dispatch(queue, handler)
}

// Publish fans the event out to every subscriber queue. Enqueueing is
// best-effort per subscriber: a full queue does not stop delivery to the
// others, it only makes Publish report upstream-unavailable afterwards. The
// caller's state change is already committed and must not be rolled back.
func (b *Bus) Publish(_ context.Context, event *OrderEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("publish %s for %s: bus closed: %w",
			event.EventType, event.OrderNumber, domainerr.ErrUpstreamUnavailable)
	}

	full := 0
	for _, queue := range b.queues {
		select {
		case queue <- event:
		default:
			full++
		}
	}
	if full > 0 {
		return fmt.Errorf("publish %s for %s: %d of %d subscriber queues full: %w",
			event.EventType, event.OrderNumber, full, len(b.queues), domainerr.ErrUpstreamUnavailable)
	}
	return nil
}

// Close stops accepting events and waits for the dispatchers to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, queue := range b.queues {
		close(queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bus) dispatch(queue <-chan *OrderEvent, handler Handler) {
	defer b.wg.Done()

	ctx := zctx.Base(context.Background(), b.lg)
	for event := range queue {
		b.deliver(ctx, handler, event)
	}
}

// deliver retries inline so a failing event cannot overtake its successors
// for the same key.
func (b *Bus) deliver(ctx context.Context, handler Handler, event *OrderEvent) {
	for attempt := 1; ; attempt++ {
		err := handler(ctx, event)
		if err == nil {
			return
		}
		if attempt >= b.cfg.MaxAttempts {
			b.lg.Error("dropping event after failed deliveries",
				zap.String("event_type", event.EventType),
				zap.String("order_number", event.OrderNumber),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}
		b.lg.Warn("handler failed, redelivering",
			zap.String("event_type", event.EventType),
			zap.String("order_number", event.OrderNumber),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		time.Sleep(b.cfg.RetryDelay)
	}
}
