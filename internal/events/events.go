// Package events carries order lifecycle facts between aggregates. The
// channel is at-least-once and ordered per order number; consumers must be
// idempotent.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topic is the single stream all order lifecycle events flow through.
const Topic = "order-events"

// Event type names. Any other status transition publishes "ORDER_" plus the
// status name.
const (
	TypeOrderPlaced    = "ORDER_PLACED"
	TypeOrderAccepted  = "ORDER_ACCEPTED"
	TypeOrderCancelled = "ORDER_CANCELLED"
)

// OrderEvent is an immutable fact about an order transition. It is published
// keyed by OrderNumber and never mutated.
type OrderEvent struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	OrderID      int64           `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	CustomerID   int64           `json:"customer_id"`
	RestaurantID int64           `json:"restaurant_id"`
	Status       string          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Timestamp    time.Time       `json:"timestamp"`
}

// NewOrderEvent stamps a fresh event id and timestamp.
func NewOrderEvent(eventType string) *OrderEvent {
	return &OrderEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// Key returns the ordering key for the event.
func (e *OrderEvent) Key() string { return e.OrderNumber }

// Handler processes one delivered event. Returning an error requests
// redelivery, so handlers must treat expected duplicates as success.
type Handler func(ctx context.Context, event *OrderEvent) error

// Publisher submits events to the channel. A failed publish after the
// producing state change committed is surfaced as a warning, never a
// rollback.
type Publisher interface {
	Publish(ctx context.Context, event *OrderEvent) error
}

// Subscriber registers a handler that receives events asynchronously on its
// own goroutine, at least once, ordered per key.
type Subscriber interface {
	Subscribe(handler Handler)
}
