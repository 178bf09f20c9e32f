package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/feastline/orderflow/internal/domain/domainerr"
)

// AMQPChannel is the broker-backed event channel. Events are published
// persistently to a single durable queue, which preserves publish order and
// therefore order per key; unacked redelivery gives at-least-once.
type AMQPChannel struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	lg   *zap.Logger
}

var _ Publisher = (*AMQPChannel)(nil)
var _ Subscriber = (*AMQPChannel)(nil)

// DialAMQP connects to the broker and declares the order-events queue.
func DialAMQP(url string, lg *zap.Logger) (*AMQPChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	if _, err := ch.QueueDeclare(Topic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declare queue")
	}

	return &AMQPChannel{
		conn: conn,
		ch:   ch,
		lg:   lg.Named("amqp"),
	}, nil
}

// Publish sends the event to the order-events queue, routed by order number.
func (c *AMQPChannel) Publish(_ context.Context, event *OrderEvent) error {
	err := c.ch.Publish("", Topic, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     event.EventID,
		Type:          event.EventType,
		CorrelationId: event.OrderNumber,
		Timestamp:     event.Timestamp,
		Body:          encodeOrderEvent(event),
	})
	if err != nil {
		return errors.Wrapf(domainerr.ErrUpstreamUnavailable,
			"publish %s for %s: %s", event.EventType, event.OrderNumber, err)
	}
	return nil
}

// Subscribe starts a consumer goroutine. Handler errors nack with requeue;
// undecodable bodies are rejected without requeue.
func (c *AMQPChannel) Subscribe(handler Handler) {
	deliveries, err := c.ch.Consume(Topic, "", false, false, false, false, nil)
	if err != nil {
		c.lg.Error("consume failed", zap.Error(err))
		return
	}

	go func() {
		ctx := context.Background()
		for d := range deliveries {
			event, err := decodeOrderEvent(d.Body)
			if err != nil {
				c.lg.Error("rejecting undecodable event",
					zap.String("message_id", d.MessageId), zap.Error(err))
				_ = d.Reject(false)
				continue
			}
			if err := handler(ctx, event); err != nil {
				c.lg.Warn("handler failed, requeueing",
					zap.String("event_type", event.EventType),
					zap.String("order_number", event.OrderNumber),
					zap.Error(err),
				)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}()
}

// Close shuts down the channel and connection.
func (c *AMQPChannel) Close() error {
	if err := c.ch.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}

func encodeOrderEvent(event *OrderEvent) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event_id")
	e.Str(event.EventID)
	e.FieldStart("event_type")
	e.Str(event.EventType)
	e.FieldStart("order_id")
	e.Int64(event.OrderID)
	e.FieldStart("order_number")
	e.Str(event.OrderNumber)
	e.FieldStart("customer_id")
	e.Int64(event.CustomerID)
	e.FieldStart("restaurant_id")
	e.Int64(event.RestaurantID)
	e.FieldStart("status")
	e.Str(event.Status)
	e.FieldStart("total_amount")
	e.Str(event.TotalAmount.String())
	e.FieldStart("timestamp")
	e.Str(event.Timestamp.Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

func decodeOrderEvent(body []byte) (*OrderEvent, error) {
	var event OrderEvent
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "event_id":
			event.EventID, err = d.Str()
		case "event_type":
			event.EventType, err = d.Str()
		case "order_id":
			event.OrderID, err = d.Int64()
		case "order_number":
			event.OrderNumber, err = d.Str()
		case "customer_id":
			event.CustomerID, err = d.Int64()
		case "restaurant_id":
			event.RestaurantID, err = d.Int64()
		case "status":
			event.Status, err = d.Str()
		case "total_amount":
			var s string
			if s, err = d.Str(); err == nil {
				event.TotalAmount, err = decimal.NewFromString(s)
			}
		case "timestamp":
			var s string
			if s, err = d.Str(); err == nil {
				event.Timestamp, err = time.Parse(time.RFC3339Nano, s)
			}
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order event")
	}
	return &event, nil
}
