package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/feastline/orderflow/internal/domain/order"
	"github.com/feastline/orderflow/internal/tx"
)

// Service processes and refunds payments against existing orders, enforcing
// at most one payment per order.
type Service struct {
	payments Repository
	orders   order.Repository
	gateway  Gateway
	scope    tx.Scope
	now      func() time.Time
}

// NewService creates a payment Service with the required dependencies.
func NewService(payments Repository, orders order.Repository, gateway Gateway, scope tx.Scope) *Service {
	return &Service{
		payments: payments,
		orders:   orders,
		gateway:  gateway,
		scope:    scope,
		now:      time.Now,
	}
}

// Process charges the order's current total through the gateway. The payment
// row is created in PROCESSING before the gateway call, with the amount
// pinned; the order id uniqueness constraint rejects a second attempt. The
// caller observably waits on the gateway's processing latency.
func (s *Service) Process(ctx context.Context, orderID int64, method Method) (*Payment, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &Payment{
		OrderID:       o.ID,
		TransactionID: newTransactionID(),
		Status:        StatusProcessing,
		Method:        method,
		Amount:        o.TotalAmount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.scope.Execute(ctx, func(ctx context.Context) error {
		return s.payments.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	accepted, err := s.gateway.Charge(ctx, p.Amount, method)
	if err != nil {
		// Cancellation mid-charge: record the attempt as failed so the
		// outcome is never ambiguous.
		p.Status = StatusFailed
		p.FailureReason = fmt.Sprintf("gateway call aborted: %s", err)
	} else if accepted {
		p.Status = StatusCompleted
		p.GatewayResponse = "Payment successful. Transaction ID: " + p.TransactionID
	} else {
		p.Status = StatusFailed
		p.GatewayResponse = "Payment failed"
		p.FailureReason = "Payment gateway declined the transaction"
	}
	p.UpdatedAt = s.now().UTC()

	// The terminal status must land even when the request context was
	// cancelled mid-charge, otherwise the row stays PROCESSING and the
	// per-order uniqueness constraint blocks every retry.
	updateErr := s.scope.Execute(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return s.payments.Update(ctx, p)
	})
	if updateErr != nil {
		return nil, errors.Wrap(updateErr, "record gateway outcome")
	}
	return p, nil
}

// Refund transitions a COMPLETED payment to REFUNDED. REFUNDED is terminal;
// a repeated refund fails the same way as refunding a failed payment.
func (s *Service) Refund(ctx context.Context, orderID int64) (*Payment, error) {
	var p *Payment
	err := s.scope.Execute(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.payments.GetByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if p.Status != StatusCompleted {
			return ErrRefundNotAllowed
		}

		p.Status = StatusRefunded
		p.GatewayResponse = "Refund processed successfully"
		p.UpdatedAt = s.now().UTC()
		return s.payments.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByOrder returns the payment for an order.
func (s *Service) GetByOrder(ctx context.Context, orderID int64) (*Payment, error) {
	return s.payments.GetByOrderID(ctx, orderID)
}

// GetByTransaction returns the payment with the given transaction id.
func (s *Service) GetByTransaction(ctx context.Context, transactionID string) (*Payment, error) {
	return s.payments.GetByTransactionID(ctx, transactionID)
}

func newTransactionID() string {
	return "TXN-" + uuid.NewString()
}
