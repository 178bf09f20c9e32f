package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/feastline/orderflow/internal/domain/domainerr"
)

// Status is the payment lifecycle state. REFUNDED is terminal and reachable
// only from COMPLETED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusRefunded   Status = "REFUNDED"
)

// Method is how the customer pays.
type Method string

const (
	MethodCreditCard     Method = "CREDIT_CARD"
	MethodDebitCard      Method = "DEBIT_CARD"
	MethodUPI            Method = "UPI"
	MethodNetBanking     Method = "NET_BANKING"
	MethodCashOnDelivery Method = "CASH_ON_DELIVERY"
	MethodWallet         Method = "WALLET"
)

// ParseMethod validates a payment method name from the transport layer.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodCreditCard, MethodDebitCard, MethodUPI, MethodNetBanking, MethodCashOnDelivery, MethodWallet:
		return Method(s), nil
	}
	return "", errors.Wrapf(domainerr.ErrValidation, "unknown payment method %q", s)
}

// Payment records at most one payment attempt per order. Amount is pinned to
// the order's total at creation time and never recomputed.
type Payment struct {
	ID              int64
	OrderID         int64
	TransactionID   string
	Status          Status
	Method          Method
	Amount          decimal.Decimal
	GatewayResponse string
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

var (
	// ErrNotFound is returned when no payment exists for the lookup key.
	ErrNotFound = fmt.Errorf("payment %w", domainerr.ErrNotFound)

	// ErrAlreadyExists enforces at most one payment per order. It is backed
	// by a uniqueness constraint on order id, not a check-then-act read.
	ErrAlreadyExists = errors.Wrap(domainerr.ErrConflict, "payment already exists for this order")

	// ErrRefundNotAllowed rejects refunds of payments that are not
	// COMPLETED, including repeated refunds.
	ErrRefundNotAllowed = errors.Wrap(domainerr.ErrConflict, "only completed payments can be refunded")
)

// Repository defines persistence for payments. Create returns
// ErrAlreadyExists on an order id uniqueness violation.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	GetByOrderID(ctx context.Context, orderID int64) (*Payment, error)
	GetByOrderIDForUpdate(ctx context.Context, orderID int64) (*Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
}
