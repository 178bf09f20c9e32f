package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feastline/orderflow/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (order_id, transaction_id, status, method, amount,
		gateway_response, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	paymentColumns = `id, order_id, transaction_id, status, method, amount,
		gateway_response, failure_reason, created_at, updated_at`

	getPaymentByOrderSQL          = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	getPaymentByOrderForUpdateSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 FOR UPDATE`
	getPaymentByTransactionSQL    = `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`

	updatePaymentSQL = `UPDATE payments SET status = $2, gateway_response = $3, failure_reason = $4, updated_at = $5
		WHERE id = $1`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL. The
// one-payment-per-order rule rests on the order id uniqueness constraint.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	err := pick(ctx, r.pool).QueryRow(ctx, insertPaymentSQL,
		p.OrderID, p.TransactionID, p.Status, p.Method, p.Amount,
		p.GatewayResponse, p.FailureReason, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if uniqueViolation(err, "payments_order_id_key") {
			return payment.ErrAlreadyExists
		}
		return errors.Wrapf(err, "creating payment for order %d", p.OrderID)
	}
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tag, err := pick(ctx, r.pool).Exec(ctx, updatePaymentSQL,
		p.ID, p.Status, p.GatewayResponse, p.FailureReason, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "updating payment %d", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*payment.Payment, error) {
	return r.get(ctx, getPaymentByOrderSQL, orderID)
}

func (r *PaymentRepository) GetByOrderIDForUpdate(ctx context.Context, orderID int64) (*payment.Payment, error) {
	return r.get(ctx, getPaymentByOrderForUpdateSQL, orderID)
}

func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	return r.get(ctx, getPaymentByTransactionSQL, transactionID)
}

func (r *PaymentRepository) get(ctx context.Context, sql string, arg any) (*payment.Payment, error) {
	rows, err := pick(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "getting payment")
	}
	p, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (payment.Payment, error) {
		var p payment.Payment
		err := row.Scan(
			&p.ID, &p.OrderID, &p.TransactionID, &p.Status, &p.Method, &p.Amount,
			&p.GatewayResponse, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
		)
		return p, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, errors.Wrap(err, "getting payment")
	}
	return &p, nil
}
