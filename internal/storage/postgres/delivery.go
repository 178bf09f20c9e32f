package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feastline/orderflow/internal/domain/delivery"
)

const (
	insertDeliverySQL = `INSERT INTO deliveries (order_id, delivery_partner_id, status,
		pickup_address, delivery_address, estimated_delivery_time, actual_delivery_time,
		tracking_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	deliveryColumns = `id, order_id, delivery_partner_id, status,
		pickup_address, delivery_address, estimated_delivery_time, actual_delivery_time,
		tracking_url, created_at, updated_at`

	getDeliveryByOrderSQL          = `SELECT ` + deliveryColumns + ` FROM deliveries WHERE order_id = $1`
	getDeliveryByOrderForUpdateSQL = `SELECT ` + deliveryColumns + ` FROM deliveries WHERE order_id = $1 FOR UPDATE`

	updateDeliverySQL = `UPDATE deliveries SET delivery_partner_id = $2, status = $3,
		actual_delivery_time = $4, updated_at = $5
		WHERE id = $1`
)

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository implements delivery.Repository backed by PostgreSQL. The
// one-delivery-per-order rule rests on the order id uniqueness constraint, so
// the reactive consumer and the explicit endpoint can race safely.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

func (r *DeliveryRepository) Create(ctx context.Context, d *delivery.Delivery) error {
	err := pick(ctx, r.pool).QueryRow(ctx, insertDeliverySQL,
		d.OrderID, d.DeliveryPartnerID, d.Status,
		d.PickupAddress, d.DeliveryAddress, d.EstimatedDeliveryTime, d.ActualDeliveryTime,
		d.TrackingURL, d.CreatedAt, d.UpdatedAt,
	).Scan(&d.ID)
	if err != nil {
		if uniqueViolation(err, "deliveries_order_id_key") {
			return delivery.ErrAlreadyExists
		}
		return errors.Wrapf(err, "creating delivery for order %d", d.OrderID)
	}
	return nil
}

func (r *DeliveryRepository) Update(ctx context.Context, d *delivery.Delivery) error {
	tag, err := pick(ctx, r.pool).Exec(ctx, updateDeliverySQL,
		d.ID, d.DeliveryPartnerID, d.Status, d.ActualDeliveryTime, d.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "updating delivery %d", d.ID)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

func (r *DeliveryRepository) GetByOrderID(ctx context.Context, orderID int64) (*delivery.Delivery, error) {
	return r.get(ctx, getDeliveryByOrderSQL, orderID)
}

func (r *DeliveryRepository) GetByOrderIDForUpdate(ctx context.Context, orderID int64) (*delivery.Delivery, error) {
	return r.get(ctx, getDeliveryByOrderForUpdateSQL, orderID)
}

func (r *DeliveryRepository) get(ctx context.Context, sql string, orderID int64) (*delivery.Delivery, error) {
	rows, err := pick(ctx, r.pool).Query(ctx, sql, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "getting delivery")
	}
	d, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (delivery.Delivery, error) {
		var d delivery.Delivery
		err := row.Scan(
			&d.ID, &d.OrderID, &d.DeliveryPartnerID, &d.Status,
			&d.PickupAddress, &d.DeliveryAddress, &d.EstimatedDeliveryTime, &d.ActualDeliveryTime,
			&d.TrackingURL, &d.CreatedAt, &d.UpdatedAt,
		)
		return d, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, errors.Wrap(err, "getting delivery")
	}
	return &d, nil
}
