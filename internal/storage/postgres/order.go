package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feastline/orderflow/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (order_number, customer_id, restaurant_id, status,
		subtotal, delivery_fee, tax, total_amount,
		delivery_address, delivery_city, delivery_pincode, delivery_phone,
		special_instructions, delivery_partner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, menu_item_id, name, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)`

	orderColumns = `id, order_number, customer_id, restaurant_id, status,
		subtotal, delivery_fee, tax, total_amount,
		delivery_address, delivery_city, delivery_pincode, delivery_phone,
		special_instructions, delivery_partner_id, created_at, updated_at`

	getOrderByIDSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByIDForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	getOrderByNumberSQL      = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	updateOrderSQL = `UPDATE orders SET status = $2, delivery_partner_id = $3, updated_at = $4
		WHERE id = $1`

	setOrderPartnerSQL = `UPDATE orders SET delivery_partner_id = $2, updated_at = now()
		WHERE id = $1`

	listOrderLinesSQL = `SELECT menu_item_id, name, quantity, unit_price, line_total
		FROM order_lines WHERE order_id = $1 ORDER BY id`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	listOrdersByRestaurantSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE restaurant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its line snapshots. An order number
// collision surfaces as ErrNumberConflict.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := pick(ctx, r.pool)

	err := q.QueryRow(ctx, insertOrderSQL,
		o.OrderNumber, o.CustomerID, o.RestaurantID, o.Status,
		o.Subtotal, o.DeliveryFee, o.Tax, o.TotalAmount,
		o.DeliveryAddress, o.DeliveryCity, o.DeliveryPincode, o.DeliveryPhone,
		o.SpecialInstructions, o.DeliveryPartnerID, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		if uniqueViolation(err, "orders_order_number_key") {
			return order.ErrNumberConflict
		}
		return errors.Wrapf(err, "creating order %q", o.OrderNumber)
	}

	for _, line := range o.Lines {
		_, err := q.Exec(ctx, insertOrderLineSQL,
			o.ID, line.MenuItemID, line.Name, line.Quantity, line.UnitPrice, line.LineTotal,
		)
		if err != nil {
			return errors.Wrapf(err, "creating line for order %q", o.OrderNumber)
		}
	}
	return nil
}

// GetByID returns the order with its line snapshots.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.get(ctx, getOrderByIDSQL, id)
}

// GetByIDForUpdate locks the order row for the enclosing transaction.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	return r.get(ctx, getOrderByIDForUpdateSQL, id)
}

// GetByNumber returns the order with the given order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.get(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) get(ctx context.Context, sql string, arg any) (*order.Order, error) {
	q := pick(ctx, r.pool)

	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "getting order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "getting order")
	}

	if err := r.loadLines(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Update persists the mutable fields: status, partner binding, updated
// timestamp. Item snapshots and totals are immutable after placement.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := pick(ctx, r.pool).Exec(ctx, updateOrderSQL,
		o.ID, o.Status, o.DeliveryPartnerID, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "updating order %d", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// SetDeliveryPartner writes only the partner binding, used by the delivery
// assignment transaction.
func (r *OrderRepository) SetDeliveryPartner(ctx context.Context, orderID, partnerID int64) error {
	tag, err := pick(ctx, r.pool).Exec(ctx, setOrderPartnerSQL, orderID, partnerID)
	if err != nil {
		return errors.Wrapf(err, "setting partner on order %d", orderID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID int64, page order.Page) ([]order.Order, error) {
	return r.list(ctx, listOrdersByCustomerSQL, customerID, page)
}

// ListByRestaurant returns the restaurant's orders, newest first.
func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID int64, page order.Page) ([]order.Order, error) {
	return r.list(ctx, listOrdersByRestaurantSQL, restaurantID, page)
}

func (r *OrderRepository) list(ctx context.Context, sql string, id int64, page order.Page) ([]order.Order, error) {
	rows, err := pick(ctx, r.pool).Query(ctx, sql, id, page.Limit, page.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "listing orders")
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "listing orders")
	}
	for i := range out {
		if err := r.loadLines(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, o *order.Order) error {
	rows, err := pick(ctx, r.pool).Query(ctx, listOrderLinesSQL, o.ID)
	if err != nil {
		return errors.Wrapf(err, "loading lines for order %d", o.ID)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Line, error) {
		var l order.Line
		err := row.Scan(&l.MenuItemID, &l.Name, &l.Quantity, &l.UnitPrice, &l.LineTotal)
		return l, err
	})
	if err != nil {
		return errors.Wrapf(err, "loading lines for order %d", o.ID)
	}
	o.Lines = lines
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.RestaurantID, &o.Status,
		&o.Subtotal, &o.DeliveryFee, &o.Tax, &o.TotalAmount,
		&o.DeliveryAddress, &o.DeliveryCity, &o.DeliveryPincode, &o.DeliveryPhone,
		&o.SpecialInstructions, &o.DeliveryPartnerID, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}
