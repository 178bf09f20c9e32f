package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feastline/orderflow/internal/domain/domainerr"
	"github.com/feastline/orderflow/internal/domain/restaurant"
)

const (
	getRestaurantSQL = `SELECT id, name, status, address, city, delivery_fee, minimum_order_amount, prep_time_minutes
		FROM restaurants WHERE id = $1`

	getMenuItemSQL = `SELECT id, restaurant_id, name, price, available
		FROM menu_items WHERE id = $1`

	upsertRestaurantSQL = `INSERT INTO restaurants (id, name, status, address, city, delivery_fee, minimum_order_amount, prep_time_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, status = excluded.status,
			address = excluded.address, city = excluded.city,
			delivery_fee = excluded.delivery_fee,
			minimum_order_amount = excluded.minimum_order_amount,
			prep_time_minutes = excluded.prep_time_minutes`

	upsertMenuItemSQL = `INSERT INTO menu_items (id, restaurant_id, name, price, available)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			restaurant_id = excluded.restaurant_id, name = excluded.name,
			price = excluded.price, available = excluded.available`
)

var _ restaurant.Repository = (*RestaurantRepository)(nil)

// RestaurantRepository implements restaurant.Repository backed by PostgreSQL.
// The order flow only reads the catalog; writes come from the seeding tool.
type RestaurantRepository struct {
	pool *pgxpool.Pool
}

// NewRestaurantRepository returns a RestaurantRepository that uses the given pool.
func NewRestaurantRepository(pool *pgxpool.Pool) *RestaurantRepository {
	return &RestaurantRepository{pool: pool}
}

func (r *RestaurantRepository) GetRestaurant(ctx context.Context, id int64) (*restaurant.Restaurant, error) {
	rows, err := pick(ctx, r.pool).Query(ctx, getRestaurantSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting restaurant %d", id)
	}
	rest, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (restaurant.Restaurant, error) {
		var rest restaurant.Restaurant
		err := row.Scan(
			&rest.ID, &rest.Name, &rest.Status, &rest.Address, &rest.City,
			&rest.DeliveryFee, &rest.MinimumOrderAmount, &rest.PrepTimeMinutes,
		)
		return rest, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &restaurant.NotFoundError{ID: id}
		}
		return nil, errors.Wrapf(err, "getting restaurant %d", id)
	}
	return &rest, nil
}

func (r *RestaurantRepository) GetMenuItem(ctx context.Context, id int64) (*restaurant.MenuItem, error) {
	rows, err := pick(ctx, r.pool).Query(ctx, getMenuItemSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting menu item %d", id)
	}
	item, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (restaurant.MenuItem, error) {
		var item restaurant.MenuItem
		err := row.Scan(&item.ID, &item.RestaurantID, &item.Name, &item.Price, &item.Available)
		return item, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(domainerr.ErrNotFound, "menu item %d", id)
		}
		return nil, errors.Wrapf(err, "getting menu item %d", id)
	}
	return &item, nil
}

// UpsertRestaurant inserts or refreshes a catalog row, keeping seeded ids
// stable across runs.
func (r *RestaurantRepository) UpsertRestaurant(ctx context.Context, rest *restaurant.Restaurant) error {
	_, err := pick(ctx, r.pool).Exec(ctx, upsertRestaurantSQL,
		rest.ID, rest.Name, rest.Status, rest.Address, rest.City,
		rest.DeliveryFee, rest.MinimumOrderAmount, rest.PrepTimeMinutes,
	)
	if err != nil {
		return errors.Wrapf(err, "upserting restaurant %d", rest.ID)
	}
	return nil
}

// UpsertMenuItem inserts or refreshes a menu row.
func (r *RestaurantRepository) UpsertMenuItem(ctx context.Context, item *restaurant.MenuItem) error {
	_, err := pick(ctx, r.pool).Exec(ctx, upsertMenuItemSQL,
		item.ID, item.RestaurantID, item.Name, item.Price, item.Available,
	)
	if err != nil {
		return errors.Wrapf(err, "upserting menu item %d", item.ID)
	}
	return nil
}
