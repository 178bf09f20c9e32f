// Command seed-db loads a restaurant catalog into the database. The catalog
// file is JSON, optionally gzip-compressed, so exported production catalogs
// can be ingested as-is.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/feastline/orderflow/internal/domain/restaurant"
	"github.com/feastline/orderflow/internal/storage/postgres"
)

type menuItemJSON struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available *bool           `json:"available"`
}

type restaurantJSON struct {
	ID                 int64            `json:"id"`
	Name               string           `json:"name"`
	Status             string           `json:"status"`
	Address            string           `json:"address"`
	City               string           `json:"city"`
	DeliveryFee        decimal.Decimal  `json:"deliveryFee"`
	MinimumOrderAmount *decimal.Decimal `json:"minimumOrderAmount"`
	PrepTimeMinutes    *int             `json:"prepTimeMinutes"`
	Menu               []menuItemJSON   `json:"menu"`
}

func main() {
	var (
		databaseURL string
		catalogFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/restaurants.json", "path to restaurant catalog JSON (plain or .gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	catalog, err := readCatalog(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}

	repo := postgres.NewRestaurantRepository(pool)
	return seedCatalog(ctx, repo, catalog)
}

func readCatalog(path string) ([]restaurantJSON, error) {
	slog.Info("reading catalog file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog file")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer gz.Close()
		r = gz
	}

	var catalog []restaurantJSON
	if err := json.NewDecoder(r).Decode(&catalog); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}
	return catalog, nil
}

// seedCatalog upserts restaurants concurrently; each restaurant's menu rows
// follow its own upsert so foreign keys always resolve.
func seedCatalog(ctx context.Context, repo *postgres.RestaurantRepository, catalog []restaurantJSON) error {
	slog.Info("upserting restaurants", slog.Int("count", len(catalog)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, r := range catalog {
		g.Go(func() error {
			status := restaurant.Status(r.Status)
			if status == "" {
				status = restaurant.StatusActive
			}

			err := repo.UpsertRestaurant(ctx, &restaurant.Restaurant{
				ID:                 r.ID,
				Name:               r.Name,
				Status:             status,
				Address:            r.Address,
				City:               r.City,
				DeliveryFee:        r.DeliveryFee,
				MinimumOrderAmount: r.MinimumOrderAmount,
				PrepTimeMinutes:    r.PrepTimeMinutes,
			})
			if err != nil {
				return errors.Wrapf(err, "upsert restaurant %d", r.ID)
			}

			for _, it := range r.Menu {
				available := true
				if it.Available != nil {
					available = *it.Available
				}
				err := repo.UpsertMenuItem(ctx, &restaurant.MenuItem{
					ID:           it.ID,
					RestaurantID: r.ID,
					Name:         it.Name,
					Price:        it.Price,
					Available:    available,
				})
				if err != nil {
					return errors.Wrapf(err, "upsert menu item %d", it.ID)
				}
			}

			slog.Info("upserted restaurant",
				slog.Int64("id", r.ID),
				slog.String("name", r.Name),
				slog.Int("menu_items", len(r.Menu)),
			)
			return nil
		})
	}

	return g.Wait()
}
