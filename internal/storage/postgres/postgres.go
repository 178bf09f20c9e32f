// Package postgres implements the domain repositories on PostgreSQL.
package postgres

import (
	"context"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-faster/errors"

	"github.com/feastline/orderflow/db"
	"github.com/feastline/orderflow/internal/tx"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "running migrations")
	}
	return nil
}

// querier is satisfied by both the pool and an in-flight transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

func withTx(ctx context.Context, t pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

func txFrom(ctx context.Context) pgx.Tx {
	t, _ := ctx.Value(txKey{}).(pgx.Tx)
	return t
}

// pick returns the context's transaction when one is in flight, so every
// statement issued inside a Scope.Execute joins the same transaction and
// row locks taken with FOR UPDATE hold until it ends.
func pick(ctx context.Context, pool *pgxpool.Pool) querier {
	if t := txFrom(ctx); t != nil {
		return t
	}
	return pool
}

// TxScope implements tx.Scope on pgx transactions with read-committed
// isolation. Nested Execute calls join the enclosing transaction.
type TxScope struct {
	pool *pgxpool.Pool
}

var _ tx.Scope = (*TxScope)(nil)

// NewTxScope creates a TxScope on the given pool.
func NewTxScope(pool *pgxpool.Pool) *TxScope {
	return &TxScope{pool: pool}
}

func (s *TxScope) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(t pgx.Tx) error {
		return fn(withTx(ctx, t))
	})
}

// uniqueViolation reports whether err is a violation of the named unique
// constraint (SQLSTATE 23505). Repositories use it to translate insert
// conflicts into domain conflict errors.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
