package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "db_tx"

// Queryable is the subset of pgx operations repositories need. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so repository code is identical
// inside and outside a transaction.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// TxFromContext retrieves the active transaction from context, or nil when
// the caller is not inside RunInTx.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// TxRunner is the unit-of-work boundary: fn either commits as a whole or
// every write inside it is rolled back. Services depend on this interface
// so tests can substitute a passthrough runner.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type pgTxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner returns a TxRunner backed by the connection pool. Transactions
// run at REPEATABLE READ; operations that need stronger guarantees take
// explicit row locks (SELECT ... FOR UPDATE) inside fn.
func NewTxRunner(pool *pgxpool.Pool) TxRunner {
	return &pgTxRunner{pool: pool}
}

func (r *pgTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// PassthroughTxRunner invokes fn directly with no transaction. Intended for
// tests that pair services with in-memory repositories.
type PassthroughTxRunner struct{}

func (PassthroughTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
