package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// DBTxKey carries an open transaction on the context. Repository methods
// resolve it before falling back to the pool, so every call made with the
// derived context joins the same transaction.
const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the transaction stored by RunInTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// ContextWithTx returns a context carrying the given transaction.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

// RunInTx executes fn inside a single transaction. If the context already
// carries one, fn joins it and commit/rollback is left to the outer caller.
// Otherwise a transaction is begun on the pool, committed when fn returns
// nil and rolled back when it returns an error.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Runner executes fn atomically. Services take a Runner instead of the pool
// so tests can substitute a pass-through.
type Runner func(ctx context.Context, fn func(ctx context.Context) error) error

// PoolRunner returns a Runner backed by RunInTx on the given pool.
func PoolRunner(pool *pgxpool.Pool) Runner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return RunInTx(ctx, pool, fn)
	}
}
