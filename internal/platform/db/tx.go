package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "db_tx"

// TxFromContext retrieves the active transaction from context, if any.
// Repositories route their queries through it so that multi-table writes
// started by a service share one transaction.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// TxRunner runs a function inside a database transaction. Services depend on
// this interface rather than on the pool so tests can substitute a fake.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolTxRunner is the pgx-backed TxRunner. It begins a transaction on the
// pool, stashes it in the context for repositories to pick up, and commits
// when fn returns nil. Any error (or panic) rolls the transaction back
// before the connection is released.
type PoolTxRunner struct {
	Pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *PoolTxRunner {
	return &PoolTxRunner{Pool: pool}
}

func (r *PoolTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
