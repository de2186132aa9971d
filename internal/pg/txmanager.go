package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const defaultTxTimeout = 5 * time.Second

type TransactionalFn func(ctx context.Context) error

type TXManager interface {
	Begin(ctx context.Context, fn TransactionalFn) error
}

type txKey struct{}

func injectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

type Manager struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewTXManager(pool *pgxpool.Pool, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &Manager{
		pool:    pool,
		timeout: timeout,
	}
}

// Begin runs fn inside a database transaction. A nested Begin opens a
// savepoint on the transaction already in flight, so multi-service units
// commit atomically while an inner failure leaves the outer unit usable.
// Every transaction carries a timeout; nothing blocks indefinitely.
func (m *Manager) Begin(ctx context.Context, fn TransactionalFn) error {
	if outer, ok := txFromContext(ctx); ok {
		return m.beginNested(ctx, outer, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("can't begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			zap.L().Error("failed to rollback transaction", zap.Error(err))
		}
	}()

	if err := fn(injectTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit transaction: %w", err)
	}
	return nil
}

// beginNested runs fn under a savepoint. When fn fails, only the savepoint is
// rolled back: a unique-violation abort inside fn must not take the outer
// transaction down with it, or the duplicate replay lookup that follows would
// run on an aborted transaction.
func (m *Manager) beginNested(ctx context.Context, outer pgx.Tx, fn TransactionalFn) error {
	nested, err := outer.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't begin nested transaction: %w", err)
	}
	defer func() {
		if err := nested.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			zap.L().Error("failed to rollback nested transaction", zap.Error(err))
		}
	}()

	if err := fn(injectTx(ctx, nested)); err != nil {
		return err
	}

	if err := nested.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit nested transaction: %w", err)
	}
	return nil
}
