package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Queryer
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx and tracks whether it has been closed
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{
		Tx:     tx,
		logger: logger,
	}
}

// GetTx returns the open transaction carried by ctx or begins a new one and stores it in the
// returned context.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if ctxTx, ok := ctx.Value(txKey).(Tx); ok && ctxTx != nil && ctxTx.IsOpen() {
		return ctx, ctxTx, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

// Executor returns the transaction carried by ctx, falling back to the pool.
func Executor(ctx context.Context, db Queryer) Queryer {
	if ctxTx, ok := ctx.Value(txKey).(Tx); ok && ctxTx != nil && ctxTx.IsOpen() {
		return ctxTx
	}
	return db
}

// WithTransaction runs fn inside one transaction. Calls made with the context passed to fn
// join it. The transaction commits when fn returns nil and rolls back otherwise. A transaction
// already carried by ctx is reused and left for its owner to close.
func WithTransaction(ctx context.Context, db DB, fn func(ctx context.Context) error) error {
	if ctxTx, ok := ctx.Value(txKey).(Tx); ok && ctxTx != nil && ctxTx.IsOpen() {
		return fn(ctx)
	}

	txCtx, tx, err := db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	// rolls back when fn panics
	defer func() {
		if tx.IsOpen() {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	t.isClosed = true
	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	t.isClosed = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}
	return nil
}
