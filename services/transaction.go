package services

import (
	"context"
	"fmt"

	"github.com/upb/tasker-auth/repositories"
)

// TxFunc is the unit of work run by WithTransaction. Repositories used inside
// must be bound with WithTx(tx) to take part in the transaction.
type TxFunc[T any] func(ctx context.Context, tx repositories.Transaction) (T, error)

// WithTransaction runs fn inside a transaction and returns its result.
// Commits on success, rolls back on error or panic.
func WithTransaction[T any](ctx context.Context, txMgr repositories.TransactionManager, fn TxFunc[T]) (T, error) {
	var result T

	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	result, err = fn(ctx, tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return result, fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}
