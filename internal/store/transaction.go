// Package store provides abstractions and implementations for data persistence
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/formrelay/internal/platform/logger"
)

// TxFn runs inside a transaction opened by RunInTransaction.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTransaction commits the writes of fn when it returns nil and rolls
// them back when it returns an error or panics. A panic is re-raised after
// the rollback.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) (err error) {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", slog.String("error", err.Error()))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committing := false
	defer func() {
		p := recover()
		if p == nil && (err == nil || committing) {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("failed to roll back transaction",
				slog.String("rollback_error", rbErr.Error()),
				slog.Any("panic", p))
			if p == nil {
				err = fmt.Errorf("error rolling back transaction: %v (original error: %w)", rbErr, err)
			}
		} else {
			log.Debug("rolled back transaction", slog.Any("panic", p))
		}
		if p != nil {
			// ALLOW-PANIC: re-raised after rollback
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	committing = true
	if err = tx.Commit(); err != nil {
		log.Error("failed to commit transaction", slog.String("error", err.Error()))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
