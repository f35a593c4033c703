package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-ledger/internal/logger"
)

// TxManager runs units of work inside a database transaction carried by the context.
type TxManager struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

// NewTxManager creates a TxManager. Transactions run at READ COMMITTED;
// per-account serialization comes from row locks, not snapshot isolation.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

// WithTx begins a transaction, stores it in the context passed to fn and
// commits when fn returns nil. Any error or panic rolls the transaction back.
// If ctx already carries a transaction fn joins it.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if GetTxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.db.BeginTxx(ctx, m.opts)
	if err != nil {
		logger.Log.Errorw("failed to begin transaction", "error", err)
		return err
	}

	defer func() {
		if rec := recover(); rec != nil {
			_ = tx.Rollback()
			panic(rec)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Log.Errorw("failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(setTxToContext(ctx, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		logger.Log.Errorw("failed to commit transaction", "error", err)
		return err
	}
	return nil
}

// contextKey is an unexported type for keys in context
type contextKey struct{}

var txKey = contextKey{}

// setTxToContext stores a transaction in the context
func setTxToContext(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// GetTxFromContext retrieves the transaction from the context. Returns nil if not present.
func GetTxFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey).(*sqlx.Tx)
	return tx
}
