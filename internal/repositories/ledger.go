package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-ledger/internal/logger"
	"github.com/sbilibin2017/gw-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// SQLSTATE codes meaning the row lock cannot be taken on this connection.
var atomicUnavailableCodes = map[string]struct{}{
	"25006": {}, // read_only_sql_transaction, e.g. a hot standby after failover
	"0A000": {}, // feature_not_supported
	"55P03": {}, // lock_not_available
}

// LedgerRepository is the Postgres ledger store: an append-only transaction
// log plus a balance row per account.
type LedgerRepository struct {
	db       *sqlx.DB
	txGetter func(ctx context.Context) *sqlx.Tx
}

// NewLedgerRepository creates a LedgerRepository. When txGetter returns a
// transaction for a context, queries run inside it.
func NewLedgerRepository(db *sqlx.DB, txGetter func(ctx context.Context) *sqlx.Tx) *LedgerRepository {
	return &LedgerRepository{db: db, txGetter: txGetter}
}

func (r *LedgerRepository) executor(ctx context.Context) sqlx.ExtContext {
	if r.txGetter != nil {
		if tx := r.txGetter(ctx); tx != nil {
			return tx
		}
	}
	return r.db
}

// logQuery logs query, args, result, error
func logQuery(query string, args []any, result any, err error) {
	logger.Log.Infow("ledger query",
		"query", strings.Join(strings.Fields(query), " "),
		"args", args,
		"result", result,
		"error", err,
	)
}

// Append inserts tx into the log. A second insert with the same id is a
// no-op and reports inserted=false. On insert tx.Seq and tx.CreatedAt are set.
func (r *LedgerRepository) Append(ctx context.Context, tx *models.Transaction) (bool, error) {
	const query = `
		INSERT INTO transactions (id, type, amount, account_id, timestamp, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING seq, created_at
	`

	var res struct {
		Seq       int64     `db:"seq"`
		CreatedAt time.Time `db:"created_at"`
	}
	args := []any{tx.ID, string(tx.Type), tx.Amount, tx.AccountID, tx.Timestamp, string(tx.Status)}
	err := sqlx.GetContext(ctx, r.executor(ctx), &res, query, args...)
	logQuery(query, args, res.Seq, err)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &models.StoreError{Op: "append", TransactionID: tx.ID, AccountID: tx.AccountID, Err: err}
	}

	tx.Seq = res.Seq
	tx.CreatedAt = res.CreatedAt
	return true, nil
}

// GetTransaction returns the logged transaction with the given id.
func (r *LedgerRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	const query = `
		SELECT seq, id, type, amount, account_id, timestamp, status, created_at
		FROM transactions
		WHERE id = $1
	`

	var tx models.Transaction
	err := sqlx.GetContext(ctx, r.executor(ctx), &tx, query, id)
	logQuery(query, []any{id}, tx.Status, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, &models.StoreError{Op: "get transaction", TransactionID: id, Err: err}
	}
	return &tx, nil
}

// GetBalance returns the account balance, zero for an account never referenced.
func (r *LedgerRepository) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	const query = `SELECT balance FROM accounts WHERE account_id = $1`

	var balance decimal.Decimal
	err := sqlx.GetContext(ctx, r.executor(ctx), &balance, query, accountID)
	logQuery(query, []any{accountID}, balance, err)

	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, &models.StoreError{Op: "get balance", AccountID: accountID, Err: err}
	}
	return balance, nil
}

// EnsureAccount creates the account at balance 0 if it does not exist.
func (r *LedgerRepository) EnsureAccount(ctx context.Context, accountID string) error {
	const query = `
		INSERT INTO accounts (account_id, balance, updated_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (account_id) DO NOTHING
	`

	_, err := r.executor(ctx).ExecContext(ctx, query, accountID)
	logQuery(query, []any{accountID}, nil, err)

	if err != nil {
		return &models.StoreError{Op: "ensure account", AccountID: accountID, Err: err}
	}
	return nil
}

// SetBalance upserts the account balance.
func (r *LedgerRepository) SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	const query = `
		INSERT INTO accounts (account_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id)
		DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()
	`

	_, err := r.executor(ctx).ExecContext(ctx, query, accountID, balance)
	logQuery(query, []any{accountID, balance}, nil, err)

	if err != nil {
		return &models.StoreError{Op: "set balance", AccountID: accountID, Err: err}
	}
	return nil
}

// LockAccount creates the account if needed, takes an exclusive row lock on
// it for the rest of the context transaction and returns its balance.
// It fails with models.ErrAtomicUnavailable when the context carries no
// transaction or the server refuses row locks.
func (r *LedgerRepository) LockAccount(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if r.txGetter == nil || r.txGetter(ctx) == nil {
		return decimal.Zero, models.ErrAtomicUnavailable
	}

	if err := r.EnsureAccount(ctx, accountID); err != nil {
		return decimal.Zero, classifyLockError(err)
	}

	const query = `SELECT account_id, balance, updated_at FROM accounts WHERE account_id = $1 FOR UPDATE`

	var account models.AccountDB
	err := sqlx.GetContext(ctx, r.executor(ctx), &account, query, accountID)
	logQuery(query, []any{accountID}, account.Balance, err)

	if err != nil {
		return decimal.Zero, classifyLockError(&models.StoreError{Op: "lock account", AccountID: accountID, Err: err})
	}
	return account.Balance, nil
}

func classifyLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := atomicUnavailableCodes[pgErr.Code]; ok {
			return errors.Join(models.ErrAtomicUnavailable, err)
		}
	}
	return err
}

// ListPendingRequests returns the approved withdraw_requests of an account
// ordered by creation. Which of them are still unresolved is decided by the caller.
func (r *LedgerRepository) ListPendingRequests(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	const query = `
		SELECT id, seq, amount, created_at
		FROM transactions
		WHERE account_id = $1 AND type = 'withdraw_request' AND status = 'approved'
		ORDER BY created_at, seq
	`
	return r.listEntries(ctx, "list pending requests", query, accountID)
}

// ListWithdraws returns the withdraws of an account ordered by creation.
func (r *LedgerRepository) ListWithdraws(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	const query = `
		SELECT id, seq, amount, created_at
		FROM transactions
		WHERE account_id = $1 AND type = 'withdraw'
		ORDER BY created_at, seq
	`
	return r.listEntries(ctx, "list withdraws", query, accountID)
}

func (r *LedgerRepository) listEntries(ctx context.Context, op, query, accountID string) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	err := sqlx.SelectContext(ctx, r.executor(ctx), &entries, query, accountID)
	logQuery(query, []any{accountID}, len(entries), err)

	if err != nil {
		return nil, &models.StoreError{Op: op, AccountID: accountID, Err: err}
	}
	return entries, nil
}

// Ping checks the database connection.
func (r *LedgerRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return &models.StoreError{Op: "ping", Err: err}
	}
	return nil
}
