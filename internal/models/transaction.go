package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger transaction.
type TransactionType string

// Supported transaction types
const (
	TransactionTypeDeposit         TransactionType = "deposit"
	TransactionTypeWithdrawRequest TransactionType = "withdraw_request"
	TransactionTypeWithdraw        TransactionType = "withdraw"
)

// Valid reports whether t is one of the supported transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawRequest, TransactionTypeWithdraw:
		return true
	}
	return false
}

// TransactionStatus is the outcome a logged transaction resolved to.
type TransactionStatus string

const (
	StatusApplied  TransactionStatus = "applied"  // deposit or withdraw moved the balance
	StatusApproved TransactionStatus = "approved" // withdraw_request covered by the available balance
	StatusDenied   TransactionStatus = "denied"   // withdraw_request not covered, timed out or failed its check
)

// Transaction is a row of the append-only transaction log.
type Transaction struct {
	Seq       int64             `json:"-" db:"seq"`                 // Seq is the store-assigned insertion order
	ID        string            `json:"id" db:"id"`                 // ID is the caller-supplied idempotency key
	Type      TransactionType   `json:"type" db:"type"`             // Type is deposit, withdraw_request or withdraw
	Amount    decimal.Decimal   `json:"amount" db:"amount"`         // Amount is a positive monetary value
	AccountID string            `json:"accountId" db:"account_id"`  // AccountID identifies the account
	Timestamp time.Time         `json:"timestamp" db:"timestamp"`   // Timestamp is the caller-supplied event time
	Status    TransactionStatus `json:"status" db:"status"`         // Status is the outcome recorded with the transaction
	CreatedAt time.Time         `json:"createdAt" db:"created_at"` // CreatedAt is the store-assigned persistence time
}

// LedgerEntry is the projection of a logged transaction used to derive
// the pending approved amount of an account.
type LedgerEntry struct {
	ID        string          `db:"id"`
	Seq       int64           `db:"seq"`
	Amount    decimal.Decimal `db:"amount"`
	CreatedAt time.Time       `db:"created_at"`
}

// Before reports whether e was persisted strictly before other.
// Equal creation times are ordered by insertion sequence.
func (e LedgerEntry) Before(other LedgerEntry) bool {
	if e.CreatedAt.Equal(other.CreatedAt) {
		return e.Seq < other.Seq
	}
	return e.CreatedAt.Before(other.CreatedAt)
}
