package models

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable matches any failure talking to the ledger store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrAtomicUnavailable is returned when the store cannot take the
	// per-account lock the atomic reservation path needs.
	ErrAtomicUnavailable = errors.New("atomic reservation unavailable")

	// ErrTransactionNotFound is returned when a transaction id is not in the log.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// StoreError describes a failed ledger store operation.
type StoreError struct {
	Op            string // store operation, e.g. "append"
	TransactionID string
	AccountID     string
	Err           error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrStoreUnavailable, e.Op)
	if e.TransactionID != "" {
		msg += " transaction " + e.TransactionID
	}
	if e.AccountID != "" {
		msg += " account " + e.AccountID
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes every StoreError match ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }
