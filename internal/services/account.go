package services

import (
	"context"

	"github.com/sbilibin2017/gw-ledger/internal/logger"
	"github.com/shopspring/decimal"
)

// AccountStore defines the store operations used by balance queries.
type AccountStore interface {
	EnsureAccount(ctx context.Context, accountID string) error                // Creates the account at balance 0 if absent
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) // Returns the balance, 0 if absent
	Ping(ctx context.Context) error                                           // Checks store connectivity
}

// AccountService serves balance queries.
type AccountService struct {
	store AccountStore
}

// NewAccountService creates a new AccountService.
func NewAccountService(store AccountStore) *AccountService {
	return &AccountService{store: store}
}

// GetBalance returns the current balance of an account. A first reference
// creates the account at balance 0.
func (s *AccountService) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if err := s.store.EnsureAccount(ctx, accountID); err != nil {
		logger.Log.Errorw("failed to ensure account", "account_id", accountID, "error", err)
		return decimal.Zero, err
	}

	balance, err := s.store.GetBalance(ctx, accountID)
	if err != nil {
		logger.Log.Errorw("failed to get account balance", "account_id", accountID, "error", err)
		return decimal.Zero, err
	}
	return balance, nil
}

// Ping checks that the store is reachable.
func (s *AccountService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
