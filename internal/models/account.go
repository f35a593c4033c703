package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountDB represents an account row in the database
type AccountDB struct {
	AccountID string          `json:"account_id" db:"account_id"` // Account identifier, same domain as Transaction.AccountID
	Balance   decimal.Decimal `json:"balance" db:"balance"`       // Current balance, may be negative
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"` // Timestamp of the last balance mutation
}
