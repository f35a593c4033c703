package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRequest represents the JSON body of POST /transaction
// swagger:model TransactionRequest
type TransactionRequest struct {
	// Idempotency key of the transaction
	// required: true
	// example: t1
	ID string `json:"id" validate:"required,max=128"`

	// Transaction type
	// required: true
	// example: deposit
	Type TransactionType `json:"type" validate:"required"`

	// Positive amount
	// required: true
	// example: 100
	Amount decimal.Decimal `json:"amount" swaggertype:"number"`

	// Account identifier
	// required: true
	// example: acc1
	AccountID string `json:"accountId" validate:"required,max=128"`

	// ISO-8601 event time
	// required: true
	// example: 2024-01-01T00:00:00Z
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// Transaction converts the request into a log entry with the given status.
func (r TransactionRequest) Transaction(status TransactionStatus) Transaction {
	return Transaction{
		ID:        r.ID,
		Type:      r.Type,
		Amount:    r.Amount,
		AccountID: r.AccountID,
		Timestamp: r.Timestamp,
		Status:    status,
	}
}

// TransactionResponse represents the outcome of a submitted transaction
// swagger:model TransactionResponse
type TransactionResponse struct {
	// Transaction id
	// example: t1
	ID string `json:"id"`

	// Recorded outcome: applied, approved or denied
	// example: applied
	Status TransactionStatus `json:"status"`

	// True when the id had already been processed
	// example: false
	Duplicate bool `json:"duplicate"`
}

// ErrorResponse represents an error response
// swagger:model ErrorResponse
type ErrorResponse struct {
	// Error message
	// example: Internal server error
	Message string `json:"message"`

	// Error detail
	// example: store unavailable: append transaction t1 account acc1
	Error string `json:"error,omitempty"`

	// Validation details per field
	Details map[string]string `json:"details,omitempty"`
}
