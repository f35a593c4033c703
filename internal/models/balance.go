package models

import "encoding/json"

// BalanceResponse represents a successful response with the account balance
// swagger:model BalanceResponse
type BalanceResponse struct {
	// Account identifier
	// example: acc1
	AccountID string `json:"accountId"`

	// Current balance
	// example: 100
	Balance json.Number `json:"balance" swaggertype:"number"`
}
