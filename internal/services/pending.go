package services

import (
	"github.com/sbilibin2017/gw-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// PendingApprovedAmount sums the approved withdraw_requests that are still
// unresolved. A request is resolved once any withdraw of the same account
// was created at or after it, so only requests created after the latest
// withdraw remain pending.
func PendingApprovedAmount(requests, withdraws []models.LedgerEntry) decimal.Decimal {
	var latest *models.LedgerEntry
	for i := range withdraws {
		if latest == nil || latest.Before(withdraws[i]) {
			latest = &withdraws[i]
		}
	}

	pending := decimal.Zero
	for _, req := range requests {
		if latest != nil && !latest.Before(req) {
			continue
		}
		pending = pending.Add(req.Amount)
	}
	return pending
}

// AvailableBalance is the balance minus the pending approved amount.
func AvailableBalance(balance decimal.Decimal, requests, withdraws []models.LedgerEntry) decimal.Decimal {
	return balance.Sub(PendingApprovedAmount(requests, withdraws))
}

// Covers reports whether available covers amount. Equality approves.
func Covers(available, amount decimal.Decimal) bool {
	return available.GreaterThanOrEqual(amount)
}
