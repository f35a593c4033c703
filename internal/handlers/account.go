package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sbilibin2017/gw-ledger/internal/logger"
	"github.com/sbilibin2017/gw-ledger/internal/middlewares"
	"github.com/sbilibin2017/gw-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// BalanceReader defines the interface that the service must implement.
type BalanceReader interface {
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewGetAccountHandler returns an HTTP handler for fetching an account balance.
// @Summary Get account balance
// @Description Returns the current balance; unknown accounts have balance 0
// @Tags ledger
// @Produce json
// @Param accountId path string true "Account identifier"
// @Success 200 {object} models.BalanceResponse "Account balance"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /account/{accountId} [get]
func NewGetAccountHandler(reader BalanceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "accountId")

		balance, err := reader.GetBalance(r.Context(), accountID)
		if err != nil {
			logger.Log.Errorw("failed to get balance",
				"request_id", middlewares.RequestIDFromContext(r.Context()), "account_id", accountID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error", err)
			return
		}

		writeJSON(w, http.StatusOK, models.BalanceResponse{
			AccountID: accountID,
			Balance:   json.Number(balance.String()),
		})
	}
}

// NewHealthHandler returns an HTTP handler reporting store connectivity.
// @Summary Health check
// @Tags ops
// @Success 204 "Store reachable"
// @Failure 503 {object} models.ErrorResponse "Store unreachable"
// @Router /healthz [get]
func NewHealthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.Ping(r.Context()); err != nil {
			logger.Log.Errorw("health check failed",
				"request_id", middlewares.RequestIDFromContext(r.Context()), "error", err)
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
