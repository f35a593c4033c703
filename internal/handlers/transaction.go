package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sbilibin2017/gw-ledger/internal/logger"
	"github.com/sbilibin2017/gw-ledger/internal/middlewares"
	"github.com/sbilibin2017/gw-ledger/internal/models"
	"github.com/sbilibin2017/gw-ledger/internal/services"
)

// TransactionProcessor defines the interface that the service must implement.
type TransactionProcessor interface {
	Process(ctx context.Context, req models.TransactionRequest) (services.Result, error)
}

// statusCodes maps a recorded outcome to its HTTP status.
var statusCodes = map[models.TransactionStatus]int{
	models.StatusApplied:  http.StatusOK,
	models.StatusApproved: http.StatusCreated,
	models.StatusDenied:   http.StatusPaymentRequired,
}

// NewTransactionHandler returns an HTTP handler for submitting transactions.
// @Summary Submit a transaction
// @Description Records a deposit, withdraw_request or withdraw. Deposits and withdraws move the balance; a withdraw_request is approved only if the available balance covers it. Resubmitting an id replays its recorded outcome.
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body models.TransactionRequest true "Transaction"
// @Success 200 {object} models.TransactionResponse "Deposit or withdraw applied"
// @Success 201 {object} models.TransactionResponse "Withdraw request approved"
// @Failure 400 {object} models.ErrorResponse "Invalid body or unrecognized type"
// @Failure 402 {object} models.TransactionResponse "Withdraw request denied"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /transaction [post]
func NewTransactionHandler(svc TransactionProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req models.TransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Log.Errorw("failed to decode transaction request",
				"request_id", middlewares.RequestIDFromContext(ctx), "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}

		if !req.Type.Valid() {
			logger.Log.Warnw("unrecognized transaction type",
				"request_id", middlewares.RequestIDFromContext(ctx), "transaction_id", req.ID, "type", req.Type)
			writeError(w, http.StatusBadRequest, "Unrecognized transaction type", services.ErrUnrecognizedTransactionType)
			return
		}

		if err := validate.Struct(req); err != nil {
			logger.Log.Warnw("invalid transaction request",
				"request_id", middlewares.RequestIDFromContext(ctx), "transaction_id", req.ID, "error", err)
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
				Message: "Invalid transaction",
				Details: validationDetails(err),
			})
			return
		}

		res, err := svc.Process(ctx, req)
		switch {
		case errors.Is(err, services.ErrUnrecognizedTransactionType):
			writeError(w, http.StatusBadRequest, "Unrecognized transaction type", err)
			return
		case errors.Is(err, services.ErrInvalidTransaction):
			writeError(w, http.StatusBadRequest, "Invalid transaction", err)
			return
		case err != nil:
			logger.Log.Errorw("failed to process transaction",
				"request_id", middlewares.RequestIDFromContext(ctx), "transaction_id", req.ID, "account_id", req.AccountID, "type", req.Type, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error", err)
			return
		}

		code, ok := statusCodes[res.Status()]
		if !ok {
			logger.Log.Errorw("unexpected transaction status",
				"request_id", middlewares.RequestIDFromContext(ctx), "transaction_id", req.ID, "status", res.Status())
			writeError(w, http.StatusInternalServerError, "Internal server error", nil)
			return
		}

		writeJSON(w, code, models.TransactionResponse{
			ID:        req.ID,
			Status:    res.Status(),
			Duplicate: res.Duplicate,
		})
	}
}
