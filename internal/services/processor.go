package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sbilibin2017/gw-ledger/internal/logger"
	"github.com/sbilibin2017/gw-ledger/internal/metrics"
	"github.com/sbilibin2017/gw-ledger/internal/middlewares"
	"github.com/sbilibin2017/gw-ledger/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// DefaultReservationTimeout is the time budget of a withdraw_request check.
const DefaultReservationTimeout = 3 * time.Second

// Amounts are stored as NUMERIC(20,2).
const amountScale = 2

// MaxAmount is the largest amount the ledger can store.
var MaxAmount = decimal.New(1, 18).Sub(decimal.New(1, -amountScale))

// errDuplicate rolls back the unit of work of an already logged id.
var errDuplicate = errors.New("duplicate transaction")

// LedgerWriter defines the store operations used to apply and replay transactions.
type LedgerWriter interface {
	LockAccount(ctx context.Context, accountID string) (decimal.Decimal, error)      // Locks the account row inside the ctx transaction
	SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error // Upserts the account balance
	Append(ctx context.Context, tx *models.Transaction) (bool, error)                // Appends to the log, false on duplicate id
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)      // Returns a logged transaction
}

// Reserver decides and records withdraw_requests.
type Reserver interface {
	Reserve(ctx context.Context, req *models.Transaction) (Reservation, error)
}

// OutcomeCache caches recorded transactions.
type OutcomeCache interface {
	GetOutcome(ctx context.Context, transactionID string) (*models.Transaction, error) // Returns a cached recorded transaction
	SetOutcome(ctx context.Context, txn models.Transaction) error                      // Caches a recorded transaction
}

// KafkaWriter defines a Kafka writer abstraction.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error // Writes messages to Kafka
	Close() error                                                   // Closes the Kafka writer
}

// Result is the outcome of a processed transaction.
type Result struct {
	Transaction models.Transaction
	Duplicate   bool // the id had already been processed and its recorded outcome was replayed
}

// Status returns the recorded status of the transaction.
func (r Result) Status() models.TransactionStatus {
	return r.Transaction.Status
}

// TransactionProcessor validates, classifies and applies transaction submissions.
type TransactionProcessor struct {
	store              LedgerWriter
	txm                TxRunner
	reserver           Reserver
	cache              OutcomeCache
	kafkaWriter        KafkaWriter
	metrics            *metrics.Metrics
	reservationTimeout time.Duration
}

// ProcessorOption configures a TransactionProcessor.
type ProcessorOption func(*TransactionProcessor)

// WithOutcomeCache enables replaying duplicate submissions from a cache.
func WithOutcomeCache(cache OutcomeCache) ProcessorOption {
	return func(p *TransactionProcessor) { p.cache = cache }
}

// WithKafkaWriter enables publishing recorded transactions.
func WithKafkaWriter(w KafkaWriter) ProcessorOption {
	return func(p *TransactionProcessor) { p.kafkaWriter = w }
}

// WithMetrics sets the collectors the processor reports to.
func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *TransactionProcessor) { p.metrics = m }
}

// WithReservationTimeout overrides DefaultReservationTimeout.
func WithReservationTimeout(d time.Duration) ProcessorOption {
	return func(p *TransactionProcessor) {
		if d > 0 {
			p.reservationTimeout = d
		}
	}
}

// NewTransactionProcessor creates a new TransactionProcessor.
func NewTransactionProcessor(store LedgerWriter, txm TxRunner, reserver Reserver, opts ...ProcessorOption) *TransactionProcessor {
	p := &TransactionProcessor{
		store:              store,
		txm:                txm,
		reserver:           reserver,
		metrics:            metrics.NewNop(),
		reservationTimeout: DefaultReservationTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks a submission before any store interaction.
func Validate(req models.TransactionRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnrecognizedTransactionType, req.Type)
	}
	if req.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTransaction)
	}
	if req.AccountID == "" {
		return fmt.Errorf("%w: accountId is required", ErrInvalidTransaction)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	if !req.Amount.Equal(req.Amount.Truncate(amountScale)) {
		return fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidTransaction, amountScale)
	}
	if req.Amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: amount exceeds %s", ErrInvalidTransaction, MaxAmount)
	}
	return nil
}

// Process records a transaction and applies it:
//   - deposit and withdraw are appended and move the balance (withdraw may overdraw);
//   - withdraw_request is checked against the available balance and appended
//     as approved or denied, the balance is not moved.
//
// Resubmitting a known id replays its recorded outcome without side effects.
func (p *TransactionProcessor) Process(ctx context.Context, req models.TransactionRequest) (Result, error) {
	if err := Validate(req); err != nil {
		return Result{}, err
	}

	if res, ok := p.cachedOutcome(ctx, req); ok {
		return res, nil
	}

	var (
		res Result
		err error
	)
	switch req.Type {
	case models.TransactionTypeDeposit:
		res, err = p.apply(ctx, req, req.Amount)
	case models.TransactionTypeWithdraw:
		res, err = p.apply(ctx, req, req.Amount.Neg())
	case models.TransactionTypeWithdrawRequest:
		res, err = p.reserve(ctx, req)
	}
	if err != nil {
		p.metrics.Transactions.WithLabelValues(string(req.Type), "error").Inc()
		return Result{}, err
	}

	p.metrics.Transactions.WithLabelValues(string(req.Type), string(res.Status())).Inc()
	if !res.Duplicate {
		p.cacheOutcome(ctx, res.Transaction)
		p.publishTransaction(ctx, res.Transaction)
	}
	return res, nil
}

// apply appends the transaction and moves the balance by delta under the
// account lock. A known id rolls the unit of work back, including the
// implicit creation of the account, and replays the recorded outcome.
func (p *TransactionProcessor) apply(ctx context.Context, req models.TransactionRequest, delta decimal.Decimal) (Result, error) {
	txn := req.Transaction(models.StatusApplied)

	err := p.txm.WithTx(ctx, func(ctx context.Context) error {
		balance, err := p.store.LockAccount(ctx, txn.AccountID)
		if err != nil {
			return err
		}

		inserted, err := p.store.Append(ctx, &txn)
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicate
		}

		return p.store.SetBalance(ctx, txn.AccountID, balance.Add(delta))
	})
	if errors.Is(err, errDuplicate) {
		return p.replay(ctx, txn)
	}
	if err != nil {
		logger.Log.Errorw("failed to apply transaction",
			"request_id", middlewares.RequestIDFromContext(ctx),
			"transaction_id", txn.ID, "account_id", txn.AccountID, "type", txn.Type, "amount", txn.Amount, "error", err)
		return Result{}, err
	}
	return Result{Transaction: txn}, nil
}

// reserve runs the reservation check within the time budget. A check that
// times out or fails is recorded as denied.
func (p *TransactionProcessor) reserve(ctx context.Context, req models.TransactionRequest) (Result, error) {
	txn := req.Transaction(models.StatusDenied)

	checkCtx, cancel := context.WithTimeout(ctx, p.reservationTimeout)
	defer cancel()

	reservation, err := p.reserver.Reserve(checkCtx, &txn)
	if err == nil {
		if !reservation.Inserted {
			return p.replay(ctx, txn)
		}
		return Result{Transaction: txn}, nil
	}

	if errors.Is(err, ErrReservationTimeout) {
		logger.Log.Warnw("reservation check timed out, denying",
			"request_id", middlewares.RequestIDFromContext(ctx), "transaction_id", txn.ID, "account_id", txn.AccountID, "amount", txn.Amount, "timeout", p.reservationTimeout, "error", err)
	} else {
		logger.Log.Errorw("reservation check failed, denying",
			"request_id", middlewares.RequestIDFromContext(ctx), "transaction_id", txn.ID, "account_id", txn.AccountID, "amount", txn.Amount, "error", err)
	}

	// The denial is recorded even if the caller went away.
	auditCtx := context.WithoutCancel(ctx)
	txn.Status = models.StatusDenied
	inserted, appendErr := p.store.Append(auditCtx, &txn)
	if appendErr != nil {
		logger.Log.Errorw("failed to record denied withdraw_request",
			"request_id", middlewares.RequestIDFromContext(ctx), "transaction_id", txn.ID, "account_id", txn.AccountID, "error", appendErr)
		return Result{}, errors.Join(appendErr, err)
	}
	if !inserted {
		return p.replay(auditCtx, txn)
	}
	return Result{Transaction: txn}, nil
}

// replay returns the recorded outcome of an already logged transaction.
func (p *TransactionProcessor) replay(ctx context.Context, txn models.Transaction) (Result, error) {
	recorded, err := p.store.GetTransaction(ctx, txn.ID)
	if err != nil {
		logger.Log.Errorw("failed to read recorded transaction",
			"request_id", middlewares.RequestIDFromContext(ctx), "transaction_id", txn.ID, "error", err)
		return Result{}, err
	}

	logger.Log.Infow("duplicate transaction, replaying recorded outcome",
		"transaction_id", txn.ID, "status", recorded.Status, "recorded_type", recorded.Type, "submitted_type", txn.Type)
	return Result{Transaction: *recorded, Duplicate: true}, nil
}

func (p *TransactionProcessor) cachedOutcome(ctx context.Context, req models.TransactionRequest) (Result, bool) {
	if p.cache == nil {
		return Result{}, false
	}

	recorded, err := p.cache.GetOutcome(ctx, req.ID)
	if err != nil {
		return Result{}, false
	}

	logger.Log.Infow("duplicate transaction, replaying cached outcome",
		"transaction_id", req.ID, "status", recorded.Status, "recorded_type", recorded.Type, "submitted_type", req.Type)
	return Result{Transaction: *recorded, Duplicate: true}, true
}

func (p *TransactionProcessor) cacheOutcome(ctx context.Context, txn models.Transaction) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetOutcome(ctx, txn); err != nil {
		logger.Log.Errorw("failed to cache transaction outcome", "transaction_id", txn.ID, "error", err)
	}
}

// publishTransaction publishes a recorded transaction to Kafka.
func (p *TransactionProcessor) publishTransaction(ctx context.Context, txn models.Transaction) {
	if p.kafkaWriter == nil {
		logger.Log.Debugw("Kafka writer not configured, skipping publishing", "transaction_id", txn.ID)
		return
	}

	data, err := json.Marshal(txn)
	if err != nil {
		logger.Log.Errorw("Failed to marshal transaction for Kafka", "transaction_id", txn.ID, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(txn.ID),
		Value: data,
	}

	if err := p.kafkaWriter.WriteMessages(ctx, msg); err != nil {
		logger.Log.Errorw("Failed to publish transaction to Kafka", "transaction_id", txn.ID, "error", err)
	} else {
		logger.Log.Infow("Transaction published to Kafka", "transaction_id", txn.ID, "status", txn.Status)
	}
}
