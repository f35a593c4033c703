package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sbilibin2017/gw-ledger/internal/logger"
	"github.com/sbilibin2017/gw-ledger/internal/metrics"
	"github.com/sbilibin2017/gw-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// ReservationStore defines the store operations a reservation check needs.
type ReservationStore interface {
	LockAccount(ctx context.Context, accountID string) (decimal.Decimal, error)              // Locks the account row inside the ctx transaction
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)               // Reads the balance without locking
	ListPendingRequests(ctx context.Context, accountID string) ([]models.LedgerEntry, error) // Lists approved withdraw_requests
	ListWithdraws(ctx context.Context, accountID string) ([]models.LedgerEntry, error)       // Lists withdraws
	Append(ctx context.Context, tx *models.Transaction) (bool, error)                        // Appends to the log, false on duplicate id
}

// TxRunner runs fn inside a store transaction carried by the context.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Reservation is the result of a reservation check.
type Reservation struct {
	Approved  bool
	Available decimal.Decimal
	Path      string // metrics.PathAtomic or metrics.PathFallback
	Inserted  bool   // false when the request id was already logged
}

// ReservationEngine decides whether a withdraw_request is covered by the
// available balance of its account and records the request with the decision.
type ReservationEngine struct {
	store    ReservationStore
	txm      TxRunner
	fallback bool
	metrics  *metrics.Metrics
}

// NewReservationEngine creates a ReservationEngine. With fallback enabled the
// engine degrades to an unlocked check when the store cannot take row locks.
func NewReservationEngine(store ReservationStore, txm TxRunner, fallback bool, m *metrics.Metrics) *ReservationEngine {
	if m == nil {
		m = metrics.NewNop()
	}
	return &ReservationEngine{store: store, txm: txm, fallback: fallback, metrics: m}
}

// Reserve checks req against the available balance of its account and
// appends it with status approved or denied. The atomic path holds the
// account row lock from the balance read until the append commits, so
// concurrent checks on one account are serialized.
//
// A missed ctx deadline yields ErrReservationTimeout; any other failure
// yields ErrReservationCheckFailed. Neither appends anything.
func (e *ReservationEngine) Reserve(ctx context.Context, req *models.Transaction) (Reservation, error) {
	res, err := e.timed(metrics.PathAtomic, func() (Reservation, error) {
		return e.reserveAtomic(ctx, req)
	})
	if err != nil && e.fallback && errors.Is(err, models.ErrAtomicUnavailable) && ctx.Err() == nil {
		logger.Log.Warnw("atomic reservation unavailable, using non-atomic fallback",
			"transaction_id", req.ID, "account_id", req.AccountID, "path", metrics.PathFallback, "atomic", false, "error", err)
		res, err = e.timed(metrics.PathFallback, func() (Reservation, error) {
			return e.reserveFallback(ctx, req)
		})
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Reservation{}, fmt.Errorf("%w: %w", ErrReservationTimeout, err)
		}
		return Reservation{}, fmt.Errorf("%w: %w", ErrReservationCheckFailed, err)
	}

	decision := string(models.StatusDenied)
	if res.Approved {
		decision = string(models.StatusApproved)
	}
	e.metrics.ReservationDecision.WithLabelValues(res.Path, decision).Inc()
	return res, nil
}

func (e *ReservationEngine) timed(path string, fn func() (Reservation, error)) (Reservation, error) {
	start := time.Now()
	defer func() {
		e.metrics.ReservationDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()
	return fn()
}

func (e *ReservationEngine) reserveAtomic(ctx context.Context, req *models.Transaction) (Reservation, error) {
	res := Reservation{Path: metrics.PathAtomic}

	err := e.txm.WithTx(ctx, func(ctx context.Context) error {
		balance, err := e.store.LockAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}

		res.Available, res.Approved, err = e.decide(ctx, balance, req)
		if err != nil {
			return err
		}

		req.Status = statusFor(res.Approved)
		res.Inserted, err = e.store.Append(ctx, req)
		if err == nil && !res.Inserted {
			return errDuplicate
		}
		return err
	})
	if errors.Is(err, errDuplicate) {
		return res, nil
	}
	if err != nil {
		return Reservation{}, err
	}
	return res, nil
}

// reserveFallback runs the same check without the account lock. Concurrent
// fallback checks can observe the same available balance and both approve.
func (e *ReservationEngine) reserveFallback(ctx context.Context, req *models.Transaction) (Reservation, error) {
	res := Reservation{Path: metrics.PathFallback}

	balance, err := e.store.GetBalance(ctx, req.AccountID)
	if err != nil {
		return Reservation{}, err
	}

	res.Available, res.Approved, err = e.decide(ctx, balance, req)
	if err != nil {
		return Reservation{}, err
	}

	req.Status = statusFor(res.Approved)
	res.Inserted, err = e.store.Append(ctx, req)
	if err != nil {
		return Reservation{}, err
	}

	logger.Log.Warnw("non-atomic reservation decided",
		"transaction_id", req.ID, "account_id", req.AccountID, "status", req.Status,
		"available", res.Available, "path", metrics.PathFallback, "atomic", false)
	return res, nil
}

func (e *ReservationEngine) decide(ctx context.Context, balance decimal.Decimal, req *models.Transaction) (decimal.Decimal, bool, error) {
	requests, err := e.store.ListPendingRequests(ctx, req.AccountID)
	if err != nil {
		return decimal.Zero, false, err
	}
	withdraws, err := e.store.ListWithdraws(ctx, req.AccountID)
	if err != nil {
		return decimal.Zero, false, err
	}

	available := AvailableBalance(balance, requests, withdraws)
	return available, Covers(available, req.Amount), nil
}

func statusFor(approved bool) models.TransactionStatus {
	if approved {
		return models.StatusApproved
	}
	return models.StatusDenied
}
