package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sbilibin2017/gw-ledger/internal/logger"
	"github.com/sbilibin2017/gw-ledger/internal/models"
)

// ErrOutcomeNotCached is returned on a cache miss.
var ErrOutcomeNotCached = errors.New("transaction outcome not cached")

// OutcomeCacheRepository caches recorded transactions in Redis so retries
// can be answered without a store round trip.
type OutcomeCacheRepository struct {
	client *redis.Client
	exp    time.Duration // expiration duration for cached outcomes
}

// NewOutcomeCacheRepository creates a new repository instance with the given TTL
func NewOutcomeCacheRepository(client *redis.Client, expiration time.Duration) *OutcomeCacheRepository {
	return &OutcomeCacheRepository{
		client: client,
		exp:    expiration,
	}
}

func outcomeKey(transactionID string) string {
	return fmt.Sprintf("txn:outcome:%s", transactionID)
}

// GetOutcome returns the cached recorded transaction
func (r *OutcomeCacheRepository) GetOutcome(ctx context.Context, transactionID string) (*models.Transaction, error) {
	key := outcomeKey(transactionID)

	val, err := r.client.Get(ctx, key).Bytes()
	logger.Log.Infow("outcome cache get",
		"key", key,
		"hit", err == nil,
		"error", err,
	)
	if errors.Is(err, redis.Nil) {
		return nil, ErrOutcomeNotCached
	}
	if err != nil {
		return nil, err
	}

	var txn models.Transaction
	if err := json.Unmarshal(val, &txn); err != nil {
		return nil, fmt.Errorf("decode cached outcome for %s: %w", transactionID, err)
	}
	switch txn.Status {
	case models.StatusApplied, models.StatusApproved, models.StatusDenied:
	default:
		return nil, fmt.Errorf("unexpected cached outcome %q for %s", txn.Status, transactionID)
	}
	if txn.ID != transactionID {
		return nil, fmt.Errorf("cached outcome for %s holds id %q", transactionID, txn.ID)
	}
	return &txn, nil
}

// SetOutcome caches a recorded transaction with expiration
func (r *OutcomeCacheRepository) SetOutcome(ctx context.Context, txn models.Transaction) error {
	key := outcomeKey(txn.ID)

	data, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("encode outcome for %s: %w", txn.ID, err)
	}
	err = r.client.Set(ctx, key, data, r.exp).Err()

	logger.Log.Infow("outcome cache set",
		"key", key,
		"status", txn.Status,
		"error", err,
	)

	return err
}
