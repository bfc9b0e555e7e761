// Package redis provides Redis-backed implementations of domain interfaces.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/domain/models"
	"github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/internal/infrastructure/monitoring"
	"github.com/sentineliq/riskd/pkg/constants"
	"github.com/sentineliq/riskd/pkg/logger"
)

const idempotencyKeyPrefix = "idem:"

// idempotencyRecord is the stored form of one idempotency key.
type idempotencyRecord struct {
	Status    constants.IdempotencyStatus `json:"status"`
	Response  json.RawMessage             `json:"response,omitempty"`
	Reason    string                      `json:"reason,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
}

// redisIdempotencyGuard is a Redis-backed implementation of the
// IdempotencyGuard interface. All store failures fail open: availability of
// decisioning outranks duplicate suppression.
type redisIdempotencyGuard struct {
	client  *redis.Client
	cfg     config.IdempotencyConfig
	log     logger.Logger
	metrics *monitoring.Metrics
}

// NewRedisIdempotencyGuard creates a new instance of redisIdempotencyGuard.
func NewRedisIdempotencyGuard(client *redis.Client, cfg config.IdempotencyConfig, log logger.Logger, metrics *monitoring.Metrics) service.IdempotencyGuard {
	return &redisIdempotencyGuard{
		client:  client,
		cfg:     cfg,
		log:     log.WithComponent("idempotency_guard"),
		metrics: metrics,
	}
}

// Check returns the state of the key, atomically creating an in-progress
// record with a short lease when the key is new. SetNX is the single atomic
// read-or-create step: two concurrent callers sharing a key can never both
// observe status new.
func (g *redisIdempotencyGuard) Check(ctx context.Context, key string, eventType constants.EventType) (*models.IdempotencyResult, error) {
	redisKey := idempotencyKeyPrefix + key

	record := idempotencyRecord{
		Status:    constants.IdempotencyStatusInProgress,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	created, err := g.client.SetNX(ctx, redisKey, data, g.cfg.LeaseTTL).Result()
	if err != nil {
		g.log.Warn(ctx, "idempotency store unreachable, failing open",
			logger.String("key", key), logger.Error(err))
		g.metrics.RecordDegradedCheck("idempotency")
		return g.result(constants.IdempotencyStatusNew, key, nil, record.CreatedAt), nil
	}
	if created {
		return g.result(constants.IdempotencyStatusNew, key, nil, record.CreatedAt), nil
	}

	existing, err := g.get(ctx, redisKey)
	if err != nil {
		g.log.Warn(ctx, "idempotency record read failed, failing open",
			logger.String("key", key), logger.Error(err))
		g.metrics.RecordDegradedCheck("idempotency")
		return g.result(constants.IdempotencyStatusNew, key, nil, record.CreatedAt), nil
	}
	if existing == nil {
		// Lease expired between SetNX and Get. Contend again; losing means a
		// concurrent caller re-created the record first.
		created, retryErr := g.client.SetNX(ctx, redisKey, data, g.cfg.LeaseTTL).Result()
		if retryErr != nil {
			g.metrics.RecordDegradedCheck("idempotency")
			return g.result(constants.IdempotencyStatusNew, key, nil, record.CreatedAt), nil
		}
		if !created {
			return g.result(constants.IdempotencyStatusInProgress, key, nil, record.CreatedAt), nil
		}
		return g.result(constants.IdempotencyStatusNew, key, nil, record.CreatedAt), nil
	}

	switch existing.Status {
	case constants.IdempotencyStatusInProgress:
		return g.result(constants.IdempotencyStatusInProgress, key, nil, existing.CreatedAt), nil
	case constants.IdempotencyStatusFailed:
		// A prior attempt failed. Reacquire the lease so exactly one caller
		// retries; the losers wait out the winner's lease.
		if !g.reacquire(ctx, redisKey, data) {
			return g.result(constants.IdempotencyStatusInProgress, key, nil, existing.CreatedAt), nil
		}
		return g.result(constants.IdempotencyStatusFailed, key, nil, existing.CreatedAt), nil
	default:
		return g.result(constants.IdempotencyStatusDuplicate, key, existing.Response, existing.CreatedAt), nil
	}
}

// reacquire swaps the stored record for a fresh in-progress lease, guarded by
// WATCH so concurrent retries cannot all win. Reports whether this caller took
// the lease; store failures fail open toward retrying.
func (g *redisIdempotencyGuard) reacquire(ctx context.Context, redisKey string, lease []byte) bool {
	err := g.client.Watch(ctx, func(tx *redis.Tx) error {
		if err := tx.Get(ctx, redisKey).Err(); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, lease, g.cfg.LeaseTTL)
			return nil
		})
		return err
	}, redisKey)

	switch {
	case err == nil:
		return true
	case errors.Is(err, redis.TxFailedErr):
		return false
	case errors.Is(err, redis.Nil):
		// The failed record expired mid-flight; contend for a fresh lease.
		created, setErr := g.client.SetNX(ctx, redisKey, lease, g.cfg.LeaseTTL).Result()
		return setErr != nil || created
	default:
		g.metrics.RecordDegradedCheck("idempotency")
		return true
	}
}

// Complete caches the response against the key and releases the lease. The
// retention TTL is governed by event type: financial events are kept for seven
// days, authentication events for one hour.
func (g *redisIdempotencyGuard) Complete(ctx context.Context, key string, response interface{}, eventType constants.EventType) error {
	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal cached response: %w", err)
	}

	record := idempotencyRecord{
		Status:    "completed",
		Response:  payload,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	if err := g.client.Set(ctx, idempotencyKeyPrefix+key, data, g.ttlFor(eventType)).Err(); err != nil {
		g.log.Warn(ctx, "failed to cache idempotency result",
			logger.String("key", key), logger.Error(err))
		g.metrics.RecordDegradedCheck("idempotency")
		return nil
	}
	return nil
}

// Fail releases the lease without caching a response, permitting retry. The
// failed marker keeps the lease TTL so a stuck retry loop cannot pin the key.
func (g *redisIdempotencyGuard) Fail(ctx context.Context, key string, reason string) error {
	record := idempotencyRecord{
		Status:    constants.IdempotencyStatusFailed,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	if err := g.client.Set(ctx, idempotencyKeyPrefix+key, data, g.cfg.LeaseTTL).Err(); err != nil {
		g.log.Warn(ctx, "failed to mark idempotency key failed",
			logger.String("key", key), logger.Error(err))
		g.metrics.RecordDegradedCheck("idempotency")
		return nil
	}
	return nil
}

func (g *redisIdempotencyGuard) get(ctx context.Context, redisKey string) (*idempotencyRecord, error) {
	data, err := g.client.Get(ctx, redisKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return &record, nil
}

func (g *redisIdempotencyGuard) ttlFor(eventType constants.EventType) time.Duration {
	switch {
	case strings.HasPrefix(string(eventType), "transaction."):
		return g.cfg.TransactionTTL
	case strings.HasPrefix(string(eventType), "authentication."):
		return g.cfg.AuthTTL
	default:
		return g.cfg.DefaultTTL
	}
}

func (g *redisIdempotencyGuard) result(status constants.IdempotencyStatus, key string, response json.RawMessage, createdAt time.Time) *models.IdempotencyResult {
	g.metrics.RecordIdempotencyCheck(status)
	return &models.IdempotencyResult{
		Status:         status,
		Key:            key,
		CachedResponse: response,
		CreatedAt:      createdAt,
	}
}
