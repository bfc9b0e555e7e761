package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/internal/infrastructure/monitoring"
	"github.com/sentineliq/riskd/pkg/logger"
)

const (
	velocityLocationKeyPrefix = "vel:loc:"
	velocityCounterKeyPrefix  = "vel:cnt:"
	knownDeviceKeyPrefix      = "vel:dev:known:"
	unknownDeviceKeyPrefix    = "vel:dev:unknown:"

	locationTTL = 24 * time.Hour

	localDeviceCacheTTL     = 15 * time.Minute
	localDeviceCacheCleanup = 5 * time.Minute
)

// redisVelocityStore is a Redis-backed implementation of the VelocityStore
// interface. Lookups fail open: when Redis is unreachable the store returns
// zero values so detectors skip their checks instead of blocking traffic.
//
// A small in-process cache shadows known-device membership so that device
// recognition survives short Redis outages.
type redisVelocityStore struct {
	client  *redis.Client
	local   *cache.Cache
	log     logger.Logger
	metrics *monitoring.Metrics
}

// NewRedisVelocityStore creates a new instance of redisVelocityStore.
func NewRedisVelocityStore(client *redis.Client, log logger.Logger, metrics *monitoring.Metrics) service.VelocityStore {
	return &redisVelocityStore{
		client:  client,
		local:   cache.New(localDeviceCacheTTL, localDeviceCacheCleanup),
		log:     log.WithComponent("velocity_store"),
		metrics: metrics,
	}
}

// LastLocation returns the user's cached location, or nil when unknown.
func (s *redisVelocityStore) LastLocation(ctx context.Context, userID string) (*service.LastLocation, error) {
	data, err := s.client.Get(ctx, velocityLocationKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		s.degraded(ctx, "last location lookup failed", err)
		return nil, nil
	}

	var loc service.LastLocation
	if err := json.Unmarshal([]byte(data), &loc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location: %w", err)
	}
	return &loc, nil
}

// SetLastLocation caches the user's location.
func (s *redisVelocityStore) SetLastLocation(ctx context.Context, userID string, loc service.LastLocation) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	if err := s.client.Set(ctx, velocityLocationKeyPrefix+userID, data, locationTTL).Err(); err != nil {
		s.degraded(ctx, "location write failed", err)
	}
	return nil
}

// IncrementCounter atomically increments a rolling counter and returns the new
// count. The window TTL is attached on first increment only, so the counter
// expires relative to the first event of the window.
func (s *redisVelocityStore) IncrementCounter(ctx context.Context, userID, name string, window time.Duration) (int64, error) {
	key := velocityCounterKeyPrefix + userID + ":" + name

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		s.degraded(ctx, "counter increment failed", err)
		return 0, nil
	}
	return incr.Val(), nil
}

// Counter reads a rolling counter without advancing it.
func (s *redisVelocityStore) Counter(ctx context.Context, userID, name string) (int64, error) {
	val, err := s.client.Get(ctx, velocityCounterKeyPrefix+userID+":"+name).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		s.degraded(ctx, "counter read failed", err)
		return 0, nil
	}
	return val, nil
}

// IsKnownDevice reports whether the device fingerprint has been seen before.
// Falls back to the in-process cache when Redis is unreachable.
func (s *redisVelocityStore) IsKnownDevice(ctx context.Context, userID, fingerprint string) (bool, error) {
	known, err := s.client.SIsMember(ctx, knownDeviceKeyPrefix+userID, fingerprint).Result()
	if err != nil {
		s.degraded(ctx, "known device lookup failed", err)
		_, hit := s.local.Get(localDeviceKey(userID, fingerprint))
		return hit, nil
	}
	if known {
		s.local.SetDefault(localDeviceKey(userID, fingerprint), struct{}{})
	}
	return known, nil
}

// MarkDeviceKnown records the fingerprint as an accepted device.
func (s *redisVelocityStore) MarkDeviceKnown(ctx context.Context, userID, fingerprint string) error {
	s.local.SetDefault(localDeviceKey(userID, fingerprint), struct{}{})

	if err := s.client.SAdd(ctx, knownDeviceKeyPrefix+userID, fingerprint).Err(); err != nil {
		s.degraded(ctx, "known device write failed", err)
	}
	return nil
}

// TrackUnknownDevice adds the fingerprint to the user's sliding unknown-device
// set and returns the distinct count within the window.
func (s *redisVelocityStore) TrackUnknownDevice(ctx context.Context, userID, fingerprint string, window time.Duration) (int64, error) {
	key := unknownDeviceKeyPrefix + userID

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, fingerprint)
	pipe.ExpireNX(ctx, key, window)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		s.degraded(ctx, "unknown device tracking failed", err)
		return 0, nil
	}
	return card.Val(), nil
}

func (s *redisVelocityStore) degraded(ctx context.Context, msg string, err error) {
	s.log.Warn(ctx, msg+", failing open", logger.Error(err))
	s.metrics.RecordDegradedCheck("velocity")
}

func localDeviceKey(userID, fingerprint string) string {
	return userID + ":" + fingerprint
}
