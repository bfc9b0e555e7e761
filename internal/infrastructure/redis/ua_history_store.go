package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sentineliq/riskd/internal/domain/models"
	"github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/internal/infrastructure/monitoring"
	"github.com/sentineliq/riskd/pkg/logger"
)

const uaHistoryKeyPrefix = "ua:hist:"

// redisUAHistoryStore is a Redis-backed implementation of the UAHistoryStore
// interface. Each user's history is one JSON document, rewritten under a Watch
// so concurrent events against the same user never lose updates.
type redisUAHistoryStore struct {
	client     *redis.Client
	maxEntries int
	window     time.Duration
	log        logger.Logger
	metrics    *monitoring.Metrics
}

// NewRedisUAHistoryStore creates a new instance of redisUAHistoryStore.
func NewRedisUAHistoryStore(client *redis.Client, maxEntries int, window time.Duration, log logger.Logger, metrics *monitoring.Metrics) service.UAHistoryStore {
	return &redisUAHistoryStore{
		client:     client,
		maxEntries: maxEntries,
		window:     window,
		log:        log.WithComponent("ua_history_store"),
		metrics:    metrics,
	}
}

// History returns the user's UA entries within the rolling retention window.
// Fails open: store errors yield an empty history, which the detector treats
// as "no baseline yet".
func (s *redisUAHistoryStore) History(ctx context.Context, userID string) ([]models.UAHistoryEntry, error) {
	data, err := s.client.Get(ctx, uaHistoryKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		s.log.Warn(ctx, "ua history read failed, failing open", logger.Error(err))
		s.metrics.RecordDegradedCheck("ua_history")
		return nil, nil
	}

	var entries []models.UAHistoryEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ua history: %w", err)
	}

	return s.prune(entries, time.Now().UTC()), nil
}

// Record updates the matching entry's last-seen timestamp and count, or
// appends a new entry, enforcing the per-user cap with oldest-first eviction.
func (s *redisUAHistoryStore) Record(ctx context.Context, userID string, entry models.UAHistoryEntry) error {
	key := uaHistoryKeyPrefix + userID

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var entries []models.UAHistoryEntry

		data, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if err := json.Unmarshal([]byte(data), &entries); err != nil {
				return fmt.Errorf("failed to unmarshal ua history: %w", err)
			}
		}

		now := time.Now().UTC()
		entries = s.prune(entries, now)

		updated := false
		for i := range entries {
			if entries[i].UserAgent == entry.UserAgent {
				entries[i].LastSeen = now
				entries[i].Count++
				updated = true
				break
			}
		}
		if !updated {
			entry.FirstSeen = now
			entry.LastSeen = now
			if entry.Count == 0 {
				entry.Count = 1
			}
			entries = append(entries, entry)
		}

		if len(entries) > s.maxEntries {
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].FirstSeen.Before(entries[j].FirstSeen)
			})
			entries = entries[len(entries)-s.maxEntries:]
		}

		newData, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("failed to marshal ua history: %w", err)
		}

		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, newData, s.window)
		_, err = pipe.Exec(ctx)
		return err
	}, key)

	if err != nil {
		s.log.Warn(ctx, "ua history write failed, failing open",
			logger.String("user_id", userID), logger.Error(err))
		s.metrics.RecordDegradedCheck("ua_history")
	}
	return nil
}

// prune drops entries whose last sighting fell out of the retention window.
func (s *redisUAHistoryStore) prune(entries []models.UAHistoryEntry, now time.Time) []models.UAHistoryEntry {
	cutoff := now.Add(-s.window)
	kept := entries[:0]
	for _, e := range entries {
		if e.LastSeen.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
