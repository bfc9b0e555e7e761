// Package service defines the domain service interfaces of the risk decision
// engine. Implementations live under internal/infrastructure; the application
// layer depends only on these contracts.
package service

import (
	"context"
	"time"

	"github.com/sentineliq/riskd/internal/domain/models"
	"github.com/sentineliq/riskd/pkg/constants"
)

// IdempotencyGuard provides exactly-once semantics for event evaluation.
//
// Check must perform its read-or-create step as a single atomic operation
// against the shared store: two concurrent callers sharing a key may never
// both observe status NEW.
type IdempotencyGuard interface {
	// Check returns the state of the key, creating an in-progress record with
	// a short lease when the key is new. Must fail open (status NEW) when the
	// backing store is unreachable.
	Check(ctx context.Context, key string, eventType constants.EventType) (*models.IdempotencyResult, error)

	// Complete caches the response against the key with a retention TTL
	// governed by event type, and releases the lease.
	Complete(ctx context.Context, key string, response interface{}, eventType constants.EventType) error

	// Fail releases the lease without caching a response, permitting retry.
	Fail(ctx context.Context, key string, reason string) error
}

// LastLocation is a cached user location used by the impossible-travel check.
type LastLocation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// VelocityStore tracks per-user rolling counters, last-known locations and
// device fingerprints. All lookups fail open: when the store is unreachable,
// implementations return zero values rather than errors on the hot path.
type VelocityStore interface {
	// LastLocation returns the user's cached location, or nil when unknown.
	LastLocation(ctx context.Context, userID string) (*LastLocation, error)

	// SetLastLocation caches the user's location.
	SetLastLocation(ctx context.Context, userID string, loc LastLocation) error

	// IncrementCounter atomically increments a rolling counter and returns the
	// new count. The window TTL is set on first increment.
	IncrementCounter(ctx context.Context, userID, name string, window time.Duration) (int64, error)

	// Counter returns the current value of a rolling counter without advancing it.
	Counter(ctx context.Context, userID, name string) (int64, error)

	// IsKnownDevice reports whether the device fingerprint has been seen before.
	IsKnownDevice(ctx context.Context, userID, fingerprint string) (bool, error)

	// MarkDeviceKnown records the fingerprint as an accepted device.
	MarkDeviceKnown(ctx context.Context, userID, fingerprint string) error

	// TrackUnknownDevice adds the fingerprint to the user's sliding unknown-device
	// set and returns the distinct count within the window.
	TrackUnknownDevice(ctx context.Context, userID, fingerprint string, window time.Duration) (int64, error)
}

// UAHistoryStore persists bounded per-user User-Agent history.
type UAHistoryStore interface {
	// History returns the user's UA entries within the rolling retention window.
	History(ctx context.Context, userID string) ([]models.UAHistoryEntry, error)

	// Record updates the matching entry's last-seen/count, or appends a new one,
	// enforcing the per-user cap (oldest evicted first).
	Record(ctx context.Context, userID string, entry models.UAHistoryEntry) error
}

// LedgerStore is the hash-chained append-only audit ledger.
//
// Append must serialize "read previous hash, compute, write" per ledger: two
// decisions may never both commit against the same previous hash.
type LedgerStore interface {
	// Append links the payload to the chain head and persists it, returning the
	// new entry's hash. Errors are hard failures and must surface to the caller.
	Append(ctx context.Context, payload models.LedgerPayload) (string, error)

	// Verify re-walks [fromSeq, toSeq] (0 meaning open-ended) recomputing every
	// hash, and reports the first break if any.
	Verify(ctx context.Context, fromSeq, toSeq uint64) (*models.VerifyResult, error)

	// Head returns the most recent entry, or nil for an empty ledger.
	Head(ctx context.Context) (*models.LedgerEntry, error)

	// Entries returns the entries in [fromSeq, toSeq] in sequence order.
	Entries(ctx context.Context, fromSeq, toSeq uint64) ([]models.LedgerEntry, error)
}

// MLScorer is the external ML ensemble consumed as a black box. The engine
// must tolerate its absence (nil scorer) and its failures.
type MLScorer interface {
	// Score evaluates a feature map and returns the ensemble result.
	Score(ctx context.Context, features map[string]float64) (*models.MLResult, error)
}

// DecisionPublisher mirrors finalized decisions to a downstream stream.
// Publishing is best-effort and never blocks or fails decisioning.
type DecisionPublisher interface {
	// Publish emits the decision. Implementations log and swallow errors.
	Publish(ctx context.Context, decision *models.RiskScore)

	// Close releases the underlying transport.
	Close() error
}
