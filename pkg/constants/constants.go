// Package constants defines system-wide constants for the SentinelIQ risk
// decision engine. This package provides type-safe constant definitions used
// across all modules.
package constants

import "time"

// ================================================================================
// Event Type Constants
// ================================================================================

// EventType represents the type of an incoming financial event.
type EventType string

const (
	// EventTypeLogin represents an authentication login event
	EventTypeLogin EventType = "authentication.login"

	// EventTypeLoginFailed represents a failed authentication attempt
	EventTypeLoginFailed EventType = "authentication.failed"

	// EventTypeTransactionAttempted represents an attempted transaction
	EventTypeTransactionAttempted EventType = "transaction.attempted"

	// EventTypeTransactionCompleted represents a completed transaction
	EventTypeTransactionCompleted EventType = "transaction.completed"

	// EventTypeSessionAction represents a generic in-session action
	EventTypeSessionAction EventType = "session.action"
)

// ================================================================================
// Risk Level Constants
// ================================================================================

// RiskLevel represents the categorical severity of a risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// ================================================================================
// Recommended Action Constants
// ================================================================================

// Action represents the recommended handling for a scored event.
type Action string

const (
	ActionAllow     Action = "allow"
	ActionReview    Action = "review"
	ActionChallenge Action = "challenge"
	ActionBlock     Action = "block"
)

// ================================================================================
// Idempotency Constants
// ================================================================================

// IdempotencyStatus represents the lifecycle state of an idempotency record.
type IdempotencyStatus string

const (
	// IdempotencyStatusNew indicates the key has never been seen before
	IdempotencyStatusNew IdempotencyStatus = "new"

	// IdempotencyStatusInProgress indicates another worker holds the lease
	IdempotencyStatusInProgress IdempotencyStatus = "in_progress"

	// IdempotencyStatusDuplicate indicates the key was already processed
	IdempotencyStatusDuplicate IdempotencyStatus = "duplicate"

	// IdempotencyStatusFailed indicates a previous attempt failed or its lease expired
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

const (
	// IdempotencyLeaseTTL is the maximum time an evaluation may stay "in progress"
	IdempotencyLeaseTTL = 30 * time.Second

	// IdempotencyDefaultTTL is the default retention for completed records (24 hours)
	IdempotencyDefaultTTL = 24 * time.Hour

	// IdempotencyTransactionTTL is the retention for financial events (7 days)
	IdempotencyTransactionTTL = 7 * 24 * time.Hour

	// IdempotencyAuthTTL is the retention for authentication events (1 hour)
	IdempotencyAuthTTL = 1 * time.Hour
)

// ================================================================================
// Scoring Defaults
// ================================================================================

const (
	// DefaultReviewThreshold is the score boundary between allow and review
	DefaultReviewThreshold = 0.30

	// DefaultChallengeThreshold is the score boundary between review and challenge
	DefaultChallengeThreshold = 0.60

	// DefaultBlockThreshold is the score boundary between challenge and block
	DefaultBlockThreshold = 0.80

	// MLScoreWeight is the fixed share of the final score contributed by the ML ensemble
	MLScoreWeight = 0.3

	// BehavioralScoreWeight is the advisory weight of behavioral signals
	BehavioralScoreWeight = 0.3

	// FailOpenRiskScore is the score returned when evaluation fails internally
	FailOpenRiskScore = 0.2

	// FailOpenConfidence is the confidence returned when evaluation fails internally
	FailOpenConfidence = 0.5

	// ConfidenceRuleSaturation is the triggered-rule count that yields full rule confidence
	ConfidenceRuleSaturation = 3
)

// ================================================================================
// Velocity Check Defaults
// ================================================================================

const (
	// ImpossibleTravelMiles is the distance between consecutive logins treated as impossible
	ImpossibleTravelMiles = 3000.0

	// RapidTransactionLimit is the per-hour transaction count above which the check fires
	RapidTransactionLimit = 20

	// RapidTransactionWindow is the rolling window for the transaction counter
	RapidTransactionWindow = 1 * time.Hour

	// MultiDeviceLimit is the number of distinct unknown devices tolerated per window
	MultiDeviceLimit = 3

	// MultiDeviceWindow is the sliding window for unknown-device tracking
	MultiDeviceWindow = 5 * time.Minute
)

// ================================================================================
// User-Agent Detector Defaults
// ================================================================================

const (
	// UASimilarityThreshold is the minimum normalized similarity to pass without a flag
	UASimilarityThreshold = 0.85

	// UAVersionDriftAllowed is the tolerated browser major-version difference
	UAVersionDriftAllowed = 3

	// UAHistoryWindow is the rolling retention window for per-user UA history
	UAHistoryWindow = 30 * 24 * time.Hour

	// UAHistoryMaxEntries caps the per-user UA history (oldest evicted first)
	UAHistoryMaxEntries = 50

	// UAAnomalyThreshold is the anomaly score at or above which a UA is flagged
	UAAnomalyThreshold = 0.5

	// UAMinPlausibleLength is the shortest User-Agent not considered suspicious outright
	UAMinPlausibleLength = 10
)

// ================================================================================
// Device Type Constants
// ================================================================================

// DeviceType classifies the client device derived from a User-Agent string.
type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeBot     DeviceType = "bot"
)

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode identifies a class of engine error.
type ErrorCode string

const (
	ErrCodeInvalidEvent     ErrorCode = "invalid_event"
	ErrCodeStoreUnavailable ErrorCode = "store_unavailable"
	ErrCodeLedgerAppend     ErrorCode = "ledger_append_failed"
	ErrCodeLedgerIntegrity  ErrorCode = "ledger_integrity_violation"
	ErrCodeEvaluation       ErrorCode = "evaluation_error"
	ErrCodeInternal         ErrorCode = "internal_error"
	ErrCodeNotFound         ErrorCode = "not_found"
	ErrCodeConflict         ErrorCode = "conflict"
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the logging severity level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// ContextKey is the type for values stored in a request context.
type ContextKey string

const (
	// ContextKeyRequestID carries the inbound request identifier
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyEventID carries the event being evaluated
	ContextKeyEventID ContextKey = "event_id"

	// ContextKeyUserID carries the acting user
	ContextKeyUserID ContextKey = "user_id"

	// ContextKeyTraceID carries the distributed trace identifier
	ContextKeyTraceID ContextKey = "trace_id"
)

// ================================================================================
// Service Level Targets
// ================================================================================

const (
	// DecisionLatencyTarget is the soft per-event latency SLA, enforced by monitoring
	DecisionLatencyTarget = 200 * time.Millisecond
)
