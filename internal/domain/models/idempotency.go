package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sentineliq/riskd/pkg/constants"
)

// IdempotencyResult is the outcome of checking an idempotency key.
type IdempotencyResult struct {
	Status         constants.IdempotencyStatus `json:"status"`
	Key            string                      `json:"key"`
	CachedResponse json.RawMessage             `json:"cached_response,omitempty"`
	CreatedAt      time.Time                   `json:"created_at,omitempty"`
}

// GenerateIdempotencyKey derives a deterministic key for an evaluation. An
// explicit event ID wins; otherwise the key is assembled from user, action and
// a truncated payload digest. Maps marshal with sorted keys, so the digest is
// stable for equal payloads.
func GenerateIdempotencyKey(eventID, userID, action string, payload interface{}) (string, error) {
	if eventID != "" {
		return eventID, nil
	}

	var components []string
	if userID != "" {
		components = append(components, "user:"+userID)
	}
	if action != "" {
		components = append(components, "action:"+action)
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to marshal idempotency payload: %w", err)
		}
		sum := sha256.Sum256(data)
		components = append(components, "payload:"+hex.EncodeToString(sum[:])[:16])
	}

	if len(components) == 0 {
		return "", fmt.Errorf("idempotency key requires an event id or user, action and payload")
	}
	return strings.Join(components, ":"), nil
}

// CachedRiskScore decodes the cached response as a RiskScore, when present.
func (r *IdempotencyResult) CachedRiskScore() (*RiskScore, bool) {
	if len(r.CachedResponse) == 0 {
		return nil, false
	}
	var score RiskScore
	if err := json.Unmarshal(r.CachedResponse, &score); err != nil {
		return nil, false
	}
	return &score, true
}
