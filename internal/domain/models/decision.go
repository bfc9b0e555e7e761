package models

import (
	"time"

	"github.com/sentineliq/riskd/pkg/constants"
)

// RiskScore is the decision produced for a single event. Immutable after
// creation; persisted via the audit ledger and cached by the idempotency guard.
type RiskScore struct {
	EventID            string              `json:"event_id"`
	UserID             string              `json:"user_id"`
	RiskScore          float64             `json:"risk_score"`
	RiskLevel          constants.RiskLevel `json:"risk_level"`
	RecommendedAction  constants.Action    `json:"recommended_action"`
	Confidence         float64             `json:"confidence"`
	HardRulesTriggered []string            `json:"hard_rules_triggered,omitempty"`
	VelocityAlerts     []string            `json:"velocity_alerts,omitempty"`
	BehavioralFlags    []string            `json:"behavioral_flags,omitempty"`
	TriggeredRules     []string            `json:"triggered_rules,omitempty"`
	ModelVersion       string              `json:"model_version,omitempty"`
	EvaluatedAt        time.Time           `json:"evaluated_at"`
}

// FailOpenResult is the fixed low-risk decision returned when evaluation fails
// internally. Never blocking legitimate activity on an engine bug is a product
// decision, not an implementation convenience.
func FailOpenResult(eventID, userID string) *RiskScore {
	return &RiskScore{
		EventID:           eventID,
		UserID:            userID,
		RiskScore:         constants.FailOpenRiskScore,
		RiskLevel:         constants.RiskLevelLow,
		RecommendedAction: constants.ActionAllow,
		Confidence:        constants.FailOpenConfidence,
		TriggeredRules:    []string{"evaluation_error"},
		EvaluatedAt:       time.Now().UTC(),
	}
}

// MLResult is the output of the external ML ensemble scorer.
type MLResult struct {
	IsAnomaly    bool    `json:"is_anomaly"`
	Score        float64 `json:"score"`
	ModelVersion string  `json:"model_version"`
}
