package service

import (
	"github.com/sentineliq/riskd/internal/domain/models"
	"github.com/sentineliq/riskd/pkg/constants"
)

// DetermineAction maps a clamped score onto the ordered risk bands. Each
// boundary is lower-inclusive for the band above it: a score of exactly 0.30
// is medium/review, 0.80 is critical/block.
func DetermineAction(score float64, thresholds models.Thresholds) (constants.RiskLevel, constants.Action) {
	switch {
	case score < thresholds.Review:
		return constants.RiskLevelLow, constants.ActionAllow
	case score < thresholds.Challenge:
		return constants.RiskLevelMedium, constants.ActionReview
	case score < thresholds.Block:
		return constants.RiskLevelHigh, constants.ActionChallenge
	default:
		return constants.RiskLevelCritical, constants.ActionBlock
	}
}

// CalculateConfidence averages rule-count confidence with the score itself.
// Three triggered rules saturate the rule component.
func CalculateConfidence(triggeredRules int, score float64) float64 {
	ruleConfidence := float64(triggeredRules) / constants.ConfidenceRuleSaturation
	if ruleConfidence > 1.0 {
		ruleConfidence = 1.0
	}
	return (ruleConfidence + score) / 2
}

// ClampScore bounds a score to [0, 1].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
