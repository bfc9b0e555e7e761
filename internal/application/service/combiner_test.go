package service_test

import (
	"testing"

	"github.com/sentineliq/riskd/internal/application/service"
	"github.com/sentineliq/riskd/internal/domain/models"
	"github.com/sentineliq/riskd/pkg/constants"
	"github.com/stretchr/testify/assert"
)

var defaultThresholds = models.Thresholds{Review: 0.30, Challenge: 0.60, Block: 0.80}

func TestDetermineAction(t *testing.T) {
	tests := []struct {
		score  float64
		level  constants.RiskLevel
		action constants.Action
	}{
		{0.0, constants.RiskLevelLow, constants.ActionAllow},
		{0.29, constants.RiskLevelLow, constants.ActionAllow},
		// boundaries are lower-inclusive for the band above
		{0.30, constants.RiskLevelMedium, constants.ActionReview},
		{0.59, constants.RiskLevelMedium, constants.ActionReview},
		{0.60, constants.RiskLevelHigh, constants.ActionChallenge},
		{0.79, constants.RiskLevelHigh, constants.ActionChallenge},
		{0.80, constants.RiskLevelCritical, constants.ActionBlock},
		{1.0, constants.RiskLevelCritical, constants.ActionBlock},
	}

	for _, tt := range tests {
		level, action := service.DetermineAction(tt.score, defaultThresholds)
		assert.Equal(t, tt.level, level, "score %.2f", tt.score)
		assert.Equal(t, tt.action, action, "score %.2f", tt.score)
	}
}

func TestCalculateConfidence(t *testing.T) {
	// no rules, zero score
	assert.InDelta(t, 0.0, service.CalculateConfidence(0, 0.0), 1e-9)

	// rule component saturates at three triggered rules
	assert.InDelta(t, 0.5, service.CalculateConfidence(3, 0.0), 1e-9)
	assert.InDelta(t, 0.5, service.CalculateConfidence(10, 0.0), 1e-9)

	// one rule with a 0.6 score
	assert.InDelta(t, (1.0/3.0+0.6)/2, service.CalculateConfidence(1, 0.6), 1e-9)

	// everything maxed
	assert.InDelta(t, 1.0, service.CalculateConfidence(3, 1.0), 1e-9)
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, service.ClampScore(-0.2))
	assert.Equal(t, 0.45, service.ClampScore(0.45))
	assert.Equal(t, 1.0, service.ClampScore(1.7))
}
