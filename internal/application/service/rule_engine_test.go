package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/sentineliq/riskd/internal/application/service"
	"github.com/sentineliq/riskd/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuleEngine(t *testing.T) *service.RuleEngine {
	t.Helper()
	_, velocity := newTestVelocityStore(t)
	return service.NewRuleEngine(testRuleSet(), velocity, testEngineConfig(), logger.NewNoopLogger())
}

func TestHardRulesSanctionedCountry(t *testing.T) {
	engine := newTestRuleEngine(t)
	ctx := context.Background()

	event := loginEvent("evt_1", "user_1")
	event.Context.CountryCode = "KP"

	result := engine.EvaluateHardRules(ctx, event)
	require.Equal(t, []string{"sanctioned_country"}, result.Triggered)
	assert.InDelta(t, 0.95, result.MaxScore(), 1e-9)
}

func TestHardRulesCleanEvent(t *testing.T) {
	engine := newTestRuleEngine(t)

	result := engine.EvaluateHardRules(context.Background(), loginEvent("evt_1", "user_1"))
	assert.Empty(t, result.Triggered)
	assert.Zero(t, result.MaxScore())
}

func TestBehavioralRulesLargeAmount(t *testing.T) {
	engine := newTestRuleEngine(t)
	ctx := context.Background()

	small := transactionEvent("evt_1", "user_1", 50)
	assert.Empty(t, engine.EvaluateBehavioralRules(ctx, small).Triggered)

	// gt is strict: the boundary amount does not trigger
	boundary := transactionEvent("evt_2", "user_1", 10000)
	assert.Empty(t, engine.EvaluateBehavioralRules(ctx, boundary).Triggered)

	large := transactionEvent("evt_3", "user_1", 10001)
	result := engine.EvaluateBehavioralRules(ctx, large)
	require.Equal(t, []string{"large_amount"}, result.Triggered)
	assert.InDelta(t, 0.5, result.MaxScore(), 1e-9)
}

func TestDisabledRuleNeverMatches(t *testing.T) {
	rules := testRuleSet()
	rules.HardRules[0].Enabled = false
	_, velocity := newTestVelocityStore(t)
	engine := service.NewRuleEngine(rules, velocity, testEngineConfig(), logger.NewNoopLogger())

	event := loginEvent("evt_1", "user_1")
	event.Context.CountryCode = "KP"

	assert.Empty(t, engine.EvaluateHardRules(context.Background(), event).Triggered)
}

func TestUnknownConditionFieldIsSkipped(t *testing.T) {
	rules := testRuleSet()
	rules.HardRules[0].Conditions = append(rules.HardRules[0].Conditions,
		testRuleSet().HardRules[0].Conditions[0])
	rules.HardRules[0].Conditions[1].Field = "not_a_real_field"

	_, velocity := newTestVelocityStore(t)
	engine := service.NewRuleEngine(rules, velocity, testEngineConfig(), logger.NewNoopLogger())

	// the unrecognized condition is ignored, the recognized one still decides
	event := loginEvent("evt_1", "user_1")
	event.Context.CountryCode = "KP"
	assert.NotEmpty(t, engine.EvaluateHardRules(context.Background(), event).Triggered)

	event.Context.CountryCode = "US"
	assert.Empty(t, engine.EvaluateHardRules(context.Background(), event).Triggered)
}

func TestImpossibleTravelCheck(t *testing.T) {
	engine := newTestRuleEngine(t)
	ctx := context.Background()

	nyc := loginEvent("evt_1", "user_1")
	nyc.Context.HasGeo = true
	nyc.Context.GeoLat, nyc.Context.GeoLon = 40.7128, -74.0060

	// first sighting seeds the location cache, no alert
	result := engine.EvaluateVelocityChecks(ctx, nyc)
	assert.NotContains(t, result.Triggered, "impossible_travel")

	tokyo := loginEvent("evt_2", "user_1")
	tokyo.Context.HasGeo = true
	tokyo.Context.GeoLat, tokyo.Context.GeoLon = 35.6762, 139.6503

	result = engine.EvaluateVelocityChecks(ctx, tokyo)
	require.Contains(t, result.Triggered, "impossible_travel")
	assert.InDelta(t, 0.7, result.MaxScore(), 1e-9)

	// the cache moved to Tokyo, so a nearby login is fine again
	osaka := loginEvent("evt_3", "user_1")
	osaka.Context.HasGeo = true
	osaka.Context.GeoLat, osaka.Context.GeoLon = 34.6937, 135.5023

	result = engine.EvaluateVelocityChecks(ctx, osaka)
	assert.NotContains(t, result.Triggered, "impossible_travel")
}

func TestImpossibleTravelRequiresGeo(t *testing.T) {
	engine := newTestRuleEngine(t)
	ctx := context.Background()

	event := loginEvent("evt_1", "user_1")
	result := engine.EvaluateVelocityChecks(ctx, event)
	assert.NotContains(t, result.Triggered, "impossible_travel")
}

func TestRapidTransactionsCheck(t *testing.T) {
	engine := newTestRuleEngine(t)
	ctx := context.Background()

	cfg := testEngineConfig()
	for i := int64(0); i < cfg.RapidTransactionLimit; i++ {
		event := transactionEvent(fmt.Sprintf("evt_%d", i), "user_1", 25)
		result := engine.EvaluateVelocityChecks(ctx, event)
		assert.NotContains(t, result.Triggered, "rapid_transactions")
	}

	over := transactionEvent("evt_over", "user_1", 25)
	result := engine.EvaluateVelocityChecks(ctx, over)
	assert.Contains(t, result.Triggered, "rapid_transactions")
}

func TestRapidTransactionsIgnoresLogins(t *testing.T) {
	engine := newTestRuleEngine(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		event := loginEvent(fmt.Sprintf("evt_%d", i), "user_1")
		event.Actor.DeviceFingerprint = "fp_stable"
		result := engine.EvaluateVelocityChecks(ctx, event)
		assert.NotContains(t, result.Triggered, "rapid_transactions")
	}
}

func TestMultiDeviceLoginCheck(t *testing.T) {
	engine := newTestRuleEngine(t)
	ctx := context.Background()

	cfg := testEngineConfig()
	for i := int64(0); i < cfg.MultiDeviceLimit; i++ {
		event := loginEvent(fmt.Sprintf("evt_%d", i), "user_1")
		event.Actor.DeviceFingerprint = fmt.Sprintf("fp_%d", i)
		result := engine.EvaluateVelocityChecks(ctx, event)
		assert.NotContains(t, result.Triggered, "multi_device_login")
	}

	event := loginEvent("evt_over", "user_1")
	event.Actor.DeviceFingerprint = "fp_fresh"
	result := engine.EvaluateVelocityChecks(ctx, event)
	assert.Contains(t, result.Triggered, "multi_device_login")
}

func TestMultiDeviceLoginKnownDeviceExempt(t *testing.T) {
	engine := newTestRuleEngine(t)
	ctx := context.Background()

	// a device that was tolerated once is known from then on and never
	// counts toward the unknown-device window again
	for i := 0; i < 10; i++ {
		event := loginEvent(fmt.Sprintf("evt_%d", i), "user_1")
		event.Actor.DeviceFingerprint = "fp_same"
		result := engine.EvaluateVelocityChecks(ctx, event)
		assert.NotContains(t, result.Triggered, "multi_device_login")
	}
}

func TestRuleCombinationBoost(t *testing.T) {
	engine := newTestRuleEngine(t)
	ctx := context.Background()

	assert.Zero(t, engine.EvaluateRuleCombinations(ctx, []string{"impossible_travel"}))

	boost := engine.EvaluateRuleCombinations(ctx, []string{"impossible_travel", "multi_device_login", "large_amount"})
	assert.InDelta(t, 0.4, boost, 1e-9)
}

func TestRuleCombinationLargestBoostWins(t *testing.T) {
	rules := testRuleSet()
	rules.RuleCombinations = append(rules.RuleCombinations, rules.RuleCombinations[0])
	rules.RuleCombinations[1].ID = "travel_alone"
	rules.RuleCombinations[1].TriggeredRules = []string{"impossible_travel"}
	rules.RuleCombinations[1].BaseScore = 0.7

	_, velocity := newTestVelocityStore(t)
	engine := service.NewRuleEngine(rules, velocity, testEngineConfig(), logger.NewNoopLogger())

	boost := engine.EvaluateRuleCombinations(context.Background(), []string{"impossible_travel", "multi_device_login"})
	assert.InDelta(t, 0.4, boost, 1e-9)
}
