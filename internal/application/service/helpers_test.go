package service_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/domain/models"
	domainService "github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/internal/infrastructure/monitoring"
	riskredis "github.com/sentineliq/riskd/internal/infrastructure/redis"
	"github.com/sentineliq/riskd/pkg/constants"
	"github.com/sentineliq/riskd/pkg/logger"
	"github.com/stretchr/testify/require"
)

// registered once; promauto panics on duplicate registration
var testMetrics = monitoring.NewMetrics()

func testEngineConfig() config.EngineConfig {
	cfg := config.EngineConfig{}
	cfg.ApplyDefaults()
	return cfg
}

func testRuleSet() *models.RuleSet {
	return &models.RuleSet{
		HardRules: []models.RuleDefinition{
			{
				ID: "sanctioned_country", Name: "Sanctioned country origin",
				Enabled: true, RiskScore: 0.95,
				Conditions: []models.Condition{
					{Field: "country_code", Op: models.OpIn, Values: []string{"KP", "IR", "SY"}},
				},
			},
		},
		VelocityChecks: []models.RuleDefinition{
			{ID: "impossible_travel", Enabled: true, RiskScore: 0.7},
			{ID: "rapid_transactions", Enabled: true, RiskScore: 0.7},
			{ID: "multi_device_login", Enabled: true, RiskScore: 0.75},
		},
		BehavioralRules: []models.RuleDefinition{
			{
				ID: "large_amount", Name: "Unusually large transaction",
				Enabled: true, RiskScore: 0.5,
				Conditions: []models.Condition{
					{Field: "event_type", Op: models.OpEq, Value: "transaction.attempted"},
					{Field: "amount", Op: models.OpGt, Value: 10000},
				},
			},
		},
		RuleCombinations: []models.RuleCombination{
			{
				ID: "travel_plus_device", TriggeredRules: []string{"impossible_travel", "multi_device_login"},
				BaseScore: 0.9,
			},
		},
		Thresholds: models.Thresholds{Review: 0.30, Challenge: 0.60, Block: 0.80},
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestVelocityStore(t *testing.T) (*miniredis.Miniredis, domainService.VelocityStore) {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	return s, riskredis.NewRedisVelocityStore(client, logger.NewNoopLogger(), testMetrics)
}

func newTestUAHistoryStore(t *testing.T) domainService.UAHistoryStore {
	t.Helper()
	return riskredis.NewRedisUAHistoryStore(newTestRedisClient(t), constants.UAHistoryMaxEntries, constants.UAHistoryWindow, logger.NewNoopLogger(), testMetrics)
}

func loginEvent(eventID, userID string) *models.Event {
	return &models.Event{
		EventID:   eventID,
		EventType: constants.EventTypeLogin,
		Actor: models.Actor{
			UserID:            userID,
			DeviceFingerprint: "fp_default",
			IPAddress:         "198.51.100.7",
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Context:   models.EventContext{CountryCode: "US"},
		Timestamp: time.Now().UTC(),
	}
}

func transactionEvent(eventID, userID string, amount float64) *models.Event {
	e := loginEvent(eventID, userID)
	e.EventType = constants.EventTypeTransactionAttempted
	e.Context.Amount = amount
	return e
}
