package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sentineliq/riskd/internal/application/service"
	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/domain/models"
	domainService "github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/internal/infrastructure/ledger"
	riskredis "github.com/sentineliq/riskd/internal/infrastructure/redis"
	"github.com/sentineliq/riskd/pkg/constants"
	apperrors "github.com/sentineliq/riskd/pkg/errors"
	"github.com/sentineliq/riskd/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	published []*models.RiskScore
}

func (p *capturePublisher) Publish(ctx context.Context, decision *models.RiskScore) {
	p.published = append(p.published, decision)
}

func (p *capturePublisher) Close() error { return nil }

type stubMLScorer struct {
	result *models.MLResult
	err    error
}

func (s *stubMLScorer) Score(ctx context.Context, features map[string]float64) (*models.MLResult, error) {
	return s.result, s.err
}

type failingLedger struct{}

func (l *failingLedger) Append(ctx context.Context, payload models.LedgerPayload) (string, error) {
	return "", apperrors.ErrLedgerAppend(errors.New("disk full"))
}

func (l *failingLedger) Verify(ctx context.Context, fromSeq, toSeq uint64) (*models.VerifyResult, error) {
	return nil, apperrors.ErrLedgerAppend(errors.New("disk full"))
}

func (l *failingLedger) Head(ctx context.Context) (*models.LedgerEntry, error) {
	return nil, nil
}

func (l *failingLedger) Entries(ctx context.Context, fromSeq, toSeq uint64) ([]models.LedgerEntry, error) {
	return nil, nil
}

type riskServiceDeps struct {
	guard     domainService.IdempotencyGuard
	ledger    domainService.LedgerStore
	publisher *capturePublisher
}

func newRiskService(t *testing.T, ml domainService.MLScorer, ledgerStore domainService.LedgerStore) (service.RiskAppService, *riskServiceDeps) {
	t.Helper()

	engCfg := testEngineConfig()
	log := logger.NewNoopLogger()

	_, velocity := newTestVelocityStore(t)
	uaStore := newTestUAHistoryStore(t)

	idemCfg := config.IdempotencyConfig{}
	idemCfg.ApplyDefaults()
	guard := riskredis.NewRedisIdempotencyGuard(newTestRedisClient(t), idemCfg, log, testMetrics)

	if ledgerStore == nil {
		store, err := ledger.NewGormLedgerStore(
			config.LedgerConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "ledger.db")},
			log, testMetrics)
		require.NoError(t, err)
		ledgerStore = store
	}

	publisher := &capturePublisher{}
	rules := service.NewRuleEngine(testRuleSet(), velocity, engCfg, log)
	uaDetector := service.NewUADetector(uaStore, engCfg, log)

	svc := service.NewRiskAppService(rules, uaDetector, guard, velocity, ledgerStore, ml, publisher, engCfg, testMetrics, log)
	return svc, &riskServiceDeps{guard: guard, ledger: ledgerStore, publisher: publisher}
}

func TestEvaluateBenignLogin(t *testing.T) {
	svc, deps := newRiskService(t, nil, nil)
	ctx := context.Background()

	decision, err := svc.Evaluate(ctx, loginEvent("evt_1", "user_1"))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", decision.EventID)
	assert.Equal(t, constants.RiskLevelLow, decision.RiskLevel)
	assert.Equal(t, constants.ActionAllow, decision.RecommendedAction)
	assert.Zero(t, decision.RiskScore)
	assert.Empty(t, decision.TriggeredRules)

	entries, err := deps.ledger.Entries(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "evt_1", entries[0].Payload.EventID)
	assert.Equal(t, constants.ActionAllow, entries[0].Payload.Decision)

	require.Len(t, deps.publisher.published, 1)
	assert.Equal(t, "evt_1", deps.publisher.published[0].EventID)
}

func TestEvaluateDuplicateReplaysCachedDecision(t *testing.T) {
	svc, deps := newRiskService(t, nil, nil)
	ctx := context.Background()

	first, err := svc.Evaluate(ctx, loginEvent("evt_1", "user_1"))
	require.NoError(t, err)

	second, err := svc.Evaluate(ctx, loginEvent("evt_1", "user_1"))
	require.NoError(t, err)

	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, first.RiskScore, second.RiskScore)
	assert.Equal(t, first.RecommendedAction, second.RecommendedAction)

	// the replay touched nothing downstream
	entries, err := deps.ledger.Entries(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Len(t, deps.publisher.published, 1)
}

func TestEvaluateHardRuleBlocks(t *testing.T) {
	svc, _ := newRiskService(t, nil, nil)

	event := loginEvent("evt_1", "user_1")
	event.Context.CountryCode = "KP"

	decision, err := svc.Evaluate(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, constants.RiskLevelCritical, decision.RiskLevel)
	assert.Equal(t, constants.ActionBlock, decision.RecommendedAction)
	assert.InDelta(t, 0.95, decision.RiskScore, 1e-9)
	assert.InDelta(t, 1.0, decision.Confidence, 1e-9)
	assert.Equal(t, []string{"sanctioned_country"}, decision.HardRulesTriggered)
}

func TestEvaluateBehavioralBlend(t *testing.T) {
	svc, _ := newRiskService(t, nil, nil)

	decision, err := svc.Evaluate(context.Background(), transactionEvent("evt_1", "user_1", 25000))
	require.NoError(t, err)

	// no velocity base, so the advisory weight applies to the rule score alone
	assert.InDelta(t, 0.5*constants.BehavioralScoreWeight, decision.RiskScore, 1e-9)
	assert.Equal(t, constants.RiskLevelLow, decision.RiskLevel)
	assert.Contains(t, decision.BehavioralFlags, "large_amount")
}

func TestEvaluateMLAnomalyBlend(t *testing.T) {
	ml := &stubMLScorer{result: &models.MLResult{IsAnomaly: true, Score: 0.9, ModelVersion: "ensemble-v2"}}
	svc, _ := newRiskService(t, ml, nil)

	decision, err := svc.Evaluate(context.Background(), loginEvent("evt_1", "user_1"))
	require.NoError(t, err)

	w := testEngineConfig().MLWeight
	assert.InDelta(t, 0.9*w, decision.RiskScore, 1e-9)
	assert.Equal(t, constants.RiskLevelLow, decision.RiskLevel)
	assert.Contains(t, decision.TriggeredRules, "ml_anomaly_detected")
	assert.Equal(t, "ensemble-v2", decision.ModelVersion)
}

func TestEvaluateMLScorerFailureIsSkipped(t *testing.T) {
	ml := &stubMLScorer{err: errors.New("ensemble timeout")}
	svc, _ := newRiskService(t, ml, nil)

	decision, err := svc.Evaluate(context.Background(), loginEvent("evt_1", "user_1"))
	require.NoError(t, err)
	assert.Equal(t, constants.ActionAllow, decision.RecommendedAction)
	assert.NotContains(t, decision.TriggeredRules, "ml_anomaly_detected")
}

func TestEvaluateRejectsInvalidEvent(t *testing.T) {
	svc, deps := newRiskService(t, nil, nil)
	ctx := context.Background()

	event := loginEvent("evt_1", "user_1")
	event.Actor.UserID = ""

	_, err := svc.Evaluate(ctx, event)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, constants.ErrCodeInvalidEvent))

	entries, err := deps.ledger.Entries(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEvaluateConflictsWhileInProgress(t *testing.T) {
	svc, deps := newRiskService(t, nil, nil)
	ctx := context.Background()

	// another worker holds the lease for this key
	_, err := deps.guard.Check(ctx, "evt_1", constants.EventTypeLogin)
	require.NoError(t, err)

	_, err = svc.Evaluate(ctx, loginEvent("evt_1", "user_1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, constants.ErrCodeConflict))
}

func TestEvaluateLedgerFailureSurfaces(t *testing.T) {
	svc, deps := newRiskService(t, nil, &failingLedger{})
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, loginEvent("evt_1", "user_1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, constants.ErrCodeLedgerAppend))

	// nothing is mirrored downstream without an audit record
	assert.Empty(t, deps.publisher.published)

	// the key is released for retry, not poisoned as a duplicate
	check, err := deps.guard.Check(ctx, "evt_1", constants.EventTypeLogin)
	require.NoError(t, err)
	assert.Equal(t, constants.IdempotencyStatusFailed, check.Status)
}

func TestVerifyLedgerIntegrityPassThrough(t *testing.T) {
	svc, _ := newRiskService(t, nil, nil)
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, loginEvent("evt_1", "user_1"))
	require.NoError(t, err)
	_, err = svc.Evaluate(ctx, loginEvent("evt_2", "user_1"))
	require.NoError(t, err)

	result, err := svc.VerifyLedgerIntegrity(ctx, 0, 0)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.Checked)
}

func TestUAProfileRequiresUserID(t *testing.T) {
	svc, _ := newRiskService(t, nil, nil)

	_, err := svc.UAProfile(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, constants.ErrCodeInvalidEvent))
}
