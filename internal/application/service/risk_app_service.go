package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/domain/models"
	domainService "github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/internal/infrastructure/monitoring"
	"github.com/sentineliq/riskd/pkg/constants"
	apperrors "github.com/sentineliq/riskd/pkg/errors"
	"github.com/sentineliq/riskd/pkg/logger"
)

// RiskAppService is the decision orchestrator. One call evaluates one event
// end to end: validation, idempotency, the scoring pipeline, the audit ledger
// and the decision stream.
type RiskAppService interface {
	// Evaluate scores an event and returns the decision. Input errors and
	// ledger append failures surface to the caller; internal evaluation
	// failures degrade to the fixed fail-open decision.
	Evaluate(ctx context.Context, event *models.Event) (*models.RiskScore, error)

	// VerifyLedgerIntegrity re-walks the audit chain over [fromSeq, toSeq].
	VerifyLedgerIntegrity(ctx context.Context, fromSeq, toSeq uint64) (*models.VerifyResult, error)

	// UAProfile returns the user's User-Agent history view.
	UAProfile(ctx context.Context, userID string) (*models.UAProfile, error)
}

// riskAppServiceImpl is the concrete implementation of RiskAppService.
type riskAppServiceImpl struct {
	rules       *RuleEngine
	uaDetector  *UADetector
	idempotency domainService.IdempotencyGuard
	velocity    domainService.VelocityStore
	ledger      domainService.LedgerStore
	mlScorer    domainService.MLScorer
	publisher   domainService.DecisionPublisher
	engCfg      config.EngineConfig
	metrics     *monitoring.Metrics
	logger      logger.Logger
}

// NewRiskAppService creates a new instance of RiskAppService. mlScorer may be
// nil when no ensemble is deployed; publisher may be a noop.
func NewRiskAppService(
	rules *RuleEngine,
	uaDetector *UADetector,
	idempotency domainService.IdempotencyGuard,
	velocity domainService.VelocityStore,
	ledger domainService.LedgerStore,
	mlScorer domainService.MLScorer,
	publisher domainService.DecisionPublisher,
	engCfg config.EngineConfig,
	metrics *monitoring.Metrics,
	log logger.Logger,
) RiskAppService {
	return &riskAppServiceImpl{
		rules:       rules,
		uaDetector:  uaDetector,
		idempotency: idempotency,
		velocity:    velocity,
		ledger:      ledger,
		mlScorer:    mlScorer,
		publisher:   publisher,
		engCfg:      engCfg,
		metrics:     metrics,
		logger:      log.WithComponent("risk_app_service"),
	}
}

// Evaluate implements the decision pipeline.
func (s *riskAppServiceImpl) Evaluate(ctx context.Context, event *models.Event) (*models.RiskScore, error) {
	started := time.Now()

	// 1. Validate before any side effect occurs.
	if missing := event.Validate(); len(missing) > 0 {
		return nil, apperrors.ErrInvalidEvent(
			fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")))
	}

	ctx = context.WithValue(ctx, constants.ContextKeyEventID, event.EventID)
	ctx = context.WithValue(ctx, constants.ContextKeyUserID, event.Actor.UserID)

	// 2. Idempotency wrap. Duplicates replay the cached decision and touch
	// nothing downstream; a live lease means another worker is evaluating.
	check, err := s.idempotency.Check(ctx, event.EventID, event.EventType)
	if err != nil {
		return nil, err
	}
	switch check.Status {
	case constants.IdempotencyStatusDuplicate:
		if cached, ok := check.CachedRiskScore(); ok {
			s.logger.Info(ctx, "duplicate event, returning cached decision",
				logger.String("event_id", event.EventID))
			return cached, nil
		}
		// Cached response unreadable; fall through and re-evaluate.
	case constants.IdempotencyStatusInProgress:
		return nil, apperrors.ErrEvaluationInProgress(event.EventID)
	}

	// 3. Score. Internal failures degrade to the fixed fail-open decision.
	decision := s.scorePipeline(ctx, event)

	// 4. Append to the audit ledger. This is the one hard dependency: a
	// decision that cannot be recorded is not served.
	if _, err := s.ledger.Append(ctx, buildLedgerPayload(event, decision)); err != nil {
		s.logger.Error(ctx, "audit ledger append failed", err,
			logger.String("event_id", event.EventID))
		_ = s.idempotency.Fail(ctx, event.EventID, "ledger append failed")
		return nil, err
	}

	// 5. Cache the decision and mirror it to the stream.
	if err := s.idempotency.Complete(ctx, event.EventID, decision, event.EventType); err != nil {
		s.logger.Warn(ctx, "failed to cache decision for idempotency",
			logger.String("event_id", event.EventID), logger.Error(err))
	}
	s.publisher.Publish(ctx, decision)

	s.metrics.RecordDecision(event.EventType, decision.RecommendedAction, decision.RiskLevel, time.Since(started))
	s.logger.Info(ctx, "event evaluated",
		logger.String("event_id", event.EventID),
		logger.Float64("risk_score", decision.RiskScore),
		logger.String("action", string(decision.RecommendedAction)),
		logger.Duration("elapsed", time.Since(started)))

	return decision, nil
}

// scorePipeline runs the fixed-order scoring steps. Never returns an error:
// a panic or detector failure yields the fail-open decision instead, because
// blocking legitimate traffic on an engine defect is the worse outcome.
func (s *riskAppServiceImpl) scorePipeline(ctx context.Context, event *models.Event) (decision *models.RiskScore) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "evaluation panicked, failing open",
				fmt.Errorf("panic: %v", r),
				logger.String("event_id", event.EventID))
			decision = models.FailOpenResult(event.EventID, event.Actor.UserID)
		}
	}()

	var (
		allTriggered    []string
		velocityAlerts  []string
		behavioralFlags []string
		modelVersion    string
	)
	riskScore := 0.0

	// Hard rules are gatekeepers: any trigger short-circuits to block.
	hard := s.rules.EvaluateHardRules(ctx, event)
	if len(hard.Triggered) > 0 {
		return &models.RiskScore{
			EventID:            event.EventID,
			UserID:             event.Actor.UserID,
			RiskScore:          hard.MaxScore(),
			RiskLevel:          constants.RiskLevelCritical,
			RecommendedAction:  constants.ActionBlock,
			Confidence:         1.0,
			HardRulesTriggered: hard.Triggered,
			TriggeredRules:     hard.Triggered,
			EvaluatedAt:        time.Now().UTC(),
		}
	}

	velocity := s.rules.EvaluateVelocityChecks(ctx, event)
	if len(velocity.Triggered) > 0 {
		velocityAlerts = velocity.Triggered
		allTriggered = append(allTriggered, velocity.Triggered...)
		riskScore = velocity.MaxScore()
	}

	behavioral := s.rules.EvaluateBehavioralRules(ctx, event)
	if len(behavioral.Triggered) > 0 {
		behavioralFlags = append(behavioralFlags, behavioral.Triggered...)
		allTriggered = append(allTriggered, behavioral.Triggered...)
		w := constants.BehavioralScoreWeight
		riskScore = riskScore*(1-w) + behavioral.MaxScore()*w
	}

	uaAnalysis, err := s.uaDetector.Analyze(ctx, event.Actor.UserID, event.Actor.UserAgent)
	if err != nil {
		s.logger.Warn(ctx, "ua analysis failed, skipping",
			logger.String("event_id", event.EventID), logger.Error(err))
	} else if uaAnalysis.IsAnomaly {
		allTriggered = append(allTriggered, "ua_anomaly_detected")
		behavioralFlags = append(behavioralFlags, "user_agent_anomaly")
		if uaAnalysis.AnomalyScore > riskScore {
			riskScore = uaAnalysis.AnomalyScore
		}
	}

	if s.mlScorer != nil {
		features := BuildMLFeatures(ctx, event, s.velocity)
		mlResult, err := s.mlScorer.Score(ctx, features)
		if err != nil {
			s.logger.Warn(ctx, "ml scoring failed, skipping",
				logger.String("event_id", event.EventID), logger.Error(err))
		} else if mlResult != nil && mlResult.IsAnomaly {
			allTriggered = append(allTriggered, "ml_anomaly_detected")
			behavioralFlags = append(behavioralFlags, "ml_anomaly")
			modelVersion = mlResult.ModelVersion
			w := s.engCfg.MLWeight
			riskScore = riskScore*(1-w) + mlResult.Score*w
		}
	}

	riskScore = ClampScore(riskScore + s.rules.EvaluateRuleCombinations(ctx, allTriggered))

	level, action := DetermineAction(riskScore, s.rules.Thresholds())

	return &models.RiskScore{
		EventID:           event.EventID,
		UserID:            event.Actor.UserID,
		RiskScore:         riskScore,
		RiskLevel:         level,
		RecommendedAction: action,
		Confidence:        CalculateConfidence(len(allTriggered), riskScore),
		VelocityAlerts:    velocityAlerts,
		BehavioralFlags:   behavioralFlags,
		TriggeredRules:    allTriggered,
		ModelVersion:      modelVersion,
		EvaluatedAt:       time.Now().UTC(),
	}
}

// VerifyLedgerIntegrity re-walks the audit chain over the requested range.
func (s *riskAppServiceImpl) VerifyLedgerIntegrity(ctx context.Context, fromSeq, toSeq uint64) (*models.VerifyResult, error) {
	result, err := s.ledger.Verify(ctx, fromSeq, toSeq)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		s.logger.Error(ctx, "ledger integrity violation detected",
			apperrors.ErrLedgerIntegrity(result.FirstBreak),
			logger.Uint64("first_break", result.FirstBreak))
	}
	return result, nil
}

// UAProfile returns the user's User-Agent history view.
func (s *riskAppServiceImpl) UAProfile(ctx context.Context, userID string) (*models.UAProfile, error) {
	if userID == "" {
		return nil, apperrors.ErrInvalidEvent("user id is required")
	}
	return s.uaDetector.Profile(ctx, userID)
}

func buildLedgerPayload(event *models.Event, decision *models.RiskScore) models.LedgerPayload {
	return models.LedgerPayload{
		EventID:        event.EventID,
		EventType:      event.EventType,
		UserID:         event.Actor.UserID,
		Action:         "risk_score_calculated",
		Decision:       decision.RecommendedAction,
		RiskScore:      decision.RiskScore,
		RiskLevel:      decision.RiskLevel,
		Confidence:     decision.Confidence,
		TriggeredRules: decision.TriggeredRules,
		ActorIP:        event.Actor.IPAddress,
		ActorUserAgent: event.Actor.UserAgent,
	}
}
