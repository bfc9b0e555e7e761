// Package service provides application-level services that orchestrate the
// risk decision pipeline over the domain stores.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/domain/models"
	domainService "github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/pkg/constants"
	"github.com/sentineliq/riskd/pkg/geo"
	"github.com/sentineliq/riskd/pkg/logger"
)

// Built-in velocity check identifiers. The rule document enables and scores
// these; their detection logic is native.
const (
	VelocityRuleImpossibleTravel = "impossible_travel"
	VelocityRuleRapidTxn         = "rapid_transactions"
	VelocityRuleMultiDevice      = "multi_device_login"

	rapidTxnCounterName = "transactions:hourly"
)

// RuleResult carries the triggered rule IDs and their configured scores for
// one evaluation pass.
type RuleResult struct {
	Triggered []string
	Scores    []float64
}

// MaxScore returns the largest configured score among the triggered rules.
func (r RuleResult) MaxScore() float64 {
	max := 0.0
	for _, s := range r.Scores {
		if s > max {
			max = s
		}
	}
	return max
}

// RuleEngine evaluates the declarative rule set against events. The rule set
// is loaded once at construction and read-only afterwards.
type RuleEngine struct {
	rules    *models.RuleSet
	velocity domainService.VelocityStore
	engCfg   config.EngineConfig
	logger   logger.Logger

	warnedFields sync.Map
}

// NewRuleEngine creates a new RuleEngine.
func NewRuleEngine(rules *models.RuleSet, velocity domainService.VelocityStore, engCfg config.EngineConfig, log logger.Logger) *RuleEngine {
	return &RuleEngine{
		rules:    rules,
		velocity: velocity,
		engCfg:   engCfg,
		logger:   log.WithComponent("rule_engine"),
	}
}

// Thresholds returns the decision thresholds of the loaded rule set.
func (e *RuleEngine) Thresholds() models.Thresholds {
	return e.rules.Thresholds
}

// EvaluateHardRules runs the gatekeeper rules. Any trigger short-circuits the
// pipeline at the combiner.
func (e *RuleEngine) EvaluateHardRules(ctx context.Context, event *models.Event) RuleResult {
	result := e.evaluateDeclarative(ctx, event, e.rules.HardRules)
	for _, id := range result.Triggered {
		e.logger.Warn(ctx, "hard rule matched", logger.String("rule_id", id))
	}
	return result
}

// EvaluateBehavioralRules runs the advisory behavioral rules.
func (e *RuleEngine) EvaluateBehavioralRules(ctx context.Context, event *models.Event) RuleResult {
	return e.evaluateDeclarative(ctx, event, e.rules.BehavioralRules)
}

func (e *RuleEngine) evaluateDeclarative(ctx context.Context, event *models.Event, rules []models.RuleDefinition) RuleResult {
	var result RuleResult
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if e.matchRule(ctx, event, rule) {
			result.Triggered = append(result.Triggered, rule.ID)
			result.Scores = append(result.Scores, rule.RiskScore)
		}
	}
	return result
}

// EvaluateVelocityChecks runs the built-in velocity detectors for each enabled
// velocity rule. Store failures inside the detectors fail open, so a degraded
// Redis yields no velocity alerts rather than an error.
func (e *RuleEngine) EvaluateVelocityChecks(ctx context.Context, event *models.Event) RuleResult {
	var result RuleResult

	if rule, ok := e.rules.VelocityRule(VelocityRuleImpossibleTravel); ok {
		if e.checkImpossibleTravel(ctx, event) {
			result.Triggered = append(result.Triggered, rule.ID)
			result.Scores = append(result.Scores, rule.RiskScore)
			e.logger.Warn(ctx, "velocity check matched", logger.String("rule_id", rule.ID))
		}
	}
	if rule, ok := e.rules.VelocityRule(VelocityRuleRapidTxn); ok {
		if e.checkRapidTransactions(ctx, event) {
			result.Triggered = append(result.Triggered, rule.ID)
			result.Scores = append(result.Scores, rule.RiskScore)
			e.logger.Warn(ctx, "velocity check matched", logger.String("rule_id", rule.ID))
		}
	}
	if rule, ok := e.rules.VelocityRule(VelocityRuleMultiDevice); ok {
		if e.checkMultiDeviceLogin(ctx, event) {
			result.Triggered = append(result.Triggered, rule.ID)
			result.Scores = append(result.Scores, rule.RiskScore)
			e.logger.Warn(ctx, "velocity check matched", logger.String("rule_id", rule.ID))
		}
	}

	return result
}

// EvaluateRuleCombinations returns the score boost earned by meta-rules whose
// member rules all triggered. Only the single largest boost applies.
func (e *RuleEngine) EvaluateRuleCombinations(ctx context.Context, triggered []string) float64 {
	triggeredSet := make(map[string]struct{}, len(triggered))
	for _, id := range triggered {
		triggeredSet[id] = struct{}{}
	}

	boost := 0.0
	for _, combo := range e.rules.RuleCombinations {
		matched := true
		for _, required := range combo.TriggeredRules {
			if _, ok := triggeredSet[required]; !ok {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}

		if b := combo.BaseScore - 0.5; b > boost {
			boost = b
		}
		e.logger.Warn(ctx, "rule combination matched", logger.String("combo_id", combo.ID))
	}
	return boost
}

// matchRule reports whether every condition of the rule matches the event.
// A rule with no conditions matches everything.
func (e *RuleEngine) matchRule(ctx context.Context, event *models.Event, rule models.RuleDefinition) bool {
	for _, cond := range rule.Conditions {
		value, known := resolveField(event, cond.Field)
		if !known {
			// Unknown keys pass so a rule document written for a newer engine
			// does not silently disable a whole rule. Logged once per key.
			if _, seen := e.warnedFields.LoadOrStore(cond.Field, struct{}{}); !seen {
				e.logger.Warn(ctx, "unknown condition field, condition skipped",
					logger.String("field", cond.Field), logger.String("rule_id", rule.ID))
			}
			continue
		}
		if !matchCondition(cond, value) {
			return false
		}
	}
	return true
}

func matchCondition(cond models.Condition, value interface{}) bool {
	switch cond.Op {
	case models.OpEq:
		return fmt.Sprintf("%v", value) == fmt.Sprintf("%v", cond.Value)
	case models.OpIn:
		str := fmt.Sprintf("%v", value)
		for _, candidate := range cond.Values {
			if str == candidate {
				return true
			}
		}
		return false
	case models.OpGt:
		lhs, lok := toFloat(value)
		rhs, rok := toFloat(cond.Value)
		return lok && rok && lhs > rhs
	case models.OpLt:
		lhs, lok := toFloat(value)
		rhs, rok := toFloat(cond.Value)
		return lok && rok && lhs < rhs
	default:
		return false
	}
}

// resolveField maps a condition field name onto the event. The second return
// reports whether the name is recognized at all.
func resolveField(event *models.Event, field string) (interface{}, bool) {
	switch strings.ToLower(field) {
	case "event_type":
		return string(event.EventType), true
	case "country_code", "context.country_code":
		return event.Context.CountryCode, true
	case "amount", "context.amount":
		return event.Context.Amount, true
	case "hour", "context.hour":
		return event.Context.Hour, true
	case "new_device", "context.new_device":
		return event.Context.NewDevice, true
	case "new_ip", "context.new_ip":
		return event.Context.NewIP, true
	case "proxy_detected", "context.proxy_detected":
		return event.Context.ProxyDetected, true
	case "merchant_id", "context.merchant_id":
		return event.Context.MerchantID, true
	case "user_id", "actor.user_id":
		return event.Actor.UserID, true
	case "ip_address", "actor.ip_address":
		return event.Actor.IPAddress, true
	default:
		return nil, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// checkImpossibleTravel flags a login whose distance from the user's last
// cached location exceeds the configured limit. The location cache is updated
// regardless of outcome so the next comparison starts from here.
func (e *RuleEngine) checkImpossibleTravel(ctx context.Context, event *models.Event) bool {
	if event.EventType != constants.EventTypeLogin || !event.Context.HasGeo {
		return false
	}

	userID := event.Actor.UserID
	current := domainService.LastLocation{Lat: event.Context.GeoLat, Lon: event.Context.GeoLon}

	last, err := e.velocity.LastLocation(ctx, userID)
	if err != nil || last == nil {
		_ = e.velocity.SetLastLocation(ctx, userID, current)
		return false
	}

	distance := geo.HaversineMiles(last.Lat, last.Lon, current.Lat, current.Lon)
	_ = e.velocity.SetLastLocation(ctx, userID, current)

	if distance > e.engCfg.ImpossibleTravelMiles {
		e.logger.Warn(ctx, "impossible travel detected",
			logger.String("user_id", userID),
			logger.Float64("distance_miles", distance))
		return true
	}
	return false
}

// checkRapidTransactions flags a user exceeding the hourly transaction limit.
func (e *RuleEngine) checkRapidTransactions(ctx context.Context, event *models.Event) bool {
	if event.EventType != constants.EventTypeTransactionAttempted {
		return false
	}

	count, err := e.velocity.IncrementCounter(ctx, event.Actor.UserID, rapidTxnCounterName, constants.RapidTransactionWindow)
	if err != nil {
		return false
	}

	if count > e.engCfg.RapidTransactionLimit {
		e.logger.Warn(ctx, "rapid transactions detected",
			logger.String("user_id", event.Actor.UserID),
			logger.Int64("count", count))
		return true
	}
	return false
}

// checkMultiDeviceLogin flags logins from too many distinct unknown devices
// inside a short window. A device seen once is marked known and exempt from
// then on.
func (e *RuleEngine) checkMultiDeviceLogin(ctx context.Context, event *models.Event) bool {
	if event.EventType != constants.EventTypeLogin || event.Actor.DeviceFingerprint == "" {
		return false
	}

	userID := event.Actor.UserID
	fingerprint := event.Actor.DeviceFingerprint

	known, err := e.velocity.IsKnownDevice(ctx, userID, fingerprint)
	if err != nil || known {
		return false
	}

	devices, err := e.velocity.TrackUnknownDevice(ctx, userID, fingerprint, constants.MultiDeviceWindow)
	if err != nil {
		return false
	}

	if devices > e.engCfg.MultiDeviceLimit {
		e.logger.Warn(ctx, "multi-device login detected",
			logger.String("user_id", userID),
			logger.Int64("devices", devices))
		return true
	}

	_ = e.velocity.MarkDeviceKnown(ctx, userID, fingerprint)
	return false
}
