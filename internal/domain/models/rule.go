package models

// ConditionOp enumerates the recognized condition operators.
type ConditionOp string

const (
	// OpEq matches when the event field equals the condition value
	OpEq ConditionOp = "eq"

	// OpIn matches when the event field is a member of the condition values
	OpIn ConditionOp = "in"

	// OpGt matches when the numeric event field exceeds the condition value
	OpGt ConditionOp = "gt"

	// OpLt matches when the numeric event field is below the condition value
	OpLt ConditionOp = "lt"
)

// Condition is a single declarative predicate evaluated against an event field.
type Condition struct {
	Field  string      `json:"field" mapstructure:"field"`
	Op     ConditionOp `json:"op" mapstructure:"op"`
	Value  interface{} `json:"value,omitempty" mapstructure:"value"`
	Values []string    `json:"values,omitempty" mapstructure:"values"`
}

// RuleDefinition is a declaratively configured rule. A rule matches an event
// when every one of its conditions matches.
type RuleDefinition struct {
	ID         string      `json:"id" mapstructure:"id"`
	Name       string      `json:"name" mapstructure:"name"`
	Enabled    bool        `json:"enabled" mapstructure:"enabled"`
	RiskScore  float64     `json:"risk_score" mapstructure:"risk_score"`
	Conditions []Condition `json:"conditions" mapstructure:"conditions"`
}

// RuleCombination is a meta-rule: when every rule ID it names has triggered,
// it contributes a score boost of max(0, BaseScore-0.5).
type RuleCombination struct {
	ID             string   `json:"id" mapstructure:"id"`
	Name           string   `json:"name" mapstructure:"name"`
	TriggeredRules []string `json:"triggered_rules" mapstructure:"triggered_rules"`
	BaseScore      float64  `json:"base_score" mapstructure:"base_score"`
}

// Thresholds are the ordered score boundaries for the risk-level mapping.
// Each boundary is lower-inclusive for the band above it.
type Thresholds struct {
	Review    float64 `json:"review" mapstructure:"review"`
	Challenge float64 `json:"challenge" mapstructure:"challenge"`
	Block     float64 `json:"block" mapstructure:"block"`
}

// Monotonic reports whether the thresholds are strictly increasing within (0,1].
func (t Thresholds) Monotonic() bool {
	return t.Review > 0 && t.Review < t.Challenge && t.Challenge < t.Block && t.Block <= 1
}

// RuleSet is the full declarative rule document loaded once at engine start.
// Read-only during evaluation.
type RuleSet struct {
	HardRules        []RuleDefinition  `json:"hard_rules" mapstructure:"hard_rules"`
	VelocityChecks   []RuleDefinition  `json:"velocity_checks" mapstructure:"velocity_checks"`
	BehavioralRules  []RuleDefinition  `json:"behavioral_rules" mapstructure:"behavioral_rules"`
	RuleCombinations []RuleCombination `json:"rule_combinations" mapstructure:"rule_combinations"`
	Thresholds       Thresholds        `json:"thresholds" mapstructure:"thresholds"`
}

// VelocityRule finds a velocity check definition by ID, honoring its enabled flag.
func (rs *RuleSet) VelocityRule(id string) (RuleDefinition, bool) {
	for _, r := range rs.VelocityChecks {
		if r.ID == id && r.Enabled {
			return r, true
		}
	}
	return RuleDefinition{}, false
}
