package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sentineliq/riskd/pkg/constants"
)

// Metrics manages the Prometheus metrics of the decision pipeline.
type Metrics struct {
	DecisionsTotal    *prometheus.CounterVec
	DecisionLatency   *prometheus.HistogramVec
	IdempotencyChecks *prometheus.CounterVec
	DegradedChecks    *prometheus.CounterVec
	LedgerAppends     *prometheus.CounterVec
	LedgerChainLength prometheus.Gauge
}

// NewMetrics creates and registers the Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskd_decisions_total",
				Help: "Total number of risk decisions, by event type, action and risk level.",
			},
			[]string{"event_type", "action", "risk_level"},
		),
		DecisionLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskd_decision_latency_seconds",
				Help:    "End-to-end latency of event evaluation.",
				Buckets: []float64{.005, .01, .025, .05, .1, .2, .5, 1, 2.5},
			},
			[]string{"event_type"},
		),
		IdempotencyChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskd_idempotency_checks_total",
				Help: "Total number of idempotency checks, by resulting status.",
			},
			[]string{"status"},
		),
		DegradedChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskd_degraded_checks_total",
				Help: "Total number of detector checks that failed open, by subsystem.",
			},
			[]string{"subsystem"},
		),
		LedgerAppends: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskd_ledger_appends_total",
				Help: "Total number of audit ledger append attempts, by result.",
			},
			[]string{"result"},
		),
		LedgerChainLength: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "riskd_ledger_chain_length",
				Help: "Current sequence number at the head of the audit ledger.",
			},
		),
	}
}

// RecordDecision records metrics for a finished evaluation.
func (m *Metrics) RecordDecision(eventType constants.EventType, action constants.Action, level constants.RiskLevel, duration time.Duration) {
	m.DecisionsTotal.WithLabelValues(string(eventType), string(action), string(level)).Inc()
	m.DecisionLatency.WithLabelValues(string(eventType)).Observe(duration.Seconds())
}

// RecordIdempotencyCheck records the outcome of one idempotency check.
func (m *Metrics) RecordIdempotencyCheck(status constants.IdempotencyStatus) {
	m.IdempotencyChecks.WithLabelValues(string(status)).Inc()
}

// RecordDegradedCheck records a detector that fell back to its fail-open path.
func (m *Metrics) RecordDegradedCheck(subsystem string) {
	m.DegradedChecks.WithLabelValues(subsystem).Inc()
}

// RecordLedgerAppend records a ledger write and the new chain head.
func (m *Metrics) RecordLedgerAppend(result string, sequence uint64) {
	m.LedgerAppends.WithLabelValues(result).Inc()
	if result == "success" {
		m.LedgerChainLength.Set(float64(sequence))
	}
}
