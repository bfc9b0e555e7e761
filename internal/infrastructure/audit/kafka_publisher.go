// Package audit streams finalized decisions to downstream consumers over
// Kafka. Publishing is best-effort and sits off the decision critical path.
package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/domain/models"
	"github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/pkg/logger"
)

// KafkaDecisionPublisher is a Kafka-backed implementation of the
// DecisionPublisher interface. Messages are keyed by user so a consumer sees
// one user's decisions in order.
type KafkaDecisionPublisher struct {
	writer *kafka.Writer
	logger logger.Logger
}

// NewKafkaDecisionPublisher creates a new KafkaDecisionPublisher.
func NewKafkaDecisionPublisher(cfg config.KafkaConfig, log logger.Logger) service.DecisionPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.DecisionTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
	}
	return &KafkaDecisionPublisher{
		writer: writer,
		logger: log.WithComponent("decision_publisher"),
	}
}

// Publish emits the decision to the stream. Failures are logged and swallowed;
// the ledger, not the stream, is the durable record.
func (p *KafkaDecisionPublisher) Publish(ctx context.Context, decision *models.RiskScore) {
	bytes, err := json.Marshal(decision)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal decision", err,
			logger.String("event_id", decision.EventID))
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(decision.UserID),
		Value: bytes,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to publish decision", err,
			logger.String("event_id", decision.EventID))
	}
}

// Close closes the underlying Kafka writer.
func (p *KafkaDecisionPublisher) Close() error {
	return p.writer.Close()
}

// NoopDecisionPublisher discards decisions. Used when no stream is configured.
type NoopDecisionPublisher struct{}

// NewNoopDecisionPublisher creates a publisher that does nothing.
func NewNoopDecisionPublisher() service.DecisionPublisher {
	return &NoopDecisionPublisher{}
}

// Publish discards the decision.
func (p *NoopDecisionPublisher) Publish(ctx context.Context, decision *models.RiskScore) {}

// Close is a no-op.
func (p *NoopDecisionPublisher) Close() error { return nil }
