package metering

import (
	"context"
	"encoding/json"
	"fmt"

	"econova/pkg/kafka"
	"econova/pkg/logging"
)

// SummaryPublisher delivers usage summaries to billing.
type SummaryPublisher interface {
	PublishUsageSummary(ctx context.Context, summary Summary) error
}

// MessageProducer is the part of kafka.Producer the publisher needs.
type MessageProducer interface {
	Produce(ctx context.Context, msg kafka.Message) error
}

type KafkaPublisher struct {
	producer MessageProducer
	topic    string
	logger   logging.Logger
}

func NewKafkaPublisher(producer MessageProducer, topic string, logger logging.Logger) *KafkaPublisher {
	if topic == "" {
		topic = "billing.usage_reports"
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) PublishUsageSummary(ctx context.Context, summary Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal nova usage summary: %w", err)
	}
	err = p.producer.Produce(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(summary.TenantID),
		Value: payload,
		Headers: map[string]string{
			"source":    summary.Source,
			"type":      "usage_summary",
			"tenant_id": summary.TenantID,
		},
	})
	if err != nil {
		return err
	}
	p.logger.WithFields(logging.Fields{
		"tenant_id": summary.TenantID,
		"topic":     p.topic,
		"requests":  summary.Requests,
	}).Info("Published Nova usage summary to billing")
	return nil
}
