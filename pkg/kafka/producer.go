// Package kafka wraps a franz-go client for the fire-and-confirm publishing
// the services need.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"econova/pkg/logging"
)

const defaultProduceTimeout = 10 * time.Second

// Message is one record to publish.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// ProducerConfig configures NewProducer.
type ProducerConfig struct {
	Brokers  []string
	ClientID string
	// Timeout bounds each produce call when the caller's context has no deadline.
	Timeout time.Duration
}

// Producer publishes records synchronously.
type Producer struct {
	client  *kgo.Client
	logger  logging.Logger
	timeout time.Duration
}

// NewProducer creates a producer. The client connects lazily.
func NewProducer(cfg ProducerConfig, logger logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "econova"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProduceTimeout
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.RecordDeliveryTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{client: client, logger: logger, timeout: timeout}, nil
}

func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

// Client returns the underlying kgo.Client for health checks.
func (p *Producer) Client() *kgo.Client {
	return p.client
}

// Produce publishes a single message and waits for the broker ack.
func (p *Producer) Produce(ctx context.Context, msg Message) error {
	return p.ProduceBatch(ctx, []Message{msg})
}

// ProduceBatch publishes all messages and waits for every ack. The first
// failure is returned; records that did succeed are not rolled back.
func (p *Producer) ProduceBatch(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Topic == "" {
			return errors.New("kafka message topic is required")
		}
		records = append(records, toRecord(msg))
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	results := p.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		if p.logger != nil {
			p.logger.WithError(err).WithField("records", len(records)).Warn("Kafka produce failed")
		}
		return fmt.Errorf("failed to produce %d records: %w", len(records), err)
	}
	return nil
}

// HealthCheck pings the seed brokers.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// toRecord converts msg, ordering headers by key so output is deterministic.
func toRecord(msg Message) *kgo.Record {
	record := &kgo.Record{
		Topic: msg.Topic,
		Key:   msg.Key,
		Value: msg.Value,
	}
	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(msg.Headers[k])})
	}
	return record
}
