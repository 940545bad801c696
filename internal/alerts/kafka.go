package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/provider/resilience"
)

// KafkaConfig holds configuration for the Kafka publisher.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string

	// Timeout bounds a single produce request.
	// Default: 5 seconds
	Timeout time.Duration

	Logger   zerolog.Logger
	Registry *resilience.Registry
}

// KafkaPublisher writes alerts as JSON to a Kafka topic.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	exec     *resilience.Executor[int64]
	logger   zerolog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher connects a synchronous producer to the configured brokers.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Producer.Timeout = cfg.Timeout
	// Retries are handled by the resilience executor.
	saramaConfig.Producer.Retry.Max = 0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(producer, cfg), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, cfg KafkaConfig) *KafkaPublisher {
	execCfg := resilience.DefaultExecutorConfig("kafka-alerts")
	execCfg.Registry = cfg.Registry
	if cfg.Timeout > 0 {
		execCfg.Timeout = cfg.Timeout
	}

	return &KafkaPublisher{
		producer: producer,
		topic:    cfg.Topic,
		exec:     resilience.NewExecutor[int64](execCfg),
		logger:   cfg.Logger.With().Str("component", "kafka_alerts").Str("topic", cfg.Topic).Logger(),
	}
}

// Publish sends the alert keyed by vehicle or route so alerts for the same
// vehicle stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(alert.Key()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(alert.Kind)},
		},
	}

	offset, err := p.exec.Execute(ctx, func(context.Context) (int64, error) {
		_, offset, err := p.producer.SendMessage(msg)
		return offset, err
	})
	if err != nil {
		return fmt.Errorf("publish alert %s: %w", alert.ID, err)
	}

	p.logger.Debug().
		Str("alert_id", alert.ID).
		Str("kind", string(alert.Kind)).
		Int64("offset", offset).
		Msg("alert published")
	return nil
}

// Close closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
