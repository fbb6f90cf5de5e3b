package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"clearance-svc/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func InitProducer(logger *zap.Logger) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	brokers := []string{getEnv("KAFKA_BROKER", "localhost:9092")}

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized")
	return producer, nil
}

// Publisher emits payment lifecycle events to a single topic resolved once
// at construction, keyed by event ID so replays land on the same partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewPublisher(producer sarama.SyncProducer, logger *zap.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    getEnv("PAYMENT_EVENTS_TOPIC", "payment_events"),
		logger:   logger,
	}
}

func (p *Publisher) PublishPaymentEvent(ctx context.Context, event models.PaymentEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.EventID),
		Value: sarama.StringEncoder(eventJSON),
	}
	InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Info("Payment event published",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.Int("shipment_id", event.ShipmentID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

// InjectTraceContext copies the current trace context into the message
// headers so consumers join the producing request's trace.
func InjectTraceContext(ctx context.Context, msg *sarama.ProducerMessage) {
	carrier := make(headerCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	msg.Headers = append(msg.Headers, []sarama.RecordHeader(carrier)...)
}

// headerCarrier implements the TextMapCarrier interface for Kafka headers
type headerCarrier []sarama.RecordHeader

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{
		Key:   []byte(key),
		Value: []byte(value),
	})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
