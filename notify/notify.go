package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"clearance-svc/kafka"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminNotification is what the back office sees in its notification feed.
// Delivery (the consumer on the other side of the topic) belongs to another
// service.
type AdminNotification struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Severity string `json:"severity"` // success, info, warning
	Category string `json:"category"`
	EntityID int    `json:"entity_id"`
}

type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, title, body, severity, category string, entityID int) error
}

type kafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaNotifier(producer sarama.SyncProducer, logger *zap.Logger) AdminNotifier {
	topic := os.Getenv("ADMIN_NOTIFICATIONS_TOPIC")
	if topic == "" {
		topic = "admin_notifications"
	}
	return &kafkaNotifier{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (n *kafkaNotifier) NotifyAdmin(ctx context.Context, title, body, severity, category string, entityID int) error {
	notification := AdminNotification{
		ID:       uuid.NewString(),
		Title:    title,
		Body:     body,
		Severity: severity,
		Category: category,
		EntityID: entityID,
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(notification.ID),
		Value: sarama.StringEncoder(payload),
	}

	kafka.InjectTraceContext(ctx, msg)

	if _, _, err := n.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Info("Admin notified",
		zap.String("notification_id", notification.ID),
		zap.String("title", title),
		zap.String("severity", severity),
	)
	return nil
}
