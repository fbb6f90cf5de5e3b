package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"clearance-svc/models"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap/zaptest"
)

func TestPublisher_PublishPaymentEvent(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	defer mp.Close()

	event := models.PaymentEvent{
		EventID:    "evt-001",
		ShipmentID: 42,
		Tracking:   "PCL-2024-0042",
		Amount:     170000,
		Status:     "completed",
		EventType:  "payment_completed",
		Method:     "stripe",
		Reference:  "pi_abc123",
	}

	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "payment_events" {
			return fmt.Errorf("expected topic payment_events, got %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != event.EventID {
			return fmt.Errorf("expected key %s, got %s", event.EventID, key)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded models.PaymentEvent
		if err := json.Unmarshal(value, &decoded); err != nil {
			return fmt.Errorf("message value is not a payment event: %w", err)
		}
		if decoded.ShipmentID != 42 || decoded.EventType != "payment_completed" {
			return fmt.Errorf("unexpected event payload: %+v", decoded)
		}
		return nil
	})

	publisher := NewPublisher(mp, zaptest.NewLogger(t))
	if err := publisher.PublishPaymentEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishPaymentEvent returned error: %v", err)
	}
}

func TestPublisher_PublishPaymentEvent_SendFailure(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	defer mp.Close()
	mp.ExpectSendMessageAndFail(sarama.ErrBrokerNotAvailable)

	publisher := NewPublisher(mp, zaptest.NewLogger(t))
	err := publisher.PublishPaymentEvent(context.Background(), models.PaymentEvent{EventID: "evt-002"})
	if err == nil {
		t.Fatal("expected error when broker rejects the message")
	}
}
