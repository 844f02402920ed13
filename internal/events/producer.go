package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

const (
	TypePaymentCaptured   = "payment.captured"
	TypePaymentAuthorized = "payment.authorized"
	TypePaymentFailed     = "payment.failed"
)

// PaymentEvent is published on every terminal payment transition.
type PaymentEvent struct {
	Type          string `json:"type"`
	EventID       string `json:"event_id"`
	OrderID       string `json:"order_id"`
	RemoteOrderID string `json:"remote_order_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        string `json:"amount,omitempty"`
	Currency      string `json:"currency,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// Producer publishes payment events to Kafka. A nil Producer is valid and
// publishes nothing, so event emission stays best-effort for callers.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return &Producer{producer: producer, topic: topic}, nil
}

// Publish sends the event, filling in event id and timestamp. Failures are
// logged, not returned; a lost event must never fail the payment it reports.
func (p *Producer) Publish(event PaymentEvent) {
	if p == nil || p.producer == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.OccurredAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal payment event", "type", event.Type, "error", err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		slog.Warn("failed to publish payment event",
			"type", event.Type, "order_id", event.OrderID, "error", err)
	}
}

func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
