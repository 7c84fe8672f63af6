package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/logger"
)

const DefaultActivityTopic = "rental.order.activity"

// ActivityPublisher fans activity log entries out to collaborators outside the engine.
type ActivityPublisher interface {
	// Publish sends entries in order and returns how many were acknowledged before the first failure.
	Publish(ctx context.Context, entries []domain.ActivityLogEntry) (int, error)
	Close() error
}

// ActivityEvent is the message body on the activity topic.
type ActivityEvent struct {
	EntryID    int64                  `json:"entry_id"`
	OrderID    string                 `json:"order_id"`
	Action     domain.Action          `json:"action"`
	ActorID    *string                `json:"actor_id"`
	FromStatus domain.OrderStatus     `json:"from_status"`
	ToStatus   domain.OrderStatus     `json:"to_status"`
	Details    domain.ActivityDetails `json:"details"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func NewActivityEvent(e domain.ActivityLogEntry) ActivityEvent {
	return ActivityEvent{
		EntryID:    e.ID,
		OrderID:    e.OrderID,
		Action:     e.Action,
		ActorID:    e.ActorID,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		Details:    e.Details,
		OccurredAt: e.CreatedAt,
	}
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducerConfig returns the producer settings the relay depends on: every send waits for
// all in-sync replicas and one partition per order keeps entries ordered.
func NewProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

// NewKafkaPublisher dials the brokers. Callers decide whether a failure is fatal.
func NewKafkaPublisher(brokers []string, topic, clientID string) (*KafkaPublisher, error) {
	logger.ExternalServiceCall("kafka", "NewSyncProducer", "brokers", brokers)
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig(clientID))
	logger.ExternalServiceResult("kafka", "NewSyncProducer", err)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topic), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultActivityTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, entries []domain.ActivityLogEntry) (int, error) {
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		data, err := json.Marshal(NewActivityEvent(e))
		if err != nil {
			return i, fmt.Errorf("marshal activity entry %d: %w", e.ID, err)
		}
		msg := &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(e.OrderID),
			Value: sarama.ByteEncoder(data),
			Headers: []sarama.RecordHeader{
				{Key: []byte("action"), Value: []byte(e.Action)},
			},
		}
		partition, offset, err := p.producer.SendMessage(msg)
		if err != nil {
			logger.ExternalServiceResult("kafka", "SendMessage", err, "entry_id", e.ID, "order_id", e.OrderID)
			return i, fmt.Errorf("publish activity entry %d: %w", e.ID, err)
		}
		logger.Debug("Published activity entry", "entry_id", e.ID, "order_id", e.OrderID,
			"partition", partition, "offset", offset)
	}
	return len(entries), nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
