package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Alias1177/SignalScanner/models"
)

// MessageWriter is the part of *kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds the Kafka writer settings
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks int
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

type ProducerOption func(*ProducerConfig)

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

func WithTopic(topic string) ProducerOption {
	return func(c *ProducerConfig) { c.Topic = topic }
}

func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.WriteTimeout = d }
}

// Publisher writes lifecycle events to a Kafka topic keyed by symbol, so
// all events of one symbol land on the same partition in order.
type Publisher struct {
	writer MessageWriter
	topic  string
}

// NewPublisher creates a publisher backed by a kafka.Writer
func NewPublisher(opts ...ProducerOption) (*Publisher, error) {
	cfg := &ProducerConfig{
		Topic:        "prediction-events",
		RequiredAcks: -1,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:            cfg.MaxAttempts,
		WriteTimeout:           cfg.WriteTimeout,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(writer, cfg.Topic), nil
}

func NewPublisherWithWriter(w MessageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

// Envelope is the JSON payload of every event message
type Envelope struct {
	Type       models.EventType   `json:"type"`
	At         time.Time          `json:"at"`
	Prediction *models.Prediction `json:"prediction,omitempty"`
	Outcome    *models.Outcome    `json:"outcome,omitempty"`
}

// Notify publishes the event
func (p *Publisher) Notify(ctx context.Context, event models.LifecycleEvent) error {
	value, err := json.Marshal(Envelope{
		Type:       event.Type,
		At:         event.At,
		Prediction: event.Prediction,
		Outcome:    event.Outcome,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var key []byte
	if event.Prediction != nil {
		key = []byte(event.Prediction.Key())
	}

	msg := kafka.Message{
		Key:   key,
		Value: value,
		Time:  event.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ models.Notifier = (*Publisher)(nil)
