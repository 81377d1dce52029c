// Package kafka publishes stream events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/deltas/pkg/eventstream"
	"github.com/papercomputeco/deltas/pkg/logger"
)

// ErrNoBrokers is returned when a publisher is configured without brokers.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// Config configures a Publisher.
type Config struct {
	Brokers []string
	Topic   string
	Logger  *slog.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes events as JSON messages. Chunk events are keyed by stream
// id so every chunk of one stream lands on the same partition in order.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Publisher writing to cfg.Topic.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: no topic configured")
	}

	// Async writes keep the chunk pull loop from waiting on a batch flush.
	// Delivery failures are reported through Completion instead of
	// WriteMessages, and Close flushes whatever is still buffered.
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Async:                  true,
	}
	p := newPublisher(w, cfg.Topic, cfg.Logger)
	w.Completion = p.completed
	return p, nil
}

// completed is the async delivery callback of the writer.
func (p *Publisher) completed(msgs []kafkago.Message, err error) {
	if err == nil {
		p.logger.Debug("delivered events", "count", len(msgs))
		return
	}
	for _, msg := range msgs {
		p.logger.Warn("failed to deliver event",
			"event_type", eventTypeOf(msg),
			"key", string(msg.Key),
			"error", err,
		)
	}
}

func eventTypeOf(msg kafkago.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}

func newPublisher(w messageWriter, topic string, log *slog.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: log.With("component", "kafka", "topic", topic),
	}
}

// PublishChunk writes one chunk event.
func (p *Publisher) PublishChunk(ctx context.Context, event *eventstream.ChunkEvent) error {
	if event == nil {
		return eventstream.ErrNilChunkEvent
	}
	return p.write(ctx, event.StreamID, event.EventType, event)
}

// PublishTranscript writes one transcript event.
func (p *Publisher) PublishTranscript(ctx context.Context, event *eventstream.TranscriptEvent) error {
	if event == nil {
		return eventstream.ErrNilTranscriptEvent
	}
	key := ""
	if event.Transcript != nil {
		key = event.Transcript.ID
	}
	return p.write(ctx, key, event.EventType, event)
}

func (p *Publisher) write(ctx context.Context, key, eventType string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("failed to publish event", "event_type", eventType, "key", key, "error", err)
		return fmt.Errorf("publishing %s event: %w", eventType, err)
	}

	p.logger.Debug("queued event", "event_type", eventType, "key", key, "bytes", len(value))
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
