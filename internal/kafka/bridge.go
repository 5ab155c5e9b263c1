// Package kafka bridges the platform's event stream into the detection
// pipeline and publishes decided moderation actions back out.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"modsentry/internal/config"
	"modsentry/internal/queue"
	"modsentry/internal/schema"
)

// EventConsumer reads platform events from Kafka and pushes valid ones
// into the ring buffer.
type EventConsumer struct {
	reader    *kafkago.Reader
	buffer    *queue.RingBuffer
	validator *schema.Validator
	logger    *slog.Logger

	consumed atomic.Uint64
	invalid  atomic.Uint64
}

// NewEventConsumer creates a consumer in the configured group.
func NewEventConsumer(cfg config.KafkaConfig, buffer *queue.RingBuffer, validator *schema.Validator, logger *slog.Logger) *EventConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.EventsTopic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
	})
	return &EventConsumer{
		reader:    reader,
		buffer:    buffer,
		validator: validator,
		logger:    logger,
	}
}

// Run consumes until the context is canceled. Malformed or invalid events
// are counted and skipped; the stream position always advances.
func (c *EventConsumer) Run(ctx context.Context) error {
	c.logger.Info("kafka event consumer started", "topic", c.reader.Config().Topic)

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("kafka: read: %w", err)
		}

		var event schema.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.invalid.Add(1)
			c.logger.Warn("dropping malformed event",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err)
			continue
		}
		event.ReceivedAt = time.Now().UTC()

		if err := c.validator.Validate(&event); err != nil {
			c.invalid.Add(1)
			c.logger.Warn("dropping invalid event",
				"event_id", event.EventID,
				"error", err)
			continue
		}

		if err := c.buffer.Push(&event); err != nil {
			return fmt.Errorf("kafka: buffer closed: %w", err)
		}
		c.consumed.Add(1)
	}
}

// Close releases the underlying reader.
func (c *EventConsumer) Close() error {
	return c.reader.Close()
}

// Stats returns consumer counters.
func (c *EventConsumer) Stats() (consumed, invalid uint64) {
	return c.consumed.Load(), c.invalid.Load()
}

// ActionProducer publishes decided moderation actions, keyed by subject so
// downstream consumers see per-subject ordering.
type ActionProducer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewActionProducer creates a producer for the actions topic.
func NewActionProducer(cfg config.KafkaConfig, logger *slog.Logger) *ActionProducer {
	if logger == nil {
		logger = slog.Default()
	}
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.ActionsTopic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafkago.RequireOne,
		Compression:  kafkago.Lz4,
	}
	return &ActionProducer{writer: writer, logger: logger}
}

// Publish emits one action record.
func (p *ActionProducer) Publish(ctx context.Context, rec *schema.ActionRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kafka: marshal action: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(rec.CommunityID + ":" + rec.SubjectID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("kafka: publish action: %w", err)
	}
	return nil
}

// Close flushes and releases the writer.
func (p *ActionProducer) Close() error {
	return p.writer.Close()
}
