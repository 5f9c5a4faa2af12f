package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/rickgao/crypto-crawler/internal/config"
	"github.com/rickgao/crypto-crawler/internal/model"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes events to a Kafka topic.
//
// The underlying writer is created on first use and reused across batches.
type KafkaPublisher struct {
	cfg       config.PublisherConfig
	logger    *slog.Logger
	newWriter func(config.PublisherConfig) messageWriter

	mu     sync.Mutex
	writer messageWriter
	closed bool
}

// NewKafkaPublisher creates a publisher for cfg.Brokers and cfg.Topic.
func NewKafkaPublisher(cfg config.PublisherConfig, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		cfg:       cfg,
		logger:    logger,
		newWriter: newKafkaWriter,
	}
}

func newKafkaWriter(cfg config.PublisherConfig) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// Publish sends all events in one write. An empty batch is a no-op.
func (p *KafkaPublisher) Publish(ctx context.Context, events []model.PublishedEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.Symbol, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Symbol),
			Value: value,
		})
	}

	w, err := p.connect()
	if err != nil {
		return err
	}

	if err := w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), p.cfg.Topic, err)
	}

	p.logger.Debug("published events", "topic", p.cfg.Topic, "count", len(msgs))
	return nil
}

// connect returns the shared writer, creating it if needed.
func (p *KafkaPublisher) connect() (messageWriter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.writer == nil {
		p.writer = p.newWriter(p.cfg)
		p.logger.Info("kafka writer created", "brokers", p.cfg.Brokers, "topic", p.cfg.Topic)
	}
	return p.writer, nil
}

// Close flushes and closes the writer. Safe to call more than once.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
