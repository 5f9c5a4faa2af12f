package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rickgao/crypto-crawler/internal/config"
	"github.com/rickgao/crypto-crawler/internal/metrics"
	"github.com/rickgao/crypto-crawler/internal/model"
)

// Source yields topic messages. *kafka.Reader satisfies it.
type Source interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// NewKafkaSource creates a consumer-group reader for cfg.
func NewKafkaSource(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

// Bridge moves validated topic events onto a hub destination.
type Bridge struct {
	src     Source
	hub     *Hub
	dest    string
	metrics Recorder
	logger  *slog.Logger
	backoff time.Duration
}

// NewBridge creates a bridge broadcasting src's events to dest on hub.
func NewBridge(src Source, hub *Hub, dest string, rec Recorder, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Bridge{
		src:     src,
		hub:     hub,
		dest:    dest,
		metrics: rec,
		logger:  logger,
		backoff: time.Second,
	}
}

// Run consumes until ctx is canceled or the source is closed. Read errors
// are logged and retried after a pause.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		msg, err := b.src.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("source closed: %w", err)
			}
			b.logger.Warn("failed to read topic message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.backoff):
			}
			continue
		}

		if _, err := ValidateEvent(msg.Value); err != nil {
			b.metrics.IncEvent(metrics.EventInvalid)
			b.logger.Warn("skipping invalid event",
				"key", string(msg.Key),
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}

		if err := b.hub.Broadcast(b.dest, msg.Value); err != nil {
			return fmt.Errorf("broadcast to %s: %w", b.dest, err)
		}
		b.metrics.IncEvent(metrics.EventBroadcast)
	}
}

// ValidateEvent checks that data is a JSON object with the event's fields
// and nothing else.
func ValidateEvent(data []byte) (model.PublishedEvent, error) {
	var ev model.PublishedEvent

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ev, errors.New("event is not a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	if _, ok := fields["cryptocurrency_id"]; !ok {
		return ev, errors.New("event has no cryptocurrency_id")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
