package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/rickgao/crypto-crawler/internal/config"
	"github.com/rickgao/crypto-crawler/internal/model"
)

// Publisher sends a batch of events downstream.
type Publisher interface {
	Publish(ctx context.Context, events []model.PublishedEvent) error
	Close() error
}

// New builds the publisher selected by cfg.Kind.
func New(cfg config.PublisherConfig, logger *slog.Logger) (Publisher, error) {
	switch cfg.Kind {
	case config.PublisherKafka:
		return NewKafkaPublisher(cfg, logger), nil
	case config.PublisherStdout:
		return NewStdoutPublisher(os.Stdout), nil
	case config.PublisherNone, "":
		return NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown publisher kind %q", cfg.Kind)
	}
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, []model.PublishedEvent) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// StdoutPublisher writes one JSON line per event.
type StdoutPublisher struct {
	mu  sync.Mutex
	out io.Writer
}

// NewStdoutPublisher creates a publisher writing to out.
func NewStdoutPublisher(out io.Writer) *StdoutPublisher {
	return &StdoutPublisher{out: out}
}

// Publish implements Publisher.
func (p *StdoutPublisher) Publish(ctx context.Context, events []model.PublishedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	enc := json.NewEncoder(p.out)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode event %s: %w", e.Symbol, err)
		}
	}
	return nil
}

// Close implements Publisher.
func (p *StdoutPublisher) Close() error { return nil }
