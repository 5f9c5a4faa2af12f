package relay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanSource serves messages from a channel and returns io.EOF once it is
// closed and empty.
type chanSource struct {
	msgs chan kafka.Message
	errs chan error
}

func newChanSource() *chanSource {
	return &chanSource{msgs: make(chan kafka.Message, 16), errs: make(chan error, 4)}
}

func (c *chanSource) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case err := <-c.errs:
		return kafka.Message{}, err
	default:
	}
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m, ok := <-c.msgs:
		if !ok {
			return kafka.Message{}, io.EOF
		}
		return m, nil
	}
}

func (c *chanSource) Close() error { return nil }

const validEvent = `{"cryptocurrency_id":1,"avg_price":60000,"avg_market_cap":1.2e12,"avg_market_cap_rank":1,
	"avg_total_volume":3e10,"avg_high_24h":61000,"avg_low_24h":59000,"avg_price_change_pct":1.2,
	"avg_market_cap_change_pct":0.8}`

func TestValidateEvent(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{name: "full event", data: validEvent},
		{name: "minimal", data: `{"cryptocurrency_id":0}`},
		{name: "null", data: `null`, wantErr: true},
		{name: "array", data: `[1,2]`, wantErr: true},
		{name: "empty", data: ``, wantErr: true},
		{name: "garbage", data: `{"cryptocurrency_id":`, wantErr: true},
		{name: "missing id", data: `{"avg_price":1}`, wantErr: true},
		{name: "unknown field", data: `{"cryptocurrency_id":1,"price":2}`, wantErr: true},
		{name: "wrong type", data: `{"cryptocurrency_id":"one"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateEvent([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBridge_BroadcastsValidEvents(t *testing.T) {
	src := newChanSource()
	rec := &countingRecorder{}
	h := NewHub([]string{testDest}, 10, nil, nil)
	b := NewBridge(src, h, testDest, rec, nil)

	src.msgs <- kafka.Message{Key: []byte("BTC"), Value: []byte(validEvent)}
	src.msgs <- kafka.Message{Key: []byte("ETH"), Value: []byte(`not json`)}
	src.msgs <- kafka.Message{Key: []byte("SOL"), Value: []byte(`{"cryptocurrency_id":3}`)}
	close(src.msgs)

	err := b.Run(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	hist := h.History(testDest)
	require.Len(t, hist, 2)
	assert.JSONEq(t, `{"cryptocurrency_id":3}`, string(hist[0]))
	assert.Equal(t, 2, rec.events["broadcast"])
	assert.Equal(t, 1, rec.events["invalid"])
}

func TestBridge_RetriesReadErrors(t *testing.T) {
	src := newChanSource()
	h := NewHub([]string{testDest}, 10, nil, nil)
	b := NewBridge(src, h, testDest, nil, nil)
	b.backoff = time.Millisecond

	src.errs <- errors.New("coordinator not available")
	src.msgs <- kafka.Message{Value: []byte(validEvent)}
	close(src.msgs)

	assert.ErrorIs(t, b.Run(context.Background()), io.EOF)
	assert.Len(t, h.History(testDest), 1)
}

func TestBridge_StopsOnCancel(t *testing.T) {
	src := newChanSource()
	h := NewHub([]string{testDest}, 10, nil, nil)
	b := NewBridge(src, h, testDest, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop")
	}
}
