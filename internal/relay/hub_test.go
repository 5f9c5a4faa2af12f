package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDest = "/topic/crypto"

type countingRecorder struct {
	mu          sync.Mutex
	subscribers int
	events      map[string]int
}

func (c *countingRecorder) SetSubscribers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = n
}

func (c *countingRecorder) IncEvent(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		c.events = map[string]int{}
	}
	c.events[result]++
}

// bufferPeer is a peer with no connection, for driving the hub directly.
func bufferPeer(size int) *peer {
	return &peer{
		id:     fmt.Sprintf("peer-%d", size),
		logger: slog.Default(),
		send:   make(chan []byte, size),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		subs:   make(map[string]*subscription),
	}
}

func drain(p *peer) []Frame {
	var out []Frame
	for {
		select {
		case data := <-p.send:
			var f Frame
			if err := json.Unmarshal(data, &f); err == nil {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}

func event(id int) []byte {
	return []byte(fmt.Sprintf(`{"cryptocurrency_id":%d}`, id))
}

func TestHub_HistoryNewestFirstAndBounded(t *testing.T) {
	h := NewHub([]string{testDest}, 3, nil, nil)
	for i := 1; i <= 5; i++ {
		require.NoError(t, h.Broadcast(testDest, event(i)))
	}

	hist := h.History(testDest)
	require.Len(t, hist, 3)
	assert.JSONEq(t, string(event(5)), string(hist[0]))
	assert.JSONEq(t, string(event(3)), string(hist[2]))
}

func TestHub_SubscribeReplaysHistoryAfterReceipt(t *testing.T) {
	h := NewHub([]string{testDest}, 100, nil, nil)
	require.NoError(t, h.Broadcast(testDest, event(1)))
	require.NoError(t, h.Broadcast(testDest, event(2)))

	p := bufferPeer(16)
	h.register(p)
	require.NoError(t, h.subscribe(p, "sub-0", testDest, encodeFrame(Frame{Command: CmdReceipt, ID: "sub-0"})))
	require.NoError(t, h.Broadcast(testDest, event(3)))

	frames := drain(p)
	require.Len(t, frames, 4)
	assert.Equal(t, CmdReceipt, frames[0].Command)

	assert.Equal(t, CmdMessage, frames[1].Command)
	assert.True(t, frames[1].Replay)
	assert.JSONEq(t, string(event(2)), string(frames[1].Body))
	assert.JSONEq(t, string(event(1)), string(frames[2].Body))

	assert.False(t, frames[3].Replay)
	assert.Equal(t, "sub-0", frames[3].Subscription)
	assert.Equal(t, testDest, frames[3].Destination)
	assert.JSONEq(t, string(event(3)), string(frames[3].Body))
	assert.NotEmpty(t, frames[3].MessageID)
}

func TestHub_SubscribeErrors(t *testing.T) {
	h := NewHub([]string{testDest}, 10, nil, nil)
	p := bufferPeer(16)
	h.register(p)

	assert.ErrorIs(t, h.subscribe(p, "a", "/topic/other", nil), ErrUnknownDestination)
	require.NoError(t, h.subscribe(p, "a", testDest, []byte(`{}`)))
	assert.ErrorIs(t, h.subscribe(p, "a", testDest, []byte(`{}`)), ErrDuplicateID)
	assert.ErrorIs(t, h.unsubscribe(p, "missing"), ErrUnknownID)
	assert.ErrorIs(t, h.Broadcast("/topic/other", event(1)), ErrUnknownDestination)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	rec := &countingRecorder{}
	h := NewHub([]string{testDest}, 10, rec, nil)
	p := bufferPeer(16)
	h.register(p)

	require.NoError(t, h.subscribe(p, "a", testDest, []byte(`{}`)))
	assert.Equal(t, 1, rec.subscribers)
	require.NoError(t, h.unsubscribe(p, "a"))
	assert.Equal(t, 0, rec.subscribers)
	drain(p)

	require.NoError(t, h.Broadcast(testDest, event(1)))
	assert.Empty(t, drain(p))
}

func TestHub_DropsSlowPeer(t *testing.T) {
	rec := &countingRecorder{}
	h := NewHub([]string{testDest}, 10, rec, nil)

	slow := bufferPeer(1)
	fast := bufferPeer(16)
	h.register(slow)
	h.register(fast)
	require.NoError(t, h.subscribe(slow, "s", testDest, []byte(`{}`))) // fills the buffer
	require.NoError(t, h.subscribe(fast, "f", testDest, []byte(`{}`)))

	require.NoError(t, h.Broadcast(testDest, event(1)))

	select {
	case <-slow.done:
	default:
		t.Fatal("slow peer not closed")
	}
	assert.Equal(t, 1, rec.events["dropped"])

	st := h.Stats()
	assert.Equal(t, 1, st.Subscribers)
	assert.Equal(t, 1, st.Peers)
	assert.False(t, st.LastEventAt.IsZero())
	assert.Len(t, drain(fast), 2)
}

func TestHub_UnregisterRemovesSubscriptions(t *testing.T) {
	h := NewHub([]string{testDest}, 10, nil, nil)
	p := bufferPeer(16)
	h.register(p)
	require.NoError(t, h.subscribe(p, "a", testDest, []byte(`{}`)))
	require.NoError(t, h.subscribe(p, "b", testDest, []byte(`{}`)))

	h.unregister(p)
	h.unregister(p)

	st := h.Stats()
	assert.Equal(t, 0, st.Subscribers)
	assert.Equal(t, 0, st.Peers)
}

func TestHub_CloseAll(t *testing.T) {
	h := NewHub([]string{testDest}, 10, nil, nil)
	peers := []*peer{bufferPeer(4), bufferPeer(8)}
	for _, p := range peers {
		h.register(p)
	}

	h.closeAll()

	for _, p := range peers {
		select {
		case <-p.done:
		default:
			t.Errorf("peer %s not closed", p.id)
		}
	}
	assert.Equal(t, 0, h.Stats().Peers)
}
