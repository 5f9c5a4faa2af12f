package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"

	"github.com/rickgao/crypto-crawler/internal/metrics"
)

// Recorder receives relay metrics. *metrics.Relay satisfies it.
type Recorder interface {
	SetSubscribers(n int)
	IncEvent(result string)
}

type nopRecorder struct{}

func (nopRecorder) SetSubscribers(int) {}
func (nopRecorder) IncEvent(string)    {}

// subscription is one peer subscribed to one destination.
type subscription struct {
	id   string
	dest string
	peer *peer
}

// destination holds the subscribers and recent events of one topic path.
type destination struct {
	subs    map[*subscription]struct{}
	history deque.Deque[[]byte] // Newest at the front
}

// HubStats is a point-in-time view of the hub.
type HubStats struct {
	Subscribers int
	Peers       int
	LastEventAt time.Time // Zero until the first event
}

// Hub fans events out to subscriptions and keeps recent history per
// destination.
type Hub struct {
	logger     *slog.Logger
	metrics    Recorder
	maxHistory int

	mu          sync.Mutex
	dests       map[string]*destination
	peers       map[*peer]struct{}
	subCount    int
	lastEventAt time.Time
}

// NewHub creates a hub serving the given destinations.
func NewHub(destinations []string, maxHistory int, rec Recorder, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	h := &Hub{
		logger:     logger,
		metrics:    rec,
		maxHistory: maxHistory,
		dests:      make(map[string]*destination, len(destinations)),
		peers:      make(map[*peer]struct{}),
	}
	for _, d := range destinations {
		h.dests[d] = &destination{subs: make(map[*subscription]struct{})}
	}
	return h
}

// Broadcast records body in dest's history and delivers it to every
// subscriber of dest. Subscribers whose send buffer is full are
// disconnected.
func (h *Hub) Broadcast(dest string, body []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, ok := h.dests[dest]
	if !ok {
		return ErrUnknownDestination
	}

	if h.maxHistory > 0 {
		d.history.PushFront(body)
		for d.history.Len() > h.maxHistory {
			d.history.PopBack()
		}
	}
	h.lastEventAt = time.Now()

	for s := range d.subs {
		if !s.peer.enqueue(messageFrame(s, body, false)) {
			h.logger.Warn("dropping slow subscriber",
				"peer", s.peer.id,
				"subscription", s.id,
				"destination", dest,
			)
			h.metrics.IncEvent(metrics.EventDropped)
			h.dropPeerLocked(s.peer)
			s.peer.close()
		}
	}
	return nil
}

// History returns dest's retained events, newest first.
func (h *Hub) History(dest string) [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, ok := h.dests[dest]
	if !ok {
		return nil
	}
	out := make([][]byte, d.history.Len())
	for i := range out {
		out[i] = d.history.At(i)
	}
	return out
}

// HasDestination reports whether dest is served.
func (h *Hub) HasDestination(dest string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.dests[dest]
	return ok
}

// Stats returns current counts.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HubStats{
		Subscribers: h.subCount,
		Peers:       len(h.peers),
		LastEventAt: h.lastEventAt,
	}
}

// register adds a connected peer.
func (h *Hub) register(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = struct{}{}
}

// subscribe adds subscription id on dest for p and queues receipt
// followed by the destination's history. Holding the lock keeps live
// events from overtaking the replay.
func (h *Hub) subscribe(p *peer, id, dest string, receipt []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, ok := h.dests[dest]
	if !ok {
		return ErrUnknownDestination
	}
	if _, dup := p.subs[id]; dup {
		return ErrDuplicateID
	}

	s := &subscription{id: id, dest: dest, peer: p}
	if !p.enqueue(receipt) {
		return ErrSlowPeer
	}
	for i := 0; i < d.history.Len(); i++ {
		if !p.enqueue(messageFrame(s, d.history.At(i), true)) {
			return ErrSlowPeer
		}
	}

	p.subs[id] = s
	d.subs[s] = struct{}{}
	h.subCount++
	h.metrics.SetSubscribers(h.subCount)
	return nil
}

// unsubscribe removes p's subscription id.
func (h *Hub) unsubscribe(p *peer, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := p.subs[id]
	if !ok {
		return ErrUnknownID
	}
	delete(p.subs, id)
	h.removeSubLocked(s)
	return nil
}

// unregister removes p and all of its subscriptions.
func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropPeerLocked(p)
}

// closeAll disconnects every peer.
func (h *Hub) closeAll() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
		h.dropPeerLocked(p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
}

func (h *Hub) dropPeerLocked(p *peer) {
	if _, ok := h.peers[p]; !ok {
		return
	}
	delete(h.peers, p)
	for id, s := range p.subs {
		delete(p.subs, id)
		h.removeSubLocked(s)
	}
}

func (h *Hub) removeSubLocked(s *subscription) {
	d, ok := h.dests[s.dest]
	if !ok {
		return
	}
	if _, ok := d.subs[s]; !ok {
		return
	}
	delete(d.subs, s)
	h.subCount--
	h.metrics.SetSubscribers(h.subCount)
}

func messageFrame(s *subscription, body []byte, replay bool) []byte {
	return encodeFrame(Frame{
		Command:      CmdMessage,
		Destination:  s.dest,
		Subscription: s.id,
		MessageID:    uuid.NewString(),
		Replay:       replay,
		Body:         body,
	})
}
