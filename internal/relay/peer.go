package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxFrameSize bounds client frames.
const maxFrameSize = 64 * 1024

// peerConfig holds per-connection settings.
type peerConfig struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// peer is one WebSocket client.
type peer struct {
	id     string
	cfg    peerConfig
	conn   *websocket.Conn
	hub    *Hub
	logger *slog.Logger

	send chan []byte

	// done is closed to drop the connection immediately. quit is closed
	// when the read side finishes, after which queued frames are flushed.
	done      chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
	quitOnce  sync.Once

	// subs is keyed by subscription id and guarded by hub.mu.
	subs map[string]*subscription

	// Touched only by readLoop.
	connected bool
}

func newPeer(conn *websocket.Conn, hub *Hub, cfg peerConfig, logger *slog.Logger) *peer {
	id := uuid.NewString()
	return &peer{
		id:     id,
		cfg:    cfg,
		conn:   conn,
		hub:    hub,
		logger: logger.With("peer", id),
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		subs:   make(map[string]*subscription),
	}
}

// run serves the peer until the connection ends.
func (p *peer) run() {
	p.hub.register(p)
	go p.writeLoop()
	p.readLoop()
}

// enqueue queues data without blocking. It returns false when the peer is
// closed or its buffer is full.
func (p *peer) enqueue(data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

// close drops the connection without flushing.
func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// readLoop reads and handles client frames.
func (p *peer) readLoop() {
	defer func() {
		p.hub.unregister(p)
		p.quitOnce.Do(func() { close(p.quit) })
	}()

	p.conn.SetReadLimit(maxFrameSize)
	pongWait := 2 * p.cfg.PingInterval
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Debug("peer read failed", "error", err)
			}
			return
		}

		if !p.handle(data) {
			return
		}
	}
}

// handle processes one frame and reports whether to keep reading.
func (p *peer) handle(data []byte) bool {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		p.enqueue(errorFrame(errors.New("malformed frame")))
		return true
	}

	if !p.connected && f.Command != CmdConnect {
		p.enqueue(errorFrame(ErrNotConnected))
		return true
	}

	switch f.Command {
	case CmdConnect:
		p.connected = true
		p.enqueue(encodeFrame(Frame{
			Command: CmdConnected,
			Session: p.id,
			Version: ProtocolVersion,
		}))

	case CmdSubscribe:
		if f.ID == "" {
			p.enqueue(errorFrame(ErrMissingID))
			return true
		}
		receipt := encodeFrame(Frame{Command: CmdReceipt, Receipt: f.Receipt, ID: f.ID, Destination: f.Destination})
		err := p.hub.subscribe(p, f.ID, f.Destination, receipt)
		switch {
		case errors.Is(err, ErrSlowPeer):
			p.logger.Warn("dropping peer during history replay")
			p.close()
			return false
		case err != nil:
			p.enqueue(errorFrame(err))
		default:
			p.logger.Debug("subscribed", "subscription", f.ID, "destination", f.Destination)
		}

	case CmdUnsubscribe:
		if err := p.hub.unsubscribe(p, f.ID); err != nil {
			p.enqueue(errorFrame(err))
			return true
		}
		p.enqueue(encodeFrame(Frame{Command: CmdReceipt, Receipt: f.Receipt, ID: f.ID}))

	case CmdDisconnect:
		p.enqueue(encodeFrame(Frame{Command: CmdReceipt, Receipt: f.Receipt}))
		return false

	default:
		p.enqueue(errorFrame(ErrUnknownCommand))
	}
	return true
}

// writeLoop writes queued frames and pings until the peer closes.
func (p *peer) writeLoop() {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case <-p.done:
			return

		case <-p.quit:
			p.flush()
			p.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return

		case data := <-p.send:
			if err := p.write(data); err != nil {
				p.logger.Debug("peer write failed", "error", err)
				p.close()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(p.cfg.WriteTimeout)
			if err := p.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				p.logger.Debug("failed to send ping", "error", err)
				p.close()
				return
			}
		}
	}
}

// flush writes whatever is still queued.
func (p *peer) flush() {
	for {
		select {
		case data := <-p.send:
			if err := p.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *peer) write(data []byte) error {
	p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}
