package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client errors.
var (
	ErrClientClosed  = errors.New("client closed")
	ErrStaleRelay    = errors.New("relay connection stale (no ping)")
	ErrHandshakeFail = errors.New("relay did not acknowledge CONNECT")
)

// ClientConfig holds relay client settings.
type ClientConfig struct {
	URL          string
	Origin       string        // Sent as the Origin header when set
	WriteTimeout time.Duration // Per-frame write deadline
	PingTimeout  time.Duration // Stale after this long without a server ping
	BufferSize   int           // Frames buffered for Frames()
}

// Client connects to a relay Server and receives frames.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	frames chan Frame
	errors chan error
	done   chan struct{}

	writeMu sync.Mutex

	mu         sync.RWMutex
	lastPingAt time.Time
	closed     bool
}

// NewClient creates a relay client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = time.Minute
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.BufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect dials the relay and completes the CONNECT handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	if err := c.send(Frame{Command: CmdConnect}); err != nil {
		conn.Close()
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	var ack Frame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return err
	}
	conn.SetReadDeadline(time.Time{})
	if ack.Command != CmdConnected {
		conn.Close()
		return ErrHandshakeFail
	}

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("relay connected", "url", c.cfg.URL, "session", ack.Session)
	return nil
}

// Subscribe subscribes to destination under subscription id.
func (c *Client) Subscribe(destination, id string) error {
	return c.send(Frame{Command: CmdSubscribe, Destination: destination, ID: id, Receipt: id})
}

// Unsubscribe cancels subscription id.
func (c *Client) Unsubscribe(id string) error {
	return c.send(Frame{Command: CmdUnsubscribe, ID: id})
}

// Frames returns every frame received after CONNECTED.
func (c *Client) Frames() <-chan Frame {
	return c.frames
}

// Errors returns connection errors.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// Close sends DISCONNECT and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.send(Frame{Command: CmdDisconnect})
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}
	return nil
}

func (c *Client) send(f Frame) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(f)
}

// readLoop decodes frames onto the frames channel.
func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
			default:
				c.report(err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed relay frame", "error", err)
			continue
		}

		select {
		case c.frames <- f:
		case <-c.done:
			return
		default:
			c.logger.Warn("frame buffer full, dropping frame", "command", f.Command)
		}
	}
}

// heartbeatLoop reports the connection stale when the server stops pinging.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, relay connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				c.report(ErrStaleRelay)
				return
			}
		}
	}
}

func (c *Client) report(err error) {
	select {
	case c.errors <- err:
	default:
	}
}
