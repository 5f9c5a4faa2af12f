package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/crypto-crawler/internal/config"
)

// Server upgrades HTTP requests to relay connections.
type Server struct {
	hub      *Hub
	cfg      peerConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates a server for hub using the endpoint settings in cfg.
func NewServer(hub *Hub, cfg config.RelayServer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	pcfg := peerConfig{
		SendBuffer:   cfg.SendBuffer,
		PingInterval: cfg.PingInterval,
		WriteTimeout: cfg.WriteTimeout,
	}
	if pcfg.SendBuffer <= 0 {
		pcfg.SendBuffer = config.DefaultRelaySendBuffer
	}
	if pcfg.PingInterval <= 0 {
		pcfg.PingInterval = config.DefaultPingInterval
	}
	if pcfg.WriteTimeout <= 0 {
		pcfg.WriteTimeout = config.DefaultWriteTimeout
	}

	return &Server{
		hub:    hub,
		cfg:    pcfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := newPeer(conn, s.hub, s.cfg, s.logger)
	s.logger.Debug("peer connected", "peer", p.id, "remote", r.RemoteAddr)
	p.run()
	s.logger.Debug("peer disconnected", "peer", p.id)
}

// Close disconnects every peer.
func (s *Server) Close() {
	s.hub.closeAll()
}

// originChecker allows the listed origins, or any origin when the list is
// empty or contains "*".
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// healthResponse is the /health document.
type healthResponse struct {
	Status                string   `json:"status"`
	Subscribers           int      `json:"subscribers"`
	Peers                 int      `json:"peers"`
	SecondsSinceLastEvent *float64 `json:"seconds_since_last_event"` // null before the first event
}

// HealthHandler reports subscriber counts and time since the last event.
func HealthHandler(hub *Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := hub.Stats()
		resp := healthResponse{
			Status:      "ok",
			Subscribers: st.Subscribers,
			Peers:       st.Peers,
		}
		if !st.LastEventAt.IsZero() {
			since := time.Since(st.LastEventAt).Seconds()
			resp.SecondsSinceLastEvent = &since
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}
