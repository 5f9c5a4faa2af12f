package snapshot

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// StaleHeader is set to "true" on responses whose snapshot is older than
// the handler's maximum age.
const StaleHeader = "X-Snapshot-Stale"

// Handler serves the latest snapshot as JSON.
type Handler struct {
	store  Store
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates a handler reading from store. A maxAge of 0 disables
// the stale flag.
func NewHandler(store Store, maxAge time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  store,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s, err := h.store.Load(r.Context())
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			h.logger.Error("failed to load snapshot", "error", err)
		}
		writeError(w, http.StatusServiceUnavailable, "data unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if h.maxAge > 0 && s.Age(h.now()) > h.maxAge {
		w.Header().Set(StaleHeader, "true")
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(s); err != nil {
		h.logger.Warn("failed to write snapshot response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
