package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rickgao/crypto-crawler/internal/model"
	"github.com/rickgao/crypto-crawler/internal/writer"
)

// pinger checks database connectivity. *pgxpool.Pool satisfies it.
type pinger interface {
	Ping(ctx context.Context) error
}

type statser interface {
	Stats() writer.WriterMetrics
}

type handlerDeps struct {
	pinger    pinger
	cycles    func() int64
	writer    statser
	snapshots http.Handler
	metrics   http.Handler
	metricsAt string
	latest    func(ctx context.Context, symbol string) (any, error)
	logger    *slog.Logger
}

// latestCoinResponse is the /coins/{symbol}/latest document.
type latestCoinResponse struct {
	ID     int64            `json:"id"`
	Name   string           `json:"name"`
	Symbol string           `json:"symbol"`
	Latest model.CoinRecord `json:"latest"`
}

func latestCoin(ctx context.Context, q writer.Querier, symbol string) (any, error) {
	ident, p, err := writer.LatestBySymbol(ctx, q, symbol)
	if err != nil {
		return nil, err
	}
	return latestCoinResponse{
		ID:     ident.ID,
		Name:   ident.Name,
		Symbol: ident.Symbol,
		Latest: model.CoinRecord{
			Name:                  ident.Name,
			Symbol:                ident.Symbol,
			Price:                 p.Price,
			MarketCap:             p.MarketCap,
			MarketCapRank:         p.MarketCapRank,
			TotalVolume:           p.TotalVolume,
			High24h:               p.High24h,
			Low24h:                p.Low24h,
			PriceChangePct24h:     p.PriceChangePct24h,
			MarketCapChangePct24h: p.MarketCapChangePct24h,
			LastUpdated:           model.FormatTimestamp(p.Timestamp),
			UpdatedAt:             p.Timestamp,
		},
	}, nil
}

// newHandler creates the HTTP handler for health, metrics, snapshot and
// coin lookups.
func newHandler(d handlerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := d.pinger.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		stats := d.writer.Stats()
		health.Components["crawler"] = map[string]any{
			"cycles":        d.cycles(),
			"batches":       stats.Batches,
			"rows_inserted": stats.Inserts,
			"errors":        stats.Errors,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.Handle("GET /crypto_data.json", d.snapshots)
	mux.Handle("GET "+d.metricsAt, d.metrics)

	mux.HandleFunc("GET /coins/{symbol}/latest", func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))

		resp, err := d.latest(r.Context(), symbol)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case errors.Is(err, writer.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "unknown symbol " + symbol})
		case err != nil:
			d.logger.Error("failed to look up coin", "symbol", symbol, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "lookup failed"})
		default:
			json.NewEncoder(w).Encode(resp)
		}
	})

	return mux
}
