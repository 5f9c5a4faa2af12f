package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/crypto-crawler/internal/model"
)

const (
	// upsertIdentitySQL returns no row when the symbol exists with the same
	// name, so the caller falls back to selectIdentitySQL.
	upsertIdentitySQL = `
		INSERT INTO cryptocurrencies (name, symbol)
		VALUES ($1, $2)
		ON CONFLICT (symbol) DO UPDATE SET name = EXCLUDED.name
		WHERE cryptocurrencies.name IS DISTINCT FROM EXCLUDED.name
		RETURNING id`

	selectIdentitySQL = `SELECT id FROM cryptocurrencies WHERE symbol = $1`

	insertHistorySQL = `
		INSERT INTO crypto_price_history (
			cryptocurrency_id, price, market_cap, market_cap_rank, total_volume,
			high_24h, low_24h, price_change_percentage_24h, market_cap_change_percentage_24h, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	latestBySymbolSQL = `
		SELECT c.id, c.name, c.symbol,
			h.price, h.market_cap, h.market_cap_rank, h.total_volume, h.high_24h, h.low_24h,
			h.price_change_percentage_24h, h.market_cap_change_percentage_24h, h.timestamp
		FROM cryptocurrencies c
		JOIN crypto_price_history h ON h.cryptocurrency_id = c.id
		WHERE c.symbol = $1
		ORDER BY h.timestamp DESC, h.id DESC
		LIMIT 1`
)

// ErrNotFound is returned when a symbol has no stored history.
var ErrNotFound = errors.New("no history for symbol")

// HistoryWriter writes batches of CoinRecords to the history tables.
type HistoryWriter struct {
	db     TxBeginner
	logger *slog.Logger

	mu      sync.Mutex
	metrics WriterMetrics
}

// NewHistoryWriter creates a new HistoryWriter.
func NewHistoryWriter(db TxBeginner, logger *slog.Logger) *HistoryWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryWriter{
		db:     db,
		logger: logger,
	}
}

// Persist writes the batch in a single transaction and returns the identity
// id of every symbol in it. Either every record is committed or none is.
func (w *HistoryWriter) Persist(ctx context.Context, records []model.CoinRecord) (ids map[string]int64, err error) {
	ids = make(map[string]int64, len(records))
	if len(records) == 0 {
		return ids, nil
	}

	start := time.Now()

	tx, err := w.db.Begin(ctx)
	if err != nil {
		w.recordError()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	// Rollback after Commit is a no-op; the connection goes back to the pool
	// on both paths.
	defer func() {
		if err == nil {
			return
		}
		w.recordError()
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			w.logger.Error("rollback failed", "error", rbErr)
		}
	}()

	var refreshed int64
	for i, rec := range records {
		id, created, err := upsertIdentity(ctx, tx, rec)
		if err != nil {
			return nil, fmt.Errorf("upsert identity %s (record %d): %w", rec.Symbol, i+1, err)
		}
		if created {
			refreshed++
		}

		if err := insertHistory(ctx, tx, model.NewPriceHistoryPoint(id, rec)); err != nil {
			return nil, fmt.Errorf("insert history %s (record %d): %w", rec.Symbol, i+1, err)
		}

		ids[rec.Symbol] = id
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	w.mu.Lock()
	w.metrics.Inserts += int64(len(records))
	w.metrics.Refreshed += refreshed
	w.metrics.Batches++
	w.mu.Unlock()

	w.logger.Debug("persisted batch",
		"count", len(records),
		"identities_refreshed", refreshed,
		"duration", time.Since(start),
	)

	return ids, nil
}

// Stats returns current metrics.
func (w *HistoryWriter) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *HistoryWriter) recordError() {
	w.mu.Lock()
	w.metrics.Errors++
	w.mu.Unlock()
}

// upsertIdentity inserts or refreshes the identity for rec.Symbol and
// returns its id. created reports whether the row was inserted or renamed.
func upsertIdentity(ctx context.Context, q execQuerier, rec model.CoinRecord) (id int64, created bool, err error) {
	err = q.QueryRow(ctx, upsertIdentitySQL, rec.Name, rec.Symbol).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	if err := q.QueryRow(ctx, selectIdentitySQL, rec.Symbol).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("lookup existing identity: %w", err)
	}
	return id, false, nil
}

func insertHistory(ctx context.Context, q execQuerier, p model.PriceHistoryPoint) error {
	_, err := q.Exec(ctx, insertHistorySQL,
		p.CryptocurrencyID,
		p.Price,
		p.MarketCap,
		p.MarketCapRank,
		p.TotalVolume,
		p.High24h,
		p.Low24h,
		p.PriceChangePct24h,
		p.MarketCapChangePct24h,
		p.Timestamp,
	)
	return err
}

// LatestBySymbol returns the identity and newest history row for symbol.
func LatestBySymbol(ctx context.Context, q Querier, symbol string) (model.CryptoIdentity, model.PriceHistoryPoint, error) {
	var (
		ident model.CryptoIdentity
		p     model.PriceHistoryPoint
	)
	err := q.QueryRow(ctx, latestBySymbolSQL, symbol).Scan(
		&ident.ID, &ident.Name, &ident.Symbol,
		&p.Price, &p.MarketCap, &p.MarketCapRank, &p.TotalVolume, &p.High24h, &p.Low24h,
		&p.PriceChangePct24h, &p.MarketCapChangePct24h, &p.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ident, p, ErrNotFound
	}
	if err != nil {
		return ident, p, fmt.Errorf("query latest %s: %w", symbol, err)
	}

	p.CryptocurrencyID = ident.ID
	p.Timestamp = p.Timestamp.UTC()
	return ident, p, nil
}
