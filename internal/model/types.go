package model

import (
	"math"
	"time"
)

// TimestampLayout is the fixed, sortable timestamp format used on the wire
// and in snapshots (no sub-second precision, no zone suffix).
const TimestampLayout = "2006-01-02 15:04:05"

// -----------------------------------------------------------------------------
// Pipeline Types
// -----------------------------------------------------------------------------

// CoinRecord is one validated market snapshot, the pipeline's unit of work.
type CoinRecord struct {
	Name                  string  `json:"name"`
	Symbol                string  `json:"symbol"` // Upper-case
	Price                 float64 `json:"price"`
	MarketCap             float64 `json:"market_cap"`
	MarketCapRank         int     `json:"market_cap_rank"`
	TotalVolume           float64 `json:"total_volume"`
	High24h               float64 `json:"high_24h"`
	Low24h                float64 `json:"low_24h"`
	PriceChangePct24h     float64 `json:"price_change_percentage_24h"`      // 0 when absent in source
	MarketCapChangePct24h float64 `json:"market_cap_change_percentage_24h"` // 0 when absent in source
	LastUpdated           string  `json:"last_updated"`                     // TimestampLayout, UTC

	// UpdatedAt is LastUpdated as a time, truncated to the second.
	UpdatedAt time.Time `json:"-"`
}

// Snapshot is the document the dashboard polls.
type Snapshot struct {
	Coins       []CoinRecord `json:"coins"`
	LastUpdated string       `json:"last_updated"` // TimestampLayout, UTC
}

// NewSnapshot builds a snapshot of records taken at the given time.
func NewSnapshot(records []CoinRecord, at time.Time) Snapshot {
	coins := records
	if coins == nil {
		coins = []CoinRecord{}
	}
	return Snapshot{
		Coins:       coins,
		LastUpdated: FormatTimestamp(at),
	}
}

// Age returns how old the snapshot is at now. A snapshot with an unparsable
// timestamp is treated as infinitely old.
func (s Snapshot) Age(now time.Time) time.Duration {
	t, err := ParseTimestamp(s.LastUpdated)
	if err != nil {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(t)
}

// -----------------------------------------------------------------------------
// Persisted Types
// -----------------------------------------------------------------------------

// CryptoIdentity is the durable identity a coin is keyed by across cycles.
type CryptoIdentity struct {
	ID     int64  // Primary key
	Name   string // Refreshed on conflict
	Symbol string // Unique
}

// PriceHistoryPoint is one append-only row of crypto_price_history.
type PriceHistoryPoint struct {
	CryptocurrencyID      int64 // Foreign key to CryptoIdentity
	Price                 float64
	MarketCap             float64
	MarketCapRank         int
	TotalVolume           float64
	High24h               float64
	Low24h                float64
	PriceChangePct24h     float64
	MarketCapChangePct24h float64
	Timestamp             time.Time // UTC, second precision
}

// NewPriceHistoryPoint projects a record onto a history row for identity id.
func NewPriceHistoryPoint(id int64, r CoinRecord) PriceHistoryPoint {
	return PriceHistoryPoint{
		CryptocurrencyID:      id,
		Price:                 r.Price,
		MarketCap:             r.MarketCap,
		MarketCapRank:         r.MarketCapRank,
		TotalVolume:           r.TotalVolume,
		High24h:               r.High24h,
		Low24h:                r.Low24h,
		PriceChangePct24h:     r.PriceChangePct24h,
		MarketCapChangePct24h: r.MarketCapChangePct24h,
		Timestamp:             r.UpdatedAt,
	}
}

// -----------------------------------------------------------------------------
// Wire Types
// -----------------------------------------------------------------------------

// PublishedEvent is the flattened projection of a CoinRecord sent to the topic.
type PublishedEvent struct {
	Symbol string `json:"-"` // Message key

	CryptocurrencyID      int64   `json:"cryptocurrency_id"` // 0 when the identity is unresolved
	AvgPrice              float64 `json:"avg_price"`
	AvgMarketCap          float64 `json:"avg_market_cap"`
	AvgMarketCapRank      float64 `json:"avg_market_cap_rank"`
	AvgTotalVolume        float64 `json:"avg_total_volume"`
	AvgHigh24h            float64 `json:"avg_high_24h"`
	AvgLow24h             float64 `json:"avg_low_24h"`
	AvgPriceChangePct     float64 `json:"avg_price_change_pct"`
	AvgMarketCapChangePct float64 `json:"avg_market_cap_change_pct"`
}

// NewPublishedEvent projects a record onto the wire event for identity id.
func NewPublishedEvent(id int64, r CoinRecord) PublishedEvent {
	return PublishedEvent{
		Symbol:                r.Symbol,
		CryptocurrencyID:      id,
		AvgPrice:              r.Price,
		AvgMarketCap:          r.MarketCap,
		AvgMarketCapRank:      float64(r.MarketCapRank),
		AvgTotalVolume:        r.TotalVolume,
		AvgHigh24h:            r.High24h,
		AvgLow24h:             r.Low24h,
		AvgPriceChangePct:     r.PriceChangePct24h,
		AvgMarketCapChangePct: r.MarketCapChangePct24h,
	}
}

// NewPublishedEvents maps a batch to events, resolving ids by symbol.
// Symbols missing from ids get id 0.
func NewPublishedEvents(records []CoinRecord, ids map[string]int64) []PublishedEvent {
	events := make([]PublishedEvent, len(records))
	for i, r := range records {
		events[i] = NewPublishedEvent(ids[r.Symbol], r)
	}
	return events
}

// -----------------------------------------------------------------------------
// Timestamps
// -----------------------------------------------------------------------------

// FormatTimestamp formats t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a TimestampLayout string as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}
