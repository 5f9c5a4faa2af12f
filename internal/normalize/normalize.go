package normalize

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/rickgao/crypto-crawler/internal/api"
	"github.com/rickgao/crypto-crawler/internal/model"
)

// RejectError reports why an entry was dropped.
type RejectError struct {
	ID      string   // Source coin id, may be empty
	Rank    string   // Source market cap rank as seen, "" if missing
	Missing []string // Essential fields that were missing or unusable
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("coin %q (rank %s) missing essential fields: %s",
		e.ID, e.Rank, strings.Join(e.Missing, ", "))
}

// Normalize validates one raw entry and converts it to a CoinRecord.
func Normalize(raw api.RawSnapshot) (model.CoinRecord, error) {
	var missing []string

	str := func(field string, v api.OptionalString) string {
		s := strings.TrimSpace(v.Value)
		if !v.Valid || s == "" {
			missing = append(missing, field)
		}
		return s
	}
	rank := func(v api.OptionalFloat) int {
		r := math.Round(v.Value)
		// market_cap_rank is an INTEGER column starting at 1.
		if !v.Valid || math.IsNaN(r) || r < 1 || r > math.MaxInt32 {
			missing = append(missing, "market_cap_rank")
			return 0
		}
		return int(r)
	}
	num := func(field string, v api.OptionalFloat) float64 {
		if !v.Valid {
			missing = append(missing, field)
			return 0
		}
		return v.Value
	}

	rec := model.CoinRecord{
		Name:                  str("name", raw.Name),
		Symbol:                strings.ToUpper(str("symbol", raw.Symbol)),
		Price:                 num("price", raw.CurrentPrice),
		MarketCap:             num("market_cap", raw.MarketCap),
		MarketCapRank:         rank(raw.MarketCapRank),
		TotalVolume:           num("total_volume", raw.TotalVolume),
		High24h:               num("high_24h", raw.High24h),
		Low24h:                num("low_24h", raw.Low24h),
		PriceChangePct24h:     orZero(raw.PriceChangePercentage24h),
		MarketCapChangePct24h: orZero(raw.MarketCapChangePercentage24h),
	}

	if ts, ok := parseTimestamp(raw.LastUpdated); ok {
		rec.UpdatedAt = ts
		rec.LastUpdated = model.FormatTimestamp(ts)
	} else {
		missing = append(missing, "last_updated")
	}

	if len(missing) > 0 {
		return model.CoinRecord{}, &RejectError{
			ID:      raw.ID.Value,
			Rank:    rankString(raw.MarketCapRank),
			Missing: missing,
		}
	}
	return rec, nil
}

// Batch normalizes every entry, logging and skipping rejects.
func Batch(raws []api.RawSnapshot, logger *slog.Logger) []model.CoinRecord {
	if logger == nil {
		logger = slog.Default()
	}

	records := make([]model.CoinRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := Normalize(raw)
		if err != nil {
			logger.Warn("skipping coin with missing essential data",
				"coin_id", raw.ID.Value,
				"rank", rankString(raw.MarketCapRank),
				"error", err,
			)
			continue
		}
		records = append(records, rec)
	}
	return records
}

func orZero(v api.OptionalFloat) float64 {
	if !v.Valid {
		return 0
	}
	return v.Value
}

func rankString(v api.OptionalFloat) string {
	if !v.Valid {
		return ""
	}
	return fmt.Sprintf("%g", v.Value)
}

// timestampLayouts are the accepted source formats, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	model.TimestampLayout,
}

// parseTimestamp returns the source time in UTC without sub-second precision.
func parseTimestamp(v api.OptionalString) (time.Time, bool) {
	s := strings.TrimSpace(v.Value)
	if !v.Valid || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Second), true
		}
	}
	return time.Time{}, false
}
