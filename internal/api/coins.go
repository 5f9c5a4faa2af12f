package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// CoinMarketsOptions selects the page of coins to fetch.
type CoinMarketsOptions struct {
	VSCurrency string // Quote currency, e.g. "usd"
	PerPage    int    // Page size (1-250)
}

// GetCoinMarkets fetches the first page of coins ordered by market cap.
//
// Entries that are not JSON objects are dropped here and logged; everything
// else is returned for the normalizer to validate.
func (c *Client) GetCoinMarkets(ctx context.Context, opts CoinMarketsOptions) ([]RawSnapshot, error) {
	query := url.Values{}
	query.Set("vs_currency", opts.VSCurrency)
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(opts.PerPage))
	query.Set("page", "1")
	query.Set("sparkline", "false")

	var entries []json.RawMessage
	if err := c.get(ctx, "", query, &entries); err != nil {
		return nil, fmt.Errorf("get coin markets: %w", err)
	}

	snapshots := make([]RawSnapshot, 0, len(entries))
	for i, entry := range entries {
		var s RawSnapshot
		if err := json.Unmarshal(entry, &s); err != nil {
			c.logger.Warn("dropping malformed market entry",
				"index", i,
				"error", err,
			)
			continue
		}
		snapshots = append(snapshots, s)
	}

	return snapshots, nil
}
