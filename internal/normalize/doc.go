// Package normalize turns raw market entries into validated CoinRecords.
//
// A record is kept only if name, symbol, price, market cap, rank, volume,
// 24h high/low and last-updated time are all present. Rejected entries are
// logged and skipped; a partial batch is never an error.
package normalize
