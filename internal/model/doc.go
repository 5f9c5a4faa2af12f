// Package model defines shared data types used across the crawler and relay.
//
// Conventions:
//   - Symbols: upper-case ticker symbols ("BTC") are the natural key of a coin
//   - Timestamps: UTC, formatted "2006-01-02 15:04:05" on the wire
//   - IDs: int64 identity ids assigned by the cryptocurrencies table
package model
