// Package database provides the PostgreSQL connection pool and schema.
//
// Tables:
//   - cryptocurrencies: one identity row per symbol, never deleted
//   - crypto_price_history: append-only, one row per coin per cycle
//
// The pool is small and bounded; the crawler borrows one connection per
// batch transaction.
package database
