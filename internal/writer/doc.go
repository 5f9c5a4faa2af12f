// Package writer persists normalized coin batches.
//
// Each batch is written in one transaction: identities are upserted by
// symbol, then one price history row is appended per record. Any failure
// rolls back the whole batch. History rows are append-only (never update,
// only insert).
package writer
