package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement. *pgxpool.Pool and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schemaStatements create the minimum schema. Each is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS cryptocurrencies (
		id     BIGSERIAL PRIMARY KEY,
		name   TEXT NOT NULL,
		symbol TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS crypto_price_history (
		id                               BIGSERIAL PRIMARY KEY,
		cryptocurrency_id                BIGINT NOT NULL REFERENCES cryptocurrencies (id),
		price                            DOUBLE PRECISION NOT NULL,
		market_cap                       DOUBLE PRECISION NOT NULL,
		market_cap_rank                  INTEGER NOT NULL,
		total_volume                     DOUBLE PRECISION NOT NULL,
		high_24h                         DOUBLE PRECISION NOT NULL,
		low_24h                          DOUBLE PRECISION NOT NULL,
		price_change_percentage_24h      DOUBLE PRECISION NOT NULL DEFAULT 0,
		market_cap_change_percentage_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		timestamp                        TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS crypto_price_history_coin_ts_idx
		ON crypto_price_history (cryptocurrency_id, timestamp DESC, id DESC)`,
}

// EnsureSchema creates the crawler's tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
