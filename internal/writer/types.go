package writer

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TxBeginner opens transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Querier runs single-row queries. *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// execQuerier is the subset of pgx.Tx used per record.
type execQuerier interface {
	Querier
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64 // History rows committed
	Errors    int64 // Batches rolled back or failed to start
	Batches   int64 // Batches committed
	Refreshed int64 // Identities created or renamed
}
