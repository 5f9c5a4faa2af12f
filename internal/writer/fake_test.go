package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB is an in-memory stand-in for the two tables. Transactions stage
// their writes and apply them only on Commit.
type fakeDB struct {
	mu         sync.Mutex
	nextID     int64
	identities map[string]*fakeIdentity // by symbol
	history    []fakeHistory

	beginErr     error
	failInsertAt int // fail the Nth history insert of a tx (1-based), 0 = never
	commitErr    error

	begun, committed, rolledBack int
}

type fakeIdentity struct {
	id   int64
	name string
}

type fakeHistory struct {
	cryptoID int64
	args     []any
}

func newFakeDB() *fakeDB {
	return &fakeDB{identities: make(map[string]*fakeIdentity)}
}

func (db *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.beginErr != nil {
		return nil, db.beginErr
	}
	db.begun++
	return &fakeTx{db: db, staged: make(map[string]*fakeIdentity)}, nil
}

func (db *fakeDB) historyFor(symbol string) []fakeHistory {
	db.mu.Lock()
	defer db.mu.Unlock()
	ident, ok := db.identities[symbol]
	if !ok {
		return nil
	}
	var out []fakeHistory
	for _, h := range db.history {
		if h.cryptoID == ident.id {
			out = append(out, h)
		}
	}
	return out
}

// fakeTx embeds pgx.Tx so it satisfies the interface; only the methods the
// writer calls are implemented.
type fakeTx struct {
	pgx.Tx
	db      *fakeDB
	staged  map[string]*fakeIdentity
	history []fakeHistory
	inserts int
	closed  bool
}

func (tx *fakeTx) lookup(symbol string) (*fakeIdentity, bool) {
	if ident, ok := tx.staged[symbol]; ok {
		return ident, true
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	ident, ok := tx.db.identities[symbol]
	return ident, ok
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	switch sql {
	case upsertIdentitySQL:
		name, symbol := args[0].(string), args[1].(string)
		if ident, ok := tx.lookup(symbol); ok {
			if ident.name == name {
				return fakeRow{err: pgx.ErrNoRows}
			}
			tx.staged[symbol] = &fakeIdentity{id: ident.id, name: name}
			return fakeRow{vals: []any{ident.id}}
		}
		tx.db.mu.Lock()
		tx.db.nextID++
		id := tx.db.nextID
		tx.db.mu.Unlock()
		tx.staged[symbol] = &fakeIdentity{id: id, name: name}
		return fakeRow{vals: []any{id}}
	case selectIdentitySQL:
		if ident, ok := tx.lookup(args[0].(string)); ok {
			return fakeRow{vals: []any{ident.id}}
		}
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{err: fmt.Errorf("unexpected query: %s", sql)}
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if sql != insertHistorySQL {
		return pgconn.CommandTag{}, fmt.Errorf("unexpected exec: %s", sql)
	}
	tx.inserts++
	if tx.db.failInsertAt == tx.inserts {
		return pgconn.CommandTag{}, errors.New("value out of range")
	}
	tx.history = append(tx.history, fakeHistory{cryptoID: args[0].(int64), args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if tx.db.commitErr != nil {
		return tx.db.commitErr
	}
	for symbol, ident := range tx.staged {
		tx.db.identities[symbol] = ident
	}
	tx.db.history = append(tx.db.history, tx.history...)
	tx.db.committed++
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	tx.db.mu.Lock()
	tx.db.rolledBack++
	tx.db.mu.Unlock()
	return nil
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.vals[i].(int64)
		default:
			return fmt.Errorf("unsupported scan type %T", d)
		}
	}
	return nil
}
