package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rickgao/crypto-crawler/internal/config"
	"github.com/rickgao/crypto-crawler/internal/model"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot available")

// Store persists the latest snapshot.
type Store interface {
	Save(ctx context.Context, s model.Snapshot) error
	Load(ctx context.Context) (model.Snapshot, error)
	Close() error
}

// New builds the store selected by cfg.Kind.
func New(ctx context.Context, cfg config.SnapshotConfig) (Store, error) {
	switch cfg.Kind {
	case config.SnapshotFile:
		return NewFileStore(cfg.Path), nil
	case config.SnapshotRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case config.SnapshotNone, "":
		return NoneStore{}, nil
	default:
		return nil, fmt.Errorf("unknown snapshot kind %q", cfg.Kind)
	}
}

// -----------------------------------------------------------------------------
// File
// -----------------------------------------------------------------------------

// FileStore writes the snapshot to a JSON file.
//
// Writes go to a temporary file in the same directory which is then
// renamed over the target, so readers never see a partial document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, s model.Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load implements Store.
func (f *FileStore) Load(_ context.Context) (model.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var s model.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	return s, nil
}

// Close implements Store.
func (f *FileStore) Close() error { return nil }

// -----------------------------------------------------------------------------
// None
// -----------------------------------------------------------------------------

// NoneStore keeps nothing.
type NoneStore struct{}

func (NoneStore) Save(context.Context, model.Snapshot) error { return nil }

func (NoneStore) Load(context.Context) (model.Snapshot, error) {
	return model.Snapshot{}, ErrNoSnapshot
}

func (NoneStore) Close() error { return nil }

// -----------------------------------------------------------------------------
// Cached
// -----------------------------------------------------------------------------

// Cached keeps the last saved snapshot in memory in front of a Store.
// Load falls back to the underlying store until the first Save.
type Cached struct {
	Store

	mu     sync.RWMutex
	latest *model.Snapshot
}

// NewCached wraps store.
func NewCached(store Store) *Cached {
	return &Cached{Store: store}
}

// Save records s in memory, then in the underlying store. The in-memory
// copy is updated even when the underlying store fails.
func (c *Cached) Save(ctx context.Context, s model.Snapshot) error {
	c.mu.Lock()
	c.latest = &s
	c.mu.Unlock()

	return c.Store.Save(ctx, s)
}

// Load returns the in-memory snapshot if any.
func (c *Cached) Load(ctx context.Context) (model.Snapshot, error) {
	c.mu.RLock()
	latest := c.latest
	c.mu.RUnlock()

	if latest != nil {
		return *latest, nil
	}
	return c.Store.Load(ctx)
}
