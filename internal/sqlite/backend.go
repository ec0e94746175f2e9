// Package sqlite implements the SQLite storage backend for entitymeta.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/entitymeta/internal/logger"
	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// DBFileName is the database file created inside Config.DataDir.
const DBFileName = "entitymeta.db"

var (
	_ types.Store    = (*Backend)(nil)
	_ types.Upserter = (*Backend)(nil)
)

// Backend implements types.Store and types.Upserter on a SQLite database
// file. It must be attached before use.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB

	// uniqueKeys is true when the schema carries the unique index on
	// (entity_type, entity_id, key).
	uniqueKeys bool

	base *logger.Logger // as configured
	log  *logger.Logger // base plus the per-attach instance id
	now  func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger routes backend logging to l.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) {
		b.base = logger.FromZerolog(l).Component("sqlite")
	}
}

// WithClock replaces time.Now as the source of created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		base: logger.Nop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.base
	return b
}

// Attach opens (or creates) the database in config.DataDir and migrates the
// schema. Existing data is kept.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	// A single connection serializes writers inside the process.
	db.SetMaxOpenConns(1)

	b.log = b.base.With("instance", uuid.NewString())

	if err := migrate(context.Background(), db, !config.AllowDuplicateKeys); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.config = config
	b.uniqueKeys = !config.AllowDuplicateKeys
	b.attached = true

	b.log.Info().
		Str("path", dbPath).
		Bool("unique_keys", b.uniqueKeys).
		Msg("backend attached")
	return nil
}

// Detach releases all resources held by the backend.
// After Detach, all operations return ErrDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.log.Info().Msg("backend detached")
	return nil
}

// Migrate creates the metadata schema if it is missing. Attach already
// migrates; calling Migrate again is harmless.
func (b *Backend) Migrate(ctx context.Context) error {
	db, unlock, err := b.acquire()
	if err != nil {
		return err
	}
	defer unlock()
	return migrate(ctx, db, b.uniqueKeys)
}

// Rollback drops the metadata table and its indexes, deleting all data.
func (b *Backend) Rollback(ctx context.Context) error {
	db, unlock, err := b.acquire()
	if err != nil {
		return err
	}
	defer unlock()
	return rollback(ctx, db)
}

// UniqueKeys reports whether the attached schema enforces one record per
// (owner, key).
func (b *Backend) UniqueKeys() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.uniqueKeys
}

// acquire returns the open database under the read lock. The caller must
// call unlock when done.
func (b *Backend) acquire() (*sql.DB, func(), error) {
	b.mu.RLock()
	if !b.attached {
		b.mu.RUnlock()
		return nil, nil, types.ErrDetached
	}
	return b.db, b.mu.RUnlock, nil
}

// logger returns the logger of the current attachment. Attach replaces
// it under the write lock.
func (b *Backend) logger() *logger.Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.log
}

// timestamp returns the current time truncated to the storage precision.
func (b *Backend) timestamp() time.Time {
	return b.now().UTC().Truncate(time.Microsecond)
}
