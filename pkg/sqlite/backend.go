// Package sqlite provides the public API for the SQLite metadata backend.
// This package exposes the factory function for creating SQLite backends
// while keeping implementation details internal.
package sqlite

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/entitymeta/internal/sqlite"
)

// Backend is the SQLite implementation of types.Store and types.Upserter.
type Backend = sqlite.Backend

// ImportResult counts the outcome of Backend.Import.
type ImportResult = sqlite.ImportResult

// DBFileName is the database file created inside the data directory.
const DBFileName = sqlite.DBFileName

// Option configures a Backend.
type Option = sqlite.Option

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	backend := sqlite.NewBackend()
//	err := backend.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".entitymeta-db",
//	})
//	defer backend.Detach()
func NewBackend(opts ...Option) *Backend {
	return sqlite.NewBackend(opts...)
}

// WithLogger routes backend logging to l.
func WithLogger(l zerolog.Logger) Option {
	return sqlite.WithLogger(l)
}

// WithClock replaces time.Now as the source of record timestamps.
func WithClock(now func() time.Time) Option {
	return sqlite.WithClock(now)
}
