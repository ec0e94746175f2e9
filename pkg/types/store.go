package types

import (
	"context"
	"errors"
)

// Store is the persistence contract the metadata accessor consumes. It
// knows nothing about encoding; values are text or NULL.
type Store interface {
	// Create inserts rec, assigning ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, rec *Record) error

	// Find returns every record matching q, ordered by q's sort columns and
	// then by id ascending. A nil q matches every record. No match yields
	// an empty slice, not an error.
	Find(ctx context.Context, q *Query) ([]*Record, error)

	// Update overwrites Key, Value, OwnerType and OwnerID of the record
	// identified by rec.ID and refreshes UpdatedAt.
	// Returns ErrNotFound if no record has that ID.
	Update(ctx context.Context, rec *Record) error

	// Delete removes every record matching q and reports how many rows
	// went away. Zero rows is not an error.
	Delete(ctx context.Context, q *Query) (int64, error)
}

// Upserter is implemented by stores that can update-or-create a record for
// (owner, key) in one atomic step. The accessor prefers it over the
// read-then-write fallback.
type Upserter interface {
	UpdateOrCreate(ctx context.Context, owner OwnerRef, key string, value *string) (*Record, error)
}

// Store operation errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidKey    = errors.New("metadata key must not be empty")
	ErrInvalidOwner  = errors.New("owner type and id must not be empty")
	ErrInvalidFilter = errors.New("invalid query condition")
	ErrInvalidData   = errors.New("invalid record data")
)

// Codec errors.
var (
	ErrUnencodable  = errors.New("value cannot be encoded")
	ErrTypeMismatch = errors.New("stored value does not fit the destination")
)

// Backend lifecycle errors.
var (
	ErrDetached        = errors.New("backend is detached")
	ErrAlreadyAttached = errors.New("backend is already attached")

	// ErrDuplicateKeys means a database written with duplicate keys
	// allowed was attached with them disallowed.
	ErrDuplicateKeys = errors.New("stored metadata has duplicate keys")
)
