package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Create inserts rec and fills in its ID and timestamps. With unique keys
// enabled, a second record for the same (owner, key) fails with the
// driver's constraint error.
func (b *Backend) Create(ctx context.Context, rec *types.Record) (err error) {
	start := time.Now()
	log := b.logger()
	defer func() { log.LogDbOperation("create", time.Since(start), 1, err) }()

	if rec == nil {
		return types.ErrInvalidData
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	db, unlock, err := b.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	now := b.timestamp()
	res, err := db.ExecContext(ctx,
		`INSERT INTO meta_data ("key", value, entity_id, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Key, nullable(rec.Value), rec.OwnerID, rec.OwnerType, types.FormatTime(now), types.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting metadata: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted id: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// Find returns the records matching q.
func (b *Backend) Find(ctx context.Context, q *types.Query) (recs []*types.Record, err error) {
	start := time.Now()
	log := b.logger()
	defer func() { log.LogDbOperation("find", time.Since(start), int64(len(recs)), err) }()

	where, args, err := buildWhere(q)
	if err != nil {
		return nil, err
	}
	db, unlock, err := b.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	return findRecords(ctx, db, "SELECT "+selectColumns+" FROM meta_data"+where+buildOrder(q), args...)
}

// Update overwrites the record identified by rec.ID and refreshes
// rec.UpdatedAt.
func (b *Backend) Update(ctx context.Context, rec *types.Record) (err error) {
	start := time.Now()
	log := b.logger()
	defer func() { log.LogDbOperation("update", time.Since(start), 1, err) }()

	if rec == nil || rec.ID == 0 {
		return types.ErrInvalidData
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	db, unlock, err := b.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	now := b.timestamp()
	res, err := db.ExecContext(ctx,
		`UPDATE meta_data SET "key" = ?, value = ?, entity_id = ?, entity_type = ?, updated_at = ? WHERE id = ?`,
		rec.Key, nullable(rec.Value), rec.OwnerID, rec.OwnerType, types.FormatTime(now), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating metadata %d: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	rec.UpdatedAt = now
	return nil
}

// Delete removes the records matching q. A nil or empty q deletes every
// record.
func (b *Backend) Delete(ctx context.Context, q *types.Query) (n int64, err error) {
	start := time.Now()
	log := b.logger()
	defer func() { log.LogDbOperation("delete", time.Since(start), n, err) }()

	where, args, err := buildWhere(q)
	if err != nil {
		return 0, err
	}
	db, unlock, err := b.acquire()
	if err != nil {
		return 0, err
	}
	defer unlock()

	res, err := db.ExecContext(ctx, "DELETE FROM meta_data"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting metadata: %w", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}

// UpdateOrCreate sets the value of the (owner, key) record, inserting it
// when missing. With unique keys this is one INSERT ... ON CONFLICT
// statement; otherwise a transaction reads the first matching record and
// updates or inserts.
func (b *Backend) UpdateOrCreate(ctx context.Context, owner types.OwnerRef, key string, value *string) (rec *types.Record, err error) {
	start := time.Now()
	log := b.logger()
	defer func() { log.LogDbOperation("upsert", time.Since(start), 1, err) }()

	rec = &types.Record{Key: key, Value: value, OwnerType: owner.Type, OwnerID: owner.ID}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	db, unlock, err := b.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := b.timestamp()
	if b.uniqueKeys {
		return upsertUnique(ctx, db, rec, now, now)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	rec, err = upsertScan(ctx, tx, rec, now, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing upsert: %w", err)
	}
	return rec, nil
}

// upsertUnique relies on the unique index. On conflict only value and
// updated_at change.
func upsertUnique(ctx context.Context, q querier, rec *types.Record, createdAt, updatedAt time.Time) (*types.Record, error) {
	row := q.QueryRowContext(ctx,
		`INSERT INTO meta_data ("key", value, entity_id, entity_type, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (entity_type, entity_id, "key") DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
RETURNING `+selectColumns,
		rec.Key, nullable(rec.Value), rec.OwnerID, rec.OwnerType, types.FormatTime(createdAt), types.FormatTime(updatedAt),
	)
	out, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("upserting metadata %q: %w", rec.Key, err)
	}
	return out, nil
}

// upsertScan is the read-then-write upsert for schemas without the unique
// index. Run it inside a transaction.
func upsertScan(ctx context.Context, q querier, rec *types.Record, createdAt, updatedAt time.Time) (*types.Record, error) {
	var id int64
	var created string
	err := q.QueryRowContext(ctx,
		`SELECT id, created_at FROM meta_data WHERE entity_type = ? AND entity_id = ? AND "key" = ? ORDER BY id ASC LIMIT 1`,
		rec.OwnerType, rec.OwnerID, rec.Key,
	).Scan(&id, &created)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := q.ExecContext(ctx,
			`INSERT INTO meta_data ("key", value, entity_id, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.Key, nullable(rec.Value), rec.OwnerID, rec.OwnerType, types.FormatTime(createdAt), types.FormatTime(updatedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting metadata %q: %w", rec.Key, err)
		}
		if rec.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("reading inserted id: %w", err)
		}
		rec.CreatedAt = createdAt
	case err != nil:
		return nil, fmt.Errorf("checking metadata existence: %w", err)
	default:
		if _, err := q.ExecContext(ctx,
			`UPDATE meta_data SET value = ?, updated_at = ? WHERE id = ?`,
			nullable(rec.Value), types.FormatTime(updatedAt), id,
		); err != nil {
			return nil, fmt.Errorf("updating metadata %q: %w", rec.Key, err)
		}
		rec.ID = id
		if rec.CreatedAt, err = types.ParseTime(created); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
	}
	rec.UpdatedAt = updatedAt
	return rec, nil
}

func findRecords(ctx context.Context, q querier, query string, args ...any) ([]*types.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	defer rows.Close()

	recs := []*types.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata: %w", err)
	}
	return recs, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord converts one row into a *types.Record.
func scanRecord(row scanner) (*types.Record, error) {
	var rec types.Record
	var value sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&rec.ID, &rec.Key, &value, &rec.OwnerID, &rec.OwnerType, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning metadata: %w", err)
	}
	if value.Valid {
		rec.Value = &value.String
	}
	var err error
	if rec.CreatedAt, err = types.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = types.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

// nullable maps a nil *string to SQL NULL.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
