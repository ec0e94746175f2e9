// Tests for the SQLite backend lifecycle and schema.
package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// newAttachedBackend returns a backend attached to a fresh temp directory
// and detached when the test ends.
func newAttachedBackend(t *testing.T, opts ...Option) (*Backend, string) {
	t.Helper()
	dir := t.TempDir()
	b := NewBackend(opts...)
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	t.Cleanup(func() { b.Detach() })
	return b, dir
}

// stepClock returns a clock that advances by one second per call.
func stepClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestBackend_Attach(t *testing.T) {
	tmpDir := t.TempDir()

	b := NewBackend()
	config := types.Config{
		Backend: types.BackendSQLite,
		DataDir: tmpDir,
	}

	err := b.Attach(config)
	require.NoError(t, err)
	defer b.Detach()

	_, err = os.Stat(filepath.Join(tmpDir, DBFileName))
	assert.NoError(t, err, "database file should exist")
	assert.True(t, b.UniqueKeys())

	err = b.Attach(config)
	assert.ErrorIs(t, err, types.ErrAlreadyAttached)
}

func TestBackend_AttachInvalidConfig(t *testing.T) {
	b := NewBackend()
	assert.ErrorIs(t, b.Attach(types.Config{}), types.ErrBackendEmpty)
	assert.ErrorIs(t, b.Attach(types.Config{Backend: "postgres"}), types.ErrBackendUnknown)
}

func TestBackend_Detach(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Detach())
	assert.NoError(t, b.Detach(), "second Detach should not error")

	_, err := b.Find(ctx, nil)
	assert.ErrorIs(t, err, types.ErrDetached)
	err = b.Create(ctx, &types.Record{Key: "k", OwnerType: "T", OwnerID: "1"})
	assert.ErrorIs(t, err, types.ErrDetached)
	_, err = b.Delete(ctx, nil)
	assert.ErrorIs(t, err, types.ErrDetached)
	assert.ErrorIs(t, b.Migrate(ctx), types.ErrDetached)
}

func TestBackend_DataSurvivesReattach(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	b := NewBackend()
	require.NoError(t, b.Attach(cfg))
	v := "kept"
	_, err := b.UpdateOrCreate(ctx, types.OwnerRef{Type: "Model", ID: "1"}, "k", &v)
	require.NoError(t, err)
	require.NoError(t, b.Detach())

	require.NoError(t, b.Attach(cfg))
	defer b.Detach()
	recs, err := b.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "kept", recs[0].Text())
}

func TestBackend_MigrateIsIdempotent(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Migrate(ctx))
	require.NoError(t, b.Migrate(ctx))
}

func TestBackend_Rollback(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Rollback(ctx))
	_, err := b.Find(ctx, nil)
	assert.Error(t, err, "table should be gone after rollback")

	require.NoError(t, b.Migrate(ctx))
	recs, err := b.Find(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestBackend_SchemaIndexes(t *testing.T) {
	tests := []struct {
		name       string
		allowDupes bool
		wantUnique bool
	}{
		{name: "unique index by default", allowDupes: false, wantUnique: true},
		{name: "no unique index when duplicates are allowed", allowDupes: true, wantUnique: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackend()
			require.NoError(t, b.Attach(types.Config{
				Backend:            types.BackendSQLite,
				DataDir:            t.TempDir(),
				AllowDuplicateKeys: tt.allowDupes,
			}))
			defer b.Detach()

			rows, err := b.db.Query(`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'meta_data'`)
			require.NoError(t, err)
			defer rows.Close()
			var names []string
			for rows.Next() {
				var n string
				require.NoError(t, rows.Scan(&n))
				names = append(names, n)
			}
			require.NoError(t, rows.Err())

			assert.Contains(t, names, "meta_data_entity_type_entity_id_index")
			if tt.wantUnique {
				assert.Contains(t, names, "meta_data_entity_key_unique")
			} else {
				assert.NotContains(t, names, "meta_data_entity_key_unique")
			}
			assert.Equal(t, tt.wantUnique, b.UniqueKeys())
		})
	}
}

func TestBackend_UniqueIndexDroppedWhenRelaxed(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	require.NoError(t, b.Detach())

	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir, AllowDuplicateKeys: true}))
	defer b.Detach()

	for range 2 {
		require.NoError(t, b.Create(ctx, &types.Record{Key: "dup", OwnerType: "T", OwnerID: "1"}))
	}
	recs, err := b.Find(ctx, types.NewQuery().WhereEq(types.ColumnKey, "dup"))
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestBackend_AttachStrictOverDuplicates(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	owner := types.OwnerRef{Type: "T", ID: "1"}

	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir, AllowDuplicateKeys: true}))
	for range 2 {
		require.NoError(t, b.Create(ctx, &types.Record{Key: "dup", OwnerType: owner.Type, OwnerID: owner.ID}))
	}
	require.NoError(t, b.Create(ctx, &types.Record{Key: "single", OwnerType: owner.Type, OwnerID: owner.ID}))
	require.NoError(t, b.Detach())

	err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir})
	require.ErrorIs(t, err, types.ErrDuplicateKeys)
	assert.Contains(t, err.Error(), "allow_duplicate_keys")
	assert.Contains(t, err.Error(), "1 owner keys")

	_, err = b.Find(ctx, nil)
	assert.ErrorIs(t, err, types.ErrDetached)

	// The relaxed config still opens the same file with its rows intact.
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir, AllowDuplicateKeys: true}))
	defer b.Detach()
	recs, err := b.Find(ctx, types.NewQuery().WhereEq(types.ColumnKey, "dup"))
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestBackend_OperationsDuringReattach(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	b := NewBackend()
	require.NoError(t, b.Attach(cfg))
	defer b.Detach()
	require.NoError(t, b.Create(ctx, &types.Record{Key: "k", OwnerType: "T", OwnerID: "1"}))

	var wg sync.WaitGroup
	done := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				_, err := b.Find(ctx, types.NewQuery().WhereEq(types.ColumnKey, "k"))
				if err != nil {
					assert.ErrorIs(t, err, types.ErrDetached)
				}
				_, err = b.UpdateOrCreate(ctx, types.OwnerRef{Type: "T", ID: "1"}, "k", nil)
				if err != nil {
					assert.ErrorIs(t, err, types.ErrDetached)
				}
			}
		}()
	}

	for range 20 {
		require.NoError(t, b.Detach())
		require.NoError(t, b.Attach(cfg))
	}
	close(done)
	wg.Wait()

	recs, err := b.Find(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
