// Tests for record CRUD, queries and upserts on the SQLite backend.
package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

func strPtr(s string) *string { return &s }

func TestRecords_CRUD(t *testing.T) {
	start := time.Date(2024, 2, 24, 6, 9, 33, 0, time.UTC)
	b, _ := newAttachedBackend(t, WithClock(stepClock(start)))
	ctx := context.Background()

	rec := &types.Record{Key: "color", Value: strPtr("blue"), OwnerType: "Model", OwnerID: "1"}
	require.NoError(t, b.Create(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.Equal(t, start.Add(time.Second), rec.CreatedAt)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)

	recs, err := b.Find(ctx, types.NewQuery().WhereEq(types.ColumnKey, "color"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec, recs[0])

	rec.Value = strPtr("red")
	require.NoError(t, b.Update(ctx, rec))
	assert.Equal(t, start.Add(2*time.Second), rec.UpdatedAt)

	recs, err = b.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "red", recs[0].Text())
	assert.Equal(t, start.Add(time.Second), recs[0].CreatedAt, "created_at must not change on update")
	assert.Equal(t, start.Add(2*time.Second), recs[0].UpdatedAt)

	n, err := b.Delete(ctx, types.NewQuery().WhereEq(types.ColumnID, rec.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err = b.Find(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NotNil(t, recs, "Find returns an empty slice, not nil")
}

func TestRecords_CreateValidation(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		rec     *types.Record
		wantErr error
	}{
		{name: "nil record", rec: nil, wantErr: types.ErrInvalidData},
		{name: "empty key", rec: &types.Record{OwnerType: "T", OwnerID: "1"}, wantErr: types.ErrInvalidKey},
		{name: "empty owner type", rec: &types.Record{Key: "k", OwnerID: "1"}, wantErr: types.ErrInvalidOwner},
		{name: "empty owner id", rec: &types.Record{Key: "k", OwnerType: "T"}, wantErr: types.ErrInvalidOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, b.Create(ctx, tt.rec), tt.wantErr)
		})
	}
}

func TestRecords_CreateDuplicateFailsWithUniqueKeys(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Create(ctx, &types.Record{Key: "k", OwnerType: "T", OwnerID: "1"}))
	err := b.Create(ctx, &types.Record{Key: "k", OwnerType: "T", OwnerID: "1"})
	assert.Error(t, err)
}

func TestRecords_UpdateMissing(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()

	err := b.Update(ctx, &types.Record{ID: 42, Key: "k", OwnerType: "T", OwnerID: "1"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	err = b.Update(ctx, &types.Record{Key: "k", OwnerType: "T", OwnerID: "1"})
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func TestRecords_NullValue(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Create(ctx, &types.Record{Key: "empty", OwnerType: "T", OwnerID: "1"}))

	recs, err := b.Find(ctx, types.NewQuery().WhereNull(types.ColumnValue))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Value)
}

func TestRecords_FindQueries(t *testing.T) {
	b, _ := newAttachedBackend(t, WithClock(stepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	ctx := context.Background()

	seed := []struct{ owner, key, value string }{
		{"1", "a", "apple"},
		{"1", "b", "banana"},
		{"1", "c", "cherry"},
		{"2", "a", "avocado"},
	}
	for _, s := range seed {
		_, err := b.UpdateOrCreate(ctx, types.OwnerRef{Type: "Model", ID: s.owner}, s.key, strPtr(s.value))
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		query *types.Query
		want  []string
	}{
		{
			name:  "nil query returns all in id order",
			query: nil,
			want:  []string{"apple", "banana", "cherry", "avocado"},
		},
		{
			name:  "equality on owner",
			query: types.NewQuery().WhereEq(types.ColumnEntityID, "2"),
			want:  []string{"avocado"},
		},
		{
			name:  "in on key",
			query: types.NewQuery().WhereIn(types.ColumnKey, "b", "c"),
			want:  []string{"banana", "cherry"},
		},
		{
			name:  "empty in matches nothing",
			query: types.NewQuery().WhereIn(types.ColumnKey),
			want:  []string{},
		},
		{
			name:  "like on value",
			query: types.NewQuery().WhereLike(types.ColumnValue, "a%"),
			want:  []string{"apple", "avocado"},
		},
		{
			name:  "not equal",
			query: types.NewQuery().WhereEq(types.ColumnEntityID, "1").Where(types.ColumnKey, types.OpNe, "a"),
			want:  []string{"banana", "cherry"},
		},
		{
			name:  "order desc with limit",
			query: types.NewQuery().OrderBy(types.ColumnKey, true).Limit(2),
			want:  []string{"cherry", "banana"},
		},
		{
			name:  "updated at comparison",
			query: types.NewQuery().Apply(types.UpdatedSince(time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC))),
			want:  []string{"cherry", "avocado"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := b.Find(ctx, tt.query)
			require.NoError(t, err)
			got := make([]string, 0, len(recs))
			for _, r := range recs {
				got = append(got, r.Text())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecords_FindRejectsInvalidFilter(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query *types.Query
	}{
		{name: "unknown column", query: types.NewQuery().WhereEq("password", "x")},
		{name: "unknown operator", query: types.NewQuery().Where(types.ColumnKey, "~", "x")},
		{name: "nil comparison value", query: types.NewQuery().WhereEq(types.ColumnKey, nil)},
		{name: "unknown order column", query: types.NewQuery().OrderBy("1; DROP TABLE meta_data", false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Find(ctx, tt.query)
			assert.ErrorIs(t, err, types.ErrInvalidFilter)
			_, err = b.Delete(ctx, tt.query)
			assert.ErrorIs(t, err, types.ErrInvalidFilter)
		})
	}
}

func TestRecords_UpdateOrCreate(t *testing.T) {
	for _, allowDupes := range []bool{false, true} {
		name := "unique keys"
		if allowDupes {
			name = "read then write"
		}
		t.Run(name, func(t *testing.T) {
			start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			b := NewBackend(WithClock(stepClock(start)))
			require.NoError(t, b.Attach(types.Config{
				Backend:            types.BackendSQLite,
				DataDir:            t.TempDir(),
				AllowDuplicateKeys: allowDupes,
			}))
			defer b.Detach()
			ctx := context.Background()
			owner := types.OwnerRef{Type: "Model", ID: "1"}

			first, err := b.UpdateOrCreate(ctx, owner, "k", strPtr("v1"))
			require.NoError(t, err)
			second, err := b.UpdateOrCreate(ctx, owner, "k", strPtr("v2"))
			require.NoError(t, err)

			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, "v2", second.Text())
			assert.Equal(t, first.CreatedAt, second.CreatedAt)
			assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

			recs, err := b.Find(ctx, nil)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "v2", recs[0].Text())
		})
	}
}

func TestRecords_UpdateOrCreateValidation(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()

	_, err := b.UpdateOrCreate(ctx, types.OwnerRef{Type: "T", ID: "1"}, "", nil)
	assert.ErrorIs(t, err, types.ErrInvalidKey)
	_, err = b.UpdateOrCreate(ctx, types.OwnerRef{}, "k", nil)
	assert.ErrorIs(t, err, types.ErrInvalidOwner)
}

func TestRecords_ConcurrentUpsertKeepsOneRow(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()
	owner := types.OwnerRef{Type: "Model", ID: "1"}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := string(rune('a' + i))
			if _, err := b.UpdateOrCreate(ctx, owner, "shared", &v); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	recs, err := b.Find(ctx, types.NewQuery().WhereEq(types.ColumnKey, "shared"))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRecords_DeleteScoped(t *testing.T) {
	b, _ := newAttachedBackend(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2"} {
		_, err := b.UpdateOrCreate(ctx, types.OwnerRef{Type: "Model", ID: id}, "k", strPtr("v"))
		require.NoError(t, err)
	}

	n, err := b.Delete(ctx, types.NewQuery().WhereEq(types.ColumnEntityID, "1").WhereEq(types.ColumnKey, "k"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = b.Delete(ctx, types.NewQuery().WhereEq(types.ColumnEntityID, "1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "deleting nothing is not an error")

	recs, err := b.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].OwnerID)
}
