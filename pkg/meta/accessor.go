package meta

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/entitymeta/pkg/metrics"
	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// Operation names used for logging and metrics labels.
const (
	opSet       = "set"
	opGet       = "get"
	opGetAll    = "get_all"
	opDelete    = "delete"
	opDeleteAll = "delete_all"
	opKeys      = "keys"
)

// Accessor reads and writes the metadata of one owner. Every query it
// issues is scoped to the owner's (entity_type, entity_id) pair.
//
// The owner is consulted on each call, so a host whose identifier is
// assigned after construction (on first save, say) still scopes correctly.
type Accessor struct {
	store   types.Store
	owner   types.Owner
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithLogger sets the logger used for per-operation debug events.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Accessor) {
		a.log = l.With().Str("component", "meta").Logger()
	}
}

// WithMetrics records operation counts and durations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Accessor) {
		a.metrics = m
	}
}

// For returns an Accessor for owner's metadata in store.
func For(store types.Store, owner types.Owner, opts ...Option) *Accessor {
	a := &Accessor{
		store: store,
		owner: owner,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Owner returns the scope the accessor currently operates on.
func (a *Accessor) Owner() types.OwnerRef {
	if a.owner == nil {
		return types.OwnerRef{}
	}
	return types.RefOf(a.owner)
}

// SetMeta stores value under key, replacing any previous value. Structured
// values are JSON-encoded first.
func (a *Accessor) SetMeta(ctx context.Context, key string, value any) (err error) {
	defer a.observe(opSet, key, time.Now(), &err)

	if key == "" {
		return types.ErrInvalidKey
	}
	if err := types.ValidateOwner(a.owner); err != nil {
		return err
	}

	encoded, err := EncodeIfEncodable(value)
	if err != nil {
		return fmt.Errorf("encoding metadata %q: %w", key, err)
	}
	text, err := toColumn(encoded)
	if err != nil {
		return fmt.Errorf("encoding metadata %q: %w", key, err)
	}

	if u, ok := a.store.(types.Upserter); ok {
		if _, err := u.UpdateOrCreate(ctx, a.Owner(), key, text); err != nil {
			return fmt.Errorf("upserting metadata %q: %w", key, err)
		}
		return nil
	}
	return a.updateOrCreate(ctx, key, text)
}

// updateOrCreate is the read-then-write upsert used when the store cannot
// upsert atomically. Two concurrent callers may both insert.
func (a *Accessor) updateOrCreate(ctx context.Context, key string, text *string) error {
	recs, err := a.store.Find(ctx, a.scope().WhereEq(types.ColumnKey, key).Limit(1))
	if err != nil {
		return fmt.Errorf("finding metadata %q: %w", key, err)
	}
	if len(recs) > 0 {
		rec := recs[0]
		rec.Value = text
		if err := a.store.Update(ctx, rec); err != nil {
			return fmt.Errorf("updating metadata %q: %w", key, err)
		}
		return nil
	}

	ref := a.Owner()
	rec := &types.Record{
		Key:       key,
		Value:     text,
		OwnerType: ref.Type,
		OwnerID:   ref.ID,
	}
	if err := a.store.Create(ctx, rec); err != nil {
		return fmt.Errorf("creating metadata %q: %w", key, err)
	}
	return nil
}

// GetMeta looks up metadata for the owner.
//
// An empty key matches every key. filter, when non-nil, further narrows the
// lookup. With single set, the decoded value of the first matching record is
// returned, or nil when nothing matches. Otherwise the result is a
// map[string]any of key to decoded value over all matching records; when
// several records share a key the last one in result order wins, which is
// the highest id unless filter sorts otherwise.
func (a *Accessor) GetMeta(ctx context.Context, key string, filter types.Refinement, single bool) (result any, err error) {
	op := opGet
	if !single {
		op = opGetAll
	}
	defer a.observe(op, key, time.Now(), &err)

	if err := types.ValidateOwner(a.owner); err != nil {
		return nil, err
	}

	q := a.scope()
	if key != "" {
		q.WhereEq(types.ColumnKey, key)
	}
	q.Apply(filter)

	if single {
		q.Limit(1)
	}
	recs, err := a.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}
	a.metrics.AddRecordsRead(len(recs))

	if single {
		if len(recs) == 0 {
			return nil, nil
		}
		return decodeRecord(recs[0]), nil
	}

	out := make(map[string]any, len(recs))
	for _, rec := range recs {
		out[rec.Key] = decodeRecord(rec)
	}
	return out, nil
}

// Get returns the decoded value stored under key, or nil when absent.
func (a *Accessor) Get(ctx context.Context, key string) (any, error) {
	return a.GetMeta(ctx, key, nil, true)
}

// GetAllMeta returns every metadata entry of the owner, narrowed by filter
// when non-nil. The map is never nil on success.
func (a *Accessor) GetAllMeta(ctx context.Context, filter types.Refinement) (map[string]any, error) {
	result, err := a.GetMeta(ctx, "", filter, false)
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

// Has reports whether a record exists for key. A record holding NULL
// counts as present.
func (a *Accessor) Has(ctx context.Context, key string) (bool, error) {
	rec, err := a.first(ctx, key)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// GetInto decodes the value stored under key into dst, which must be a
// pointer. It reports false, leaving dst untouched, when no record exists.
func (a *Accessor) GetInto(ctx context.Context, key string, dst any) (bool, error) {
	rec, err := a.first(ctx, key)
	if err != nil || rec == nil {
		return false, err
	}
	if rec.Value == nil {
		return true, DecodeInto("null", dst)
	}
	if err := DecodeInto(*rec.Value, dst); err != nil {
		return true, fmt.Errorf("decoding metadata %q: %w", key, err)
	}
	return true, nil
}

func (a *Accessor) first(ctx context.Context, key string) (rec *types.Record, err error) {
	defer a.observe(opGet, key, time.Now(), &err)

	if key == "" {
		return nil, types.ErrInvalidKey
	}
	if err := types.ValidateOwner(a.owner); err != nil {
		return nil, err
	}
	recs, err := a.store.Find(ctx, a.scope().WhereEq(types.ColumnKey, key).Limit(1))
	if err != nil {
		return nil, fmt.Errorf("fetching metadata %q: %w", key, err)
	}
	a.metrics.AddRecordsRead(len(recs))
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// Keys returns the distinct keys of the owner in sorted order.
func (a *Accessor) Keys(ctx context.Context) (keys []string, err error) {
	defer a.observe(opKeys, "", time.Now(), &err)

	if err := types.ValidateOwner(a.owner); err != nil {
		return nil, err
	}
	recs, err := a.store.Find(ctx, a.scope())
	if err != nil {
		return nil, fmt.Errorf("fetching metadata keys: %w", err)
	}
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		seen[rec.Key] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

// SetMany calls SetMeta for each entry in key order. It stops at the first
// failure; earlier entries stay written.
func (a *Accessor) SetMany(ctx context.Context, values map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if err := a.SetMeta(ctx, key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMeta removes every record stored under key. Deleting an absent key
// is not an error.
func (a *Accessor) DeleteMeta(ctx context.Context, key string) (err error) {
	defer a.observe(opDelete, key, time.Now(), &err)

	if key == "" {
		return types.ErrInvalidKey
	}
	if err := types.ValidateOwner(a.owner); err != nil {
		return err
	}
	if _, err := a.store.Delete(ctx, a.scope().WhereEq(types.ColumnKey, key)); err != nil {
		return fmt.Errorf("deleting metadata %q: %w", key, err)
	}
	return nil
}

// DeleteAllMeta removes every record of the owner and reports how many
// went away. Hosts call it when the owner itself is deleted.
func (a *Accessor) DeleteAllMeta(ctx context.Context) (n int64, err error) {
	defer a.observe(opDeleteAll, "", time.Now(), &err)

	if err := types.ValidateOwner(a.owner); err != nil {
		return 0, err
	}
	n, err = a.store.Delete(ctx, a.scope())
	if err != nil {
		return 0, fmt.Errorf("deleting metadata: %w", err)
	}
	return n, nil
}

// scope returns a fresh query restricted to the owner. Callers validate the
// owner first.
func (a *Accessor) scope() *types.Query {
	return types.NewQuery().
		WhereEq(types.ColumnEntityType, a.owner.MetaOwnerType()).
		WhereEq(types.ColumnEntityID, a.owner.MetaOwnerID())
}

func (a *Accessor) observe(op, key string, start time.Time, errp *error) {
	d := time.Since(start)
	a.metrics.Observe(op, d, *errp)

	ev := a.log.Debug()
	if *errp != nil {
		ev = a.log.Warn().Err(*errp)
	}
	if a.owner != nil {
		ev = ev.Str("entity_type", a.owner.MetaOwnerType()).Str("entity_id", a.owner.MetaOwnerID())
	}
	ev.Str("operation", op).
		Str("key", key).
		Dur("duration", d).
		Msg("metadata operation")
}
