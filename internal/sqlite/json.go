package sqlite

import (
	"time"

	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// metadataJSON is one line of a metadata JSONL export.
type metadataJSON struct {
	Key        string  `json:"key"`
	Value      *string `json:"value"`
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	CreatedAt  string  `json:"created_at,omitempty"`
	UpdatedAt  string  `json:"updated_at,omitempty"`
}

func toJSON(rec *types.Record) metadataJSON {
	return metadataJSON{
		Key:        rec.Key,
		Value:      rec.Value,
		EntityType: rec.OwnerType,
		EntityID:   rec.OwnerID,
		CreatedAt:  types.FormatTime(rec.CreatedAt),
		UpdatedAt:  types.FormatTime(rec.UpdatedAt),
	}
}

// toRecord converts an imported line back into a record. Missing or
// unparseable timestamps fall back to fallback.
func (m metadataJSON) toRecord(fallback time.Time) (*types.Record, error) {
	rec := &types.Record{
		Key:       m.Key,
		Value:     m.Value,
		OwnerType: m.EntityType,
		OwnerID:   m.EntityID,
		CreatedAt: fallback,
		UpdatedAt: fallback,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if t, err := types.ParseTime(m.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := types.ParseTime(m.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}
