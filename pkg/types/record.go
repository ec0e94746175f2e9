package types

import "time"

// Column names of the metadata table. Queries and refinements refer to
// records by these names.
const (
	ColumnID         = "id"
	ColumnKey        = "key"
	ColumnValue      = "value"
	ColumnEntityType = "entity_type"
	ColumnEntityID   = "entity_id"
	ColumnCreatedAt  = "created_at"
	ColumnUpdatedAt  = "updated_at"
)

// Columns lists every column of the metadata table in schema order.
var Columns = []string{
	ColumnID,
	ColumnKey,
	ColumnValue,
	ColumnEntityID,
	ColumnEntityType,
	ColumnCreatedAt,
	ColumnUpdatedAt,
}

// TimeLayout is the storage format of created_at and updated_at. It is fixed
// width so that text comparison orders timestamps correctly.
const TimeLayout = "2006-01-02 15:04:05.000000"

// FormatTime renders t in TimeLayout, in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout timestamp as UTC.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}

// MetadataTable is the name of the shared polymorphic table.
const MetadataTable = "meta_data"

// Record is one stored key/value pair bound to one owner.
type Record struct {
	// ID is the surrogate identifier assigned by the store on Create.
	ID int64 `json:"id"`

	// Key names the entry within the owner scope. Never empty.
	Key string `json:"key"`

	// Value is the serialized value; nil means SQL NULL.
	Value *string `json:"value"`

	// OwnerType and OwnerID identify the owning entity.
	OwnerType string `json:"entity_type"`
	OwnerID   string `json:"entity_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Owner returns the scope of the record as an OwnerRef.
func (r *Record) Owner() OwnerRef {
	return OwnerRef{Type: r.OwnerType, ID: r.OwnerID}
}

// Text returns the stored value, or the empty string for NULL.
func (r *Record) Text() string {
	if r.Value == nil {
		return ""
	}
	return *r.Value
}

// Validate checks the fields a store requires before inserting the record.
func (r *Record) Validate() error {
	if r.Key == "" {
		return ErrInvalidKey
	}
	if r.OwnerType == "" || r.OwnerID == "" {
		return ErrInvalidOwner
	}
	return nil
}
