package types

// Owner is any entity that metadata can be attached to. The pair
// (MetaOwnerType, MetaOwnerID) scopes every record the owner sees.
type Owner interface {
	// MetaOwnerType returns the stable type discriminator of the owner,
	// stored in the entity_type column.
	MetaOwnerType() string

	// MetaOwnerID returns the identifier of the owner instance, stored in
	// the entity_id column.
	MetaOwnerID() string
}

// OwnerRef is a value Owner for callers that only know the type and id,
// such as the CLI or a background job that never loads the host entity.
type OwnerRef struct {
	Type string `json:"entity_type"`
	ID   string `json:"entity_id"`
}

var _ Owner = OwnerRef{}

// MetaOwnerType implements Owner.
func (o OwnerRef) MetaOwnerType() string { return o.Type }

// MetaOwnerID implements Owner.
func (o OwnerRef) MetaOwnerID() string { return o.ID }

// RefOf copies the scope of any Owner into an OwnerRef.
func RefOf(o Owner) OwnerRef {
	return OwnerRef{Type: o.MetaOwnerType(), ID: o.MetaOwnerID()}
}

// ValidateOwner returns ErrInvalidOwner when the owner is nil or either half
// of its scope is empty.
func ValidateOwner(o Owner) error {
	if o == nil {
		return ErrInvalidOwner
	}
	if o.MetaOwnerType() == "" || o.MetaOwnerID() == "" {
		return ErrInvalidOwner
	}
	return nil
}
