// Package meta gives any entity a key/value metadata store backed by one
// shared polymorphic table.
//
// A host type embeds *Accessor, built with For from a types.Store and the
// host itself as the types.Owner:
//
//	type Article struct {
//	    ID int64
//	    *meta.Accessor
//	}
//
//	func (a *Article) MetaOwnerType() string { return meta.TypeName(a) }
//	func (a *Article) MetaOwnerID() string   { return strconv.FormatInt(a.ID, 10) }
//
//	article := &Article{ID: 1}
//	article.Accessor = meta.For(store, article)
//	err := article.SetMeta(ctx, "seo", map[string]any{"title": "Hello"})
//
// Structured values (maps, slices, structs) are stored as JSON and decoded
// back to map[string]any or []any on read. Scalars are stored as text.
package meta
