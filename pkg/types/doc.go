// Package types defines the metadata record, the owner contract, the query
// and refinement model, the Store interface consumed by the accessor, and
// the standard errors shared by every entitymeta package.
package types
