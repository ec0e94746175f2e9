// Package entitymeta holds build information shared by the library and the
// entitymeta CLI.
package entitymeta

// Version is the release of this module.
const Version = "0.1.0"

// ModulePath is the import path of this module.
const ModulePath = "github.com/mesh-intelligence/entitymeta"
