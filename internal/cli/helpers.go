package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitymeta/pkg/meta"
	"github.com/mesh-intelligence/entitymeta/pkg/sqlite"
	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// attachBackend opens the configured store. The caller must Detach it.
func (a *app) attachBackend() (*sqlite.Backend, types.Config, error) {
	cfg, err := a.storeConfig()
	if err != nil {
		return nil, cfg, sysError(err)
	}
	backend := sqlite.NewBackend(sqlite.WithLogger(a.log.Zerolog()))
	if err := backend.Attach(cfg); err != nil {
		return nil, cfg, classify(fmt.Errorf("attach backend: %w", err))
	}
	return backend, cfg, nil
}

// withAccessor runs fn with an accessor for owner over a freshly attached
// backend.
func (a *app) withAccessor(cmd *cobra.Command, owner types.OwnerRef, fn func(context.Context, *meta.Accessor) error) error {
	if err := types.ValidateOwner(owner); err != nil {
		return userError(fmt.Errorf("owner %q/%q: %w", owner.Type, owner.ID, err))
	}
	backend, _, err := a.attachBackend()
	if err != nil {
		return err
	}
	defer backend.Detach()

	acc := meta.For(backend, owner, meta.WithLogger(a.log.Zerolog()))
	return classify(fn(cmd.Context(), acc))
}

func ownerArgs(args []string) types.OwnerRef {
	return types.OwnerRef{Type: args[0], ID: args[1]}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatValue renders a decoded metadata value for human output. Strings
// print verbatim, nil as null and structured values as compact JSON.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// parseFilters turns column=value arguments into a refinement. The
// pseudo-column "since" takes an RFC 3339 time and matches records updated
// at or after it.
func parseFilters(args []string) (types.Refinement, error) {
	var rs []types.Refinement
	for _, arg := range args {
		column, value, ok := strings.Cut(arg, "=")
		if !ok || column == "" {
			return nil, fmt.Errorf("%w: expected column=value, got %q", types.ErrInvalidFilter, arg)
		}
		if column == "since" {
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return nil, fmt.Errorf("%w: since: %w", types.ErrInvalidFilter, err)
			}
			rs = append(rs, types.UpdatedSince(t))
			continue
		}
		rs = append(rs, types.Eq(column, value))
	}
	return types.Refinements(rs...), nil
}
