package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitymeta/pkg/meta"
	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// entry is the JSON form of one metadata value.
type entry struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Key        string `json:"key"`
	Value      any    `json:"value"`
}

func newSetCmd(a *app) *cobra.Command {
	var parseJSON bool
	cmd := &cobra.Command{
		Use:   "set <type> <id> <key> <value>",
		Short: "Set a metadata value, replacing any previous one",
		Long: `Set stores value under key for the entity identified by type and id.

By default value is stored as given. With --parse-json it is parsed first,
so objects and arrays are stored as structured data.`,
		Example: `  entitymeta set Article 1 title "Hello"
  entitymeta set Article 1 seo '{"title":"Hello"}' --parse-json`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, key := ownerArgs(args), args[2]

			var value any = args[3]
			if parseJSON {
				if err := json.Unmarshal([]byte(args[3]), &value); err != nil {
					return userError(fmt.Errorf("parse value: %w", err))
				}
			}

			return a.withAccessor(cmd, owner, func(ctx context.Context, acc *meta.Accessor) error {
				if err := acc.SetMeta(ctx, key, value); err != nil {
					return err
				}
				stored, err := acc.Get(ctx, key)
				if err != nil {
					return err
				}
				return a.printEntry(cmd, owner, key, stored)
			})
		},
	}
	cmd.Flags().BoolVar(&parseJSON, "parse-json", false, "parse value as JSON before storing")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <id> <key>",
		Short: "Print one metadata value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, key := ownerArgs(args), args[2]
			return a.withAccessor(cmd, owner, func(ctx context.Context, acc *meta.Accessor) error {
				ok, err := acc.Has(ctx, key)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s %s has no key %q: %w", owner.Type, owner.ID, key, types.ErrNotFound)
				}
				value, err := acc.Get(ctx, key)
				if err != nil {
					return err
				}
				return a.printEntry(cmd, owner, key, value)
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <type> <id> [column=value...]",
		Short: "Print all metadata of an entity",
		Long: `List prints every key and value of the entity. Trailing column=value
arguments narrow the result; since=<RFC 3339 time> keeps entries updated at or
after that time.`,
		Example: `  entitymeta list Article 1
  entitymeta list Article 1 key=title
  entitymeta list Article 1 since=2024-01-01T00:00:00Z`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := ownerArgs(args)
			filter, err := parseFilters(args[2:])
			if err != nil {
				return userError(err)
			}
			return a.withAccessor(cmd, owner, func(ctx context.Context, acc *meta.Accessor) error {
				all, err := acc.GetAllMeta(ctx, filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.flags.jsonMode {
					return printJSON(out, all)
				}
				for _, key := range slices.Sorted(maps.Keys(all)) {
					fmt.Fprintf(out, "%s\t%s\n", key, formatValue(all[key]))
				}
				return nil
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete <type> <id> [key]",
		Short: "Delete a metadata key, or every key with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.ExactArgs(2)(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := ownerArgs(args)
			return a.withAccessor(cmd, owner, func(ctx context.Context, acc *meta.Accessor) error {
				var n int64
				if all {
					var err error
					if n, err = acc.DeleteAllMeta(ctx); err != nil {
						return err
					}
				} else if err := acc.DeleteMeta(ctx, args[2]); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				switch {
				case a.flags.jsonMode && all:
					return printJSON(out, map[string]int64{"deleted": n})
				case a.flags.jsonMode:
					return printJSON(out, map[string]string{"deleted": args[2]})
				case all:
					fmt.Fprintf(out, "deleted %d keys\n", n)
				default:
					fmt.Fprintf(out, "deleted %s\n", args[2])
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every key of the entity")
	return cmd
}

func newKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys <type> <id>",
		Short: "Print the metadata keys of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAccessor(cmd, ownerArgs(args), func(ctx context.Context, acc *meta.Accessor) error {
				keys, err := acc.Keys(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.flags.jsonMode {
					return printJSON(out, keys)
				}
				for _, k := range keys {
					fmt.Fprintln(out, k)
				}
				return nil
			})
		},
	}
}

func (a *app) printEntry(cmd *cobra.Command, owner types.OwnerRef, key string, value any) error {
	out := cmd.OutOrStdout()
	if a.flags.jsonMode {
		return printJSON(out, entry{EntityType: owner.Type, EntityID: owner.ID, Key: key, Value: value})
	}
	_, err := fmt.Fprintln(out, formatValue(value))
	return err
}
