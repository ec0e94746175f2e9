package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

func newExportCmd(a *app) *cobra.Command {
	var entityType, entityID string
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write metadata records as JSON lines",
		Long: `Export writes one JSON object per metadata record, to file when given and
to standard output otherwise. Files are replaced atomically.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := types.NewQuery()
			if entityType != "" {
				q.WhereEq(types.ColumnEntityType, entityType)
			}
			if entityID != "" {
				q.WhereEq(types.ColumnEntityID, entityID)
			}

			backend, _, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			ctx := cmd.Context()
			if len(args) == 0 {
				_, err := backend.Export(ctx, cmd.OutOrStdout(), q)
				return classify(err)
			}

			n, err := backend.ExportFile(ctx, args[0], q)
			if err != nil {
				return classify(err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"exported": n, "file": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", n, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&entityType, "type", "", "only export records of this entity type")
	cmd.Flags().StringVar(&entityID, "id", "", "only export records of this entity id")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Read metadata records from a JSON lines file",
		Long: `Import upserts every record of file by entity and key. Lines that are not
valid records are skipped and counted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, _, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			res, err := backend.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return classify(err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records, skipped %d\n", res.Imported, res.Skipped)
			return nil
		},
	}
}
