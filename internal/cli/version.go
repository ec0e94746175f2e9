package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitymeta/pkg/entitymeta"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the entitymeta version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": entitymeta.Version,
					"module":  entitymeta.ModulePath,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entitymeta v%s\nmodule: %s\n", entitymeta.Version, entitymeta.ModulePath)
			return nil
		},
	}
}
