package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitymeta/pkg/sqlite"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize entitymeta storage",
		Long:  "Create the configuration and data directories, then create the metadata table.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// setup has already written config.yaml when it was missing.
			backend, cfg, err := a.attachBackend()
			if err != nil {
				return err
			}
			unique := backend.UniqueKeys()
			if err := backend.Detach(); err != nil {
				return sysError(fmt.Errorf("detach backend: %w", err))
			}

			out := cmd.OutOrStdout()
			database := filepath.Join(cfg.DataDir, sqlite.DBFileName)
			if a.flags.jsonMode {
				return printJSON(out, map[string]any{
					"config_dir":  a.configDir,
					"data_dir":    cfg.DataDir,
					"database":    database,
					"unique_keys": unique,
				})
			}
			fmt.Fprintln(out, "entitymeta initialized")
			fmt.Fprintln(out, "  config:  ", a.configDir)
			fmt.Fprintln(out, "  database:", database)
			return nil
		},
	}
}
