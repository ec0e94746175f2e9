// Package cli implements the entitymeta command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/entitymeta/internal/logger"
	"github.com/mesh-intelligence/entitymeta/internal/paths"
	"github.com/mesh-intelligence/entitymeta/pkg/entitymeta"
)

// rootFlags holds global flag values.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	logLevel  string
	logPretty bool
}

// app is the state shared by the commands of one root command tree.
type app struct {
	flags     rootFlags
	configDir string
	config    *viper.Viper
	log       *logger.Logger
}

// NewRootCmd creates the top-level "entitymeta" command with global flags
// and all subcommands registered. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	a := &app{log: logger.Nop()}

	root := &cobra.Command{
		Use:     "entitymeta",
		Short:   "Key/value metadata for any entity",
		Long:    "entitymeta stores key/value metadata for entities of any type in one shared\ntable, scoped by entity type and id.",
		Version: entitymeta.Version,
		// Errors are printed once by Execute.
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: per-user config dir, or $"+paths.EnvConfigDir+")")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error (default from config.yaml)")
	pf.BoolVar(&a.flags.logPretty, "log-pretty", false, "human-readable log output")

	root.AddCommand(
		newVersionCmd(a),
		newInitCmd(a),
		newSetCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newKeysCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "entitymeta:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// setup resolves the config directory, loads config.yaml and builds the
// logger. The version command needs none of it.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return sysError(err)
	}
	a.configDir = configDir
	a.config = v

	level := a.flags.logLevel
	if level == "" {
		level = v.GetString(cfgKeyLogLevel)
	}
	a.log = logger.New(logger.Config{
		Level:  level,
		Pretty: a.flags.logPretty,
		Output: cmd.ErrOrStderr(),
	}).Component("cli")

	a.log.Debug().
		Str("command", cmd.Name()).
		Str("config_dir", configDir).
		Msg("config loaded")
	return nil
}
