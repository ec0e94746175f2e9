package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/entitymeta/internal/paths"
	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend            = "backend"
	cfgKeyDataDir            = "data_dir"
	cfgKeyAllowDuplicateKeys = "allow_duplicate_keys"
	cfgKeyLogLevel           = "log_level"

	defaultLogLevel = "warn"
	envPrefix       = "ENTITYMETA"
)

// configFile is the structure written to config.yaml on first run.
type configFile struct {
	Backend            string `yaml:"backend"`
	DataDir            string `yaml:"data_dir,omitempty"`
	AllowDuplicateKeys bool   `yaml:"allow_duplicate_keys"`
	LogLevel           string `yaml:"log_level"`
}

const configHeader = "# entitymeta configuration\n# data_dir may be overridden with --data-dir or " + paths.EnvDataDir + ".\n"

// loadConfig reads config.yaml from configDir, creating the directory and a
// default file when missing. ENTITYMETA_LOG_LEVEL overrides log_level.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(configDir, configFileExt)
	if err := writeConfigIfMissing(path, configFile{Backend: types.BackendSQLite, LogLevel: defaultLogLevel}); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyAllowDuplicateKeys, false)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	if err := v.BindEnv(cfgKeyLogLevel); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// writeConfigIfMissing creates path with cfg. An existing file is left
// untouched.
func writeConfigIfMissing(path string, cfg configFile) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, append([]byte(configHeader), data...), 0o644)
}

// storeConfig builds the backend configuration from flags and config.yaml.
func (a *app) storeConfig() (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, a.config.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	return types.Config{
		Backend:            a.config.GetString(cfgKeyBackend),
		DataDir:            dataDir,
		AllowDuplicateKeys: a.config.GetBool(cfgKeyAllowDuplicateKeys),
	}, nil
}
