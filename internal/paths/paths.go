// Package paths resolves the configuration and data directories of the
// entitymeta CLI.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "entitymeta"

// DefaultDataDirName is the CWD-relative data directory used when nothing
// else is configured.
const DefaultDataDirName = ".entitymeta-db"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "ENTITYMETA_CONFIG_DIR"
	EnvDataDir   = "ENTITYMETA_DATA_DIR"
)

// platformDir holds platform lookups that tests replace.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the per-user configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/entitymeta (fallback ~/.config/entitymeta)
// macOS:   ~/Library/Application Support/entitymeta
// Windows: %APPDATA%/entitymeta
func DefaultConfigDir() (string, error) {
	return userDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the per-user data directory.
//
// Linux:   $XDG_DATA_HOME/entitymeta (fallback ~/.local/share/entitymeta)
// macOS and Windows: same as DefaultConfigDir.
func DefaultDataDir() (string, error) {
	return userDir("XDG_DATA_HOME", ".local", "share")
}

func userDir(xdgEnv string, homeRel ...string) (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if xdg := os.Getenv(xdgEnv); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, homeRel...), AppName)...), nil
}

// ResolveConfigDir picks the configuration directory: flag, then
// ENTITYMETA_CONFIG_DIR, then DefaultConfigDir. Overrides are made absolute.
func ResolveConfigDir(flag string) (string, error) {
	if dir, ok := firstSet(flag, os.Getenv(EnvConfigDir)); ok {
		return filepath.Abs(dir)
	}
	return DefaultConfigDir()
}

// ResolveDataDir picks the data directory: flag, then the data_dir config
// value, then ENTITYMETA_DATA_DIR, then $(CWD)/.entitymeta-db.
func ResolveDataDir(flag, configValue string) (string, error) {
	if dir, ok := firstSet(flag, configValue, os.Getenv(EnvDataDir)); ok {
		return filepath.Abs(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

func firstSet(values ...string) (string, bool) {
	for _, v := range values {
		if v != "" {
			return v, true
		}
	}
	return "", false
}
