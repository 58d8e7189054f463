// Package config loads the optional sb3fix configuration file.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/sb3fix/pkg/descriptor"
	"github.com/matzehuels/sb3fix/pkg/errors"
)

const appName = "sb3fix"

// Environment variables consulted by Load.
const (
	EnvConfig = "SB3FIX_CONFIG"
	EnvDebug  = "SB3FIX_DEBUG"
)

type Config struct {
	// Entry is the archive entry holding the project descriptor.
	Entry string `toml:"entry"`
	// TempDir is where the new archive is built. Empty means os.TempDir().
	TempDir string `toml:"temp_dir"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

func Default() *Config {
	return &Config{
		Entry:    descriptor.DefaultEntry,
		LogLevel: "info",
	}
}

// Load reads the configuration at path. An empty path means the default
// location (see Path); a missing file at the default location is not an
// error and yields the defaults. An explicitly named file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = Path()
	}

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		switch {
		case err == nil:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return nil, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
			}
		case os.IsNotExist(err) && !explicit:
			// defaults
		default:
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load %s", path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the configuration file location: $SB3FIX_CONFIG if set,
// otherwise sb3fix/config.toml under the XDG config home. It returns "" when
// no home directory can be determined.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName, "config.toml")
}

// Validate checks the entry name and log level.
func (c *Config) Validate() error {
	if err := errors.ValidateEntryName(c.Entry); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "entry")
	}
	if _, err := c.Level(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "log_level")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (log.Level, error) {
	return log.ParseLevel(c.LogLevel)
}

func applyEnvOverrides(cfg *Config) {
	switch strings.ToLower(os.Getenv(EnvDebug)) {
	case "1", "true", "yes":
		cfg.LogLevel = "debug"
	}
}
