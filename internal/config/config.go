package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"appleport/internal/preserve"
)

// Config represents the optional appleport configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. Pointers distinguish
// "unset" from an explicit false or empty value so the command line can
// still override either way.
type DefaultsConfig struct {
	Preserve   *string `toml:"preserve"`
	Verify     *bool   `toml:"verify"`
	MacZip     *bool   `toml:"maczip"`
	Compress   *bool   `toml:"compress"`
	StripPaths *bool   `toml:"strip-paths"`
	Overwrite  *string `toml:"overwrite"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "appleport", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Defaults.Preserve != nil {
		if _, err := preserve.ParseMode(*c.Defaults.Preserve); err != nil {
			return err
		}
	}
	if c.Defaults.Overwrite != nil {
		switch *c.Defaults.Overwrite {
		case "ask", "always", "never":
		default:
			return fmt.Errorf("defaults.overwrite: must be ask, always, or never, got %q", *c.Defaults.Overwrite)
		}
	}
	return nil
}
