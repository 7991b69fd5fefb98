// Package config loads engine configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds engine-wide settings. CLI flags may override fields
// after loading.
type Config struct {
	// DataDir holds the encrypted database and its key file.
	DataDir string `env:"BLOCKPOLICY_DATA_DIR"`

	// Debug switches the logger to development output.
	Debug bool `env:"BLOCKPOLICY_DEBUG"`
}

// Load parses the environment and fills in defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".blockpolicy")
	}
	return cfg, nil
}
