// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries the daemon settings. Flags override file values.
type Config struct {
	// Listen is the HTTP API bind address.
	Listen string `yaml:"listen"`
	// LogLevel is one of debug, info, warn, error, fatal.
	LogLevel string `yaml:"log_level"`
	// DBType selects the storage backend: memory or badger.
	DBType string `yaml:"db_type"`
	// DataDir is the badger database directory.
	DataDir string `yaml:"data_dir"`
	// ProgramID seeds address derivation; hex, 32 bytes. Empty uses the
	// default derivation namespace.
	ProgramID string `yaml:"program_id"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Listen:   ":8600",
		LogLevel: "info",
		DBType:   "badger",
		DataDir:  "/tmp/coffeefutd",
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: empty listen address")
	}
	switch c.DBType {
	case "memory", "badger":
	default:
		return fmt.Errorf("config: unknown db_type %q", c.DBType)
	}
	if c.DBType == "badger" && c.DataDir == "" {
		return fmt.Errorf("config: badger requires data_dir")
	}
	return nil
}
