// Package config loads snapmatch configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all snapmatch configuration.
type Config struct {
	// Target is the base URL of the endpoint under test.
	Target string `yaml:"target"`

	// SnapshotDir is where *.snapshot.json files live.
	SnapshotDir string `yaml:"snapshot_dir"`

	// SuiteDir is where suite YAML definitions live.
	SuiteDir string `yaml:"suite_dir"`

	// DatabasePath is the sqlite run-history location.
	DatabasePath string `yaml:"database_path"`

	// Region and AccountID are the default replay target dimensions;
	// they also feed the common transformers (<region>, <account-id>).
	Region    string `yaml:"region"`
	AccountID string `yaml:"account_id"`

	// MatrixPath optionally points at a multi-account/multi-region
	// matrix definition.
	MatrixPath string `yaml:"matrix_path"`

	// Parallelism bounds concurrent case execution during replay.
	Parallelism int `yaml:"parallelism"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Target:       "http://localhost:4566",
		SnapshotDir:  "snapshots",
		SuiteDir:     "suites",
		DatabasePath: filepath.Join(".snapmatch", "history.db"),
		Region:       "us-east-1",
		AccountID:    "111111111111",
		Parallelism:  4,
		Logging:      LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path, layering defaults underneath and
// environment overrides on top. A missing file is not an error; defaults
// plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to env overrides.
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment variables override file values. SNAPMATCH_ prefix throughout.
func (c *Config) applyEnv() {
	if v := os.Getenv("SNAPMATCH_TARGET"); v != "" {
		c.Target = v
	}
	if v := os.Getenv("SNAPMATCH_SNAPSHOT_DIR"); v != "" {
		c.SnapshotDir = v
	}
	if v := os.Getenv("SNAPMATCH_SUITE_DIR"); v != "" {
		c.SuiteDir = v
	}
	if v := os.Getenv("SNAPMATCH_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("SNAPMATCH_REGION"); v != "" {
		c.Region = v
	}
	if v := os.Getenv("SNAPMATCH_ACCOUNT_ID"); v != "" {
		c.AccountID = v
	}
	if v := os.Getenv("SNAPMATCH_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Parallelism = n
		}
	}
	if v := os.Getenv("SNAPMATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	if c.Target == "" {
		return fmt.Errorf("target must not be empty")
	}
	if c.SnapshotDir == "" {
		return fmt.Errorf("snapshot_dir must not be empty")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	return nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
