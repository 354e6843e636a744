// Package config loads ruletrace.yml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ruletrace/internal/rule"
)

// Config is the top-level ruletrace.yml.
type Config struct {
	// Store is the sqlite path of the artifact registry.
	Store    string        `yaml:"store"`
	LogLevel string        `yaml:"log_level"`
	Onehot   OnehotConfig  `yaml:"onehot"`
	Serving  ServingConfig `yaml:"serving"`
}

// OnehotConfig holds the policies given to onehot rules that omit them.
type OnehotConfig struct {
	Naming    string `yaml:"naming"`
	Unmatched string `yaml:"unmatched"`
}

// ServingConfig configures dump naming.
type ServingConfig struct {
	Name string `yaml:"name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store:    "ruletrace.db",
		LogLevel: "info",
		Onehot: OnehotConfig{
			Naming:    string(rule.NamingIndex),
			Unmatched: string(rule.UnmatchedAllZero),
		},
		Serving: ServingConfig{Name: "serving"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks enum fields.
func (c *Config) Validate() error {
	if c.Store == "" {
		return fmt.Errorf("store is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	if _, err := rule.ParseNaming(c.Onehot.Naming); err != nil {
		return fmt.Errorf("invalid onehot.naming: %s (must be 'index' or 'value')", c.Onehot.Naming)
	}
	if _, err := rule.ParseUnmatched(c.Onehot.Unmatched); err != nil {
		return fmt.Errorf("invalid onehot.unmatched: %s (must be 'all_zero', 'error', or 'other')", c.Onehot.Unmatched)
	}
	if c.Serving.Name == "" {
		return fmt.Errorf("serving.name is required")
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Naming returns the default onehot naming policy.
func (c *Config) Naming() rule.Naming {
	n, _ := rule.ParseNaming(c.Onehot.Naming)
	return n
}

// Unmatched returns the default onehot unmatched policy.
func (c *Config) Unmatched() rule.Unmatched {
	u, _ := rule.ParseUnmatched(c.Onehot.Unmatched)
	return u
}
