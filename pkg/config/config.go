// Package config provides configuration loading and management for cellviewer.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"cellviewer/pkg/interval"
	"cellviewer/pkg/normalize"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Playback parameters
	Playback struct {
		// IntervalMs is the delay between frames during autoplay
		IntervalMs int `yaml:"intervalMs"`
	} `yaml:"playback"`

	// Normalization parameters
	Normalization struct {
		// Policy is one of minmax, percentile or auto
		Policy string `yaml:"policy"`

		// LowPercentile and HighPercentile bound the percentile policy (0-100)
		LowPercentile  float64 `yaml:"lowPercentile"`
		HighPercentile float64 `yaml:"highPercentile"`
	} `yaml:"normalization"`

	// Interval sidecar parameters
	Interval struct {
		// SidecarSuffix replaces the stack extension to name the sidecar
		SidecarSuffix string `yaml:"sidecarSuffix"`
	} `yaml:"interval"`

	// Export parameters
	Export struct {
		// Suffix is appended to the stack name for default export paths
		Suffix string `yaml:"suffix"`

		// Dir is the default export directory; empty means next to the stack
		Dir string `yaml:"dir"`
	} `yaml:"export"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// LogFile receives log output while the terminal viewer runs
		LogFile string `yaml:"logFile"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Playback.IntervalMs = 100

	cfg.Normalization.Policy = string(normalize.PolicyAuto)
	cfg.Normalization.LowPercentile = normalize.DefaultLowPercentile
	cfg.Normalization.HighPercentile = normalize.DefaultHighPercentile

	cfg.Interval.SidecarSuffix = interval.DefaultSuffix

	cfg.Export.Suffix = "_trimmed"

	cfg.Output.Verbose = false

	return cfg
}

// DefaultPath returns the per-user config location
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "cellviewer.yaml"
	}
	return filepath.Join(dir, "cellviewer", "config.yaml")
}

// DefaultLogFile returns the per-user log location
func DefaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "cellviewer.log")
	}
	return filepath.Join(dir, "cellviewer", "cellviewer.log")
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Playback.IntervalMs <= 0 {
		return fmt.Errorf("playback.intervalMs must be positive, got %d", c.Playback.IntervalMs)
	}
	if _, err := normalize.ParsePolicy(c.Normalization.Policy); err != nil {
		return err
	}
	lo, hi := c.Normalization.LowPercentile, c.Normalization.HighPercentile
	if lo < 0 || hi > 100 || lo >= hi {
		return fmt.Errorf("percentiles must satisfy 0 <= low < high <= 100, got %v and %v", lo, hi)
	}
	return nil
}

// PlaybackInterval returns the autoplay cadence
func (c *Config) PlaybackInterval() time.Duration {
	return time.Duration(c.Playback.IntervalMs) * time.Millisecond
}

// Policy returns the parsed normalization policy
func (c *Config) Policy() normalize.Policy {
	p, err := normalize.ParsePolicy(c.Normalization.Policy)
	if err != nil {
		return normalize.PolicyAuto
	}
	return p
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
