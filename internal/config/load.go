package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Try to load from file (explicit path takes priority)
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	// Apply CLI flags (highest priority)
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./cagekit.yaml",
		"./config.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Cagekit")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Cagekit")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "cagekit")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "cagekit")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate rejects settings the solver and builders cannot run with.
func (c *Config) Validate() error {
	if c.Solver.Epsilon < 0 {
		return fmt.Errorf("solver.epsilon must not be negative, got %g", c.Solver.Epsilon)
	}
	if c.Solver.PruneEpsilon < 0 {
		return fmt.Errorf("solver.prune_epsilon must not be negative, got %g", c.Solver.PruneEpsilon)
	}
	if c.Builder.Workers < 0 || c.Campaign.Workers < 0 {
		return fmt.Errorf("worker counts must not be negative")
	}
	if c.Builder.BatchSize < 0 {
		return fmt.Errorf("builder.batch_size must not be negative, got %d", c.Builder.BatchSize)
	}
	if _, err := c.CorrectionTable(); err != nil {
		return fmt.Errorf("corrections: %w", err)
	}
	return nil
}
