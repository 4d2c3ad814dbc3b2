package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed files return an error.
// Files ending in .yaml or .yml are parsed as YAML, everything else as JSON.
func Load(globalPath, projectPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	cfg.ensureIDs()
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.postsched/config.json
// Project: .postsched/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".postsched", "config.json")
	projectPath := filepath.Join(".postsched", "config.json")

	return Load(globalPath, projectPath)
}

// Parse decodes a single config document on top of the defaults.
// format is "json" or "yaml".
func Parse(data []byte, format string) (*Config, error) {
	cfg := DefaultConfig()
	if err := mergeConfigData(cfg, data, format); err != nil {
		return nil, err
	}
	cfg.ensureIDs()
	return cfg, nil
}

// mergeConfigFile reads a config file and merges it into the base config.
// Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := mergeConfigData(base, data, formatFor(path)); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// mergeConfigData decodes data over base. Fields absent from data keep their
// current values and maps are merged key by key. A schedule_type that differs
// from the current one applies that preset before the overlay.
func mergeConfigData(base *Config, data []byte, format string) error {
	unmarshal := json.Unmarshal
	if format == "yaml" {
		unmarshal = yaml.Unmarshal
	}

	var header struct {
		ScheduleType string `json:"schedule_type" yaml:"schedule_type"`
	}
	if err := unmarshal(data, &header); err != nil {
		return err
	}
	if header.ScheduleType != "" && header.ScheduleType != base.ScheduleType {
		if err := base.ApplyPreset(header.ScheduleType); err != nil {
			return err
		}
	}

	return unmarshal(data, base)
}

// formatFor picks the decoder from the file extension.
func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

// ensureIDs gives every hiatus and work day a stable identifier.
func (c *Config) ensureIDs() {
	for i := range c.Hiatuses {
		if c.Hiatuses[i].ID == "" {
			c.Hiatuses[i].ID = uuid.NewString()
		}
	}
	for i := range c.WorkDays {
		if c.WorkDays[i].ID == "" {
			c.WorkDays[i].ID = uuid.NewString()
		}
	}
}
