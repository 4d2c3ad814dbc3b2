package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveCreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	cfg.StartOfPhotography = "2025-01-06"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}
	if loaded.StartOfPhotography != "2025-01-06" {
		t.Errorf("Expected start '2025-01-06', got '%s'", loaded.StartOfPhotography)
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	// Nested path that doesn't exist yet
	path := filepath.Join(tmpDir, "nested", "deep", "config.yaml")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			cfg := DefaultConfig()
			if err := cfg.ApplyPreset(PresetHalfHour); err != nil {
				t.Fatalf("ApplyPreset failed: %v", err)
			}
			cfg.StartOfPhotography = "2025-03-03"
			cfg.ShootDayOverrides = map[int]int{2: 7}
			cfg.Hiatuses = []HiatusConfig{}
			cfg.Toggles.ProducersCutOverlap = true

			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			loaded, err := Load("", path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if loaded.ScheduleType != PresetHalfHour {
				t.Errorf("ScheduleType = %q", loaded.ScheduleType)
			}
			if loaded.ShootDays(2) != 7 || loaded.ShootDays(1) != 5 {
				t.Errorf("shoot days = %d/%d, want 5/7", loaded.ShootDays(1), loaded.ShootDays(2))
			}
			if loaded.Hiatuses == nil {
				t.Error("empty hiatus list was loaded as nil (default hiatus would apply)")
			}
			if !loaded.Toggles.ProducersCutOverlap {
				t.Error("toggle lost in round trip")
			}
		})
	}
}
