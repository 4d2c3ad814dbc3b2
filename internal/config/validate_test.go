package config

import (
	"errors"
	"testing"

	"github.com/aristath/postsched/internal/calendar"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.StartOfPhotography = "2025-01-06"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string // expected ConfigurationError field, empty for success
		wantDate  bool   // expect InvalidDateError
	}{
		{name: "defaults with start date", mutate: func(*Config) {}},
		{
			name:      "missing start date",
			mutate:    func(c *Config) { c.StartOfPhotography = "" },
			wantField: "start_of_photography",
		},
		{
			name:     "malformed start date",
			mutate:   func(c *Config) { c.StartOfPhotography = "06/01/2025" },
			wantDate: true,
		},
		{
			name:      "zero episodes",
			mutate:    func(c *Config) { c.Episodes = 0 },
			wantField: "episodes",
		},
		{
			name:      "more blocks than episodes",
			mutate:    func(c *Config) { c.ShootBlocks = 9 },
			wantField: "shoot_blocks",
		},
		{
			name: "block partition does not cover all episodes",
			mutate: func(c *Config) {
				c.ShootBlocks = 2
				c.BlockEpisodes = []int{3, 3}
			},
			wantField: "block_episodes",
		},
		{
			name:      "zero duration",
			mutate:    func(c *Config) { c.Durations.ColorGrade = 0 },
			wantField: "durations.color_grade",
		},
		{
			name:      "no directors",
			mutate:    func(c *Config) { c.Directors = nil },
			wantField: "directors",
		},
		{
			name:      "editor assigned to missing episode",
			mutate:    func(c *Config) { c.Editors[0].Episodes = []int{12} },
			wantField: "editors",
		},
		{
			name: "hiatus ends before start",
			mutate: func(c *Config) {
				c.Hiatuses = []HiatusConfig{{Name: "Break", Start: "2025-05-10", End: "2025-05-01"}}
			},
			wantField: "hiatuses",
		},
		{
			name: "unknown work day scope",
			mutate: func(c *Config) {
				c.WorkDays = []WorkDayConfig{{Date: "2025-05-10", Scope: calendar.Scope{Kind: "crew"}}}
			},
			wantField: "work_days.scope.kind",
		},
		{
			name:      "bad air unit",
			mutate:    func(c *Config) { c.AirUnit = "months" },
			wantField: "air_unit",
		},
		{
			name:      "unknown region",
			mutate:    func(c *Config) { c.HolidayRegions[calendar.DeptEdit] = []calendar.Region{"FR"} },
			wantField: "holiday_regions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			switch {
			case tt.wantDate:
				var dateErr *calendar.InvalidDateError
				if !errors.As(err, &dateErr) {
					t.Fatalf("expected InvalidDateError, got %v", err)
				}
			case tt.wantField != "":
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected ConfigurationError, got %v", err)
				}
				if cfgErr.Field != tt.wantField {
					t.Errorf("field = %q, want %q", cfgErr.Field, tt.wantField)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestCalendarConfigDefaultHiatus(t *testing.T) {
	cfg := validConfig()

	calCfg, err := cfg.CalendarConfig()
	if err != nil {
		t.Fatalf("CalendarConfig failed: %v", err)
	}
	if len(calCfg.Hiatuses) != 1 {
		t.Fatalf("expected the default hiatus, got %v", calCfg.Hiatuses)
	}
	h := calCfg.Hiatuses[0]
	if calendar.Format(h.Start) != "2025-12-22" || calendar.Format(h.End) != "2026-01-04" {
		t.Errorf("default hiatus = %s..%s", calendar.Format(h.Start), calendar.Format(h.End))
	}

	cfg.Hiatuses = []HiatusConfig{}
	calCfg, err = cfg.CalendarConfig()
	if err != nil {
		t.Fatalf("CalendarConfig failed: %v", err)
	}
	if len(calCfg.Hiatuses) != 0 {
		t.Errorf("explicit empty list should disable the default hiatus, got %v", calCfg.Hiatuses)
	}
}

func TestEditorsFor(t *testing.T) {
	cfg := validConfig()
	if got := cfg.EditorsFor(4); len(got) != 1 || got[0] != "Editor A" {
		t.Errorf("EditorsFor(4) = %v, want [Editor A]", got)
	}

	cfg.Editors = []Person{
		{Name: "Sam", Episodes: []int{1, 2}},
		{Name: "Alex", Episodes: []int{2}},
	}
	if got := cfg.EditorsFor(2); len(got) != 2 {
		t.Errorf("EditorsFor(2) = %v, want both editors", got)
	}
	if got := cfg.EditorsFor(3); len(got) != 0 {
		t.Errorf("EditorsFor(3) = %v, want none", got)
	}
}

func TestReleaseLeadDays(t *testing.T) {
	cfg := validConfig()
	cfg.DaysToAir, cfg.AirUnit = 3, UnitWeeks
	if got := cfg.ReleaseLeadDays(); got != 21 {
		t.Errorf("weeks: got %d, want 21", got)
	}
	cfg.AirUnit = UnitDays
	if got := cfg.ReleaseLeadDays(); got != 3 {
		t.Errorf("days: got %d, want 3", got)
	}
}
