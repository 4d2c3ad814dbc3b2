package config

import (
	"fmt"

	"github.com/aristath/postsched/internal/calendar"
)

// ConfigurationError reports a missing or invalid configuration field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Validate checks the configuration. Malformed dates return
// *calendar.InvalidDateError, everything else *ConfigurationError.
func (c *Config) Validate() error {
	if c.Episodes < 1 {
		return &ConfigurationError{Field: "episodes", Reason: "must be at least 1"}
	}
	if c.StartOfPhotography == "" {
		return &ConfigurationError{Field: "start_of_photography", Reason: "is required"}
	}
	if _, err := calendar.ParseDate("start_of_photography", c.StartOfPhotography); err != nil {
		return err
	}

	if c.ShootDaysPerEpisode < 1 {
		return &ConfigurationError{Field: "shoot_days_per_episode", Reason: "must be at least 1"}
	}
	for ep, days := range c.ShootDayOverrides {
		if err := c.checkEpisode("shoot_day_overrides", ep); err != nil {
			return err
		}
		if days < 1 {
			return &ConfigurationError{Field: "shoot_day_overrides", Reason: fmt.Sprintf("episode %d: must be at least 1 day", ep)}
		}
	}

	if c.ShootBlocks < 1 || c.ShootBlocks > c.Episodes {
		return &ConfigurationError{Field: "shoot_blocks", Reason: fmt.Sprintf("must be between 1 and %d", c.Episodes)}
	}
	if len(c.BlockEpisodes) > 0 {
		if len(c.BlockEpisodes) != c.ShootBlocks {
			return &ConfigurationError{Field: "block_episodes", Reason: fmt.Sprintf("has %d entries for %d blocks", len(c.BlockEpisodes), c.ShootBlocks)}
		}
		sum := 0
		for _, n := range c.BlockEpisodes {
			if n < 1 {
				return &ConfigurationError{Field: "block_episodes", Reason: "every block needs at least one episode"}
			}
			sum += n
		}
		if sum != c.Episodes {
			return &ConfigurationError{Field: "block_episodes", Reason: fmt.Sprintf("covers %d episodes, want %d", sum, c.Episodes)}
		}
	}

	if c.StudioCuts < 0 {
		return &ConfigurationError{Field: "studio_cuts", Reason: "must not be negative"}
	}
	for ep, n := range c.StudioCutOverrides {
		if err := c.checkEpisode("studio_cut_overrides", ep); err != nil {
			return err
		}
		if n < 0 {
			return &ConfigurationError{Field: "studio_cut_overrides", Reason: fmt.Sprintf("episode %d: must not be negative", ep)}
		}
	}

	if err := c.checkPeople("editors", c.Editors); err != nil {
		return err
	}
	if err := c.checkPeople("directors", c.Directors); err != nil {
		return err
	}

	if err := c.Durations.validate(); err != nil {
		return err
	}

	for dept, regions := range c.HolidayRegions {
		if dept == calendar.DeptDelay {
			return &ConfigurationError{Field: "holiday_regions", Reason: "DELAY has no holidays"}
		}
		for _, r := range regions {
			if _, err := calendar.ParseRegion(string(r)); err != nil {
				return &ConfigurationError{Field: "holiday_regions", Reason: err.Error()}
			}
		}
	}

	for _, h := range c.Hiatuses {
		start, err := calendar.ParseDate("hiatuses.start", h.Start)
		if err != nil {
			return err
		}
		end, err := calendar.ParseDate("hiatuses.end", h.End)
		if err != nil {
			return err
		}
		if end.Before(start) {
			return &ConfigurationError{Field: "hiatuses", Reason: fmt.Sprintf("%q ends before it starts", h.Name)}
		}
	}

	for _, w := range c.WorkDays {
		if _, err := calendar.ParseDate("work_days.date", w.Date); err != nil {
			return err
		}
		switch w.Scope.Kind {
		case calendar.ScopeAll:
		case calendar.ScopeEpisode:
			if err := c.checkEpisode("work_days.scope.episode", w.Scope.Episode); err != nil {
				return err
			}
		case calendar.ScopeResource:
			if w.Scope.Resource == "" {
				return &ConfigurationError{Field: "work_days.scope.resource", Reason: "is required"}
			}
		default:
			return &ConfigurationError{Field: "work_days.scope.kind", Reason: fmt.Sprintf("unknown scope %q", w.Scope.Kind)}
		}
	}

	if c.DaysToAir < 0 {
		return &ConfigurationError{Field: "days_to_air", Reason: "must not be negative"}
	}
	if c.AirUnit != UnitDays && c.AirUnit != UnitWeeks {
		return &ConfigurationError{Field: "air_unit", Reason: fmt.Sprintf("must be %q or %q", UnitDays, UnitWeeks)}
	}

	return nil
}

func (c *Config) checkEpisode(field string, ep int) error {
	if ep < 1 || ep > c.Episodes {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("episode %d out of range 1..%d", ep, c.Episodes)}
	}
	return nil
}

// checkPeople requires at least one named person and in-range, unshared
// explicit episode assignments.
func (c *Config) checkPeople(field string, people []Person) error {
	if len(people) == 0 {
		return &ConfigurationError{Field: field, Reason: "at least one is required"}
	}
	seen := make(map[string]bool, len(people))
	for _, p := range people {
		if p.Name == "" {
			return &ConfigurationError{Field: field, Reason: "name is required"}
		}
		if seen[p.Name] {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("duplicate name %q", p.Name)}
		}
		seen[p.Name] = true
		for _, ep := range p.Episodes {
			if err := c.checkEpisode(field, ep); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d Durations) validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"durations.editors_cut", d.EditorsCut},
		{"durations.directors_cut", d.DirectorsCut},
		{"durations.producers_cut", d.ProducersCut},
		{"durations.studio_notes", d.StudioNotes},
		{"durations.network_cut", d.NetworkCut},
		{"durations.picture_lock", d.PictureLock},
		{"durations.finishing_weeks", d.FinishingWeeks},
		{"durations.online", d.Online},
		{"durations.color_grade", d.ColorGrade},
		{"durations.pre_mix", d.PreMix},
		{"durations.final_mix", d.FinalMix},
		{"durations.mix_review", d.MixReview},
		{"durations.final_mix_fixes", d.FinalMixFixes},
	}
	for _, f := range fields {
		if f.value < 1 {
			return &ConfigurationError{Field: f.name, Reason: "must be at least 1"}
		}
	}
	return nil
}
