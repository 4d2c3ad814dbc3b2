package config

import (
	"fmt"

	"github.com/aristath/postsched/internal/calendar"
)

// DefaultConfig returns the hour-long preset with generated crew names.
// StartOfPhotography is left empty; it has no sensible default.
func DefaultConfig() *Config {
	cfg := &Config{
		Episodes:    8,
		ShootBlocks: 4,
		Editors:     DefaultEditors(3),
		Directors:   DefaultDirectors(4),
		Durations: Durations{
			Online:        2,
			ColorGrade:    4,
			PreMix:        3,
			FinalMix:      3,
			MixReview:     1,
			FinalMixFixes: 1,
		},
		Toggles: Toggles{
			SequentialLock: true,
		},
		HolidayRegions: calendar.DefaultRegions(),
		DaysToAir:      6,
		AirUnit:        UnitWeeks,
	}
	// The hour-long preset is always known.
	_ = cfg.ApplyPreset(PresetHourLong)
	return cfg
}

// ApplyPreset overwrites shoot days, the creative durations and the studio
// cut counts with the values of a preset.
func (c *Config) ApplyPreset(name string) error {
	switch name {
	case PresetHourLong:
		c.ShootDaysPerEpisode = 8
		c.Durations.EditorsCut = 3
		c.Durations.DirectorsCut = 4
		c.Durations.ProducersCut = 10
		c.Durations.StudioNotes = 4
		c.Durations.NetworkCut = 4
		c.Durations.PictureLock = 3
		c.Durations.FinishingWeeks = 10
		c.StudioCuts = 3
		// The pilot gets extra rounds of notes.
		c.StudioCutOverrides = map[int]int{1: 5}

	case PresetHalfHour:
		c.ShootDaysPerEpisode = 5
		c.Durations.EditorsCut = 2
		c.Durations.DirectorsCut = 2
		c.Durations.ProducersCut = 5
		c.Durations.StudioNotes = 2
		c.Durations.NetworkCut = 2
		c.Durations.PictureLock = 1
		c.Durations.FinishingWeeks = 6
		c.StudioCuts = 2
		c.StudioCutOverrides = map[int]int{}

	default:
		return &ConfigurationError{Field: "schedule_type", Reason: fmt.Sprintf("unknown preset %q", name)}
	}

	c.ScheduleType = name
	return nil
}

// DefaultEditors returns n editors named Editor A, Editor B, ...
func DefaultEditors(n int) []Person {
	people := make([]Person, n)
	for i := range people {
		people[i] = Person{Name: fmt.Sprintf("Editor %c", 'A'+i)}
	}
	return people
}

// DefaultDirectors returns n directors named Director X, Director Y, ...
func DefaultDirectors(n int) []Person {
	people := make([]Person, n)
	for i := range people {
		people[i] = Person{Name: fmt.Sprintf("Director %c", 'X'+i)}
	}
	return people
}
