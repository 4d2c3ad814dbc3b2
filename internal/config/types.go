package config

import (
	"github.com/aristath/postsched/internal/calendar"
)

// Schedule presets.
const (
	PresetHourLong = "hour-long"
	PresetHalfHour = "half-hour"
)

// Air-date units.
const (
	UnitDays  = "days"
	UnitWeeks = "weeks"
)

// Person is an editor or director. Episodes are 1-based; when no person of a
// kind lists episodes, assignments are derived automatically.
type Person struct {
	Name     string `json:"name" yaml:"name"`
	Episodes []int  `json:"episodes,omitempty" yaml:"episodes,omitempty"`
}

// Durations holds stage lengths in business days unless noted.
type Durations struct {
	EditorsCut     int `json:"editors_cut" yaml:"editors_cut"`
	DirectorsCut   int `json:"directors_cut" yaml:"directors_cut"`
	ProducersCut   int `json:"producers_cut" yaml:"producers_cut"`
	StudioNotes    int `json:"studio_notes" yaml:"studio_notes"`
	NetworkCut     int `json:"network_cut" yaml:"network_cut"`
	PictureLock    int `json:"picture_lock" yaml:"picture_lock"`
	FinishingWeeks int `json:"finishing_weeks" yaml:"finishing_weeks"` // weeks between picture lock and VFX due
	Online         int `json:"online" yaml:"online"`
	ColorGrade     int `json:"color_grade" yaml:"color_grade"`
	PreMix         int `json:"pre_mix" yaml:"pre_mix"`
	FinalMix       int `json:"final_mix" yaml:"final_mix"`
	MixReview      int `json:"mix_review" yaml:"mix_review"`
	FinalMixFixes  int `json:"final_mix_fixes" yaml:"final_mix_fixes"`
}

// Toggles are the scheduling switches.
type Toggles struct {
	SequentialLock      bool `json:"sequential_lock" yaml:"sequential_lock"`             // picture locks in episode order
	ProducersCutOverlap bool `json:"producers_cut_overlap" yaml:"producers_cut_overlap"` // next cut starts halfway through the previous
	ProducersCutPreWrap bool `json:"producers_cut_pre_wrap" yaml:"producers_cut_pre_wrap"`
	UnlinkOnManualMove  bool `json:"unlink_on_manual_move" yaml:"unlink_on_manual_move"` // manual moves set a floor instead of an anchor
}

// HiatusConfig is a named break, dates as YYYY-MM-DD.
type HiatusConfig struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	Name  string `json:"name" yaml:"name"`
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// WorkDayConfig authorizes work on an otherwise non-working day.
type WorkDayConfig struct {
	ID    string         `json:"id,omitempty" yaml:"id,omitempty"`
	Date  string         `json:"date" yaml:"date"`
	Scope calendar.Scope `json:"scope" yaml:"scope"`
}

// Config is the top-level configuration.
type Config struct {
	ScheduleType       string `json:"schedule_type" yaml:"schedule_type"`
	Episodes           int    `json:"episodes" yaml:"episodes"`
	StartOfPhotography string `json:"start_of_photography" yaml:"start_of_photography"`

	ShootDaysPerEpisode int         `json:"shoot_days_per_episode" yaml:"shoot_days_per_episode"`
	ShootDayOverrides   map[int]int `json:"shoot_day_overrides,omitempty" yaml:"shoot_day_overrides,omitempty"`
	ShootBlocks         int         `json:"shoot_blocks" yaml:"shoot_blocks"`
	// BlockEpisodes sets episodes per block; empty splits evenly.
	BlockEpisodes []int `json:"block_episodes,omitempty" yaml:"block_episodes,omitempty"`

	StudioCuts         int         `json:"studio_cuts" yaml:"studio_cuts"`
	StudioCutOverrides map[int]int `json:"studio_cut_overrides,omitempty" yaml:"studio_cut_overrides,omitempty"`

	Editors   []Person `json:"editors" yaml:"editors"`
	Directors []Person `json:"directors" yaml:"directors"`

	Durations Durations `json:"durations" yaml:"durations"`
	Toggles   Toggles   `json:"toggles" yaml:"toggles"`

	HolidayRegions map[calendar.Department][]calendar.Region `json:"holiday_regions" yaml:"holiday_regions"`
	// Hiatuses nil means the default year-end hiatus; an empty list means none.
	Hiatuses []HiatusConfig `json:"hiatuses" yaml:"hiatuses"`
	WorkDays []WorkDayConfig `json:"work_days,omitempty" yaml:"work_days,omitempty"`

	DaysToAir int    `json:"days_to_air" yaml:"days_to_air"`
	AirUnit   string `json:"air_unit" yaml:"air_unit"`
}
