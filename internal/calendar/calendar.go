// Package calendar decides which days are working days for a department,
// episode and crew, and walks dates in business-day steps.
package calendar

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Department tags a stage with the crew calendar it follows.
type Department string

const (
	DeptShoot    Department = "SHOOT"
	DeptEdit     Department = "EDIT"
	DeptMusic    Department = "MUSIC"
	DeptVFX      Department = "VFX"
	DeptPicture  Department = "PICTURE"
	DeptSound    Department = "SOUND"
	DeptDelivery Department = "DELIVERY"
	DeptDelay    Department = "DELAY" // pure offsets, never staffed
)

// Departments lists the staffed departments that carry holiday regions.
var Departments = []Department{DeptShoot, DeptEdit, DeptMusic, DeptVFX, DeptPicture, DeptSound, DeptDelivery}

// maxWalkDays bounds any single search for a business day.
const maxWalkDays = 3660

var (
	// ErrInvalidDuration is returned for a non-positive task duration.
	ErrInvalidDuration = errors.New("duration must be at least one business day")
	// ErrNoBusinessDay is returned when no business day exists within the walk bound.
	ErrNoBusinessDay = errors.New("no business day found within search window")
)

// ScopeKind selects what a work-day authorization applies to.
type ScopeKind string

const (
	ScopeAll      ScopeKind = "all"
	ScopeEpisode  ScopeKind = "episode"
	ScopeResource ScopeKind = "resource"
)

// Scope is a tagged variant: Episode is set for ScopeEpisode, Resource for ScopeResource.
type Scope struct {
	Kind     ScopeKind `json:"kind" yaml:"kind"`
	Episode  int       `json:"episode,omitempty" yaml:"episode,omitempty"`
	Resource string    `json:"resource,omitempty" yaml:"resource,omitempty"`
}

// Matches reports whether the scope covers ctx.
func (s Scope) Matches(ctx Context) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeEpisode:
		return ctx.Episode != NoEpisode && ctx.Episode == s.Episode
	case ScopeResource:
		return slices.Contains(ctx.Resources, s.Resource)
	}
	return false
}

// Authorization turns a non-working day into a working day for its scope.
type Authorization struct {
	ID    string    `json:"id"`
	Date  time.Time `json:"date"`
	Scope Scope     `json:"scope"`
}

// Hiatus is an inclusive range of non-working days.
type Hiatus struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether date falls inside the hiatus, inclusive on both ends.
func (h Hiatus) Contains(date time.Time) bool {
	return !date.Before(h.Start) && !date.After(h.End)
}

// Config is the calendar input.
type Config struct {
	Regions        map[Department][]Region
	Hiatuses       []Hiatus
	Authorizations []Authorization
}

// DefaultRegions enables US holidays for every staffed department.
func DefaultRegions() map[Department][]Region {
	regions := make(map[Department][]Region, len(Departments))
	for _, d := range Departments {
		regions[d] = []Region{RegionUS}
	}
	return regions
}

// NoEpisode marks a context that is not tied to any episode.
const NoEpisode = 0

// Context is the evaluation context for the business-day predicate.
type Context struct {
	Department Department
	Episode    int
	Resources  []string
}

// Calendar answers business-day questions. It is safe for concurrent use.
type Calendar struct {
	cfg Config

	mu           sync.RWMutex
	holidayCache map[holidayKey]map[time.Time]Holiday

	authByDate map[time.Time][]Authorization
}

// New creates a Calendar from cfg. The configuration is copied.
func New(cfg Config) *Calendar {
	c := &Calendar{
		cfg: Config{
			Regions:        make(map[Department][]Region, len(cfg.Regions)),
			Hiatuses:       make([]Hiatus, 0, len(cfg.Hiatuses)),
			Authorizations: make([]Authorization, 0, len(cfg.Authorizations)),
		},
		holidayCache: make(map[holidayKey]map[time.Time]Holiday),
		authByDate:   make(map[time.Time][]Authorization),
	}

	for dept, regions := range cfg.Regions {
		c.cfg.Regions[dept] = append([]Region(nil), regions...)
	}
	for _, h := range cfg.Hiatuses {
		h.Start, h.End = Normalize(h.Start), Normalize(h.End)
		c.cfg.Hiatuses = append(c.cfg.Hiatuses, h)
	}
	for _, a := range cfg.Authorizations {
		a.Date = Normalize(a.Date)
		c.cfg.Authorizations = append(c.cfg.Authorizations, a)
		c.authByDate[a.Date] = append(c.authByDate[a.Date], a)
	}

	return c
}

// Config returns a copy of the calendar configuration.
func (c *Calendar) Config() Config {
	out := Config{
		Regions:        make(map[Department][]Region, len(c.cfg.Regions)),
		Hiatuses:       append([]Hiatus(nil), c.cfg.Hiatuses...),
		Authorizations: append([]Authorization(nil), c.cfg.Authorizations...),
	}
	for dept, regions := range c.cfg.Regions {
		out.Regions[dept] = append([]Region(nil), regions...)
	}
	return out
}

// IsBusinessDay evaluates, in order: work-day authorizations, weekends,
// department holidays, hiatus ranges.
func (c *Calendar) IsBusinessDay(date time.Time, ctx Context) bool {
	date = Normalize(date)

	for _, auth := range c.authByDate[date] {
		if auth.Scope.Matches(ctx) {
			return true
		}
	}

	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	if _, ok := c.Holiday(date, ctx.Department); ok {
		return false
	}

	for _, h := range c.cfg.Hiatuses {
		if h.Contains(date) {
			return false
		}
	}

	return true
}

// step walks one day at a time in dir until a business day is found.
// The starting date itself is not examined.
func (c *Calendar) step(date time.Time, dir int, ctx Context) (time.Time, error) {
	d := date
	for i := 0; i < maxWalkDays; i++ {
		d = d.AddDate(0, 0, dir)
		if c.IsBusinessDay(d, ctx) {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("walking from %s: %w", Format(date), ErrNoBusinessDay)
}

// Snap returns the first business day on or after date.
func (c *Calendar) Snap(date time.Time, ctx Context) (time.Time, error) {
	date = Normalize(date)
	if c.IsBusinessDay(date, ctx) {
		return date, nil
	}
	return c.step(date, 1, ctx)
}

// Advance returns the end date of an n-day task: from the first business day
// on or after date, step forward n-1 further business days.
func (c *Calendar) Advance(date time.Time, n int, ctx Context) (time.Time, error) {
	if n < 1 {
		return time.Time{}, fmt.Errorf("advance by %d: %w", n, ErrInvalidDuration)
	}

	d, err := c.Snap(date, ctx)
	if err != nil {
		return time.Time{}, err
	}
	for i := 1; i < n; i++ {
		if d, err = c.step(d, 1, ctx); err != nil {
			return time.Time{}, err
		}
	}
	return d, nil
}

// Rewind steps back n business days, strictly before date.
func (c *Calendar) Rewind(date time.Time, n int, ctx Context) (time.Time, error) {
	if n < 0 {
		return time.Time{}, fmt.Errorf("rewind by %d: %w", n, ErrInvalidDuration)
	}

	d := Normalize(date)
	var err error
	for i := 0; i < n; i++ {
		if d, err = c.step(d, -1, ctx); err != nil {
			return time.Time{}, err
		}
	}
	return d, nil
}

// NextBusinessDay returns the first business day strictly after date.
func (c *Calendar) NextBusinessDay(date time.Time, ctx Context) (time.Time, error) {
	return c.step(Normalize(date), 1, ctx)
}

// Offset moves date by n business days; negative n moves backward.
// Offset with n == 0 returns date unchanged.
func (c *Calendar) Offset(date time.Time, n int, ctx Context) (time.Time, error) {
	dir := 1
	if n < 0 {
		dir, n = -1, -n
	}

	d := Normalize(date)
	var err error
	for i := 0; i < n; i++ {
		if d, err = c.step(d, dir, ctx); err != nil {
			return time.Time{}, err
		}
	}
	return d, nil
}

// CountBusinessDays counts business days in [from, to).
// A reversed range yields the negated count of [to, from).
func (c *Calendar) CountBusinessDays(from, to time.Time, ctx Context) int {
	from, to = Normalize(from), Normalize(to)
	sign := 1
	if to.Before(from) {
		from, to = to, from
		sign = -1
	}

	count := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d, ctx) {
			count++
		}
	}
	return sign * count
}
