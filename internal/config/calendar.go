package config

import (
	"time"

	"github.com/aristath/postsched/internal/calendar"
)

// DefaultHiatusName names the year-end break used when no hiatuses are configured.
const DefaultHiatusName = "Holiday Hiatus"

// StartDate returns the parsed start of photography.
func (c *Config) StartDate() (time.Time, error) {
	if c.StartOfPhotography == "" {
		return time.Time{}, &ConfigurationError{Field: "start_of_photography", Reason: "is required"}
	}
	return calendar.ParseDate("start_of_photography", c.StartOfPhotography)
}

// CalendarConfig converts the calendar-related fields. A nil hiatus list
// yields the default December 22 to January 4 break after the start of photography.
func (c *Config) CalendarConfig() (calendar.Config, error) {
	out := calendar.Config{
		Regions: make(map[calendar.Department][]calendar.Region, len(c.HolidayRegions)),
	}
	for dept, regions := range c.HolidayRegions {
		out.Regions[dept] = append([]calendar.Region(nil), regions...)
	}

	if c.Hiatuses == nil {
		start, err := c.StartDate()
		if err != nil {
			return calendar.Config{}, err
		}
		out.Hiatuses = []calendar.Hiatus{DefaultHiatus(start.Year())}
	}
	for _, h := range c.Hiatuses {
		start, err := calendar.ParseDate("hiatuses.start", h.Start)
		if err != nil {
			return calendar.Config{}, err
		}
		end, err := calendar.ParseDate("hiatuses.end", h.End)
		if err != nil {
			return calendar.Config{}, err
		}
		out.Hiatuses = append(out.Hiatuses, calendar.Hiatus{ID: h.ID, Name: h.Name, Start: start, End: end})
	}

	for _, w := range c.WorkDays {
		date, err := calendar.ParseDate("work_days.date", w.Date)
		if err != nil {
			return calendar.Config{}, err
		}
		out.Authorizations = append(out.Authorizations, calendar.Authorization{ID: w.ID, Date: date, Scope: w.Scope})
	}

	return out, nil
}

// DefaultHiatus returns the year-end break starting in year.
func DefaultHiatus(year int) calendar.Hiatus {
	return calendar.Hiatus{
		ID:    "default-hiatus",
		Name:  DefaultHiatusName,
		Start: calendar.Date(year, time.December, 22),
		End:   calendar.Date(year+1, time.January, 4),
	}
}

// ReleaseLeadDays converts days-to-air into calendar days.
func (c *Config) ReleaseLeadDays() int {
	if c.AirUnit == UnitWeeks {
		return c.DaysToAir * 7
	}
	return c.DaysToAir
}

// ShootDays returns the number of shoot days for an episode.
func (c *Config) ShootDays(episode int) int {
	if n, ok := c.ShootDayOverrides[episode]; ok {
		return n
	}
	return c.ShootDaysPerEpisode
}

// StudioCutCount returns the number of studio/network cut rounds for an episode.
func (c *Config) StudioCutCount(episode int) int {
	if n, ok := c.StudioCutOverrides[episode]; ok {
		return n
	}
	return c.StudioCuts
}

// EditorsFor returns the editors assigned to an episode. Without explicit
// assignments episodes rotate through the editors in order.
func (c *Config) EditorsFor(episode int) []string {
	if len(c.Editors) == 0 {
		return nil
	}
	explicit := false
	var names []string
	for _, p := range c.Editors {
		if len(p.Episodes) > 0 {
			explicit = true
		}
		for _, ep := range p.Episodes {
			if ep == episode {
				names = append(names, p.Name)
				break
			}
		}
	}
	if explicit {
		return names
	}
	return []string{c.Editors[(episode-1)%len(c.Editors)].Name}
}

// ExplicitDirector returns the director explicitly assigned to an episode.
func (c *Config) ExplicitDirector(episode int) (string, bool) {
	for _, p := range c.Directors {
		for _, ep := range p.Episodes {
			if ep == episode {
				return p.Name, true
			}
		}
	}
	return "", false
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.ShootDayOverrides = cloneIntMap(c.ShootDayOverrides)
	cp.StudioCutOverrides = cloneIntMap(c.StudioCutOverrides)
	cp.BlockEpisodes = append([]int(nil), c.BlockEpisodes...)
	cp.Editors = clonePeople(c.Editors)
	cp.Directors = clonePeople(c.Directors)
	if c.HolidayRegions != nil {
		cp.HolidayRegions = make(map[calendar.Department][]calendar.Region, len(c.HolidayRegions))
		for k, v := range c.HolidayRegions {
			cp.HolidayRegions[k] = append([]calendar.Region(nil), v...)
		}
	}
	if c.Hiatuses != nil {
		cp.Hiatuses = append([]HiatusConfig{}, c.Hiatuses...)
	}
	if c.WorkDays != nil {
		cp.WorkDays = append([]WorkDayConfig{}, c.WorkDays...)
	}
	return &cp
}

func cloneIntMap(m map[int]int) map[int]int {
	if m == nil {
		return nil
	}
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clonePeople(people []Person) []Person {
	if people == nil {
		return nil
	}
	out := make([]Person, len(people))
	for i, p := range people {
		out[i] = Person{Name: p.Name, Episodes: append([]int(nil), p.Episodes...)}
	}
	return out
}
