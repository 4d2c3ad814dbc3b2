package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Region identifies a public holiday calendar.
type Region string

const (
	RegionUS  Region = "US"
	RegionUK  Region = "UK"
	RegionCA  Region = "CA"
	RegionAUS Region = "AUS"
)

// Regions lists every supported holiday region.
var Regions = []Region{RegionUS, RegionUK, RegionCA, RegionAUS}

// ParseRegion validates a region code.
func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Regions {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown holiday region %q", s)
}

// Holiday is a single public holiday.
type Holiday struct {
	Date   time.Time
	Name   string
	Region Region
}

// holidaysForYear generates the holiday list of one region for one year.
func holidaysForYear(region Region, year int) []Holiday {
	var out []Holiday
	add := func(d time.Time, name string) {
		out = append(out, Holiday{Date: d, Name: fmt.Sprintf("%s (%s)", name, region), Region: region})
	}

	easter := easterSunday(year)

	switch region {
	case RegionUS:
		add(Date(year, time.January, 1), "New Year's Day")
		add(nthWeekday(3, time.Monday, time.January, year), "MLK Day")
		add(nthWeekday(3, time.Monday, time.February, year), "Presidents' Day")
		add(lastWeekday(time.Monday, time.May, year), "Memorial Day")
		add(Date(year, time.June, 19), "Juneteenth")
		add(Date(year, time.July, 4), "Independence Day")
		add(nthWeekday(1, time.Monday, time.September, year), "Labor Day")
		thanksgiving := nthWeekday(4, time.Thursday, time.November, year)
		add(thanksgiving, "Thanksgiving")
		add(AddDays(thanksgiving, 1), "Thanksgiving")
		add(Date(year, time.December, 25), "Christmas Day")

	case RegionUK:
		add(Date(year, time.January, 1), "New Year's Day")
		add(AddDays(easter, -2), "Good Friday")
		add(AddDays(easter, 1), "Easter Monday")
		add(nthWeekday(1, time.Monday, time.May, year), "Early May Bank Holiday")
		add(lastWeekday(time.Monday, time.May, year), "Spring Bank Holiday")
		add(lastWeekday(time.Monday, time.August, year), "Summer Bank Holiday")
		add(Date(year, time.December, 25), "Christmas Day")
		add(Date(year, time.December, 26), "Boxing Day")

	case RegionCA:
		add(Date(year, time.January, 1), "New Year's Day")
		add(AddDays(easter, -2), "Good Friday")
		// Victoria Day: the Monday on or before May 25.
		victoria := Date(year, time.May, 25)
		for victoria.Weekday() != time.Monday {
			victoria = AddDays(victoria, -1)
		}
		add(victoria, "Victoria Day")
		add(Date(year, time.July, 1), "Canada Day")
		add(nthWeekday(1, time.Monday, time.August, year), "Civic Holiday")
		add(nthWeekday(1, time.Monday, time.September, year), "Labour Day")
		add(nthWeekday(2, time.Monday, time.October, year), "Thanksgiving")
		add(Date(year, time.December, 25), "Christmas Day")
		add(Date(year, time.December, 26), "Boxing Day")

	case RegionAUS:
		add(Date(year, time.January, 1), "New Year's Day")
		add(Date(year, time.January, 26), "Australia Day")
		add(AddDays(easter, -2), "Good Friday")
		add(AddDays(easter, 1), "Easter Monday")
		add(Date(year, time.April, 25), "Anzac Day")
		add(nthWeekday(2, time.Monday, time.June, year), "Queen's Birthday")
		add(Date(year, time.December, 25), "Christmas Day")
		add(Date(year, time.December, 26), "Boxing Day")
	}

	return out
}

// nthWeekday returns the n-th occurrence of wd in the given month.
func nthWeekday(n int, wd time.Weekday, month time.Month, year int) time.Time {
	d := Date(year, month, 1)
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	return AddDays(d, offset+(n-1)*7)
}

// lastWeekday returns the last occurrence of wd in the given month.
func lastWeekday(wd time.Weekday, month time.Month, year int) time.Time {
	d := Date(year, month+1, 0)
	for d.Weekday() != wd {
		d = AddDays(d, -1)
	}
	return d
}

// easterSunday uses the anonymous Gregorian computus.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1
	return Date(year, time.Month(month), day)
}

// holidayKey indexes the per-year cache.
type holidayKey struct {
	region Region
	year   int
}

// holidays returns the cached holidays of a region keyed by date.
func (c *Calendar) holidays(region Region, year int) map[time.Time]Holiday {
	key := holidayKey{region: region, year: year}

	c.mu.RLock()
	cached, ok := c.holidayCache[key]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	byDate := make(map[time.Time]Holiday)
	for _, h := range holidaysForYear(region, year) {
		// First name wins when two holidays coincide.
		if _, exists := byDate[h.Date]; !exists {
			byDate[h.Date] = h
		}
	}

	c.mu.Lock()
	c.holidayCache[key] = byDate
	c.mu.Unlock()

	return byDate
}

// Holiday returns the holiday that blocks date for dept, if any.
// Regions are checked in the order configured for the department.
func (c *Calendar) Holiday(date time.Time, dept Department) (Holiday, bool) {
	date = Normalize(date)
	for _, region := range c.cfg.Regions[dept] {
		if h, ok := c.holidays(region, date.Year())[date]; ok {
			return h, true
		}
	}
	return Holiday{}, false
}
