package calendar

import (
	"errors"
	"testing"
	"time"
)

func usCalendar() *Calendar {
	return New(Config{Regions: DefaultRegions()})
}

var editCtx = Context{Department: DeptEdit, Episode: 1, Resources: []string{"Editor A"}}

func TestIsBusinessDay(t *testing.T) {
	cal := New(Config{
		Regions: DefaultRegions(),
		Hiatuses: []Hiatus{
			{ID: "h1", Name: "Holiday Hiatus", Start: Date(2025, 12, 22), End: Date(2026, 1, 4)},
		},
		Authorizations: []Authorization{
			{ID: "a1", Date: Date(2025, 3, 8), Scope: Scope{Kind: ScopeAll}},
			{ID: "a2", Date: Date(2025, 3, 15), Scope: Scope{Kind: ScopeEpisode, Episode: 2}},
			{ID: "a3", Date: Date(2025, 3, 22), Scope: Scope{Kind: ScopeResource, Resource: "Editor A"}},
			{ID: "a4", Date: Date(2025, 7, 4), Scope: Scope{Kind: ScopeAll}},
			{ID: "a5", Date: Date(2025, 12, 23), Scope: Scope{Kind: ScopeResource, Resource: "Mixer"}},
		},
	})

	tests := []struct {
		name string
		date time.Time
		ctx  Context
		want bool
	}{
		{"plain weekday", Date(2025, 3, 4), editCtx, true},
		{"saturday", Date(2025, 3, 1), editCtx, false},
		{"sunday", Date(2025, 3, 2), editCtx, false},
		{"us holiday", Date(2025, 1, 1), editCtx, false},
		{"delay department ignores holidays", Date(2025, 1, 1), Context{Department: DeptDelay}, true},
		{"hiatus start inclusive", Date(2025, 12, 22), editCtx, false},
		{"hiatus end inclusive", Date(2026, 1, 2), editCtx, false},
		{"after hiatus", Date(2026, 1, 5), editCtx, true},
		{"authorization for all", Date(2025, 3, 8), editCtx, true},
		{"authorization overrides holiday", Date(2025, 7, 4), editCtx, true},
		{"episode authorization matching", Date(2025, 3, 15), Context{Department: DeptEdit, Episode: 2}, true},
		{"episode authorization other episode", Date(2025, 3, 15), Context{Department: DeptEdit, Episode: 3}, false},
		{"episode authorization without episode", Date(2025, 3, 15), Context{Department: DeptEdit}, false},
		{"resource authorization matching", Date(2025, 3, 22), editCtx, true},
		{"resource authorization other crew", Date(2025, 3, 22), Context{Department: DeptEdit, Resources: []string{"Editor B"}}, false},
		{"resource authorization overrides hiatus", Date(2025, 12, 23), Context{Department: DeptSound, Resources: []string{"Mixer"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.IsBusinessDay(tt.date, tt.ctx); got != tt.want {
				t.Errorf("IsBusinessDay(%s) = %v, want %v", Format(tt.date), got, tt.want)
			}
		})
	}
}

func TestHolidayRegions(t *testing.T) {
	tests := []struct {
		region Region
		date   time.Time
		name   string
	}{
		{RegionUS, Date(2025, 1, 20), "MLK Day (US)"},
		{RegionUS, Date(2025, 2, 17), "Presidents' Day (US)"},
		{RegionUS, Date(2025, 5, 26), "Memorial Day (US)"},
		{RegionUS, Date(2025, 9, 1), "Labor Day (US)"},
		{RegionUS, Date(2025, 11, 27), "Thanksgiving (US)"},
		{RegionUS, Date(2025, 11, 28), "Thanksgiving (US)"},
		{RegionUK, Date(2025, 4, 18), "Good Friday (UK)"},
		{RegionUK, Date(2025, 4, 21), "Easter Monday (UK)"},
		{RegionUK, Date(2025, 8, 25), "Summer Bank Holiday (UK)"},
		{RegionCA, Date(2025, 5, 19), "Victoria Day (CA)"},
		{RegionCA, Date(2025, 10, 13), "Thanksgiving (CA)"},
		{RegionAUS, Date(2025, 6, 9), "Queen's Birthday (AUS)"},
		{RegionAUS, Date(2024, 3, 29), "Good Friday (AUS)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := New(Config{Regions: map[Department][]Region{DeptSound: {tt.region}}})
			h, ok := cal.Holiday(tt.date, DeptSound)
			if !ok {
				t.Fatalf("expected holiday on %s", Format(tt.date))
			}
			if h.Name != tt.name {
				t.Errorf("holiday name = %q, want %q", h.Name, tt.name)
			}
			if cal.IsBusinessDay(tt.date, Context{Department: DeptSound}) {
				t.Errorf("%s should not be a business day", Format(tt.date))
			}
			// Other departments have no regions configured.
			if _, ok := cal.Holiday(tt.date, DeptEdit); ok {
				t.Error("holiday leaked into department without regions")
			}
		})
	}
}

func TestAdvance(t *testing.T) {
	cal := usCalendar()

	tests := []struct {
		name  string
		start time.Time
		n     int
		want  time.Time
	}{
		{"one day task ends same day", Date(2025, 1, 6), 1, Date(2025, 1, 6)},
		{"skips weekend", Date(2025, 1, 3), 3, Date(2025, 1, 7)},
		{"snaps forward from saturday", Date(2025, 1, 4), 1, Date(2025, 1, 6)},
		{"skips new year", Date(2024, 12, 31), 2, Date(2025, 1, 2)},
		{"starting on holiday", Date(2025, 1, 1), 1, Date(2025, 1, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.Advance(tt.start, tt.n, editCtx)
			if err != nil {
				t.Fatalf("Advance failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Advance(%s, %d) = %s, want %s", Format(tt.start), tt.n, Format(got), Format(tt.want))
			}
		})
	}
}

func TestAdvanceRejectsZeroDuration(t *testing.T) {
	cal := usCalendar()
	for _, n := range []int{0, -2} {
		if _, err := cal.Advance(Date(2025, 1, 6), n, editCtx); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("Advance(n=%d) error = %v, want ErrInvalidDuration", n, err)
		}
	}
}

func TestRewindNextAndOffset(t *testing.T) {
	cal := usCalendar()

	got, err := cal.Rewind(Date(2025, 1, 8), 3, editCtx)
	if err != nil {
		t.Fatalf("Rewind failed: %v", err)
	}
	if want := Date(2025, 1, 3); !got.Equal(want) {
		t.Errorf("Rewind = %s, want %s", Format(got), Format(want))
	}

	got, err = cal.Rewind(Date(2025, 1, 8), 0, editCtx)
	if err != nil || !got.Equal(Date(2025, 1, 8)) {
		t.Errorf("Rewind by zero = %s, %v", Format(got), err)
	}

	got, err = cal.NextBusinessDay(Date(2025, 1, 3), editCtx)
	if err != nil {
		t.Fatalf("NextBusinessDay failed: %v", err)
	}
	if want := Date(2025, 1, 6); !got.Equal(want) {
		t.Errorf("NextBusinessDay = %s, want %s", Format(got), Format(want))
	}

	// Strictly after, even when the input is a business day.
	got, _ = cal.NextBusinessDay(Date(2025, 1, 6), editCtx)
	if want := Date(2025, 1, 7); !got.Equal(want) {
		t.Errorf("NextBusinessDay = %s, want %s", Format(got), Format(want))
	}

	for _, tc := range []struct {
		n    int
		want time.Time
	}{
		{-1, Date(2025, 1, 3)},
		{2, Date(2025, 1, 8)},
		{0, Date(2025, 1, 6)},
	} {
		got, err := cal.Offset(Date(2025, 1, 6), tc.n, editCtx)
		if err != nil {
			t.Fatalf("Offset(%d) failed: %v", tc.n, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("Offset(%d) = %s, want %s", tc.n, Format(got), Format(tc.want))
		}
	}
}

func TestCountBusinessDays(t *testing.T) {
	cal := usCalendar()

	if got := cal.CountBusinessDays(Date(2025, 1, 6), Date(2025, 1, 13), editCtx); got != 5 {
		t.Errorf("CountBusinessDays = %d, want 5", got)
	}
	if got := cal.CountBusinessDays(Date(2025, 1, 13), Date(2025, 1, 6), editCtx); got != -5 {
		t.Errorf("reversed CountBusinessDays = %d, want -5", got)
	}
	if got := cal.CountBusinessDays(Date(2025, 1, 6), Date(2025, 1, 6), editCtx); got != 0 {
		t.Errorf("empty range = %d, want 0", got)
	}
}

func TestWalkBound(t *testing.T) {
	cal := New(Config{Hiatuses: []Hiatus{{Start: Date(2025, 1, 1), End: Date(2045, 1, 1)}}})
	if _, err := cal.Advance(Date(2025, 1, 2), 1, editCtx); !errors.Is(err, ErrNoBusinessDay) {
		t.Errorf("expected ErrNoBusinessDay, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("start", "2025-02-03")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	if !d.Equal(Date(2025, 2, 3)) {
		t.Errorf("ParseDate = %v", d)
	}

	_, err = ParseDate("start", "02/03/2025")
	var dateErr *InvalidDateError
	if !errors.As(err, &dateErr) {
		t.Fatalf("expected InvalidDateError, got %v", err)
	}
	if dateErr.Field != "start" {
		t.Errorf("Field = %q, want start", dateErr.Field)
	}
}

func TestEasterSunday(t *testing.T) {
	for year, want := range map[int]time.Time{
		2024: Date(2024, 3, 31),
		2025: Date(2025, 4, 20),
		2026: Date(2026, 4, 5),
	} {
		if got := easterSunday(year); !got.Equal(want) {
			t.Errorf("easterSunday(%d) = %s, want %s", year, Format(got), Format(want))
		}
	}
}
