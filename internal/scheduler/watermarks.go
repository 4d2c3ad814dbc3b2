package scheduler

import (
	"sort"
	"time"

	"github.com/aristath/postsched/internal/calendar"
)

// Watermarks tracks, per resource, the earliest business day the resource is
// known to be free. Watermarks only move forward.
type Watermarks struct {
	marks map[string]time.Time
}

// NewWatermarks creates an empty tracker. Unknown resources read as the epoch.
func NewWatermarks() *Watermarks {
	return &Watermarks{
		marks: make(map[string]time.Time),
	}
}

// Get returns the watermark of a resource.
func (w *Watermarks) Get(resource string) time.Time {
	if t, ok := w.marks[resource]; ok {
		return t
	}
	return calendar.Epoch
}

// Raise moves the watermark of every resource in resources to at least t.
// Empty resource names are ignored.
func (w *Watermarks) Raise(resources []string, t time.Time) {
	for _, r := range resources {
		if r == "" {
			continue
		}
		if t.After(w.Get(r)) {
			w.marks[r] = t
		}
	}
}

// Floor returns the latest watermark among resources, or the epoch.
func (w *Watermarks) Floor(resources []string) time.Time {
	floor := calendar.Epoch
	for _, r := range resources {
		if r == "" {
			continue
		}
		floor = calendar.Max(floor, w.Get(r))
	}
	return floor
}

// Resources returns the tracked resource names sorted lexicographically.
func (w *Watermarks) Resources() []string {
	names := make([]string, 0, len(w.marks))
	for name := range w.marks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
