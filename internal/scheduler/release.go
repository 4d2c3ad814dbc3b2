package scheduler

import (
	"fmt"
	"slices"
	"time"

	"github.com/aristath/postsched/internal/calendar"
)

// ReleaseStage names the per-episode release marker.
const ReleaseStage = "Earliest Possible Release"

// maxReleaseGapDays is the widest allowed gap between consecutive releases.
const maxReleaseGapDays = 7

// ReleaseOptions configures release markers.
type ReleaseOptions struct {
	// SourceStage is the stage whose end starts the lead time (QC delivery).
	SourceStage string
	// LeadDays is the lead time in calendar days.
	LeadDays int
}

// ReleaseID returns the ID of an episode's release marker.
func ReleaseID(episode int) string {
	return fmt.Sprintf("ep%d-release", episode)
}

// ReleaseDates computes smoothed release dates from QC ends ordered by episode.
// Walking backward, an episode whose release would trail the next one by
// more than a week is moved to exactly one week before it.
func ReleaseDates(qcEnds []time.Time, leadDays int) []time.Time {
	out := make([]time.Time, len(qcEnds))
	for i, end := range qcEnds {
		out[i] = calendar.AddDays(end, leadDays)
	}
	for i := len(out) - 2; i >= 0; i-- {
		if calendar.DaysBetween(out[i], out[i+1]) > maxReleaseGapDays {
			out[i] = calendar.AddDays(out[i+1], -maxReleaseGapDays)
		}
	}
	return out
}

// addReleaseMarkers appends one release marker per episode with a placed source stage.
func (s *Scheduler) addReleaseMarkers(g *DAG, opts ReleaseOptions) error {
	var sources []*Task
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Stage.Name == opts.SourceStage && t.Placed() {
			sources = append(sources, t)
		}
	}
	if len(sources) == 0 {
		return nil
	}
	slices.SortStableFunc(sources, func(a, b *Task) int { return a.Episode - b.Episode })

	ends := make([]time.Time, len(sources))
	for i, t := range sources {
		ends[i] = t.End
	}

	for i, date := range ReleaseDates(ends, opts.LeadDays) {
		marker := &Task{
			ID:      ReleaseID(sources[i].Episode),
			Episode: sources[i].Episode,
			Stage: Stage{
				Name:       ReleaseStage,
				Duration:   1,
				Department: calendar.DeptDelivery,
				Visible:    true,
				Priority:   100,
			},
			Kind:  KindMilestone,
			State: StateScheduled,
			Start: date,
			End:   date,
		}
		if err := g.AddTask(marker); err != nil {
			return fmt.Errorf("adding release marker: %w", err)
		}
	}
	return nil
}
