package scheduler

import (
	"sort"
	"time"

	"github.com/aristath/postsched/internal/calendar"
)

// Commitment is a whole-day range a resource is booked for.
// TaskID is empty for shooting blocks.
type Commitment struct {
	Resource string
	TaskID   string
	Block    int
	Start    time.Time
	End      time.Time
}

// Overlap is a pair of commitments of one resource that share a day.
type Overlap struct {
	Resource string
	A, B     Commitment
}

// FindOverlaps lists every pair of overlapping commitments per resource.
// Placed tasks with resources and the directors' shooting blocks take part.
func FindOverlaps(tasks []*Task, blocks []ShootingBlock) []Overlap {
	byResource := make(map[string][]Commitment)
	for _, t := range tasks {
		if !t.Placed() || t.Kind == KindMilestone {
			continue
		}
		for _, r := range t.Resources {
			if r == "" {
				continue
			}
			byResource[r] = append(byResource[r], Commitment{Resource: r, TaskID: t.ID, Start: t.Start, End: t.End})
		}
	}
	for _, b := range blocks {
		if b.Director == "" {
			continue
		}
		byResource[b.Director] = append(byResource[b.Director], Commitment{Resource: b.Director, Block: b.Index, Start: b.Start, End: b.End})
	}

	resources := make([]string, 0, len(byResource))
	for r := range byResource {
		resources = append(resources, r)
	}
	sort.Strings(resources)

	var out []Overlap
	for _, r := range resources {
		list := byResource[r]
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				a, b := list[i], list[j]
				if a.TaskID == "" && b.TaskID == "" {
					continue // blocks never conflict with each other
				}
				if calendar.Overlaps(a.Start, a.End, b.Start, b.End) {
					out = append(out, Overlap{Resource: r, A: a, B: b})
				}
			}
		}
	}
	return out
}

// markConflicts sets the Conflict flag on exactly the tasks that appear in an overlap.
func markConflicts(g *DAG, blocks []ShootingBlock) {
	tasks := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		t := g.tasks[id]
		t.Conflict = false
		tasks = append(tasks, t)
	}

	for _, o := range FindOverlaps(tasks, blocks) {
		for _, id := range []string{o.A.TaskID, o.B.TaskID} {
			if t, ok := g.tasks[id]; ok {
				t.Conflict = true
			}
		}
	}
}
