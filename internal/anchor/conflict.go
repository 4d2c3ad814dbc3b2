package anchor

import (
	"fmt"
	"time"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/scheduler"
)

// Action is the resolution of a single conflict.
type Action int

const (
	ActionPreserve Action = iota // keep the manual position
	ActionUpdate                 // release the anchor and take the computed position
)

func (a Action) String() string {
	if a == ActionUpdate {
		return "update"
	}
	return "preserve"
}

// Conflict reports an anchored task whose manual position disagrees with
// the automatic schedule after a configuration change.
type Conflict struct {
	TaskID       string
	Episode      int
	Stage        string
	IdealStart   time.Time
	IdealEnd     time.Time
	CurrentStart time.Time
	CurrentEnd   time.Time
	// Delta is the signed business-day offset from the ideal start to the current start.
	Delta            int
	DirectlyAffected bool
	CreatesConflict  bool
	Reason           string
	Recommended      Action
}

// Conflict reasons, in priority order.
const (
	ReasonDirect      = "Task duration or dependencies changed by the configuration update"
	ReasonViolation   = "Manual position creates resource or dependency conflicts"
	ReasonFarFromPlan = "Manual position is significantly different from the optimal schedule"
	ReasonDrift       = "Manual position may need adjustment due to schedule changes"
)

// farFromPlanDays is the calendar-day offset beyond which a drift is called significant.
const farFromPlanDays = 7

// Ideal returns a private copy of g with every template anchor released and
// its original predecessors restored. Ad hoc tasks and milestones keep their
// state. The caller re-links and schedules the copy.
func Ideal(g *scheduler.DAG) (*scheduler.DAG, error) {
	ideal := g.Clone()
	for _, t := range ideal.Tasks() {
		if t.State != scheduler.StateAnchored || t.Kind != scheduler.KindStage {
			continue
		}
		if err := releaseOne(ideal, t.ID); err != nil {
			return nil, fmt.Errorf("ideal schedule: %w", err)
		}
	}
	return ideal, nil
}

// Detect compares each anchored template task of the scheduled actual graph
// with its counterpart in the scheduled ideal graph.
func Detect(actual, ideal *scheduler.DAG, changes []Change, cal *calendar.Calendar) ([]Conflict, error) {
	var out []Conflict
	for _, t := range actual.Tasks() {
		if t.State != scheduler.StateAnchored || t.Kind != scheduler.KindStage {
			continue
		}
		want, ok := ideal.Get(t.ID)
		if !ok || !want.Placed() {
			continue
		}

		ctx := t.Context()
		delta := cal.CountBusinessDays(want.Start, t.Start, ctx)

		direct := false
		for _, c := range changes {
			if c.Affects(t) {
				direct = true
				break
			}
		}

		bad, err := violates(actual, cal, t)
		if err != nil {
			return nil, err
		}

		if abs(delta) <= 1 && !direct && !bad {
			continue
		}

		c := Conflict{
			TaskID:           t.ID,
			Episode:          t.Episode,
			Stage:            t.Stage.Name,
			IdealStart:       want.Start,
			IdealEnd:         want.End,
			CurrentStart:     t.Start,
			CurrentEnd:       t.End,
			Delta:            delta,
			DirectlyAffected: direct,
			CreatesConflict:  bad,
		}
		switch {
		case direct:
			c.Reason = ReasonDirect
			c.Recommended = ActionUpdate
		case bad:
			c.Reason = ReasonViolation
		case abs(calendar.DaysBetween(want.Start, t.Start)) > farFromPlanDays:
			c.Reason = ReasonFarFromPlan
		default:
			c.Reason = ReasonDrift
		}
		out = append(out, c)
	}
	return out, nil
}

// violates reports whether an anchored task overlaps another commitment of
// one of its resources, starts before an original predecessor allows, or
// ends after a placed dependent has started.
func violates(g *scheduler.DAG, cal *calendar.Calendar, t *scheduler.Task) (bool, error) {
	if t.Conflict {
		return true, nil
	}

	ctx := t.Context()
	for _, l := range t.OriginalPredecessors {
		pred, ok := g.Get(l.TaskID)
		if !ok || !pred.Placed() {
			continue
		}
		floor := pred.End
		var err error
		switch {
		case l.Delay < 0:
			floor, err = cal.Rewind(pred.End, -l.Delay, ctx)
		case l.Delay > 0:
			floor, err = cal.Advance(pred.End, l.Delay, ctx)
		}
		if err != nil {
			return false, fmt.Errorf("checking %s against %s: %w", t.ID, pred.ID, err)
		}
		if !t.Start.After(floor) {
			return true, nil
		}
	}

	for _, id := range g.Dependents(t.ID) {
		dep, ok := g.Get(id)
		if ok && dep.Placed() && !dep.Start.After(t.End) {
			return true, nil
		}
	}
	return false, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Mode selects how a set of conflicts is resolved.
type Mode int

const (
	ModeSelective   Mode = iota // per-conflict Choices, preserve when absent
	ModePreserveAll             // keep every manual position
	ModeUpdateAll               // release every conflicting anchor
	ModeRecommended             // apply each conflict's recommended action
)

func (m Mode) String() string {
	switch m {
	case ModePreserveAll:
		return "preserve-all"
	case ModeUpdateAll:
		return "update-all"
	case ModeRecommended:
		return "recommended"
	}
	return "selective"
}

// ParseMode parses the bulk policy names accepted on the command line.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModePreserveAll, ModeUpdateAll, ModeRecommended, ModeSelective} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown resolution mode %q", s)
}

// Resolution is the user's answer to a set of conflicts.
type Resolution struct {
	Mode    Mode
	Choices map[string]Action // task ID -> action, ModeSelective only
}

// Decide returns the action Resolution r picks for c.
func (r Resolution) Decide(c Conflict) Action {
	switch r.Mode {
	case ModeUpdateAll:
		return ActionUpdate
	case ModeRecommended:
		return c.Recommended
	case ModeSelective:
		return r.Choices[c.TaskID]
	}
	return ActionPreserve
}

// Resolve applies r to g. Updated anchors are released one by one with their
// original predecessors restored; preserved anchors are left untouched.
// It returns the IDs of released tasks.
func Resolve(g *scheduler.DAG, conflicts []Conflict, r Resolution) ([]string, error) {
	var released []string
	for _, c := range conflicts {
		if r.Decide(c) != ActionUpdate {
			continue
		}
		if err := releaseOne(g, c.TaskID); err != nil {
			return released, fmt.Errorf("resolving %s: %w", c.TaskID, err)
		}
		released = append(released, c.TaskID)
	}
	return released, nil
}
