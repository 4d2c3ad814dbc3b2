// Package scheduler places episode tasks on the calendar with a greedy,
// resource-aware earliest-start loop.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aristath/postsched/internal/calendar"
)

// DefaultSafetyFactor bounds the placement loop at tasks × factor iterations.
const DefaultSafetyFactor = 200

// ErrSafetyBound signals that the placement loop stopped making progress.
var ErrSafetyBound = errors.New("placement loop exceeded safety bound")

// ShootingBlock is a range of principal photography. Its director is
// unavailable for post work while the block runs.
type ShootingBlock struct {
	Index    int
	Director string
	Episodes []int
	Start    time.Time
	End      time.Time
}

// UnsatisfiableGraphError is returned when tasks remain that can never become ready.
// Partial holds the graph with every task that could be placed.
type UnsatisfiableGraphError struct {
	Stuck   []string
	Cause   error
	Partial *DAG
}

func (e *UnsatisfiableGraphError) Error() string {
	msg := fmt.Sprintf("cannot schedule %d task(s): %s", len(e.Stuck), strings.Join(e.Stuck, ", "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnsatisfiableGraphError) Unwrap() error { return e.Cause }

// Options configures a Scheduler.
type Options struct {
	// Blocks are the shooting blocks; their directors are blocked while they run.
	Blocks []ShootingBlock
	// WrapDates maps episode -> shoot wrap, the floor of EntryStage tasks without predecessors.
	WrapDates map[int]time.Time
	// EntryStage names the first creative stage of an episode.
	EntryStage string
	// Release derives release markers after placement; nil disables them.
	Release *ReleaseOptions
	// SafetyFactor overrides DefaultSafetyFactor when positive.
	SafetyFactor int
	Logger       *slog.Logger
}

// Scheduler assigns dates to every unanchored task of a DAG.
type Scheduler struct {
	cal    *calendar.Calendar
	opts   Options
	logger *slog.Logger
}

// New creates a Scheduler.
func New(cal *calendar.Calendar, opts Options) *Scheduler {
	if opts.SafetyFactor <= 0 {
		opts.SafetyFactor = DefaultSafetyFactor
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cal: cal, opts: opts, logger: logger}
}

// candidate is a ready task with its computed earliest start.
type candidate struct {
	task  *Task
	index int
	start time.Time
}

// Schedule places every unanchored task and returns a new DAG. The input is
// never modified. Anchored tasks keep their dates and pre-block their resources.
func (s *Scheduler) Schedule(in *DAG) (*DAG, error) {
	// g is private to this call, so the loop below reads its fields without locking.
	g := in.Clone()

	// Release markers are derived output; drop the previous pass's markers.
	for _, id := range append([]string(nil), g.order...) {
		if t := g.tasks[id]; t.Kind == KindMilestone && t.Stage.Name == ReleaseStage {
			if err := g.Remove(id); err != nil {
				return nil, err
			}
		}
	}

	index := make(map[string]int, len(g.order))
	watermarks := NewWatermarks()
	remaining := 0

	for i, id := range g.order {
		t := g.tasks[id]
		index[id] = i
		t.Conflict = false

		if t.State == StateAnchored {
			if err := s.settleAnchor(t); err != nil {
				return nil, err
			}
			next, err := s.cal.NextBusinessDay(t.End, t.Context())
			if err != nil {
				return nil, fmt.Errorf("pre-blocking resources of %s: %w", t.ID, err)
			}
			watermarks.Raise(t.Resources, next)
			continue
		}

		t.State = StateUnscheduled
		t.Start, t.End = time.Time{}, time.Time{}
		remaining++
	}

	limit := len(g.order) * s.opts.SafetyFactor
	for iter := 0; remaining > 0; iter++ {
		if iter >= limit {
			return nil, s.stuck(g, ErrSafetyBound)
		}

		var ready []candidate
		for _, id := range g.order {
			t := g.tasks[id]
			if !g.isReady(t) {
				continue
			}
			start, err := s.earliestStart(g, t, watermarks)
			if err != nil {
				return nil, err
			}
			ready = append(ready, candidate{task: t, index: index[id], start: start})
		}

		if len(ready) == 0 {
			return nil, s.stuck(g, nil)
		}

		slices.SortFunc(ready, compareCandidates)
		next := ready[0]
		t := next.task
		ctx := t.Context()

		start, err := s.cal.Snap(next.start, ctx)
		if err != nil {
			return nil, fmt.Errorf("placing %s: %w", t.ID, err)
		}
		end, err := s.cal.Advance(start, t.Stage.Duration, ctx)
		if err != nil {
			return nil, fmt.Errorf("placing %s: %w", t.ID, err)
		}
		t.Start, t.End, t.State = start, end, StateScheduled
		remaining--

		free, err := s.cal.NextBusinessDay(end, ctx)
		if err != nil {
			return nil, fmt.Errorf("advancing watermark after %s: %w", t.ID, err)
		}
		watermarks.Raise(t.Resources, free)
	}

	if s.opts.Release != nil {
		if err := s.addReleaseMarkers(g, *s.opts.Release); err != nil {
			return nil, err
		}
	}

	markConflicts(g, s.opts.Blocks)

	s.logger.Debug("schedule placed", "tasks", len(g.order))
	return g, nil
}

// compareCandidates orders by start, then priority, then episode, then insertion.
func compareCandidates(a, b candidate) int {
	if c := a.start.Compare(b.start); c != 0 {
		return c
	}
	if a.task.Stage.Priority != b.task.Stage.Priority {
		if a.task.Stage.Priority < b.task.Stage.Priority {
			return -1
		}
		return 1
	}
	if a.task.Episode != b.task.Episode {
		return a.task.Episode - b.task.Episode
	}
	return a.index - b.index
}

// settleAnchor fills in a missing end date of an anchored task.
func (s *Scheduler) settleAnchor(t *Task) error {
	if t.Start.IsZero() {
		return fmt.Errorf("anchored task %s has no start date", t.ID)
	}
	if t.End.IsZero() {
		end, err := s.cal.Advance(t.Start, max(t.Stage.Duration, 1), t.Context())
		if err != nil {
			return fmt.Errorf("settling anchor %s: %w", t.ID, err)
		}
		t.End = end
	}
	return nil
}

// earliestStart combines the dependency floor, any unlinked-move floor and
// the resource floor.
func (s *Scheduler) earliestStart(g *DAG, t *Task, wm *Watermarks) (time.Time, error) {
	base, err := s.dependencyFloor(g, t)
	if err != nil {
		return time.Time{}, err
	}
	if !t.Floor.IsZero() {
		base = calendar.Max(base, t.Floor)
	}

	// A push for one resource can move the window into another director's
	// block, so repeat until the floor settles.
	for i := 0; i <= len(s.opts.Blocks); i++ {
		res, err := s.resourceFloor(t, wm, base)
		if err != nil {
			return time.Time{}, err
		}
		if !res.After(base) {
			break
		}
		base = res
	}
	return base, nil
}

// dependencyFloor is the business day after the latest delayed predecessor end.
func (s *Scheduler) dependencyFloor(g *DAG, t *Task) (time.Time, error) {
	ctx := t.Context()

	if len(t.Predecessors) == 0 {
		if t.Stage.Name == s.opts.EntryStage {
			if wrap, ok := s.opts.WrapDates[t.Episode]; ok {
				return s.cal.NextBusinessDay(wrap, ctx)
			}
		}
		return calendar.Epoch, nil
	}

	var latest time.Time
	for _, link := range t.Predecessors {
		pred := g.tasks[link.TaskID]
		end, err := s.delayed(pred.End, link.Delay, ctx)
		if err != nil {
			return time.Time{}, fmt.Errorf("resolving %s -> %s: %w", pred.ID, t.ID, err)
		}
		latest = calendar.Max(latest, end)
	}
	return s.cal.NextBusinessDay(latest, ctx)
}

// delayed shifts a predecessor end by a link delay.
func (s *Scheduler) delayed(end time.Time, delay int, ctx calendar.Context) (time.Time, error) {
	switch {
	case delay < 0:
		return s.cal.Rewind(end, -delay, ctx)
	case delay > 0:
		return s.cal.Advance(end, delay, ctx)
	}
	return end, nil
}

// resourceFloor is the latest watermark of the task's resources, pushed past
// any shooting block of a director resource that the task window would overlap.
// The window is probed from the later of the watermark and from.
func (s *Scheduler) resourceFloor(t *Task, wm *Watermarks, from time.Time) (time.Time, error) {
	floor := calendar.Epoch
	ctx := t.Context()

	for _, r := range t.Resources {
		if r == "" {
			continue
		}
		avail := calendar.Max(wm.Get(r), from)

		var blocks []ShootingBlock
		for _, b := range s.opts.Blocks {
			if b.Director == r {
				blocks = append(blocks, b)
			}
		}

		// Each push lands strictly after a block, so a block is cleared at most once.
		for pushes := 0; pushes <= len(blocks); pushes++ {
			start, err := s.cal.Snap(avail, ctx)
			if err != nil {
				return time.Time{}, err
			}
			end, err := s.cal.Advance(start, t.Stage.Duration, ctx)
			if err != nil {
				return time.Time{}, fmt.Errorf("probing window of %s: %w", t.ID, err)
			}

			blocked := false
			for _, b := range blocks {
				if calendar.Overlaps(start, end, b.Start, b.End) {
					if avail, err = s.cal.NextBusinessDay(b.End, ctx); err != nil {
						return time.Time{}, err
					}
					blocked = true
					break
				}
			}
			if !blocked {
				break
			}
		}

		floor = calendar.Max(floor, avail)
	}
	return floor, nil
}

// stuck builds the unsatisfiable-graph error.
func (s *Scheduler) stuck(g *DAG, cause error) error {
	var ids []string
	for _, id := range g.order {
		if g.tasks[id].State == StateUnscheduled {
			ids = append(ids, id)
		}
	}

	if cause == nil {
		_, cause = g.Validate()
	}

	s.logger.Warn("schedule stuck", "unscheduled", len(ids), "error", cause)
	return &UnsatisfiableGraphError{Stuck: ids, Cause: cause, Partial: g.Clone()}
}
