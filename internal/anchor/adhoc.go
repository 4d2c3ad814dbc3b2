package anchor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/scheduler"
)

// ErrNotAdHoc is returned when removing a task the template produced.
var ErrNotAdHoc = errors.New("only ad hoc tasks can be removed")

// ErrUnplaceable is returned for an ad hoc task with neither a start date
// nor a predecessor to follow.
var ErrUnplaceable = errors.New("ad hoc task needs a start date or a predecessor")

// AdHocTask describes a free task added by hand.
type AdHocTask struct {
	Episode      int // calendar.NoEpisode for show-wide work
	Name         string
	Department   calendar.Department
	Duration     int
	Resources    []string
	Predecessors []scheduler.Link
	// Start anchors the task; zero lets the scheduler place it after its predecessors.
	Start time.Time
}

// AddAdHoc adds a free task and returns its ID.
func AddAdHoc(g *scheduler.DAG, cal *calendar.Calendar, spec AdHocTask) (string, error) {
	if spec.Name == "" {
		return "", errors.New("ad hoc task needs a name")
	}
	if spec.Duration < 1 {
		return "", fmt.Errorf("ad hoc task %q: %w", spec.Name, calendar.ErrInvalidDuration)
	}
	if spec.Start.IsZero() && len(spec.Predecessors) == 0 {
		return "", fmt.Errorf("ad hoc task %q: %w", spec.Name, ErrUnplaceable)
	}
	for _, l := range spec.Predecessors {
		if _, ok := g.Get(l.TaskID); !ok {
			return "", fmt.Errorf("ad hoc task %q: predecessor %q: %w", spec.Name, l.TaskID, scheduler.ErrTaskNotFound)
		}
	}

	task := &scheduler.Task{
		ID:      "adhoc-" + uuid.NewString(),
		Episode: spec.Episode,
		Stage: scheduler.Stage{
			Name:       spec.Name,
			Duration:   spec.Duration,
			Department: spec.Department,
			Visible:    true,
			Priority:   50,
		},
		Kind:         scheduler.KindAdHoc,
		Predecessors: append([]scheduler.Link(nil), spec.Predecessors...),
		Resources:    append([]string(nil), spec.Resources...),
	}

	if !spec.Start.IsZero() {
		ctx := task.Context()
		start, err := cal.Snap(spec.Start, ctx)
		if err != nil {
			return "", err
		}
		end, err := cal.Advance(start, spec.Duration, ctx)
		if err != nil {
			return "", err
		}
		task.State = scheduler.StateAnchored
		task.Start, task.End = start, end
		task.OriginalPredecessors = task.Predecessors
		task.Predecessors = nil
	}

	if err := g.AddTask(task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// RemoveAdHoc deletes an ad hoc task. Links to it are dropped. Removing
// the only predecessor of an automatic ad hoc task fails with ErrUnplaceable.
func RemoveAdHoc(g *scheduler.DAG, id string) error {
	task, ok := g.Get(id)
	if !ok {
		return fmt.Errorf("removing %q: %w", id, scheduler.ErrTaskNotFound)
	}
	if task.Kind != scheduler.KindAdHoc {
		return fmt.Errorf("removing %q: %w", id, ErrNotAdHoc)
	}
	for _, depID := range g.Dependents(id) {
		dep, ok := g.Get(depID)
		if ok && dep.Kind == scheduler.KindAdHoc && dep.State != scheduler.StateAnchored && len(dep.Predecessors) == 1 {
			return fmt.Errorf("removing %q leaves %q: %w", id, depID, ErrUnplaceable)
		}
	}
	return g.Remove(id)
}
