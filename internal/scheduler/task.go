package scheduler

import (
	"slices"
	"time"

	"github.com/aristath/postsched/internal/calendar"
)

// State represents where a task is in the placement lifecycle.
type State int

const (
	StateUnscheduled State = iota // Waiting for placement
	StateScheduled                // Placed by the scheduler
	StateAnchored                 // Dates fixed by the user, never moved by the scheduler
)

func (s State) String() string {
	switch s {
	case StateUnscheduled:
		return "unscheduled"
	case StateScheduled:
		return "scheduled"
	case StateAnchored:
		return "anchored"
	}
	return "unknown"
}

// Kind separates template stages from tasks the template does not produce.
type Kind int

const (
	KindStage     Kind = iota // Instantiated from the episode template
	KindAdHoc                 // Free task added by hand
	KindMilestone             // Synthetic date marker (shoot wrap, release)
)

// Stage describes one unit of work in an episode pipeline.
type Stage struct {
	Name       string
	Duration   int // business days
	Department calendar.Department
	Visible    bool
	Priority   float64 // lower wins ties
}

// Link is a predecessor reference. Delay is in business days and resolves
// against the predecessor's end date; a negative delay permits overlap.
type Link struct {
	TaskID string
	Delay  int
}

// Task represents one schedulable unit in the DAG.
type Task struct {
	ID                   string
	Episode              int
	Stage                Stage
	Kind                 Kind
	Predecessors         []Link
	OriginalPredecessors []Link // captured when the task is first anchored
	Resources            []string
	State                State
	Start                time.Time
	End                  time.Time
	Floor                time.Time // earliest start from an unlinked move; zero when unset
	Conflict             bool      // shares a resource with an overlapping commitment
}

// Context returns the calendar context the task's dates are computed in.
func (t *Task) Context() calendar.Context {
	return calendar.Context{
		Department: t.Stage.Department,
		Episode:    t.Episode,
		Resources:  t.Resources,
	}
}

// Placed reports whether the task has dates.
func (t *Task) Placed() bool {
	return t.State == StateScheduled || t.State == StateAnchored
}

// HasResource reports whether name is assigned to the task.
func (t *Task) HasResource(name string) bool {
	return slices.Contains(t.Resources, name)
}

// DependsOn reports whether id is a live predecessor.
func (t *Task) DependsOn(id string) bool {
	for _, l := range t.Predecessors {
		if l.TaskID == id {
			return true
		}
	}
	return false
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.Predecessors != nil {
		cp.Predecessors = append([]Link(nil), task.Predecessors...)
	}
	if task.OriginalPredecessors != nil {
		cp.OriginalPredecessors = append([]Link(nil), task.OriginalPredecessors...)
	}
	if task.Resources != nil {
		cp.Resources = append([]string(nil), task.Resources...)
	}
	return &cp
}
