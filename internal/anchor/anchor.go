// Package anchor moves tasks by hand and reconciles those manual positions
// with the automatic schedule.
package anchor

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/pipeline"
	"github.com/aristath/postsched/internal/scheduler"
)

// Policy selects how a manual move is applied.
type Policy int

const (
	// PolicyLinked fixes the task's dates and drops its edges.
	PolicyLinked Policy = iota
	// PolicyUnlinked keeps the task automatic with an earliest-start floor.
	PolicyUnlinked
)

func (p Policy) String() string {
	if p == PolicyUnlinked {
		return "unlinked"
	}
	return "linked"
}

// ErrMilestone is returned when a synthetic milestone is moved or released.
var ErrMilestone = errors.New("milestones cannot be moved")

// Anchor moves task id to start.
//
// Linked: the task becomes anchored at the first business day on or after
// start, its predecessor links are cleared and the links it had before its
// first anchoring are kept as original predecessors. Linked siblings that
// are placed and automatic shift by the same number of business days and
// become anchored in turn.
//
// Unlinked: a previously anchored task is released first, then the task
// gains a floor and stays automatic.
func Anchor(g *scheduler.DAG, cal *calendar.Calendar, id string, start time.Time, policy Policy) error {
	task, ok := g.Get(id)
	if !ok {
		return fmt.Errorf("anchoring %q: %w", id, scheduler.ErrTaskNotFound)
	}
	if task.Kind == scheduler.KindMilestone {
		return fmt.Errorf("anchoring %q: %w", id, ErrMilestone)
	}
	start = calendar.Normalize(start)

	if policy == PolicyUnlinked {
		if task.State == scheduler.StateAnchored {
			if err := Release(g, id); err != nil {
				return err
			}
		}
		return g.Update(id, func(t *scheduler.Task) error {
			t.Floor = start
			return nil
		})
	}

	shift := 0
	if task.Placed() {
		shift = cal.CountBusinessDays(task.Start, start, task.Context())
	}
	if err := fix(g, cal, task, start); err != nil {
		return err
	}

	// Siblings cascade through a worklist so chains never recurse.
	queue := []*scheduler.Task{task}
	seen := map[string]bool{id: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, sib := range linkedSiblings(g, cur) {
			if seen[sib.ID] {
				continue
			}
			seen[sib.ID] = true

			sibStart, err := cal.Offset(sib.Start, shift, sib.Context())
			if err != nil {
				return fmt.Errorf("shifting %s: %w", sib.ID, err)
			}
			if err := fix(g, cal, sib, sibStart); err != nil {
				return err
			}
			queue = append(queue, sib)
		}
	}
	return nil
}

// fix anchors one task at start. Original predecessors are captured only on
// the transition into the anchored state.
func fix(g *scheduler.DAG, cal *calendar.Calendar, task *scheduler.Task, start time.Time) error {
	ctx := task.Context()
	start, err := cal.Snap(start, ctx)
	if err != nil {
		return fmt.Errorf("anchoring %s: %w", task.ID, err)
	}
	end, err := cal.Advance(start, task.Stage.Duration, ctx)
	if err != nil {
		return fmt.Errorf("anchoring %s: %w", task.ID, err)
	}

	return g.Update(task.ID, func(t *scheduler.Task) error {
		if t.State != scheduler.StateAnchored {
			t.OriginalPredecessors = append([]scheduler.Link{}, t.Predecessors...)
		}
		t.Predecessors = nil
		t.State = scheduler.StateAnchored
		t.Start, t.End = start, end
		t.Floor = time.Time{}
		return nil
	})
}

// linkedSiblings returns the placed, automatic tasks that move with task:
// Producer Notes carries its Director's Cut v2, and Director's Cut v2 carries
// the producer's and studio cuts of its episode that start on or after it.
// task holds the position before the move.
func linkedSiblings(g *scheduler.DAG, task *scheduler.Task) []*scheduler.Task {
	var out []*scheduler.Task
	switch task.Stage.Name {
	case pipeline.StageProducerNotes:
		if sib, ok := g.Find(task.Episode, pipeline.StageDirectorsCutV2); ok && movable(sib) {
			out = append(out, sib)
		}

	case pipeline.StageDirectorsCutV2:
		for _, sib := range g.Tasks() {
			if sib.Episode != task.Episode || !movable(sib) || sib.Start.Before(task.Start) {
				continue
			}
			if sib.Stage.Name == pipeline.StageProducersCut || pipeline.IsStudioCutStage(sib.Stage.Name) {
				out = append(out, sib)
			}
		}
	}
	return out
}

func movable(t *scheduler.Task) bool {
	return t.Kind == scheduler.KindStage && t.State == scheduler.StateScheduled
}

// Release returns task id and every anchored task downstream of it, by
// original predecessors, to automatic scheduling. Restored links to tasks
// that no longer exist are dropped.
func Release(g *scheduler.DAG, id string) error {
	task, ok := g.Get(id)
	if !ok {
		return fmt.Errorf("releasing %q: %w", id, scheduler.ErrTaskNotFound)
	}
	if task.Kind == scheduler.KindMilestone {
		return fmt.Errorf("releasing %q: %w", id, ErrMilestone)
	}

	queue := []string{id}
	seen := map[string]bool{id: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if err := releaseOne(g, cur); err != nil {
			return err
		}

		for _, t := range g.Tasks() {
			if seen[t.ID] || t.State != scheduler.StateAnchored || t.Kind != scheduler.KindStage {
				continue
			}
			if slices.ContainsFunc(t.OriginalPredecessors, func(l scheduler.Link) bool { return l.TaskID == cur }) {
				seen[t.ID] = true
				queue = append(queue, t.ID)
			}
		}
	}
	return nil
}

// releaseOne un-anchors a single task.
func releaseOne(g *scheduler.DAG, id string) error {
	task, ok := g.Get(id)
	if !ok {
		return fmt.Errorf("releasing %q: %w", id, scheduler.ErrTaskNotFound)
	}
	if task.State != scheduler.StateAnchored {
		return nil
	}

	restored := g.FilterLinks(task.OriginalPredecessors)
	return g.Update(id, func(t *scheduler.Task) error {
		if t.OriginalPredecessors != nil {
			t.Predecessors = restored
		}
		t.OriginalPredecessors = nil
		t.State = scheduler.StateUnscheduled
		t.Start, t.End = time.Time{}, time.Time{}
		return nil
	})
}

// FloorMode selects what happens to unlinked floors when manual moves
// switch back to linked mode.
type FloorMode int

const (
	// ConvertToAnchors anchors every floored task at its current position.
	ConvertToAnchors FloorMode = iota
	// ResetFloors drops every floor.
	ResetFloors
)

// ConvertFloors applies mode to every task with a floor and returns the IDs touched.
func ConvertFloors(g *scheduler.DAG, cal *calendar.Calendar, mode FloorMode) ([]string, error) {
	var touched []string
	for _, t := range g.Tasks() {
		if t.Floor.IsZero() {
			continue
		}
		touched = append(touched, t.ID)

		if mode == ResetFloors || t.State == scheduler.StateAnchored {
			if err := g.Update(t.ID, func(t *scheduler.Task) error {
				t.Floor = time.Time{}
				return nil
			}); err != nil {
				return nil, err
			}
			continue
		}

		start := t.Floor
		if t.Placed() {
			start = t.Start
		}
		if err := fix(g, cal, t, start); err != nil {
			return nil, err
		}
	}
	return touched, nil
}
