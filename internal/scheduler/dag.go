package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// ErrTaskNotFound is returned when a task ID is not in the DAG.
var ErrTaskNotFound = errors.New("task not found")

// DAG is an id-indexed arena of tasks. Links are stored as IDs, never as
// pointers, so a DAG can be cloned and serialized without cycles.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	order      []string            // Insertion order, the final scheduling tie-break
	dependents map[string][]string // Maps taskID -> list of tasks that depend on it
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// AddTask adds a task to the DAG. Returns error if task ID already exists.
// The DAG takes ownership of task.
func (d *DAG) AddTask(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	d.tasks[task.ID] = task
	d.order = append(d.order, task.ID)

	// Build dependents map for efficient downstream lookup
	for _, link := range task.Predecessors {
		d.dependents[link.TaskID] = append(d.dependents[link.TaskID], task.ID)
	}

	return nil
}

// AddEdge appends a predecessor link to taskID. A link to a predecessor the
// task already depends on is ignored, which keeps re-linking idempotent.
func (d *DAG) AddEdge(taskID string, link Link) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, ok := d.tasks[taskID]
	if !ok {
		return fmt.Errorf("adding edge to %q: %w", taskID, ErrTaskNotFound)
	}
	if _, ok := d.tasks[link.TaskID]; !ok {
		return fmt.Errorf("adding edge from %q: %w", link.TaskID, ErrTaskNotFound)
	}
	if task.DependsOn(link.TaskID) {
		return nil
	}

	task.Predecessors = append(task.Predecessors, link)
	d.dependents[link.TaskID] = append(d.dependents[link.TaskID], taskID)
	return nil
}

// Update applies fn to the stored task under the write lock.
// fn may rewrite predecessor links; the dependents index is rebuilt afterwards.
func (d *DAG) Update(taskID string, fn func(*Task) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, ok := d.tasks[taskID]
	if !ok {
		return fmt.Errorf("updating %q: %w", taskID, ErrTaskNotFound)
	}
	if err := fn(task); err != nil {
		return err
	}
	d.reindex()
	return nil
}

// Remove deletes a task and strips live links that point at it.
// Original predecessor snapshots keep the dangling ID; they are filtered on release.
func (d *DAG) Remove(taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.tasks[taskID]; !ok {
		return fmt.Errorf("removing %q: %w", taskID, ErrTaskNotFound)
	}

	delete(d.tasks, taskID)
	for i, id := range d.order {
		if id == taskID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}

	for _, task := range d.tasks {
		task.Predecessors = dropLinks(task.Predecessors, func(l Link) bool { return l.TaskID == taskID })
	}
	d.reindex()
	return nil
}

// reindex rebuilds the dependents map. Caller holds the write lock.
func (d *DAG) reindex() {
	d.dependents = make(map[string][]string, len(d.tasks))
	for _, id := range d.order {
		for _, link := range d.tasks[id].Predecessors {
			d.dependents[link.TaskID] = append(d.dependents[link.TaskID], id)
		}
	}
}

// Validate runs topological sort using gammazero/toposort.
// Returns ordered task IDs or error if cycle detected.
// Also verifies all predecessor IDs exist in the DAG.
func (d *DAG) Validate() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// First, verify all dependencies exist
	for _, taskID := range d.order {
		for _, link := range d.tasks[taskID].Predecessors {
			if _, exists := d.tasks[link.TaskID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, link.TaskID)
			}
		}
	}

	// Build edges for topological sort
	var edges []toposort.Edge
	for _, taskID := range d.order {
		task := d.tasks[taskID]
		if len(task.Predecessors) == 0 {
			// Task with no dependencies - add edge from nil to ensure it's included
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, link := range task.Predecessors {
			// Edge (pred, task) means pred must come before task
			edges = append(edges, toposort.Edge{link.TaskID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("DAG contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	// Verify all tasks are in the sorted result (catches disconnected components)
	if len(order) != len(d.tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, taskID := range d.order {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Ready returns unscheduled tasks whose predecessors are all placed,
// in insertion order.
func (d *DAG) Ready() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ready []*Task
	for _, id := range d.order {
		if task := d.tasks[id]; d.isReady(task) {
			ready = append(ready, cloneTask(task))
		}
	}
	return ready
}

// isReady reports whether task can be placed now. Caller holds a lock.
func (d *DAG) isReady(task *Task) bool {
	if task.State != StateUnscheduled {
		return false
	}
	for _, link := range task.Predecessors {
		dep, exists := d.tasks[link.TaskID]
		if !exists || !dep.Placed() {
			return false
		}
	}
	return true
}

// Get returns task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Find returns the task of an episode by stage name.
func (d *DAG) Find(episode int, name string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.order {
		if t := d.tasks[id]; t.Episode == episode && t.Stage.Name == name {
			return cloneTask(t), true
		}
	}
	return nil, false
}

// Tasks returns all tasks in insertion order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.order))
	for _, id := range d.order {
		tasks = append(tasks, cloneTask(d.tasks[id]))
	}
	return tasks
}

// Dependents returns the IDs of tasks with a live link to taskID.
func (d *DAG) Dependents(taskID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return append([]string(nil), d.dependents[taskID]...)
}

// Len returns the number of tasks.
func (d *DAG) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.order)
}

// Clone returns a deep copy. Scheduling passes work on clones so a failed or
// superseded run never touches the caller's graph.
func (d *DAG) Clone() *DAG {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cp := &DAG{
		tasks:      make(map[string]*Task, len(d.tasks)),
		order:      append([]string(nil), d.order...),
		dependents: make(map[string][]string, len(d.dependents)),
	}
	for id, task := range d.tasks {
		cp.tasks[id] = cloneTask(task)
	}
	for id, deps := range d.dependents {
		cp.dependents[id] = append([]string(nil), deps...)
	}
	return cp
}

// dropLinks returns links without the entries matching drop.
func dropLinks(links []Link, drop func(Link) bool) []Link {
	if links == nil {
		return nil
	}
	out := links[:0:0]
	for _, l := range links {
		if !drop(l) {
			out = append(out, l)
		}
	}
	return out
}

// FilterLinks drops links whose target is not in the DAG.
func (d *DAG) FilterLinks(links []Link) []Link {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return dropLinks(links, func(l Link) bool {
		_, ok := d.tasks[l.TaskID]
		return !ok
	})
}
