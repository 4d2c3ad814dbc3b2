package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	// TaskID is empty for schedule-wide events.
	TaskID() string
}

// Topic constants
const (
	TopicSchedule = "schedule"
	TopicTask     = "task"
	TopicConflict = "conflict"
)

// Event type constants
const (
	EventTypeRecalculated      = "schedule.recalculated"
	EventTypeRecalcFailed      = "schedule.failed"
	EventTypeSnapshotPersisted = "schedule.persisted"
	EventTypeTaskAnchored      = "task.anchored"
	EventTypeTaskReleased      = "task.released"
	EventTypeConflictsPending  = "conflict.pending"
	EventTypeConflictsResolved = "conflict.resolved"
)

// RecalculatedEvent is published when a new schedule snapshot is installed.
type RecalculatedEvent struct {
	Version   int
	Tasks     int
	Episodes  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e RecalculatedEvent) EventType() string { return EventTypeRecalculated }
func (e RecalculatedEvent) TaskID() string    { return "" }

// RecalcFailedEvent is published when a recalculation is rejected; the
// previous snapshot stays current.
type RecalcFailedEvent struct {
	Err       error
	Stuck     []string // unschedulable task IDs, if any
	Timestamp time.Time
}

func (e RecalcFailedEvent) EventType() string { return EventTypeRecalcFailed }
func (e RecalcFailedEvent) TaskID() string    { return "" }

// SnapshotPersistedEvent is published after a snapshot is written to the store.
type SnapshotPersistedEvent struct {
	Name      string
	Version   int
	Err       error
	Timestamp time.Time
}

func (e SnapshotPersistedEvent) EventType() string { return EventTypeSnapshotPersisted }
func (e SnapshotPersistedEvent) TaskID() string    { return "" }

// TaskAnchoredEvent is published when a task is moved by hand.
type TaskAnchoredEvent struct {
	ID        string
	Start     time.Time
	Linked    bool
	Timestamp time.Time
}

func (e TaskAnchoredEvent) EventType() string { return EventTypeTaskAnchored }
func (e TaskAnchoredEvent) TaskID() string    { return e.ID }

// TaskReleasedEvent is published when an anchor returns to automatic scheduling.
type TaskReleasedEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskReleasedEvent) EventType() string { return EventTypeTaskReleased }
func (e TaskReleasedEvent) TaskID() string    { return e.ID }

// ConflictSummary is the event view of one anchor conflict.
type ConflictSummary struct {
	TaskID      string
	Episode     int
	Stage       string
	Delta       int
	Reason      string
	Recommended string
}

// ConflictsPendingEvent is published when a recalculation stops for a decision.
type ConflictsPendingEvent struct {
	Conflicts []ConflictSummary
	Timestamp time.Time
}

func (e ConflictsPendingEvent) EventType() string { return EventTypeConflictsPending }
func (e ConflictsPendingEvent) TaskID() string    { return "" }

// ConflictsResolvedEvent is published after a resolution is applied.
type ConflictsResolvedEvent struct {
	Mode      string
	Released  []string
	Timestamp time.Time
}

func (e ConflictsResolvedEvent) EventType() string { return EventTypeConflictsResolved }
func (e ConflictsResolvedEvent) TaskID() string    { return "" }
