package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/config"
	"github.com/aristath/postsched/internal/scheduler"
)

// FormatVersion is written into every document. Older versions are accepted.
const FormatVersion = 1

// ErrUnsupportedFormat is returned for documents from a newer format.
var ErrUnsupportedFormat = errors.New("unsupported snapshot format")

// LinkRecord is a predecessor reference by task ID.
type LinkRecord struct {
	TaskID string `json:"task_id"`
	Delay  int    `json:"delay,omitempty"`
}

// TaskRecord is the serialized form of one task. Dates are YYYY-MM-DD; empty
// means unset.
type TaskRecord struct {
	ID                   string       `json:"id"`
	Episode              int          `json:"episode"`
	Stage                string       `json:"stage"`
	Duration             int          `json:"duration"`
	Department           string       `json:"department"`
	Visible              bool         `json:"visible"`
	Priority             float64      `json:"priority"`
	Kind                 string       `json:"kind"`
	State                string       `json:"state"`
	Start                string       `json:"start,omitempty"`
	End                  string       `json:"end,omitempty"`
	Floor                string       `json:"floor,omitempty"`
	Resources            []string     `json:"resources,omitempty"`
	Predecessors         []LinkRecord `json:"predecessors,omitempty"`
	OriginalPredecessors []LinkRecord `json:"original_predecessors,omitempty"`
	Conflict             bool         `json:"conflict,omitempty"`
}

// Document is a complete schedule snapshot: the configuration it was computed
// from and every task with its links.
type Document struct {
	Format  int            `json:"format"`
	Name    string         `json:"name"`
	Version int            `json:"version"`
	SavedAt time.Time      `json:"saved_at"`
	Config  *config.Config `json:"config"`
	Tasks   []TaskRecord   `json:"tasks"`
}

// NewDocument captures g and cfg under name.
func NewDocument(name string, version int, cfg *config.Config, g *scheduler.DAG) *Document {
	doc := &Document{
		Format:  FormatVersion,
		Name:    name,
		Version: version,
		SavedAt: time.Now().UTC(),
		Config:  cfg.Clone(),
	}
	for _, t := range g.Tasks() {
		doc.Tasks = append(doc.Tasks, recordFor(t))
	}
	return doc
}

func recordFor(t *scheduler.Task) TaskRecord {
	return TaskRecord{
		ID:                   t.ID,
		Episode:              t.Episode,
		Stage:                t.Stage.Name,
		Duration:             t.Stage.Duration,
		Department:           string(t.Stage.Department),
		Visible:              t.Stage.Visible,
		Priority:             t.Stage.Priority,
		Kind:                 kindName(t.Kind),
		State:                t.State.String(),
		Start:                calendar.Format(t.Start),
		End:                  calendar.Format(t.End),
		Floor:                calendar.Format(t.Floor),
		Resources:            t.Resources,
		Predecessors:         linkRecords(t.Predecessors),
		OriginalPredecessors: linkRecords(t.OriginalPredecessors),
		Conflict:             t.Conflict,
	}
}

// Graph rebuilds the task graph. Links are resolved by ID; links to tasks
// that are not in the document are dropped.
func (d *Document) Graph() (*scheduler.DAG, error) {
	known := make(map[string]bool, len(d.Tasks))
	for _, r := range d.Tasks {
		known[r.ID] = true
	}

	g := scheduler.NewDAG()
	for _, r := range d.Tasks {
		task, err := r.task(known)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", r.ID, err)
		}
		if err := g.AddTask(task); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (r TaskRecord) task(known map[string]bool) (*scheduler.Task, error) {
	kind, err := parseKind(r.Kind)
	if err != nil {
		return nil, err
	}
	state, err := parseState(r.State)
	if err != nil {
		return nil, err
	}

	task := &scheduler.Task{
		ID:      r.ID,
		Episode: r.Episode,
		Stage: scheduler.Stage{
			Name:       r.Stage,
			Duration:   r.Duration,
			Department: calendar.Department(r.Department),
			Visible:    r.Visible,
			Priority:   r.Priority,
		},
		Kind:                 kind,
		State:                state,
		Resources:            r.Resources,
		Predecessors:         taskLinks(r.Predecessors, known),
		OriginalPredecessors: taskLinks(r.OriginalPredecessors, nil),
		Conflict:             r.Conflict,
	}
	for _, f := range []struct {
		name  string
		value string
		dst   *time.Time
	}{
		{"start", r.Start, &task.Start},
		{"end", r.End, &task.End},
		{"floor", r.Floor, &task.Floor},
	} {
		if f.value == "" {
			continue
		}
		if *f.dst, err = calendar.ParseDate(f.name, f.value); err != nil {
			return nil, err
		}
	}
	if task.Placed() && (task.Start.IsZero() || task.End.IsZero()) {
		return nil, fmt.Errorf("%s task without dates", task.State)
	}
	return task, nil
}

// Encode writes the document as indented JSON.
func (d *Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Decode reads a document written by Encode.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if doc.Format > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, doc.Format)
	}
	if doc.Config == nil {
		return nil, &config.ConfigurationError{Field: "config", Reason: "missing from snapshot"}
	}
	return &doc, nil
}

// Export writes the document to path, creating parent directories.
func Export(doc *Document, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := doc.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return f.Close()
}

// Import reads a document from path.
func Import(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func linkRecords(links []scheduler.Link) []LinkRecord {
	if len(links) == 0 {
		return nil
	}
	out := make([]LinkRecord, len(links))
	for i, l := range links {
		out[i] = LinkRecord{TaskID: l.TaskID, Delay: l.Delay}
	}
	return out
}

// taskLinks converts records back to links. A nil known set keeps every link.
func taskLinks(records []LinkRecord, known map[string]bool) []scheduler.Link {
	var out []scheduler.Link
	for _, r := range records {
		if known != nil && !known[r.TaskID] {
			continue
		}
		out = append(out, scheduler.Link{TaskID: r.TaskID, Delay: r.Delay})
	}
	return out
}

func kindName(k scheduler.Kind) string {
	switch k {
	case scheduler.KindAdHoc:
		return "adhoc"
	case scheduler.KindMilestone:
		return "milestone"
	}
	return "stage"
}

func parseKind(s string) (scheduler.Kind, error) {
	switch s {
	case "", "stage":
		return scheduler.KindStage, nil
	case "adhoc":
		return scheduler.KindAdHoc, nil
	case "milestone":
		return scheduler.KindMilestone, nil
	}
	return 0, fmt.Errorf("unknown task kind %q", s)
}

func parseState(s string) (scheduler.State, error) {
	for _, st := range []scheduler.State{scheduler.StateUnscheduled, scheduler.StateScheduled, scheduler.StateAnchored} {
		if st.String() == s {
			return st, nil
		}
	}
	if s == "" {
		return scheduler.StateUnscheduled, nil
	}
	return 0, fmt.Errorf("unknown task state %q", s)
}
