package engine

import (
	"fmt"
	"time"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/config"
	"github.com/aristath/postsched/internal/pipeline"
	"github.com/aristath/postsched/internal/scheduler"
)

// EpisodeView summarizes one episode of a snapshot.
type EpisodeView struct {
	Episode     int
	Block       int // 1-based shooting block
	Director    string
	Editors     []string
	ShootWrap   time.Time
	PictureLock time.Time // end of picture lock
	Delivery    time.Time // end of QC delivery
	Release     time.Time
	Anchored    int
	Conflicts   int
}

// Release is an episode's earliest possible release date.
type Release struct {
	Episode int
	Date    time.Time
}

// ExportRow is one scheduled, visible task in export form.
type ExportRow struct {
	Name       string              `json:"name"`
	Department calendar.Department `json:"department"`
	Episode    int                 `json:"episode"`
	Start      string              `json:"start"`
	End        string              `json:"end"`
	Resources  []string            `json:"resources,omitempty"`
}

// Snapshot is an immutable, fully scheduled state. Consumers must not
// modify the tasks it holds.
type Snapshot struct {
	Version     int
	Config      *config.Config
	Tasks       []*scheduler.Task
	Episodes    []EpisodeView
	Blocks      []scheduler.ShootingBlock
	Releases    []Release
	Diagnostics []string
	CreatedAt   time.Time

	graph *scheduler.DAG
}

func newSnapshot(version int, cfg *config.Config, plan *pipeline.Plan, g *scheduler.DAG) *Snapshot {
	s := &Snapshot{
		Version:   version,
		Config:    cfg.Clone(),
		Tasks:     g.Tasks(),
		Blocks:    append([]scheduler.ShootingBlock(nil), plan.Blocks...),
		CreatedAt: time.Now(),
		graph:     g.Clone(),
	}

	blockOf := make(map[int]int)
	for _, b := range plan.Blocks {
		for _, ep := range b.Episodes {
			blockOf[ep] = b.Index + 1
		}
	}

	for ep := 1; ep <= cfg.Episodes; ep++ {
		view := EpisodeView{
			Episode:   ep,
			Block:     blockOf[ep],
			Director:  plan.Directors[ep],
			Editors:   append([]string(nil), plan.Editors[ep]...),
			ShootWrap: plan.Wraps[ep],
		}
		if t, ok := g.Find(ep, pipeline.StagePictureLock); ok {
			view.PictureLock = t.End
		}
		if t, ok := g.Find(ep, pipeline.StageQCDelivery); ok {
			view.Delivery = t.End
		}
		if t, ok := g.Get(scheduler.ReleaseID(ep)); ok {
			view.Release = t.Start
			s.Releases = append(s.Releases, Release{Episode: ep, Date: t.Start})
		}
		s.Episodes = append(s.Episodes, view)
	}

	for _, t := range s.Tasks {
		if t.Episode < 1 || t.Episode > len(s.Episodes) {
			continue
		}
		view := &s.Episodes[t.Episode-1]
		if t.State == scheduler.StateAnchored && t.Kind != scheduler.KindMilestone {
			view.Anchored++
		}
		if t.Conflict {
			view.Conflicts++
		}
	}

	for _, o := range scheduler.FindOverlaps(s.Tasks, s.Blocks) {
		s.Diagnostics = append(s.Diagnostics, fmt.Sprintf("%s double-booked: %s and %s overlap",
			o.Resource, describe(o.A), describe(o.B)))
	}
	return s
}

func describe(c scheduler.Commitment) string {
	if c.TaskID == "" {
		return fmt.Sprintf("shoot block %d (%s to %s)", c.Block+1, calendar.Format(c.Start), calendar.Format(c.End))
	}
	return fmt.Sprintf("%s (%s to %s)", c.TaskID, calendar.Format(c.Start), calendar.Format(c.End))
}

// Task returns the task with id.
func (s *Snapshot) Task(id string) (*scheduler.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Graph returns a private copy of the scheduled graph.
func (s *Snapshot) Graph() *scheduler.DAG {
	return s.graph.Clone()
}

// Export lists every placed, visible task in graph order.
func (s *Snapshot) Export() []ExportRow {
	var rows []ExportRow
	for _, t := range s.Tasks {
		if !t.Placed() || !t.Stage.Visible {
			continue
		}
		rows = append(rows, ExportRow{
			Name:       t.Stage.Name,
			Department: t.Stage.Department,
			Episode:    t.Episode,
			Start:      calendar.Format(t.Start),
			End:        calendar.Format(t.End),
			Resources:  append([]string(nil), t.Resources...),
		})
	}
	return rows
}
