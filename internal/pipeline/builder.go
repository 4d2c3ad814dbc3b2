package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/config"
	"github.com/aristath/postsched/internal/scheduler"
)

// Builder instantiates the episode template into a task graph.
type Builder struct {
	cfg    *config.Config
	plan   *Plan
	logger *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(cfg *config.Config, plan *Plan, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{cfg: cfg, plan: plan, logger: logger}
}

// Build creates the full, linked graph. Anchors, unlinked floors and ad hoc
// tasks of prior carry over by (episode, stage name); prior may be nil.
// Building twice from the same inputs gives the same graph.
func (b *Builder) Build(prior *scheduler.DAG) (*scheduler.DAG, error) {
	g := scheduler.NewDAG()

	wrap := &scheduler.Task{
		ID:    ShootWrapID,
		Stage: scheduler.Stage{Name: StageShootWrap, Duration: 1, Department: calendar.DeptShoot},
		Kind:  scheduler.KindMilestone,
		State: scheduler.StateAnchored,
		Start: b.plan.FinalWrap,
		End:   b.plan.FinalWrap,
	}
	if err := g.AddTask(wrap); err != nil {
		return nil, err
	}

	for ep := 1; ep <= b.cfg.Episodes; ep++ {
		if err := b.addEpisode(g, ep); err != nil {
			return nil, err
		}
	}

	if prior != nil {
		if err := b.carryOver(g, prior); err != nil {
			return nil, err
		}
	}

	if err := Link(g, NewLinkOptions(b.cfg, b.plan)); err != nil {
		return nil, fmt.Errorf("linking episodes: %w", err)
	}

	b.logger.Debug("graph built", "episodes", b.cfg.Episodes, "tasks", g.Len())
	return g, nil
}

// addEpisode instantiates the template for one episode.
func (b *Builder) addEpisode(g *scheduler.DAG, ep int) error {
	editors := b.plan.Editors[ep]
	director := b.plan.Directors[ep]

	for _, def := range episodeTemplate(b.cfg, ep) {
		task := &scheduler.Task{
			ID:        TaskID(ep, def.stage.Name),
			Episode:   ep,
			Stage:     def.stage,
			Kind:      scheduler.KindStage,
			Resources: stageResources(def.stage, editors, director),
		}
		for _, p := range def.preds {
			task.Predecessors = append(task.Predecessors, scheduler.Link{TaskID: TaskID(ep, p)})
		}
		if err := g.AddTask(task); err != nil {
			return fmt.Errorf("building episode %d: %w", ep, err)
		}
	}
	return nil
}

// carryOver copies user state from prior into the freshly built graph.
// Tasks whose identity no longer exists are dropped silently.
func (b *Builder) carryOver(g *scheduler.DAG, prior *scheduler.DAG) error {
	var adhoc []*scheduler.Task

	for _, old := range prior.Tasks() {
		switch old.Kind {
		case scheduler.KindMilestone:
			continue

		case scheduler.KindAdHoc:
			if old.Episode < calendar.NoEpisode || old.Episode > b.cfg.Episodes {
				b.logger.Debug("dropping ad hoc task of removed episode", "task", old.ID, "episode", old.Episode)
				continue
			}
			adhoc = append(adhoc, old)
			continue
		}

		cur, ok := g.Find(old.Episode, old.Stage.Name)
		if !ok {
			if old.State == scheduler.StateAnchored {
				b.logger.Debug("dropping anchor of removed stage", "task", old.ID)
			}
			continue
		}

		switch {
		case old.State == scheduler.StateAnchored:
			err := g.Update(cur.ID, func(t *scheduler.Task) error {
				t.State = scheduler.StateAnchored
				t.Start, t.End = old.Start, old.End
				t.Resources = append([]string(nil), old.Resources...)
				t.Predecessors = old.Predecessors
				t.OriginalPredecessors = old.OriginalPredecessors
				t.Floor = old.Floor
				return nil
			})
			if err != nil {
				return fmt.Errorf("carrying anchor %s: %w", old.ID, err)
			}

		case !old.Floor.IsZero():
			err := g.Update(cur.ID, func(t *scheduler.Task) error {
				t.Floor = old.Floor
				return nil
			})
			if err != nil {
				return fmt.Errorf("carrying floor %s: %w", old.ID, err)
			}
		}
	}

	for _, t := range adhoc {
		if err := g.AddTask(t); err != nil {
			return fmt.Errorf("carrying ad hoc task %s: %w", t.ID, err)
		}
	}

	// Links are resolved only once every carried task exists.
	for _, t := range g.Tasks() {
		if t.State != scheduler.StateAnchored && t.Kind != scheduler.KindAdHoc {
			continue
		}
		live := g.FilterLinks(t.Predecessors)
		if len(live) == len(t.Predecessors) {
			continue
		}
		if err := g.Update(t.ID, func(t *scheduler.Task) error {
			t.Predecessors = live
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
