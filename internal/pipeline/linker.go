package pipeline

import (
	"github.com/aristath/postsched/internal/config"
	"github.com/aristath/postsched/internal/scheduler"
)

// LinkOptions configures the cross-episode edges.
type LinkOptions struct {
	SequentialLock      bool
	ProducersCutOverlap bool
	ProducersCutPreWrap bool
	Episodes            int
	Directors           map[int]string
	ShootOrder          []int
}

// NewLinkOptions derives the link options from configuration and a shoot plan.
func NewLinkOptions(cfg *config.Config, plan *Plan) LinkOptions {
	return LinkOptions{
		SequentialLock:      cfg.Toggles.SequentialLock,
		ProducersCutOverlap: cfg.Toggles.ProducersCutOverlap,
		ProducersCutPreWrap: cfg.Toggles.ProducersCutPreWrap,
		Episodes:            cfg.Episodes,
		Directors:           plan.Directors,
		ShootOrder:          plan.ShootOrder,
	}
}

// Link adds the cross-episode dependencies. Anchored tasks never gain
// edges and existing edges are not duplicated, so Link is idempotent.
func Link(g *scheduler.DAG, opts LinkOptions) error {
	edge := func(ep int, stage string, predEp int, predStage string, delay int) error {
		task, ok := g.Find(ep, stage)
		if !ok || task.State == scheduler.StateAnchored {
			return nil
		}
		pred, ok := g.Find(predEp, predStage)
		if !ok {
			return nil
		}
		return g.AddEdge(task.ID, scheduler.Link{TaskID: pred.ID, Delay: delay})
	}

	for ep := 2; ep <= opts.Episodes; ep++ {
		if opts.SequentialLock {
			if err := edge(ep, StagePictureLock, ep-1, StagePictureLock, 0); err != nil {
				return err
			}
		}
		if err := edge(ep, StageOnlineConform, ep-1, StageFinalColorGrade, 0); err != nil {
			return err
		}
	}

	if err := linkProducersCuts(g, opts); err != nil {
		return err
	}
	return linkDirectors(g, opts, edge)
}

// linkProducersCuts chains the producer's cuts in episode order. The first
// waits for the final wrap unless cuts may start before it.
func linkProducersCuts(g *scheduler.DAG, opts LinkOptions) error {
	var prev *scheduler.Task
	for ep := 1; ep <= opts.Episodes; ep++ {
		cut, ok := g.Find(ep, StageProducersCut)
		if !ok {
			continue
		}

		if cut.State != scheduler.StateAnchored {
			var link scheduler.Link
			switch {
			case prev != nil:
				link.TaskID = prev.ID
				if opts.ProducersCutOverlap {
					link.Delay = -(prev.Stage.Duration / 2)
				}
			case !opts.ProducersCutPreWrap:
				link.TaskID = ShootWrapID
			}
			if link.TaskID != "" {
				if _, ok := g.Get(link.TaskID); ok {
					if err := g.AddEdge(cut.ID, link); err != nil {
						return err
					}
				}
			}
		}
		prev = cut
	}
	return nil
}

// linkDirectors keeps a director on one cut at a time: in shoot order, each
// Director's Cut follows the same director's previous Director's Cut v2.
func linkDirectors(g *scheduler.DAG, opts LinkOptions, edge func(int, string, int, string, int) error) error {
	last := make(map[string]int)
	for _, ep := range opts.ShootOrder {
		director := opts.Directors[ep]
		if director == "" {
			continue
		}
		if prev, ok := last[director]; ok {
			if err := edge(ep, StageDirectorsCut, prev, StageDirectorsCutV2, 0); err != nil {
				return err
			}
		}
		last[director] = ep
	}
	return nil
}
