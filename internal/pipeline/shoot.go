package pipeline

import (
	"fmt"
	"time"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/config"
	"github.com/aristath/postsched/internal/scheduler"
)

// Plan holds the shooting blocks and the crew of every episode.
type Plan struct {
	Blocks     []scheduler.ShootingBlock
	Directors  map[int]string   // episode -> director
	Editors    map[int][]string // episode -> editors
	Wraps      map[int]time.Time
	FinalWrap  time.Time
	ShootOrder []int
}

// NewPlan partitions episodes into shooting blocks, dates the blocks and
// assigns directors and editors.
func NewPlan(cfg *config.Config, cal *calendar.Calendar) (*Plan, error) {
	start, err := cfg.StartDate()
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Directors: make(map[int]string, cfg.Episodes),
		Editors:   make(map[int][]string, cfg.Episodes),
		Wraps:     make(map[int]time.Time, cfg.Episodes),
	}

	ctx := calendar.Context{Department: calendar.DeptShoot}
	episode := 1
	for i, size := range BlockSizes(cfg) {
		block := scheduler.ShootingBlock{Index: i, Start: start}
		days := 0
		for j := 0; j < size && episode <= cfg.Episodes; j++ {
			block.Episodes = append(block.Episodes, episode)
			days += cfg.ShootDays(episode)
			episode++
		}

		end, err := cal.Advance(start, days, ctx)
		if err != nil {
			return nil, fmt.Errorf("dating shoot block %d: %w", i+1, err)
		}
		block.End = end
		plan.Blocks = append(plan.Blocks, block)
		plan.ShootOrder = append(plan.ShootOrder, block.Episodes...)
		plan.FinalWrap = calendar.Max(plan.FinalWrap, end)
		for _, ep := range block.Episodes {
			plan.Wraps[ep] = end
		}

		if start, err = cal.NextBusinessDay(end, ctx); err != nil {
			return nil, fmt.Errorf("starting shoot block %d: %w", i+2, err)
		}
	}

	plan.assignDirectors(cfg)
	for ep := 1; ep <= cfg.Episodes; ep++ {
		plan.Editors[ep] = cfg.EditorsFor(ep)
	}
	return plan, nil
}

// BlockSizes returns the number of episodes in each shooting block.
func BlockSizes(cfg *config.Config) []int {
	if len(cfg.BlockEpisodes) > 0 {
		return append([]int(nil), cfg.BlockEpisodes...)
	}
	blocks := max(cfg.ShootBlocks, 1)
	base, rem := cfg.Episodes/blocks, cfg.Episodes%blocks

	sizes := make([]int, blocks)
	for i := range sizes {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
	}
	return sizes
}

// assignDirectors derives directors from the blocks, lets explicit
// assignments win and names each block after its first episode's director.
func (p *Plan) assignDirectors(cfg *config.Config) {
	n := len(cfg.Directors)
	if n > 0 {
		if len(p.Blocks) == 1 {
			// Crossboarded: directors split the episode list evenly.
			per := (cfg.Episodes + n - 1) / n
			for ep := 1; ep <= cfg.Episodes; ep++ {
				p.Directors[ep] = cfg.Directors[min((ep-1)/per, n-1)].Name
			}
		} else {
			for i, b := range p.Blocks {
				for _, ep := range b.Episodes {
					p.Directors[ep] = cfg.Directors[i%n].Name
				}
			}
		}
	}

	for ep := 1; ep <= cfg.Episodes; ep++ {
		if name, ok := cfg.ExplicitDirector(ep); ok {
			p.Directors[ep] = name
		}
	}

	for i := range p.Blocks {
		if len(p.Blocks[i].Episodes) > 0 {
			p.Blocks[i].Director = p.Directors[p.Blocks[i].Episodes[0]]
		}
	}
}

// SchedulerOptions returns the placement options for this plan.
func (p *Plan) SchedulerOptions(cfg *config.Config) scheduler.Options {
	return scheduler.Options{
		Blocks:     p.Blocks,
		WrapDates:  p.Wraps,
		EntryStage: StageEditorsCut,
		Release: &scheduler.ReleaseOptions{
			SourceStage: StageQCDelivery,
			LeadDays:    cfg.ReleaseLeadDays(),
		},
	}
}
