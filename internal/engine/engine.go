// Package engine runs recalculations: it builds, schedules and checks a
// graph for a configuration, keeps the current snapshot, gates on
// unresolved anchor conflicts and persists snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/postsched/internal/anchor"
	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/config"
	"github.com/aristath/postsched/internal/events"
	"github.com/aristath/postsched/internal/persistence"
	"github.com/aristath/postsched/internal/pipeline"
	"github.com/aristath/postsched/internal/scheduler"
)

// DefaultName is the snapshot name used when Options.Name is empty.
const DefaultName = "default"

var (
	// ErrConflictPending is returned while a conflict decision is outstanding.
	ErrConflictPending = errors.New("anchor conflicts awaiting resolution")
	// ErrNoConflicts is returned by Resolve when nothing is pending.
	ErrNoConflicts = errors.New("no pending conflicts")
	// ErrNoSchedule is returned by edits made before the first recalculation.
	ErrNoSchedule = errors.New("no schedule computed yet")
	// ErrNoStore is returned by Save and Load without a configured store.
	ErrNoStore = errors.New("no snapshot store configured")
)

// Options configures an Engine.
type Options struct {
	// Name identifies the schedule in the store.
	Name string
	// Store persists snapshots; nil disables persistence.
	Store persistence.Store
	// Autosave writes every installed snapshot to Store.
	Autosave bool
	Bus      *events.EventBus
	Logger   *slog.Logger
	Retry    RetryConfig
}

// Outcome is the result of an operation that recalculates.
// With pending conflicts Snapshot is the unchanged current snapshot.
type Outcome struct {
	Snapshot  *Snapshot
	Conflicts []anchor.Conflict
	Released  []string
}

// pending holds a computed schedule that waits for a conflict decision.
type pending struct {
	cfg       *config.Config
	graph     *scheduler.DAG // built graph the conflicts were found in
	conflicts []anchor.Conflict
}

// Engine owns the current schedule. All methods are safe for concurrent use;
// recalculations are serialized.
type Engine struct {
	mu       sync.Mutex
	cfg      *config.Config
	cal      *calendar.Calendar
	current  *Snapshot
	pending  *pending
	version  int
	name     string
	store    persistence.Store
	autosave bool
	bus      *events.EventBus
	logger   *slog.Logger
	retry    RetryConfig
	breakers *CircuitBreakerRegistry
}

// New creates an Engine for cfg. Nothing is computed until Recalculate.
func New(cfg *config.Config, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Retry == (RetryConfig{}) {
		opts.Retry = DefaultRetryConfig()
	}
	return &Engine{
		cfg:      cfg.Clone(),
		name:     opts.Name,
		store:    opts.Store,
		autosave: opts.Autosave,
		bus:      opts.Bus,
		logger:   logger,
		retry:    opts.Retry,
		breakers: NewCircuitBreakerRegistry(logger),
	}
}

// Current returns the installed snapshot, or nil before the first success.
func (e *Engine) Current() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Config returns a copy of the configuration the engine is working from.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Clone()
}

// Pending returns the conflicts awaiting a decision.
func (e *Engine) Pending() []anchor.Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil
	}
	return append([]anchor.Conflict(nil), e.pending.conflicts...)
}

// Recalculate rebuilds the schedule from the current configuration, keeping
// anchors, floors and ad hoc tasks of the current snapshot.
func (e *Engine) Recalculate(ctx context.Context) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		return e.outcome(), ErrConflictPending
	}
	return e.run(ctx, e.cfg, e.priorGraph(), nil)
}

// UpdateConfig replaces the configuration and recalculates. When anchored
// tasks drift from where the new configuration would put them, the
// schedule is held back and the conflicts are returned for Resolve.
func (e *Engine) UpdateConfig(ctx context.Context, cfg *config.Config) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		return e.outcome(), ErrConflictPending
	}
	cfg = cfg.Clone()
	return e.run(ctx, cfg, e.priorGraph(), anchor.Changes(e.cfg, cfg))
}

// Resolve applies a decision to the pending conflicts and installs the
// resulting schedule.
func (e *Engine) Resolve(ctx context.Context, r anchor.Resolution) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pending
	if p == nil {
		return e.outcome(), ErrNoConflicts
	}

	g := p.graph.Clone()
	released, err := anchor.Resolve(g, p.conflicts, r)
	if err != nil {
		return e.outcome(), err
	}

	res, err := e.compute(ctx, p.cfg, g, nil)
	if err != nil {
		return e.outcome(), e.failed(err)
	}
	e.pending = nil
	e.install(ctx, res)

	e.logger.Info("conflicts resolved", "mode", r.Mode.String(), "released", len(released))
	e.publish(events.TopicConflict, events.ConflictsResolvedEvent{Mode: r.Mode.String(), Released: released, Timestamp: time.Now()})

	out := e.outcome()
	out.Released = released
	return out, nil
}

// ApplyDefault resolves pending conflicts by preserving every anchor.
func (e *Engine) ApplyDefault(ctx context.Context) (Outcome, error) {
	return e.Resolve(ctx, anchor.Resolution{Mode: anchor.ModePreserveAll})
}

// Anchor moves a task to start. The toggle unlink_on_manual_move picks
// between a hard anchor and a floor.
func (e *Engine) Anchor(ctx context.Context, id string, start time.Time) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	policy := anchor.PolicyLinked
	if e.cfg.Toggles.UnlinkOnManualMove {
		policy = anchor.PolicyUnlinked
	}
	out, err := e.edit(ctx, func(g *scheduler.DAG, cal *calendar.Calendar) error {
		return anchor.Anchor(g, cal, id, start, policy)
	})
	if err == nil {
		e.publish(events.TopicTask, events.TaskAnchoredEvent{ID: id, Start: start, Linked: policy == anchor.PolicyLinked, Timestamp: time.Now()})
	}
	return out, err
}

// Release returns an anchored task, and the anchors depending on it, to
// automatic scheduling.
func (e *Engine) Release(ctx context.Context, id string) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.edit(ctx, func(g *scheduler.DAG, _ *calendar.Calendar) error {
		return anchor.Release(g, id)
	})
	if err == nil {
		e.publish(events.TopicTask, events.TaskReleasedEvent{ID: id, Timestamp: time.Now()})
	}
	return out, err
}

// AddAdHoc adds a free task and returns its ID.
func (e *Engine) AddAdHoc(ctx context.Context, spec anchor.AdHocTask) (string, Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var id string
	out, err := e.edit(ctx, func(g *scheduler.DAG, cal *calendar.Calendar) error {
		var err error
		id, err = anchor.AddAdHoc(g, cal, spec)
		return err
	})
	return id, out, err
}

// RemoveAdHoc deletes a free task.
func (e *Engine) RemoveAdHoc(ctx context.Context, id string) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.edit(ctx, func(g *scheduler.DAG, _ *calendar.Calendar) error {
		return anchor.RemoveAdHoc(g, id)
	})
}

// ConvertFloors turns unlinked floors into anchors or drops them, for a
// switch of unlink_on_manual_move. It returns the affected task IDs.
func (e *Engine) ConvertFloors(ctx context.Context, mode anchor.FloorMode) ([]string, Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ids []string
	out, err := e.edit(ctx, func(g *scheduler.DAG, cal *calendar.Calendar) error {
		var err error
		ids, err = anchor.ConvertFloors(g, cal, mode)
		return err
	})
	return ids, out, err
}

// Import installs a snapshot document: its configuration replaces the
// engine's and its anchors, floors and ad hoc tasks carry over.
func (e *Engine) Import(ctx context.Context, doc *persistence.Document) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		return e.outcome(), ErrConflictPending
	}
	g, err := doc.Graph()
	if err != nil {
		return e.outcome(), e.failed(fmt.Errorf("importing snapshot: %w", err))
	}
	// Versions continue from the imported one.
	if doc.Version > e.version {
		e.version = doc.Version
	}
	return e.run(ctx, doc.Config.Clone(), g, nil)
}

// Document captures the current snapshot for export or storage.
func (e *Engine) Document() (*persistence.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return nil, ErrNoSchedule
	}
	return persistence.NewDocument(e.name, e.current.Version, e.current.Config, e.current.graph), nil
}

// edit applies fn to a copy of the current graph and recalculates from it.
// Caller holds e.mu.
func (e *Engine) edit(ctx context.Context, fn func(*scheduler.DAG, *calendar.Calendar) error) (Outcome, error) {
	if e.pending != nil {
		return e.outcome(), ErrConflictPending
	}
	if e.current == nil {
		return e.outcome(), ErrNoSchedule
	}
	g := e.current.Graph()
	if err := fn(g, e.cal); err != nil {
		return e.outcome(), err
	}
	return e.run(ctx, e.cfg, g, nil)
}

// run computes a schedule for cfg and installs it or parks it as pending.
// Caller holds e.mu.
func (e *Engine) run(ctx context.Context, cfg *config.Config, prior *scheduler.DAG, changes []anchor.Change) (Outcome, error) {
	res, err := e.compute(ctx, cfg, prior, changes)
	if err != nil {
		return e.outcome(), e.failed(err)
	}

	if len(res.conflicts) > 0 {
		e.pending = &pending{cfg: cfg, graph: res.built, conflicts: res.conflicts}
		e.logger.Info("recalculation waiting on conflicts", "conflicts", len(res.conflicts))
		e.publishConflicts(res.conflicts)
		return e.outcome(), nil
	}

	e.install(ctx, res)
	return e.outcome(), nil
}

// result is a computed but not yet installed schedule.
type result struct {
	cfg       *config.Config
	cal       *calendar.Calendar
	plan      *pipeline.Plan
	built     *scheduler.DAG
	scheduled *scheduler.DAG
	ideal     *scheduler.DAG
	conflicts []anchor.Conflict
	elapsed   time.Duration
}

// compute builds and schedules a graph for cfg from prior. With changes and
// anchors present, the anchor-free ideal schedule is computed alongside and
// compared.
func (e *Engine) compute(ctx context.Context, cfg *config.Config, prior *scheduler.DAG, changes []anchor.Change) (*result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	calCfg, err := cfg.CalendarConfig()
	if err != nil {
		return nil, err
	}
	cal := calendar.New(calCfg)
	plan, err := pipeline.NewPlan(cfg, cal)
	if err != nil {
		return nil, err
	}
	built, err := pipeline.NewBuilder(cfg, plan, e.logger).Build(prior)
	if err != nil {
		return nil, err
	}

	res := &result{cfg: cfg, cal: cal, plan: plan, built: built}
	opts := plan.SchedulerOptions(cfg)
	opts.Logger = e.logger
	detect := len(changes) > 0 && hasAnchors(built)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	g.Go(func() error {
		out, err := scheduler.New(cal, opts).Schedule(built)
		if err != nil {
			return err
		}
		res.scheduled = out
		return nil
	})
	if detect {
		g.Go(func() error {
			ideal, err := anchor.Ideal(built)
			if err != nil {
				return err
			}
			if err := pipeline.Link(ideal, pipeline.NewLinkOptions(cfg, plan)); err != nil {
				return fmt.Errorf("linking ideal schedule: %w", err)
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := scheduler.New(cal, opts).Schedule(ideal)
			if err != nil {
				return fmt.Errorf("ideal schedule: %w", err)
			}
			res.ideal = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if detect {
		if res.conflicts, err = anchor.Detect(res.scheduled, res.ideal, changes, cal); err != nil {
			return nil, fmt.Errorf("detecting conflicts: %w", err)
		}
	}
	res.elapsed = time.Since(started)
	return res, nil
}

func hasAnchors(g *scheduler.DAG) bool {
	for _, t := range g.Tasks() {
		if t.State == scheduler.StateAnchored && t.Kind == scheduler.KindStage {
			return true
		}
	}
	return false
}

// install makes res the current snapshot. Caller holds e.mu.
func (e *Engine) install(ctx context.Context, res *result) {
	e.version++
	e.cfg = res.cfg
	e.cal = res.cal
	e.current = newSnapshot(e.version, res.cfg, res.plan, res.scheduled)

	e.logger.Info("schedule recalculated",
		"version", e.version,
		"tasks", len(e.current.Tasks),
		"diagnostics", len(e.current.Diagnostics),
		"elapsed", res.elapsed)
	e.publish(events.TopicSchedule, events.RecalculatedEvent{
		Version:   e.version,
		Tasks:     len(e.current.Tasks),
		Episodes:  res.cfg.Episodes,
		Duration:  res.elapsed,
		Timestamp: time.Now(),
	})

	if e.autosave && e.store != nil {
		if err := e.save(ctx); err != nil {
			e.logger.Error("autosave failed", "name", e.name, "error", err)
		}
	}
}

// failed logs and announces a rejected recalculation; the prior snapshot stays.
func (e *Engine) failed(err error) error {
	ev := events.RecalcFailedEvent{Err: err, Timestamp: time.Now()}
	var unsat *scheduler.UnsatisfiableGraphError
	if errors.As(err, &unsat) {
		ev.Stuck = unsat.Stuck
		e.logger.Error("schedule unsatisfiable", "stuck", len(unsat.Stuck), "error", err)
	} else {
		e.logger.Error("recalculation failed", "error", err)
	}
	e.publish(events.TopicSchedule, ev)
	return err
}

func (e *Engine) publishConflicts(conflicts []anchor.Conflict) {
	summaries := make([]events.ConflictSummary, len(conflicts))
	for i, c := range conflicts {
		summaries[i] = events.ConflictSummary{
			TaskID:      c.TaskID,
			Episode:     c.Episode,
			Stage:       c.Stage,
			Delta:       c.Delta,
			Reason:      c.Reason,
			Recommended: c.Recommended.String(),
		}
	}
	e.publish(events.TopicConflict, events.ConflictsPendingEvent{Conflicts: summaries, Timestamp: time.Now()})
}

func (e *Engine) publish(topic string, ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(topic, ev)
	}
}

// priorGraph is the graph user state carries over from. Caller holds e.mu.
func (e *Engine) priorGraph() *scheduler.DAG {
	if e.current == nil {
		return nil
	}
	return e.current.graph
}

// outcome reports the current state. Caller holds e.mu.
func (e *Engine) outcome() Outcome {
	out := Outcome{Snapshot: e.current}
	if e.pending != nil {
		out.Conflicts = append([]anchor.Conflict(nil), e.pending.conflicts...)
	}
	return out
}
