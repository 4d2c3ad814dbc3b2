package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/postsched/internal/anchor"
	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/config"
	"github.com/aristath/postsched/internal/events"
	"github.com/aristath/postsched/internal/persistence"
	"github.com/aristath/postsched/internal/pipeline"
	"github.com/aristath/postsched/internal/scheduler"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.StartOfPhotography = "2025-01-06"
	cfg.Episodes = 2
	cfg.ShootBlocks = 1
	cfg.Editors = config.DefaultEditors(2)
	cfg.Directors = config.DefaultDirectors(1)
	cfg.Hiatuses = []config.HiatusConfig{}
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, opts Options) *Engine {
	t.Helper()
	if opts.Bus == nil {
		opts.Bus = events.NewEventBus()
		t.Cleanup(opts.Bus.Close)
	}
	e := New(cfg, opts)
	_, err := e.Recalculate(context.Background())
	require.NoError(t, err)
	return e
}

// shift offsets a task's start by n business days on the engine's calendar.
func shift(t *testing.T, e *Engine, task *scheduler.Task, n int) time.Time {
	t.Helper()
	calCfg, err := e.Config().CalendarConfig()
	require.NoError(t, err)
	d, err := calendar.New(calCfg).Offset(task.Start, n, task.Context())
	require.NoError(t, err)
	return d
}

func task(t *testing.T, s *Snapshot, ep int, stage string) *scheduler.Task {
	t.Helper()
	got, ok := s.Task(pipeline.TaskID(ep, stage))
	require.True(t, ok, "missing %s", pipeline.TaskID(ep, stage))
	return got
}

func next(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestRecalculateInstallsSnapshot(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	sub := bus.Subscribe(events.TopicSchedule, 10)

	e := New(testConfig(), Options{Bus: bus})
	assert.Nil(t, e.Current())

	out, err := e.Recalculate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Snapshot)
	assert.Empty(t, out.Conflicts)

	snap := out.Snapshot
	assert.Equal(t, 1, snap.Version)
	require.Len(t, snap.Episodes, 2)
	require.Len(t, snap.Releases, 2)
	assert.Len(t, snap.Blocks, 1)
	assert.Equal(t, "Director X", snap.Episodes[0].Director)
	assert.Equal(t, 1, snap.Episodes[1].Block)
	assert.False(t, snap.Episodes[0].Delivery.IsZero())
	assert.True(t, snap.Episodes[0].PictureLock.Before(snap.Episodes[0].Delivery))
	assert.Equal(t, snap.Releases[0].Date, snap.Episodes[0].Release)

	for _, row := range snap.Export() {
		assert.NotEmpty(t, row.Start, row.Name)
		assert.NotEqual(t, calendar.DeptDelay, row.Department, row.Name)
	}

	ev, ok := next(t, sub).(events.RecalculatedEvent)
	require.True(t, ok)
	assert.Equal(t, 1, ev.Version)
	assert.Equal(t, len(snap.Tasks), ev.Tasks)
}

func TestRecalculateIsDeterministic(t *testing.T) {
	a := newTestEngine(t, testConfig(), Options{})
	b := newTestEngine(t, testConfig(), Options{})
	assert.Empty(t, cmp.Diff(a.Current().Export(), b.Current().Export()))

	_, err := a.Recalculate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, a.Current().Version)
	assert.Empty(t, cmp.Diff(a.Current().Export(), b.Current().Export()))
}

func TestInvalidConfigKeepsPriorSnapshot(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	sub := bus.Subscribe(events.TopicSchedule, 10)

	e := newTestEngine(t, testConfig(), Options{Bus: bus})
	before := e.Current()
	next(t, sub) // first recalculation

	bad := testConfig()
	bad.Episodes = 0
	out, err := e.UpdateConfig(context.Background(), bad)

	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Same(t, before, out.Snapshot)
	assert.Same(t, before, e.Current())
	assert.Equal(t, 2, e.Config().Episodes)

	failed, ok := next(t, sub).(events.RecalcFailedEvent)
	require.True(t, ok)
	assert.ErrorAs(t, failed.Err, &cfgErr)
}

func TestUpdateConfigWithoutAnchorsInstalls(t *testing.T) {
	e := newTestEngine(t, testConfig(), Options{})

	cfg := testConfig()
	cfg.Durations.PictureLock++
	out, err := e.UpdateConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, out.Conflicts)
	assert.Equal(t, 2, out.Snapshot.Version)

	lock := task(t, out.Snapshot, 1, pipeline.StagePictureLock)
	assert.Equal(t, cfg.Durations.PictureLock, lock.Stage.Duration)
}

// anchorEarlyLock anchors episode 1's picture lock ten business days early.
func anchorEarlyLock(t *testing.T, e *Engine) *scheduler.Task {
	t.Helper()
	lock := task(t, e.Current(), 1, pipeline.StagePictureLock)
	out, err := e.Anchor(context.Background(), lock.ID, shift(t, e, lock, -10))
	require.NoError(t, err)

	got := task(t, out.Snapshot, 1, pipeline.StagePictureLock)
	require.Equal(t, scheduler.StateAnchored, got.State)
	return got
}

func TestConflictGate(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	conflicts := bus.Subscribe(events.TopicConflict, 10)

	e := newTestEngine(t, testConfig(), Options{Bus: bus})
	lock := anchorEarlyLock(t, e)
	installed := e.Current()

	cfg := testConfig()
	cfg.Durations.PictureLock++
	out, err := e.UpdateConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, lock.ID, out.Conflicts[0].TaskID)
	assert.True(t, out.Conflicts[0].DirectlyAffected)
	assert.Equal(t, anchor.ActionUpdate, out.Conflicts[0].Recommended)
	assert.Same(t, installed, out.Snapshot, "pending schedule must not be installed")

	pendingEv, ok := next(t, conflicts).(events.ConflictsPendingEvent)
	require.True(t, ok)
	require.Len(t, pendingEv.Conflicts, 1)
	assert.Equal(t, "update", pendingEv.Conflicts[0].Recommended)

	_, err = e.Recalculate(context.Background())
	assert.ErrorIs(t, err, ErrConflictPending)
	_, err = e.Anchor(context.Background(), lock.ID, lock.Start)
	assert.ErrorIs(t, err, ErrConflictPending)
	assert.Len(t, e.Pending(), 1)

	t.Run("update all releases the anchor", func(t *testing.T) {
		out, err := e.Resolve(context.Background(), anchor.Resolution{Mode: anchor.ModeUpdateAll})
		require.NoError(t, err)
		assert.Equal(t, []string{lock.ID}, out.Released)
		assert.Empty(t, out.Conflicts)
		assert.Empty(t, e.Pending())
		assert.Equal(t, installed.Version+1, out.Snapshot.Version)

		got := task(t, out.Snapshot, 1, pipeline.StagePictureLock)
		assert.Equal(t, scheduler.StateScheduled, got.State)
		assert.Equal(t, cfg.Durations.PictureLock, got.Stage.Duration)
		assert.Equal(t, cfg.Durations.PictureLock, e.Config().Durations.PictureLock)

		resolved, ok := next(t, conflicts).(events.ConflictsResolvedEvent)
		require.True(t, ok)
		assert.Equal(t, "update-all", resolved.Mode)
	})

	t.Run("nothing left to resolve", func(t *testing.T) {
		_, err := e.Resolve(context.Background(), anchor.Resolution{Mode: anchor.ModePreserveAll})
		assert.ErrorIs(t, err, ErrNoConflicts)
	})
}

func TestApplyDefaultPreservesAnchors(t *testing.T) {
	e := newTestEngine(t, testConfig(), Options{})
	lock := anchorEarlyLock(t, e)

	cfg := testConfig()
	cfg.Durations.PictureLock++
	out, err := e.UpdateConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, out.Conflicts)

	out, err = e.ApplyDefault(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.Released)

	got := task(t, out.Snapshot, 1, pipeline.StagePictureLock)
	assert.Equal(t, scheduler.StateAnchored, got.State)
	assert.Equal(t, lock.Start, got.Start)
	assert.Equal(t, 1, out.Snapshot.Episodes[0].Anchored)
}

func TestEditsRequireSchedule(t *testing.T) {
	e := New(testConfig(), Options{})
	_, err := e.Anchor(context.Background(), "ep1-picture-lock", calendar.Date(2025, 3, 3))
	assert.ErrorIs(t, err, ErrNoSchedule)
	_, err = e.Document()
	assert.ErrorIs(t, err, ErrNoSchedule)
}

func TestAnchorAndRelease(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	tasks := bus.Subscribe(events.TopicTask, 10)

	e := newTestEngine(t, testConfig(), Options{Bus: bus})
	base := task(t, e.Current(), 1, pipeline.StageOnlineConform)

	anchored := anchorTask(t, e, base, 5)
	assert.Equal(t, shift(t, e, base, 5), anchored.Start)

	ev, ok := next(t, tasks).(events.TaskAnchoredEvent)
	require.True(t, ok)
	assert.True(t, ev.Linked)
	assert.Equal(t, base.ID, ev.TaskID())

	out, err := e.Release(context.Background(), base.ID)
	require.NoError(t, err)
	released := task(t, out.Snapshot, 1, pipeline.StageOnlineConform)
	assert.Equal(t, scheduler.StateScheduled, released.State)
	assert.Equal(t, base.Start, released.Start)
	assert.Equal(t, events.EventTypeTaskReleased, next(t, tasks).EventType())
}

func anchorTask(t *testing.T, e *Engine, base *scheduler.Task, n int) *scheduler.Task {
	t.Helper()
	out, err := e.Anchor(context.Background(), base.ID, shift(t, e, base, n))
	require.NoError(t, err)
	got, ok := out.Snapshot.Task(base.ID)
	require.True(t, ok)
	return got
}

func TestUnlinkOnManualMoveSetsFloor(t *testing.T) {
	cfg := testConfig()
	cfg.Toggles.UnlinkOnManualMove = true
	e := newTestEngine(t, cfg, Options{})

	base := task(t, e.Current(), 2, pipeline.StageOnlineConform)
	moved := anchorTask(t, e, base, 5)
	assert.Equal(t, scheduler.StateScheduled, moved.State)
	assert.Equal(t, shift(t, e, base, 5), moved.Floor)
	assert.False(t, moved.Start.Before(moved.Floor))

	ids, out, err := e.ConvertFloors(context.Background(), anchor.ConvertToAnchors)
	require.NoError(t, err)
	assert.Equal(t, []string{base.ID}, ids)
	converted, _ := out.Snapshot.Task(base.ID)
	assert.Equal(t, scheduler.StateAnchored, converted.State)
	assert.True(t, converted.Floor.IsZero())
}

func TestAdHocThroughEngine(t *testing.T) {
	e := newTestEngine(t, testConfig(), Options{})
	lock := task(t, e.Current(), 1, pipeline.StagePictureLock)

	id, out, err := e.AddAdHoc(context.Background(), anchor.AdHocTask{
		Episode:      1,
		Name:         "Temp Score",
		Department:   calendar.DeptMusic,
		Duration:     2,
		Predecessors: []scheduler.Link{{TaskID: lock.ID}},
	})
	require.NoError(t, err)

	adhoc, ok := out.Snapshot.Task(id)
	require.True(t, ok)
	assert.Equal(t, scheduler.KindAdHoc, adhoc.Kind)
	assert.True(t, adhoc.Start.After(lock.End))

	// Ad hoc tasks survive an unrelated recalculation.
	out, err = e.Recalculate(context.Background())
	require.NoError(t, err)
	_, ok = out.Snapshot.Task(id)
	assert.True(t, ok)

	out, err = e.RemoveAdHoc(context.Background(), id)
	require.NoError(t, err)
	_, ok = out.Snapshot.Task(id)
	assert.False(t, ok)

	_, err = e.RemoveAdHoc(context.Background(), lock.ID)
	assert.ErrorIs(t, err, anchor.ErrNotAdHoc)

	// A free task needs somewhere to start from.
	before := e.Current().Version
	_, _, err = e.AddAdHoc(context.Background(), anchor.AdHocTask{
		Name:       "ADR session",
		Department: calendar.DeptSound,
		Duration:   2,
		Resources:  []string{pipeline.ResourceMixer},
	})
	assert.ErrorIs(t, err, anchor.ErrUnplaceable)
	assert.Equal(t, before, e.Current().Version)
	for _, row := range e.Current().Export() {
		assert.NotEqual(t, "ADR session", row.Name)
	}
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store, err := persistence.NewMemoryStore(ctx)
	require.NoError(t, err)
	defer store.Close()

	bus := events.NewEventBus()
	defer bus.Close()
	sub := bus.Subscribe(events.TopicSchedule, 10)

	e := newTestEngine(t, testConfig(), Options{Name: "season-1", Store: store, Autosave: true, Bus: bus})
	next(t, sub) // recalculated
	persisted, ok := next(t, sub).(events.SnapshotPersistedEvent)
	require.True(t, ok)
	require.NoError(t, persisted.Err)
	assert.Equal(t, "season-1", persisted.Name)

	lock := task(t, e.Current(), 1, pipeline.StagePictureLock)
	anchorTask(t, e, lock, -3)
	want := e.Current()

	restored := New(config.DefaultConfig(), Options{Name: "season-1", Store: store})
	out, err := restored.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Version+1, out.Snapshot.Version)
	assert.Empty(t, cmp.Diff(want.Export(), out.Snapshot.Export()))

	got := task(t, out.Snapshot, 1, pipeline.StagePictureLock)
	assert.Equal(t, scheduler.StateAnchored, got.State)
	assert.Equal(t, 2, restored.Config().Episodes)

	missing := New(testConfig(), Options{Name: "season-2", Store: store})
	_, err = missing.Load(ctx)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	assert.ErrorIs(t, New(testConfig(), Options{}).Save(ctx), ErrNoStore)
}

func TestImportDocument(t *testing.T) {
	src := newTestEngine(t, testConfig(), Options{})
	anchorTask(t, src, task(t, src.Current(), 2, pipeline.StageColorGrade), 2)
	doc, err := src.Document()
	require.NoError(t, err)

	dst := New(config.DefaultConfig(), Options{})
	out, err := dst.Import(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, doc.Version+1, out.Snapshot.Version)
	assert.Empty(t, cmp.Diff(src.Current().Export(), out.Snapshot.Export()))
}

func TestConcurrentRecalculations(t *testing.T) {
	e := newTestEngine(t, testConfig(), Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Recalculate(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("recalculation failed: %v", err)
	}
	assert.Equal(t, 9, e.Current().Version)
}

func TestRecalculateHonorsCancellation(t *testing.T) {
	e := New(testConfig(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Recalculate(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, e.Current())
}
