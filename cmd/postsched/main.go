package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/config"
	"github.com/aristath/postsched/internal/engine"
	"github.com/aristath/postsched/internal/events"
	"github.com/aristath/postsched/internal/persistence"
	"github.com/aristath/postsched/internal/tui"
)

// watchDelay coalesces the burst of events editors produce on save.
const watchDelay = 300 * time.Millisecond

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is main without the process concerns.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, shouldExit, err := parseFlags(args, stderr)
	if err != nil || shouldExit {
		return err
	}
	logger := newLogger(opts.LogLevel, opts.LogFormat, stderr)

	var store persistence.Store
	if opts.DBPath != "" {
		s, err := persistence.NewSQLiteStore(ctx, opts.DBPath)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}
	if opts.List {
		return listSnapshots(ctx, store, stdout)
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	defer bus.Close()

	eng := engine.New(cfg, engine.Options{
		Name:     opts.Name,
		Store:    store,
		Autosave: store != nil && (opts.Watch || opts.TUI),
		Bus:      bus,
		Logger:   logger,
	})

	if err := start(ctx, eng, opts); err != nil {
		return err
	}

	// The TUI asks the user; everything else applies the policy.
	if !opts.TUI {
		if err := settle(ctx, eng, opts, logger); err != nil {
			return err
		}
	}

	switch {
	case opts.TUI:
		if opts.Watch {
			go watchConfig(ctx, eng, opts, logger, true)
		}
		return runTUI(ctx, bus, eng, logger)

	case opts.Watch:
		if err := printSummary(stdout, eng.Current(), opts.Name); err != nil {
			return err
		}
		sub := bus.Subscribe(events.TopicSchedule, events.DefaultBufferSize)
		go func() {
			for ev := range sub {
				if ev.EventType() == events.EventTypeRecalculated {
					if err := printSummary(stdout, eng.Current(), opts.Name); err != nil {
						logger.Error("printing summary", "error", err)
					}
				}
			}
		}()
		return watchConfig(ctx, eng, opts, logger, false)
	}

	return finish(ctx, eng, opts, stdout)
}

// loadConfig reads path, or the conventional locations when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return config.Load("", path)
}

// start produces the first schedule from an import, the store or the config.
func start(ctx context.Context, eng *engine.Engine, opts *options) error {
	var err error
	switch {
	case opts.ImportPath != "":
		var doc *persistence.Document
		if doc, err = persistence.Import(opts.ImportPath); err != nil {
			return err
		}
		_, err = eng.Import(ctx, doc)
	case opts.Load:
		_, err = eng.Load(ctx)
	default:
		_, err = eng.Recalculate(ctx)
	}
	return err
}

// settle answers pending conflicts with the -resolve policy.
func settle(ctx context.Context, eng *engine.Engine, opts *options, logger *slog.Logger) error {
	pending := eng.Pending()
	if len(pending) == 0 {
		return nil
	}
	r := opts.resolution()
	logger.Warn("anchored tasks disagree with the new schedule", "conflicts", len(pending), "resolution", r.Mode.String())
	for _, c := range pending {
		logger.Info("conflict", "task", c.TaskID, "delta", c.Delta, "recommended", c.Recommended.String(), "reason", c.Reason)
	}
	_, err := eng.Resolve(ctx, r)
	return err
}

// watchConfig recalculates on every change to the config file until ctx ends.
func watchConfig(ctx context.Context, eng *engine.Engine, opts *options, logger *slog.Logger, interactive bool) error {
	logger.Info("watching configuration", "path", opts.ConfigPath)
	return engine.WatchFile(ctx, opts.ConfigPath, watchDelay, logger, func() {
		cfg, err := loadConfig(opts.ConfigPath)
		if err != nil {
			logger.Error("reloading configuration", "error", err)
			return
		}
		if _, err := eng.UpdateConfig(ctx, cfg); err != nil {
			logger.Error("recalculating", "error", err)
			return
		}
		if !interactive {
			if err := settle(ctx, eng, opts, logger); err != nil {
				logger.Error("resolving conflicts", "error", err)
			}
		}
	})
}

// finish prints the result of a one-shot run and writes the requested outputs.
func finish(ctx context.Context, eng *engine.Engine, opts *options, stdout io.Writer) error {
	snap := eng.Current()
	if opts.Rows {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap.Export()); err != nil {
			return err
		}
	} else if err := printSummary(stdout, snap, opts.Name); err != nil {
		return err
	}

	if opts.ExportPath != "" {
		doc, err := eng.Document()
		if err != nil {
			return err
		}
		if err := persistence.Export(doc, opts.ExportPath); err != nil {
			return err
		}
	}
	if opts.DBPath != "" {
		return eng.Save(ctx)
	}
	return nil
}

func runTUI(ctx context.Context, bus *events.EventBus, eng *engine.Engine, logger *slog.Logger) error {
	p := tea.NewProgram(tui.New(bus, eng), tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		p.Quit()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		select {
		case err := <-errChan:
			return err
		case <-shutdownCtx.Done():
			return errors.New("shutdown timeout exceeded")
		}
	}
}

func listSnapshots(ctx context.Context, store persistence.Store, w io.Writer) error {
	infos, err := store.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tTASKS\tSAVED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.Name, info.Version, info.Tasks, info.SavedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// printSummary writes one line per episode.
func printSummary(w io.Writer, snap *engine.Snapshot, name string) error {
	if snap == nil {
		return engine.ErrNoSchedule
	}
	fmt.Fprintf(w, "%s v%d: %d tasks\n", name, snap.Version, len(snap.Tasks))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EP\tBLOCK\tDIRECTOR\tEDITORS\tWRAP\tLOCK\tDELIVERY\tRELEASE\tANCHORED\tOVERLAPS")
	for _, ep := range snap.Episodes {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			ep.Episode, ep.Block, ep.Director, strings.Join(ep.Editors, ", "),
			calendar.Format(ep.ShootWrap), calendar.Format(ep.PictureLock),
			calendar.Format(ep.Delivery), calendar.Format(ep.Release),
			ep.Anchored, ep.Conflicts)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, d := range snap.Diagnostics {
		fmt.Fprintf(w, "overlap: %s\n", d)
	}
	return nil
}
