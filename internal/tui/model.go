// Package tui is a terminal viewer for the schedule. It follows the event
// bus and lets the user recalculate and resolve anchor conflicts.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/postsched/internal/anchor"
	"github.com/aristath/postsched/internal/engine"
	"github.com/aristath/postsched/internal/events"
)

// Engine is the part of the scheduling engine the TUI drives.
type Engine interface {
	Current() *engine.Snapshot
	Pending() []anchor.Conflict
	Recalculate(ctx context.Context) (engine.Outcome, error)
	Resolve(ctx context.Context, r anchor.Resolution) (engine.Outcome, error)
}

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneEpisodes PaneID = iota
	PaneStatus
	paneCount
)

// openConflictsMsg opens the conflict form when conflicts are pending.
type openConflictsMsg struct{}

// actionDoneMsg reports the end of an engine call started from the TUI.
// Successes arrive as bus events; only the error matters here.
type actionDoneMsg struct {
	err error
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	engine       Engine
	episodePane  EpisodePaneModel
	statusPane   StatusPaneModel
	conflictPane ConflictPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
}

// New creates a new TUI model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(eventBus *events.EventBus, eng Engine) Model {
	m := Model{
		engine:       eng,
		episodePane:  NewEpisodePaneModel(),
		statusPane:   NewStatusPaneModel(),
		conflictPane: NewConflictPaneModel(),
		focusedPane:  PaneEpisodes,
		eventSub:     eventBus.SubscribeAll(events.DefaultBufferSize),
	}
	m.refresh()
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.eventSub),
		func() tea.Msg { return openConflictsMsg{} },
	)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

func (m Model) recalculate() tea.Cmd {
	return func() tea.Msg {
		_, err := m.engine.Recalculate(context.Background())
		return actionDoneMsg{err: err}
	}
}

func (m Model) resolve(r anchor.Resolution) tea.Cmd {
	return func() tea.Msg {
		_, err := m.engine.Resolve(context.Background(), r)
		return actionDoneMsg{err: err}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// The conflict form is modal and sees every key.
	if key, ok := msg.(tea.KeyMsg); ok && m.conflictPane.IsVisible() {
		if key.String() == KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		var r *anchor.Resolution
		m.conflictPane, cmd, r = m.conflictPane.Update(msg)
		cmds = append(cmds, cmd)
		if r != nil {
			cmds = append(cmds, m.resolve(*r))
		}
		return m, tea.Batch(cmds...)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneEpisodes
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneStatus
			m.updateFocusStates()

		case KeyRecalculate:
			cmds = append(cmds, m.recalculate())

		case KeyConflicts:
			if pending := m.engine.Pending(); len(pending) > 0 {
				cmds = append(cmds, m.conflictPane.Open(pending))
			}

		default:
			if m.focusedPane == PaneEpisodes {
				var cmd tea.Cmd
				m.episodePane, cmd = m.episodePane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.conflictPane.SetSize(msg.Width, msg.Height)

	case actionDoneMsg:
		if msg.err != nil {
			m.statusPane, _ = m.statusPane.Update(events.RecalcFailedEvent{Err: msg.err})
		}

	case openConflictsMsg:
		if pending := m.engine.Pending(); len(pending) > 0 {
			cmds = append(cmds, m.conflictPane.Open(pending))
		}

	case events.ConflictsPendingEvent:
		m.statusPane, _ = m.statusPane.Update(msg)
		if pending := m.engine.Pending(); len(pending) > 0 {
			cmds = append(cmds, m.conflictPane.Open(pending))
		}
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.RecalculatedEvent, events.ConflictsResolvedEvent:
		m.refresh()
		m.statusPane, _ = m.statusPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.Event:
		m.statusPane, _ = m.statusPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// refresh pulls the current snapshot from the engine.
func (m *Model) refresh() {
	snap := m.engine.Current()
	m.episodePane.SetSnapshot(snap)
	m.statusPane.SetSnapshot(snap)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.conflictPane.IsVisible() {
		return m.conflictPane.View()
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.episodePane.View(), m.statusPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, mainContent, HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	statusWidth := (m.width * 30) / 100
	availableHeight := m.height - 1 // help bar

	m.episodePane.SetSize(m.width-statusWidth, availableHeight)
	m.statusPane.SetSize(statusWidth, availableHeight)
	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.episodePane.SetFocused(m.focusedPane == PaneEpisodes)
	m.statusPane.SetFocused(m.focusedPane == PaneStatus)
}
