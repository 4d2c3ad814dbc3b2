package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/engine"
	"github.com/aristath/postsched/internal/events"
	"github.com/aristath/postsched/internal/scheduler"
)

// StatusPaneModel shows schedule-wide counts, releases and the last problem.
type StatusPaneModel struct {
	snapshot *engine.Snapshot
	pending  int
	lastErr  error
	activity string
	width    int
	height   int
	focused  bool
}

// NewStatusPaneModel creates a new status pane model.
func NewStatusPaneModel() StatusPaneModel {
	return StatusPaneModel{}
}

// Update handles messages for the status pane.
func (m StatusPaneModel) Update(msg tea.Msg) (StatusPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.RecalculatedEvent:
		m.lastErr = nil
		m.pending = 0
		m.activity = fmt.Sprintf("v%d: %d tasks in %s", msg.Version, msg.Tasks, msg.Duration.Round(time.Millisecond))

	case events.RecalcFailedEvent:
		m.lastErr = msg.Err

	case events.ConflictsPendingEvent:
		m.pending = len(msg.Conflicts)

	case events.ConflictsResolvedEvent:
		m.pending = 0
		m.activity = fmt.Sprintf("resolved (%s), %d released", msg.Mode, len(msg.Released))

	case events.SnapshotPersistedEvent:
		if msg.Err != nil {
			m.lastErr = msg.Err
		} else {
			m.activity = fmt.Sprintf("saved %s v%d", msg.Name, msg.Version)
		}

	case events.TaskAnchoredEvent:
		m.activity = fmt.Sprintf("anchored %s at %s", msg.ID, calendar.Format(msg.Start))

	case events.TaskReleasedEvent:
		m.activity = "released " + msg.ID
	}

	return m, nil
}

// SetSnapshot updates the counts.
func (m *StatusPaneModel) SetSnapshot(s *engine.Snapshot) {
	m.snapshot = s
}

// View renders the status pane.
func (m StatusPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Schedule")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if s := m.snapshot; s != nil {
		anchored, unscheduled := 0, 0
		for _, t := range s.Tasks {
			switch {
			case t.State == scheduler.StateAnchored && t.Kind != scheduler.KindMilestone:
				anchored++
			case !t.Placed():
				unscheduled++
			}
		}
		fmt.Fprintf(&b, "Version:   %d\n", s.Version)
		fmt.Fprintf(&b, "Tasks:     %d\n", len(s.Tasks))
		fmt.Fprintf(&b, "Anchored:  %s\n", StyleAnchored.Render(fmt.Sprint(anchored)))
		fmt.Fprintf(&b, "Overlaps:  %s\n", StyleConflict.Render(fmt.Sprint(len(s.Diagnostics))))
		if unscheduled > 0 {
			fmt.Fprintf(&b, "Unplaced:  %d\n", unscheduled)
		}
		if len(s.Releases) > 0 {
			last := s.Releases[len(s.Releases)-1]
			fmt.Fprintf(&b, "Final release: ep %d on %s\n", last.Episode, calendar.Format(last.Date))
		}
	} else {
		b.WriteString(StyleMuted.Render("No schedule yet\n"))
	}

	if m.pending > 0 {
		b.WriteString("\n")
		b.WriteString(StyleConflict.Render(fmt.Sprintf("%d anchor conflict(s) waiting: press c", m.pending)))
		b.WriteString("\n")
	}
	if m.lastErr != nil {
		b.WriteString("\n")
		b.WriteString(StyleConflict.Render("Error: " + m.lastErr.Error()))
		b.WriteString("\n")
	}
	if m.activity != "" {
		b.WriteString("\n")
		b.WriteString(StyleMuted.Render(m.activity))
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *StatusPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *StatusPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
