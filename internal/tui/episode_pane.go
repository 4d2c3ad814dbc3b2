package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/engine"
	"github.com/aristath/postsched/internal/scheduler"
)

// listWidth is the width of the episode list column.
const listWidth = 34

// EpisodePaneModel lists episodes on the left and the selected episode's
// tasks in a scrollable viewport on the right.
type EpisodePaneModel struct {
	snapshot    *engine.Snapshot
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewEpisodePaneModel creates a new episode pane model.
func NewEpisodePaneModel() EpisodePaneModel {
	vp := viewport.New(0, 0)
	vp.SetContent("Waiting for a schedule...")
	return EpisodePaneModel{viewport: vp}
}

// Update handles messages for the episode pane.
func (m EpisodePaneModel) Update(msg tea.Msg) (EpisodePaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.snapshot != nil && m.selectedIdx < len(m.snapshot.Episodes)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}
	}

	return m, cmd
}

// SetSnapshot shows s, keeping the selection when the episode still exists.
func (m *EpisodePaneModel) SetSnapshot(s *engine.Snapshot) {
	m.snapshot = s
	if s == nil || m.selectedIdx >= len(s.Episodes) {
		m.selectedIdx = 0
	}
	m.updateViewportContent()
}

// Selected returns the selected episode number, or 0 without a schedule.
func (m EpisodePaneModel) Selected() int {
	if m.snapshot == nil || len(m.snapshot.Episodes) == 0 {
		return 0
	}
	return m.snapshot.Episodes[m.selectedIdx].Episode
}

// View renders the episode pane.
func (m EpisodePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	list := lipgloss.NewStyle().
		Width(listWidth).
		Height(m.height - 2).
		Render(m.listView())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	content := lipgloss.JoinHorizontal(lipgloss.Top, list, " ", m.viewport.View())
	return style.Width(m.width - 2).Height(m.height - 2).Render(content)
}

func (m EpisodePaneModel) listView() string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render("Episodes"))
	b.WriteString("\n")

	if m.snapshot == nil {
		b.WriteString(StyleMuted.Render("  none yet"))
		return b.String()
	}
	for i, ep := range m.snapshot.Episodes {
		line := fmt.Sprintf("Ep %-2d lock %s", ep.Episode, calendar.Format(ep.PictureLock))
		if ep.Anchored > 0 {
			line += StyleAnchored.Render(fmt.Sprintf(" A%d", ep.Anchored))
		}
		if ep.Conflicts > 0 {
			line += StyleConflict.Render(fmt.Sprintf(" !%d", ep.Conflicts))
		}
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// updateViewportContent renders the selected episode's tasks.
func (m *EpisodePaneModel) updateViewportContent() {
	ep := m.Selected()
	if ep == 0 {
		m.viewport.SetContent("Waiting for a schedule...")
		return
	}

	view := m.snapshot.Episodes[m.selectedIdx]
	var b strings.Builder
	fmt.Fprintf(&b, "Episode %d  block %d  %s  (%s)\n", view.Episode, view.Block, view.Director, strings.Join(view.Editors, ", "))
	fmt.Fprintf(&b, "Wrap %s  Delivery %s  Release %s\n\n",
		calendar.Format(view.ShootWrap), calendar.Format(view.Delivery), calendar.Format(view.Release))

	for _, t := range m.snapshot.Tasks {
		if t.Episode != ep || !t.Stage.Visible {
			continue
		}
		b.WriteString(taskLine(t))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoTop()
}

func taskLine(t *scheduler.Task) string {
	dates := StyleMuted.Render("unscheduled")
	if t.Placed() {
		dates = fmt.Sprintf("%s → %s", calendar.Format(t.Start), calendar.Format(t.End))
	}
	line := fmt.Sprintf("%-26s %s", t.Stage.Name, dates)

	switch {
	case t.Conflict:
		line = StyleConflict.Render(line + "  overlap")
	case t.State == scheduler.StateAnchored:
		line = StyleAnchored.Render(line + "  anchored")
	case !t.Floor.IsZero():
		line = StyleScheduled.Render(line + "  after " + calendar.Format(t.Floor))
	}
	if len(t.Resources) > 0 {
		line += StyleMuted.Render("  " + strings.Join(t.Resources, ", "))
	}
	return line
}

// SetSize updates the pane dimensions.
func (m *EpisodePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-listWidth-5, 10) // borders and gutter
	m.viewport.Height = max(h-2, 5)
}

// SetFocused updates the focus state.
func (m *EpisodePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
