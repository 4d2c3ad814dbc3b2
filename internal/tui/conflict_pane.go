package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/postsched/internal/anchor"
	"github.com/aristath/postsched/internal/calendar"
)

// ConflictPaneModel is the modal form that decides pending anchor conflicts.
type ConflictPaneModel struct {
	form      *huh.Form
	conflicts []anchor.Conflict
	width     int
	height    int
	visible   bool
	values    *conflictValues
}

// conflictValues holds the form bindings. It is shared by copies of the
// model so huh keeps writing where the model reads.
type conflictValues struct {
	mode    string
	updates []string // task IDs to release in selective mode
}

// NewConflictPaneModel creates a hidden conflict pane.
func NewConflictPaneModel() ConflictPaneModel {
	return ConflictPaneModel{}
}

// Open shows the form for conflicts.
func (m *ConflictPaneModel) Open(conflicts []anchor.Conflict) tea.Cmd {
	m.conflicts = conflicts
	m.values = &conflictValues{mode: anchor.ModeRecommended.String()}
	for _, c := range conflicts {
		if c.Recommended == anchor.ActionUpdate {
			m.values.updates = append(m.values.updates, c.TaskID)
		}
	}
	m.visible = true
	m.buildForm()
	return m.form.Init()
}

// buildForm constructs the Huh form: a bulk policy, then per-task choices
// when the policy is selective.
func (m *ConflictPaneModel) buildForm() {
	v := m.values
	options := make([]huh.Option[string], len(m.conflicts))
	for i, c := range m.conflicts {
		label := fmt.Sprintf("Ep %d %s: %+d days (%s, keep at %s)",
			c.Episode, c.Stage, c.Delta, c.Recommended, calendar.Format(c.CurrentStart))
		options[i] = huh.NewOption(label, c.TaskID)
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("mode").
				Title(fmt.Sprintf("%d anchored task(s) disagree with the new schedule", len(m.conflicts))).
				Options(
					huh.NewOption("Apply recommendations", anchor.ModeRecommended.String()),
					huh.NewOption("Keep every manual position", anchor.ModePreserveAll.String()),
					huh.NewOption("Move every task to its computed date", anchor.ModeUpdateAll.String()),
					huh.NewOption("Choose per task", anchor.ModeSelective.String()),
				).
				Value(&v.mode),
		).Title("Resolve Conflicts"),

		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Key("updates").
				Title("Release these anchors").
				Options(options...).
				Value(&v.updates),
		).WithHideFunc(func() bool {
			return v.mode != anchor.ModeSelective.String()
		}),
	)
}

// Update handles messages for the conflict pane. It returns a non-nil
// resolution once the form is completed.
func (m ConflictPaneModel) Update(msg tea.Msg) (ConflictPaneModel, tea.Cmd, *anchor.Resolution) {
	if !m.visible {
		return m, nil, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		return m, nil, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.visible = false
		r := m.resolution()
		return m, cmd, &r
	}
	return m, cmd, nil
}

// resolution converts the form values.
func (m ConflictPaneModel) resolution() anchor.Resolution {
	mode, err := anchor.ParseMode(m.values.mode)
	if err != nil {
		mode = anchor.ModePreserveAll
	}
	r := anchor.Resolution{Mode: mode}
	if mode == anchor.ModeSelective {
		r.Choices = make(map[string]anchor.Action, len(m.values.updates))
		for _, id := range m.values.updates {
			r.Choices[id] = anchor.ActionUpdate
		}
	}
	return r
}

// View renders the form centered on screen.
func (m ConflictPaneModel) View() string {
	if !m.visible || m.form == nil {
		return ""
	}
	box := StyleFocusedBorder.Padding(1, 2).Render(m.form.View())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// IsVisible reports whether the form is open.
func (m ConflictPaneModel) IsVisible() bool {
	return m.visible
}

// SetSize updates the pane dimensions.
func (m *ConflictPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form = m.form.WithWidth(min(w-8, 100))
	}
}
