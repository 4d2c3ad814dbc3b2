package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Task state styles
var (
	StyleAnchored = lipgloss.NewStyle().
			Foreground(lipgloss.Color("yellow")).
			Bold(true)

	StyleScheduled = lipgloss.NewStyle().
			Foreground(lipgloss.Color("green"))

	StyleConflict = lipgloss.NewStyle().
			Foreground(lipgloss.Color("red")).
			Bold(true)

	StyleMuted = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleSelected = lipgloss.NewStyle().
			Reverse(true)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)
