package tui

import (
	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/grid/internal/ui/style"
)

var (
	listStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(style.Slate).
			MarginRight(1).
			PaddingRight(1)

	logStyle = lipgloss.NewStyle().
			PaddingLeft(1)

	jobPendingStyle = lipgloss.NewStyle().
			Foreground(style.Slate)

	jobRunningStyle = lipgloss.NewStyle().
			Foreground(style.Indigo).
			Bold(true)

	jobDoneStyle = lipgloss.NewStyle().
			Foreground(style.Green)

	jobErrorStyle = lipgloss.NewStyle().
			Foreground(style.Red)

	selectedStyle = lipgloss.NewStyle().
			Foreground(style.Indigo).
			Bold(true)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Background(style.Indigo).
			Foreground(lipgloss.Color("#FFFFFF"))
)
