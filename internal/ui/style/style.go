// Package style holds the colors, icons and table styles shared by the terminal output.
package style

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	Indigo = lipgloss.Color("#6366F1")
	Slate  = lipgloss.Color("#667085")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Skip    = "-"
	Dot     = "●"
	Circle  = "○"
)

// Table styles used by the run summary.
var (
	Header = lipgloss.NewStyle().Bold(true).Foreground(Indigo)
	Cell   = lipgloss.NewStyle().PaddingRight(2)
	Muted  = lipgloss.NewStyle().Foreground(Slate)
)

// StatusColor returns the color for a job status string.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "success":
		return Green
	case "failure":
		return Red
	default:
		return Yellow
	}
}

// StatusIcon returns the icon for a job status string.
func StatusIcon(status string) string {
	switch status {
	case "success":
		return Check
	case "failure":
		return Cross
	default:
		return Skip
	}
}
