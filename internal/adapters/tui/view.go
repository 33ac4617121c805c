package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/grid/internal/ui/style"
)

// View renders the UI.
func (m *Model) View() string {
	if m.ListHeight == 0 {
		return "Initializing..."
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.jobList(),
		m.logPane(),
	)
}

func (m *Model) jobList() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("JOBS") + "\n\n")

	start := m.ListOffset
	end := min(m.ListOffset+m.ListHeight, len(m.Jobs))
	start = min(start, end)

	for i := start; i < end; i++ {
		s.WriteString(m.renderJobRow(i, m.Jobs[i]) + "\n")
	}

	return listStyle.Render(s.String())
}

func (m *Model) renderJobRow(index int, job *JobNode) string {
	icon := m.jobIcon(job)
	st := jobStyle(job)

	cursor := "  "
	if index == m.SelectedIdx {
		cursor = selectedStyle.Render("> ")
		if job.Status == StatusPending {
			st = selectedStyle
		}
	}

	return cursor + st.Render(fmt.Sprintf("%s %s", icon, job.Name))
}

func (m *Model) jobIcon(job *JobNode) string {
	switch job.Status {
	case StatusRunning:
		return m.Spinner.View()
	case StatusDone:
		return style.Check
	case StatusError:
		return style.Cross
	default:
		return style.Circle
	}
}

func jobStyle(job *JobNode) lipgloss.Style {
	switch job.Status {
	case StatusRunning:
		return jobRunningStyle
	case StatusDone:
		return jobDoneStyle
	case StatusError:
		return jobErrorStyle
	default:
		return jobPendingStyle
	}
}

func (m *Model) logPane() string {
	header := titleStyle.Render("LOGS (Waiting...)")
	if m.ActiveJob != "" {
		mode := " (Manual)"
		if m.FollowMode {
			mode = " (Following)"
		}
		header = titleStyle.Render("LOGS: " + m.ActiveJob + mode)
	}

	return logStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			m.Viewport.View(),
		),
	)
}
