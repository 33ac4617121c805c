package tui

import (
	"bytes"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	jobListWidthRatio  = 0.3
	logPaneBorderWidth = 4
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	// StatusPending indicates the job is waiting for a slot.
	StatusPending JobStatus = "Pending"
	// StatusRunning indicates the job is provisioning, installing, testing or reporting.
	StatusRunning JobStatus = "Running"
	// StatusDone indicates the job succeeded.
	StatusDone JobStatus = "Done"
	// StatusError indicates the job failed or was cancelled.
	StatusError JobStatus = "Error"
)

// JobNode is a single job in the list.
type JobNode struct {
	Name   string
	Status JobStatus
	Logs   bytes.Buffer
	Err    error
}

// Model represents the main TUI state.
type Model struct {
	Jobs        []*JobNode
	JobMap      map[string]*JobNode
	SpanMap     map[string]*JobNode
	JobSpans    map[string]bool
	Viewport    viewport.Model
	Spinner     spinner.Model
	ActiveJob   string
	SelectedIdx int
	ListOffset  int
	ListHeight  int
	FollowMode  bool

	// Interrupt is called when the user aborts the run.
	Interrupt func()
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.Spinner.Tick
}

func (m *Model) ensureVisible() {
	if m.ListHeight <= 0 {
		return
	}
	if m.SelectedIdx < m.ListOffset {
		m.ListOffset = m.SelectedIdx
	} else if m.SelectedIdx >= m.ListOffset+m.ListHeight {
		m.ListOffset = m.SelectedIdx - m.ListHeight + 1
	}
}

func (m *Model) selectedJob() *JobNode {
	if m.SelectedIdx >= 0 && m.SelectedIdx < len(m.Jobs) {
		return m.Jobs[m.SelectedIdx]
	}
	return nil
}

func (m *Model) updateActiveView() {
	node := m.selectedJob()
	if node == nil {
		return
	}
	m.ActiveJob = node.Name
	m.Viewport.SetContent(node.Logs.String())
	if m.FollowMode {
		m.Viewport.GotoBottom()
	}
}

func (m *Model) selectJob(name string) {
	for i, j := range m.Jobs {
		if j.Name == name {
			m.SelectedIdx = i
			break
		}
	}
	m.ensureVisible()
	m.updateActiveView()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		listWidth := int(float64(msg.Width) * jobListWidthRatio)
		headerHeight := lipgloss.Height(titleStyle.Render("LOGS"))

		m.Viewport.Width = msg.Width - listWidth - logPaneBorderWidth
		m.Viewport.Height = msg.Height - headerHeight
		m.ListHeight = msg.Height - lipgloss.Height(titleStyle.Render("JOBS")+"\n\n")
		m.ensureVisible()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case MsgPlan:
		m.Jobs = make([]*JobNode, len(msg.Jobs))
		m.JobMap = make(map[string]*JobNode, len(msg.Jobs))
		m.SpanMap = make(map[string]*JobNode)
		m.JobSpans = make(map[string]bool)
		for i, name := range msg.Jobs {
			m.Jobs[i] = &JobNode{Name: name, Status: StatusPending}
			m.JobMap[name] = m.Jobs[i]
		}

	case MsgJobStart:
		m.handleStart(msg)

	case MsgJobLog:
		if node, ok := m.SpanMap[msg.SpanID]; ok {
			node.Logs.Write(msg.Data)
			if node.Name == m.ActiveJob {
				m.Viewport.SetContent(node.Logs.String())
				if m.FollowMode {
					m.Viewport.GotoBottom()
				}
			}
		}

	case MsgJobComplete:
		// Step spans share the node of their job but never resolve it.
		if node, ok := m.SpanMap[msg.SpanID]; ok && m.JobSpans[msg.SpanID] {
			node.Err = msg.Err
			node.Status = StatusDone
			if msg.Err != nil {
				node.Status = StatusError
			}
		}
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.Interrupt != nil {
			m.Interrupt()
		}
		return m, tea.Quit
	case "k", "up":
		if m.SelectedIdx > 0 {
			m.SelectedIdx--
			m.FollowMode = false
			m.ensureVisible()
			m.updateActiveView()
		}
	case "j", "down":
		if m.SelectedIdx < len(m.Jobs)-1 {
			m.SelectedIdx++
			m.FollowMode = false
			m.ensureVisible()
			m.updateActiveView()
		}
	case "esc":
		m.FollowMode = true
		for i, j := range m.Jobs {
			if j.Status == StatusRunning {
				m.SelectedIdx = i
				break
			}
		}
		m.ensureVisible()
		m.updateActiveView()
	default:
		var cmd tea.Cmd
		m.Viewport, cmd = m.Viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleStart(msg MsgJobStart) {
	if parent, ok := m.SpanMap[msg.ParentID]; ok {
		// A step span inside a job writes to the job's log.
		m.SpanMap[msg.SpanID] = parent
		return
	}
	node, ok := m.JobMap[msg.Name]
	if !ok {
		return
	}
	node.Status = StatusRunning
	m.SpanMap[msg.SpanID] = node
	m.JobSpans[msg.SpanID] = true

	if m.FollowMode {
		m.selectJob(msg.Name)
	}
}
