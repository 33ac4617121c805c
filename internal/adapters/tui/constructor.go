// Package tui renders run progress as an interactive terminal interface.
package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
)

// NewModel creates a new TUI model with default settings.
func NewModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = jobRunningStyle

	return Model{
		Jobs:       make([]*JobNode, 0),
		JobMap:     make(map[string]*JobNode),
		SpanMap:    make(map[string]*JobNode),
		JobSpans:   make(map[string]bool),
		Viewport:   viewport.New(0, 0),
		Spinner:    s,
		FollowMode: true,
	}
}
