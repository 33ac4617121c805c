package tui

import "time"

// MsgPlan initializes the job list.
type MsgPlan struct {
	Jobs []string
}

// MsgJobStart marks a job as running.
type MsgJobStart struct {
	SpanID    string
	ParentID  string
	Name      string
	StartTime time.Time
}

// MsgJobLog carries output of a running job.
type MsgJobLog struct {
	SpanID string
	Data   []byte
}

// MsgJobComplete marks a job as finished.
type MsgJobComplete struct {
	SpanID  string
	EndTime time.Time
	Err     error
}
