// Package clock provides the wall clock.
package clock

import "time"

// System implements ports.Clock with time.Now.
type System struct{}

// New creates a System clock.
func New() System {
	return System{}
}

// Now returns the current local time.
func (System) Now() time.Time {
	return time.Now()
}
