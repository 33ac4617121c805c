// Package detector chooses how run progress is rendered.
package detector

import (
	"os"

	"golang.org/x/term"
)

// OutputMode is the rendering mode of a run.
type OutputMode int

const (
	// ModeInteractive renders for a terminal with full color detection.
	ModeInteractive OutputMode = iota
	// ModeLinear renders plain prefixed lines for CI logs.
	ModeLinear
)

// Output flag values.
const (
	FlagAuto   = "auto"
	FlagLinear = "linear"
)

// Flags returns the accepted values of the output flag.
func Flags() []string {
	return []string{FlagAuto, FlagLinear}
}

// IsCI reports whether a CI system is driving the process.
func IsCI() bool {
	ci := os.Getenv("CI")
	return ci == "true" || ci == "1"
}

// DetectEnvironment returns ModeInteractive when stdout is a terminal outside CI.
func DetectEnvironment() OutputMode {
	if !term.IsTerminal(int(os.Stdout.Fd())) || IsCI() {
		return ModeLinear
	}
	return ModeInteractive
}

// ResolveMode applies the output flag to the detected mode. Unknown values keep the
// detected mode.
func ResolveMode(detected OutputMode, flag string) OutputMode {
	if flag == FlagLinear {
		return ModeLinear
	}
	return detected
}
