package detector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/grid/internal/adapters/detector"
)

func TestDetectEnvironment_CI(t *testing.T) {
	for _, v := range []string{"true", "1"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("CI", v)
			assert.True(t, detector.IsCI())
			assert.Equal(t, detector.ModeLinear, detector.DetectEnvironment())
		})
	}
}

func TestIsCI_False(t *testing.T) {
	t.Setenv("CI", "false")
	assert.False(t, detector.IsCI())
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name     string
		detected detector.OutputMode
		flag     string
		want     detector.OutputMode
	}{
		{"auto keeps interactive", detector.ModeInteractive, detector.FlagAuto, detector.ModeInteractive},
		{"auto keeps linear", detector.ModeLinear, detector.FlagAuto, detector.ModeLinear},
		{"empty keeps detection", detector.ModeInteractive, "", detector.ModeInteractive},
		{"linear forces linear", detector.ModeInteractive, detector.FlagLinear, detector.ModeLinear},
		{"unknown keeps detection", detector.ModeInteractive, "fancy", detector.ModeInteractive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detector.ResolveMode(tt.detected, tt.flag))
		})
	}
}
