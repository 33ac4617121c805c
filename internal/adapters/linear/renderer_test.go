package linear_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/grid/internal/adapters/linear"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newRenderer(t *testing.T) (*linear.Renderer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	var stdout, stderr bytes.Buffer
	return linear.NewRenderer(&stdout, &stderr), &stdout, &stderr
}

func TestRenderer_JobLifecycle(t *testing.T) {
	r, stdout, stderr := newRenderer(t)
	require.NoError(t, r.Start(t.Context()))

	r.OnPlanEmit([]string{"os=linux", "os=macos"})
	r.OnTaskStart("s1", "", "os=linux", start)
	r.OnTaskLog("s1", []byte("collected 12 items\n"))
	r.OnTaskLog("s1", []byte("12 passed\n"))
	r.OnTaskComplete("s1", start.Add(1500*time.Millisecond), nil)
	require.NoError(t, r.Stop())

	assert.Equal(t, "[os=linux] collected 12 items\n[os=linux] 12 passed\n", stdout.String())
	assert.Equal(t,
		"Planning 2 job(s)\n[os=linux] Starting...\n[os=linux] ✓ Completed in 1.5s\n",
		stderr.String())
}

func TestRenderer_PartialLines(t *testing.T) {
	r, stdout, _ := newRenderer(t)
	r.OnTaskStart("s1", "", "job", start)

	r.OnTaskLog("s1", []byte("partial"))
	assert.Empty(t, stdout.String())

	r.OnTaskLog("s1", []byte(" line\ntrailing"))
	assert.Equal(t, "[job] partial line\n", stdout.String())

	r.OnTaskComplete("s1", start, nil)
	assert.Equal(t, "[job] partial line\n[job] trailing\n", stdout.String())
}

func TestRenderer_Failure(t *testing.T) {
	r, _, stderr := newRenderer(t)
	r.OnTaskStart("s1", "", "job", start)
	r.OnTaskComplete("s1", start.Add(time.Second), zerr.New("test suite reported failures"))

	assert.Contains(t, stderr.String(), "[job] ✗ Failed after 1s: test suite reported failures")
}

func TestRenderer_Skipped(t *testing.T) {
	r, _, stderr := newRenderer(t)
	r.OnTaskStart("s1", "", "job", start)
	r.OnTaskComplete("s1", start.Add(time.Second), errors.Join(domain.ErrJobCancelled))

	assert.Contains(t, stderr.String(), "[job] - Skipped after 1s")
}

func TestRenderer_StopFlushesAndDropsBlankLines(t *testing.T) {
	r, stdout, _ := newRenderer(t)
	r.OnTaskStart("s1", "", "a", start)
	r.OnTaskStart("s2", "", "b", start)

	r.OnTaskLog("s1", []byte("\n\r\npartial-a"))
	r.OnTaskLog("s2", []byte("partial-b"))
	require.NoError(t, r.Stop())

	out := stdout.String()
	assert.Contains(t, out, "[a] partial-a\n")
	assert.Contains(t, out, "[b] partial-b\n")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestRenderer_UnknownSpan(t *testing.T) {
	r, stdout, stderr := newRenderer(t)
	r.OnTaskLog("missing", []byte("ignored\n"))
	r.OnTaskComplete("missing", start, nil)

	assert.Empty(t, stdout.String())
	assert.Empty(t, stderr.String())
}

func TestRenderer_ColorIsStablePerJob(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	var stderr bytes.Buffer
	r := linear.NewRenderer(&bytes.Buffer{}, &stderr)

	r.OnTaskStart("s1", "", "os=linux", start)
	first := stderr.String()
	stderr.Reset()
	r.OnTaskStart("s2", "", "os=linux", start)

	assert.Equal(t, first, stderr.String())
	assert.Contains(t, first, "\x1b[")
}
