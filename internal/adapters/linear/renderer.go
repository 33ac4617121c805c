// Package linear renders run progress as prefixed, line-buffered output.
package linear

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/muesli/termenv"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/ui/output"
	"go.trai.ch/grid/internal/ui/style"
)

// prefixColors are assigned to jobs by a hash of their name, so a job keeps its color
// across runs.
var prefixColors = []termenv.Color{
	termenv.ANSICyan,
	termenv.ANSIMagenta,
	termenv.ANSIBlue,
	termenv.ANSIYellow,
	termenv.ANSIBrightCyan,
	termenv.ANSIBrightMagenta,
	termenv.ANSIBrightBlue,
}

// Renderer implements ports.Renderer. Job output goes to stdout one complete line at a
// time; lifecycle messages go to stderr.
type Renderer struct {
	stdout io.Writer
	stderr io.Writer
	output *termenv.Output

	mu      sync.Mutex
	jobs    map[string]*jobState
	buffers map[string]*bytes.Buffer
}

type jobState struct {
	name   string
	prefix string
	start  time.Time
}

// NewRenderer creates a Renderer with the CI color profile. Nil writers default to the
// process streams.
func NewRenderer(stdout, stderr io.Writer) *Renderer {
	return NewRendererWithProfile(stdout, stderr, output.ColorProfileANSI)
}

// NewRendererWithProfile creates a Renderer whose colors follow profileFn.
func NewRendererWithProfile(stdout, stderr io.Writer, profileFn func() termenv.Profile) *Renderer {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Renderer{
		stdout:  stdout,
		stderr:  stderr,
		output:  output.NewWithProfile(stderr, profileFn),
		jobs:    make(map[string]*jobState),
		buffers: make(map[string]*bytes.Buffer),
	}
}

// Start is a no-op; rendering is synchronous.
func (r *Renderer) Start(context.Context) error {
	return nil
}

// Stop flushes every partial line.
func (r *Renderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for spanID := range r.buffers {
		r.flushLocked(spanID)
	}
	return nil
}

// Wait is a no-op; rendering is synchronous.
func (r *Renderer) Wait() error {
	return nil
}

// OnPlanEmit prints the number of planned jobs.
func (r *Renderer) OnPlanEmit(jobs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.stderr, "Planning %d job(s)\n", len(jobs))
}

// OnTaskStart prints a start line for the job.
func (r *Renderer) OnTaskStart(spanID, _, name string, startTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	color := prefixColors[xxhash.Sum64String(name)%uint64(len(prefixColors))]
	prefix := r.output.String("[" + name + "]").Foreground(color).String()

	r.jobs[spanID] = &jobState{name: name, prefix: prefix, start: startTime}
	r.buffers[spanID] = new(bytes.Buffer)

	_, _ = fmt.Fprintf(r.stderr, "%s Starting...\n", prefix)
}

// OnTaskLog prints every complete line of data and keeps the trailing partial line.
func (r *Renderer) OnTaskLog(spanID string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[spanID]
	if !ok {
		return
	}

	buf := r.buffers[spanID]
	buf.Write(data)
	for {
		i := bytes.IndexByte(buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := buf.Next(i + 1)
		r.printLocked(job, line)
	}
}

// OnTaskComplete flushes the job output and prints how the job ended.
func (r *Renderer) OnTaskComplete(spanID string, endTime time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[spanID]
	if !ok {
		return
	}
	r.flushLocked(spanID)

	elapsed := endTime.Sub(job.start)
	switch {
	case err == nil:
		icon := r.output.String(style.Check).Foreground(termenv.ANSIGreen).String()
		_, _ = fmt.Fprintf(r.stderr, "%s %s Completed in %v\n", job.prefix, icon, elapsed)
	case errors.Is(err, domain.ErrJobCancelled):
		icon := r.output.String(style.Skip).Foreground(termenv.ANSIYellow).String()
		_, _ = fmt.Fprintf(r.stderr, "%s %s Skipped after %v\n", job.prefix, icon, elapsed)
	default:
		icon := r.output.String(style.Cross).Foreground(termenv.ANSIRed).String()
		_, _ = fmt.Fprintf(r.stderr, "%s %s Failed after %v: %v\n", job.prefix, icon, elapsed, err)
	}

	delete(r.jobs, spanID)
	delete(r.buffers, spanID)
}

// flushLocked prints the partial line buffered for spanID. r.mu must be held.
func (r *Renderer) flushLocked(spanID string) {
	job, ok := r.jobs[spanID]
	if !ok {
		return
	}
	buf := r.buffers[spanID]
	if buf.Len() > 0 {
		r.printLocked(job, buf.Bytes())
		buf.Reset()
	}
}

// printLocked prints one line with the job prefix. Blank lines are dropped.
func (r *Renderer) printLocked(job *jobState, line []byte) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return
	}
	_, _ = fmt.Fprintf(r.stdout, "%s %s\n", job.prefix, line)
}
