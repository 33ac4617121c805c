// Package summary renders the end-of-run table of job outcomes.
package summary

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/ui/style"
)

// Write prints one row per job followed by the pipeline verdict and aggregate coverage.
func Write(w io.Writer, result *domain.PipelineResult, profile termenv.Profile) error {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)

	rows := [][]string{{"JOB", "CLASS", "STATUS", "STEP", "CACHE", "COVERAGE", "TIME"}}
	for _, class := range domain.JobClasses() {
		for _, o := range result.Outcomes[class] {
			rows = append(rows, row(o))
		}
	}

	var b strings.Builder
	b.WriteString(renderTable(r, rows, 2))

	muted := r.NewStyle().Inherit(style.Muted)
	sum := result.Coverage.Summary()
	verdict := r.NewStyle().Bold(true).Foreground(style.StatusColor(string(result.Status)))
	fmt.Fprintf(&b, "\n%s %s  %s\n",
		verdict.Render(style.StatusIcon(string(result.Status))+" pipeline "+string(result.Status)),
		muted.Render(fmt.Sprintf("%d job(s)", result.Count())),
		muted.Render(fmt.Sprintf("coverage %.1f%% (%d/%d lines, %d files)", sum.Percent, sum.CoveredLines, sum.Lines, sum.Files)),
	)

	_, err := io.WriteString(w, b.String())
	return err
}

// PlanRow is one job of a planned run.
type PlanRow struct {
	ID     string
	Class  domain.JobClass
	Modes  []domain.TestMode
	Key    domain.CacheKey
	Cached bool
}

// WritePlan prints the jobs a run would execute with their cache keys.
func WritePlan(w io.Writer, jobs []PlanRow, concurrency int, profile termenv.Profile) error {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)

	rows := [][]string{{"JOB", "CLASS", "MODES", "CACHE", "KEY"}}
	for _, j := range jobs {
		modes := make([]string, len(j.Modes))
		for i, m := range j.Modes {
			modes[i] = string(m)
		}
		cache := "miss"
		if j.Cached {
			cache = "hit"
		}
		rows = append(rows, []string{j.ID, string(j.Class), strings.Join(modes, ","), cache, j.Key.String()})
	}

	var b strings.Builder
	b.WriteString(renderTable(r, rows, -1))
	muted := r.NewStyle().Inherit(style.Muted)
	fmt.Fprintf(&b, "\n%s\n", muted.Render(fmt.Sprintf("%d job(s), concurrency %d", len(jobs), concurrency)))

	_, err := io.WriteString(w, b.String())
	return err
}

// renderTable aligns rows into columns. The first row is the header. Cells of statusCol
// are colored by their status; cells after it are muted.
func renderTable(r *lipgloss.Renderer, rows [][]string, statusCol int) string {
	header := r.NewStyle().Inherit(style.Header)
	cell := r.NewStyle().Inherit(style.Cell)
	muted := r.NewStyle().Inherit(style.Muted)

	widths := make([]int, len(rows[0]))
	for _, cols := range rows {
		for i, c := range cols {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}

	var b strings.Builder
	for n, cols := range rows {
		line := make([]string, len(cols))
		for i, c := range cols {
			st := cell.Width(widths[i] + 2)
			switch {
			case n == 0:
				st = st.Inherit(header)
			case i == statusCol:
				st = st.Foreground(style.StatusColor(statusOf(c)))
			case statusCol >= 0 && i > statusCol:
				st = st.Inherit(muted)
			}
			line[i] = st.Render(c)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, line...), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

// statusOf strips the icon from a status cell.
func statusOf(c string) string {
	if _, status, ok := strings.Cut(c, " "); ok {
		return status
	}
	return c
}

func row(o domain.JobOutcome) []string {
	step := "-"
	if s, ok := o.FailedStep(); ok {
		step = s.Label()
	} else if o.Status == domain.JobSkipped && len(o.Steps) > 0 {
		step = o.Steps[len(o.Steps)-1].Label()
	}

	cache := "-"
	switch {
	case o.CacheKey == "":
	case o.Rebuilt:
		cache = "built"
	default:
		cache = "hit"
	}

	cov := "-"
	if !o.Coverage.IsEmpty() {
		cov = fmt.Sprintf("%.1f%%", o.Coverage.Summary().Percent)
	}

	return []string{
		o.Spec.ID(),
		string(o.Class),
		style.StatusIcon(string(o.Status)) + " " + string(o.Status),
		step,
		cache,
		cov,
		elapsed(o.Steps).String(),
	}
}

func elapsed(steps []domain.StepOutcome) time.Duration {
	if len(steps) == 0 {
		return 0
	}
	return steps[len(steps)-1].Finished.Sub(steps[0].Started).Round(time.Millisecond)
}
