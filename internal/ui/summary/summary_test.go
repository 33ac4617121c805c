package summary_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/ui/summary"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func spec(os, python string) domain.JobSpec {
	return domain.NewJobSpec([]domain.AxisValue{{Axis: "os", Value: os}, {Axis: "python", Value: python}}, nil)
}

func TestWrite(t *testing.T) {
	cov := domain.NewCoverageReport()
	require.NoError(t, cov.Record("pkg/a.py", 1, 1))
	require.NoError(t, cov.Record("pkg/a.py", 2, 0))

	result := &domain.PipelineResult{
		RunID: "run-1",
		Outcomes: map[domain.JobClass][]domain.JobOutcome{
			domain.ClassMandatory: {
				{
					Spec:     spec("linux", "3.12"),
					Class:    domain.ClassMandatory,
					Status:   domain.JobSuccess,
					CacheKey: "k1",
					Rebuilt:  true,
					Coverage: cov,
					Steps: []domain.StepOutcome{
						{Step: domain.StepProvision, Status: domain.StepPassed, Started: at(0), Finished: at(2 * time.Second)},
						{Step: domain.StepInstall, Status: domain.StepPassed, Started: at(2 * time.Second), Finished: at(3 * time.Second)},
						{Step: domain.StepTest, Mode: "default", Status: domain.StepPassed, Started: at(3 * time.Second), Finished: at(10 * time.Second)},
						{Step: domain.StepReport, Status: domain.StepPassed, Started: at(10 * time.Second), Finished: at(10500 * time.Millisecond)},
					},
				},
				{
					Spec:     spec("macos", "3.12"),
					Class:    domain.ClassMandatory,
					Status:   domain.JobFailure,
					CacheKey: "k2",
					Coverage: domain.NewCoverageReport(),
					Steps: []domain.StepOutcome{
						{Step: domain.StepProvision, Status: domain.StepPassed, Started: at(0), Finished: at(time.Second)},
						{Step: domain.StepInstall, Status: domain.StepFailed, Started: at(time.Second), Finished: at(4 * time.Second)},
						{Step: domain.StepTest, Status: domain.StepSkipped, Started: at(4 * time.Second), Finished: at(4 * time.Second)},
					},
				},
			},
			domain.ClassBestEffort: {
				{
					Spec:   spec("linux", "3.13"),
					Class:  domain.ClassBestEffort,
					Status: domain.JobSkipped,
					Steps: []domain.StepOutcome{
						{Step: domain.StepProvision, Status: domain.StepSkipped, Started: at(0), Finished: at(0)},
					},
				},
			},
		},
		Coverage: domain.MergeCoverage(cov),
		Status:   domain.PipelineFailure,
	}

	var buf bytes.Buffer
	require.NoError(t, summary.Write(&buf, result, termenv.Ascii))
	goldie.New(t).Assert(t, "run_summary", buf.Bytes())
}

func TestWrite_EmptyRun(t *testing.T) {
	result := &domain.PipelineResult{
		Outcomes: map[domain.JobClass][]domain.JobOutcome{},
		Coverage: domain.MergeCoverage(),
		Status:   domain.PipelineSuccess,
	}

	var buf bytes.Buffer
	require.NoError(t, summary.Write(&buf, result, termenv.Ascii))
	require.Contains(t, buf.String(), "✓ pipeline success 0 job(s)  coverage 0.0% (0/0 lines, 0 files)")
}

func TestWritePlan(t *testing.T) {
	jobs := []summary.PlanRow{
		{
			ID:     "os=linux,python=3.12",
			Class:  domain.ClassMandatory,
			Modes:  []domain.TestMode{domain.DefaultTestMode},
			Key:    "grid-v1|linux|3.12|fp|2026-05-04|g0",
			Cached: true,
		},
		{
			ID:    "os=macos,python=3.12",
			Class: domain.ClassMandatory,
			Modes: []domain.TestMode{"unit", "integration"},
			Key:   "grid-v1|macos|3.12|fp|2026-05-04|g0",
		},
		{
			ID:    "os=linux,python=3.13",
			Class: domain.ClassBestEffort,
			Modes: []domain.TestMode{domain.DefaultTestMode},
			Key:   "grid-v1|linux|3.13|fp|2026-05-04|g0",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, summary.WritePlan(&buf, jobs, 4, termenv.Ascii))
	goldie.New(t).Assert(t, "plan", buf.Bytes())
}
