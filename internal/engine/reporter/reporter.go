// Package reporter publishes coverage reports on a best-effort basis.
package reporter

import (
	"context"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/zerr"
)

// Reporter publishes job and pipeline coverage to a sink.
// Publication errors are logged and never returned.
type Reporter struct {
	sink   ports.ReportSink
	clock  ports.Clock
	logger ports.Logger
	runID  string
}

// New creates a Reporter for the run identified by runID.
func New(sink ports.ReportSink, clock ports.Clock, logger ports.Logger, runID string) *Reporter {
	return &Reporter{
		sink:   sink,
		clock:  clock,
		logger: logger,
		runID:  runID,
	}
}

// Report publishes the coverage of a finished job and reports whether it was published.
// Skipped jobs are never published.
func (r *Reporter) Report(ctx context.Context, outcome domain.JobOutcome) bool {
	if outcome.Status == domain.JobSkipped {
		return false
	}
	meta := domain.JobReportMetadata(r.runID, outcome, r.clock.Now())
	return r.publish(ctx, outcome.Coverage, meta)
}

// ReportPipeline publishes the aggregate coverage of a run.
func (r *Reporter) ReportPipeline(ctx context.Context, result *domain.PipelineResult) bool {
	meta := domain.ReportMetadata{
		RunID:     r.runID,
		Scope:     domain.ScopePipeline,
		Pipeline:  result.Status,
		Timestamp: r.clock.Now(),
	}
	return r.publish(ctx, result.Coverage, meta)
}

func (r *Reporter) publish(ctx context.Context, report *domain.CoverageReport, meta domain.ReportMetadata) bool {
	if report == nil {
		report = domain.NewCoverageReport()
	}
	if err := r.sink.Publish(ctx, report, meta); err != nil {
		err = zerr.With(domain.Classify(domain.ErrPublishFailed, err), "scope", string(meta.Scope))
		if meta.JobID != "" {
			err = zerr.With(err, "job", meta.JobID)
		}
		r.logger.Warn("coverage report not published: " + err.Error())
		return false
	}
	return true
}
