package domain

import (
	"time"
)

// PipelineStatus is the overall status of a pipeline run.
type PipelineStatus string

const (
	PipelineSuccess PipelineStatus = "success"
	PipelineFailure PipelineStatus = "failure"
)

// PipelineResult holds every job outcome of a run, grouped by class.
type PipelineResult struct {
	RunID    string
	Outcomes map[JobClass][]JobOutcome
	Coverage *CoverageReport
	Status   PipelineStatus
}

// ComputeStatus derives the pipeline status from job outcomes.
// The pipeline succeeds iff every mandatory job succeeded. Best-effort outcomes are ignored.
func ComputeStatus(outcomes map[JobClass][]JobOutcome) PipelineStatus {
	for _, o := range outcomes[ClassMandatory] {
		if o.Status != JobSuccess {
			return PipelineFailure
		}
	}
	return PipelineSuccess
}

// Failures returns the outcomes of a class that did not succeed.
func (r *PipelineResult) Failures(class JobClass) []JobOutcome {
	var failed []JobOutcome
	for _, o := range r.Outcomes[class] {
		if o.Status != JobSuccess {
			failed = append(failed, o)
		}
	}
	return failed
}

// Count returns the number of jobs across all classes.
func (r *PipelineResult) Count() int {
	n := 0
	for _, outcomes := range r.Outcomes {
		n += len(outcomes)
	}
	return n
}

// ReportScope distinguishes per-job reports from the pipeline aggregate.
type ReportScope string

const (
	ScopeJob      ReportScope = "job"
	ScopePipeline ReportScope = "pipeline"
)

// ReportMetadata describes a published coverage report.
type ReportMetadata struct {
	RunID     string            `json:"runId"`
	Scope     ReportScope       `json:"scope"`
	JobID     string            `json:"jobId,omitempty"`
	Class     JobClass          `json:"class,omitempty"`
	Status    JobStatus         `json:"status,omitempty"`
	Axes      map[string]string `json:"axes,omitempty"`
	CacheKey  CacheKey          `json:"cacheKey,omitempty"`
	Rebuilt   bool              `json:"rebuilt"`
	Pipeline  PipelineStatus    `json:"pipeline,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// JobReportMetadata builds report metadata for one job outcome.
func JobReportMetadata(runID string, o JobOutcome, now time.Time) ReportMetadata {
	axes := make(map[string]string)
	for _, v := range o.Spec.Values() {
		axes[v.Axis] = v.Value
	}
	return ReportMetadata{
		RunID:     runID,
		Scope:     ScopeJob,
		JobID:     o.Spec.ID(),
		Class:     o.Class,
		Status:    o.Status,
		Axes:      axes,
		CacheKey:  o.CacheKey,
		Rebuilt:   o.Rebuilt,
		Timestamp: now,
	}
}

// PublishedReport is the document written by report sinks.
type PublishedReport struct {
	Metadata ReportMetadata  `json:"metadata"`
	Summary  CoverageSummary `json:"summary"`
	Coverage *CoverageReport `json:"coverage"`
}

// NewPublishedReport pairs a report with its metadata and summary.
func NewPublishedReport(report *CoverageReport, meta ReportMetadata) PublishedReport {
	return PublishedReport{
		Metadata: meta,
		Summary:  report.Summary(),
		Coverage: report,
	}
}
