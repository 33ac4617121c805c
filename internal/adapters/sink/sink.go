// Package sink implements the coverage report sinks.
package sink

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

// NopSink discards every report.
type NopSink struct{}

// Publish implements ports.ReportSink.
func (NopSink) Publish(context.Context, *domain.CoverageReport, domain.ReportMetadata) error {
	return nil
}

// reportName returns the run-relative name of a published report. Job reports are
// grouped by class since a cell may run in more than one class.
func reportName(meta domain.ReportMetadata) string {
	if meta.Scope == domain.ScopePipeline {
		return path.Join(meta.RunID, "pipeline.json")
	}
	return path.Join(meta.RunID, slug(string(meta.Class)), "job-"+slug(meta.JobID)+".json")
}

func slug(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

func encode(report *domain.CoverageReport, meta domain.ReportMetadata) ([]byte, error) {
	data, err := json.MarshalIndent(domain.NewPublishedReport(report, meta), "", "  ")
	if err != nil {
		return nil, zerr.With(domain.Classify(domain.ErrPublishFailed, err), "run", meta.RunID)
	}
	return append(data, '\n'), nil
}
