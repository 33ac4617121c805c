package ports

import (
	"context"

	"go.trai.ch/grid/internal/core/domain"
)

// ReportSink publishes coverage reports to an external destination.
//
//go:generate mockgen -source=report_sink.go -destination=mocks/mock_report_sink.go -package=mocks
type ReportSink interface {
	// Publish stores report together with its metadata.
	Publish(ctx context.Context, report *domain.CoverageReport, meta domain.ReportMetadata) error
}
