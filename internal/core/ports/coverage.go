package ports

import "go.trai.ch/grid/internal/core/domain"

// CoverageParser reads a coverage file written by a test invocation.
//
//go:generate mockgen -source=coverage.go -destination=mocks/mock_coverage.go -package=mocks
type CoverageParser interface {
	// Parse reads the file at path. A missing file yields an empty report.
	Parse(path string, format domain.CoverageFormat) (*domain.CoverageReport, error)
}
