package ports

import (
	"context"
	"io"

	"go.trai.ch/grid/internal/core/domain"
)

// TestRunner executes one test-suite invocation.
//
//go:generate mockgen -source=test_runner.go -destination=mocks/mock_test_runner.go -package=mocks
type TestRunner interface {
	// Run executes the suite in the given mode. A failing suite is reported through
	// TestRun.Passed, not through the error. An error means the suite could not be run;
	// the returned TestRun may still carry partial coverage.
	Run(ctx context.Context, job domain.JobSpec, snapshot domain.Snapshot, mode domain.TestMode, out io.Writer) (domain.TestRun, error)
}
