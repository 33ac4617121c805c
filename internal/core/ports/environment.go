// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"io"

	"go.trai.ch/grid/internal/core/domain"
)

// EnvironmentBuilder materializes the environment of one matrix cell.
//
// Implementations install the runtime and declared dependencies for the job and return
// a snapshot that later steps activate. A failed build leaves no usable environment.
//
//go:generate mockgen -source=environment.go -destination=mocks/mock_environment.go -package=mocks
type EnvironmentBuilder interface {
	// Build provisions the environment for job. key is the cache key the snapshot will be
	// stored under and may be used to name on-disk state. Build output is written to out.
	Build(ctx context.Context, job domain.JobSpec, key domain.CacheKey, out io.Writer) (domain.Snapshot, error)
}
