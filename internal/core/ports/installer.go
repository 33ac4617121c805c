package ports

import (
	"context"
	"io"

	"go.trai.ch/grid/internal/core/domain"
)

// Installer installs the software under test into a provisioned environment.
//
//go:generate mockgen -source=installer.go -destination=mocks/mock_installer.go -package=mocks
type Installer interface {
	// Install installs the target into the environment described by snapshot.
	Install(ctx context.Context, job domain.JobSpec, snapshot domain.Snapshot, out io.Writer) error
}
