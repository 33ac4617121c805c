package ports

import (
	"context"
	"io"

	"go.trai.ch/grid/internal/core/domain"
)

// Executor runs external commands for the shell collaborators.
//
//go:generate mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Execute runs cmd with env appended to the process environment.
	//
	// The env parameter contains environment variables in "KEY=VALUE" format,
	// typically the job variables followed by the snapshot environment.
	//
	// It returns an error if the command cannot start or exits unsuccessfully.
	Execute(ctx context.Context, cmd domain.Command, env []string, stdout, stderr io.Writer) error
}
