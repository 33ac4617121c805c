package telemetry

import (
	"context"

	"github.com/grindlemire/graft"
)

// TracerNodeID is the graft node providing the tracer.
const TracerNodeID graft.ID = "adapter.telemetry"

func init() {
	graft.Register(graft.Node[*OTelTracer]{
		ID:        TracerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*OTelTracer, error) {
			return NewOTelTracer("grid"), nil
		},
	})
}
