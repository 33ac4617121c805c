package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/grid/internal/adapters/telemetry"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func bridgedTracer(t *testing.T, bridge *telemetry.Bridge) *sdktrace.TracerProvider {
	t.Helper()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(bridge))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp
}

func TestBridge_ReportsLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	renderer := mocks.NewMockRenderer(ctrl)
	tp := bridgedTracer(t, telemetry.NewBridge(renderer))

	var parentID string
	gomock.InOrder(
		renderer.EXPECT().OnTaskStart(gomock.Any(), "", "pipeline", gomock.Any()).
			Do(func(id, _, _ string, _ time.Time) { parentID = id }),
		renderer.EXPECT().OnTaskStart(gomock.Any(), gomock.Any(), "os=linux", gomock.Any()).
			Do(func(_, parent, _ string, _ time.Time) { assert.Equal(t, parentID, parent) }),
		renderer.EXPECT().OnTaskComplete(gomock.Any(), gomock.Any(), nil),
		renderer.EXPECT().OnTaskComplete(gomock.Any(), gomock.Any(), nil),
	)

	ctx, root := tp.Tracer("test").Start(context.Background(), "pipeline")
	_, child := tp.Tracer("test").Start(ctx, "os=linux")
	child.End()
	root.End()
}

func TestBridge_FailedSpanCarriesDescription(t *testing.T) {
	ctrl := gomock.NewController(t)
	renderer := mocks.NewMockRenderer(ctrl)
	tp := bridgedTracer(t, telemetry.NewBridge(renderer))

	renderer.EXPECT().OnTaskStart(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any())
	renderer.EXPECT().OnTaskComplete(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ string, _ time.Time, err error) {
			require.Error(t, err)
			assert.Equal(t, "install failed", err.Error())
		})

	_, span := tp.Tracer("test").Start(context.Background(), "job")
	span.SetStatus(codes.Error, "install failed")
	span.End()
}

func TestBridge_SkippedJobReportsCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	renderer := mocks.NewMockRenderer(ctrl)
	tp := bridgedTracer(t, telemetry.NewBridge(renderer))

	renderer.EXPECT().OnTaskStart(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any())
	renderer.EXPECT().OnTaskComplete(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ string, _ time.Time, err error) {
			assert.ErrorIs(t, err, domain.ErrJobCancelled)
		})

	_, span := tp.Tracer("test").Start(context.Background(), "job")
	span.SetAttributes(attribute.String(telemetry.StatusAttribute, string(domain.JobSkipped)))
	span.End()
}

func TestBridge_NilRenderer(_ *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(telemetry.NewBridge(nil)))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "job")
	span.End()
}
