package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
)

// StatusAttribute is the span attribute holding the final job status.
const StatusAttribute = "grid.status"

// Bridge is an sdktrace.SpanProcessor that reports span lifecycles to a renderer.
type Bridge struct {
	renderer ports.Renderer
}

// NewBridge returns a Bridge for renderer.
func NewBridge(renderer ports.Renderer) *Bridge {
	return &Bridge{renderer: renderer}
}

// OnStart reports a started span.
func (b *Bridge) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if b.renderer == nil || !s.SpanContext().IsValid() {
		return
	}

	var parentID string
	if p := trace.SpanFromContext(parent).SpanContext(); p.IsValid() {
		parentID = p.SpanID().String()
	}
	b.renderer.OnTaskStart(s.SpanContext().SpanID().String(), parentID, s.Name(), s.StartTime())
}

// OnEnd reports a finished span. Failed spans carry their status description as the error
// and skipped jobs report domain.ErrJobCancelled.
func (b *Bridge) OnEnd(s sdktrace.ReadOnlySpan) {
	if b.renderer == nil || !s.SpanContext().IsValid() {
		return
	}
	b.renderer.OnTaskComplete(s.SpanContext().SpanID().String(), s.EndTime(), spanError(s))
}

func spanError(s sdktrace.ReadOnlySpan) error {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == StatusAttribute && kv.Value.AsString() == string(domain.JobSkipped) {
			return domain.ErrJobCancelled
		}
	}
	if s.Status().Code != codes.Error {
		return nil
	}
	desc := s.Status().Description
	if desc == "" {
		desc = "job failed"
	}
	return errors.New(desc)
}

// ForceFlush is a no-op; spans are reported synchronously.
func (b *Bridge) ForceFlush(context.Context) error {
	return nil
}

// Shutdown is a no-op.
func (b *Bridge) Shutdown(context.Context) error {
	return nil
}
