package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the Flow Core tracer instance, using the global OTel tracer
// provider.
var tracer = otel.Tracer("flowcore")

// SpanManager handles trace span lifecycle for merges and exports. Use
// NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartMergeSpan starts a span for a single trace merge.
	StartMergeSpan(ctx context.Context, graphID, traceID string) (context.Context, trace.Span)

	// StartExportSpan starts a span for an analytics export push.
	StartExportSpan(ctx context.Context, graphID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartMergeSpan starts a span named "flowcore.merge".
func (m *otelSpanManager) StartMergeSpan(ctx context.Context, graphID, traceID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flowcore.merge",
		trace.WithAttributes(
			attribute.String("graph_id", graphID),
			attribute.String("trace_id", traceID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartExportSpan starts a span named "flowcore.export.push".
func (m *otelSpanManager) StartExportSpan(ctx context.Context, graphID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flowcore.export.push",
		trace.WithAttributes(
			attribute.String("graph_id", graphID),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
