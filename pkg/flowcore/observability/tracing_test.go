package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest creates a test tracer provider with an in-memory
// exporter and points the package-level tracer at it.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("flowcore")

	return exporter, func() {
		otel.SetTracerProvider(original)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
	}
}

func TestStartMergeSpan_SetsGraphAndTraceAttributes(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	mgr := NewSpanManager()
	_, span := mgr.StartMergeSpan(context.Background(), "g1", "t1")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "flowcore.merge", spans[0].Name)

	var graphID, traceID string
	for _, attr := range spans[0].Attributes {
		switch attr.Key {
		case "graph_id":
			graphID = attr.Value.AsString()
		case "trace_id":
			traceID = attr.Value.AsString()
		}
	}
	assert.Equal(t, "g1", graphID)
	assert.Equal(t, "t1", traceID)
}

func TestStartExportSpan_NamesSpanExportPush(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	mgr := NewSpanManager()
	_, span := mgr.StartExportSpan(context.Background(), "g1")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "flowcore.export.push", spans[0].Name)
}

func TestEndSpanWithError_SetsErrorStatus(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	mgr := NewSpanManager()
	_, span := mgr.StartMergeSpan(context.Background(), "g1", "t1")
	mgr.EndSpanWithError(span, errors.New("boom"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestEndSpanWithError_NilErrorSetsOKStatus(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	mgr := NewSpanManager()
	_, span := mgr.StartExportSpan(context.Background(), "g1")
	mgr.EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestAddSpanEvent_NoPanicWhenNoActiveSpan(t *testing.T) {
	mgr := NewSpanManager()
	assert.NotPanics(t, func() {
		mgr.AddSpanEvent(context.Background(), "something happened")
	})
}

func TestEndSpanWithError_NilSpanDoesNotPanic(t *testing.T) {
	mgr := NewSpanManager()
	assert.NotPanics(t, func() {
		mgr.EndSpanWithError(nil, errors.New("boom"))
	})
}
