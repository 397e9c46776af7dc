// Package observability wires Flow Core's structured logging, OTel
// metrics, and OTel tracing, in the same style the teacher pipeline
// wires its own observability package.
package observability

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	flowcoreerrors "github.com/flowcore/flowcore/pkg/flowcore/errors"
)

// Metrics records the counters and gauges named in the design notes:
// enqueue success/fail, dedup hit, merge success/fail, export
// success/fail, and queue utilization.
type Metrics interface {
	RecordEnqueue(ctx context.Context, success bool)
	RecordDedupHit(ctx context.Context)
	RecordMergeSuccess(ctx context.Context)
	RecordMergeFailure(ctx context.Context, code flowcoreerrors.Code)
	RecordWorkItemFailure(ctx context.Context, code flowcoreerrors.Code)
	RecordExport(ctx context.Context, success bool)
	ObserveQueueUtilization(ctx context.Context, percent int)
}

type otelMetrics struct {
	enqueueCount metric.Int64Counter
	dedupHits    metric.Int64Counter
	mergeCount   metric.Int64Counter
	exportCount  metric.Int64Counter
	queueGauge   metric.Int64Gauge
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("flowcore")

	enqueueCount, err := meter.Int64Counter("flowcore.enqueue.count",
		metric.WithDescription("Number of ingest enqueue attempts, by outcome"))
	if err != nil {
		return nil, err
	}

	dedupHits, err := meter.Int64Counter("flowcore.dedup.hits",
		metric.WithDescription("Number of runtime events dropped as duplicates"))
	if err != nil {
		return nil, err
	}

	mergeCount, err := meter.Int64Counter("flowcore.merge.count",
		metric.WithDescription("Number of merge attempts, by outcome"))
	if err != nil {
		return nil, err
	}

	exportCount, err := meter.Int64Counter("flowcore.export.count",
		metric.WithDescription("Number of analytics export pushes, by outcome"))
	if err != nil {
		return nil, err
	}

	queueGauge, err := meter.Int64Gauge("flowcore.queue.utilization",
		metric.WithDescription("Ingest queue utilization percent"),
		metric.WithUnit("%"))
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		enqueueCount: enqueueCount,
		dedupHits:    dedupHits,
		mergeCount:   mergeCount,
		exportCount:  exportCount,
		queueGauge:   queueGauge,
	}, nil
}

// NewMetrics returns a Metrics backed by OpenTelemetry, using the
// global meter provider. Configure the provider before calling this
// (otel.SetMeterProvider) or accept the SDK's default no-op meter.
// Falls back to NoopMetrics if instrument registration fails.
func NewMetrics() Metrics {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder", "error", err)
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordEnqueue(ctx context.Context, success bool) {
	m.enqueueCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func (m *otelMetrics) RecordDedupHit(ctx context.Context) {
	m.dedupHits.Add(ctx, 1)
}

func (m *otelMetrics) RecordMergeSuccess(ctx context.Context) {
	m.mergeCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", true)))
}

func (m *otelMetrics) RecordMergeFailure(ctx context.Context, code flowcoreerrors.Code) {
	m.mergeCount.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", false),
		attribute.String("error_code", string(code)),
	))
}

func (m *otelMetrics) RecordWorkItemFailure(ctx context.Context, code flowcoreerrors.Code) {
	m.mergeCount.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", false),
		attribute.String("error_code", string(code)),
		attribute.String("stage", "ingest"),
	))
}

func (m *otelMetrics) RecordExport(ctx context.Context, success bool) {
	m.exportCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func (m *otelMetrics) ObserveQueueUtilization(ctx context.Context, percent int) {
	m.queueGauge.Record(ctx, int64(percent))
}

// NoopMetrics discards every call — NewMetrics falls back to it when
// instrument registration fails.
type NoopMetrics struct{}

func (NoopMetrics) RecordEnqueue(context.Context, bool)                        {}
func (NoopMetrics) RecordDedupHit(context.Context)                             {}
func (NoopMetrics) RecordMergeSuccess(context.Context)                         {}
func (NoopMetrics) RecordMergeFailure(context.Context, flowcoreerrors.Code)    {}
func (NoopMetrics) RecordWorkItemFailure(context.Context, flowcoreerrors.Code) {}
func (NoopMetrics) RecordExport(context.Context, bool)                        {}
func (NoopMetrics) ObserveQueueUtilization(context.Context, int)               {}
