package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	flowcoreerrors "github.com/flowcore/flowcore/pkg/flowcore/errors"
)

func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	return reader, func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown meter provider: %v", err)
		}
	}
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_UsesRealRecorderWhenProviderConfigured(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	m := NewMetrics()
	require.NotNil(t, m)
	_, isNoop := m.(NoopMetrics)
	assert.False(t, isNoop)
}

func TestRecordEnqueue_TagsSuccess(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordEnqueue(ctx, true)
	m.RecordEnqueue(ctx, false)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "flowcore.enqueue.count")
	require.NotNil(t, metric)

	sum, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 2)
}

func TestRecordDedupHit_IncrementsCounter(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDedupHit(ctx)
	m.RecordDedupHit(ctx)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "flowcore.dedup.hits")
	require.NotNil(t, metric)

	sum, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.NotEmpty(t, sum.DataPoints)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestRecordMergeFailure_IncludesErrorCode(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordMergeSuccess(ctx)
	m.RecordMergeFailure(ctx, flowcoreerrors.CodeMergeConflict)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "flowcore.merge.count")
	require.NotNil(t, metric)

	sum, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	found := false
	for _, dp := range sum.DataPoints {
		for _, attr := range dp.Attributes.ToSlice() {
			if attr.Key == "error_code" && attr.Value.AsString() == string(flowcoreerrors.CodeMergeConflict) {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a merge count datapoint tagged with the merge conflict error code")
}

func TestObserveQueueUtilization_RecordsGaugeValue(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.ObserveQueueUtilization(context.Background(), 85)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "flowcore.queue.utilization")
	require.NotNil(t, metric)

	gauge, ok := metric.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.NotEmpty(t, gauge.DataPoints)
	assert.Equal(t, int64(85), gauge.DataPoints[len(gauge.DataPoints)-1].Value)
}

func TestOtelMetrics_AllInstrumentsCreated(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	assert.NotNil(t, m.enqueueCount)
	assert.NotNil(t, m.dedupHits)
	assert.NotNil(t, m.mergeCount)
	assert.NotNil(t, m.exportCount)
	assert.NotNil(t, m.queueGauge)
}
