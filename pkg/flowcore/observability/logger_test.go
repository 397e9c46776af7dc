package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCaptureLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), buf
}

func decodeLastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
	return m
}

func TestEnrichLogger_AddsGraphAndTraceFields(t *testing.T) {
	logger, buf := newCaptureLogger()
	enriched := EnrichLogger(logger, "g1", "t1")
	enriched.Info("hello")

	m := decodeLastLine(t, buf)
	assert.Equal(t, "g1", m["graph_id"])
	assert.Equal(t, "t1", m["trace_id"])
}

func TestEnrichLogger_NilLoggerReturnsNil(t *testing.T) {
	assert.Nil(t, EnrichLogger(nil, "g1", "t1"))
}

func TestLogMergeComplete_IncludesCounts(t *testing.T) {
	logger, buf := newCaptureLogger()
	LogMergeComplete(logger, "g1", "t1", 12.5, 3, 2)

	m := decodeLastLine(t, buf)
	assert.Equal(t, "merge completed", m["msg"])
	assert.EqualValues(t, 3, m["nodes_touched"])
	assert.EqualValues(t, 2, m["edges_touched"])
}

func TestLogMergeError_IncludesAttempt(t *testing.T) {
	logger, buf := newCaptureLogger()
	LogMergeError(logger, "g1", "t1", errors.New("boom"), 2)

	m := decodeLastLine(t, buf)
	assert.Equal(t, "merge failed", m["msg"])
	assert.Equal(t, "boom", m["error"])
	assert.EqualValues(t, 2, m["attempt"])
}

func TestLogQueueBackpressure_ReportsBothPercents(t *testing.T) {
	logger, buf := newCaptureLogger()
	LogQueueBackpressure(logger, 90, 80)

	m := decodeLastLine(t, buf)
	assert.EqualValues(t, 90, m["utilization_percent"])
	assert.EqualValues(t, 80, m["threshold_percent"])
}

func TestNilLoggerFunctionsDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		LogMergeStart(nil, "g1", "t1")
		LogMergeComplete(nil, "g1", "t1", 1, 1, 1)
		LogMergeError(nil, "g1", "t1", errors.New("x"), 1)
		LogEventDropped(nil, "t1", "e1")
		LogQueueBackpressure(nil, 1, 1)
		LogExportError(nil, "g1", errors.New("x"))
	})
}

func TestTimedOperation_ReportsNonNegativeElapsed(t *testing.T) {
	done := TimedOperation()
	elapsed := done()
	assert.GreaterOrEqual(t, elapsed, float64(0))
}
