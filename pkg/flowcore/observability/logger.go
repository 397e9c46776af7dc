package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds Flow Core context to a logger. Returns a new logger
// with graph_id and trace_id fields.
func EnrichLogger(logger *slog.Logger, graphID, traceID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("graph_id", graphID),
		slog.String("trace_id", traceID),
	)
}

// LogMergeStart logs the start of a trace merge.
func LogMergeStart(logger *slog.Logger, graphID, traceID string) {
	if logger == nil {
		return
	}
	logger.Debug("merge starting",
		slog.String("graph_id", graphID),
		slog.String("trace_id", traceID),
	)
}

// LogMergeComplete logs successful trace merge completion.
func LogMergeComplete(logger *slog.Logger, graphID, traceID string, durationMs float64, nodesTouched, edgesTouched int) {
	if logger == nil {
		return
	}
	logger.Info("merge completed",
		slog.String("graph_id", graphID),
		slog.String("trace_id", traceID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_touched", nodesTouched),
		slog.Int("edges_touched", edgesTouched),
	)
}

// LogMergeError logs a trace merge failure.
func LogMergeError(logger *slog.Logger, graphID, traceID string, err error, attempt int) {
	if logger == nil {
		return
	}
	logger.Error("merge failed",
		slog.String("graph_id", graphID),
		slog.String("trace_id", traceID),
		slog.String("error", err.Error()),
		slog.Int("attempt", attempt),
	)
}

// LogEventDropped logs a deduplicated runtime event.
func LogEventDropped(logger *slog.Logger, traceID, eventID string) {
	if logger == nil {
		return
	}
	logger.Debug("runtime event deduplicated",
		slog.String("trace_id", traceID),
		slog.String("event_id", eventID),
	)
}

// LogQueueBackpressure logs the ingest queue crossing its configured
// backpressure threshold.
func LogQueueBackpressure(logger *slog.Logger, utilizationPercent, thresholdPercent int) {
	if logger == nil {
		return
	}
	logger.Warn("ingest queue above backpressure threshold",
		slog.Int("utilization_percent", utilizationPercent),
		slog.Int("threshold_percent", thresholdPercent),
	)
}

// LogExportError logs an analytics export push failure (non-fatal; the
// graph remains intact regardless of export outcome).
func LogExportError(logger *slog.Logger, graphID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("analytics export failed",
		slog.String("graph_id", graphID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation. Returns a
// function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
