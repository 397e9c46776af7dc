package export

import (
	"context"
	"errors"
	"log/slog"
)

// AnalyticsSink pushes a batch of Cypher statements for one graph to an
// external analytics store. Implementations run on their own executor,
// separate from the ingest worker pool, so a stalled push never
// back-pressures ingest (per §5).
type AnalyticsSink interface {
	Push(ctx context.Context, graphID string, statements []string) error
}

// ErrNoSinkConfigured is NullSink's constant failure — wiring a real
// analytics database driver is out of scope (§1), so a Core that never
// receives WithAnalyticsSink has nowhere to push, by design.
var ErrNoSinkConfigured = errors.New("no analytics sink configured")

// NullSink always fails. It's the default for a Core that never calls
// WithAnalyticsSink, matching push-to-analytics's documented UNAVAILABLE
// failure mode for an unwired sink.
type NullSink struct{}

func (NullSink) Push(context.Context, string, []string) error { return ErrNoSinkConfigured }

// LoggingSink logs the statement count for each push instead of sending
// it anywhere — a visible stand-in for the out-of-scope external driver
// (§1 names the analytics database driver an explicit non-goal).
type LoggingSink struct {
	Logger *slog.Logger
}

func (s LoggingSink) Push(_ context.Context, graphID string, statements []string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("pushed cypher statements", "graph_id", graphID, "statement_count", len(statements))
	return nil
}
