package flowcore

import (
	"log/slog"

	"github.com/flowcore/flowcore/internal/clock"
	"github.com/flowcore/flowcore/internal/export"
	"github.com/flowcore/flowcore/pkg/flowcore/config"
	"github.com/flowcore/flowcore/pkg/flowcore/observability"
)

// coreSettings collects everything an Option can override. Unset fields
// are filled with production defaults by New.
type coreSettings struct {
	cfg     config.Config
	logger  *slog.Logger
	clock   clock.Clock
	metrics observability.Metrics
	spans   observability.SpanManager
	sink    export.AnalyticsSink
}

// Option configures a Core at construction time.
type Option func(*coreSettings)

// WithConfig overrides the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(s *coreSettings) { s.cfg = cfg }
}

// WithLogger sets the structured logger every component logs through.
func WithLogger(logger *slog.Logger) Option {
	return func(s *coreSettings) { s.logger = logger }
}

// WithClock overrides the time source — tests use this to inject
// clock.NewMock for deterministic TTL/eviction behavior.
func WithClock(clk clock.Clock) Option {
	return func(s *coreSettings) { s.clock = clk }
}

// WithMetrics overrides the OTel-backed metrics recorder, e.g. with
// observability.NoopMetrics{} or a test double.
func WithMetrics(m observability.Metrics) Option {
	return func(s *coreSettings) { s.metrics = m }
}

// WithSpanManager overrides the OTel-backed span manager.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *coreSettings) { s.spans = sm }
}

// WithAnalyticsSink overrides the analytics export destination. Defaults
// to export.NullSink{} — wiring a real analytics database driver is an
// explicit non-goal (§1).
func WithAnalyticsSink(sink export.AnalyticsSink) Option {
	return func(s *coreSettings) { s.sink = sink }
}
