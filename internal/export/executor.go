package export

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flowcore/flowcore/pkg/flowcore/observability"
)

// Config tunes the export executor's width and queue depth. Sized
// independently from the ingest worker pool (internal/worker.Config) —
// a stalled or slow analytics sink backs up export jobs, never ingest.
type Config struct {
	WorkerCount   int
	QueueCapacity int
}

// DefaultConfig mirrors the core/max-2 sizing the original async export
// executor used: narrower than the ingest pool, since export pushes are
// lower priority and the sink itself is the bottleneck, not Flow Core.
func DefaultConfig() Config {
	return Config{WorkerCount: 1, QueueCapacity: 1000}
}

type job struct {
	graphID    string
	statements []string
}

// Executor runs AnalyticsSink.Push calls on a small fixed pool of
// goroutines distinct from the ingest worker pool, per §5's split
// between the merge and export executors. PushToAnalytics hands a job
// to Submit and returns without waiting for the push to complete; the
// outcome is observable only through metrics, logs, and spans.
type Executor struct {
	sink    AnalyticsSink
	jobs    chan job
	metrics observability.Metrics
	spans   observability.SpanManager
	logger  *slog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewExecutor creates an export executor backed by sink. metrics, spans,
// and logger may be nil; nil values are replaced with no-op defaults.
func NewExecutor(sink AnalyticsSink, metrics observability.Metrics, spans observability.SpanManager, logger *slog.Logger, cfg Config) *Executor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if spans == nil {
		spans = observability.NoopSpanManager{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		sink:    sink,
		jobs:    make(chan job, cfg.QueueCapacity),
		metrics: metrics,
		spans:   spans,
		logger:  logger,
		stop:    make(chan struct{}),
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		e.wg.Add(1)
		go e.run()
	}
	return e
}

// Submit enqueues graphID/statements for asynchronous push, returning
// false if Stop has been called or the executor's internal queue is
// full — the caller should treat a false return the same as a push
// failure.
func (e *Executor) Submit(graphID string, statements []string) bool {
	select {
	case <-e.stop:
		return false
	default:
	}
	select {
	case e.jobs <- job{graphID: graphID, statements: statements}:
		return true
	default:
		return false
	}
}

// Stop stops accepting new jobs and waits for in-flight and already
// queued pushes to finish.
func (e *Executor) Stop() {
	close(e.stop)
	e.wg.Wait()
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			for {
				select {
				case j := <-e.jobs:
					e.push(j)
				default:
					return
				}
			}
		case j := <-e.jobs:
			e.push(j)
		}
	}
}

func (e *Executor) push(j job) {
	ctx := context.Background()
	ctx, span := e.spans.StartExportSpan(ctx, j.graphID)
	elapsed := observability.TimedOperation()

	err := e.sink.Push(ctx, j.graphID, j.statements)
	e.spans.EndSpanWithError(span, err)
	e.metrics.RecordExport(ctx, err == nil)

	if err != nil {
		observability.LogExportError(e.logger, j.graphID, err)
		return
	}
	e.logger.Debug("analytics export pushed", "graph_id", j.graphID, "statement_count", len(j.statements), "duration_ms", elapsed())
}
