// Package worker implements C5: a fixed pool of consumers draining the
// ingest queue and dispatching each work item to the graph store, trace
// buffer, or merge engine.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	otelspan "go.opentelemetry.io/otel/trace"

	"github.com/flowcore/flowcore/internal/graph"
	"github.com/flowcore/flowcore/internal/ingest"
	"github.com/flowcore/flowcore/internal/merge"
	"github.com/flowcore/flowcore/internal/store"
	"github.com/flowcore/flowcore/internal/trace"
	flowcoreerrors "github.com/flowcore/flowcore/pkg/flowcore/errors"
)

// GraphLoader transforms a submitted static-graph payload into a Graph.
// Decoding happens here, on a worker goroutine, never on the ingress
// thread that accepted the submission.
type GraphLoader interface {
	Load(payload []byte) (*graph.Graph, error)
}

// EventDecoder transforms a submitted runtime-event batch payload into
// trace events.
type EventDecoder interface {
	Decode(payload []byte) ([]trace.Event, error)
}

// Metrics receives counts at the call sites named in the design notes.
// Embedders that don't need metrics pass NoopMetrics.
type Metrics interface {
	RecordMergeSuccess()
	RecordMergeFailure(code flowcoreerrors.Code)
	RecordWorkItemFailure(code flowcoreerrors.Code)
	RecordDedupHit()
}

// NoopMetrics discards every call.
type NoopMetrics struct{}

func (NoopMetrics) RecordMergeSuccess()                       {}
func (NoopMetrics) RecordMergeFailure(flowcoreerrors.Code)    {}
func (NoopMetrics) RecordWorkItemFailure(flowcoreerrors.Code) {}
func (NoopMetrics) RecordDedupHit()                           {}

// MergeLogger receives structured log events around a single trace
// merge and runtime-event dedup drops. Embedders that don't need these
// logs pass NoopMergeLogger. Kept narrow and dependency-free (no
// pkg/flowcore/observability import here) for the same reason Metrics
// is narrow: internal/worker shouldn't import a pkg/ package, so the
// composition root bridges to the richer observability helpers via an
// adapter.
type MergeLogger interface {
	LogMergeStart(graphID, traceID string)
	LogMergeComplete(graphID, traceID string, durationMs float64, nodesTouched, edgesTouched int)
	LogMergeError(graphID, traceID string, err error, attempt int)
	LogEventDropped(traceID, eventID string)
}

// NoopMergeLogger discards every call.
type NoopMergeLogger struct{}

func (NoopMergeLogger) LogMergeStart(string, string)                       {}
func (NoopMergeLogger) LogMergeComplete(string, string, float64, int, int) {}
func (NoopMergeLogger) LogMergeError(string, string, error, int)           {}
func (NoopMergeLogger) LogEventDropped(string, string)                    {}

// SpanManager opens and closes a trace span around a single merge.
// Embedders that don't need tracing pass NoopSpanManager. Narrower than
// pkg/flowcore/observability.SpanManager by design (only the two
// methods scheduleMerge needs) — any implementation of the richer
// interface, including observability's, already satisfies this one.
type SpanManager interface {
	StartMergeSpan(ctx context.Context, graphID, traceID string) (context.Context, otelspan.Span)
	EndSpanWithError(span otelspan.Span, err error)
}

// NoopSpanManager discards every call.
type NoopSpanManager struct{}

func (NoopSpanManager) StartMergeSpan(ctx context.Context, _, _ string) (context.Context, otelspan.Span) {
	return ctx, otelspan.SpanFromContext(ctx)
}
func (NoopSpanManager) EndSpanWithError(otelspan.Span, error) {}

// Config tunes the pool's width and polling cadence.
type Config struct {
	WorkerCount     int
	PollTimeout     time.Duration
	ShutdownGrace   time.Duration
}

// DefaultConfig returns the defaults named in the configuration table.
func DefaultConfig() Config {
	return Config{WorkerCount: 2, PollTimeout: 100 * time.Millisecond, ShutdownGrace: 2 * time.Second}
}

// Pool runs Config.WorkerCount goroutines draining queue and dispatching
// to store/buffer/merge engine.
type Pool struct {
	queue    *ingest.Queue
	store    *store.Store
	buffer   *trace.Buffer
	engine   *merge.Engine
	loader   GraphLoader
	decoder  EventDecoder
	metrics  Metrics
	mergeLog MergeLogger
	spans    SpanManager
	logger   *slog.Logger
	cfg      Config

	stop     chan struct{}
	workerWG sync.WaitGroup
	mergeWG  sync.WaitGroup
}

// New creates a worker pool. metrics, mergeLog, spans, and logger may be
// nil; nil values are replaced with no-op defaults.
func New(
	q *ingest.Queue,
	s *store.Store,
	b *trace.Buffer,
	eng *merge.Engine,
	loader GraphLoader,
	decoder EventDecoder,
	metrics Metrics,
	mergeLog MergeLogger,
	spans SpanManager,
	logger *slog.Logger,
	cfg Config,
) *Pool {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if mergeLog == nil {
		mergeLog = NoopMergeLogger{}
	}
	if spans == nil {
		spans = NoopSpanManager{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:    q,
		store:    s,
		buffer:   b,
		engine:   eng,
		loader:   loader,
		decoder:  decoder,
		metrics:  metrics,
		mergeLog: mergeLog,
		spans:    spans,
		logger:   logger,
		cfg:      cfg,
		stop:     make(chan struct{}),
	}
}

// Start launches the worker goroutines. ctx governs the lifetime of
// in-flight dequeue/merge calls; Stop additionally requests a graceful
// drain of the workers themselves.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.workerWG.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Stop signals every worker to stop accepting new items, waits up to
// ShutdownGrace for in-flight work to drain, then returns. Scheduled
// (fire-and-forget) merges are also awaited, since they are the only
// background work a worker may have spawned beyond its own loop.
func (p *Pool) Stop() {
	close(p.stop)

	done := make(chan struct{})
	go func() {
		p.workerWG.Wait()
		p.mergeWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownGrace):
		p.logger.Warn("worker pool shutdown grace period exceeded, returning with work still draining")
	}
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.workerWG.Done()
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		item, ok := p.queue.Dequeue(ctx, p.cfg.PollTimeout)
		if !ok {
			continue
		}

		switch w := item.(type) {
		case ingest.StaticGraphWork:
			p.handleStaticGraph(w)
		case ingest.RuntimeEventWork:
			p.handleRuntimeEvent(ctx, w)
		default:
			p.logger.Error("worker received unknown work item type", "worker_id", id)
		}
	}
}

func (p *Pool) handleStaticGraph(w ingest.StaticGraphWork) {
	g, err := p.loader.Load(w.Payload)
	if err != nil {
		p.logger.Error("failed to load static graph payload", "item_id", w.ItemID, "graph_id", w.GraphID, "error", err)
		p.metrics.RecordWorkItemFailure(flowcoreerrors.CodeOf(err))
		return
	}
	p.store.PutStatic(w.GraphID, g)
}

func (p *Pool) handleRuntimeEvent(ctx context.Context, w ingest.RuntimeEventWork) {
	events, err := p.decoder.Decode(w.Payload)
	if err != nil {
		p.logger.Error("failed to decode runtime event payload", "item_id", w.ItemID, "trace_id", w.TraceID, "graph_id", w.GraphID, "error", err)
		p.metrics.RecordWorkItemFailure(flowcoreerrors.CodeOf(err))
		return
	}

	droppedEventIDs, newTrace := p.buffer.Append(w.TraceID, w.GraphID, events)
	for _, eventID := range droppedEventIDs {
		p.metrics.RecordDedupHit()
		p.mergeLog.LogEventDropped(w.TraceID, eventID)
	}
	if newTrace {
		p.store.IncrementTraceCount(w.GraphID)
	}
	if !w.TraceComplete {
		return
	}

	p.buffer.MarkComplete(w.TraceID)

	p.mergeWG.Add(1)
	go p.scheduleMerge(ctx, w.GraphID, w.TraceID, 0)
}

// scheduleMerge runs the merge engine for one trace without blocking
// the worker that dispatched it. Per §7's propagation policy, a
// MERGE_CONFLICT is rescheduled exactly once before being dropped;
// MERGE_INVALID and any other failure are dropped immediately. A
// dropped trace remains in the buffer, unmerged, and may be retried by
// a future submission or admin action.
func (p *Pool) scheduleMerge(ctx context.Context, graphID, traceID string, retriesSoFar int) {
	defer p.mergeWG.Done()

	tr, ok := p.buffer.Get(traceID)
	if !ok {
		return
	}

	p.mergeLog.LogMergeStart(graphID, traceID)
	ctx, span := p.spans.StartMergeSpan(ctx, graphID, traceID)
	start := time.Now()

	err := p.engine.MergeTrace(ctx, graphID, tr)
	p.spans.EndSpanWithError(span, err)

	if err == nil {
		p.buffer.MarkMerged(traceID)
		p.metrics.RecordMergeSuccess()
		nodesTouched, edgesTouched := 0, 0
		if meta, ok := p.store.Metadata(graphID); ok {
			nodesTouched, edgesTouched = meta.NodeCount, meta.EdgeCount
		}
		durationMs := float64(time.Since(start).Milliseconds())
		p.mergeLog.LogMergeComplete(graphID, traceID, durationMs, nodesTouched, edgesTouched)
		return
	}

	code := flowcoreerrors.CodeOf(err)
	p.metrics.RecordMergeFailure(code)
	p.mergeLog.LogMergeError(graphID, traceID, err, retriesSoFar)

	if code == flowcoreerrors.CodeMergeConflict && retriesSoFar == 0 {
		p.mergeWG.Add(1)
		go p.scheduleMerge(ctx, graphID, traceID, retriesSoFar+1)
	}
}
