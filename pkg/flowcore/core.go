// Package flowcore is the composition root: it wires C1-C7 into the
// nine operations named in §6 and is the only package an embedder
// outside this module needs to import.
package flowcore

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowcore/flowcore/internal/clock"
	"github.com/flowcore/flowcore/internal/export"
	"github.com/flowcore/flowcore/internal/extract"
	"github.com/flowcore/flowcore/internal/graph"
	"github.com/flowcore/flowcore/internal/ingest"
	"github.com/flowcore/flowcore/internal/merge"
	"github.com/flowcore/flowcore/internal/store"
	"github.com/flowcore/flowcore/internal/trace"
	"github.com/flowcore/flowcore/internal/worker"
	"github.com/flowcore/flowcore/pkg/flowcore/config"
	flowcoreerrors "github.com/flowcore/flowcore/pkg/flowcore/errors"
	"github.com/flowcore/flowcore/pkg/flowcore/observability"
)

// Core wires the ingest queue, worker pool, graph store, trace buffer,
// merge engine, and export pipeline into the operations named in §6.
// A zero Core is not usable; construct one with New.
type Core struct {
	cfg config.Config

	store      *store.Store
	buffer     *trace.Buffer
	queue      *ingest.Queue
	pool       *worker.Pool
	engine     *merge.Engine
	sink       export.AnalyticsSink
	exportExec *export.Executor

	metrics observability.Metrics
	spans   observability.SpanManager
	logger  *slog.Logger

	stopEviction chan struct{}
}

// metricsAdapter satisfies worker.Metrics by forwarding to an
// observability.Metrics recorder with a background context — the
// worker pool's Metrics interface predates context-scoped recording and
// is intentionally narrower than observability.Metrics.
type metricsAdapter struct{ m observability.Metrics }

func (a metricsAdapter) RecordMergeSuccess() { a.m.RecordMergeSuccess(context.Background()) }
func (a metricsAdapter) RecordMergeFailure(code flowcoreerrors.Code) {
	a.m.RecordMergeFailure(context.Background(), code)
}
func (a metricsAdapter) RecordWorkItemFailure(code flowcoreerrors.Code) {
	a.m.RecordWorkItemFailure(context.Background(), code)
}
func (a metricsAdapter) RecordDedupHit() { a.m.RecordDedupHit(context.Background()) }

// mergeLogAdapter satisfies worker.MergeLogger by forwarding to the
// observability package's structured log helpers — the same bridging
// role metricsAdapter plays for counters, keeping internal/worker free
// of any pkg/flowcore/observability import.
type mergeLogAdapter struct{ logger *slog.Logger }

func (a mergeLogAdapter) LogMergeStart(graphID, traceID string) {
	observability.LogMergeStart(a.logger, graphID, traceID)
}
func (a mergeLogAdapter) LogMergeComplete(graphID, traceID string, durationMs float64, nodesTouched, edgesTouched int) {
	observability.LogMergeComplete(a.logger, graphID, traceID, durationMs, nodesTouched, edgesTouched)
}
func (a mergeLogAdapter) LogMergeError(graphID, traceID string, err error, attempt int) {
	observability.LogMergeError(a.logger, graphID, traceID, err, attempt)
}
func (a mergeLogAdapter) LogEventDropped(traceID, eventID string) {
	observability.LogEventDropped(a.logger, traceID, eventID)
}

// New constructs a Core, starts its worker pool and background eviction
// loop, and returns it ready to accept submissions. Call Close to stop
// both.
func New(opts ...Option) *Core {
	s := coreSettings{
		cfg:     config.Default(),
		logger:  slog.Default(),
		clock:   clock.Real{},
		metrics: observability.NewMetrics(),
		spans:   observability.NewSpanManager(),
		sink:    export.NullSink{},
	}
	for _, opt := range opts {
		opt(&s)
	}

	gstore := store.New(s.clock)
	buffer := trace.New(s.clock, trace.Config{
		DedupEnabled:      s.cfg.Dedup.Enabled,
		TTL:               s.cfg.Trace.TTL,
		MaxCount:          s.cfg.Trace.MaxCount,
		UnmergedHardBound: trace.DefaultConfig().UnmergedHardBound,
	})
	queue := ingest.New(s.cfg.Queue.Capacity)
	engine := merge.New(gstore, s.clock, merge.Config{
		MaxAttempts:    merge.DefaultConfig().MaxAttempts,
		ValidateStrict: s.cfg.Validator.Strict,
	})

	pool := worker.New(
		queue,
		gstore,
		buffer,
		engine,
		NewGraphDecoder(),
		NewEventDecoder(),
		metricsAdapter{s.metrics},
		mergeLogAdapter{s.logger},
		s.spans,
		s.logger,
		worker.Config{
			WorkerCount:   s.cfg.Worker.Count,
			PollTimeout:   s.cfg.Worker.PollTimeout,
			ShutdownGrace: 2 * time.Second,
		},
	)

	exportExec := export.NewExecutor(s.sink, s.metrics, s.spans, s.logger, export.Config{
		WorkerCount:   s.cfg.Export.WorkerCount,
		QueueCapacity: s.cfg.Export.QueueCapacity,
	})

	c := &Core{
		cfg:          s.cfg,
		store:        gstore,
		buffer:       buffer,
		queue:        queue,
		pool:         pool,
		engine:       engine,
		sink:         s.sink,
		exportExec:   exportExec,
		metrics:      s.metrics,
		spans:        s.spans,
		logger:       s.logger,
		stopEviction: make(chan struct{}),
	}

	pool.Start(context.Background())
	go c.runEviction()

	return c
}

func (c *Core) runEviction() {
	interval := c.cfg.Trace.EvictionInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopEviction:
			return
		case <-ticker.C:
			if n := c.buffer.EvictExpired(); n > 0 {
				c.logger.Debug("evicted expired traces", "count", n)
			}
		}
	}
}

// Close stops the worker pool, the export executor, and the background
// eviction loop.
func (c *Core) Close() {
	close(c.stopEviction)
	c.pool.Stop()
	c.exportExec.Stop()
}

// SubmitStatic enqueues a static-graph payload for decode and storage.
// Returns QUEUE_FULL if the ingest queue has no room within
// cfg.EnqueueTimeout.
func (c *Core) SubmitStatic(ctx context.Context, graphID string, payload []byte) error {
	item := ingest.StaticGraphWork{ItemID: uuid.New().String(), GraphID: graphID, Payload: payload, Submitted: time.Now()}
	ok := c.queue.Enqueue(ctx, item, c.cfg.EnqueueTimeout)
	c.metrics.RecordEnqueue(ctx, ok)
	if !ok {
		return flowcoreerrors.QueueFull()
	}
	util := c.queue.UtilizationPercent()
	c.metrics.ObserveQueueUtilization(ctx, util)
	if util >= c.cfg.Queue.BackpressureThreshold {
		observability.LogQueueBackpressure(c.logger, util, c.cfg.Queue.BackpressureThreshold)
	}
	return nil
}

// SubmitRuntime enqueues a batch of runtime events for traceID,
// referencing graphID. Returns GRAPH_NOT_FOUND if the graph store holds
// no graph with that id at call time (including a static submission
// still waiting in the queue, or a deleted graph), or QUEUE_FULL on
// backpressure timeout.
func (c *Core) SubmitRuntime(ctx context.Context, traceID, graphID string, payload []byte, traceComplete bool) error {
	if _, ok := c.store.Get(graphID); !ok {
		return flowcoreerrors.GraphNotFound(graphID)
	}

	item := ingest.RuntimeEventWork{
		ItemID:        uuid.New().String(),
		TraceID:       traceID,
		GraphID:       graphID,
		Payload:       payload,
		TraceComplete: traceComplete,
		Submitted:     time.Now(),
	}
	ok := c.queue.Enqueue(ctx, item, c.cfg.EnqueueTimeout)
	c.metrics.RecordEnqueue(ctx, ok)
	if !ok {
		return flowcoreerrors.QueueFull()
	}
	util := c.queue.UtilizationPercent()
	c.metrics.ObserveQueueUtilization(ctx, util)
	if util >= c.cfg.Queue.BackpressureThreshold {
		observability.LogQueueBackpressure(c.logger, util, c.cfg.Queue.BackpressureThreshold)
	}
	return nil
}

// GetGraph returns a snapshot of the current graph for graphID.
func (c *Core) GetGraph(graphID string) (*graph.Graph, error) {
	g, ok := c.store.Get(graphID)
	if !ok {
		return nil, flowcoreerrors.GraphNotFound(graphID)
	}
	return g, nil
}

// ListGraphs returns metadata for every graph currently held.
func (c *Core) ListGraphs() []store.Metadata {
	return c.store.List()
}

// DeleteGraph removes graphID and every trace buffered against it.
func (c *Core) DeleteGraph(graphID string) {
	c.store.Delete(graphID)
	c.buffer.DeleteForGraph(graphID)
}

// Slice returns the zoom-filtered subgraph of graphID at the requested
// level.
func (c *Core) Slice(graphID string, level graph.ZoomLevel) (*graph.Graph, error) {
	g, err := c.GetGraph(graphID)
	if err != nil {
		return nil, err
	}
	return extract.Slice(g, level), nil
}

// ExtractFlows returns one BFS-ordered Flow per ENDPOINT/TOPIC node in
// graphID, per §4.7.
func (c *Core) ExtractFlows(graphID string) ([]extract.Flow, error) {
	g, err := c.GetGraph(graphID)
	if err != nil {
		return nil, err
	}
	return extract.ExtractFlows(g), nil
}

// GetTrace returns a snapshot of traceID's accumulated events.
func (c *Core) GetTrace(traceID string) (trace.Trace, error) {
	tr, ok := c.buffer.Get(traceID)
	if !ok {
		return trace.Trace{}, flowcoreerrors.TraceNotFound(traceID)
	}
	return tr, nil
}

// ExportCypher renders graphID as an ordered sequence of Cypher
// statements.
func (c *Core) ExportCypher(graphID string) ([]string, error) {
	g, err := c.GetGraph(graphID)
	if err != nil {
		return nil, err
	}
	meta, _ := c.store.Metadata(graphID)
	return export.BuildStatements(graphID, g, meta.LastUpdatedAt), nil
}

// PushToAnalytics exports graphID and hands the statements to the
// export executor, a pool distinct from the ingest worker pool (§5).
// The actual push runs asynchronously; this call only reports whether
// the push was accepted. Returns UNAVAILABLE synchronously when no
// AnalyticsSink is configured (a static fact, not an I/O outcome) or
// when the export executor's queue is full; the push's real
// success/failure is only observable via metrics, logs, and spans.
func (c *Core) PushToAnalytics(ctx context.Context, graphID string) error {
	if _, unwired := c.sink.(export.NullSink); unwired {
		return flowcoreerrors.Unavailable(export.ErrNoSinkConfigured.Error())
	}

	statements, err := c.ExportCypher(graphID)
	if err != nil {
		return err
	}

	if !c.exportExec.Submit(graphID, statements) {
		return flowcoreerrors.Unavailable("export executor queue full")
	}
	return nil
}
