// Package trace implements C3, the runtime trace buffer: a keyed map of
// trace-id to accumulating Trace, with per-trace event dedup and TTL
// eviction of merged traces.
package trace

import (
	"sort"
	"sync"
	"time"

	"github.com/flowcore/flowcore/internal/clock"
)

// Trace is a read-only snapshot of one execution's accumulated events
// and derived projections. Values returned from the buffer are copies;
// mutating one has no effect on the buffer's internal state.
type Trace struct {
	TraceID     string
	GraphID     string
	Events      []Event
	Checkpoints []Checkpoint
	Errors      []ErrorRecord
	AsyncHops   []AsyncHop
	CreatedAt   time.Time
	CompletedAt time.Time
	Complete    bool
	Merged      bool
}

// HasErrors reports whether any ERROR event has been recorded.
func (t Trace) HasErrors() bool { return len(t.Errors) > 0 }

// Config tunes the buffer's dedup and retention behavior. New uses the
// values as given and does not substitute defaults for zero values;
// DefaultConfig returns the defaults described in the configuration
// table. A zero UnmergedHardBound disables forced eviction of unmerged
// traces.
type Config struct {
	DedupEnabled bool
	TTL          time.Duration
	MaxCount     int
	// UnmergedHardBound is the "forcibly evicted and logged" ceiling for
	// traces that never complete, per §5 Retention.
	UnmergedHardBound time.Duration
}

// DefaultConfig returns the defaults named in the configuration table.
func DefaultConfig() Config {
	return Config{
		DedupEnabled:      true,
		TTL:               10 * time.Minute,
		MaxCount:          0, // 0 = unbounded; the embedder sets a real cap
		UnmergedHardBound: 24 * time.Hour,
	}
}

// traceState is the buffer's mutable working copy of one trace. Every
// mutation happens under mu, matching §5's rule that a trace's dedup set
// is owned by that trace and mutated only under its own per-key lock.
type traceState struct {
	mu    sync.Mutex
	trace Trace
	dedup map[uint64]struct{}

	// pendingProduce indexes PRODUCE_TOPIC events awaiting a matching
	// CONSUME_TOPIC by correlation id, for the buffer's own async-hop
	// projection (distinct from, and prior to, the merge engine's
	// Async-Hop stage over the same raw events).
	pendingProduce map[string]Event
}

func newTraceState(traceID, graphID string, now time.Time) *traceState {
	return &traceState{
		trace: Trace{
			TraceID:   traceID,
			GraphID:   graphID,
			CreatedAt: now,
		},
		dedup:          make(map[uint64]struct{}),
		pendingProduce: make(map[string]Event),
	}
}

func (ts *traceState) snapshot() Trace {
	t := ts.trace
	t.Events = append([]Event(nil), ts.trace.Events...)
	t.Checkpoints = append([]Checkpoint(nil), ts.trace.Checkpoints...)
	t.Errors = append([]ErrorRecord(nil), ts.trace.Errors...)
	t.AsyncHops = append([]AsyncHop(nil), ts.trace.AsyncHops...)
	return t
}

// Buffer is the thread-safe trace buffer described by C3.
type Buffer struct {
	clock clock.Clock
	cfg   Config

	mu      sync.Mutex
	traces  map[string]*traceState
	byGraph map[string]map[string]struct{}

	deduplicatedEvents int64
}

// New creates an empty trace buffer.
func New(clk clock.Clock, cfg Config) *Buffer {
	return &Buffer{
		clock:   clk,
		cfg:     cfg,
		traces:  make(map[string]*traceState),
		byGraph: make(map[string]map[string]struct{}),
	}
}

// getOrCreate returns the traceState for traceID, creating it (and
// indexing it under graphID) if absent. created reports whether this
// call did the creating. Held under b.mu only briefly; the returned
// state's own mu guards the actual event processing.
func (b *Buffer) getOrCreate(traceID, graphID string) (ts *traceState, created bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts, ok := b.traces[traceID]
	if ok {
		return ts, false
	}

	if b.cfg.MaxCount > 0 && len(b.traces) >= b.cfg.MaxCount {
		b.evictOldestLocked()
	}

	ts = newTraceState(traceID, graphID, b.clock.Now())
	b.traces[traceID] = ts
	if b.byGraph[graphID] == nil {
		b.byGraph[graphID] = make(map[string]struct{})
	}
	b.byGraph[graphID][traceID] = struct{}{}
	return ts, true
}

// evictOldestLocked drops the trace with the oldest created-at to make
// room under MaxCount. Must be called with b.mu held.
func (b *Buffer) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	first := true
	for id, ts := range b.traces {
		ts.mu.Lock()
		createdAt := ts.trace.CreatedAt
		ts.mu.Unlock()
		if first || createdAt.Before(oldestAt) {
			oldestID, oldestAt, first = id, createdAt, false
		}
	}
	if oldestID != "" {
		b.deleteLocked(oldestID)
	}
}

// Append folds a batch of events into the trace, creating it if this is
// the first batch for traceID. Duplicate events (per the dedup key) are
// dropped; Append returns the event-ids of whichever of this batch were
// dropped, for the caller to report as dedup-hit metrics/logs, and
// whether traceID was newly created by this call (the graph's
// trace-count should be bumped on a newly-created trace, not on every
// batch of an existing one). CHECKPOINT, ERROR, and correlated
// PRODUCE_TOPIC/CONSUME_TOPIC pairs update their respective derived
// projections as they are appended.
func (b *Buffer) Append(traceID, graphID string, events []Event) (droppedEventIDs []string, newTrace bool) {
	ts, created := b.getOrCreate(traceID, graphID)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	for _, e := range events {
		if b.cfg.DedupEnabled {
			key := dedupKey(e)
			if _, seen := ts.dedup[key]; seen {
				b.incrementDedupCount()
				droppedEventIDs = append(droppedEventIDs, e.EventID)
				continue
			}
			ts.dedup[key] = struct{}{}
		}

		e.TraceID = traceID
		ts.trace.Events = append(ts.trace.Events, e)
		ts.applyProjection(e)
	}
	return droppedEventIDs, created
}

func (b *Buffer) incrementDedupCount() {
	b.mu.Lock()
	b.deduplicatedEvents++
	b.mu.Unlock()
}

// DeduplicatedEvents returns the running count of events dropped as
// duplicates, for the "dedup hit" metric.
func (b *Buffer) DeduplicatedEvents() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deduplicatedEvents
}

// applyProjection updates checkpoints/errors/async-hops for one newly
// appended event. Caller holds ts.mu.
func (ts *traceState) applyProjection(e Event) {
	switch e.Type {
	case EventCheckpoint:
		ts.trace.Checkpoints = append(ts.trace.Checkpoints, Checkpoint{
			NodeID:    e.NodeID,
			Name:      checkpointName(e.Attributes),
			Timestamp: e.Timestamp,
			Data:      e.Attributes,
		})
	case EventError:
		ts.trace.Errors = append(ts.trace.Errors, ErrorRecord{
			NodeID:    e.NodeID,
			Timestamp: e.Timestamp,
			Message:   errorMessage(e.Attributes),
			Class:     errorClass(e.Attributes),
		})
	case EventProduceTopic:
		if cid := correlationID(e.Attributes); cid != "" {
			ts.pendingProduce[cid] = e
		}
	case EventConsumeTopic:
		if cid := correlationID(e.Attributes); cid != "" {
			if produced, ok := ts.pendingProduce[cid]; ok {
				ts.trace.AsyncHops = append(ts.trace.AsyncHops, AsyncHop{
					CorrelationID: cid,
					ProducerNode:  produced.NodeID,
					ConsumerNode:  e.NodeID,
					ProducedAt:    produced.Timestamp,
					ConsumedAt:    e.Timestamp,
				})
				delete(ts.pendingProduce, cid)
			}
		}
	}
}

func checkpointName(attrs map[string]any) string {
	if attrs == nil {
		return ""
	}
	if v, ok := attrs["name"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// MarkComplete sets complete=true and stamps completed-at, idempotently.
func (b *Buffer) MarkComplete(traceID string) {
	b.mu.Lock()
	ts, ok := b.traces[traceID]
	b.mu.Unlock()
	if !ok {
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.trace.Complete {
		return
	}
	ts.trace.Complete = true
	ts.trace.CompletedAt = b.clock.Now()
}

// MarkMerged sets merged=true, idempotently.
func (b *Buffer) MarkMerged(traceID string) {
	b.mu.Lock()
	ts, ok := b.traces[traceID]
	b.mu.Unlock()
	if !ok {
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.trace.Merged = true
}

// Get returns a deep snapshot of the trace, or false if absent.
func (b *Buffer) Get(traceID string) (Trace, bool) {
	b.mu.Lock()
	ts, ok := b.traces[traceID]
	b.mu.Unlock()
	if !ok {
		return Trace{}, false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.snapshot(), true
}

// PendingForGraph returns snapshots of every trace for graphID that is
// complete but not yet merged, ordered by created-at so the merge
// scheduler processes the oldest first.
func (b *Buffer) PendingForGraph(graphID string) []Trace {
	b.mu.Lock()
	ids := make([]string, 0, len(b.byGraph[graphID]))
	for id := range b.byGraph[graphID] {
		ids = append(ids, id)
	}
	states := make([]*traceState, 0, len(ids))
	for _, id := range ids {
		if ts, ok := b.traces[id]; ok {
			states = append(states, ts)
		}
	}
	b.mu.Unlock()

	out := make([]Trace, 0, len(states))
	for _, ts := range states {
		ts.mu.Lock()
		if ts.trace.Complete && !ts.trace.Merged {
			out = append(out, ts.snapshot())
		}
		ts.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Delete removes traceID, idempotently.
func (b *Buffer) Delete(traceID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteLocked(traceID)
}

func (b *Buffer) deleteLocked(traceID string) bool {
	ts, ok := b.traces[traceID]
	if !ok {
		return false
	}
	delete(b.traces, traceID)
	if set, ok := b.byGraph[ts.trace.GraphID]; ok {
		delete(set, traceID)
		if len(set) == 0 {
			delete(b.byGraph, ts.trace.GraphID)
		}
	}
	return true
}

// DeleteForGraph removes every trace associated with graphID, returning
// the number removed.
func (b *Buffer) DeleteForGraph(graphID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.byGraph[graphID]))
	for id := range b.byGraph[graphID] {
		ids = append(ids, id)
	}
	for _, id := range ids {
		b.deleteLocked(id)
	}
	return len(ids)
}

// EvictExpired removes every merged trace whose completed-at + ttl has
// passed, and every unmerged trace older than UnmergedHardBound, per §5
// Retention. Returns the total number of traces removed.
func (b *Buffer) EvictExpired() int {
	now := b.clock.Now()

	b.mu.Lock()
	ids := make([]string, 0, len(b.traces))
	for id := range b.traces {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	removed := 0
	for _, id := range ids {
		b.mu.Lock()
		ts, ok := b.traces[id]
		b.mu.Unlock()
		if !ok {
			continue
		}

		ts.mu.Lock()
		expired := ts.trace.Merged && !ts.trace.CompletedAt.IsZero() && ts.trace.CompletedAt.Add(b.cfg.TTL).Before(now)
		hardExpired := !ts.trace.Merged && b.cfg.UnmergedHardBound > 0 && ts.trace.CreatedAt.Add(b.cfg.UnmergedHardBound).Before(now)
		ts.mu.Unlock()

		if expired || hardExpired {
			b.mu.Lock()
			if b.deleteLocked(id) {
				removed++
			}
			b.mu.Unlock()
		}
	}
	return removed
}
