// Package merge implements C6: the deterministic pipeline that folds a
// completed trace's events into a static graph, producing a new graph
// snapshot, plus the optimistic-retry loop that commits the result to
// the graph store.
package merge

import (
	"context"

	"github.com/flowcore/flowcore/internal/clock"
	"github.com/flowcore/flowcore/internal/graph"
	"github.com/flowcore/flowcore/internal/store"
	"github.com/flowcore/flowcore/internal/trace"
	flowcoreerrors "github.com/flowcore/flowcore/pkg/flowcore/errors"
)

// Merge folds tr into a fresh copy of g and returns the result. g is
// never mutated. Re-merging a trace already recorded in g (per
// Graph.HasMergedTrace) returns an unchanged snapshot — this is what
// makes Merge(Merge(G, T), T) == Merge(G, T).
func Merge(g *graph.Graph, tr trace.Trace) *graph.Graph {
	out := g.Snapshot()
	if out.HasMergedTrace(tr.TraceID) {
		return out
	}

	runtimeNodeStage(out, tr.Events)
	runtimeEdgeStage(out, tr.Events)
	durationStage(out, tr.Events)
	checkpointStage(out, tr.Checkpoints)
	asyncHopStage(out, tr.AsyncHops)
	errorStage(out, tr.Errors)
	zoomLevelPolicy(out)

	out.MarkTraceMerged(tr.TraceID)
	return out
}

// Config tunes the optimistic-retry loop and validator strictness.
type Config struct {
	MaxAttempts    int
	ValidateStrict bool
}

// DefaultConfig returns the defaults named in the configuration table.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, ValidateStrict: false}
}

// Engine wires the pure Merge function to the graph store's optimistic
// compare-and-swap. It does not touch the trace buffer: marking a trace
// complete or merged is left to the caller (the worker pool).
type Engine struct {
	store *store.Store
	clock clock.Clock
	cfg   Config
}

// New creates a merge engine backed by s.
func New(s *store.Store, clk clock.Clock, cfg Config) *Engine {
	return &Engine{store: s, clock: clk, cfg: cfg}
}

// MergeTrace reads the current graph and the given trace snapshot,
// computes the merged result, and commits it with optimistic retry: if
// the store has moved on since the snapshot was read, the merge is
// recomputed against the newer graph, up to cfg.MaxAttempts. Exhausting
// the budget surfaces MERGE_CONFLICT and leaves the trace unmerged.
func (eng *Engine) MergeTrace(ctx context.Context, graphID string, tr trace.Trace) error {
	for attempt := 0; attempt < eng.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, ok := eng.store.Get(graphID)
		if !ok {
			return flowcoreerrors.GraphNotFound(graphID)
		}

		merged := Merge(current, tr)

		if err := Validate(merged, eng.cfg.ValidateStrict); err != nil {
			return err
		}

		if _, ok := eng.store.CompareAndSwapMerged(graphID, current, merged); ok {
			return nil
		}
		// Someone else's merge committed first; retry against the newer
		// snapshot.
	}
	return flowcoreerrors.MergeConflict(graphID)
}
