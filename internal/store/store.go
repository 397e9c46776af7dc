// Package store implements C2, the graph store: a keyed, thread-safe
// registry of graph-id to current Graph value plus its metadata.
package store

import (
	"time"

	"github.com/flowcore/flowcore/internal/clock"
	"github.com/flowcore/flowcore/internal/graph"
	"github.com/flowcore/flowcore/internal/registry"
)

// Metadata mirrors the graph-store metadata record from the data model.
type Metadata struct {
	GraphID         string
	Version         string
	NodeCount       int
	EdgeCount       int
	CreatedAt       time.Time
	LastUpdatedAt   time.Time
	HasRuntimeData  bool
	TraceCount      int
}

// entry pairs a published graph snapshot with its metadata. Both fields
// are replaced together on every write so a reader never observes a
// graph from one generation paired with metadata from another.
type entry struct {
	graph *graph.Graph
	meta  Metadata
}

// Store is the thread-safe registry described by C2. Readers never
// block writers to a different graph-id; writes to the same graph-id
// are serialized by the underlying registry's per-call locking.
type Store struct {
	clock   clock.Clock
	entries *registry.Registry[string, entry]
}

// New creates an empty graph store using clk as its time source.
func New(clk clock.Clock) *Store {
	return &Store{
		clock:   clk,
		entries: registry.New[string, entry](),
	}
}

// PutStatic replaces any prior graph for graphID with g. created-at is
// preserved across a replace (initialized on first insert); updated-at
// is always set to now. trace-count is preserved from any prior entry —
// submitting a new static graph for an existing graph-id does not
// discard the knowledge that traces reference it.
func (s *Store) PutStatic(graphID string, g *graph.Graph) Metadata {
	now := s.clock.Now()
	return s.entries.Update(graphID, func(prev entry, existed bool) entry {
		createdAt := now
		traceCount := 0
		if existed {
			createdAt = prev.meta.CreatedAt
			traceCount = prev.meta.TraceCount
		}
		meta := Metadata{
			GraphID:        graphID,
			Version:        g.Version,
			NodeCount:      g.NodeCount(),
			EdgeCount:      g.EdgeCount(),
			CreatedAt:      createdAt,
			LastUpdatedAt:  now,
			HasRuntimeData: existed && prev.meta.HasRuntimeData,
			TraceCount:     traceCount,
		}
		return entry{graph: g, meta: meta}
	}).meta
}

// Get returns a snapshot of the current graph for graphID, or false if
// absent. The returned graph is independent of any future writes.
func (s *Store) Get(graphID string) (*graph.Graph, bool) {
	e, ok := s.entries.Get(graphID)
	if !ok {
		return nil, false
	}
	return e.graph, true
}

// UpdateMerged replaces the current graph with newGraph and marks
// has-runtime-data true, but only if a prior value already exists for
// graphID; otherwise it is a no-op and ok is false.
func (s *Store) UpdateMerged(graphID string, newGraph *graph.Graph) (Metadata, bool) {
	now := s.clock.Now()
	var applied bool
	result := s.entries.Update(graphID, func(prev entry, existed bool) entry {
		if !existed {
			applied = false
			return prev
		}
		applied = true
		meta := prev.meta
		meta.Version = newGraph.Version
		meta.NodeCount = newGraph.NodeCount()
		meta.EdgeCount = newGraph.EdgeCount()
		meta.LastUpdatedAt = now
		meta.HasRuntimeData = true
		return entry{graph: newGraph, meta: meta}
	})
	if !applied {
		return Metadata{}, false
	}
	return result.meta, true
}

// IncrementTraceCount bumps the trace-count metadata field for graphID.
// Called by the worker pool when a runtime-event batch creates a new
// trace against graphID (not on every batch of an existing trace).
// No-op if the graph does not exist.
func (s *Store) IncrementTraceCount(graphID string) {
	s.entries.Update(graphID, func(prev entry, existed bool) entry {
		if !existed {
			return prev
		}
		prev.meta.TraceCount++
		return prev
	})
}

// CompareAndSwapMerged performs UpdateMerged only if the store's current
// graph pointer still equals expected — the concurrency primitive the
// merge engine's optimistic-retry loop is built on. Returns false if the
// store moved on (someone else's merge committed first) or the entry
// doesn't exist.
func (s *Store) CompareAndSwapMerged(graphID string, expected, newGraph *graph.Graph) (Metadata, bool) {
	now := s.clock.Now()
	cur, ok := s.entries.Get(graphID)
	if !ok || cur.graph != expected {
		return Metadata{}, false
	}
	meta := cur.meta
	meta.Version = newGraph.Version
	meta.NodeCount = newGraph.NodeCount()
	meta.EdgeCount = newGraph.EdgeCount()
	meta.LastUpdatedAt = now
	meta.HasRuntimeData = true
	swapped := s.entries.CompareAndSwap(graphID, cur, entry{graph: newGraph, meta: meta}, func(a, b entry) bool {
		return a.graph == b.graph
	})
	if !swapped {
		return Metadata{}, false
	}
	return meta, true
}

// Delete removes graphID, reporting whether it was present.
func (s *Store) Delete(graphID string) bool {
	return s.entries.Delete(graphID)
}

// Metadata returns the metadata record for graphID, reflecting the same
// generation a concurrent Get would observe.
func (s *Store) Metadata(graphID string) (Metadata, bool) {
	e, ok := s.entries.Get(graphID)
	if !ok {
		return Metadata{}, false
	}
	return e.meta, true
}

// List returns a snapshot of every graph's metadata. It may lag a moment
// behind concurrent writers but never includes a deleted entry.
func (s *Store) List() []Metadata {
	snap := s.entries.Snapshot()
	out := make([]Metadata, 0, len(snap))
	for _, e := range snap {
		out = append(out, e.meta)
	}
	return out
}
