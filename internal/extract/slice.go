// Package extract implements the zoom-slicing and BFS flow-extraction
// half of C7.
package extract

import "github.com/flowcore/flowcore/internal/graph"

// Slice returns a new graph containing every node whose zoom level is
// at most requestedLevel+1 (the fixed inclusion rule per §4.7's Open
// Question resolution — the request's "0=highest" convention maps onto
// the node's 1-5 scale with a one-level offset), plus every edge whose
// both endpoints survive that filter. The input graph is never
// modified.
func Slice(g *graph.Graph, requestedLevel graph.ZoomLevel) *graph.Graph {
	threshold := requestedLevel + 1

	out := graph.New(g.Version)
	for _, n := range g.Nodes() {
		if n.ZoomLevel != graph.ZoomUnset && n.ZoomLevel <= threshold {
			out.AddNode(n.Clone())
		}
	}
	for _, e := range g.Edges() {
		if _, sourceOK := out.GetNode(e.SourceID); !sourceOK {
			continue
		}
		if _, targetOK := out.GetNode(e.TargetID); !targetOK {
			continue
		}
		_ = out.AddEdge(e.Clone())
	}
	return out
}
