package merge

import (
	"fmt"

	"github.com/flowcore/flowcore/internal/graph"
	flowcoreerrors "github.com/flowcore/flowcore/pkg/flowcore/errors"
)

// Validate is a read-only pass checking the invariants in §3. In strict
// mode it additionally rejects self-loops and requires every node to
// have an assigned zoom level. Returns a MERGE_INVALID error on
// failure, nil otherwise.
func Validate(g *graph.Graph, strict bool) error {
	for _, e := range g.Edges() {
		if _, ok := g.GetNode(e.SourceID); !ok {
			return flowcoreerrors.MergeInvalid(fmt.Sprintf("edge %q references missing source %q", e.ID, e.SourceID))
		}
		if _, ok := g.GetNode(e.TargetID); !ok {
			return flowcoreerrors.MergeInvalid(fmt.Sprintf("edge %q references missing target %q", e.ID, e.TargetID))
		}
		if strict && e.SourceID == e.TargetID {
			return flowcoreerrors.MergeInvalid(fmt.Sprintf("edge %q is a self-loop, rejected under strict validation", e.ID))
		}
	}

	for _, n := range g.Nodes() {
		if !graph.ValidZoomLevel(n.ZoomLevel) {
			if strict {
				return flowcoreerrors.MergeInvalid(fmt.Sprintf("node %q has no assigned zoom level", n.ID))
			}
		}
	}

	return nil
}
