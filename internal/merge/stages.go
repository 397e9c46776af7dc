package merge

import (
	"fmt"
	"time"

	"github.com/flowcore/flowcore/internal/graph"
	"github.com/flowcore/flowcore/internal/trace"
)

// isTransferEvent reports whether t is one of the event kinds whose
// adjacency in submission order represents a control transfer worth
// recording as a graph edge (a nested call, or a sequential checkpoint
// step), per §4.6 stage 2.
func isTransferEvent(t trace.EventType) bool {
	return t == trace.EventMethodEnter || t == trace.EventCheckpoint
}

// runtimeNodeStage adds a synthetic METHOD node for every event whose
// node-id is not already present in g. Existing nodes are never
// overwritten.
func runtimeNodeStage(g *graph.Graph, events []trace.Event) {
	for _, e := range events {
		if e.NodeID == "" {
			continue
		}
		if _, ok := g.GetNode(e.NodeID); ok {
			continue
		}
		g.AddNode(graph.Node{
			ID:         e.NodeID,
			Name:       e.NodeID,
			Type:       graph.NodeMethod,
			Visibility: graph.VisibilityPublic,
			ZoomLevel:  graph.ZoomRuntime,
			Metadata:   map[string]any{},
		})
	}
}

// runtimeEdgeStage adds a RUNTIME_CALL edge for every ordered pair of
// adjacent transfer events whose node-ids differ, when no edge of any
// type already connects them, and increments execution-count for every
// such ordered pair regardless of whether the edge already existed.
func runtimeEdgeStage(g *graph.Graph, events []trace.Event) {
	var prev *trace.Event
	for i := range events {
		e := &events[i]
		if !isTransferEvent(e.Type) {
			prev = nil
			continue
		}
		if prev != nil && prev.NodeID != "" && e.NodeID != "" && prev.NodeID != e.NodeID {
			applyRuntimeEdge(g, prev.NodeID, e.NodeID)
		}
		prev = e
	}
}

func applyRuntimeEdge(g *graph.Graph, from, to string) {
	if !g.HasEdgeBetween(from, to) {
		_ = g.AddEdge(graph.Edge{
			ID:       fmt.Sprintf("runtime:%s->%s", from, to),
			SourceID: from,
			TargetID: to,
			Type:     graph.EdgeRuntimeCall,
		})
	}
	incrementEdgeCount(g, from, to)
}

func incrementEdgeCount(g *graph.Graph, from, to string) {
	for _, eid := range g.Outgoing(from) {
		e, ok := g.GetEdge(eid)
		if !ok || e.TargetID != to {
			continue
		}
		e.ExecutionCount++
		g.ReplaceEdge(e)
		return
	}
}

// durationStage matches every METHOD_EXIT with its same-span-id
// METHOD_ENTER (requiring enter.timestamp <= exit.timestamp) and folds
// the observed duration into the target node's running average.
func durationStage(g *graph.Graph, events []trace.Event) {
	enters := make(map[string]trace.Event)
	for _, e := range events {
		if e.Type == trace.EventMethodEnter && e.SpanID != "" {
			enters[e.SpanID] = e
		}
	}
	for _, e := range events {
		if e.Type != trace.EventMethodExit || e.SpanID == "" {
			continue
		}
		enter, ok := enters[e.SpanID]
		if !ok || enter.Timestamp.After(e.Timestamp) {
			continue
		}
		duration := e.Timestamp.Sub(enter.Timestamp)
		applyDuration(g, e.NodeID, duration)
	}
}

func applyDuration(g *graph.Graph, nodeID string, duration time.Duration) {
	n, ok := g.GetNode(nodeID)
	if !ok {
		return
	}
	n = n.Clone()
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	count, _ := n.Metadata["executionCount"].(int)
	prevAvg, _ := n.Metadata["duration"].(time.Duration)
	count++
	n.Metadata["executionCount"] = count
	n.Metadata["duration"] = prevAvg + (duration-prevAvg)/time.Duration(count)
	g.AddNode(n)
}

// checkpointStage appends each CHECKPOINT event's (name, timestamp,
// data) to its target node's ordered checkpoints list.
func checkpointStage(g *graph.Graph, checkpoints []trace.Checkpoint) {
	for _, cp := range checkpoints {
		n, ok := g.GetNode(cp.NodeID)
		if !ok {
			continue
		}
		n = n.Clone()
		if n.Metadata == nil {
			n.Metadata = map[string]any{}
		}
		list, _ := n.Metadata["checkpoints"].([]trace.Checkpoint)
		list = append(list, cp)
		n.Metadata["checkpoints"] = list
		g.AddNode(n)
	}
}

// asyncHopStage records each produce/consume pairing as an attribute on
// the producing PRODUCES edge (if one exists) and emits a derived
// FLOWS_TO edge between producer and consumer node-ids if none exists.
func asyncHopStage(g *graph.Graph, hops []trace.AsyncHop) {
	for _, hop := range hops {
		annotateProducingEdge(g, hop)
		if hop.ProducerNode == "" || hop.ConsumerNode == "" || hop.ProducerNode == hop.ConsumerNode {
			continue
		}
		if !g.HasEdgeBetween(hop.ProducerNode, hop.ConsumerNode) {
			_ = g.AddEdge(graph.Edge{
				ID:       fmt.Sprintf("flow:%s->%s", hop.ProducerNode, hop.ConsumerNode),
				SourceID: hop.ProducerNode,
				TargetID: hop.ConsumerNode,
				Type:     graph.EdgeFlowsTo,
			})
		}
	}
}

func annotateProducingEdge(g *graph.Graph, hop trace.AsyncHop) {
	for _, eid := range g.Outgoing(hop.ProducerNode) {
		e, ok := g.GetEdge(eid)
		if !ok || e.Type != graph.EdgeProduces {
			continue
		}
		e = e.Clone()
		if e.Attributes == nil {
			e.Attributes = map[string]any{}
		}
		hops, _ := e.Attributes["asyncHops"].([]trace.AsyncHop)
		hops = append(hops, hop)
		e.Attributes["asyncHops"] = hops
		g.ReplaceEdge(e)
		return
	}
}

// errorStage increments the target node's error count and records the
// most recently observed error's message and class, in submission
// order.
func errorStage(g *graph.Graph, errs []trace.ErrorRecord) {
	for _, rec := range errs {
		n, ok := g.GetNode(rec.NodeID)
		if !ok {
			continue
		}
		n = n.Clone()
		if n.Metadata == nil {
			n.Metadata = map[string]any{}
		}
		count, _ := n.Metadata["errorCount"].(int)
		n.Metadata["errorCount"] = count + 1
		n.Metadata["lastError"] = map[string]string{
			"message": rec.Message,
			"class":   rec.Class,
		}
		g.AddNode(n)
	}
}

// zoomLevelPolicy assigns a zoom level to every node whose level is
// still unset, per §4.6's policy table. Nodes added by the Runtime-Node
// stage are excluded since they are stamped with ZoomRuntime at
// creation time.
func zoomLevelPolicy(g *graph.Graph) {
	for _, n := range g.Nodes() {
		if n.ZoomLevel != graph.ZoomUnset {
			continue
		}
		n = n.Clone()
		n.ZoomLevel = zoomLevelFor(n)
		g.AddNode(n)
	}
}

func zoomLevelFor(n graph.Node) graph.ZoomLevel {
	switch n.Type {
	case graph.NodeEndpoint, graph.NodeTopic:
		return graph.ZoomBusiness
	case graph.NodeService, graph.NodeClass:
		return graph.ZoomService
	case graph.NodePrivateMethod:
		return graph.ZoomPrivate
	case graph.NodeMethod:
		if n.Visibility == graph.VisibilityPublic {
			return graph.ZoomPublic
		}
		return graph.ZoomPrivate
	default:
		return graph.ZoomService
	}
}
