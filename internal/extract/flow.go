package extract

import (
	"sort"

	"github.com/flowcore/flowcore/internal/graph"
)

// FlowStep is one node's position in a BFS-ordered flow.
type FlowStep struct {
	NodeID        string
	Name          string
	ZoomLevel     graph.ZoomLevel
	Depth         int
	ParentNodeIDs []string
}

// Flow is the full BFS walk starting from one ENDPOINT or TOPIC node.
type Flow struct {
	StartNodeID string
	Steps       []FlowStep
}

// ExtractFlows performs BFS from every ENDPOINT or TOPIC node, in
// node-id order for determinism, and returns one Flow per start node.
func ExtractFlows(g *graph.Graph) []Flow {
	var starts []string
	for _, n := range g.Nodes() {
		if n.Type == graph.NodeEndpoint || n.Type == graph.NodeTopic {
			starts = append(starts, n.ID)
		}
	}
	sort.Strings(starts)

	flows := make([]Flow, 0, len(starts))
	for _, start := range starts {
		flows = append(flows, ExtractFlow(g, start))
	}
	return flows
}

// ExtractFlow performs a single BFS from startNodeID. A node is visited
// at most once; cycles terminate the walk along that path. Edge
// iteration for each node follows the graph's insertion order, making
// the result deterministic for a fixed graph.
func ExtractFlow(g *graph.Graph, startNodeID string) Flow {
	if _, ok := g.GetNode(startNodeID); !ok {
		return Flow{StartNodeID: startNodeID}
	}

	depth := map[string]int{startNodeID: 0}
	parents := map[string][]string{}
	order := []string{startNodeID}
	queue := []string{startNodeID}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, eid := range g.Outgoing(node) {
			e, ok := g.GetEdge(eid)
			if !ok {
				continue
			}
			target := e.TargetID
			if d, visited := depth[target]; visited {
				if d == depth[node]+1 {
					parents[target] = append(parents[target], node)
				}
				continue
			}
			depth[target] = depth[node] + 1
			parents[target] = []string{node}
			order = append(order, target)
			queue = append(queue, target)
		}
	}

	steps := make([]FlowStep, 0, len(order))
	for _, id := range order {
		n, _ := g.GetNode(id)
		steps = append(steps, FlowStep{
			NodeID:        id,
			Name:          n.Name,
			ZoomLevel:     n.ZoomLevel,
			Depth:         depth[id],
			ParentNodeIDs: append([]string(nil), parents[id]...),
		})
	}
	return Flow{StartNodeID: startNodeID, Steps: steps}
}
