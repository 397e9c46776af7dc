package export

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/internal/graph"
)

func TestSanitizeID_ReplacesIllegalChars(t *testing.T) {
	assert.Equal(t, "order_service_42", sanitizeID("order-service.42"))
	assert.Equal(t, "unknown", sanitizeID(""))
}

func TestEscape_SingleQuote(t *testing.T) {
	assert.Equal(t, `it\'s`, escape("it's"))
}

func TestBuildStatements_Order(t *testing.T) {
	g := graph.New("v1")
	g.AddNode(graph.Node{ID: "a", Name: "A", Type: graph.NodeService, Visibility: graph.VisibilityPublic, ZoomLevel: graph.ZoomService})
	g.AddNode(graph.Node{ID: "b", Name: "B", Type: graph.NodeService, Visibility: graph.VisibilityPublic, ZoomLevel: graph.ZoomService})
	require.NoError(t, g.AddEdge(graph.Edge{ID: "e1", SourceID: "a", TargetID: "b", Type: graph.EdgeCall, ExecutionCount: 3}))

	statements := BuildStatements("g1", g, time.Now())
	require.Len(t, statements, 4)
	assert.True(t, strings.HasPrefix(statements[0], "MERGE (g:FlowGraph"))
	assert.True(t, strings.HasPrefix(statements[1], "CREATE (n"))
	assert.True(t, strings.HasPrefix(statements[2], "CREATE (n"))
	assert.True(t, strings.HasPrefix(statements[3], "MATCH (s:FlowNode"))
}

func TestCypherExport_StructuralRoundTrip(t *testing.T) {
	g := graph.New("v1")
	g.AddNode(graph.Node{ID: "order-controller", Type: graph.NodeEndpoint, Visibility: graph.VisibilityPublic, ZoomLevel: graph.ZoomBusiness})
	g.AddNode(graph.Node{ID: "order-service", Type: graph.NodeService, Visibility: graph.VisibilityPublic, ZoomLevel: graph.ZoomService})
	require.NoError(t, g.AddEdge(graph.Edge{ID: "e1", SourceID: "order-controller", TargetID: "order-service", Type: graph.EdgeCall}))

	statements := BuildStatements("g1", g, time.Now())

	createdIDs := map[string]bool{}
	createRe := regexp.MustCompile(`id: '([^']*)'`)
	// nodeRefRe matches only the "id: '...', graphId: '...'" shape used
	// by a node-reference clause, not an edge's own id property.
	nodeRefRe := regexp.MustCompile(`id: '([^']*)', graphId:`)
	nodeCreates, edgeMatches := 0, 0

	for _, stmt := range statements {
		switch {
		case strings.HasPrefix(stmt, "CREATE (n"):
			nodeCreates++
			m := createRe.FindStringSubmatch(stmt)
			require.Len(t, m, 2)
			createdIDs[m[1]] = true
		case strings.HasPrefix(stmt, "MATCH"):
			edgeMatches++
			matches := nodeRefRe.FindAllStringSubmatch(stmt, -1)
			require.Len(t, matches, 2, "a MATCH statement references exactly source and target node ids")
			for _, m := range matches {
				assert.True(t, createdIDs[m[1]], "edge MATCH referenced id %q not seen in a preceding CREATE", m[1])
			}
		}
	}

	assert.Equal(t, g.NodeCount(), nodeCreates)
	assert.Equal(t, g.EdgeCount(), edgeMatches)
}
