// Package export implements the Cypher-serialization half of C7: a
// statement builder matching the shape an external graph analytics
// store expects, plus the AnalyticsSink interface through which those
// statements are pushed.
package export

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flowcore/flowcore/internal/graph"
)

var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// sanitizeID turns an arbitrary node-id into a safe Cypher identifier
// fragment by replacing every character outside [A-Za-z0-9_] with an
// underscore. An empty id becomes "unknown".
func sanitizeID(id string) string {
	if id == "" {
		return "unknown"
	}
	return idSanitizer.ReplaceAllString(id, "_")
}

// escape escapes single quotes for a Cypher string literal.
func escape(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

// formatValue renders v as a Cypher property value: strings are
// single-quoted, numeric types are unquoted, everything else is coerced
// to its default string form and quoted.
func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + escape(t) + "'"
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", t)
	case float32, float64:
		return fmt.Sprintf("%v", t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return "'" + escape(fmt.Sprintf("%v", t)) + "'"
	}
}

// properties renders a sorted "{ k: v, ... }" clause, with keys in a
// deterministic order so output is stable across runs.
func properties(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, m[k]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// BuildStatements renders the full export for g, in the fixed order
// from §4.7: one graph-metadata MERGE, then one CREATE per node, then
// one MATCH+CREATE per edge. graphID is the external identifier
// (distinct from g.Version) attached to every statement; updatedAt is
// the graph-store metadata's last-updated-at, attached to the MERGE.
func BuildStatements(graphID string, g *graph.Graph, updatedAt time.Time) []string {
	var out []string
	out = append(out, graphStatement(graphID, g, updatedAt))
	for _, n := range g.Nodes() {
		out = append(out, nodeStatement(graphID, n))
	}
	for _, e := range g.Edges() {
		out = append(out, edgeStatement(graphID, e))
	}
	return out
}

func graphStatement(graphID string, g *graph.Graph, updatedAt time.Time) string {
	props := properties(map[string]string{
		"graphId":   formatValue(graphID),
		"version":   formatValue(g.Version),
		"nodeCount": formatValue(g.NodeCount()),
		"edgeCount": formatValue(g.EdgeCount()),
		"updatedAt": formatValue(updatedAt.Format(time.RFC3339Nano)),
	})
	return fmt.Sprintf("MERGE (g:FlowGraph %s)", props)
}

func nodeStatement(graphID string, n graph.Node) string {
	fields := map[string]string{
		"id":         formatValue(n.ID),
		"graphId":    formatValue(graphID),
		"name":       formatValue(n.Name),
		"type":       formatValue(string(n.Type)),
		"serviceId":  formatValue(n.ServiceID),
		"visibility": formatValue(string(n.Visibility)),
		"zoomLevel":  formatValue(int(n.ZoomLevel)),
	}
	for k, v := range n.Metadata {
		fields["meta_"+k] = formatValue(v)
	}
	return fmt.Sprintf("CREATE (n%s:FlowNode %s)", sanitizeID(n.ID), properties(fields))
}

func edgeStatement(graphID string, e graph.Edge) string {
	matchSource := fmt.Sprintf("(s:FlowNode { id: %s, graphId: %s })", formatValue(e.SourceID), formatValue(graphID))
	matchTarget := fmt.Sprintf("(t:FlowNode { id: %s, graphId: %s })", formatValue(e.TargetID), formatValue(graphID))
	props := properties(map[string]string{
		"id":             formatValue(e.ID),
		"executionCount": formatValue(e.ExecutionCount),
	})
	return fmt.Sprintf("MATCH %s, %s CREATE (s)-[e:%s %s]->(t)", matchSource, matchTarget, e.Type, props)
}
