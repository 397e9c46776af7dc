// Package flowcore correlates a static application-structure graph with
// runtime execution traces into a single, continuously enriched graph:
// submit a build-time graph, submit runtime trace batches against it,
// and read back a merged graph, a zoom-filtered slice, or a Cypher
// export for an external analytics store.
//
// Construct a Core with New, submit graphs and traces with SubmitStatic
// and SubmitRuntime, and read results back with GetGraph, Slice,
// ExtractFlows, GetTrace, ExportCypher, and PushToAnalytics. Call Close
// when done.
package flowcore
