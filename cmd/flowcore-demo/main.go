// Command flowcore-demo submits a small order-flow static graph and a
// runtime trace against it, then prints the merged graph's Cypher
// export — the same round trip scenario 1 exercises.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/flowcore/flowcore/pkg/flowcore"
)

type nodeDTO struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

type edgeDTO struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

type graphDTO struct {
	Version string    `json:"version"`
	GraphID string    `json:"graph-id"`
	Nodes   []nodeDTO `json:"nodes"`
	Edges   []edgeDTO `json:"edges"`
}

type eventDTO struct {
	EventID   string `json:"event-id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	NodeID    string `json:"node-id"`
	SpanID    string `json:"span-id"`
}

type eventBatchDTO struct {
	GraphID       string     `json:"graph-id"`
	TraceID       string     `json:"trace-id"`
	Events        []eventDTO `json:"events"`
	TraceComplete bool       `json:"trace-complete"`
}

func main() {
	core := flowcore.New()
	defer core.Close()

	ctx := context.Background()

	graphPayload, err := json.Marshal(graphDTO{
		Version: "1",
		GraphID: "order-flow",
		Nodes: []nodeDTO{
			{ID: "order-controller", Type: "ENDPOINT", Name: "OrderController"},
			{ID: "order-service", Type: "SERVICE", Name: "OrderService"},
			{ID: "inventory-service", Type: "SERVICE", Name: "InventoryService"},
			{ID: "payment-service", Type: "SERVICE", Name: "PaymentService"},
			{ID: "notification-service", Type: "SERVICE", Name: "NotificationService"},
			{ID: "order-events-topic", Type: "TOPIC", Name: "OrderEvents"},
		},
		Edges: []edgeDTO{
			{ID: "e1", From: "order-controller", To: "order-service", Type: "CALL"},
			{ID: "e2", From: "order-service", To: "inventory-service", Type: "CALL"},
			{ID: "e3", From: "order-service", To: "payment-service", Type: "CALL"},
			{ID: "e4", From: "order-service", To: "notification-service", Type: "CALL"},
			{ID: "e5", From: "order-service", To: "order-events-topic", Type: "PRODUCES"},
		},
	})
	if err != nil {
		log.Fatalf("marshal graph payload: %v", err)
	}

	if err := core.SubmitStatic(ctx, "order-flow", graphPayload); err != nil {
		log.Fatalf("submit static graph: %v", err)
	}

	// The worker pool decodes asynchronously; wait for it to land before
	// submitting the trace that references it.
	for i := 0; i < 50; i++ {
		if _, err := core.GetGraph("order-flow"); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	now := time.Now()
	eventBatch, err := json.Marshal(eventBatchDTO{
		GraphID: "order-flow",
		TraceID: "demo-trace-1",
		Events: []eventDTO{
			{EventID: "e1-enter", Type: "METHOD_ENTER", NodeID: "order-service", SpanID: "s1", Timestamp: now.Format(time.RFC3339Nano)},
			{EventID: "e1-exit", Type: "METHOD_EXIT", NodeID: "order-service", SpanID: "s1", Timestamp: now.Add(10 * time.Millisecond).Format(time.RFC3339Nano)},
			{EventID: "e2-enter", Type: "METHOD_ENTER", NodeID: "inventory-service", SpanID: "s2", Timestamp: now.Add(11 * time.Millisecond).Format(time.RFC3339Nano)},
			{EventID: "e2-exit", Type: "METHOD_EXIT", NodeID: "inventory-service", SpanID: "s2", Timestamp: now.Add(41 * time.Millisecond).Format(time.RFC3339Nano)},
		},
		TraceComplete: true,
	})
	if err != nil {
		log.Fatalf("marshal event batch: %v", err)
	}

	if err := core.SubmitRuntime(ctx, "demo-trace-1", "order-flow", eventBatch, true); err != nil {
		log.Fatalf("submit runtime trace: %v", err)
	}

	var merged bool
	for i := 0; i < 50; i++ {
		if tr, err := core.GetTrace("demo-trace-1"); err == nil && tr.Merged {
			merged = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !merged {
		log.Fatal("trace did not merge within the demo's wait window")
	}

	statements, err := core.ExportCypher("order-flow")
	if err != nil {
		log.Fatalf("export cypher: %v", err)
	}
	for _, stmt := range statements {
		fmt.Println(stmt)
	}
}
