package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/internal/clock"
	"github.com/flowcore/flowcore/internal/graph"
	"github.com/flowcore/flowcore/internal/ingest"
	"github.com/flowcore/flowcore/internal/merge"
	"github.com/flowcore/flowcore/internal/store"
	"github.com/flowcore/flowcore/internal/trace"
)

type fakeGraphLoader struct{}

func (fakeGraphLoader) Load(payload []byte) (*graph.Graph, error) {
	var spec struct {
		Version string   `json:"version"`
		Nodes   []string `json:"nodes"`
	}
	if err := json.Unmarshal(payload, &spec); err != nil {
		return nil, err
	}
	g := graph.New(spec.Version)
	for _, id := range spec.Nodes {
		g.AddNode(graph.Node{ID: id, Type: graph.NodeService, Visibility: graph.VisibilityPublic})
	}
	return g, nil
}

type fakeEventDecoder struct{}

func (fakeEventDecoder) Decode(payload []byte) ([]trace.Event, error) {
	var raw []struct {
		EventID string `json:"event_id"`
		NodeID  string `json:"node_id"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	out := make([]trace.Event, 0, len(raw))
	for _, r := range raw {
		out = append(out, trace.Event{
			EventID:   r.EventID,
			NodeID:    r.NodeID,
			Type:      trace.EventType(r.Type),
			Timestamp: time.Unix(1, 0),
		})
	}
	return out, nil
}

func newTestPool(t *testing.T) (*Pool, *store.Store, *trace.Buffer, *ingest.Queue) {
	t.Helper()
	clk := clock.Real{}
	s := store.New(clk)
	b := trace.New(clk, trace.DefaultConfig())
	eng := merge.New(s, clk, merge.DefaultConfig())
	q := ingest.New(16)

	p := New(q, s, b, eng, fakeGraphLoader{}, fakeEventDecoder{}, nil, nil, nil, nil, Config{
		WorkerCount:   2,
		PollTimeout:   20 * time.Millisecond,
		ShutdownGrace: time.Second,
	})
	return p, s, b, q
}

func TestPool_StaticGraphWorkPutsIntoStore(t *testing.T) {
	p, s, _, q := newTestPool(t)
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop()

	payload := []byte(`{"version":"v1","nodes":["a","b"]}`)
	require.True(t, q.Enqueue(ctx, ingest.StaticGraphWork{GraphID: "g1", Payload: payload}, time.Second))

	require.Eventually(t, func() bool {
		_, ok := s.Get("g1")
		return ok
	}, time.Second, 5*time.Millisecond)

	g, _ := s.Get("g1")
	assert.Equal(t, 2, g.NodeCount())
}

func TestPool_RuntimeEventWorkMergesOnComplete(t *testing.T) {
	p, s, b, q := newTestPool(t)
	ctx := context.Background()

	g := graph.New("v1")
	g.AddNode(graph.Node{ID: "n1", Type: graph.NodeMethod, Visibility: graph.VisibilityPublic})
	s.PutStatic("g1", g)

	p.Start(ctx)
	defer p.Stop()

	payload := []byte(`[{"event_id":"e1","node_id":"n1","type":"METHOD_ENTER"}]`)
	require.True(t, q.Enqueue(ctx, ingest.RuntimeEventWork{
		TraceID: "t1", GraphID: "g1", Payload: payload, TraceComplete: true,
	}, time.Second))

	require.Eventually(t, func() bool {
		tr, ok := b.Get("t1")
		return ok && tr.Merged
	}, time.Second, 5*time.Millisecond)
}
