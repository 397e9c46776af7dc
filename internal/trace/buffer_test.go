package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/internal/clock"
)

func TestAppend_DedupDropsRepeatedEventID(t *testing.T) {
	b := New(clock.Real{}, DefaultConfig())
	e := Event{EventID: "e1", Type: EventMethodEnter, NodeID: "n1", Timestamp: time.Unix(1, 0)}

	dropped1, new1 := b.Append("t1", "g1", []Event{e})
	dropped2, new2 := b.Append("t1", "g1", []Event{e})

	assert.Empty(t, dropped1)
	assert.Equal(t, []string{"e1"}, dropped2)
	assert.True(t, new1)
	assert.False(t, new2)

	tr, ok := b.Get("t1")
	require.True(t, ok)
	assert.Len(t, tr.Events, 1)
	assert.Equal(t, int64(1), b.DeduplicatedEvents())
}

func TestAppend_WithoutEventIDDedupsOnSpanTypeTimestamp(t *testing.T) {
	b := New(clock.Real{}, DefaultConfig())
	ts := time.Unix(5, 0)
	e1 := Event{SpanID: "s1", Type: EventMethodEnter, Timestamp: ts}
	e2 := Event{SpanID: "s1", Type: EventMethodEnter, Timestamp: ts}

	b.Append("t1", "g1", []Event{e1})
	b.Append("t1", "g1", []Event{e2})

	tr, _ := b.Get("t1")
	assert.Len(t, tr.Events, 1)
}

func TestAppend_ChecksAndErrorProjections(t *testing.T) {
	b := New(clock.Real{}, DefaultConfig())
	b.Append("t1", "g1", []Event{
		{EventID: "c1", Type: EventCheckpoint, NodeID: "n1", Timestamp: time.Unix(1, 0), Attributes: map[string]any{"name": "phase1"}},
		{EventID: "e1", Type: EventError, NodeID: "n1", Timestamp: time.Unix(2, 0), Attributes: map[string]any{"error-type": "TimeoutError", "error-message": "boom"}},
	})

	tr, _ := b.Get("t1")
	require.Len(t, tr.Checkpoints, 1)
	assert.Equal(t, "phase1", tr.Checkpoints[0].Name)
	require.Len(t, tr.Errors, 1)
	assert.Equal(t, "TimeoutError", tr.Errors[0].Class)
	assert.Equal(t, "boom", tr.Errors[0].Message)
	assert.True(t, tr.HasErrors())
}

func TestAppend_AsyncHopPairsProduceAndConsume(t *testing.T) {
	b := New(clock.Real{}, DefaultConfig())
	b.Append("t1", "g1", []Event{
		{EventID: "p1", Type: EventProduceTopic, NodeID: "producer", Timestamp: time.Unix(1, 0), Attributes: map[string]any{"correlation-id": "cid-1"}},
		{EventID: "c1", Type: EventConsumeTopic, NodeID: "consumer", Timestamp: time.Unix(2, 0), Attributes: map[string]any{"correlation-id": "cid-1"}},
	})

	tr, _ := b.Get("t1")
	require.Len(t, tr.AsyncHops, 1)
	hop := tr.AsyncHops[0]
	assert.Equal(t, "producer", hop.ProducerNode)
	assert.Equal(t, "consumer", hop.ConsumerNode)
}

func TestMarkComplete_IsIdempotentAndStampsTime(t *testing.T) {
	mock := clock.NewMock(time.Unix(100, 0))
	b := New(mock, DefaultConfig())
	b.Append("t1", "g1", []Event{{EventID: "e1", Type: EventMethodEnter, Timestamp: time.Unix(1, 0)}})

	mock.Advance(10 * time.Second)
	b.MarkComplete("t1")
	first, _ := b.Get("t1")
	require.True(t, first.Complete)

	mock.Advance(10 * time.Second)
	b.MarkComplete("t1")
	second, _ := b.Get("t1")
	assert.Equal(t, first.CompletedAt, second.CompletedAt)
}

func TestPendingForGraph_OnlyCompleteUnmerged(t *testing.T) {
	b := New(clock.Real{}, DefaultConfig())
	b.Append("t1", "g1", []Event{{EventID: "e1", Type: EventMethodEnter, Timestamp: time.Unix(1, 0)}})
	b.Append("t2", "g1", []Event{{EventID: "e2", Type: EventMethodEnter, Timestamp: time.Unix(1, 0)}})
	b.MarkComplete("t1")
	b.MarkComplete("t2")
	b.MarkMerged("t2")

	pending := b.PendingForGraph("g1")
	require.Len(t, pending, 1)
	assert.Equal(t, "t1", pending[0].TraceID)
}

func TestDeleteForGraph_RemovesAllAndIndex(t *testing.T) {
	b := New(clock.Real{}, DefaultConfig())
	b.Append("t1", "g1", []Event{{EventID: "e1", Type: EventMethodEnter, Timestamp: time.Unix(1, 0)}})
	b.Append("t2", "g1", []Event{{EventID: "e2", Type: EventMethodEnter, Timestamp: time.Unix(1, 0)}})

	n := b.DeleteForGraph("g1")
	assert.Equal(t, 2, n)
	assert.Empty(t, b.PendingForGraph("g1"))
	_, ok := b.Get("t1")
	assert.False(t, ok)
}

func TestEvictExpired_RemovesOnlyMergedPastTTL(t *testing.T) {
	mock := clock.NewMock(time.Unix(1000, 0))
	cfg := DefaultConfig()
	cfg.TTL = 1 * time.Minute
	b := New(mock, cfg)

	b.Append("merged-old", "g1", []Event{{EventID: "e1", Type: EventMethodEnter, Timestamp: time.Unix(1, 0)}})
	b.MarkComplete("merged-old")
	b.MarkMerged("merged-old")

	b.Append("unmerged", "g1", []Event{{EventID: "e2", Type: EventMethodEnter, Timestamp: time.Unix(1, 0)}})

	mock.Advance(2 * time.Minute)

	removed := b.EvictExpired()
	assert.Equal(t, 1, removed)

	_, ok := b.Get("merged-old")
	assert.False(t, ok)
	_, ok = b.Get("unmerged")
	assert.True(t, ok, "unmerged trace survives TTL eviction, bounded only by the hard cap")
}

func TestGet_SnapshotIsIndependentOfFurtherAppends(t *testing.T) {
	b := New(clock.Real{}, DefaultConfig())
	b.Append("t1", "g1", []Event{{EventID: "e1", Type: EventMethodEnter, Timestamp: time.Unix(1, 0)}})

	snap, _ := b.Get("t1")
	b.Append("t1", "g1", []Event{{EventID: "e2", Type: EventMethodExit, Timestamp: time.Unix(2, 0)}})

	assert.Len(t, snap.Events, 1)
	live, _ := b.Get("t1")
	assert.Len(t, live.Events, 2)
}
