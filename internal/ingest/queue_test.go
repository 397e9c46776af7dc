package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeue_FIFO(t *testing.T) {
	q := New(4)
	ctx := context.Background()

	require.True(t, q.Enqueue(ctx, StaticGraphWork{GraphID: "g1"}, time.Second))
	require.True(t, q.Enqueue(ctx, StaticGraphWork{GraphID: "g2"}, time.Second))

	item1, ok := q.Dequeue(ctx, time.Second)
	require.True(t, ok)
	assert.Equal(t, "g1", item1.(StaticGraphWork).GraphID)

	item2, ok := q.Dequeue(ctx, time.Second)
	require.True(t, ok)
	assert.Equal(t, "g2", item2.(StaticGraphWork).GraphID)
}

func TestEnqueue_ZeroTimeoutOnFullQueueFailsImmediately(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	require.True(t, q.Enqueue(ctx, StaticGraphWork{GraphID: "g1"}, 0))

	start := time.Now()
	ok := q.Enqueue(ctx, StaticGraphWork{GraphID: "g2"}, 0)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, 50*time.Millisecond)
}

func TestDequeue_EmptyQueueTimesOut(t *testing.T) {
	q := New(4)
	ctx := context.Background()

	start := time.Now()
	_, ok := q.Dequeue(ctx, 20*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
}

func TestEnqueue_SucceedsOnceWorkerDequeues(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	require.True(t, q.Enqueue(ctx, StaticGraphWork{GraphID: "g1"}, 0))

	done := make(chan bool, 1)
	go func() {
		done <- q.Enqueue(ctx, StaticGraphWork{GraphID: "g2"}, time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	_, ok := q.Dequeue(ctx, time.Second)
	require.True(t, ok)

	select {
	case result := <-done:
		assert.True(t, result)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock after dequeue freed capacity")
	}
}

func TestUtilizationPercent(t *testing.T) {
	q := New(4)
	ctx := context.Background()
	assert.Equal(t, 0, q.UtilizationPercent())

	q.Enqueue(ctx, StaticGraphWork{}, 0)
	q.Enqueue(ctx, StaticGraphWork{}, 0)
	assert.Equal(t, 50, q.UtilizationPercent())
}

func TestClear_DrainsAndReportsCount(t *testing.T) {
	q := New(4)
	ctx := context.Background()
	q.Enqueue(ctx, StaticGraphWork{}, 0)
	q.Enqueue(ctx, StaticGraphWork{}, 0)

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Size())
}
