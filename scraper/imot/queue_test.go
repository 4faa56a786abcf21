package imot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imot-scraper/models"
)

func TestQueuePriorityOrder(t *testing.T) {
	q := newTaskQueue()
	q.Push(models.FetchTask{URL: "a", Priority: 0})
	q.Push(models.FetchTask{URL: "b", Priority: 10})
	q.Push(models.FetchTask{URL: "c", Priority: 0})

	ctx := context.Background()

	first, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "b", first.URL)

	// equal priorities keep insertion order
	second, _ := q.Pop(ctx)
	assert.Equal(t, "a", second.URL)
	third, _ := q.Pop(ctx)
	assert.Equal(t, "c", third.URL)
}

func TestQueueClosesWhenAllTasksDone(t *testing.T) {
	q := newTaskQueue()
	q.Push(models.FetchTask{URL: "a"})

	_, ok := q.Pop(context.Background())
	require.True(t, ok)
	q.Done()

	_, ok = q.Pop(context.Background())
	assert.False(t, ok)
}

func TestQueueRequeueKeepsTaskPending(t *testing.T) {
	q := newTaskQueue()
	q.Push(models.FetchTask{URL: "a", Priority: 0})

	task, ok := q.Pop(context.Background())
	require.True(t, ok)

	task.Attempt++
	task.Priority--
	q.Requeue(task)

	retried, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, retried.Attempt)

	q.Done()
	_, ok = q.Pop(context.Background())
	assert.False(t, ok)
}

func TestQueuePopHonoursCancellation(t *testing.T) {
	q := newTaskQueue()
	q.Push(models.FetchTask{URL: "a"})
	_, ok := q.Pop(context.Background())
	require.True(t, ok)
	// task a is still pending, so the queue stays open

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, popped := q.Pop(ctx)
		assert.False(t, popped)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after cancellation")
	}
}
