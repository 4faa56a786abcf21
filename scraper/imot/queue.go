package imot

import (
	"container/heap"
	"context"
	"sync"

	"imot-scraper/models"
)

// taskQueue is a priority queue of fetch tasks shared by the pagination
// producer and the fetch workers. Higher Priority pops first; equal
// priorities pop in insertion order, so demoted retries never starve
// fresh work.
//
// The queue also tracks the number of pending tasks: Push admits a new
// task, Requeue re-admits a retry without changing the count, and Done
// retires one. When the count reaches zero the queue closes and every
// blocked Pop returns — that is the run's completion join.
type taskQueue struct {
	mu      sync.Mutex
	items   taskHeap
	seq     int
	pending int
	notify  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push admits a new task and raises the pending count.
func (q *taskQueue) Push(t models.FetchTask) {
	q.mu.Lock()
	q.pending++
	q.seq++
	heap.Push(&q.items, queuedTask{task: t, seq: q.seq})
	q.mu.Unlock()
	q.signal()
}

// Requeue re-admits a retried task; it is still the same pending unit.
func (q *taskQueue) Requeue(t models.FetchTask) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, queuedTask{task: t, seq: q.seq})
	q.mu.Unlock()
	q.signal()
}

// Done retires one pending task. The final Done closes the queue.
func (q *taskQueue) Done() {
	q.mu.Lock()
	q.pending--
	last := q.pending == 0
	q.mu.Unlock()
	if last {
		q.Close()
	}
}

func (q *taskQueue) Close() {
	q.once.Do(func() { close(q.done) })
}

func (q *taskQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until a task is available. It returns false once the queue is
// closed or ctx is done; a cancelled run stops admitting tasks here.
func (q *taskQueue) Pop(ctx context.Context) (models.FetchTask, bool) {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			item := heap.Pop(&q.items).(queuedTask)
			remaining := q.items.Len()
			q.mu.Unlock()
			if remaining > 0 {
				q.signal()
			}
			return item.task, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.FetchTask{}, false
		case <-q.done:
			return models.FetchTask{}, false
		case <-q.notify:
		}
	}
}

type queuedTask struct {
	task models.FetchTask
	seq  int
}

type taskHeap []queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(queuedTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
