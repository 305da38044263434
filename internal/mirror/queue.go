package mirror

import (
	"context"
	"sync"
)

type Queue interface {
	TryEnqueue(task Task) bool
	Enqueue(ctx context.Context, task Task) bool
	Dequeue(ctx context.Context) (Task, bool)
	Depth() int
	Capacity() int
	Close() error
}

type inMemoryQueue struct {
	ch    chan Task
	items map[string]Task
	mu    sync.Mutex
}

func NewInMemoryQueue(capacity int) Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &inMemoryQueue{
		ch:    make(chan Task, capacity),
		items: make(map[string]Task),
	}
}

func (q *inMemoryQueue) TryEnqueue(task Task) bool {
	if q == nil || task.ID == "" {
		return false
	}
	q.track(task)
	select {
	case q.ch <- task:
		return true
	default:
		q.untrack(task.ID)
		return false
	}
}

func (q *inMemoryQueue) Enqueue(ctx context.Context, task Task) bool {
	if q == nil || task.ID == "" {
		return false
	}
	q.track(task)
	select {
	case q.ch <- task:
		return true
	case <-ctx.Done():
		q.untrack(task.ID)
		return false
	}
}

func (q *inMemoryQueue) Dequeue(ctx context.Context) (Task, bool) {
	if q == nil {
		return Task{}, false
	}
	select {
	case task := <-q.ch:
		q.untrack(task.ID)
		return task, true
	case <-ctx.Done():
		return Task{}, false
	}
}

// track records task before it is sent so a worker receiving it at once
// always finds the entry to remove.
func (q *inMemoryQueue) track(task Task) {
	q.mu.Lock()
	q.items[task.ID] = task
	q.mu.Unlock()
}

func (q *inMemoryQueue) untrack(id string) {
	q.mu.Lock()
	delete(q.items, id)
	q.mu.Unlock()
}

// Snapshot lists queued tasks in no particular order.
func (q *inMemoryQueue) Snapshot() []Task {
	if q == nil {
		return []Task{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]Task, 0, len(q.items))
	for _, item := range q.items {
		result = append(result, item)
	}
	return result
}

func (q *inMemoryQueue) Depth() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}

func (q *inMemoryQueue) Capacity() int {
	if q == nil {
		return 0
	}
	return cap(q.ch)
}

func (q *inMemoryQueue) Close() error {
	return nil
}
