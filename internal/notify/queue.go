package notify

import (
	"sync"
	"sync/atomic"

	"broker/internal/og"
)

// Queue is an unbounded FIFO of order snapshots polled by a single consumer.
type Queue struct {
	mu      sync.Mutex
	items   []og.Order
	head    int
	closed  atomic.Bool
	dropped atomic.Uint64
}

// NewQueue allocates a queue with the given initial capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{items: make([]og.Order, 0, capacity)}
}

// Push appends an order without blocking. Pushes after Close are dropped.
func (q *Queue) Push(o og.Order) bool {
	if q.closed.Load() {
		q.dropped.Add(1)
		return false
	}
	q.mu.Lock()
	q.items = append(q.items, o)
	q.mu.Unlock()
	return true
}

// Pop removes the oldest order. It reports false when the queue is empty.
func (q *Queue) Pop() (og.Order, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return og.Order{}, false
	}
	o := q.items[q.head]
	q.items[q.head] = og.Order{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return o, true
}

// Len returns the number of pending orders.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close stops the queue from accepting new orders. Pending orders stay poppable.
func (q *Queue) Close() {
	q.closed.Store(true)
}

// Dropped returns the number of pushes rejected after Close.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
