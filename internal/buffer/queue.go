package buffer

import "sync"

// Queue is a thread-safe FIFO that doubles its ring when full, so Send never
// blocks. A closed queue still hands out the items it holds.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int // read position
	count  int
	closed bool

	// Stats
	sent     int64
	received int64
	resizes  int
}

// NewQueue creates a queue with the given initial capacity.
func NewQueue[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &Queue[T]{ring: make([]T, initialCapacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Send(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.count == len(q.ring) {
		q.grow()
	}

	q.ring[(q.head+q.count)%len(q.ring)] = item
	q.count++
	q.sent++

	q.cond.Signal()
	return true
}

// Receive blocks until an item is available or the queue is closed and empty.
func (q *Queue[T]) Receive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// TryReceive returns the next item without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// DrainTo removes up to max items (all of them if max <= 0).
func (q *Queue[T]) DrainTo(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = q.popLocked()
	}
	return out
}

// Close stops accepting new items and wakes blocked receivers.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Count:    q.count,
		Capacity: len(q.ring),
		Sent:     q.sent,
		Received: q.received,
		Resizes:  q.resizes,
	}
}

// Stats contains queue statistics.
type Stats struct {
	Count    int
	Capacity int
	Sent     int64
	Received int64
	Resizes  int
}

// popLocked removes the head item. Must be called with lock held and count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.ring[q.head]
	var zero T
	q.ring[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.received++
	return item
}

// grow doubles the ring, unwrapping it so head is at index 0.
func (q *Queue[T]) grow() {
	ring := make([]T, len(q.ring)*2)
	n := copy(ring, q.ring[q.head:])
	copy(ring[n:], q.ring[:q.head])

	q.ring = ring
	q.head = 0
	q.resizes++
}
