// Package queue provides a fixed-capacity blocking FIFO used to hand records
// from producers to the consumer that owns a shard.
//
// A single mutex guards the contents; two condition variables ("not full"
// and "not empty") park callers of Put and Get without busy-waiting.
package queue

import (
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/wordindex/pkg/errors"
)

// Bounded is a blocking FIFO holding at most Cap() values of T.
type Bounded[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	buf      []T
	head     int
	size     int
}

// New creates an empty queue with the given capacity.
func New[T any](capacity int) (*Bounded[T], error) {
	if capacity < 1 {
		return nil, apperrors.Configf("queue capacity must be >= 1, got %d", capacity)
	}
	q := &Bounded[T]{buf: make([]T, capacity)}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q, nil
}

// Put appends v, blocking while the queue is full.
func (q *Bounded[T]) Put(v T) {
	q.mu.Lock()
	for q.size == len(q.buf) {
		q.notFull.Wait()
	}
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
	q.notEmpty.Signal()
	q.mu.Unlock()
}

// Get removes and returns the oldest value, blocking while the queue is empty.
func (q *Bounded[T]) Get() T {
	q.mu.Lock()
	for q.size == 0 {
		q.notEmpty.Wait()
	}
	v := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	q.notFull.Signal()
	q.mu.Unlock()
	return v
}

// IsEmpty reports whether the queue held no values at the instant of the
// call. The answer may be stale by the time the caller acts on it.
func (q *Bounded[T]) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size == 0
}

// Len returns a snapshot of the number of queued values.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity.
func (q *Bounded[T]) Cap() int {
	return len(q.buf)
}
