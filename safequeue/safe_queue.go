// Package safequeue provides a type-safe, concurrent FIFO queue. SafeQueue
// guards a ring buffer with a single lock held only for the queue operation
// itself, making it suitable for queues shared between a producing callback
// and a consumer on another goroutine.
package safequeue

import (
	"sync"

	"github.com/eapache/queue"
)

// SafeQueue is a FIFO queue that is safe for use by multiple goroutines.
// Elements are removed in the exact order they were added, each exactly once.
//
// SafeQueue must not be copied after first use. All operations are O(1)
// amortized.
type SafeQueue[T any] struct {
	q *queue.Queue
	sync.RWMutex
}

// NewSafeQueue creates and returns a new empty SafeQueue.
func NewSafeQueue[T any]() *SafeQueue[T] {
	return &SafeQueue[T]{q: queue.New()}
}

// Push appends an element to the back of the queue.
//
// Parameters:
//   - v: The element to append
func (s *SafeQueue[T]) Push(v T) {
	s.Lock()
	defer s.Unlock()
	s.q.Add(v)
}

// Pop removes and returns the element at the front of the queue.
//
// Returns:
//   - The oldest element, or the zero value of T if the queue is empty
//   - true if an element was removed, false if the queue was empty
func (s *SafeQueue[T]) Pop() (T, bool) {
	s.Lock()
	defer s.Unlock()

	if s.q.Length() == 0 {
		var zero T
		return zero, false
	}

	return s.q.Remove().(T), true
}

// Peek returns the element at the front of the queue without removing it.
//
// Returns:
//   - The oldest element, or the zero value of T if the queue is empty
//   - true if the queue is non-empty, false otherwise
func (s *SafeQueue[T]) Peek() (T, bool) {
	s.RLock()
	defer s.RUnlock()

	if s.q.Length() == 0 {
		var zero T
		return zero, false
	}

	return s.q.Peek().(T), true
}

// Len returns the number of elements currently in the queue.
//
// Returns:
//   - The number of queued elements
func (s *SafeQueue[T]) Len() int {
	s.RLock()
	defer s.RUnlock()
	return s.q.Length()
}

// Empty reports whether the queue has no elements.
//
// Returns:
//   - true if the queue is empty, false otherwise
func (s *SafeQueue[T]) Empty() bool {
	return s.Len() == 0
}

// Reset removes all elements from the queue, leaving it empty.
func (s *SafeQueue[T]) Reset() {
	s.Lock()
	defer s.Unlock()
	s.q = queue.New()
}
