// Package queue provides the bounded event buffer between ingest and the
// dispatcher. Overflow drops the oldest event; detection prefers recent
// traffic over a complete backlog.
package queue

import (
	"errors"
	"sync"
	"sync/atomic"

	"modsentry/internal/schema"
)

// ErrClosed is returned when using a closed buffer.
var ErrClosed = errors.New("queue: closed")

// RingBuffer is a thread-safe circular event buffer.
type RingBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buffer []*schema.Event
	size   int
	head   int
	tail   int
	count  int
	closed bool

	pushed  atomic.Uint64
	popped  atomic.Uint64
	dropped atomic.Uint64
}

// NewRingBuffer creates a buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 10000
	}
	rb := &RingBuffer{
		buffer: make([]*schema.Event, size),
		size:   size,
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Push adds an event. A full buffer evicts its oldest event to make room;
// the eviction is counted, never an error.
func (rb *RingBuffer) Push(event *schema.Event) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return ErrClosed
	}

	if rb.count == rb.size {
		rb.buffer[rb.head] = nil
		rb.head = (rb.head + 1) % rb.size
		rb.count--
		rb.dropped.Add(1)
	}

	rb.buffer[rb.tail] = event
	rb.tail = (rb.tail + 1) % rb.size
	rb.count++
	rb.pushed.Add(1)

	rb.cond.Signal()
	return nil
}

// Pop removes the oldest event, blocking until one is available or the
// buffer is closed and drained.
func (rb *RingBuffer) Pop() (*schema.Event, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.count == 0 && !rb.closed {
		rb.cond.Wait()
	}
	if rb.count == 0 {
		return nil, ErrClosed
	}
	return rb.popLocked(), nil
}

// TryPop removes the oldest event without blocking. ok is false when the
// buffer is empty.
func (rb *RingBuffer) TryPop() (event *schema.Event, ok bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == 0 {
		return nil, false
	}
	return rb.popLocked(), true
}

func (rb *RingBuffer) popLocked() *schema.Event {
	event := rb.buffer[rb.head]
	rb.buffer[rb.head] = nil
	rb.head = (rb.head + 1) % rb.size
	rb.count--
	rb.popped.Add(1)
	return event
}

// Len returns the number of buffered events.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Cap returns the buffer capacity.
func (rb *RingBuffer) Cap() int {
	return rb.size
}

// Close stops accepting pushes and wakes blocked consumers. Buffered
// events remain poppable until drained.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.cond.Broadcast()
}

// Stats is a snapshot of buffer counters.
type Stats struct {
	Pushed   uint64 `json:"pushed"`
	Popped   uint64 `json:"popped"`
	Dropped  uint64 `json:"dropped"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}

// Stats returns current counters.
func (rb *RingBuffer) Stats() Stats {
	return Stats{
		Pushed:   rb.pushed.Load(),
		Popped:   rb.popped.Load(),
		Dropped:  rb.dropped.Load(),
		Depth:    rb.Len(),
		Capacity: rb.size,
	}
}
