// Package feed buffers matched line events from all sessions and fans them
// out to live subscribers. Sessions append from their read loops; the API
// layer queries history and streams new events from here.
package feed

import (
	"sync"

	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
)

// RingBuffer is a fixed-size circular buffer of line events
type RingBuffer struct {
	mu       sync.RWMutex
	events   []domain.LineEvent
	head     int // next write position
	count    int // current number of events
	capacity int // max events
}

// NewRingBuffer creates a ring buffer with the given capacity
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = constants.DefaultFeedBufferSize
	}
	return &RingBuffer{
		events:   make([]domain.LineEvent, capacity),
		capacity: capacity,
	}
}

// Append adds a new event, evicting the oldest once full
func (b *RingBuffer) Append(ev domain.LineEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[b.head] = ev
	b.head = (b.head + 1) % b.capacity

	if b.count < b.capacity {
		b.count++
	}
}

// Events returns all buffered events in chronological order
func (b *RingBuffer) Events() []domain.LineEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil
	}

	result := make([]domain.LineEvent, b.count)

	// Oldest event sits at head once the buffer has wrapped.
	start := 0
	if b.count == b.capacity {
		start = b.head
	}

	for i := 0; i < b.count; i++ {
		idx := (start + i) % b.capacity
		result[i] = b.events[idx]
	}

	return result
}

// LastN returns the newest n events in chronological order
func (b *RingBuffer) LastN(n int) []domain.LineEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 || n <= 0 {
		return nil
	}

	if n > b.count {
		n = b.count
	}

	result := make([]domain.LineEvent, n)

	var start int
	if b.count == b.capacity {
		start = (b.head - n + b.capacity) % b.capacity
	} else {
		start = b.count - n
	}

	for i := 0; i < n; i++ {
		idx := (start + i) % b.capacity
		result[i] = b.events[idx]
	}

	return result
}

// Count returns the current number of buffered events
func (b *RingBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Capacity returns the maximum number of buffered events
func (b *RingBuffer) Capacity() int {
	return b.capacity
}

// Clear removes all events from the buffer
func (b *RingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}
