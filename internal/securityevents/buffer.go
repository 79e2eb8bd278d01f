package securityevents

import "sync"

// ringBuffer is a bounded, thread-safe buffer for security events. When
// full, the oldest events are dropped to make room: losing a stale event
// beats blocking a request path.
type ringBuffer struct {
	mu       sync.Mutex
	events   []Event
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &ringBuffer{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

// enqueue adds an event, dropping the oldest if necessary.
func (b *ringBuffer) enqueue(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
	}

	b.events[b.head] = event
	b.head = (b.head + 1) % b.capacity
	b.count++
}

// dequeueBatch removes up to n events from the buffer.
func (b *ringBuffer) dequeueBatch(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		result[i] = b.events[b.tail]
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return result
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *ringBuffer) droppedTotal() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
