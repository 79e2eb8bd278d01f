package securityevents

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferFIFO(t *testing.T) {
	b := newRingBuffer(4)

	for i := 0; i < 3; i++ {
		b.enqueue(Event{Detail: fmt.Sprintf("e%d", i)})
	}
	assert.Equal(t, 3, b.len())

	batch := b.dequeueBatch(2)
	assert.Len(t, batch, 2)
	assert.Equal(t, "e0", batch[0].Detail)
	assert.Equal(t, "e1", batch[1].Detail)
	assert.Equal(t, 1, b.len())
}

func TestRingBufferDropsOldestWhenFull(t *testing.T) {
	b := newRingBuffer(2)

	b.enqueue(Event{Detail: "e0"})
	b.enqueue(Event{Detail: "e1"})
	b.enqueue(Event{Detail: "e2"})

	assert.Equal(t, 2, b.len())
	assert.Equal(t, int64(1), b.droppedTotal())

	batch := b.dequeueBatch(10)
	assert.Equal(t, "e1", batch[0].Detail)
	assert.Equal(t, "e2", batch[1].Detail)
}

func TestRingBufferEmptyDequeue(t *testing.T) {
	b := newRingBuffer(2)
	assert.Nil(t, b.dequeueBatch(5))
}
