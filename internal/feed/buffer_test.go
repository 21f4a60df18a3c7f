package feed

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
)

func makeEvent(line string) domain.LineEvent {
	return domain.LineEvent{
		Port:      "ttyV0",
		Timestamp: time.Now(),
		Line:      line,
	}
}

func TestRingBuffer_AppendEvents(t *testing.T) {
	b := NewRingBuffer(5)

	b.Append(makeEvent("1"))
	b.Append(makeEvent("2"))
	b.Append(makeEvent("3"))

	events := b.Events()
	assert.Len(t, events, 3)
	assert.Equal(t, "1", events[0].Line)
	assert.Equal(t, "2", events[1].Line)
	assert.Equal(t, "3", events[2].Line)
}

func TestRingBuffer_Overflow(t *testing.T) {
	b := NewRingBuffer(3)

	b.Append(makeEvent("1"))
	b.Append(makeEvent("2"))
	b.Append(makeEvent("3"))
	b.Append(makeEvent("4")) // evicts "1"

	events := b.Events()
	assert.Len(t, events, 3)
	assert.Equal(t, "2", events[0].Line)
	assert.Equal(t, "3", events[1].Line)
	assert.Equal(t, "4", events[2].Line)
}

func TestRingBuffer_LastN(t *testing.T) {
	b := NewRingBuffer(10)

	for i := 1; i <= 5; i++ {
		b.Append(makeEvent(fmt.Sprintf("%d", i)))
	}

	events := b.LastN(3)
	assert.Len(t, events, 3)
	assert.Equal(t, "3", events[0].Line)
	assert.Equal(t, "4", events[1].Line)
	assert.Equal(t, "5", events[2].Line)
}

func TestRingBuffer_LastN_MoreThanExists(t *testing.T) {
	b := NewRingBuffer(10)

	b.Append(makeEvent("1"))
	b.Append(makeEvent("2"))

	events := b.LastN(10)
	assert.Len(t, events, 2)
}

func TestRingBuffer_LastN_AfterOverflow(t *testing.T) {
	b := NewRingBuffer(3)

	for i := 1; i <= 5; i++ {
		b.Append(makeEvent(fmt.Sprintf("%d", i)))
	}

	events := b.LastN(2)
	assert.Len(t, events, 2)
	assert.Equal(t, "4", events[0].Line)
	assert.Equal(t, "5", events[1].Line)
}

func TestRingBuffer_Empty(t *testing.T) {
	b := NewRingBuffer(5)

	assert.Nil(t, b.Events())
	assert.Equal(t, 0, b.Count())
}

func TestRingBuffer_Clear(t *testing.T) {
	b := NewRingBuffer(5)

	b.Append(makeEvent("1"))
	b.Append(makeEvent("2"))
	b.Clear()

	assert.Nil(t, b.Events())
	assert.Equal(t, 0, b.Count())
}

func TestRingBuffer_Concurrent(t *testing.T) {
	b := NewRingBuffer(100)

	var wg sync.WaitGroup
	numWriters := 10
	writesPerWriter := 100

	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				b.Append(makeEvent("msg"))
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = b.Events()
				_ = b.LastN(10)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 100, b.Count())
}

func TestRingBuffer_DefaultCapacity(t *testing.T) {
	b := NewRingBuffer(0)
	assert.Equal(t, constants.DefaultFeedBufferSize, b.Capacity())

	b2 := NewRingBuffer(-5)
	assert.Equal(t, constants.DefaultFeedBufferSize, b2.Capacity())
}
