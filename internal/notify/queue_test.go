package notify

import (
	"sync"
	"testing"

	"broker/internal/og"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(0)
	_, ok := q.Pop()
	require.False(t, ok)

	for i := uint64(1); i <= 5; i++ {
		require.True(t, q.Push(og.Order{Ref: i}))
	}
	assert.Equal(t, 5, q.Len())

	for i := uint64(1); i <= 5; i++ {
		o, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, o.Ref)
	}
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueueInterleavedPushPop(t *testing.T) {
	q := NewQueue(2)
	q.Push(og.Order{Ref: 1})
	q.Push(og.Order{Ref: 2})
	o, _ := q.Pop()
	assert.Equal(t, uint64(1), o.Ref)
	q.Push(og.Order{Ref: 3})
	o, _ = q.Pop()
	assert.Equal(t, uint64(2), o.Ref)
	o, _ = q.Pop()
	assert.Equal(t, uint64(3), o.Ref)
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(1)
	q.Push(og.Order{Ref: 1})
	q.Close()

	assert.False(t, q.Push(og.Order{Ref: 2}))
	assert.Equal(t, uint64(1), q.Dropped())

	o, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(1), o.Ref)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue(8)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(og.Order{})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, q.Len())
}
