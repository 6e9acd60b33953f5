package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue(t *testing.T) {
	var q Queue[int]
	assert.True(t, q.Empty())

	assert.True(t, q.Push(1))
	assert.False(t, q.Empty())
	assert.Equal(t, q.Pop(), 1)
	assert.True(t, q.Empty())

	q.Push(2)
	q.Push(3)
	assert.False(t, q.Push(2), "2 is already enqueued")
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, q.Pop(), 2)
	assert.True(t, q.Push(2), "2 can be enqueued again after it was popped")
	assert.Equal(t, q.Pop(), 3)
	assert.Equal(t, q.Pop(), 2)
	assert.True(t, q.Empty())

	assert.Panics(t, func() { q.Pop() })
}

func TestQueueLIFO(t *testing.T) {
	q := Queue[string]{LIFO: true}
	q.Push("a")
	q.Push("b")
	q.Push("c")

	assert.Equal(t, "c", q.Pop())
	assert.Equal(t, "b", q.Pop())
	q.Push("d")
	assert.Equal(t, "d", q.Pop())
	assert.Equal(t, "a", q.Pop())
	assert.True(t, q.Empty())
}

func TestQueueCompaction(t *testing.T) {
	var q Queue[int]
	for i := 0; i < 1000; i++ {
		q.Push(i)
	}
	for i := 0; i < 900; i++ {
		assert.Equal(t, i, q.Pop())
	}
	assert.Equal(t, 100, q.Len())
	for i := 900; i < 1000; i++ {
		assert.Equal(t, i, q.Pop())
	}
	assert.True(t, q.Empty())
}
