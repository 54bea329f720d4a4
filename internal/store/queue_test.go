package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteQueue_FIFO(t *testing.T) {
	q := newWriteQueue()

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		require.True(t, q.Enqueue(func() { order = append(order, i) }))
	}
	assert.Equal(t, 3, q.Len())

	for i := 0; i < 3; i++ {
		job, ok := q.TryDequeue()
		require.True(t, ok)
		job()
	}
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, q.Len())
}

func TestWriteQueue_TryDequeue_Empty(t *testing.T) {
	q := newWriteQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestWriteQueue_Dequeue_BlocksUntilAvailable(t *testing.T) {
	q := newWriteQueue()

	got := make(chan bool)
	go func() {
		_, ok := q.Dequeue()
		got <- ok
	}()

	select {
	case <-got:
		t.Fatal("Dequeue returned before a job was enqueued")
	case <-time.After(20 * time.Millisecond):
	}

	q.Enqueue(func() {})
	select {
	case ok := <-got:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up")
	}
}

func TestWriteQueue_CloseDrainsThenStops(t *testing.T) {
	q := newWriteQueue()
	q.Enqueue(func() {})
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(func() {}), "enqueue after close must fail")

	_, ok := q.Dequeue()
	assert.True(t, ok, "queued job is still handed out after close")
	_, ok = q.Dequeue()
	assert.False(t, ok)
}
