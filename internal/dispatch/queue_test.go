package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunil55999/Zorox/internal/models"
)

func sendTask(prio Priority) *Task {
	return NewTask(TaskSend, models.Pair{ID: 1, DestinationChat: 200}, prio)
}

func TestPriorityOrdering(t *testing.T) {
	q := newPriorityQueue(10)

	low := sendTask(PriorityLow)
	urgent := sendTask(PriorityUrgent)
	normal := sendTask(PriorityNormal)
	high := sendTask(PriorityHigh)

	for _, task := range []*Task{low, urgent, normal, high} {
		require.NoError(t, q.push(task))
	}

	var got []Priority
	for i := 0; i < 4; i++ {
		task, ok := q.pop()
		require.True(t, ok)
		got = append(got, task.Priority)
	}
	assert.Equal(t, []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}, got)
}

func TestFIFOWithinPriority(t *testing.T) {
	q := newPriorityQueue(10)

	first := sendTask(PriorityNormal)
	second := sendTask(PriorityNormal)
	third := sendTask(PriorityNormal)
	for _, task := range []*Task{first, second, third} {
		require.NoError(t, q.push(task))
	}

	for _, want := range []*Task{first, second, third} {
		got, ok := q.pop()
		require.True(t, ok)
		assert.Same(t, want, got)
	}
}

func TestDelayedPromotion(t *testing.T) {
	q := newPriorityQueue(10)

	delayed := sendTask(PriorityUrgent)
	delayed.EarliestSendAt = time.Now().Add(50 * time.Millisecond)
	ready := sendTask(PriorityLow)

	require.NoError(t, q.push(delayed))
	require.NoError(t, q.push(ready))

	// the ready low-priority task pops first: the urgent one is not due yet
	got, ok := q.pop()
	require.True(t, ok)
	assert.Same(t, ready, got)

	// blocking pop returns the delayed task once due
	start := time.Now()
	got, ok = q.pop()
	require.True(t, ok)
	assert.Same(t, delayed, got)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestCapacityBound(t *testing.T) {
	q := newPriorityQueue(2)
	require.NoError(t, q.push(sendTask(PriorityNormal)))
	require.NoError(t, q.push(sendTask(PriorityNormal)))
	assert.ErrorIs(t, q.push(sendTask(PriorityNormal)), ErrQueueFull)
}

func TestCloseReturnsRemaining(t *testing.T) {
	q := newPriorityQueue(10)
	require.NoError(t, q.push(sendTask(PriorityNormal)))
	delayed := sendTask(PriorityNormal)
	delayed.EarliestSendAt = time.Now().Add(time.Hour)
	require.NoError(t, q.push(delayed))

	rest := q.close()
	assert.Len(t, rest, 2)

	_, ok := q.pop()
	assert.False(t, ok)
	assert.ErrorIs(t, q.push(sendTask(PriorityLow)), ErrQueueClosed)
}

func TestDepths(t *testing.T) {
	q := newPriorityQueue(10)
	require.NoError(t, q.push(sendTask(PriorityNormal)))
	require.NoError(t, q.push(sendTask(PriorityNormal)))
	require.NoError(t, q.push(sendTask(PriorityUrgent)))

	d := q.depths()
	assert.Equal(t, 2, d[PriorityNormal])
	assert.Equal(t, 1, d[PriorityUrgent])
	assert.Equal(t, 3, q.len())
}
