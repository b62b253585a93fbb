package dispatch

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned when the bounded queue rejects a push.
var ErrQueueFull = errors.New("dispatch: queue full")

// ErrQueueClosed is returned when pushing after shutdown.
var ErrQueueClosed = errors.New("dispatch: queue closed")

// priorityQueue is a bounded two-stage queue: tasks whose EarliestSendAt has
// passed sit in a priority heap (priority desc, FIFO within a priority);
// future tasks wait in a time-ordered heap and are promoted when due.
type priorityQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	ready   readyHeap
	delayed delayHeap

	capacity int
	closed   bool
	seq      uint64

	timer *time.Timer
}

func newPriorityQueue(capacity int) *priorityQueue {
	q := &priorityQueue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push adds a task, respecting the capacity bound across both stages.
func (q *priorityQueue) push(t *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.ready.Len()+q.delayed.Len() >= q.capacity {
		return ErrQueueFull
	}
	q.seq++
	t.seq = q.seq

	if t.EarliestSendAt.After(time.Now()) {
		heap.Push(&q.delayed, t)
		q.armTimerLocked()
	} else {
		heap.Push(&q.ready, t)
	}
	q.cond.Signal()
	return nil
}

// pop blocks until a task is ready or the queue is closed. The boolean is
// false only on close.
func (q *priorityQueue) pop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		q.promoteLocked()
		if q.ready.Len() > 0 {
			t := heap.Pop(&q.ready).(*Task)
			return t, true
		}
		if q.closed {
			return nil, false
		}
		q.armTimerLocked()
		q.cond.Wait()
	}
}

// promoteLocked moves due delayed tasks into the ready heap.
func (q *priorityQueue) promoteLocked() {
	now := time.Now()
	for q.delayed.Len() > 0 && !q.delayed[0].EarliestSendAt.After(now) {
		t := heap.Pop(&q.delayed).(*Task)
		heap.Push(&q.ready, t)
	}
}

// armTimerLocked schedules a wakeup for the nearest delayed task so waiting
// workers notice it coming due.
func (q *priorityQueue) armTimerLocked() {
	if q.delayed.Len() == 0 {
		return
	}
	d := time.Until(q.delayed[0].EarliestSendAt)
	if d < 0 {
		d = 0
	}
	if q.timer == nil {
		q.timer = time.AfterFunc(d, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		return
	}
	q.timer.Reset(d)
}

// close rejects further pushes and wakes all waiters. Remaining tasks are
// returned so the dispatcher can cancel them.
func (q *priorityQueue) close() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
	}

	rest := make([]*Task, 0, q.ready.Len()+q.delayed.Len())
	for q.ready.Len() > 0 {
		rest = append(rest, heap.Pop(&q.ready).(*Task))
	}
	for q.delayed.Len() > 0 {
		rest = append(rest, heap.Pop(&q.delayed).(*Task))
	}
	q.cond.Broadcast()
	return rest
}

// len returns the total queued task count.
func (q *priorityQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len() + q.delayed.Len()
}

// depths returns the queue depth per priority, delayed tasks included.
func (q *priorityQueue) depths() [priorityCount]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	var d [priorityCount]int
	for _, t := range q.ready {
		d[t.Priority]++
	}
	for _, t := range q.delayed {
		d[t.Priority]++
	}
	return d
}

// drainAll empties both stages without closing; used by the admin
// clear-queue operation.
func (q *priorityQueue) drainAll() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	rest := make([]*Task, 0, q.ready.Len()+q.delayed.Len())
	for q.ready.Len() > 0 {
		rest = append(rest, heap.Pop(&q.ready).(*Task))
	}
	for q.delayed.Len() > 0 {
		rest = append(rest, heap.Pop(&q.delayed).(*Task))
	}
	return rest
}

// readyHeap orders by priority descending, then FIFO by sequence.
type readyHeap []*Task

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h readyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x any)        { *h = append(*h, x.(*Task)) }
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// delayHeap orders by EarliestSendAt ascending.
type delayHeap []*Task

func (h delayHeap) Len() int { return len(h) }
func (h delayHeap) Less(i, j int) bool {
	return h[i].EarliestSendAt.Before(h[j].EarliestSendAt)
}
func (h delayHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayHeap) Push(x any)   { *h = append(*h, x.(*Task)) }
func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
