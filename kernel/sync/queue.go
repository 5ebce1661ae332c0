// Package sync provides synchronization primitives that are safe to use
// from interrupt context.
package sync

import (
	"sync/atomic"
	"taskos/kernel"
)

var errZeroCapacity = &kernel.Error{Module: "sync", Message: "queue capacity must be greater than zero"}

// queueCell is a queue slot. Its sequence number tells producers and
// consumers whose turn it is to access the slot.
type queueCell struct {
	seq uint64
	val uint64
}

// BoundedQueue is a fixed-capacity FIFO queue of uint64 values that supports
// multiple concurrent producers and consumers without locks. Neither Push nor
// Pop ever blocks or allocates, so both can be called from an interrupt
// handler.
type BoundedQueue struct {
	cells    []queueCell
	capacity uint64

	// Positions are never wrapped; the slot index is pos % capacity.
	enqueuePos uint64
	dequeuePos uint64
}

// NewBoundedQueue returns an empty queue that can hold up to capacity values.
// It panics if capacity is zero.
func NewBoundedQueue(capacity uint64) *BoundedQueue {
	if capacity == 0 {
		panic(errZeroCapacity)
	}

	q := &BoundedQueue{
		cells:    make([]queueCell, capacity),
		capacity: capacity,
	}

	for i := range q.cells {
		q.cells[i].seq = uint64(i)
	}

	return q
}

// Push appends val to the queue. It returns false without modifying the queue
// if the queue is full.
func (q *BoundedQueue) Push(val uint64) bool {
	pos := atomic.LoadUint64(&q.enqueuePos)
	for {
		cell := &q.cells[pos%q.capacity]
		seq := atomic.LoadUint64(&cell.seq)

		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&q.enqueuePos, pos, pos+1) {
				cell.val = val
				atomic.StoreUint64(&cell.seq, pos+1)
				return true
			}
			pos = atomic.LoadUint64(&q.enqueuePos)
		case diff < 0:
			// The slot still holds a value from the previous lap.
			return false
		default:
			pos = atomic.LoadUint64(&q.enqueuePos)
		}
	}
}

// Pop removes and returns the value at the head of the queue. The second
// result is false if the queue is empty.
func (q *BoundedQueue) Pop() (uint64, bool) {
	pos := atomic.LoadUint64(&q.dequeuePos)
	for {
		cell := &q.cells[pos%q.capacity]
		seq := atomic.LoadUint64(&cell.seq)

		switch diff := int64(seq) - int64(pos+1); {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&q.dequeuePos, pos, pos+1) {
				val := cell.val
				atomic.StoreUint64(&cell.seq, pos+q.capacity)
				return val, true
			}
			pos = atomic.LoadUint64(&q.dequeuePos)
		case diff < 0:
			return 0, false
		default:
			pos = atomic.LoadUint64(&q.dequeuePos)
		}
	}
}

// Len returns the number of values in the queue. The result is a snapshot
// and may already be stale when concurrent producers or consumers exist.
func (q *BoundedQueue) Len() uint64 {
	for {
		deq := atomic.LoadUint64(&q.dequeuePos)
		enq := atomic.LoadUint64(&q.enqueuePos)
		if deq != atomic.LoadUint64(&q.dequeuePos) {
			continue
		}

		if enq <= deq {
			return 0
		}
		if n := enq - deq; n < q.capacity {
			return n
		}
		return q.capacity
	}
}

// IsEmpty returns true if the queue holds no values.
func (q *BoundedQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Cap returns the capacity of the queue.
func (q *BoundedQueue) Cap() uint64 {
	return q.capacity
}
