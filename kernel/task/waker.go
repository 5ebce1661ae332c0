package task

import (
	"sync/atomic"
	"taskos/kernel"
	ksync "taskos/kernel/sync"
)

var errWakeQueueFull = &kernel.Error{Module: "executor", Message: "ready queue full; unable to wake task"}

// taskWaker re-queues a task on the ready queue of the executor that owns it.
type taskWaker struct {
	id    ID
	queue *ksync.BoundedQueue
}

// Wake pushes the task ID to the ready queue. A full queue means that the
// queue capacity is too small for the number of tasks and causes a panic.
func (w *taskWaker) Wake() {
	if !w.queue.Push(uint64(w.id)) {
		panic(errWakeQueueFull)
	}
}

const (
	wakerIdle        uint32 = 0
	wakerRegistering uint32 = 1
	wakerWaking      uint32 = 2
)

// AtomicWaker stores the waker of a single task so that it can be woken by
// code that cannot otherwise reach it, such as an interrupt handler. Register
// and Wake may run concurrently with each other; a wake that races with a
// registration is never lost.
//
// The zero value is ready to use.
type AtomicWaker struct {
	state uint32
	waker Waker
}

// Register stores w as the waker to be invoked by the next call to Wake,
// replacing any previously registered waker. If a Wake is in progress, w is
// invoked immediately.
func (a *AtomicWaker) Register(w Waker) {
	if !atomic.CompareAndSwapUint32(&a.state, wakerIdle, wakerRegistering) {
		// A concurrent Wake holds the slot
		w.Wake()
		return
	}

	a.waker = w
	if atomic.CompareAndSwapUint32(&a.state, wakerRegistering, wakerIdle) {
		return
	}

	// Wake was called while registering; it left the waker in place for
	// us to invoke.
	pending := a.waker
	a.waker = nil
	atomic.StoreUint32(&a.state, wakerIdle)
	pending.Wake()
}

// Wake invokes and clears the registered waker, if any.
func (a *AtomicWaker) Wake() {
	if w := a.take(); w != nil {
		w.Wake()
	}
}

// take removes the registered waker. It returns nil if no waker is registered
// or if a concurrent Register will invoke the waker itself.
func (a *AtomicWaker) take() Waker {
	var prev uint32
	for {
		prev = atomic.LoadUint32(&a.state)
		if atomic.CompareAndSwapUint32(&a.state, prev, prev|wakerWaking) {
			break
		}
	}

	if prev != wakerIdle {
		return nil
	}

	w := a.waker
	a.waker = nil
	atomic.StoreUint32(&a.state, wakerIdle)
	return w
}
