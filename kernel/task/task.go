// Package task implements cooperative multitasking on top of pollable
// futures. Tasks are advanced by an Executor whenever they are woken, either
// by other tasks or by interrupt handlers.
package task

import "sync/atomic"

// ID uniquely identifies a task.
type ID uint64

// nextID holds the ID that will be assigned to the next task.
var nextID uint64

func newID() ID {
	return ID(atomic.AddUint64(&nextID, 1) - 1)
}

// PollResult reports whether a future has completed.
type PollResult uint8

const (
	// Pending indicates that the future cannot make progress until it is
	// woken through the Waker of the Context it was polled with.
	Pending PollResult = iota

	// Ready indicates that the future has completed and must not be polled
	// again.
	Ready
)

// Waker is implemented by types that can schedule a task to be polled again.
// Wake may be called from interrupt context and must never block.
type Waker interface {
	Wake()
}

// Context is passed to a future when it is polled.
type Context struct {
	waker Waker
}

// NewContext returns a Context that hands out w.
func NewContext(w Waker) *Context {
	return &Context{waker: w}
}

// Waker returns the waker for the task that is being polled. Futures that
// return Pending must arrange for it to be called once they can make
// progress; otherwise they will never be polled again.
func (ctx *Context) Waker() Waker {
	return ctx.waker
}

// Future is an asynchronous computation that is advanced by calls to Poll.
type Future interface {
	Poll(ctx *Context) PollResult
}

// FutureFunc adapts a function to the Future interface.
type FutureFunc func(ctx *Context) PollResult

// Poll calls fn(ctx).
func (fn FutureFunc) Poll(ctx *Context) PollResult {
	return fn(ctx)
}

// Task is a future paired with a unique ID.
type Task struct {
	id     ID
	future Future
}

// New wraps f in a task with a new unique ID.
func New(f Future) *Task {
	return &Task{id: newID(), future: f}
}

// ID returns the task ID.
func (t *Task) ID() ID {
	return t.id
}

func (t *Task) poll(ctx *Context) PollResult {
	return t.future.Poll(ctx)
}
