package task

import (
	"taskos/kernel"
	"taskos/kernel/cpu"
	"taskos/kernel/kfmt"
	ksync "taskos/kernel/sync"
)

// ReadyQueueCapacity is the default capacity of the ready queue.
const ReadyQueueCapacity = 100

var (
	// The following functions are mocked by tests as they execute
	// privileged instructions.
	disableInterruptsFn       = cpu.DisableInterrupts
	enableInterruptsFn        = cpu.EnableInterrupts
	enableInterruptsAndHaltFn = cpu.EnableInterruptsAndHalt

	errTaskExists = &kernel.Error{Module: "executor", Message: "task with same ID already spawned"}
	errQueueFull  = &kernel.Error{Module: "executor", Message: "ready queue full"}
)

// Executor polls spawned tasks whenever they become ready. A task is ready
// after it is spawned and each time its waker is invoked.
type Executor struct {
	tasks      map[ID]*Task
	readyQueue *ksync.BoundedQueue

	// wakers caches the waker of each task so that it is only created once.
	wakers map[ID]Waker
}

// NewExecutor returns an executor whose ready queue can hold up to capacity
// task IDs.
func NewExecutor(capacity uint64) *Executor {
	return &Executor{
		tasks:      make(map[ID]*Task),
		readyQueue: ksync.NewBoundedQueue(capacity),
		wakers:     make(map[ID]Waker),
	}
}

// Spawn adds t to the executor and marks it as ready. Spawning a task twice
// or spawning while the ready queue is full causes a panic.
func (e *Executor) Spawn(t *Task) {
	if _, exists := e.tasks[t.id]; exists {
		panic(errTaskExists)
	}

	e.tasks[t.id] = t
	if !e.readyQueue.Push(uint64(t.id)) {
		panic(errQueueFull)
	}
}

// RunReadyTasks polls the tasks that are ready when it is called, in the
// order in which they became ready. Tasks that are woken while the pass is
// in progress are polled by the next call. Completed tasks are removed along
// with their waker.
func (e *Executor) RunReadyTasks() {
	for pending := e.readyQueue.Len(); pending > 0; pending-- {
		rawID, ok := e.readyQueue.Pop()
		if !ok {
			return
		}

		id := ID(rawID)
		t, exists := e.tasks[id]
		if !exists {
			// task no longer exists
			continue
		}

		waker, cached := e.wakers[id]
		if !cached {
			waker = &taskWaker{id: id, queue: e.readyQueue}
			e.wakers[id] = waker
		}

		if t.poll(NewContext(waker)) == Ready {
			delete(e.tasks, id)
			delete(e.wakers, id)
		}
	}
}

// Run polls ready tasks and halts the CPU while none are ready. It never
// returns.
func (e *Executor) Run() {
	kfmt.Printf("[executor] running %d tasks\n", len(e.tasks))

	for {
		e.RunReadyTasks()
		e.sleepIfIdle()
	}
}

// sleepIfIdle halts the CPU until the next interrupt if no task is ready.
// Interrupts are disabled while the ready queue is checked so a wake from an
// interrupt handler cannot slip in between the check and the halt; the
// halt re-enables them as part of the same instruction sequence.
func (e *Executor) sleepIfIdle() {
	disableInterruptsFn()
	if e.readyQueue.IsEmpty() {
		enableInterruptsAndHaltFn()
		return
	}
	enableInterruptsFn()
}
