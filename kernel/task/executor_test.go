package task

import (
	"bytes"
	"fmt"
	"io"
	"taskos/kernel/kfmt"
	"testing"
)

// completeAfter returns a future that completes on its n-th poll. It records
// the waker of every poll into wakers, when set.
func completeAfter(n int, polls *int, wakers *[]Waker) Future {
	return FutureFunc(func(ctx *Context) PollResult {
		*polls++
		if wakers != nil {
			*wakers = append(*wakers, ctx.Waker())
		}

		if *polls >= n {
			return Ready
		}
		return Pending
	})
}

func expectPanic(t *testing.T, exp interface{}, fn func()) {
	t.Helper()

	defer func() {
		if err := recover(); err != exp {
			t.Fatalf("expected panic with %v; got %v", exp, err)
		}
	}()

	fn()
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	seen := make(map[ID]bool)
	var prev ID
	for i := 0; i < 10; i++ {
		task := New(FutureFunc(func(*Context) PollResult { return Ready }))
		if seen[task.ID()] {
			t.Fatalf("duplicate task ID %d", task.ID())
		}
		if i > 0 && task.ID() != prev+1 {
			t.Fatalf("expected IDs to be assigned sequentially; got %d after %d", task.ID(), prev)
		}
		seen[task.ID()] = true
		prev = task.ID()
	}
}

func TestExecutorWakeCycle(t *testing.T) {
	var (
		e       = NewExecutor(ReadyQueueCapacity)
		pollsA  int
		pollsB  int
		wakersB []Waker
	)

	taskA := New(completeAfter(1, &pollsA, nil))
	taskB := New(completeAfter(2, &pollsB, &wakersB))
	e.Spawn(taskA)
	e.Spawn(taskB)

	e.RunReadyTasks()

	if pollsA != 1 || pollsB != 1 {
		t.Fatalf("expected each task to be polled once; got A=%d, B=%d", pollsA, pollsB)
	}
	if _, exists := e.tasks[taskA.ID()]; exists {
		t.Fatal("expected task A to be removed after completing")
	}
	if _, exists := e.wakers[taskA.ID()]; exists {
		t.Fatal("expected the waker of task A to be removed after completing")
	}
	if _, exists := e.tasks[taskB.ID()]; !exists {
		t.Fatal("expected task B to be waiting")
	}
	if !e.readyQueue.IsEmpty() {
		t.Fatal("expected no ready tasks while B is waiting")
	}

	// Without a wake, B is not polled again
	e.RunReadyTasks()
	if pollsB != 1 {
		t.Fatalf("expected waiting task not to be polled; got %d polls", pollsB)
	}

	wakersB[0].Wake()
	e.RunReadyTasks()

	if pollsB != 2 {
		t.Fatalf("expected task B to be polled after wake; got %d polls", pollsB)
	}
	if len(e.tasks) != 0 || len(e.wakers) != 0 {
		t.Fatalf("expected executor to be empty; got %d tasks, %d wakers", len(e.tasks), len(e.wakers))
	}
}

func TestExecutorCachesWakers(t *testing.T) {
	var (
		e      = NewExecutor(4)
		polls  int
		wakers []Waker
	)

	e.Spawn(New(completeAfter(3, &polls, &wakers)))
	for i := 0; i < 3; i++ {
		e.RunReadyTasks()
		wakers[len(wakers)-1].Wake()
	}

	if polls != 3 {
		t.Fatalf("expected 3 polls; got %d", polls)
	}
	if wakers[0] != wakers[1] || wakers[1] != wakers[2] {
		t.Fatal("expected the same waker to be used for every poll of a task")
	}

	// Waking a completed task queues its ID; the next pass skips it.
	e.RunReadyTasks()
	if polls != 3 {
		t.Fatalf("expected completed task not to be polled again; got %d polls", polls)
	}
	if !e.readyQueue.IsEmpty() {
		t.Fatal("expected stale ID to be consumed")
	}
}

func TestExecutorDrainsOncePerPass(t *testing.T) {
	var (
		e     = NewExecutor(4)
		polls int
	)

	// The task wakes itself on every poll
	e.Spawn(New(FutureFunc(func(ctx *Context) PollResult {
		polls++
		ctx.Waker().Wake()
		return Pending
	})))

	for pass := 1; pass <= 3; pass++ {
		e.RunReadyTasks()
		if polls != pass {
			t.Fatalf("[pass %d] expected a self-waking task to be polled once per pass; got %d polls", pass, polls)
		}
	}
}

func TestExecutorPollOrder(t *testing.T) {
	var (
		e     = NewExecutor(8)
		order []int
	)

	for i := 0; i < 5; i++ {
		i := i
		e.Spawn(New(FutureFunc(func(*Context) PollResult {
			order = append(order, i)
			return Ready
		})))
	}

	e.RunReadyTasks()
	if exp, got := "[0 1 2 3 4]", fmt.Sprint(order); got != exp {
		t.Fatalf("expected tasks to be polled in spawn order %s; got %s", exp, got)
	}
}

func TestExecutorFatalErrors(t *testing.T) {
	t.Run("duplicate spawn", func(t *testing.T) {
		e := NewExecutor(4)
		task := New(FutureFunc(func(*Context) PollResult { return Ready }))
		e.Spawn(task)

		expectPanic(t, errTaskExists, func() { e.Spawn(task) })
	})

	t.Run("ready queue full", func(t *testing.T) {
		e := NewExecutor(2)
		for i := 0; i < 2; i++ {
			e.Spawn(New(FutureFunc(func(*Context) PollResult { return Ready })))
		}

		expectPanic(t, errQueueFull, func() {
			e.Spawn(New(FutureFunc(func(*Context) PollResult { return Ready })))
		})
	})

	t.Run("wake into full queue", func(t *testing.T) {
		var (
			e      = NewExecutor(1)
			polls  int
			wakers []Waker
		)
		e.Spawn(New(completeAfter(2, &polls, &wakers)))
		e.RunReadyTasks()

		wakers[0].Wake()
		expectPanic(t, errWakeQueueFull, func() { wakers[0].Wake() })
	})
}

func TestSleepIfIdle(t *testing.T) {
	defer func(origDisable, origEnable, origEnableAndHalt func()) {
		disableInterruptsFn = origDisable
		enableInterruptsFn = origEnable
		enableInterruptsAndHaltFn = origEnableAndHalt
	}(disableInterruptsFn, enableInterruptsFn, enableInterruptsAndHaltFn)

	var calls []string
	disableInterruptsFn = func() { calls = append(calls, "cli") }
	enableInterruptsFn = func() { calls = append(calls, "sti") }
	enableInterruptsAndHaltFn = func() { calls = append(calls, "sti+hlt") }

	specs := []struct {
		readyTasks int
		expCalls   string
	}{
		{0, "[cli sti+hlt]"},
		{1, "[cli sti]"},
	}

	for specIndex, spec := range specs {
		calls = nil
		e := NewExecutor(4)
		for i := 0; i < spec.readyTasks; i++ {
			e.Spawn(New(FutureFunc(func(*Context) PollResult { return Ready })))
		}

		e.sleepIfIdle()
		if got := fmt.Sprint(calls); got != spec.expCalls {
			t.Errorf("[spec %d] expected calls %s; got %s", specIndex, spec.expCalls, got)
		}
	}
}

// errStopRun is used to break out of the otherwise endless Run loop.
type errStopRun struct{}

func TestRun(t *testing.T) {
	defer func(origDisable, origEnable, origEnableAndHalt func(), origSink io.Writer) {
		disableInterruptsFn = origDisable
		enableInterruptsFn = origEnable
		enableInterruptsAndHaltFn = origEnableAndHalt
		kfmt.SetOutputSink(origSink)
	}(disableInterruptsFn, enableInterruptsFn, enableInterruptsAndHaltFn, kfmt.GetOutputSink())

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	var (
		e      = NewExecutor(4)
		polls  int
		wakers []Waker
		halts  int
	)
	e.Spawn(New(completeAfter(2, &polls, &wakers)))

	disableInterruptsFn = func() {}
	enableInterruptsFn = func() {}
	enableInterruptsAndHaltFn = func() {
		halts++
		switch halts {
		case 1:
			// Simulate an interrupt handler waking the task while
			// the CPU is halted.
			wakers[0].Wake()
		default:
			panic(errStopRun{})
		}
	}

	func() {
		defer func() {
			if err := recover(); err != (errStopRun{}) {
				t.Fatalf("unexpected panic: %v", err)
			}
		}()
		e.Run()
	}()

	if polls != 2 {
		t.Fatalf("expected task to be polled twice; got %d", polls)
	}
	if halts != 2 {
		t.Fatalf("expected the CPU to halt twice; got %d", halts)
	}
	if exp, got := "[executor] running 1 tasks\n", buf.String(); got != exp {
		t.Fatalf("expected output %q; got %q", exp, got)
	}
}
