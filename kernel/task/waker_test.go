package task

import (
	"sync"
	"testing"
)

type countingWaker struct {
	mu    sync.Mutex
	count int
}

func (w *countingWaker) Wake() {
	w.mu.Lock()
	w.count++
	w.mu.Unlock()
}

func (w *countingWaker) wakes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func TestAtomicWaker(t *testing.T) {
	var (
		aw    AtomicWaker
		first countingWaker
		other countingWaker
	)

	// Waking with nothing registered is a no-op
	aw.Wake()

	aw.Register(&first)
	aw.Register(&other)
	aw.Wake()

	if first.wakes() != 0 {
		t.Fatal("expected a replaced waker not to be invoked")
	}
	if other.wakes() != 1 {
		t.Fatalf("expected registered waker to be invoked once; got %d", other.wakes())
	}

	// Wake consumes the registration
	aw.Wake()
	if other.wakes() != 1 {
		t.Fatalf("expected waker to be cleared after Wake; got %d wakes", other.wakes())
	}
}

func TestAtomicWakerRegisterDuringWake(t *testing.T) {
	var (
		aw AtomicWaker
		w  countingWaker
	)

	// Simulate a Wake that is in progress
	aw.state = wakerWaking
	aw.Register(&w)
	if w.wakes() != 1 {
		t.Fatalf("expected Register to invoke the waker while a wake is in progress; got %d", w.wakes())
	}
}

func TestAtomicWakerConcurrent(t *testing.T) {
	var (
		aw AtomicWaker
		w  countingWaker
		wg sync.WaitGroup
	)

	// Every Register that happens-before a Wake must lead to at least one
	// invocation; after the final Register + Wake the waker must have
	// been invoked at least once.
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			aw.Register(&w)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			aw.Wake()
		}
	}()
	wg.Wait()

	aw.Register(&w)
	before := w.wakes()
	aw.Wake()
	if w.wakes() != before+1 {
		t.Fatalf("expected final Wake to invoke the registered waker")
	}
}
