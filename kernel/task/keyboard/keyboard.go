// Package keyboard buffers scancodes delivered by the keyboard interrupt
// handler and provides a task that prints the typed characters.
package keyboard

import (
	"sync/atomic"
	"taskos/kernel"
	"taskos/kernel/kfmt"
	ksync "taskos/kernel/sync"
	"taskos/kernel/task"
)

// QueueCapacity is the number of scancodes that can be buffered before input
// is dropped.
const QueueCapacity = 100

var (
	scancodeQueue atomic.Pointer[ksync.BoundedQueue]

	// waker wakes the task that consumes the scancode queue.
	waker task.AtomicWaker

	errAlreadyInitialized = &kernel.Error{Module: "keyboard", Message: "scancode queue already initialized"}
)

// Init allocates the scancode queue. It must be called exactly once, before
// keyboard interrupts are enabled; a second call panics.
func Init() {
	if !scancodeQueue.CompareAndSwap(nil, ksync.NewBoundedQueue(QueueCapacity)) {
		panic(errAlreadyInitialized)
	}
}

// AddScancode is called by the keyboard interrupt handler for every byte read
// from the keyboard controller. It must not block or allocate. Scancodes that
// arrive before Init or while the queue is full are dropped with a warning.
func AddScancode(code byte) {
	queue := scancodeQueue.Load()
	if queue == nil {
		kfmt.Printf("WARNING: scancode queue uninitialized\n")
		return
	}

	if !queue.Push(uint64(code)) {
		kfmt.Printf("WARNING: scancode queue full; dropping keyboard input\n")
		return
	}

	waker.Wake()
}

// keypressPrinter is a future that never completes. Each time it is polled
// it decodes and prints all buffered scancodes.
type keypressPrinter struct {
	queue   *ksync.BoundedQueue
	decoder Decoder
}

// PrintKeypresses initializes the scancode queue and returns a task that
// echoes typed characters to the console.
func PrintKeypresses() *task.Task {
	Init()
	return task.New(&keypressPrinter{queue: scancodeQueue.Load()})
}

func (p *keypressPrinter) Poll(ctx *task.Context) task.PollResult {
	for {
		code, ok := p.queue.Pop()
		if !ok {
			// Register before checking again so a scancode pushed in
			// between is not missed.
			waker.Register(ctx.Waker())
			if code, ok = p.queue.Pop(); !ok {
				return task.Pending
			}
		}

		if ch, printable := p.decoder.Decode(byte(code)); printable {
			kfmt.Printf("%c", ch)
		}
	}
}
