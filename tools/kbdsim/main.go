// Command kbdsim runs the keyboard task on the host. Keys typed in the
// terminal are translated to scancode set 1 sequences and delivered the same
// way the keyboard interrupt handler delivers them, which exercises the
// scancode queue, the wake path and the executor without booting a kernel.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"taskos/kernel/kfmt"
	"taskos/kernel/task"
	"taskos/kernel/task/keyboard"

	"github.com/mattn/go-tty"
	"github.com/pkg/errors"
)

const ctrlC = 3

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[kbdsim] error: %s\n", err.Error())
	os.Exit(1)
}

// crlfWriter expands LF to CRLF since the terminal is in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	for i, b := range p {
		var err error
		if b == '\n' {
			_, err = c.w.Write([]byte{'\r', '\n'})
		} else {
			_, err = c.w.Write(p[i : i+1])
		}
		if err != nil {
			return i, err
		}
	}

	return len(p), nil
}

func main() {
	queueCap := flag.Uint64("ready-queue", task.ReadyQueueCapacity, "capacity of the executor ready queue")
	flag.Parse()

	if err := run(*queueCap); err != nil {
		exit(err)
	}
}

func run(queueCap uint64) error {
	term, err := tty.Open()
	if err != nil {
		return errors.Wrap(err, "opening terminal")
	}
	defer term.Close()

	restore, err := term.Raw()
	if err != nil {
		return errors.Wrap(err, "switching terminal to raw mode")
	}
	defer restore()

	kfmt.SetOutputSink(crlfWriter{w: term.Output()})
	kfmt.Printf("[kbdsim] type to generate keyboard interrupts; ctrl+c exits\n")

	executor := task.NewExecutor(queueCap)
	executor.Spawn(keyboard.PrintKeypresses())

	irq := make(chan struct{}, 1)
	readErr := make(chan error, 1)
	go func() {
		for {
			r, err := term.ReadRune()
			if err != nil {
				readErr <- errors.Wrap(err, "reading terminal input")
				return
			}
			if r == ctrlC {
				readErr <- nil
				return
			}

			for _, code := range encodeKey(r) {
				keyboard.AddScancode(code)
			}

			select {
			case irq <- struct{}{}:
			default:
			}
		}
	}()

	for {
		executor.RunReadyTasks()

		// Block like a halted CPU until the next simulated interrupt.
		select {
		case <-irq:
		case err = <-readErr:
			kfmt.Printf("\n")
			return err
		}
	}
}
