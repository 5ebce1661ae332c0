package kfmt

import "io"

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line.
type PrefixWriter struct {
	// A writer where all writes get sent to.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	midLine bool
}

// Write forwards p to the sink, emitting Prefix before the first byte of
// every line. The returned byte count excludes the injected prefixes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written, lineStart int

	for i := 0; i < len(p); i++ {
		if p[i] != '\n' {
			continue
		}

		n, err := w.writeLine(p[lineStart : i+1])
		written += n
		if err != nil {
			return written, err
		}
		w.midLine = false
		lineStart = i + 1
	}

	if lineStart < len(p) {
		n, err := w.writeLine(p[lineStart:])
		written += n
		if err != nil {
			return written, err
		}
		w.midLine = true
	}

	return written, nil
}

func (w *PrefixWriter) writeLine(line []byte) (int, error) {
	if !w.midLine {
		if _, err := w.Sink.Write(w.Prefix); err != nil {
			return 0, err
		}
	}
	return w.Sink.Write(line)
}
