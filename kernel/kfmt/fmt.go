// Package kfmt provides allocation-free formatted output for the kernel.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize is large enough to hold a 64-bit value in base 8 plus a sign
// and the maximum supported padding.
const numBufSize = 32

var (
	errMissingArg   = []byte("%!(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")
	digits          = []byte("0123456789abcdef")

	numBuf [numBufSize]byte

	// oneByte is a shared buffer for emitting single characters without
	// converting string slices to []byte (which allocates).
	oneByte = []byte{0}

	// earlyPrintBuffer captures Printf output until an output sink is
	// registered via SetOutputSink.
	earlyPrintBuffer ringBuffer

	// outputSink receives all Printf output. When nil, output is sent to
	// earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink redirects Printf output to w and replays any output that was
// buffered before a sink was available.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the currently active output sink.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf writes a formatted string to the active output sink. It supports
// the following subset of the fmt verbs:
//
//	%s  string or []byte
//	%c  a single byte or rune (runes outside the ASCII range print as '?')
//	%d  base 10 integer
//	%o  base 8 integer
//	%x  base 16 integer, lower-case
//	%t  boolean
//	%%  a literal percent sign
//
// An optional decimal width may precede the verb. Strings and base 10
// integers are left-padded with spaces; base 8 and base 16 integers, and any
// integer whose width starts with a '0', are left-padded with zeroes.
//
// Printf does not use reflection so it cannot print arbitrary types and it
// never consults fmt.Stringer implementations.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes its output to w. A nil w writes to
// the early print buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex  int
		width     int
		zeroPad   bool
		fmtLen    = len(format)
		cur, verb int
	)

	for cur < fmtLen {
		if format[cur] != '%' {
			writeByte(w, format[cur])
			cur++
			continue
		}

		width, zeroPad = 0, false
		for verb = cur + 1; verb < fmtLen && format[verb] >= '0' && format[verb] <= '9'; verb++ {
			if format[verb] == '0' && width == 0 {
				zeroPad = true
				continue
			}
			width = width*10 + int(format[verb]-'0')
		}

		if verb == fmtLen {
			doWrite(w, errNoVerb)
			return
		}

		switch ch := format[verb]; ch {
		case '%':
			writeByte(w, '%')
		case 's', 'c', 'd', 'o', 'x', 't':
			if argIndex >= len(args) {
				doWrite(w, errMissingArg)
				break
			}

			switch ch {
			case 's':
				fmtString(w, args[argIndex], width)
			case 'c':
				fmtChar(w, args[argIndex])
			case 'd':
				fmtInt(w, args[argIndex], 10, width, zeroPad)
			case 'o':
				fmtInt(w, args[argIndex], 8, width, true)
			case 'x':
				fmtInt(w, args[argIndex], 16, width, true)
			case 't':
				fmtBool(w, args[argIndex])
			}
			argIndex++
		default:
			doWrite(w, errNoVerb)
		}

		cur = verb + 1
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case b:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

func fmtChar(w io.Writer, v interface{}) {
	switch ch := v.(type) {
	case byte:
		writeByte(w, ch)
	case rune:
		if ch < 0 || ch > 0x7f {
			ch = '?'
		}
		writeByte(w, byte(ch))
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch str := v.(type) {
	case string:
		pad(w, ' ', width-len(str))
		for i := 0; i < len(str); i++ {
			writeByte(w, str[i])
		}
	case []byte:
		pad(w, ' ', width-len(str))
		doWrite(w, str)
	default:
		doWrite(w, errWrongArgType)
	}
}

func pad(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// fmtInt formats v in the requested base. Negative values are only possible
// for the signed integer types.
func fmtInt(w io.Writer, v interface{}, base uint64, width int, zeroPad bool) {
	var (
		val      uint64
		negative bool
	)

	switch n := v.(type) {
	case uint8:
		val = uint64(n)
	case uint16:
		val = uint64(n)
	case uint32:
		val = uint64(n)
	case uint64:
		val = n
	case uint:
		val = uint64(n)
	case uintptr:
		val = uint64(n)
	case int8:
		val, negative = abs(int64(n))
	case int16:
		val, negative = abs(int64(n))
	case int32:
		val, negative = abs(int64(n))
	case int64:
		val, negative = abs(n)
	case int:
		val, negative = abs(int64(n))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if width > numBufSize-1 {
		width = numBufSize - 1
	}

	// Digits are generated right-to-left starting at the end of numBuf.
	start := numBufSize
	for {
		start--
		numBuf[start] = digits[val%base]
		val /= base
		if val == 0 {
			break
		}
	}

	digitCount := numBufSize - start
	if negative {
		digitCount++
	}

	switch {
	case zeroPad:
		for ; numBufSize-start < width-boolToInt(negative); start-- {
			numBuf[start-1] = '0'
		}
		if negative {
			start--
			numBuf[start] = '-'
		}
	default:
		if negative {
			start--
			numBuf[start] = '-'
		}
		pad(w, ' ', width-digitCount)
	}

	doWrite(w, numBuf[start:])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func writeByte(w io.Writer, b byte) {
	oneByte[0] = b
	doWrite(w, oneByte)
}

// doWrite hides p from escape analysis. The output sink is an interface so
// the compiler cannot prove that p does not escape; without this indirection
// every Printf call would allocate, which is fatal before the heap exists.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		_, _ = w.Write(p)
		return
	}
	_, _ = earlyPrintBuffer.Write(p)
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
