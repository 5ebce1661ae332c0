package vga

const (
	defaultFg = LightGrey
	defaultBg = Black
	tabWidth  = 4
)

// Writer is a terminal that renders text into a TextBuffer. It handles LF,
// CR, backspace and tab characters and scrolls the buffer once the last line
// is full. It can be used as the kfmt output sink.
type Writer struct {
	buf *TextBuffer

	width  uint16
	height uint16

	curX    uint16
	curY    uint16
	curAttr Attr
}

// Init attaches the writer to buf and moves the cursor to the top-left
// corner.
func (w *Writer) Init(buf *TextBuffer) {
	w.buf = buf
	w.width, w.height = buf.Dimensions()
	w.curX, w.curY = 0, 0

	// Default to lightgrey on black text.
	w.curAttr = MakeAttr(defaultFg, defaultBg)
}

// Clear blanks the entire buffer and resets the cursor.
func (w *Writer) Clear() {
	w.buf.Clear(0, 0, w.width, w.height, w.curAttr)
	w.curX, w.curY = 0, 0
}

// SetColor sets the attribute used for subsequent writes.
func (w *Writer) SetColor(fg, bg Attr) {
	w.curAttr = MakeAttr(fg, bg)
}

// Position returns the current cursor position (x, y).
func (w *Writer) Position() (uint16, uint16) {
	return w.curX, w.curY
}

// SetPosition sets the current cursor position to (x,y). Coordinates outside
// the buffer are clipped.
func (w *Writer) SetPosition(x, y uint16) {
	if x >= w.width {
		x = w.width - 1
	}

	if y >= w.height {
		y = w.height - 1
	}

	w.curX, w.curY = x, y
}

// Write implements io.Writer.
func (w *Writer) Write(data []byte) (int, error) {
	for _, b := range data {
		w.writeByte(b)
	}

	return len(data), nil
}

func (w *Writer) writeByte(b byte) {
	switch b {
	case '\r':
		w.cr()
	case '\n':
		w.cr()
		w.lf()
	case '\b':
		if w.curX > 0 {
			w.curX--
			w.buf.Put(clearChar, w.curAttr, w.curX, w.curY)
		}
	case '\t':
		for next := (w.curX/tabWidth + 1) * tabWidth; w.curX < next && w.curX < w.width; {
			w.writeByte(clearChar)
			if w.curX == 0 {
				// wrapped to the next line
				break
			}
		}
	default:
		w.buf.Put(b, w.curAttr, w.curX, w.curY)
		w.curX++
		if w.curX == w.width {
			w.cr()
			w.lf()
		}
	}
}

// cr resets the x coordinate of the terminal cursor to 0.
func (w *Writer) cr() {
	w.curX = 0
}

// lf advances the y coordinate of the terminal cursor by one line scrolling
// the terminal contents if the end of the last terminal line is reached.
func (w *Writer) lf() {
	if w.curY+1 < w.height {
		w.curY++
		return
	}

	w.buf.ScrollUp(1)
	w.buf.Clear(0, w.height-1, w.width, 1, w.curAttr)
}
