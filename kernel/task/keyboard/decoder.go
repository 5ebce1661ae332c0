package keyboard

// Scancode set 1 codes that carry state rather than characters.
const (
	scLeftShift         = 0x2a
	scRightShift        = 0x36
	scExtendedPrefix    = 0xe0
	scReleaseBit        = 0x80
	scancodeTableLength = 0x3a
)

// US layout for scancode set 1 make codes. Zero entries have no printable
// representation.
const (
	unshiftedKeys = "\x00\x00" + "1234567890-=" + "\b\t" + "qwertyuiop[]" + "\n\x00" +
		"asdfghjkl;'`" + "\x00\\" + "zxcvbnm,./" + "\x00*\x00 "
	shiftedKeys = "\x00\x00" + "!@#$%^&*()_+" + "\b\t" + "QWERTYUIOP{}" + "\n\x00" +
		"ASDFGHJKL:\"~" + "\x00|" + "ZXCVBNM<>?" + "\x00*\x00 "
)

// Decoder turns a stream of scancode set 1 bytes into characters using a US
// keyboard layout. The zero value is ready to use.
type Decoder struct {
	shift    bool
	extended bool
}

// Decode processes one scancode byte. It returns the typed character and
// true if the byte completes a key press that maps to a printable
// character.
func (d *Decoder) Decode(code byte) (byte, bool) {
	if code == scExtendedPrefix {
		d.extended = true
		return 0, false
	}

	// Extended keys (arrows, keypad enter, right ctrl...) are not mapped.
	if d.extended {
		d.extended = false
		return 0, false
	}

	released := code&scReleaseBit != 0
	code &^= scReleaseBit

	switch code {
	case scLeftShift, scRightShift:
		d.shift = !released
		return 0, false
	}

	if released || code >= scancodeTableLength {
		return 0, false
	}

	table := unshiftedKeys
	if d.shift {
		table = shiftedKeys
	}

	if ch := table[code]; ch != 0 {
		return ch, true
	}
	return 0, false
}
