package main

// scancodes maps the characters a US keyboard can produce to their scancode
// set 1 make code and whether shift must be held.
var scancodes = buildScancodeTable()

type keyCode struct {
	code  byte
	shift bool
}

const (
	unshifted = "\x00\x00" + "1234567890-=" + "\b\t" + "qwertyuiop[]" + "\n\x00" +
		"asdfghjkl;'`" + "\x00\\" + "zxcvbnm,./" + "\x00*\x00 "
	shifted = "\x00\x00" + "!@#$%^&*()_+" + "\b\t" + "QWERTYUIOP{}" + "\n\x00" +
		"ASDFGHJKL:\"~" + "\x00|" + "ZXCVBNM<>?" + "\x00*\x00 "

	leftShiftMake  = 0x2a
	leftShiftBreak = 0xaa
	releaseBit     = 0x80
)

func buildScancodeTable() map[rune]keyCode {
	table := make(map[rune]keyCode)
	for code := len(shifted) - 1; code >= 0; code-- {
		if ch := shifted[code]; ch != 0 {
			table[rune(ch)] = keyCode{code: byte(code), shift: true}
		}
	}

	// Unshifted entries win for keys that look the same either way.
	for code := len(unshifted) - 1; code >= 0; code-- {
		if ch := unshifted[code]; ch != 0 {
			table[rune(ch)] = keyCode{code: byte(code)}
		}
	}

	// Terminals send CR for the enter key and DEL for backspace.
	table['\r'] = table['\n']
	table[0x7f] = table['\b']

	return table
}

// encodeKey returns the press and release scancodes for r. Characters that
// cannot be typed on a US keyboard produce no scancodes.
func encodeKey(r rune) []byte {
	key, ok := scancodes[r]
	if !ok {
		return nil
	}

	if key.shift {
		return []byte{leftShiftMake, key.code, key.code | releaseBit, leftShiftBreak}
	}
	return []byte{key.code, key.code | releaseBit}
}
