package term

// Key is a decoded keystroke. Printable keys carry their rune value;
// control and arrow keys use the named constants.
type Key rune

const (
	KeyCtrlA     Key = 0x01
	KeyCtrlD     Key = 0x04
	KeyCtrlR     Key = 0x12
	KeyCtrlX     Key = 0x18
	KeyTab       Key = 0x09
	KeyEnter     Key = 0x0d
	KeyEscape    Key = 0x1b
	KeyBackspace Key = 0x7f
)

// Arrow keys are mapped above the Unicode range so they can never collide
// with printable input.
const (
	KeyUp Key = 0x110000 + iota
	KeyDown
	KeyRight
	KeyLeft
)

// Printable reports whether k is a plain printable character.
func (k Key) Printable() bool {
	return k >= 0x20 && k != KeyBackspace && k < 0x110000
}

// KeyDecoder turns a raw terminal byte stream into keystrokes, buffering
// partial escape sequences across reads.
type KeyDecoder struct {
	esc []byte
}

// Feed decodes the next chunk of input bytes into keys.
func (d *KeyDecoder) Feed(data []byte) []Key {
	var keys []Key
	for _, b := range data {
		if len(d.esc) > 0 {
			d.esc = append(d.esc, b)
			if key, done := d.decodeEscape(); done {
				d.esc = nil
				if key != 0 {
					keys = append(keys, key)
				}
			}
			continue
		}
		if b == 0x1b {
			d.esc = []byte{b}
			continue
		}
		if b == '\n' {
			keys = append(keys, KeyEnter)
			continue
		}
		keys = append(keys, Key(b))
	}
	return keys
}

// decodeEscape inspects the buffered escape sequence. done is false while
// the sequence may still grow; a zero key with done=true discards an
// unrecognized sequence.
func (d *KeyDecoder) decodeEscape() (key Key, done bool) {
	if len(d.esc) < 2 {
		return 0, false
	}
	if d.esc[1] != '[' && d.esc[1] != 'O' {
		// Bare ESC followed by an ordinary key: report ESC, requeue nothing.
		return KeyEscape, true
	}
	if len(d.esc) < 3 {
		return 0, false
	}
	switch d.esc[2] {
	case 'A':
		return KeyUp, true
	case 'B':
		return KeyDown, true
	case 'C':
		return KeyRight, true
	case 'D':
		return KeyLeft, true
	}
	return 0, true
}
