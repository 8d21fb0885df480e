package device

// Linux input event keycodes emitted by scanners in HID keyboard-emulation
// mode. Only the codes a scanner can produce are mapped; anything else is
// ignored by the decoder.
const (
	keyEnter      uint16 = 28
	keyLeftShift  uint16 = 42
	keyRightShift uint16 = 54
)

// Key event values from the input subsystem
const (
	keyStateUp   int32 = 0
	keyStateDown int32 = 1
)

var keyMap = map[uint16]byte{
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5',
	7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	12: '-', 13: '=',
	16: 'q', 17: 'w', 18: 'e', 19: 'r', 20: 't',
	21: 'y', 22: 'u', 23: 'i', 24: 'o', 25: 'p',
	26: '[', 27: ']',
	30: 'a', 31: 's', 32: 'd', 33: 'f', 34: 'g',
	35: 'h', 36: 'j', 37: 'k', 38: 'l',
	39: ';', 40: '\'', 41: '`', 43: '\\',
	44: 'z', 45: 'x', 46: 'c', 47: 'v', 48: 'b',
	49: 'n', 50: 'm',
	51: ',', 52: '.', 53: '/', 57: ' ',
}

var shiftKeyMap = map[uint16]byte{
	2: '!', 3: '@', 4: '#', 5: '$', 6: '%',
	7: '^', 8: '&', 9: '*', 10: '(', 11: ')',
	12: '_', 13: '+',
	16: 'Q', 17: 'W', 18: 'E', 19: 'R', 20: 'T',
	21: 'Y', 22: 'U', 23: 'I', 24: 'O', 25: 'P',
	26: '{', 27: '}',
	30: 'A', 31: 'S', 32: 'D', 33: 'F', 34: 'G',
	35: 'H', 36: 'J', 37: 'K', 38: 'L',
	39: ':', 40: '"', 41: '~', 43: '|',
	44: 'Z', 45: 'X', 46: 'C', 47: 'V', 48: 'B',
	49: 'N', 50: 'M',
	51: '<', 52: '>', 53: '?', 57: ' ',
}

// KeyDecoder translates key press events from a keyboard-emulation scanner
// into payload bytes, tracking modifier state across events. ENTER maps to
// the configured record delimiter.
type KeyDecoder struct {
	delimiter byte
	shift     bool
}

// NewKeyDecoder creates a KeyDecoder emitting delimiter on ENTER
func NewKeyDecoder(delimiter byte) *KeyDecoder {
	return &KeyDecoder{delimiter: delimiter}
}

// Translate consumes one EV_KEY event and returns the byte it produces, if
// any. Shift state is updated on both press and release; ordinary keys
// produce output on press only. Hold repeats are ignored: a scanner types
// each character exactly once.
func (d *KeyDecoder) Translate(code uint16, value int32) (byte, bool) {
	if code == keyLeftShift || code == keyRightShift {
		d.shift = value == keyStateDown
		return 0, false
	}

	if value != keyStateDown {
		return 0, false
	}

	if code == keyEnter {
		return d.delimiter, true
	}

	m := keyMap
	if d.shift {
		m = shiftKeyMap
	}
	b, ok := m[code]
	return b, ok
}

// Reset clears modifier state, called when a new session starts
func (d *KeyDecoder) Reset() {
	d.shift = false
}
