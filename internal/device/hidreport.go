package device

// HID boot keyboard report layout: byte 0 modifiers, byte 1 reserved,
// bytes 2..7 up to six concurrently pressed usage IDs. Scanners in keyboard
// emulation press one key per report and follow with an all-zero report.

const (
	hidModLeftShift  = 0x02
	hidModRightShift = 0x20
	hidUsageEnter    = 0x28
)

var hidKeyMap = map[byte]byte{
	0x04: 'a', 0x05: 'b', 0x06: 'c', 0x07: 'd', 0x08: 'e', 0x09: 'f',
	0x0a: 'g', 0x0b: 'h', 0x0c: 'i', 0x0d: 'j', 0x0e: 'k', 0x0f: 'l',
	0x10: 'm', 0x11: 'n', 0x12: 'o', 0x13: 'p', 0x14: 'q', 0x15: 'r',
	0x16: 's', 0x17: 't', 0x18: 'u', 0x19: 'v', 0x1a: 'w', 0x1b: 'x',
	0x1c: 'y', 0x1d: 'z',
	0x1e: '1', 0x1f: '2', 0x20: '3', 0x21: '4', 0x22: '5',
	0x23: '6', 0x24: '7', 0x25: '8', 0x26: '9', 0x27: '0',
	0x2c: ' ', 0x2d: '-', 0x2e: '=', 0x2f: '[', 0x30: ']',
	0x31: '\\', 0x33: ';', 0x34: '\'', 0x35: '`', 0x36: ',',
	0x37: '.', 0x38: '/',
}

var hidShiftKeyMap = map[byte]byte{
	0x04: 'A', 0x05: 'B', 0x06: 'C', 0x07: 'D', 0x08: 'E', 0x09: 'F',
	0x0a: 'G', 0x0b: 'H', 0x0c: 'I', 0x0d: 'J', 0x0e: 'K', 0x0f: 'L',
	0x10: 'M', 0x11: 'N', 0x12: 'O', 0x13: 'P', 0x14: 'Q', 0x15: 'R',
	0x16: 'S', 0x17: 'T', 0x18: 'U', 0x19: 'V', 0x1a: 'W', 0x1b: 'X',
	0x1c: 'Y', 0x1d: 'Z',
	0x1e: '!', 0x1f: '@', 0x20: '#', 0x21: '$', 0x22: '%',
	0x23: '^', 0x24: '&', 0x25: '*', 0x26: '(', 0x27: ')',
	0x2c: ' ', 0x2d: '_', 0x2e: '+', 0x2f: '{', 0x30: '}',
	0x31: '|', 0x33: ':', 0x34: '"', 0x35: '~', 0x36: '<',
	0x37: '>', 0x38: '?',
}

// bootReportDecoder turns HID boot keyboard reports into payload bytes.
// It tracks the previous report so held keys are not re-emitted across
// consecutive reports (6-key rollover).
type bootReportDecoder struct {
	delimiter byte
	prev      [6]byte
}

func newBootReportDecoder(delimiter byte) *bootReportDecoder {
	return &bootReportDecoder{delimiter: delimiter}
}

// Decode consumes one report and returns the bytes for newly pressed keys
func (d *bootReportDecoder) Decode(report []byte) []byte {
	if len(report) < 8 {
		return nil
	}

	shift := report[0]&(hidModLeftShift|hidModRightShift) != 0

	var out []byte
	for _, usage := range report[2:8] {
		if usage == 0 || d.wasPressed(usage) {
			continue
		}
		if usage == hidUsageEnter {
			out = append(out, d.delimiter)
			continue
		}
		m := hidKeyMap
		if shift {
			m = hidShiftKeyMap
		}
		if b, ok := m[usage]; ok {
			out = append(out, b)
		}
	}

	copy(d.prev[:], report[2:8])
	return out
}

func (d *bootReportDecoder) wasPressed(usage byte) bool {
	for _, p := range d.prev {
		if p == usage {
			return true
		}
	}
	return false
}
