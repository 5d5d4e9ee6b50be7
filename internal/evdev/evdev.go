// Package evdev reads button presses from a Linux input device node such
// as /dev/input/event0.
package evdev

import (
	"fmt"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// Key codes from <linux/input-event-codes.h>.
const (
	KeyVolumeDown = 114
	KeyVolumeUp   = 115
	KeyPower      = 116
	KeyBack       = 158
)

const (
	evKey = 0x01

	valueRelease = 0
	valuePress   = 1
	valueRepeat  = 2
)

// DefaultKeys maps buttons to their standard key codes.
var DefaultKeys = map[string]int{
	string(logic.ButtonVolumeUp):   KeyVolumeUp,
	string(logic.ButtonVolumeDown): KeyVolumeDown,
	string(logic.ButtonPower):      KeyPower,
	string(logic.ButtonBack):       KeyBack,
}

// ParseKeymap converts a button-to-code table into the code-to-button map
// the reader uses.
func ParseKeymap(keys map[string]int) (map[uint16]logic.Button, error) {
	out := make(map[uint16]logic.Button, len(keys))
	for name, code := range keys {
		b := logic.Button(name)
		if !b.IsKnown() {
			return nil, fmt.Errorf("evdev: unknown button %q", name)
		}
		if code <= 0 || code > 0x2ff {
			return nil, fmt.Errorf("evdev: button %s: invalid key code %d", name, code)
		}
		if prev, ok := out[uint16(code)]; ok {
			return nil, fmt.Errorf("evdev: key code %d used by both %s and %s", code, prev, b)
		}
		out[uint16(code)] = b
	}
	return out, nil
}
