// Package gpio watches push buttons wired to GPIO lines and turns their
// edges into key events.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"sort"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// Source delivers key events from an input surface.
type Source interface {
	// Events returns the channel events are delivered on. It is closed
	// when the source is closed.
	Events() <-chan logic.KeyEvent

	// Close releases the input resources.
	Close() error
}

// Default line settings (BCM numbering). Buttons pull the line to ground.
const (
	DefaultChip     = "gpiochip0"
	DefaultDebounce = 10 * time.Millisecond
)

// DefaultPins maps BCM offsets to buttons for the stock wiring.
var DefaultPins = map[string]int{
	string(logic.ButtonVolumeUp):   17,
	string(logic.ButtonVolumeDown): 27,
	string(logic.ButtonPower):      22,
	string(logic.ButtonBack):       23,
}

// ParsePins converts a button-to-offset table into the offset-to-button map
// the watcher uses. Unknown buttons and shared offsets are rejected.
func ParsePins(pins map[string]int) (map[int]logic.Button, error) {
	out := make(map[int]logic.Button, len(pins))
	for name, offset := range pins {
		b := logic.Button(name)
		if !b.IsKnown() {
			return nil, fmt.Errorf("gpio: unknown button %q", name)
		}
		if offset < 0 {
			return nil, fmt.Errorf("gpio: button %s: invalid offset %d", name, offset)
		}
		if prev, ok := out[offset]; ok {
			return nil, fmt.Errorf("gpio: offset %d used by both %s and %s", offset, prev, b)
		}
		out[offset] = b
	}
	return out, nil
}

// Offsets returns the pin offsets in ascending order.
func Offsets(pins map[int]logic.Button) []int {
	offsets := make([]int, 0, len(pins))
	for o := range pins {
		offsets = append(offsets, o)
	}
	sort.Ints(offsets)
	return offsets
}
