package evdev

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
	"golang.org/x/sys/unix"
)

// inputEvent matches the Linux input_event struct. unix.Timeval carries the
// platform word size, so the layout matches the running kernel.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

var eventSize = binary.Size(inputEvent{})

func decode(buf []byte) (inputEvent, error) {
	var ev inputEvent
	if len(buf) < eventSize {
		return ev, fmt.Errorf("evdev: short event: %d bytes, want %d", len(buf), eventSize)
	}
	if err := binary.Read(bytes.NewReader(buf[:eventSize]), binary.NativeEndian, &ev); err != nil {
		return ev, fmt.Errorf("evdev: decode event: %w", err)
	}
	return ev, nil
}

// translate converts a raw event. ok is false for non-key events and keys
// not in the keymap.
func translate(ev inputEvent, keys map[uint16]logic.Button) (logic.KeyEvent, bool) {
	if ev.Type != evKey {
		return logic.KeyEvent{}, false
	}
	b, ok := keys[ev.Code]
	if !ok {
		return logic.KeyEvent{}, false
	}

	sec, nsec := ev.Time.Unix()
	out := logic.KeyEvent{Button: b, Time: time.Unix(sec, nsec)}
	switch ev.Value {
	case valuePress:
		out.Transition = logic.TransitionDown
	case valueRepeat:
		out.Transition = logic.TransitionDown
		out.Repeat = true
	case valueRelease:
		out.Transition = logic.TransitionUp
	default:
		return logic.KeyEvent{}, false
	}
	return out, true
}
