package gpio

import (
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// edge is a line edge in logical terms: with the lines requested active-low
// a rising edge means the button went down.
type edge struct {
	Offset    int
	Rising    bool
	Timestamp time.Duration // kernel monotonic time
}

// anchor maps kernel event timestamps onto wall-clock time. The first
// event pins the offset, so intervals between events keep kernel precision.
type anchor struct {
	set  bool
	wall time.Time
	mono time.Duration
}

func (a *anchor) at(mono time.Duration, now func() time.Time) time.Time {
	if !a.set {
		a.set = true
		a.wall = now()
		a.mono = mono
	}
	return a.wall.Add(mono - a.mono)
}

// toKeyEvent translates an edge. ok is false for lines not in the pin map.
func toKeyEvent(pins map[int]logic.Button, e edge, at time.Time) (logic.KeyEvent, bool) {
	b, ok := pins[e.Offset]
	if !ok {
		return logic.KeyEvent{}, false
	}
	tr := logic.TransitionUp
	if e.Rising {
		tr = logic.TransitionDown
	}
	return logic.KeyEvent{Button: b, Transition: tr, Time: at}, true
}
