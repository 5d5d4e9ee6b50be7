package gpio

import (
	"reflect"
	"testing"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
)

func TestParsePinsDefaults(t *testing.T) {
	pins, err := ParsePins(DefaultPins)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pins) != 4 {
		t.Fatalf("expected 4 pins, got %d", len(pins))
	}
	if pins[27] != logic.ButtonVolumeDown {
		t.Errorf("offset 27: got %s, want volume_down", pins[27])
	}
}

func TestParsePinsRejectsUnknownButton(t *testing.T) {
	if _, err := ParsePins(map[string]int{"home": 5}); err == nil {
		t.Error("expected error for unknown button")
	}
}

func TestParsePinsRejectsSharedOffset(t *testing.T) {
	_, err := ParsePins(map[string]int{"back": 5, "power": 5})
	if err == nil {
		t.Error("expected error for shared offset")
	}
}

func TestParsePinsRejectsNegativeOffset(t *testing.T) {
	if _, err := ParsePins(map[string]int{"back": -1}); err == nil {
		t.Error("expected error for negative offset")
	}
}

func TestOffsetsSorted(t *testing.T) {
	pins := map[int]logic.Button{23: logic.ButtonBack, 17: logic.ButtonVolumeUp, 22: logic.ButtonPower}
	if got := Offsets(pins); !reflect.DeepEqual(got, []int{17, 22, 23}) {
		t.Errorf("Offsets = %v", got)
	}
}

func TestToKeyEvent(t *testing.T) {
	pins := map[int]logic.Button{27: logic.ButtonVolumeDown}
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	ev, ok := toKeyEvent(pins, edge{Offset: 27, Rising: true}, at)
	if !ok {
		t.Fatal("mapped offset should translate")
	}
	want := logic.KeyEvent{Button: logic.ButtonVolumeDown, Transition: logic.TransitionDown, Time: at}
	if ev != want {
		t.Errorf("got %+v, want %+v", ev, want)
	}

	ev, _ = toKeyEvent(pins, edge{Offset: 27, Rising: false}, at)
	if ev.Transition != logic.TransitionUp {
		t.Errorf("falling edge: got %s, want UP", ev.Transition)
	}

	if _, ok := toKeyEvent(pins, edge{Offset: 4, Rising: true}, at); ok {
		t.Error("unmapped offset should be ignored")
	}
}

func TestAnchorKeepsKernelIntervals(t *testing.T) {
	wall := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	now := func() time.Time {
		calls++
		// Later calls would drift; the anchor must not use them.
		return wall.Add(time.Duration(calls-1) * time.Hour)
	}

	var a anchor
	first := a.at(5*time.Second, now)
	second := a.at(5*time.Second+150*time.Millisecond, now)

	if !first.Equal(wall) {
		t.Errorf("first: got %v, want %v", first, wall)
	}
	if got := second.Sub(first); got != 150*time.Millisecond {
		t.Errorf("interval: got %v, want 150ms", got)
	}
	if calls != 1 {
		t.Errorf("clock read %d times, want 1", calls)
	}
}

func TestFakeSource(t *testing.T) {
	f := NewFakeSource(2)
	ev := logic.KeyEvent{Button: logic.ButtonBack, Transition: logic.TransitionDown}

	if !f.Emit(ev) || !f.Emit(ev) {
		t.Fatal("emit should succeed while there is room")
	}
	if f.Emit(ev) {
		t.Error("emit should fail when full")
	}
	if got := <-f.Events(); got != ev {
		t.Errorf("got %+v, want %+v", got, ev)
	}

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed() {
		t.Error("should be closed after Close()")
	}
	if f.Emit(ev) {
		t.Error("emit after close should fail")
	}

	// Remaining event is still delivered, then the channel closes.
	<-f.Events()
	if _, ok := <-f.Events(); ok {
		t.Error("channel should be closed")
	}
}
