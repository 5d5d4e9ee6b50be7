package evdev

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
	"golang.org/x/sys/unix"
)

func encode(t *testing.T, ev inputEvent) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, ev); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func keyEvent(code uint16, value int32, at time.Time) inputEvent {
	return inputEvent{
		Time:  unix.NsecToTimeval(at.UnixNano()),
		Type:  evKey,
		Code:  code,
		Value: value,
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 250_000_000, time.UTC)
	want := keyEvent(KeyVolumeDown, valuePress, at)

	got, err := decode(encode(t, want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	if _, err := decode(make([]byte, eventSize-1)); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestTranslate(t *testing.T) {
	keys, _ := ParseKeymap(DefaultKeys)
	at := time.Date(2026, 1, 1, 12, 0, 0, 250_000_000, time.UTC)

	tests := []struct {
		name   string
		ev     inputEvent
		want   logic.KeyEvent
		wantOK bool
	}{
		{
			name:   "press",
			ev:     keyEvent(KeyVolumeDown, valuePress, at),
			want:   logic.KeyEvent{Button: logic.ButtonVolumeDown, Transition: logic.TransitionDown, Time: at},
			wantOK: true,
		},
		{
			name:   "release",
			ev:     keyEvent(KeyBack, valueRelease, at),
			want:   logic.KeyEvent{Button: logic.ButtonBack, Transition: logic.TransitionUp, Time: at},
			wantOK: true,
		},
		{
			name:   "repeat",
			ev:     keyEvent(KeyVolumeUp, valueRepeat, at),
			want:   logic.KeyEvent{Button: logic.ButtonVolumeUp, Transition: logic.TransitionDown, Time: at, Repeat: true},
			wantOK: true,
		},
		{
			name: "unmapped key",
			ev:   keyEvent(30, valuePress, at),
		},
		{
			name: "sync event",
			ev:   inputEvent{Type: 0, Code: 0, Value: 0},
		},
		{
			name: "unknown value",
			ev:   keyEvent(KeyPower, 7, at),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := translate(tt.ev, keys)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Button != tt.want.Button || got.Transition != tt.want.Transition || got.Repeat != tt.want.Repeat {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if !got.Time.Equal(tt.want.Time) {
				t.Errorf("time: got %v, want %v", got.Time, tt.want.Time)
			}
		})
	}
}
