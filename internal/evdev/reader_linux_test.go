package evdev

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
)

func TestReaderStreamsKeyEvents(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer pw.Close()

	keys, _ := ParseKeymap(DefaultKeys)
	r := newReader(pr, "pipe", keys, slog.New(slog.NewTextHandler(io.Discard, nil)))

	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var batch []byte
	batch = append(batch, encode(t, keyEvent(KeyVolumeDown, valuePress, at))...)
	batch = append(batch, encode(t, inputEvent{})...) // SYN_REPORT
	batch = append(batch, encode(t, keyEvent(KeyVolumeDown, valueRelease, at.Add(80*time.Millisecond)))...)
	if _, err := pw.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := []logic.Transition{logic.TransitionDown, logic.TransitionUp}
	for i, tr := range want {
		select {
		case ev := <-r.Events():
			if ev.Button != logic.ButtonVolumeDown || ev.Transition != tr {
				t.Errorf("event %d: got %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d: timed out", i)
		}
	}

	if err := r.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if _, ok := <-r.Events(); ok {
		t.Error("events channel should be closed after Close")
	}
	if err := r.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
