package gpio

import (
	"sync"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// FakeSource is a test double that delivers scripted key events.
type FakeSource struct {
	mu     sync.Mutex
	events chan logic.KeyEvent
	closed bool

	// CloseError, if set, will be returned by Close()
	CloseError error
}

// NewFakeSource creates a FakeSource with room for size pending events.
func NewFakeSource(size int) *FakeSource {
	return &FakeSource{events: make(chan logic.KeyEvent, size)}
}

// Emit queues an event. It returns false if the source is closed or full.
func (f *FakeSource) Emit(ev logic.KeyEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.events <- ev:
		return true
	default:
		return false
	}
}

// Events returns the event channel.
func (f *FakeSource) Events() <-chan logic.KeyEvent {
	return f.events
}

// Close closes the event channel.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return f.CloseError
}

// Closed reports whether Close was called.
func (f *FakeSource) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
