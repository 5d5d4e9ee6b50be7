package mqtt

import (
	"sync"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// FakePublisher records published events for test assertions.
// Read the recorded slices only after publishing has stopped.
type FakePublisher struct {
	mu sync.Mutex

	// Actions, Ticks and Outcomes contain the published events in order.
	Actions  []logic.ActionEvent
	Ticks    []logic.TickEvent
	Outcomes []logic.TerminalEvent

	// Payloads contains the JSON payloads of actions, ticks and outcomes.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by the event publish methods.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishAction records the action event.
func (f *FakePublisher) PublishAction(event logic.ActionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatActionPayload(event)
	if err != nil {
		return err
	}
	f.Actions = append(f.Actions, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishTick records the tick event.
func (f *FakePublisher) PublishTick(event logic.TickEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatTickPayload(event)
	if err != nil {
		return err
	}
	f.Ticks = append(f.Ticks, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishOutcome records the terminal event.
func (f *FakePublisher) PublishOutcome(event logic.TerminalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatOutcomePayload(event)
	if err != nil {
		return err
	}
	f.Outcomes = append(f.Outcomes, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// OutcomeCount returns the number of recorded outcomes. Safe to call while
// publishing is in progress.
func (f *FakePublisher) OutcomeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Outcomes)
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Actions = nil
	f.Ticks = nil
	f.Outcomes = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
