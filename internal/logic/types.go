// Package logic contains the pure gesture and escalation logic.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"strings"
	"time"
)

// Button identifies a physical button, or a chord of buttons joined by "+".
type Button string

const (
	ButtonVolumeUp   Button = "volume_up"
	ButtonVolumeDown Button = "volume_down"
	ButtonPower      Button = "power"
	ButtonBack       Button = "back"
)

// KnownButtons lists the physical buttons the daemon understands.
var KnownButtons = []Button{ButtonVolumeUp, ButtonVolumeDown, ButtonPower, ButtonBack}

// IsKnown reports whether b is a physical button id.
func (b Button) IsKnown() bool {
	for _, k := range KnownButtons {
		if b == k {
			return true
		}
	}
	return false
}

// ChordName returns the button id used for a chord of the given members.
func ChordName(members []Button) Button {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = string(m)
	}
	return Button(strings.Join(parts, "+"))
}

// Transition is the edge of a key event.
type Transition string

const (
	TransitionDown Transition = "DOWN"
	TransitionUp   Transition = "UP"
)

// KeyEvent is a single raw button event from an input surface.
type KeyEvent struct {
	Button     Button
	Transition Transition
	Time       time.Time
	// Repeat is set for OS auto-repeat while a key is held.
	Repeat bool
}

// Action is what the coordinator should do in response to an event.
type Action string

const (
	ActionNone          Action = "NONE"
	ActionPassThrough   Action = "PASS_THROUGH"
	ActionStartFakeCall Action = "START_FAKE_CALL"
	ActionStartSession  Action = "START_SESSION"
	ActionEscalate      Action = "ESCALATE"
	ActionCancelSession Action = "CANCEL_SESSION"
)

// ParseAction converts a configuration string to an Action.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToUpper(s))
	switch a {
	case ActionStartFakeCall, ActionStartSession, ActionEscalate, ActionCancelSession:
		return a, true
	}
	return "", false
}

// Decision is the classification of one raw event.
type Decision struct {
	Action Action
	// Gesture is the gesture that produced Action.
	Gesture string
	// Gestures names every gesture that fired on the event.
	Gestures []string
	// Consume suggests that a context able to intercept input should
	// swallow the event: a detector recognized it and it produced an
	// action that was applied.
	Consume bool
}

// Sink receives raw events from a delivery context.
type Sink interface {
	OnRawEvent(ev KeyEvent) Decision
}

// Status is the lifecycle state of an escalation session.
type Status string

const (
	StatusArmed     Status = "ARMED"
	StatusCancelled Status = "CANCELLED"
	StatusFired     Status = "FIRED"
)

// Hint tells the alert collaborator what to play.
type Hint string

const (
	// HintAlert is the one-shot alert on start and on promotion.
	HintAlert Hint = "ALERT"
	// HintShortAlert is the shrinking-time warning on late ticks.
	HintShortAlert Hint = "SHORT_ALERT"
)

// ActionEvent notifies collaborators of a dispatched action.
type ActionEvent struct {
	Time      time.Time
	Action    Action
	SessionID string
	Source    string
	Gesture   string
	Level     int
	Hints     []Hint

	// SecondsRemaining is the countdown left when a session action was
	// applied. Zero for a fake call.
	SecondsRemaining int
}

// TickEvent notifies collaborators of a countdown tick.
type TickEvent struct {
	Time             time.Time
	SessionID        string
	SecondsRemaining int
	Level            int
	Hints            []Hint
}

// TerminalEvent notifies collaborators that a session ended.
type TerminalEvent struct {
	SessionID         string
	Source            string
	Status            Status
	Level             int
	AdditionalPresses int
	StartedAt         time.Time
	EndedAt           time.Time
	Reason            string
	// Responses is only set for StatusFired.
	Responses []Response
}

// EventCounts tracks dispatched actions and outcomes since startup.
type EventCounts struct {
	FakeCalls   int
	Sessions    int
	Escalations int
	Fired       int
	Cancelled   int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
}
