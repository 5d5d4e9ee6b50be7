package logic

import (
	"errors"
	"fmt"
	"time"
)

// GestureConfig describes one press gesture. It is immutable once handed to
// a Detector.
type GestureConfig struct {
	Name    string
	Buttons []Button
	// RequiredPresses presses within the window fire the gesture.
	RequiredPresses int
	// PressWindow is the largest allowed gap between consecutive presses.
	// Zero disables window expiry.
	PressWindow time.Duration
	// MinGap filters hardware bounce between counted presses.
	MinGap time.Duration
	// Cooldown blocks counting after a fire.
	Cooldown time.Duration
	// ChordWindow bounds how far apart chord members may go down.
	ChordWindow   time.Duration
	IgnoreRepeats bool
	Trigger       Transition
	Action        Action
}

// Button returns the id the detector matches: the single button, or the
// chord name when several buttons are configured.
func (c GestureConfig) Button() Button {
	if len(c.Buttons) == 1 {
		return c.Buttons[0]
	}
	return ChordName(c.Buttons)
}

// IsChord reports whether the gesture needs several buttons held together.
func (c GestureConfig) IsChord() bool {
	return len(c.Buttons) > 1
}

// Validate checks the config for values the detector cannot work with.
func (c GestureConfig) Validate() error {
	if c.Name == "" {
		return errors.New("gesture: name is required")
	}
	if len(c.Buttons) == 0 {
		return fmt.Errorf("gesture %s: at least one button is required", c.Name)
	}
	for _, b := range c.Buttons {
		if !b.IsKnown() {
			return fmt.Errorf("gesture %s: unknown button %q", c.Name, b)
		}
	}
	if c.RequiredPresses < 1 {
		return fmt.Errorf("gesture %s: required presses must be >= 1, got %d", c.Name, c.RequiredPresses)
	}
	if c.PressWindow < 0 || c.MinGap < 0 || c.Cooldown < 0 || c.ChordWindow < 0 {
		return fmt.Errorf("gesture %s: durations must not be negative", c.Name)
	}
	if c.PressWindow > 0 && c.MinGap > c.PressWindow {
		return fmt.Errorf("gesture %s: min gap %v exceeds press window %v", c.Name, c.MinGap, c.PressWindow)
	}
	if c.IsChord() && c.ChordWindow == 0 {
		return fmt.Errorf("gesture %s: chord window is required for chords", c.Name)
	}
	switch c.Trigger {
	case "", TransitionDown, TransitionUp:
	default:
		return fmt.Errorf("gesture %s: unknown trigger transition %q", c.Name, c.Trigger)
	}
	if _, ok := ParseAction(string(c.Action)); !ok {
		return fmt.Errorf("gesture %s: unknown action %q", c.Name, c.Action)
	}
	return nil
}

// PressWindowState tracks the presses counted toward the next fire.
type PressWindowState struct {
	Count        int
	FirstPressAt time.Time
	LastPressAt  time.Time
	LastFireAt   time.Time
	HasFired     bool
}

// Outcome is the result of observing one event.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeFired
)

func (o Outcome) String() string {
	if o == OutcomeFired {
		return "FIRED"
	}
	return "NONE"
}

// Observation is the result of Detector.Observe.
type Observation struct {
	Outcome Outcome
	// Recognized is set when the event matched the detector's button and
	// trigger transition and was not a filtered auto-repeat.
	Recognized bool
}

// Detector counts presses of one button (or chord) and fires when the
// configured number of presses lands within the press window.
type Detector struct {
	cfg     GestureConfig
	button  Button
	trigger Transition
	state   PressWindowState
}

// NewDetector creates a detector for the given gesture.
func NewDetector(cfg GestureConfig) *Detector {
	trigger := cfg.Trigger
	if trigger == "" {
		trigger = TransitionDown
	}
	return &Detector{
		cfg:     cfg,
		button:  cfg.Button(),
		trigger: trigger,
	}
}

// Observe feeds one event to the detector.
func (d *Detector) Observe(ev KeyEvent) Observation {
	if ev.Button != d.button || ev.Transition != d.trigger {
		return Observation{}
	}
	if ev.Repeat && d.cfg.IgnoreRepeats {
		return Observation{}
	}

	now := ev.Time
	st := &d.state

	// Cooldown leaves the count alone.
	if st.HasFired && now.Sub(st.LastFireAt) < d.cfg.Cooldown {
		return Observation{Recognized: true}
	}

	if st.Count > 0 {
		gap := now.Sub(st.LastPressAt)
		if gap < d.cfg.MinGap {
			// A bounce pushes the gap check forward so a stream of
			// bounces never reaches the next count.
			st.LastPressAt = now
			return Observation{Recognized: true}
		}
		// The window slides with the previous press, not the first one.
		if d.cfg.PressWindow > 0 && gap > d.cfg.PressWindow {
			st.Count = 0
		}
	}

	st.Count++
	st.LastPressAt = now
	if st.Count == 1 {
		st.FirstPressAt = now
	}

	if st.Count >= d.cfg.RequiredPresses {
		st.Count = 0
		st.LastFireAt = now
		st.HasFired = true
		return Observation{Outcome: OutcomeFired, Recognized: true}
	}
	return Observation{Recognized: true}
}

// Config returns the detector's gesture config.
func (d *Detector) Config() GestureConfig {
	return d.cfg
}

// State returns a copy of the current press window state.
func (d *Detector) State() PressWindowState {
	return d.state
}

// Reset clears all press and cooldown state.
func (d *Detector) Reset() {
	d.state = PressWindowState{}
}
