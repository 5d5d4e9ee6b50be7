package logic

import "time"

// DefaultGestures returns the stock gesture table: triple volume-up for the
// fake call, triple volume-down or power+volume-up to start a session,
// single volume-down to escalate and back to cancel.
func DefaultGestures() []GestureConfig {
	return []GestureConfig{
		{
			Name:            "fake_call",
			Buttons:         []Button{ButtonVolumeUp},
			RequiredPresses: 3,
			PressWindow:     time.Second,
			MinGap:          100 * time.Millisecond,
			Cooldown:        3 * time.Second,
			IgnoreRepeats:   true,
			Action:          ActionStartFakeCall,
		},
		{
			Name:            "sos_start",
			Buttons:         []Button{ButtonVolumeDown},
			RequiredPresses: 3,
			PressWindow:     500 * time.Millisecond,
			MinGap:          100 * time.Millisecond,
			Cooldown:        3 * time.Second,
			IgnoreRepeats:   true,
			Action:          ActionStartSession,
		},
		{
			Name:            "sos_chord",
			Buttons:         []Button{ButtonPower, ButtonVolumeUp},
			RequiredPresses: 1,
			ChordWindow:     300 * time.Millisecond,
			Cooldown:        3 * time.Second,
			IgnoreRepeats:   true,
			Action:          ActionStartSession,
		},
		{
			Name:            "sos_escalate",
			Buttons:         []Button{ButtonVolumeDown},
			RequiredPresses: 1,
			Cooldown:        100 * time.Millisecond,
			IgnoreRepeats:   true,
			Action:          ActionEscalate,
		},
		{
			Name:            "cancel",
			Buttons:         []Button{ButtonBack},
			RequiredPresses: 1,
			IgnoreRepeats:   true,
			Action:          ActionCancelSession,
		},
	}
}
