package logic

import (
	"errors"
	"fmt"
	"time"
)

// Levels of an escalation session.
const (
	MinLevel = 1
	MaxLevel = 3
)

// SessionConfig holds the countdown and promotion settings.
type SessionConfig struct {
	// Countdown is the number of ticks before auto-fire.
	Countdown int
	// ShortAlertAt emits a short alert on ticks at or below this value.
	ShortAlertAt int
	// Level2Presses and Level3Presses are cumulative additional presses.
	Level2Presses int
	Level3Presses int
	InitialLevel  int
	TickInterval  time.Duration
}

// DefaultSessionConfig returns the canonical countdown settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Countdown:     10,
		ShortAlertAt:  3,
		Level2Presses: 4,
		Level3Presses: 5,
		InitialLevel:  MinLevel,
		TickInterval:  time.Second,
	}
}

// Validate checks the session config.
func (c SessionConfig) Validate() error {
	if c.Countdown < 1 {
		return fmt.Errorf("session: countdown must be >= 1, got %d", c.Countdown)
	}
	if c.ShortAlertAt < 0 {
		return errors.New("session: short alert threshold must not be negative")
	}
	if c.Level2Presses < 1 || c.Level3Presses < c.Level2Presses {
		return fmt.Errorf("session: promotion thresholds must satisfy 1 <= level2 (%d) <= level3 (%d)",
			c.Level2Presses, c.Level3Presses)
	}
	if c.InitialLevel < MinLevel || c.InitialLevel > MaxLevel {
		return fmt.Errorf("session: initial level must be in %d..%d, got %d", MinLevel, MaxLevel, c.InitialLevel)
	}
	if c.TickInterval <= 0 {
		return errors.New("session: tick interval must be positive")
	}
	return nil
}

// TickResult is the observable effect of one countdown tick.
type TickResult struct {
	SecondsRemaining int
	Level            int
	Hints            []Hint
	// Fired is set on the tick that reaches zero.
	Fired bool
}

// Session is the escalation state machine. It never reads a clock; the
// owner drives it with Tick.
// Not safe for concurrent use; the caller must serialize.
type Session struct {
	cfg               SessionConfig
	level             int
	secondsRemaining  int
	additionalPresses int
	status            Status
}

// StartSession arms a new session at the given level, clamped into
// MinLevel..MaxLevel.
func StartSession(cfg SessionConfig, initialLevel int) *Session {
	if initialLevel < MinLevel {
		initialLevel = MinLevel
	}
	if initialLevel > MaxLevel {
		initialLevel = MaxLevel
	}
	return &Session{
		cfg:              cfg,
		level:            initialLevel,
		secondsRemaining: cfg.Countdown,
		status:           StatusArmed,
	}
}

// Tick decrements the countdown. ok is false when the session is terminal.
func (s *Session) Tick() (res TickResult, ok bool) {
	if s.status != StatusArmed {
		return TickResult{}, false
	}
	if s.secondsRemaining > 0 {
		s.secondsRemaining--
	}
	res = TickResult{
		SecondsRemaining: s.secondsRemaining,
		Level:            s.level,
	}
	if s.secondsRemaining <= s.cfg.ShortAlertAt {
		res.Hints = []Hint{HintShortAlert}
	}
	if s.secondsRemaining == 0 {
		s.status = StatusFired
		res.Fired = true
	}
	return res, true
}

// Escalate counts one additional press and reports whether the level rose.
// Promotion never lowers the level and never resets the countdown.
func (s *Session) Escalate() bool {
	if s.status != StatusArmed {
		return false
	}
	s.additionalPresses++

	target := s.level
	switch {
	case s.additionalPresses >= s.cfg.Level3Presses:
		target = 3
	case s.additionalPresses >= s.cfg.Level2Presses:
		target = 2
	}
	if target > s.level {
		s.level = target
		return true
	}
	return false
}

// Cancel moves an armed session to Cancelled. It returns false when the
// session was already terminal.
func (s *Session) Cancel() bool {
	if s.status != StatusArmed {
		return false
	}
	s.status = StatusCancelled
	return true
}

// Level returns the current severity.
func (s *Session) Level() int { return s.level }

// SecondsRemaining returns the ticks left before auto-fire.
func (s *Session) SecondsRemaining() int { return s.secondsRemaining }

// AdditionalPresses returns the escalation presses counted so far.
func (s *Session) AdditionalPresses() int { return s.additionalPresses }

// Status returns the lifecycle state.
func (s *Session) Status() Status { return s.status }

// Terminal reports whether the session has fired or been cancelled.
func (s *Session) Terminal() bool { return s.status != StatusArmed }
