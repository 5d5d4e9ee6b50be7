// Package trigger owns the process-wide escalation session and routes
// classified gestures from every delivery context to it.
//
// All session mutation goes through the Coordinator mutex: gesture
// handling from any context, countdown ticks and cancellation are applied
// one at a time. Notifiers are called with the mutex held and must not call
// back into the Coordinator; wrap anything that does I/O in an
// AsyncNotifier.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sweeney/sos-trigger/internal/logic"
)

// ErrClosed is returned by operations on a closed Coordinator.
var ErrClosed = errors.New("trigger: coordinator closed")

// Notifier receives the coordinator's outputs.
type Notifier interface {
	OnAction(ev logic.ActionEvent)
	OnTick(ev logic.TickEvent)
	OnTerminal(ev logic.TerminalEvent)
}

// SessionSnapshot is a point-in-time view of the coordinator.
type SessionSnapshot struct {
	Active            bool
	ID                string
	Source            string
	Level             int
	SecondsRemaining  int
	AdditionalPresses int
	StartedAt         time.Time
	Counts            logic.EventCounts
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the wall clock used for notification timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithTicker sets the tick source factory.
func WithTicker(f TickerFunc) Option {
	return func(c *Coordinator) { c.newTicker = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithIDs sets the session id generator.
func WithIDs(f func() string) Option {
	return func(c *Coordinator) { c.newID = f }
}

// Coordinator holds at most one armed session and the single clock that
// drives it.
type Coordinator struct {
	mu        sync.Mutex
	cfg       logic.SessionConfig
	notifier  Notifier
	now       func() time.Time
	newTicker TickerFunc
	newID     func() string
	log       *slog.Logger

	contexts map[string]*Context
	counts   logic.EventCounts
	closed   bool

	session   *logic.Session
	sessionID string
	source    string
	startedAt time.Time
	// gen changes whenever a session ends so a late tick from the old
	// clock is discarded.
	gen       uint64
	stopClock context.CancelFunc
	clockDone chan struct{}
}

// New creates a coordinator. The session config must be valid.
func New(cfg logic.SessionConfig, notifier Notifier, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:       cfg,
		notifier:  notifier,
		now:       time.Now,
		newTicker: NewTicker,
		newID:     uuid.NewString,
		log:       slog.Default(),
		contexts:  make(map[string]*Context),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "trigger")
	return c, nil
}

// Attach registers a delivery context with its own detector set.
func (c *Coordinator) Attach(name string, gestures []logic.GestureConfig) (*Context, error) {
	set, err := logic.NewGestureSet(gestures)
	if err != nil {
		return nil, fmt.Errorf("context %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if _, ok := c.contexts[name]; ok {
		return nil, fmt.Errorf("context %s: already attached", name)
	}
	x := &Context{name: name, coord: c, gestures: set}
	c.contexts[name] = x
	c.log.Info("context attached", "context", name, "gestures", len(gestures))
	return x, nil
}

// Reconfigure replaces the session config. An armed session keeps the
// config it started with.
func (c *Coordinator) Reconfigure(cfg logic.SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	return nil
}

// Cancel aborts the armed session. It returns false when no session is
// armed. No tick or terminal notification for the session follows once
// Cancel returns.
func (c *Coordinator) Cancel(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelLocked(reason)
}

// Snapshot returns the current session state and counters.
func (c *Coordinator) Snapshot() SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := SessionSnapshot{Counts: c.counts}
	if c.session != nil {
		snap.Active = true
		snap.ID = c.sessionID
		snap.Source = c.source
		snap.Level = c.session.Level()
		snap.SecondsRemaining = c.session.SecondsRemaining()
		snap.AdditionalPresses = c.session.AdditionalPresses()
		snap.StartedAt = c.startedAt
	}
	return snap
}

// Close cancels any armed session and waits for its clock to stop.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	done := c.clockDone
	c.cancelLocked("shutdown")
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// apply runs the classified action and returns the action actually taken.
func (c *Coordinator) apply(source string, dec logic.Decision) logic.Action {
	switch dec.Action {
	case logic.ActionStartFakeCall:
		c.counts.FakeCalls++
		c.log.Info("fake call triggered", "context", source, "gesture", dec.Gesture)
		c.notifier.OnAction(logic.ActionEvent{
			Time:    c.now(),
			Action:  logic.ActionStartFakeCall,
			Source:  source,
			Gesture: dec.Gesture,
		})
		return logic.ActionStartFakeCall

	case logic.ActionStartSession:
		if c.session != nil {
			c.log.Info("session already armed, ignoring start",
				"context", source, "gesture", dec.Gesture, "session_id", c.sessionID)
			return logic.ActionNone
		}
		c.startLocked(source, dec.Gesture)
		return logic.ActionStartSession

	case logic.ActionEscalate:
		if c.session == nil {
			return logic.ActionNone
		}
		c.escalateLocked(source, dec.Gesture)
		return logic.ActionEscalate

	case logic.ActionCancelSession:
		if !c.cancelLocked("gesture:" + dec.Gesture) {
			return logic.ActionNone
		}
		return logic.ActionCancelSession
	}
	return dec.Action
}

func (c *Coordinator) startLocked(source, gesture string) {
	cfg := c.cfg
	c.session = logic.StartSession(cfg, cfg.InitialLevel)
	c.sessionID = c.newID()
	c.source = source
	c.startedAt = c.now()
	c.counts.Sessions++

	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	ticker := c.newTicker(cfg.TickInterval)
	done := make(chan struct{})
	c.stopClock = cancel
	c.clockDone = done
	go c.runClock(ctx, ticker, c.gen, done)

	c.log.Info("session armed",
		"session_id", c.sessionID, "context", source, "gesture", gesture,
		"level", c.session.Level(), "countdown", cfg.Countdown)
	c.notifier.OnAction(logic.ActionEvent{
		Time:      c.startedAt,
		Action:    logic.ActionStartSession,
		SessionID: c.sessionID,
		Source:    source,
		Gesture:   gesture,
		Level:     c.session.Level(),
		Hints:     []logic.Hint{logic.HintAlert},

		SecondsRemaining: c.session.SecondsRemaining(),
	})
}

func (c *Coordinator) escalateLocked(source, gesture string) {
	changed := c.session.Escalate()
	c.counts.Escalations++

	ev := logic.ActionEvent{
		Time:      c.now(),
		Action:    logic.ActionEscalate,
		SessionID: c.sessionID,
		Source:    source,
		Gesture:   gesture,
		Level:     c.session.Level(),

		SecondsRemaining: c.session.SecondsRemaining(),
	}
	if changed {
		ev.Hints = []logic.Hint{logic.HintAlert}
		c.log.Info("session promoted",
			"session_id", c.sessionID, "level", ev.Level, "presses", c.session.AdditionalPresses())
	} else {
		c.log.Debug("escalation press",
			"session_id", c.sessionID, "presses", c.session.AdditionalPresses())
	}
	c.notifier.OnAction(ev)
}

func (c *Coordinator) cancelLocked(reason string) bool {
	if c.session == nil || !c.session.Cancel() {
		return false
	}
	ev := c.terminalLocked(reason)
	c.counts.Cancelled++
	c.endLocked()
	c.log.Info("session cancelled", "session_id", ev.SessionID, "reason", reason, "level", ev.Level)
	c.notifier.OnTerminal(ev)
	return true
}

// tick applies one clock tick. It returns false when the clock should stop.
func (c *Coordinator) tick(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.session == nil {
		return false
	}
	res, ok := c.session.Tick()
	if !ok {
		return false
	}

	c.notifier.OnTick(logic.TickEvent{
		Time:             c.now(),
		SessionID:        c.sessionID,
		SecondsRemaining: res.SecondsRemaining,
		Level:            res.Level,
		Hints:            res.Hints,
	})
	if !res.Fired {
		return true
	}

	ev := c.terminalLocked("countdown")
	ev.Responses = logic.ResponsesForLevel(ev.Level)
	c.counts.Fired++
	c.endLocked()
	c.log.Warn("emergency fired", "session_id", ev.SessionID, "level", ev.Level, "responses", ev.Responses)
	c.notifier.OnTerminal(ev)
	return false
}

func (c *Coordinator) terminalLocked(reason string) logic.TerminalEvent {
	return logic.TerminalEvent{
		SessionID:         c.sessionID,
		Source:            c.source,
		Status:            c.session.Status(),
		Level:             c.session.Level(),
		AdditionalPresses: c.session.AdditionalPresses(),
		StartedAt:         c.startedAt,
		EndedAt:           c.now(),
		Reason:            reason,
	}
}

// endLocked drops the session and stops its clock. The clock goroutine
// may still be waiting on the mutex; the generation bump makes it exit
// without side effects.
func (c *Coordinator) endLocked() {
	if c.stopClock != nil {
		c.stopClock()
		c.stopClock = nil
	}
	c.session = nil
	c.sessionID = ""
	c.source = ""
	c.gen++
}

func (c *Coordinator) runClock(ctx context.Context, t Ticker, gen uint64, done chan struct{}) {
	defer close(done)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if !c.tick(gen) {
				return
			}
		}
	}
}
