// Package status provides a thread-safe status tracker for the sos-trigger daemon.
// It follows coordinator notifications and is read by HTTP handlers and the
// MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	CountdownSeconds int
	TickMs           int64
	HeartbeatMs      int64
	Broker           string
	HTTPAddr         string
	Inputs           []string
	Gestures         []string
}

// SessionView is the tracked state of the armed session.
type SessionView struct {
	Active            bool
	ID                string
	Source            string
	Level             int
	SecondsRemaining  int
	AdditionalPresses int
	StartedAt         time.Time
}

// OutcomeView describes the most recent terminal session.
type OutcomeView struct {
	SessionID string
	Status    logic.Status
	Level     int
	Reason    string
	EndedAt   time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Session       SessionView
	LastOutcome   *OutcomeView
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// OnAction records a dispatched action.
func (t *Tracker) OnAction(ev logic.ActionEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Action {
	case logic.ActionStartFakeCall:
		t.snap.Counts.FakeCalls++
	case logic.ActionStartSession:
		t.snap.Counts.Sessions++
		t.snap.Session = SessionView{
			Active:           true,
			ID:               ev.SessionID,
			Source:           ev.Source,
			Level:            ev.Level,
			SecondsRemaining: ev.SecondsRemaining,
			StartedAt:        ev.Time,
		}
	case logic.ActionEscalate:
		t.snap.Counts.Escalations++
		if t.snap.Session.Active && t.snap.Session.ID == ev.SessionID {
			t.snap.Session.Level = ev.Level
			t.snap.Session.AdditionalPresses++
		}
	}
}

// OnTick records a countdown tick.
func (t *Tracker) OnTick(ev logic.TickEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Session.Active && t.snap.Session.ID == ev.SessionID {
		t.snap.Session.SecondsRemaining = ev.SecondsRemaining
		t.snap.Session.Level = ev.Level
	}
}

// OnTerminal records a session outcome and clears the armed session.
func (t *Tracker) OnTerminal(ev logic.TerminalEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Status {
	case logic.StatusFired:
		t.snap.Counts.Fired++
	case logic.StatusCancelled:
		t.snap.Counts.Cancelled++
	}
	if t.snap.Session.ID == ev.SessionID {
		t.snap.Session = SessionView{}
	}
	t.snap.LastOutcome = &OutcomeView{
		SessionID: ev.SessionID,
		Status:    ev.Status,
		Level:     ev.Level,
		Reason:    ev.Reason,
		EndedAt:   ev.EndedAt,
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetConfig replaces the displayed configuration after a reload.
func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	t.snap.Config = cfg
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastOutcome != nil {
		o := *s.LastOutcome
		s.LastOutcome = &o
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
