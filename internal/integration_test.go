package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
	"github.com/sweeney/sos-trigger/internal/metrics"
	"github.com/sweeney/sos-trigger/internal/mqtt"
	"github.com/sweeney/sos-trigger/internal/status"
	"github.com/sweeney/sos-trigger/internal/store"
	"github.com/sweeney/sos-trigger/internal/trigger"
)

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// manualTicker is driven by the test; every send is one countdown tick.
type manualTicker struct {
	c chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               {}

// rig wires a coordinator to the same collaborators the daemon uses, with
// fakes in place of the broker and the clock.
type rig struct {
	coord     *trigger.Coordinator
	publisher *mqtt.FakePublisher
	tracker   *status.Tracker
	store     *store.Store
	tickers   chan *manualTicker
}

func newRig(t *testing.T) *rig {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.Open(filepath.Join(t.TempDir(), "incidents.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	r := &rig{
		publisher: mqtt.NewFakePublisher(),
		tracker:   status.NewTracker(startTime, status.Config{CountdownSeconds: 10}),
		store:     s,
		tickers:   make(chan *manualTicker, 4),
	}
	fan := trigger.NewFanout(log,
		r.tracker,
		metrics.New(),
		store.NewRecorder(s, log),
		mqtt.NewNotifier(r.publisher, log),
	)

	ids := 0
	coord, err := trigger.New(logic.DefaultSessionConfig(), fan,
		trigger.WithLogger(log),
		trigger.WithClock(func() time.Time { return startTime }),
		trigger.WithIDs(func() string {
			ids++
			return fmt.Sprintf("incident-%d", ids)
		}),
		trigger.WithTicker(func(time.Duration) trigger.Ticker {
			tk := &manualTicker{c: make(chan time.Time)}
			r.tickers <- tk
			return tk
		}),
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(coord.Close)
	r.coord = coord
	return r
}

func (r *rig) attach(t *testing.T, name string) *trigger.Context {
	t.Helper()
	x, err := r.coord.Attach(name, logic.DefaultGestures())
	if err != nil {
		t.Fatalf("attach %s: %v", name, err)
	}
	return x
}

func press(x *trigger.Context, b logic.Button, at time.Duration) logic.Decision {
	return x.OnRawEvent(logic.KeyEvent{Button: b, Transition: logic.TransitionDown, Time: startTime.Add(at)})
}

// arm presses volume-down three times and returns the session clock.
func (r *rig) arm(t *testing.T, x *trigger.Context) *manualTicker {
	t.Helper()
	for i, at := range []time.Duration{0, 150 * time.Millisecond, 300 * time.Millisecond} {
		dec := press(x, logic.ButtonVolumeDown, at)
		if i == 2 && dec.Action != logic.ActionStartSession {
			t.Fatalf("third press: got %s, want START_SESSION", dec.Action)
		}
	}
	select {
	case tk := <-r.tickers:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("session clock not started")
		return nil
	}
}

func (r *rig) waitOutcome(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.publisher.OutcomeCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no outcome published")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestIntegrationSessionFiresAfterEscalation(t *testing.T) {
	r := newRig(t)
	x := r.attach(t, "gpio")
	tk := r.arm(t, x)

	// Four additional presses promote to level 2.
	for i := 0; i < 4; i++ {
		if dec := press(x, logic.ButtonVolumeDown, time.Duration(500+200*i)*time.Millisecond); dec.Action != logic.ActionEscalate {
			t.Fatalf("escalation %d: got %s", i, dec.Action)
		}
	}
	for i := 0; i < 10; i++ {
		tk.c <- startTime
	}
	r.waitOutcome(t)

	pub := r.publisher
	if len(pub.Actions) != 5 {
		t.Fatalf("expected 5 actions, got %d", len(pub.Actions))
	}
	if pub.Actions[0].Action != logic.ActionStartSession {
		t.Errorf("action 0: got %s, want START_SESSION", pub.Actions[0].Action)
	}
	if last := pub.Actions[4]; last.Level != 2 || len(last.Hints) != 1 {
		t.Errorf("promotion: got level %d hints %v", last.Level, last.Hints)
	}
	if len(pub.Ticks) != 10 {
		t.Errorf("expected 10 ticks, got %d", len(pub.Ticks))
	}
	if pub.Ticks[9].SecondsRemaining != 0 {
		t.Errorf("last tick: got %d remaining", pub.Ticks[9].SecondsRemaining)
	}

	out := pub.Outcomes[0]
	if out.Status != logic.StatusFired || out.Level != 2 || out.AdditionalPresses != 4 {
		t.Errorf("outcome: got %+v", out)
	}

	inc, err := r.store.Get(context.Background(), "incident-1")
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	if inc.Status != logic.StatusFired || len(inc.Responses) != 4 {
		t.Errorf("incident: got %+v", inc)
	}

	snap := r.tracker.Snapshot()
	if snap.Session.Active {
		t.Error("tracker still shows an armed session")
	}
	if snap.Counts.Fired != 1 || snap.Counts.Escalations != 4 {
		t.Errorf("counts: got %+v", snap.Counts)
	}
	if snap.LastOutcome == nil || snap.LastOutcome.Status != logic.StatusFired {
		t.Errorf("last outcome: got %+v", snap.LastOutcome)
	}
}

func TestIntegrationOutcomePayloadFormat(t *testing.T) {
	r := newRig(t)
	x := r.attach(t, "gpio")
	tk := r.arm(t, x)
	for i := 0; i < 10; i++ {
		tk.c <- startTime
	}
	r.waitOutcome(t)

	payload := r.publisher.Payloads[len(r.publisher.Payloads)-1]
	var got struct {
		Outcome struct {
			SessionID string   `json:"session_id"`
			Status    string   `json:"status"`
			Level     int      `json:"level"`
			Reason    string   `json:"reason"`
			Responses []string `json:"responses"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal %s: %v", payload, err)
	}
	if got.Outcome.SessionID != "incident-1" || got.Outcome.Status != "FIRED" || got.Outcome.Reason != "countdown" {
		t.Errorf("outcome payload: got %+v", got.Outcome)
	}
	want := []string{"SEND_LOCATION", "SEND_SMS"}
	if fmt.Sprint(got.Outcome.Responses) != fmt.Sprint(want) {
		t.Errorf("responses: got %v, want %v", got.Outcome.Responses, want)
	}
}

func TestIntegrationBackCancelsFromOtherContext(t *testing.T) {
	r := newRig(t)
	gpioCtx := r.attach(t, "gpio")
	evdevCtx := r.attach(t, "evdev")
	tk := r.arm(t, gpioCtx)
	tk.c <- startTime

	if dec := press(evdevCtx, logic.ButtonBack, 2*time.Second); dec.Action != logic.ActionCancelSession {
		t.Fatalf("back: got %s, want CANCEL_SESSION", dec.Action)
	}

	if r.publisher.OutcomeCount() != 1 {
		t.Fatalf("expected 1 outcome, got %d", r.publisher.OutcomeCount())
	}
	out := r.publisher.Outcomes[0]
	if out.Status != logic.StatusCancelled || out.Reason != "gesture:cancel" || out.Source != "gpio" {
		t.Errorf("outcome: got %+v", out)
	}
	if out.Responses != nil {
		t.Errorf("cancelled outcome carries responses: %v", out.Responses)
	}

	incidents, err := r.store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(incidents) != 1 || incidents[0].Status != logic.StatusCancelled {
		t.Errorf("incidents: got %+v", incidents)
	}

	// Back with nothing armed passes through.
	if dec := press(evdevCtx, logic.ButtonBack, 5*time.Second); dec.Action == logic.ActionCancelSession {
		t.Error("back cancelled with no armed session")
	}
}

func TestIntegrationRemoteCancel(t *testing.T) {
	r := newRig(t)
	x := r.attach(t, "gpio")
	r.arm(t, x)

	if !r.coord.Cancel("mqtt") {
		t.Fatal("cancel returned false with an armed session")
	}
	if r.coord.Cancel("mqtt") {
		t.Error("second cancel returned true")
	}
	if r.publisher.OutcomeCount() != 1 || r.publisher.Outcomes[0].Reason != "mqtt" {
		t.Errorf("outcomes: got %+v", r.publisher.Outcomes)
	}
	if r.tracker.Snapshot().Counts.Cancelled != 1 {
		t.Error("tracker did not count the cancellation")
	}
}

func TestIntegrationFakeCall(t *testing.T) {
	r := newRig(t)
	x := r.attach(t, "evdev")

	var dec logic.Decision
	for _, at := range []time.Duration{0, 200 * time.Millisecond, 400 * time.Millisecond} {
		dec = press(x, logic.ButtonVolumeUp, at)
	}
	if dec.Action != logic.ActionStartFakeCall {
		t.Fatalf("third press: got %s, want START_FAKE_CALL", dec.Action)
	}
	if len(r.publisher.Actions) != 1 || r.publisher.Actions[0].Action != logic.ActionStartFakeCall {
		t.Errorf("actions: got %+v", r.publisher.Actions)
	}
	if r.coord.Snapshot().Active {
		t.Error("fake call armed a session")
	}
	if r.tracker.Snapshot().Counts.FakeCalls != 1 {
		t.Error("tracker did not count the fake call")
	}
}

func TestIntegrationPublishFailureDoesNotAffectSession(t *testing.T) {
	r := newRig(t)
	r.publisher.PublishError = errors.New("broker down")
	x := r.attach(t, "gpio")
	tk := r.arm(t, x)

	for i := 0; i < 10; i++ {
		tk.c <- startTime
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := r.store.Get(context.Background(), "incident-1")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("incident not recorded: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	if r.tracker.Snapshot().Counts.Fired != 1 {
		t.Error("tracker did not count the fired session")
	}
	if r.publisher.OutcomeCount() != 0 {
		t.Errorf("failed publishes were recorded")
	}
}

func TestIntegrationStartupAndShutdownPayloads(t *testing.T) {
	r := newRig(t)
	x := r.attach(t, "gpio")
	r.arm(t, x)

	snap := r.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     "SIGTERM",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"),
	}
	if err := r.publisher.PublishSystem(ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got status.StatusJSON
	if err := json.Unmarshal(r.publisher.SystemPayloads[0], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status.Event != "SHUTDOWN" || got.Status.Reason != "SIGTERM" {
		t.Errorf("event: got %q/%q", got.Status.Event, got.Status.Reason)
	}
	if !got.Status.Armed || got.Status.Session == nil || got.Status.Session.ID != "incident-1" {
		t.Errorf("session: got armed=%v %+v", got.Status.Armed, got.Status.Session)
	}
}
