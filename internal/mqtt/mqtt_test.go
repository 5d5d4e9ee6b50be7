package mqtt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
)

var ts = time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

func TestNewTopics(t *testing.T) {
	topics := NewTopics("home/alarm/")
	want := Topics{
		Actions:  "home/alarm/actions",
		Ticks:    "home/alarm/ticks",
		Outcomes: "home/alarm/outcomes",
		System:   "home/alarm/system",
		Commands: "home/alarm/commands",
	}
	if topics != want {
		t.Errorf("got %+v, want %+v", topics, want)
	}
}

func TestNewTopicsDefaultPrefix(t *testing.T) {
	if got := NewTopics("").Actions; got != "safety/sos-trigger/actions" {
		t.Errorf("unexpected actions topic: %s", got)
	}
}

func TestFormatActionPayloadExactJSON(t *testing.T) {
	event := logic.ActionEvent{
		Time:      ts,
		Action:    logic.ActionStartSession,
		SessionID: "abc",
		Source:    "gpio",
		Gesture:   "sos_start",
		Level:     1,
		Hints:     []logic.Hint{logic.HintAlert},

		SecondsRemaining: 10,
	}

	payload, err := FormatActionPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"action":{"timestamp":"2026-02-02T22:18:12Z","event":"START_SESSION","session_id":"abc","source":"gpio","gesture":"sos_start","level":1,"hints":["ALERT"],"seconds_remaining":10}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatActionPayloadFakeCallOmitsSession(t *testing.T) {
	payload, err := FormatActionPayload(logic.ActionEvent{
		Time:    ts,
		Action:  logic.ActionStartFakeCall,
		Source:  "evdev",
		Gesture: "fake_call",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	action := parsed["action"]
	for _, field := range []string{"session_id", "level", "hints"} {
		if _, exists := action[field]; exists {
			t.Errorf("fake call should not have %s field", field)
		}
	}
	if action["event"] != "START_FAKE_CALL" {
		t.Errorf("unexpected event: %v", action["event"])
	}
}

func TestFormatTickPayloadExactJSON(t *testing.T) {
	payload, err := FormatTickPayload(logic.TickEvent{
		Time:             ts,
		SessionID:        "abc",
		SecondsRemaining: 3,
		Level:            2,
		Hints:            []logic.Hint{logic.HintShortAlert},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"tick":{"timestamp":"2026-02-02T22:18:12Z","session_id":"abc","seconds_remaining":3,"level":2,"hints":["SHORT_ALERT"]}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatTickPayloadZeroRemaining(t *testing.T) {
	payload, _ := FormatTickPayload(logic.TickEvent{Time: ts, SessionID: "abc", Level: 1})

	var parsed TickPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Tick.SecondsRemaining != 0 {
		t.Errorf("unexpected seconds remaining: %d", parsed.Tick.SecondsRemaining)
	}
	if parsed.Tick.Hints != nil {
		t.Errorf("expected no hints, got %v", parsed.Tick.Hints)
	}
}

func TestFormatOutcomePayloadFired(t *testing.T) {
	event := logic.TerminalEvent{
		SessionID:         "abc",
		Source:            "gpio",
		Status:            logic.StatusFired,
		Level:             2,
		AdditionalPresses: 4,
		StartedAt:         ts,
		EndedAt:           ts.Add(10 * time.Second),
		Reason:            "countdown",
		Responses:         logic.ResponsesForLevel(2),
	}

	payload, err := FormatOutcomePayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"outcome":{"timestamp":"2026-02-02T22:18:22Z","session_id":"abc","source":"gpio","status":"FIRED","level":2,"additional_presses":4,"started_at":"2026-02-02T22:18:12Z","reason":"countdown","responses":["SEND_LOCATION","SEND_SMS","CALL_CONTACTS","LIVE_TRACKING"]}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatOutcomePayloadCancelledOmitsResponses(t *testing.T) {
	payload, _ := FormatOutcomePayload(logic.TerminalEvent{
		SessionID: "abc",
		Status:    logic.StatusCancelled,
		Level:     1,
		StartedAt: ts,
		EndedAt:   ts,
		Reason:    "gesture:cancel",
	})

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, exists := parsed["outcome"]["responses"]; exists {
		t.Error("cancelled outcome should not have responses")
	}
	if parsed["outcome"]["status"] != "CANCELLED" {
		t.Errorf("unexpected status: %v", parsed["outcome"]["status"])
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	payload, _ := FormatActionPayload(logic.ActionEvent{
		Time:   time.Date(2026, 2, 2, 17, 18, 12, 0, loc),
		Action: logic.ActionEscalate,
	})

	var parsed ActionPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Action.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("timestamp should be converted to UTC, got %s", parsed.Action.Timestamp)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: ts,
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload should be returned unchanged, got %s", payload)
	}
}

func TestFormatSystemPayloadReconnected(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantErr    bool
		wantReason string
	}{
		{"cancel with reason", `{"command":"cancel","reason":"false alarm"}`, false, "false alarm"},
		{"cancel default reason", `{"command":"cancel"}`, false, "mqtt"},
		{"case insensitive", `{"command":" CANCEL "}`, false, "mqtt"},
		{"unknown command", `{"command":"arm"}`, true, ""},
		{"missing command", `{}`, true, ""},
		{"not json", `cancel`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cmd.Command != CommandCancel {
				t.Errorf("command: got %q, want cancel", cmd.Command)
			}
			if cmd.Reason != tt.wantReason {
				t.Errorf("reason: got %q, want %q", cmd.Reason, tt.wantReason)
			}
		})
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishAction(logic.ActionEvent{Time: ts, Action: logic.ActionStartSession}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishTick(logic.TickEvent{Time: ts, SecondsRemaining: 9}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishOutcome(logic.TerminalEvent{Status: logic.StatusFired}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Actions) != 1 || len(f.Ticks) != 1 || len(f.Outcomes) != 1 {
		t.Fatalf("expected one of each, got %d/%d/%d", len(f.Actions), len(f.Ticks), len(f.Outcomes))
	}
	if len(f.Payloads) != 3 {
		t.Errorf("expected 3 payloads, got %d", len(f.Payloads))
	}
	if f.OutcomeCount() != 1 {
		t.Errorf("OutcomeCount: got %d, want 1", f.OutcomeCount())
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.PublishAction(logic.ActionEvent{}); err == nil {
		t.Error("expected error")
	}
	if err := f.PublishOutcome(logic.TerminalEvent{}); err == nil {
		t.Error("expected error")
	}
	if len(f.Actions) != 0 || len(f.Outcomes) != 0 {
		t.Error("events should not be recorded on error")
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	f := NewFakePublisher()

	f.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: ts, Event: "HEARTBEAT"})

	if len(f.SystemEvents) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(f.SystemEvents))
	}
	if !f.SystemEvents[0].Retained {
		t.Error("first event should have Retained=true")
	}
	if f.SystemEvents[1].Retained {
		t.Error("second event should have Retained=false")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.PublishAction(logic.ActionEvent{})
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()
	f.Connected = true

	f.Reset()

	if len(f.Actions) != 0 || len(f.SystemEvents) != 0 || len(f.Payloads) != 0 {
		t.Error("recorded events should be cleared")
	}
	if f.Closed || f.Connected {
		t.Error("flags should be cleared")
	}
}

func TestNotifierForwardsEvents(t *testing.T) {
	f := NewFakePublisher()
	n := NewNotifier(f, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n.OnAction(logic.ActionEvent{Action: logic.ActionEscalate})
	n.OnTick(logic.TickEvent{SecondsRemaining: 4})
	n.OnTerminal(logic.TerminalEvent{Status: logic.StatusCancelled})

	if len(f.Actions) != 1 || f.Actions[0].Action != logic.ActionEscalate {
		t.Errorf("unexpected actions: %+v", f.Actions)
	}
	if len(f.Ticks) != 1 || f.Ticks[0].SecondsRemaining != 4 {
		t.Errorf("unexpected ticks: %+v", f.Ticks)
	}
	if len(f.Outcomes) != 1 || f.Outcomes[0].Status != logic.StatusCancelled {
		t.Errorf("unexpected outcomes: %+v", f.Outcomes)
	}
}

func TestNotifierSwallowsPublishErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	n := NewNotifier(f, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Must not panic or propagate.
	n.OnAction(logic.ActionEvent{})
	n.OnTick(logic.TickEvent{})
	n.OnTerminal(logic.TerminalEvent{})
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestHandleMessageDispatchesCommands(t *testing.T) {
	var got []Command
	p := &RealPublisher{
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		onCommand: func(c Command) { got = append(got, c) },
	}

	p.handleMessage(nil, fakeMessage{topic: "x/commands", payload: []byte(`{"command":"cancel","reason":"ui"}`)})
	p.handleMessage(nil, fakeMessage{topic: "x/commands", payload: []byte(`{"command":"reboot"}`)})

	if len(got) != 1 {
		t.Fatalf("expected 1 command, got %d", len(got))
	}
	if got[0].Reason != "ui" {
		t.Errorf("reason: got %q, want ui", got[0].Reason)
	}
}
