// Package mqtt publishes trigger actions, countdown ticks and session
// outcomes to an MQTT broker, and accepts remote commands.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// DefaultPrefix is the default topic prefix.
const DefaultPrefix = "safety/sos-trigger"

// Topics holds the full topic names derived from a prefix.
type Topics struct {
	Actions  string
	Ticks    string
	Outcomes string
	System   string
	Commands string
}

// NewTopics derives the topic set for prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Actions:  prefix + "/actions",
		Ticks:    prefix + "/ticks",
		Outcomes: prefix + "/outcomes",
		System:   prefix + "/system",
		Commands: prefix + "/commands",
	}
}

// Publisher publishes events to MQTT.
// Errors are reported to the caller and must never affect session state.
type Publisher interface {
	// PublishAction sends a dispatched action.
	PublishAction(event logic.ActionEvent) error

	// PublishTick sends a countdown tick.
	PublishTick(event logic.TickEvent) error

	// PublishOutcome sends the terminal outcome of a session.
	PublishOutcome(event logic.TerminalEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ActionPayload is the message published on the actions topic.
type ActionPayload struct {
	Action ActionInner `json:"action"`
}

// ActionInner contains the action details.
type ActionInner struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	SessionID string   `json:"session_id,omitempty"`
	Source    string   `json:"source"`
	Gesture   string   `json:"gesture,omitempty"`
	Level     int      `json:"level,omitempty"`
	Hints     []string `json:"hints,omitempty"`

	SecondsRemaining int `json:"seconds_remaining,omitempty"`
}

// TickPayload is the message published on the ticks topic.
type TickPayload struct {
	Tick TickInner `json:"tick"`
}

// TickInner contains the tick details.
type TickInner struct {
	Timestamp        string   `json:"timestamp"`
	SessionID        string   `json:"session_id"`
	SecondsRemaining int      `json:"seconds_remaining"`
	Level            int      `json:"level"`
	Hints            []string `json:"hints,omitempty"`
}

// OutcomePayload is the message published on the outcomes topic.
type OutcomePayload struct {
	Outcome OutcomeInner `json:"outcome"`
}

// OutcomeInner contains the outcome details.
type OutcomeInner struct {
	Timestamp         string   `json:"timestamp"`
	SessionID         string   `json:"session_id"`
	Source            string   `json:"source"`
	Status            string   `json:"status"`
	Level             int      `json:"level"`
	AdditionalPresses int      `json:"additional_presses"`
	StartedAt         string   `json:"started_at"`
	Reason            string   `json:"reason,omitempty"`
	Responses         []string `json:"responses,omitempty"`
}

func hintStrings(hints []logic.Hint) []string {
	if len(hints) == 0 {
		return nil
	}
	out := make([]string, len(hints))
	for i, h := range hints {
		out[i] = string(h)
	}
	return out
}

// FormatActionPayload creates the JSON payload for an action event.
func FormatActionPayload(event logic.ActionEvent) ([]byte, error) {
	return json.Marshal(ActionPayload{
		Action: ActionInner{
			Timestamp: event.Time.UTC().Format(time.RFC3339),
			Event:     string(event.Action),
			SessionID: event.SessionID,
			Source:    event.Source,
			Gesture:   event.Gesture,
			Level:     event.Level,
			Hints:     hintStrings(event.Hints),

			SecondsRemaining: event.SecondsRemaining,
		},
	})
}

// FormatTickPayload creates the JSON payload for a countdown tick.
func FormatTickPayload(event logic.TickEvent) ([]byte, error) {
	return json.Marshal(TickPayload{
		Tick: TickInner{
			Timestamp:        event.Time.UTC().Format(time.RFC3339),
			SessionID:        event.SessionID,
			SecondsRemaining: event.SecondsRemaining,
			Level:            event.Level,
			Hints:            hintStrings(event.Hints),
		},
	})
}

// FormatOutcomePayload creates the JSON payload for a session outcome.
func FormatOutcomePayload(event logic.TerminalEvent) ([]byte, error) {
	var responses []string
	for _, r := range event.Responses {
		responses = append(responses, string(r))
	}
	return json.Marshal(OutcomePayload{
		Outcome: OutcomeInner{
			Timestamp:         event.EndedAt.UTC().Format(time.RFC3339),
			SessionID:         event.SessionID,
			Source:            event.Source,
			Status:            string(event.Status),
			Level:             event.Level,
			AdditionalPresses: event.AdditionalPresses,
			StartedAt:         event.StartedAt.UTC().Format(time.RFC3339),
			Reason:            event.Reason,
			Responses:         responses,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Command is a remote instruction received on the commands topic.
type Command struct {
	Command string `json:"command"`
	Reason  string `json:"reason,omitempty"`
}

// CommandCancel cancels the armed session.
const CommandCancel = "cancel"

// ParseCommand decodes a command message. Unknown commands are rejected.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	cmd.Command = strings.ToLower(strings.TrimSpace(cmd.Command))
	switch cmd.Command {
	case CommandCancel:
	default:
		return Command{}, fmt.Errorf("unknown command %q", cmd.Command)
	}
	if cmd.Reason == "" {
		cmd.Reason = "mqtt"
	}
	return cmd, nil
}
