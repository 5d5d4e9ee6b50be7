package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Armed         bool         `json:"armed"`
	Session       *SessionJSON `json:"session,omitempty"`
	LastOutcome   *OutcomeJSON `json:"last_outcome,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SessionJSON is the JSON representation of the armed session.
type SessionJSON struct {
	ID                string `json:"id"`
	Source            string `json:"source"`
	Level             int    `json:"level"`
	SecondsRemaining  int    `json:"seconds_remaining"`
	AdditionalPresses int    `json:"additional_presses"`
	StartedAt         string `json:"started_at"`
}

// OutcomeJSON is the JSON representation of the last outcome.
type OutcomeJSON struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Level     int    `json:"level"`
	Reason    string `json:"reason,omitempty"`
	EndedAt   string `json:"ended_at"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	FakeCalls   int `json:"fake_calls"`
	Sessions    int `json:"sessions"`
	Escalations int `json:"escalations"`
	Fired       int `json:"fired"`
	Cancelled   int `json:"cancelled"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	CountdownSeconds int      `json:"countdown_seconds"`
	TickMs           int64    `json:"tick_ms"`
	HeartbeatMs      int64    `json:"heartbeat_ms"`
	Broker           string   `json:"broker"`
	HTTPAddr         string   `json:"http_addr"`
	Inputs           []string `json:"inputs"`
	Gestures         []string `json:"gestures"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Armed:         snap.Session.Active,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			FakeCalls:   snap.Counts.FakeCalls,
			Sessions:    snap.Counts.Sessions,
			Escalations: snap.Counts.Escalations,
			Fired:       snap.Counts.Fired,
			Cancelled:   snap.Counts.Cancelled,
		},
		Config: ConfigJSON{
			CountdownSeconds: snap.Config.CountdownSeconds,
			TickMs:           snap.Config.TickMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
			Inputs:           nonNil(snap.Config.Inputs),
			Gestures:         nonNil(snap.Config.Gestures),
		},
	}

	if s := snap.Session; s.Active {
		inner.Session = &SessionJSON{
			ID:                s.ID,
			Source:            s.Source,
			Level:             s.Level,
			SecondsRemaining:  s.SecondsRemaining,
			AdditionalPresses: s.AdditionalPresses,
			StartedAt:         s.StartedAt.UTC().Format(time.RFC3339),
		}
	}
	if o := snap.LastOutcome; o != nil {
		inner.LastOutcome = &OutcomeJSON{
			SessionID: o.SessionID,
			Status:    string(o.Status),
			Level:     o.Level,
			Reason:    o.Reason,
			EndedAt:   o.EndedAt.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
