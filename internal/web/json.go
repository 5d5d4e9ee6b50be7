package web

import (
	"time"

	"github.com/sweeney/sos-trigger/internal/store"
)

type cancelJSON struct {
	Cancelled bool `json:"cancelled"`
}

type errorJSON struct {
	Error string `json:"error"`
}

// IncidentsJSON is the envelope for /incidents.json.
type IncidentsJSON struct {
	Incidents []IncidentJSON `json:"incidents"`
}

// IncidentJSON is the JSON representation of one ended session.
type IncidentJSON struct {
	ID                string   `json:"id"`
	Source            string   `json:"source"`
	Status            string   `json:"status"`
	Level             int      `json:"level"`
	AdditionalPresses int      `json:"additional_presses"`
	StartedAt         string   `json:"started_at"`
	EndedAt           string   `json:"ended_at"`
	DurationSeconds   int64    `json:"duration_seconds"`
	Reason            string   `json:"reason,omitempty"`
	Responses         []string `json:"responses,omitempty"`
}

func formatIncidents(in []store.Incident) IncidentsJSON {
	out := IncidentsJSON{Incidents: make([]IncidentJSON, 0, len(in))}
	for _, inc := range in {
		var responses []string
		for _, r := range inc.Responses {
			responses = append(responses, string(r))
		}
		out.Incidents = append(out.Incidents, IncidentJSON{
			ID:                inc.ID,
			Source:            inc.Source,
			Status:            string(inc.Status),
			Level:             inc.Level,
			AdditionalPresses: inc.AdditionalPresses,
			StartedAt:         inc.StartedAt.UTC().Format(time.RFC3339),
			EndedAt:           inc.EndedAt.UTC().Format(time.RFC3339),
			DurationSeconds:   int64(inc.EndedAt.Sub(inc.StartedAt).Truncate(time.Second).Seconds()),
			Reason:            inc.Reason,
			Responses:         responses,
		})
	}
	return out
}
