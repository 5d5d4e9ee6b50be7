package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// Recorder writes every terminal session to the store. Actions and ticks
// are ignored.
type Recorder struct {
	store   *Store
	log     *slog.Logger
	timeout time.Duration
}

// NewRecorder wraps s.
func NewRecorder(s *Store, log *slog.Logger) *Recorder {
	return &Recorder{store: s, log: log.With("component", "store"), timeout: 5 * time.Second}
}

func (r *Recorder) OnAction(logic.ActionEvent) {}

func (r *Recorder) OnTick(logic.TickEvent) {}

func (r *Recorder) OnTerminal(ev logic.TerminalEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.store.Record(ctx, FromTerminal(ev)); err != nil {
		r.log.Warn("record incident failed", "session_id", ev.SessionID, "error", err)
		return
	}
	r.log.Debug("incident recorded", "session_id", ev.SessionID, "status", ev.Status)
}
