package mqtt

import (
	"log/slog"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// Notifier forwards coordinator notifications to a Publisher. Publish
// failures are logged and dropped.
type Notifier struct {
	pub Publisher
	log *slog.Logger
}

// NewNotifier wraps pub.
func NewNotifier(pub Publisher, log *slog.Logger) *Notifier {
	return &Notifier{pub: pub, log: log.With("component", "mqtt")}
}

func (n *Notifier) OnAction(ev logic.ActionEvent) {
	if err := n.pub.PublishAction(ev); err != nil {
		n.log.Warn("publish action failed", "action", ev.Action, "error", err)
	}
}

func (n *Notifier) OnTick(ev logic.TickEvent) {
	if err := n.pub.PublishTick(ev); err != nil {
		n.log.Warn("publish tick failed", "session_id", ev.SessionID, "error", err)
	}
}

func (n *Notifier) OnTerminal(ev logic.TerminalEvent) {
	if err := n.pub.PublishOutcome(ev); err != nil {
		n.log.Warn("publish outcome failed", "session_id", ev.SessionID, "status", ev.Status, "error", err)
	}
}
