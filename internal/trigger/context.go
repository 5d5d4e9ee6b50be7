package trigger

import (
	"fmt"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// Context is one delivery surface attached to the coordinator. Each
// context owns its detectors; only the session is shared.
type Context struct {
	name     string
	coord    *Coordinator
	gestures *logic.GestureSet
}

var _ logic.Sink = (*Context)(nil)

// Name returns the context name given to Attach.
func (x *Context) Name() string { return x.name }

// OnRawEvent classifies ev against this context's gestures and applies the
// winning action to the shared session. The returned decision carries the
// action actually taken, so a start while armed comes back as NONE.
func (x *Context) OnRawEvent(ev logic.KeyEvent) logic.Decision {
	c := x.coord
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return logic.Decision{Action: logic.ActionPassThrough}
	}

	dec := x.gestures.Classify(ev, c.session != nil)
	switch dec.Action {
	case logic.ActionNone, logic.ActionPassThrough:
		return dec
	}
	dec.Action = c.apply(x.name, dec)
	dec.Consume = dec.Consume && dec.Action != logic.ActionNone
	return dec
}

// Reconfigure swaps this context's detectors. Press windows in progress are
// discarded.
func (x *Context) Reconfigure(gestures []logic.GestureConfig) error {
	set, err := logic.NewGestureSet(gestures)
	if err != nil {
		return fmt.Errorf("context %s: %w", x.name, err)
	}
	x.coord.mu.Lock()
	x.gestures = set
	x.coord.mu.Unlock()
	x.coord.log.Info("context reconfigured", "context", x.name, "gestures", len(gestures))
	return nil
}
