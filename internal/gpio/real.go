//go:build linux

package gpio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

// Watcher reports button edges from actual hardware using the Linux GPIO
// character device.
type Watcher struct {
	lines  *gpiocdev.Lines
	pins   map[int]logic.Button
	events chan logic.KeyEvent
	log    *slog.Logger

	mu     sync.Mutex
	anchor anchor
	closed bool
}

// NewWatcher requests the pins as active-low inputs with pull-ups and edge
// detection on both edges. A zero debounce disables kernel debouncing.
func NewWatcher(chip string, pins map[int]logic.Button, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	if len(pins) == 0 {
		return nil, fmt.Errorf("gpio: no pins configured")
	}
	w := &Watcher{
		pins:   pins,
		events: make(chan logic.KeyEvent, 32),
		log:    log.With("component", "gpio"),
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.AsActiveLow,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(w.handle),
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}

	lines, err := gpiocdev.RequestLines(chip, Offsets(pins), opts...)
	if err != nil {
		return nil, fmt.Errorf("request gpio lines on %s: %w", chip, err)
	}
	w.lines = lines
	w.log.Info("watching gpio buttons", "chip", chip, "pins", len(pins), "debounce", debounce)
	return w, nil
}

// Events returns the channel key events are delivered on.
func (w *Watcher) Events() <-chan logic.KeyEvent {
	return w.events
}

func (w *Watcher) handle(evt gpiocdev.LineEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	e := edge{
		Offset:    evt.Offset,
		Rising:    evt.Type == gpiocdev.LineEventRisingEdge,
		Timestamp: evt.Timestamp,
	}
	ev, ok := toKeyEvent(w.pins, e, w.anchor.at(e.Timestamp, time.Now))
	if !ok {
		return
	}
	select {
	case w.events <- ev:
	default:
		w.log.Warn("event queue full, dropping button event", "button", ev.Button, "transition", ev.Transition)
	}
}

// Close releases GPIO resources.
// Reconfigures the lines to input with pull-down (matching Pi boot defaults)
// before closing so external hardware sees a clean state at reboot.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()

	var errs []error
	if err := w.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure lines: %w", err))
	}
	if err := w.lines.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close lines: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
