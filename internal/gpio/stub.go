//go:build !linux

package gpio

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// Watcher is not available on non-Linux platforms.
type Watcher struct{}

// NewWatcher returns an error on non-Linux platforms.
func NewWatcher(string, map[int]logic.Button, time.Duration, *slog.Logger) (*Watcher, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Events returns nil on non-Linux platforms.
func (w *Watcher) Events() <-chan logic.KeyEvent {
	return nil
}

// Close is not implemented on non-Linux platforms.
func (w *Watcher) Close() error {
	return nil
}
