//go:build !linux

package evdev

import (
	"errors"
	"log/slog"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// Reader is not available on non-Linux platforms.
type Reader struct{}

// NewReader returns an error on non-Linux platforms.
func NewReader(string, map[uint16]logic.Button, bool, *slog.Logger) (*Reader, error) {
	return nil, errors.New("evdev: not supported on this platform (requires Linux)")
}

// Events returns nil on non-Linux platforms.
func (r *Reader) Events() <-chan logic.KeyEvent { return nil }

// Close is not implemented on non-Linux platforms.
func (r *Reader) Close() error { return nil }
