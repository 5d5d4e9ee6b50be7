package evdev

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/sweeney/sos-trigger/internal/logic"
	"golang.org/x/sys/unix"
)

// EVIOCGRAB from <linux/input.h>.
const eviocgrab = 0x40044590

// Reader streams key events from an input device node.
type Reader struct {
	f      *os.File
	path   string
	keys   map[uint16]logic.Button
	events chan logic.KeyEvent
	log    *slog.Logger
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewReader opens the device and starts reading. With grab set the device
// is opened exclusively, so other readers stop seeing its keys.
func NewReader(path string, keys map[uint16]logic.Button, grab bool, log *slog.Logger) (*Reader, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open input device %s: %w", path, err)
	}
	if grab {
		if err := grabDevice(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("grab input device %s: %w", path, err)
		}
	}

	r := newReader(f, path, keys, log)
	r.log.Info("reading input device", "keys", len(keys), "grab", grab)
	return r, nil
}

func newReader(f *os.File, path string, keys map[uint16]logic.Button, log *slog.Logger) *Reader {
	r := &Reader{
		f:      f,
		path:   path,
		keys:   keys,
		events: make(chan logic.KeyEvent, 32),
		log:    log.With("component", "evdev", "device", path),
		done:   make(chan struct{}),
	}
	go r.readLoop()
	return r
}

// grabDevice goes through SyscallConn because f.Fd would switch the file to
// blocking mode and Close could no longer interrupt a pending Read.
func grabDevice(f *os.File) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	if err := rc.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetInt(int(fd), eviocgrab, 1)
	}); err != nil {
		return err
	}
	return ioctlErr
}

// Events returns the channel key events are delivered on. It is closed
// when the device is closed or fails.
func (r *Reader) Events() <-chan logic.KeyEvent {
	return r.events
}

func (r *Reader) readLoop() {
	defer close(r.done)
	defer close(r.events)

	buf := make([]byte, eventSize*16)
	for {
		n, err := r.f.Read(buf)
		if err != nil {
			if !r.isClosed() && !errors.Is(err, io.EOF) {
				r.log.Error("input device read failed", "error", err)
			}
			return
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			raw, err := decode(buf[off : off+eventSize])
			if err != nil {
				r.log.Warn("bad input event", "error", err)
				continue
			}
			ev, ok := translate(raw, r.keys)
			if !ok {
				continue
			}
			select {
			case r.events <- ev:
			default:
				r.log.Warn("event queue full, dropping key event", "button", ev.Button)
			}
		}
	}
}

func (r *Reader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close releases the device and waits for the read loop to exit.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := r.f.Close()
	<-r.done
	if err != nil {
		return fmt.Errorf("close input device %s: %w", r.path, err)
	}
	return nil
}
