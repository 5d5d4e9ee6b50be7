package trigger

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sweeney/sos-trigger/internal/logic"
)

// Fanout delivers every notification to each target in order. A panicking
// target is logged and skipped so the others still see the event.
type Fanout struct {
	targets []Notifier
	log     *slog.Logger
}

var _ Notifier = (*Fanout)(nil)

// NewFanout creates a Fanout over the given targets. Nil targets are
// skipped.
func NewFanout(log *slog.Logger, targets ...Notifier) *Fanout {
	f := &Fanout{log: log}
	for _, t := range targets {
		if t != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

func (f *Fanout) OnAction(ev logic.ActionEvent) {
	for _, t := range f.targets {
		f.safeCall("action", func() { t.OnAction(ev) })
	}
}

func (f *Fanout) OnTick(ev logic.TickEvent) {
	for _, t := range f.targets {
		f.safeCall("tick", func() { t.OnTick(ev) })
	}
}

func (f *Fanout) OnTerminal(ev logic.TerminalEvent) {
	for _, t := range f.targets {
		f.safeCall("terminal", func() { t.OnTerminal(ev) })
	}
}

func (f *Fanout) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("notifier panicked", "event", kind, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// terminalWait bounds how long a terminal event waits for room in a full
// queue before it is delivered on its own goroutine.
const terminalWait = 500 * time.Millisecond

// AsyncNotifier moves delivery off the caller's goroutine through a bounded
// queue. When the queue is full, action and tick events are dropped. A
// terminal event waits up to terminalWait for room so it stays behind the
// events already queued, then falls back to its own goroutine so an outcome
// is never lost. A panicking target is logged and the worker keeps going.
type AsyncNotifier struct {
	target Notifier
	log    *slog.Logger
	queue  chan func()
	done   chan struct{}
	wait   time.Duration

	mu     sync.RWMutex
	closed bool
	extra  sync.WaitGroup
}

var _ Notifier = (*AsyncNotifier)(nil)

// NewAsyncNotifier starts the delivery goroutine. Call Close to stop it.
func NewAsyncNotifier(target Notifier, size int, log *slog.Logger) *AsyncNotifier {
	if size <= 0 {
		size = 64
	}
	a := &AsyncNotifier{
		target: target,
		log:    log,
		queue:  make(chan func(), size),
		done:   make(chan struct{}),
		wait:   terminalWait,
	}
	go a.run()
	return a
}

func (a *AsyncNotifier) run() {
	defer close(a.done)
	for fn := range a.queue {
		a.deliver(fn)
	}
}

func (a *AsyncNotifier) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("notifier panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (a *AsyncNotifier) OnAction(ev logic.ActionEvent) {
	a.enqueue("action", func() { a.target.OnAction(ev) }, false)
}

func (a *AsyncNotifier) OnTick(ev logic.TickEvent) {
	a.enqueue("tick", func() { a.target.OnTick(ev) }, false)
}

func (a *AsyncNotifier) OnTerminal(ev logic.TerminalEvent) {
	a.enqueue("terminal", func() { a.target.OnTerminal(ev) }, true)
}

func (a *AsyncNotifier) enqueue(kind string, fn func(), mustDeliver bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.log.Warn("notifier closed, dropping event", "event", kind)
		return
	}
	select {
	case a.queue <- fn:
		return
	default:
	}
	if !mustDeliver {
		a.log.Warn("notifier queue full, dropping event", "event", kind)
		return
	}

	timer := time.NewTimer(a.wait)
	defer timer.Stop()
	select {
	case a.queue <- fn:
	case <-timer.C:
		a.log.Warn("notifier queue stalled, delivering out of order", "event", kind)
		a.extra.Add(1)
		go func() {
			defer a.extra.Done()
			a.deliver(fn)
		}()
	}
}

// Close stops accepting events, delivers what is queued and waits.
func (a *AsyncNotifier) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	a.extra.Wait()
}
