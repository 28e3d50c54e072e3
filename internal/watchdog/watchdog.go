// Package watchdog schedules the inactivity checks of conversation sessions.
//
// Timers are never cancelled individually. Each arming captures the session
// generation, and the handler compares it with the stored session when the
// timer fires; a stale timer is a no-op there.
package watchdog

import (
	"sync"
	"time"
)

// Kind distinguishes the two timers of the inactivity chain.
type Kind int

const (
	// Idle fires after the inactivity timeout and asks the user to confirm.
	Idle Kind = iota
	// Final fires after the follow-up timeout and closes the session.
	Final
)

func (k Kind) String() string {
	if k == Final {
		return "final"
	}
	return "idle"
}

// Timer is a scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules on the runtime timers.
type SystemScheduler struct{}

func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config holds the two timeouts.
type Config struct {
	Inactivity time.Duration
	Final      time.Duration
}

// DefaultConfig returns 90s of inactivity followed by a 30s grace period.
func DefaultConfig() Config {
	return Config{Inactivity: 90 * time.Second, Final: 30 * time.Second}
}

// Handler receives fired timers.
type Handler func(userID string, generation int64, kind Kind)

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithScheduler replaces the runtime scheduler.
func WithScheduler(s Scheduler) Option {
	return func(w *Watchdog) { w.sched = s }
}

// Watchdog arms generation-tagged timers and tracks them until they fire so
// that Stop can release everything on shutdown.
type Watchdog struct {
	cfg     Config
	sched   Scheduler
	handler Handler

	mu      sync.Mutex
	pending map[uint64]Timer
	seq     uint64
	stopped bool
	running sync.WaitGroup
}

// New creates a watchdog delivering fired timers to handler. Zero timeouts
// fall back to the defaults.
func New(cfg Config, handler Handler, opts ...Option) *Watchdog {
	def := DefaultConfig()
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = def.Inactivity
	}
	if cfg.Final <= 0 {
		cfg.Final = def.Final
	}
	w := &Watchdog{
		cfg:     cfg,
		sched:   SystemScheduler{},
		handler: handler,
		pending: make(map[uint64]Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Config returns the effective timeouts.
func (w *Watchdog) Config() Config { return w.cfg }

// Delay returns how long a timer of kind waits.
func (w *Watchdog) Delay(kind Kind) time.Duration {
	if kind == Final {
		return w.cfg.Final
	}
	return w.cfg.Inactivity
}

// Arm schedules a timer of kind for the session of userID at generation.
// It reports false once the watchdog has been stopped.
func (w *Watchdog) Arm(userID string, generation int64, kind Kind) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}

	w.seq++
	id := w.seq
	w.pending[id] = w.sched.AfterFunc(w.Delay(kind), func() {
		w.fire(id, userID, generation, kind)
	})
	return true
}

func (w *Watchdog) fire(id uint64, userID string, generation int64, kind Kind) {
	w.mu.Lock()
	delete(w.pending, id)
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.running.Add(1)
	w.mu.Unlock()

	defer w.running.Done()
	w.handler(userID, generation, kind)
}

// Pending returns the number of timers that have not fired yet.
func (w *Watchdog) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stop cancels every outstanding timer and waits for handlers already
// running. Later calls to Arm are ignored.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
	w.mu.Unlock()

	w.running.Wait()
}
