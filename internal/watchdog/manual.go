package watchdog

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance instead of wall time. Callbacks run
// synchronously on the goroutine calling Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	m       *Manual
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewManual returns a scheduler at offset zero.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now + d, seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers in order. Timers
// armed by a callback fire in the same call if they fall due before the
// target.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.at
		next.fired = true
		m.mu.Unlock()

		next.f()
	}
}

func (m *Manual) nextDue(target time.Duration) *manualTimer {
	var next *manualTimer
	live := m.timers[:0]
	for _, t := range m.timers {
		if t.fired || t.stopped {
			continue
		}
		live = append(live, t)
		if t.at > target {
			continue
		}
		if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
			next = t
		}
	}
	m.timers = live
	return next
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}
