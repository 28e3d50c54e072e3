// Package keylock provides one exclusive section per key.
//
// Callers holding different keys never block each other. Entries are
// reference counted and removed once no goroutine holds or waits on them,
// so the set does not grow with the number of users ever seen.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Set is a set of per-key mutexes. The zero value is ready to use.
type Set struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty Set.
func New() *Set {
	return &Set{}
}

// Lock blocks until the section for key is free and returns its unlock
// function. Waiters acquire the section in the order the runtime grants the
// underlying mutex.
func (s *Set) Lock(key string) (unlock func()) {
	s.mu.Lock()
	if s.entries == nil {
		s.entries = make(map[string]*entry)
	}
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			s.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(s.entries, key)
			}
			s.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or waited on.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
