// Package backoff implements the Retry/Back-off Coordinator of
// spec.md §4.4: per-destination retry counters, delay computation, and
// abandonment on limit.
package backoff

import (
	"sync"
	"time"
)

// Log is the long-lived per-destination statistics record of spec.md §3
// DownloadLog. It is process-lifetime only: spec.md's Non-goals explicitly
// exclude durable persistence across restarts.
type Log struct {
	Retries             int
	LastDownloadAttempt time.Time
	DownloadedAt        time.Time
}

// Store is the map of destination path to Log, guarded by a single mutex
// the way glorpus-work-gotya's ManagerImpl guards its maps.
type Store struct {
	mu   sync.Mutex
	logs map[string]*Log
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{logs: make(map[string]*Log)}
}

func (s *Store) ensureLocked(destination string) *Log {
	l, ok := s.logs[destination]
	if !ok {
		l = &Log{}
		s.logs[destination] = l
	}
	return l
}

// Ensure returns the Log for destination, creating it if absent (spec.md
// §4.4 step 1).
func (s *Store) Ensure(destination string) *Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(destination)
}

// Get returns a copy of the Log for destination, or the zero value if none
// exists, for read-only inspection (e.g. tests, status reporting).
func (s *Store) Get(destination string) Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[destination]; ok {
		return *l
	}
	return Log{}
}

// RecordAttempt stamps LastDownloadAttempt (spec.md §4.3 step 6, invoked by
// the Download Engine itself, not just the Coordinator).
func (s *Store) RecordAttempt(destination string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(destination).LastDownloadAttempt = now
}

// RecordSuccess resets Retries to 0 and stamps DownloadedAt (spec.md §3
// invariant 3, §4.4 step 5).
func (s *Store) RecordSuccess(destination string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.ensureLocked(destination)
	l.Retries = 0
	l.DownloadedAt = now
}

// BumpRetry increments Retries and returns the new count. It does not look
// at the failure; Coordinator.Attempt skips calling it for Duplicate
// variants (spec.md §4.4 step 6).
func (s *Store) BumpRetry(destination string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.ensureLocked(destination)
	l.Retries++
	return l.Retries
}

// Retries returns the current retry count for destination.
func (s *Store) Retries(destination string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(destination).Retries
}
