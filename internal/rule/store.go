package rule

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the current Policy Snapshot behind a lock-free atomic
// pointer. Readers call Snapshot() and take a reference good for the
// duration of one evaluation; writers call Replace() to atomically swap in
// a new Snapshot, generalized from the teacher's engine holding a single
// []CompiledPolicy under a sync.RWMutex into the spec's atomic-swap design
// (SPEC_FULL.md §5).
type Store struct {
	current atomic.Pointer[Snapshot]

	// writeMu serializes writers only; readers never take it.
	writeMu sync.Mutex
	version int

	// lastLoadAt/lastLoadErr back the Health Monitor's Policy Store hook
	// (snapshot age / last reload error, SPEC_FULL.md §4.9).
	lastLoadAt  atomic.Pointer[time.Time]
	lastLoadErr atomic.Pointer[string]
}

// NewStore returns a Store seeded with an empty Snapshot so Snapshot()
// never returns nil.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{})
	return s
}

// Snapshot returns the current Snapshot. O(1): a single atomic load.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Replace atomically swaps in a new Snapshot, assigning it the next
// version number. Safe for concurrent callers; writers serialize on
// writeMu so version numbers are strictly increasing.
func (s *Store) Replace(next *Snapshot) error {
	if next == nil {
		return fmt.Errorf("cannot replace store with a nil snapshot")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.version++
	next.Version = s.version
	s.current.Store(next)
	now := time.Now()
	s.lastLoadAt.Store(&now)
	s.lastLoadErr.Store(nil)
	return nil
}

// RecordLoadError notes a failed reload attempt without touching the
// current Snapshot, so the Health Monitor can report a stale-but-serving
// Policy Store instead of silently losing the last load failure.
func (s *Store) RecordLoadError(err error) {
	msg := err.Error()
	s.lastLoadErr.Store(&msg)
}

// LastLoadAt returns the time of the most recent successful Replace, or
// the zero Time if none has occurred yet.
func (s *Store) LastLoadAt() time.Time {
	if t := s.lastLoadAt.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// LastLoadError returns the error message from the most recent failed
// reload attempt, or "" if the last attempt (or every attempt so far)
// succeeded.
func (s *Store) LastLoadError() string {
	if m := s.lastLoadErr.Load(); m != nil {
		return *m
	}
	return ""
}

// NextVersion reports the version number the next Replace call will assign,
// for callers (e.g. the Watcher) that need to stamp a Snapshot before
// handing it to Compile.
func (s *Store) NextVersion() int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.version + 1
}
