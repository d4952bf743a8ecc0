// Package audit implements the Audit Sink: a bounded in-memory ring of
// AuditEntries fed through a non-blocking submit path, plus aggregate
// statistics. Grounded on the teacher's alert.Manager (async, non-blocking
// dispatch off the hot path) and proxy.generateTraceID (ULID trace ids),
// generalized from alert delivery to audit recording per SPEC_FULL.md §4.7.
package audit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/toolprint/superego/internal/decision"
	"github.com/toolprint/superego/internal/request"
)

// DefaultCapacity is the ring's default entry capacity.
const DefaultCapacity = 10_000

// Entry is a single audit record: a request, the Decision it produced, and
// any rule/injection annotations. Created once, never mutated.
type Entry struct {
	ID           string
	Timestamp    time.Time
	Request      request.ToolRequest
	Decision     decision.Decision
	RuleMatches  []string
}

// Sink is a fixed-capacity ring buffer of Entries, fed through a buffered
// channel and a single drain goroutine so Record never blocks the hot
// evaluation path on a slow or full ring, matching the teacher's async
// alert-dispatch posture applied to audit recording.
type Sink struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	next     int
	filled   bool

	submit chan Entry
	done   chan struct{}
	logger *slog.Logger

	totalCount   int64
	allowedCount int64
	deniedCount  int64
	totalMs      int64

	persist func(Entry)
}

// SetPersistFunc registers a callback invoked from the drain goroutine for
// every stored entry, after the in-memory ring is updated. Used to
// write-through to an optional persistent backing store (e.g.
// audit/sqlitesink) without adding a blocking call to Record's hot path --
// the callback runs on the same goroutine that already owns serialization
// of ring writes. nil disables persistence (the default).
func (s *Sink) SetPersistFunc(fn func(Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = fn
}

// New builds a Sink with the given ring capacity (DefaultCapacity if <= 0)
// and starts its background drain goroutine.
func New(capacity int, logger *slog.Logger) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		entries:  make([]Entry, capacity),
		capacity: capacity,
		submit:   make(chan Entry, 1024),
		done:     make(chan struct{}),
		logger:   logger.With("component", "audit.Sink"),
	}
	go s.drain()
	return s
}

// Record submits a completed evaluation for audit recording. Non-blocking:
// if the internal submit buffer is full, the entry is dropped and logged
// rather than stalling the caller -- audit recording must never couple log
// latency to evaluation latency (SPEC_FULL.md §4.7).
func (s *Sink) Record(req request.ToolRequest, dec decision.Decision, ruleMatches []string) {
	entry := Entry{
		ID:          ulid.Make().String(),
		Timestamp:   time.Now(),
		Request:     req,
		Decision:    dec,
		RuleMatches: ruleMatches,
	}
	select {
	case s.submit <- entry:
	default:
		s.logger.Warn("audit submit buffer full, dropping entry", "entry_id", entry.ID)
	}
}

func (s *Sink) drain() {
	defer close(s.done)
	for entry := range s.submit {
		s.store(entry)
	}
}

func (s *Sink) store(entry Entry) {
	s.mu.Lock()
	s.entries[s.next] = entry
	s.next = (s.next + 1) % s.capacity
	if s.next == 0 {
		s.filled = true
	}

	s.totalCount++
	if entry.Decision.Action == decision.ActionAllow {
		s.allowedCount++
	} else {
		s.deniedCount++
	}
	s.totalMs += entry.Decision.ProcessingTimeMs
	persist := s.persist
	s.mu.Unlock()

	if persist != nil {
		persist(entry)
	}
}

// Close stops the drain goroutine after flushing any entries already
// submitted.
func (s *Sink) Close() {
	close(s.submit)
	<-s.done
}

// Recent returns a copy of the n most recently recorded entries, newest
// first. Safe for concurrent use with Record.
func (s *Sink) Recent(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.capacity
	if !s.filled {
		size = s.next
	}
	if n > size {
		n = size
	}
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.next - 1 - i + s.capacity) % s.capacity
		out = append(out, s.entries[idx])
	}
	return out
}

// Stats is the aggregate audit view: total decisions, allow/deny split,
// allow rate, and average processing time.
type Stats struct {
	Total             int64
	Allowed           int64
	Denied            int64
	AllowRate         float64
	AvgProcessingTime float64
}

// Stats computes the current aggregate statistics in O(1).
func (s *Sink) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: s.totalCount, Allowed: s.allowedCount, Denied: s.deniedCount}
	if s.totalCount > 0 {
		st.AllowRate = float64(s.allowedCount) / float64(s.totalCount)
		st.AvgProcessingTime = float64(s.totalMs) / float64(s.totalCount)
	}
	return st
}

// Utilization returns the ring's fill ratio in [0, 1]. The Health
// Monitor's Audit Sink hook does not use it (a wrapped ring reads 1.0 in
// normal operation); it gauges SubmitBacklog instead.
func (s *Sink) Utilization() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.filled {
		return 1.0
	}
	return float64(s.next) / float64(s.capacity)
}

// SubmitBacklog reports how many entries are currently queued in the
// submit channel awaiting the drain goroutine, a rough backpressure gauge.
func (s *Sink) SubmitBacklog() int {
	return len(s.submit)
}

// SubmitCapacity returns the submit channel's fixed capacity, for turning
// SubmitBacklog into a ratio.
func (s *Sink) SubmitCapacity() int {
	return cap(s.submit)
}
