package transfer

import (
	"time"

	"github.com/Sternrassler/duoload/pkg/vocab"
)

// Session is the run-scoped state of one transfer. It lives for a single
// Run and is never persisted.
type Session struct {
	// PageLimit caps the number of pages fetched. Zero means no limit.
	PageLimit int

	// StartedAt is when the run began.
	StartedAt time.Time

	filter  *Filter
	fetched int
	pages   int
}

// NewSession starts a session at now.
func NewSession(pageLimit int, now time.Time) *Session {
	if pageLimit < 0 {
		pageLimit = 0
	}
	return &Session{
		PageLimit: pageLimit,
		StartedAt: now,
		filter:    NewFilter(),
	}
}

// Observe counts rec as fetched and reports whether it is admitted.
func (s *Session) Observe(rec vocab.Record) bool {
	s.fetched++
	return s.filter.Admit(rec)
}

// CompletePage counts a fully processed page.
func (s *Session) CompletePage() {
	s.pages++
}

// Fetched returns the number of records received.
func (s *Session) Fetched() int {
	return s.fetched
}

// Admitted returns the number of records passed on to the sink.
func (s *Session) Admitted() int {
	return s.filter.Len()
}

// Duplicates returns the number of records skipped as duplicates.
func (s *Session) Duplicates() int {
	return s.filter.Duplicates()
}

// Summary returns the session counters as of now.
func (s *Session) Summary(now time.Time) Summary {
	return Summary{
		Pages:             s.pages,
		Fetched:           s.fetched,
		Admitted:          s.Admitted(),
		DuplicatesSkipped: s.Duplicates(),
		Elapsed:           now.Sub(s.StartedAt),
	}
}

// Summary is the outcome of a transfer.
type Summary struct {
	Pages             int
	Fetched           int
	Admitted          int
	DuplicatesSkipped int
	LimitReached      bool
	Elapsed           time.Duration
}
