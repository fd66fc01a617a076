// Package ratelimit throttles repeated prompts for a tool the user keeps
// denying.
package ratelimit

import (
	"sync"
	"time"
)

type entry struct {
	count        int
	lastDenial   time.Time
	backoffUntil time.Time
}

// Status is a point-in-time view of one tool's denial state.
type Status struct {
	Limited    bool
	Remaining  int
	Denials    int
	LastDenial time.Time
}

// Tracker records denials per tool name. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	entries  map[string]*entry
	schedule Schedule
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithSchedule replaces DefaultSchedule.
func WithSchedule(s Schedule) Option {
	return func(t *Tracker) { t.schedule = s }
}

// NewTracker returns an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		entries:  make(map[string]*entry),
		schedule: DefaultSchedule,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IsLimited reports whether tool is inside its backoff window.
func (t *Tracker) IsLimited(tool string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[tool]
	return ok && t.now().Before(e.backoffUntil)
}

// RecordDenial counts a denial and extends the backoff window.
func (t *Tracker) RecordDenial(tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[tool]
	if !ok {
		e = &entry{}
		t.entries[tool] = e
	}
	now := t.now()
	e.count++
	e.lastDenial = now
	e.backoffUntil = now.Add(t.schedule.Backoff(e.count))
}

// Reset forgets all denials for tool.
func (t *Tracker) Reset(tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, tool)
}

// Remaining returns whole seconds left in the backoff, rounded up.
func (t *Tracker) Remaining(tool string) int {
	return t.Status(tool).Remaining
}

// Status reports the tool's denial count and backoff.
func (t *Tracker) Status(tool string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[tool]
	if !ok {
		return Status{}
	}
	st := Status{Denials: e.count, LastDenial: e.lastDenial}
	left := e.backoffUntil.Sub(t.now())
	if left > 0 {
		st.Limited = true
		st.Remaining = int((left + time.Second - 1) / time.Second)
	}
	return st
}
