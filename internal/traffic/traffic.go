// Package traffic keeps sliding-window counts of archive fetch outcomes and
// rate-limit denials. The health handler derives degraded state from it.
package traffic

import (
	"sync"
	"time"
)

// Kind classifies a recorded event.
type Kind uint8

const (
	Success Kind = iota
	Error
	Denied
)

// DefaultRetention is how long events are kept when no retention is set.
const DefaultRetention = 5 * time.Minute

var defaultTracker = NewTracker(DefaultRetention)

// RecordSuccess records a successful archive fetch.
func RecordSuccess() { defaultTracker.Record(Success) }

// RecordError records a failed archive fetch (remote, network or malformed).
func RecordError() { defaultTracker.Record(Error) }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.Record(Denied) }

// RequestCount returns the number of events of any kind within the window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.Count(Denied, window) }

// ErrorRate returns (errorCount, totalCount) within the window. Denials are excluded.
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears all recorded events. For tests only.
func Reset() { defaultTracker.Reset() }

type event struct {
	at   time.Time
	kind Kind
}

// Tracker holds time-ordered events for at most retention.
type Tracker struct {
	mu        sync.Mutex
	events    []event
	retention time.Duration
	now       func() time.Time
}

// NewTracker returns a Tracker that forgets events older than retention.
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention, now: time.Now}
}

// Record appends an event at the current time.
func (t *Tracker) Record(k Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, kind: k})
	t.pruneLocked(now)
}

// Count returns the number of events of kind k within the window.
func (t *Tracker) Count(k Kind, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.inWindowLocked(window) {
		if e.kind == k {
			n++
		}
	}
	return n
}

// RequestCount returns the number of events of any kind within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inWindowLocked(window))
}

// ErrorRate returns (errorCount, successCount+errorCount) within the window.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.inWindowLocked(window) {
		switch e.kind {
		case Error:
			errors++
			total++
		case Success:
			total++
		}
	}
	return errors, total
}

// Reset clears all recorded events.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// inWindowLocked returns the suffix of events not before now-window. Caller holds mu.
func (t *Tracker) inWindowLocked(window time.Duration) []event {
	cutoff := t.now().Add(-window)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	return t.events[i:]
}

// pruneLocked drops events older than retention. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
