// Package traffic keeps a sliding window of user lookup outcomes. Health reads the
// failure rate from it and the rate-limit gauges read request and denial counts.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one request on the user lookup path.
type Outcome uint8

const (
	// Found: the collaborator returned a user.
	Found Outcome = iota
	// Failed: the collaborator failed and the lookup came back absent.
	Failed
	// Denied: the rate limiter rejected the request before any lookup.
	Denied
	// Missing: the collaborator answered that the user does not exist.
	Missing
)

// DefaultRetention is how long a Tracker keeps events unless asked for a longer window.
const DefaultRetention = 5 * time.Minute

var defaultTracker = NewTracker(DefaultRetention)

// Retain extends the process-wide tracker so windows up to d are answered in full.
func Retain(d time.Duration) {
	defaultTracker.Retain(d)
}

// Record adds an outcome to the process-wide tracker.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// RequestCount returns the number of outcomes of any kind within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.Count(Denied, window)
}

// FailureRate returns (failed, failed+found+missing) within the window. Denials are excluded.
func FailureRate(window time.Duration) (failed, total int) {
	return defaultTracker.FailureRate(window)
}

// Reset clears the process-wide tracker. For tests only.
func Reset() {
	defaultTracker.Reset()
}

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker is a time-ordered log of outcomes, pruned past retention on every write.
type Tracker struct {
	mu        sync.Mutex
	events    []event
	retention time.Duration
	now       func() time.Time
}

// NewTracker returns an empty Tracker on the wall clock. A non-positive retention
// means DefaultRetention.
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention, now: time.Now}
}

// Retain raises retention to d. It never shortens it.
func (t *Tracker) Retain(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d > t.retention {
		t.retention = d
	}
}

// Record appends an outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Count returns how many outcomes of kind o fall within the window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	t.eachInWindowLocked(window, func(e event) {
		if e.outcome == o {
			n++
		}
	})
	return n
}

// RequestCount returns how many outcomes of any kind fall within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	t.eachInWindowLocked(window, func(event) { n++ })
	return n
}

// FailureRate returns (failed, failed+found+missing) within the window.
func (t *Tracker) FailureRate(window time.Duration) (failed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eachInWindowLocked(window, func(e event) {
		switch e.outcome {
		case Failed:
			failed++
			total++
		case Found, Missing:
			total++
		}
	})
	return failed, total
}

// Reset drops every recorded outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

func (t *Tracker) eachInWindowLocked(window time.Duration, fn func(event)) {
	cutoff := t.now().Add(-window)
	for _, e := range t.events {
		if !e.at.Before(cutoff) {
			fn(e)
		}
	}
}

// pruneLocked drops events older than retention. events is time-ordered.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
