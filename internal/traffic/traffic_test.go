package traffic

import (
	"testing"
	"time"
)

// TestRequestCount_Empty verifies that RequestCount returns 0 when no
// outcomes have been recorded within the time window.
func TestRequestCount_Empty(t *testing.T) {
	Reset()
	if n := RequestCount(1 * time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

// TestRecord_AllKindsCounted verifies that every outcome kind counts toward RequestCount.
func TestRecord_AllKindsCounted(t *testing.T) {
	Reset()
	Record(Found)
	Record(Failed)
	Record(Denied)
	if n := RequestCount(1 * time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
	if n := DenialCount(1 * time.Minute); n != 1 {
		t.Errorf("DenialCount() = %d, want 1", n)
	}
}

// TestFailureRate_DeniedExcluded verifies that denials never enter the failure rate.
func TestFailureRate_DeniedExcluded(t *testing.T) {
	Reset()
	Record(Found)
	Record(Denied)
	Record(Denied)
	failed, total := FailureRate(1 * time.Minute)
	if failed != 0 || total != 1 {
		t.Errorf("FailureRate() = (%d, %d), want (0, 1)", failed, total)
	}
}

func TestFailureRate_FoundAndFailed(t *testing.T) {
	Reset()
	Record(Found)
	Record(Found)
	Record(Failed)
	failed, total := FailureRate(1 * time.Minute)
	if failed != 1 || total != 3 {
		t.Errorf("FailureRate() = (%d, %d), want (1, 3)", failed, total)
	}
}

func TestFailureRate_MissingCountsAsAnswered(t *testing.T) {
	Reset()
	Record(Missing)
	Record(Missing)
	Record(Failed)
	Record(Denied)
	failed, total := FailureRate(time.Minute)
	if failed != 1 || total != 3 {
		t.Errorf("FailureRate() = (%d, %d), want (1, 3)", failed, total)
	}
}

// TestTracker_WindowAndPrune drives a fake clock past the window and the retention bound.
func TestTracker_WindowAndPrune(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(0)
	tr.now = func() time.Time { return now }

	tr.Record(Failed)
	now = now.Add(30 * time.Second)
	tr.Record(Found)

	if n := tr.RequestCount(10 * time.Second); n != 1 {
		t.Errorf("RequestCount(10s) = %d, want 1", n)
	}
	if n := tr.RequestCount(time.Minute); n != 2 {
		t.Errorf("RequestCount(1m) = %d, want 2", n)
	}

	now = now.Add(DefaultRetention + time.Second)
	tr.Record(Denied)
	if len(tr.events) != 1 {
		t.Errorf("events after prune = %d, want 1", len(tr.events))
	}
}

// TestTracker_RetainCoversLongWindow checks that a window longer than the default
// retention still sees events older than the default.
func TestTracker_RetainCoversLongWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(0)
	tr.now = func() time.Time { return now }
	tr.Retain(10 * time.Minute)
	tr.Retain(time.Minute) // shorter request must not shrink retention

	tr.Record(Failed)
	now = now.Add(6 * time.Minute)
	tr.Record(Found)

	failed, total := tr.FailureRate(10 * time.Minute)
	if failed != 1 || total != 2 {
		t.Errorf("FailureRate(10m) = (%d, %d), want (1, 2)", failed, total)
	}
}

// TestReset verifies that Reset clears all recorded outcomes.
func TestReset(t *testing.T) {
	Reset()
	Record(Found)
	Record(Failed)
	Record(Denied)
	Reset()
	if n := RequestCount(1 * time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
	failed, total := FailureRate(1 * time.Minute)
	if failed != 0 || total != 0 {
		t.Errorf("FailureRate() = (%d, %d), want (0, 0)", failed, total)
	}
}
