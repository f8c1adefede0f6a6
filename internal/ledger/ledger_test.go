package ledger

import (
	"errors"
	"testing"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAddCommitted_Accumulates(t *testing.T) {
	l := openTest(t)

	if err := l.AddCommitted("2025-11-19", 50); err != nil {
		t.Fatal(err)
	}
	if err := l.AddCommitted("2025-11-19", 25); err != nil {
		t.Fatal(err)
	}

	got, err := l.CommittedForDayUSD("2025-11-19")
	if err != nil {
		t.Fatal(err)
	}
	if got != 75 {
		t.Fatalf("committed = %v, want 75", got)
	}
}

func TestCommittedForDayUSD_UnknownDayIsZero(t *testing.T) {
	l := openTest(t)
	got, err := l.CommittedForDayUSD("2099-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Fatalf("committed = %v, want 0 for unknown day", got)
	}
}

func TestRecordCycle_RoundTrips(t *testing.T) {
	l := openTest(t)

	if err := l.RecordCycle("EGLC", "2025-11-19", "published", nil); err != nil {
		t.Fatal(err)
	}
	lc, ok, err := l.LastCycleFor("EGLC", "2025-11-19")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a recorded cycle")
	}
	if lc.State != "published" {
		t.Errorf("state = %q, want published", lc.State)
	}
	if lc.Error != "" {
		t.Errorf("error = %q, want empty", lc.Error)
	}

	if err := l.RecordCycle("EGLC", "2025-11-19", "failed", errors.New("stale_input")); err != nil {
		t.Fatal(err)
	}
	lc, ok, err = l.LastCycleFor("EGLC", "2025-11-19")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || lc.State != "failed" || lc.Error != "stale_input" {
		t.Fatalf("unexpected state after update: %+v", lc)
	}
}

func TestForDay_AdaptsToSizingLedger(t *testing.T) {
	l := openTest(t)
	l.AddCommitted("2025-11-19", 42)

	view := l.ForDay("2025-11-19")
	if view.CommittedTodayUSD() != 42 {
		t.Fatalf("view committed = %v, want 42", view.CommittedTodayUSD())
	}
}
