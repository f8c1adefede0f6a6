package units

import (
	"testing"
	"time"
)

func TestKelvinToFahrenheit(t *testing.T) {
	cases := []struct {
		k, want float64
	}{
		{273.15, 32},
		{373.15, 212},
		{0, -459.67},
	}
	for _, c := range cases {
		got := KelvinToFahrenheit(c.k)
		if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("KelvinToFahrenheit(%v) = %v, want %v", c.k, got, c.want)
		}
	}
}

func TestRoundHalfUpBoundary(t *testing.T) {
	// Seed scenario from spec.md §8: hourly precise highs rounded to 1dp
	// then max then half-up to whole degree.
	precise := []float64{45.428, 45.50, 45.32}
	var maxOneDP float64
	for i, v := range precise {
		r := RoundTo(v, 1)
		if i == 0 || r > maxOneDP {
			maxOneDP = r
		}
	}
	if maxOneDP != 45.5 {
		t.Fatalf("maxOneDP = %v, want 45.5", maxOneDP)
	}
	if got := RoundHalfUp(maxOneDP); got != 46 {
		t.Errorf("RoundHalfUp(45.5) = %v, want 46", got)
	}
}

func TestLocalMidnightUTC_DST(t *testing.T) {
	// America/New_York: 2025-11-02 is the US fall-back DST transition.
	mid, err := LocalMidnightUTC("2025-11-02", "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	loc, _ := time.LoadLocation("America/New_York")
	back := mid.In(loc)
	if back.Hour() != 0 || back.Day() != 2 {
		t.Errorf("round-trip local midnight = %v, want 2025-11-02 00:00 local", back)
	}
}

func TestAddEventDays(t *testing.T) {
	got, err := AddEventDays("2025-11-19", "America/Chicago", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != "2025-11-21" {
		t.Errorf("AddEventDays = %s, want 2025-11-21", got)
	}
}
