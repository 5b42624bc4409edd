package units

import (
	"testing"
	"time"
)

func TestIsTimezoneValid(t *testing.T) {
	tests := []struct {
		timezone string
		expected bool
	}{
		{"UTC", true},
		{"America/New_York", true},
		{"Europe/Berlin", true},
		{"Mars/Olympus_Mons", false},
		{"", false},
		{"utc ", false},
	}

	for _, tt := range tests {
		res := IsTimezoneValid(tt.timezone)
		if res != tt.expected {
			t.Errorf("IsTimezoneValid(%s) = %v, want %v", tt.timezone, res, tt.expected)
		}
	}
}

func TestDayBounds(t *testing.T) {
	start, end, err := DayBounds("2026-08-25", "UTC")
	if err != nil {
		t.Fatalf("DayBounds error: %v", err)
	}
	wantStart := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", start, wantStart)
	}
	if got := end.Sub(start); got != 24*time.Hour {
		t.Errorf("day length = %v, want 24h", got)
	}
	if end.Hour() != 0 || end.Day() != 26 {
		t.Errorf("end = %v, want midnight on the 26th", end)
	}
}

// A spring-forward day is 23 hours long. The end bound must still land on
// the next midnight, not on 11pm.
func TestDayBoundsDSTTransition(t *testing.T) {
	start, end, err := DayBounds("2026-03-08", "America/New_York")
	if err != nil {
		t.Fatalf("DayBounds error: %v", err)
	}
	if got := end.Sub(start); got != 23*time.Hour {
		t.Errorf("spring-forward day length = %v, want 23h", got)
	}
	if end.Hour() != 0 {
		t.Errorf("end lands at hour %d, want midnight", end.Hour())
	}
}

func TestDayBoundsRejectsBadInput(t *testing.T) {
	if _, _, err := DayBounds("08/25/2026", "UTC"); err == nil {
		t.Error("expected an error for a non-ISO day")
	}
	if _, _, err := DayBounds("2026-08-25", "Mars/Olympus_Mons"); err == nil {
		t.Error("expected an error for an unknown timezone")
	}
}
