package main

import (
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func TestRingWraparound(t *testing.T) {
	b := newRing(3)
	base := time.Now()
	for i := 1; i <= 4; i++ {
		b.push(float64(i), base.Add(time.Duration(i)*time.Second))
	}

	if len(b.points) != 3 {
		t.Fatalf("expected 3 points after wraparound, got %d", len(b.points))
	}
	if b.points[0].value != 2 {
		t.Errorf("expected oldest point to be 2, got %v", b.points[0].value)
	}
	if b.last() != 4 {
		t.Errorf("expected last to be 4, got %v", b.last())
	}
	// Min and peak track everything ever pushed, not just what is retained.
	if b.min != 1 || b.peak != 4 {
		t.Errorf("expected min=1 peak=4, got min=%v peak=%v", b.min, b.peak)
	}
	if got := b.avg(); got != 3 {
		t.Errorf("expected avg of retained points to be 3, got %v", got)
	}
}

func TestRingBoundsFlatSeries(t *testing.T) {
	b := newRing(10)
	for i := 0; i < 3; i++ {
		b.push(72, time.Now())
	}

	lo, hi := b.bounds()
	if lo != 71.5 || hi != 72.5 {
		t.Errorf("expected padded bounds 71.5..72.5, got %v..%v", lo, hi)
	}
}

func TestRingLastN(t *testing.T) {
	b := newRing(5)
	for i := 1; i <= 5; i++ {
		b.push(float64(i), time.Now())
	}

	pts := b.lastN(2)
	if len(pts) != 2 || pts[0].value != 4 || pts[1].value != 5 {
		t.Errorf("expected last 2 points [4 5], got %+v", pts)
	}
	if pts := b.lastN(50); len(pts) != 5 {
		t.Errorf("expected all 5 points when asking for more, got %d", len(pts))
	}
}

func TestRenderSparklineWidth(t *testing.T) {
	style := lipgloss.NewStyle()

	tests := []struct {
		name   string
		points int
		width  int
	}{
		{"empty history", 0, 20},
		{"fewer points than width", 5, 20},
		{"more points than width", 50, 20},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := newRing(100)
			base := time.Now()
			for i := 0; i < tc.points; i++ {
				b.push(float64(i%10), base.Add(time.Duration(i)*time.Second))
			}
			lo, hi := b.bounds()

			out := renderSparkline(b.lastN(tc.width), tc.width, lo, hi, style)
			if got := lipgloss.Width(out); got != tc.width {
				t.Errorf("expected rendered width %d, got %d", tc.width, got)
			}
		})
	}
}

func TestSeverityColor(t *testing.T) {
	tests := []struct {
		severity string
		want     lipgloss.Color
	}{
		{"critical", lipgloss.Color("196")},
		{"warning", lipgloss.Color("220")},
		{"info", lipgloss.Color("245")},
		{"unknown", lipgloss.Color("245")},
	}
	for _, tc := range tests {
		if got := severityColor(tc.severity); got != tc.want {
			t.Errorf("severityColor(%q) = %v, want %v", tc.severity, got, tc.want)
		}
	}
}
