package main

import (
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// point is one sample in a metric's history.
type point struct {
	value float64
	time  time.Time
}

// ring keeps a bounded history of one metric with running min/peak stats.
type ring struct {
	points []point
	cap    int
	min    float64
	peak   float64
}

func newRing(capacity int) *ring {
	return &ring{
		points: make([]point, 0, capacity),
		cap:    capacity,
		min:    math.MaxFloat64,
		peak:   -math.MaxFloat64,
	}
}

func (b *ring) push(v float64, t time.Time) {
	p := point{value: v, time: t}
	if len(b.points) >= b.cap {
		copy(b.points, b.points[1:])
		b.points[len(b.points)-1] = p
	} else {
		b.points = append(b.points, p)
	}

	if v < b.min {
		b.min = v
	}
	if v > b.peak {
		b.peak = v
	}
}

func (b *ring) last() float64 {
	if len(b.points) == 0 {
		return 0
	}
	return b.points[len(b.points)-1].value
}

func (b *ring) avg() float64 {
	if len(b.points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range b.points {
		sum += p.value
	}
	return sum / float64(len(b.points))
}

func (b *ring) lastN(n int) []point {
	if n <= 0 || len(b.points) == 0 {
		return nil
	}
	start := len(b.points) - n
	if start < 0 {
		start = 0
	}
	out := make([]point, len(b.points[start:]))
	copy(out, b.points[start:])
	return out
}

// bounds returns the sparkline scale for the ring, padded so a flat series
// still renders mid-band instead of slamming the floor.
func (b *ring) bounds() (float64, float64) {
	if len(b.points) == 0 {
		return 0, 1
	}
	span := b.peak - b.min
	pad := span * 0.1
	if pad < 0.5 {
		pad = 0.5
	}
	return b.min - pad, b.peak + pad
}

// renderSparkline draws pts right-aligned across width cells, scaled to
// [rangeMin, rangeMax]. Minute boundaries render as dim tick pipes.
func renderSparkline(pts []point, width int, rangeMin, rangeMax float64, style lipgloss.Style) string {
	if width <= 0 {
		return ""
	}

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	if len(pts) == 0 {
		return dim.Render(strings.Repeat("╌", width))
	}

	if len(pts) > width {
		pts = pts[len(pts)-width:]
	}
	padLen := width - len(pts)

	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	for i := 0; i < padLen; i++ {
		sb.WriteString(dim.Render("╌"))
	}

	tickStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	for i, p := range pts {
		minuteTick := false
		if !p.time.IsZero() && i > 0 && !pts[i-1].time.IsZero() {
			minuteTick = p.time.Minute() != pts[i-1].time.Minute()
		}
		if minuteTick {
			sb.WriteString(tickStyle.Render("│"))
			continue
		}

		norm := (p.value - rangeMin) / span
		norm = math.Max(0, math.Min(1, norm))
		idx := int(norm * 7)
		if idx > 7 {
			idx = 7
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}

	return sb.String()
}

// severityColor maps an alert severity to its display color.
func severityColor(severity string) lipgloss.Color {
	switch severity {
	case "critical":
		return lipgloss.Color("196")
	case "warning":
		return lipgloss.Color("220")
	default:
		return lipgloss.Color("245")
	}
}
