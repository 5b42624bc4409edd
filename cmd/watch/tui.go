package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/sensors"
)

const (
	historySize = 300
	maxAlerts   = 8

	// flashFor is how long a metric's value stays highlighted after an
	// alert names it.
	flashFor = 30 * time.Second
)

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorModel    = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorLive     = lipgloss.Color("78")
	colorDown     = lipgloss.Color("196")
	colorSpark    = lipgloss.Color("45")
)

// flash marks a metric that a recent alert named.
type flash struct {
	severity string
	until    time.Time
}

type model struct {
	addr string
	msgs chan tea.Msg

	connected bool
	connErr   error

	latest  map[string]sensors.Reading // model -> most recent reading
	order   []string                   // models, sorted
	history map[string]*ring           // "model/metric" -> samples
	events  []alerts.Event             // newest first, capped
	flashes map[string]flash           // metric -> highlight state

	width     int
	height    int
	scroll    int
	startTime time.Time
	lastFrame time.Time
}

func newModel(addr string, msgs chan tea.Msg) model {
	return model{
		addr:      addr,
		msgs:      msgs,
		latest:    make(map[string]sensors.Reading),
		history:   make(map[string]*ring),
		flashes:   make(map[string]flash),
		startTime: time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return waitForFrame(m.msgs)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		case "home":
			m.scroll = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case readingMsg:
		r := sensors.Reading(msg)
		if _, ok := m.latest[r.Model]; !ok {
			m.order = append(m.order, r.Model)
			sort.Strings(m.order)
		}
		m.latest[r.Model] = r
		for metric, v := range r.Values {
			key := r.Model + "/" + metric
			b, ok := m.history[key]
			if !ok {
				b = newRing(historySize)
				m.history[key] = b
			}
			b.push(v, r.Time)
		}
		m.lastFrame = time.Now()
		return m, waitForFrame(m.msgs)

	case alertMsg:
		ev := alerts.Event(msg)
		m.events = append([]alerts.Event{ev}, m.events...)
		if len(m.events) > maxAlerts {
			m.events = m.events[:maxAlerts]
		}
		if ev.Metric != "" {
			m.flashes[ev.Metric] = flash{severity: ev.Severity, until: time.Now().Add(flashFor)}
		}
		return m, waitForFrame(m.msgs)

	case connMsg:
		m.connected = msg.connected
		m.connErr = msg.err
		return m, waitForFrame(m.msgs)
	}

	return m, nil
}

// ── View ─────────────────────────────────────────────────────────────

func (m model) View() string {
	if m.width == 0 {
		return "  Connecting..."
	}

	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string
	sections = append(sections, m.renderTitleBar(contentWidth))

	if len(m.latest) == 0 {
		msg := fmt.Sprintf("Waiting for readings from %s...", m.addr)
		if !m.connected && m.connErr != nil {
			msg = fmt.Sprintf("Cannot reach %s: %v", m.addr, m.connErr)
		}
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render(msg)
		sections = append(sections, waiting)
	} else {
		sections = append(sections, m.renderSensorPanels(contentWidth)...)
	}

	sections = append(sections, m.renderAlertsPanel(contentWidth))
	sections = append(sections, m.renderFooter(contentWidth))

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	lines := strings.Split(content, "\n")
	visibleLines := m.height
	if visibleLines < 5 {
		visibleLines = 5
	}
	maxScroll := len(lines) - visibleLines
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.scroll > maxScroll {
		m.scroll = maxScroll
	}

	start := m.scroll
	end := start + visibleLines
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}

func (m model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("VIGIL WATCH")

	var statusParts []string

	if m.connected {
		statusParts = append(statusParts, lipgloss.NewStyle().Foreground(colorLive).Bold(true).Render("LIVE"))
	} else {
		statusParts = append(statusParts, lipgloss.NewStyle().Foreground(colorDown).Bold(true).Render("RECONNECTING"))
	}

	statusParts = append(statusParts, lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("up %s", fmtDuration(time.Since(m.startTime)))))

	if !m.lastFrame.IsZero() {
		statusParts = append(statusParts, lipgloss.NewStyle().
			Foreground(colorDim).
			Render(m.lastFrame.Format("15:04:05")))
	}

	sep := lipgloss.NewStyle().Foreground(colorDim).Render(" │ ")
	right := strings.Join(statusParts, sep)

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m model) renderSensorPanels(totalWidth int) []string {
	labelW := 20
	valueW := 8

	chartWidth := totalWidth - labelW - valueW - 38
	if chartWidth < 15 {
		chartWidth = 15
	}
	if chartWidth > 120 {
		chartWidth = 120
	}

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sparkS := lipgloss.NewStyle().Foreground(colorSpark)
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	now := time.Now()
	var panels []string

	for _, modelName := range m.order {
		r := m.latest[modelName]

		var rows []string
		header := lipgloss.NewStyle().Bold(true).Foreground(colorModel).Render(modelName) +
			"  " + dimS.Render(fmt.Sprintf("0x%02x", r.Addr))
		rows = append(rows, header)

		for _, metric := range m.metricsFor(modelName) {
			b := m.history[modelName+"/"+metric]
			if b == nil || len(b.points) == 0 {
				continue
			}

			label := lipgloss.NewStyle().
				Foreground(colorLabel).
				Width(labelW).
				Render(truncate(metric, labelW))

			valStyle := lipgloss.NewStyle()
			if f, ok := m.flashes[metric]; ok && now.Before(f.until) {
				valStyle = valStyle.Foreground(severityColor(f.severity)).Bold(true)
			}
			value := lipgloss.NewStyle().
				Width(valueW).
				Align(lipgloss.Right).
				Render(valStyle.Render(fmt.Sprintf("%.1f", b.last())))

			rangeMin, rangeMax := b.bounds()
			spark := renderSparkline(b.lastN(chartWidth), chartWidth, rangeMin, rangeMax, sparkS)

			stats := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%7.1f", b.avg())) +
				dimS.Render(" lo") + valS.Render(fmt.Sprintf("%7.1f", b.min)) +
				dimS.Render(" pk") + valS.Render(fmt.Sprintf("%7.1f", b.peak))

			rows = append(rows, label+" "+value+" "+frameL+spark+frameR+stats)
		}

		panel := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Width(totalWidth).
			Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
		panels = append(panels, panel)
	}

	return panels
}

// metricsFor lists the metrics seen so far for one sensor model, sorted.
func (m model) metricsFor(modelName string) []string {
	prefix := modelName + "/"
	var metrics []string
	for key := range m.history {
		if strings.HasPrefix(key, prefix) {
			metrics = append(metrics, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(metrics)
	return metrics
}

func (m model) renderAlertsPanel(totalWidth int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)

	var rows []string
	rows = append(rows, lipgloss.NewStyle().Bold(true).Foreground(colorModel).Render("ALERTS"))

	if len(m.events) == 0 {
		rows = append(rows, dimS.Render("no alerts yet"))
	}
	for _, ev := range m.events {
		sevStyle := lipgloss.NewStyle().Foreground(severityColor(ev.Severity))
		if ev.Severity == alerts.SeverityCritical {
			sevStyle = sevStyle.Bold(true)
		}
		line := dimS.Render(ev.Time.Local().Format("15:04:05")) + " " +
			sevStyle.Render(fmt.Sprintf("%-8s", ev.Severity)) + " " +
			lipgloss.NewStyle().Foreground(colorLabel).Render(ev.Rule) + "  " +
			dimS.Render(truncate(ev.Message, totalWidth-40))
		rows = append(rows, line)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  j/k") + keyS.Render(":scroll") +
		dimS.Render("  home") + keyS.Render(":top")

	addr := dimS.Render(m.addr)

	gap := width - lipgloss.Width(keys) - lipgloss.Width(addr) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys + strings.Repeat(" ", gap) + addr)
}

func truncate(s string, w int) string {
	if w <= 0 {
		return ""
	}
	if len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-1] + "…"
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	min := d / time.Minute
	d -= min * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, min, s)
	}
	return fmt.Sprintf("%dm%02ds", min, s)
}
