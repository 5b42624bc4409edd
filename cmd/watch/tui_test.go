package main

import (
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/sensors"
)

func TestUpdateRecordsReadings(t *testing.T) {
	m := newModel("http://x", make(chan tea.Msg, 1))

	r := sensors.Reading{
		Model: "mpu6050",
		Addr:  0x68,
		Time:  time.Now(),
		Values: map[string]float64{
			sensors.MetricAccelMag: 1.01,
		},
	}
	updated, cmd := m.Update(readingMsg(r))
	m = updated.(model)

	if cmd == nil {
		t.Error("expected the update to re-arm the frame wait")
	}
	if m.latest["mpu6050"].Addr != 0x68 {
		t.Errorf("latest reading not recorded: %+v", m.latest)
	}
	if len(m.order) != 1 || m.order[0] != "mpu6050" {
		t.Errorf("expected order [mpu6050], got %v", m.order)
	}
	b := m.history["mpu6050/"+sensors.MetricAccelMag]
	if b == nil || b.last() != 1.01 {
		t.Errorf("expected history to hold the sample, got %+v", b)
	}
}

func TestUpdateKeepsModelsSorted(t *testing.T) {
	m := newModel("http://x", make(chan tea.Msg, 1))

	for _, name := range []string{"mpu6050", "bme280", "max30102"} {
		updated, _ := m.Update(readingMsg(sensors.Reading{
			Model:  name,
			Time:   time.Now(),
			Values: map[string]float64{"x": 1},
		}))
		m = updated.(model)
	}

	want := []string{"bme280", "max30102", "mpu6050"}
	for i, name := range want {
		if m.order[i] != name {
			t.Fatalf("expected order %v, got %v", want, m.order)
		}
	}
}

func TestUpdateCapsAlerts(t *testing.T) {
	m := newModel("http://x", make(chan tea.Msg, 1))

	for i := 0; i < maxAlerts+3; i++ {
		updated, _ := m.Update(alertMsg(alerts.Event{
			ID:       fmt.Sprintf("ev-%d", i),
			Rule:     "high_heart_rate",
			Severity: alerts.SeverityWarning,
			Metric:   sensors.MetricHeartRate,
			Time:     time.Now(),
		}))
		m = updated.(model)
	}

	if len(m.events) != maxAlerts {
		t.Fatalf("expected alerts capped at %d, got %d", maxAlerts, len(m.events))
	}
	// Newest first.
	if m.events[0].ID != fmt.Sprintf("ev-%d", maxAlerts+2) {
		t.Errorf("expected newest alert first, got %s", m.events[0].ID)
	}

	f, ok := m.flashes[sensors.MetricHeartRate]
	if !ok {
		t.Fatal("expected the alerted metric to be flashed")
	}
	if f.severity != alerts.SeverityWarning || !f.until.After(time.Now()) {
		t.Errorf("unexpected flash state: %+v", f)
	}
}

func TestUpdateTracksConnectionState(t *testing.T) {
	m := newModel("http://x", make(chan tea.Msg, 1))

	updated, _ := m.Update(connMsg{connected: true})
	m = updated.(model)
	if !m.connected {
		t.Error("expected connected after connMsg")
	}

	updated, _ = m.Update(connMsg{err: fmt.Errorf("refused")})
	m = updated.(model)
	if m.connected || m.connErr == nil {
		t.Error("expected disconnected state with the error retained")
	}
}
