package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/hub"
	"github.com/vigil-care/vigil/internal/sensors"
)

func storedReading(model string, addr uint16, at time.Time, values map[string]float64) sensors.Reading {
	return sensors.Reading{Model: model, Addr: addr, Time: at, Values: values}
}

func TestRecordAndLatestReadings(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	older := storedReading(sensors.ModelBME280, 0x76, base, map[string]float64{
		sensors.MetricTemperature: 21.0,
	})
	newer := storedReading(sensors.ModelBME280, 0x76, base.Add(2*time.Second), map[string]float64{
		sensors.MetricTemperature: 21.5,
	})
	pulse := storedReading(sensors.ModelMAX30102, 0x57, base.Add(time.Second), map[string]float64{
		sensors.MetricHeartRate: 71.0,
		sensors.MetricSpO2:      98.0,
	})
	for _, r := range []sensors.Reading{older, newer, pulse} {
		if err := db.RecordReading(r); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}

	latest, err := db.LatestReadings()
	if err != nil {
		t.Fatalf("LatestReadings failed: %v", err)
	}
	want := []sensors.Reading{newer, pulse}
	if diff := cmp.Diff(want, latest); diff != "" {
		t.Errorf("LatestReadings mismatch (-want +got):\n%s", diff)
	}
}

func TestRecentReadingsWindow(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	old := storedReading(sensors.ModelBH1750, 0x23, now.Add(-10*time.Minute), map[string]float64{
		sensors.MetricLightLux: 120,
	})
	fresh := storedReading(sensors.ModelBH1750, 0x23, now.Add(-2*time.Minute), map[string]float64{
		sensors.MetricLightLux: 200,
	})
	for _, r := range []sensors.Reading{old, fresh} {
		if err := db.RecordReading(r); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}

	got, err := db.RecentReadings(now.Add(-5 * time.Minute))
	if err != nil {
		t.Fatalf("RecentReadings failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 recent reading, got %d", len(got))
	}
	if got[0].Values[sensors.MetricLightLux] != 200 {
		t.Errorf("Expected the fresh reading, got %+v", got[0])
	}
}

func TestReadingsBetweenIsHalfOpen(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		r := storedReading(sensors.ModelMLX90614, 0x5A, base.Add(time.Duration(i)*time.Minute), map[string]float64{
			sensors.MetricBodyTemp: 36.5 + float64(i)*0.1,
		})
		if err := db.RecordReading(r); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}

	got, err := db.ReadingsBetween(base.Add(time.Minute), base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("ReadingsBetween failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 reading in window, got %d", len(got))
	}
	if !got[0].Time.Equal(base.Add(time.Minute)) {
		t.Errorf("Expected reading at %v, got %v", base.Add(time.Minute), got[0].Time)
	}
}

func TestRecordAlertAndRecentAlerts(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	events := []alerts.Event{
		{ID: "ev-1", Rule: "fall_detected", Severity: alerts.SeverityCritical,
			Message: "Fall detected", Metric: sensors.MetricAccelMag,
			Value: 3.0, Threshold: 2.5, Model: sensors.ModelMPU6050, Addr: 0x68,
			Time: base},
		{ID: "ev-2", Rule: "low_spo2", Severity: alerts.SeverityCritical,
			Message: "Blood oxygen low", Metric: sensors.MetricSpO2,
			Value: 88, Threshold: 90, Model: sensors.ModelMAX30102, Addr: 0x57,
			Time: base.Add(time.Minute)},
		{ID: "ev-3", Rule: "inactivity", Severity: alerts.SeverityWarning,
			Message: "No movement detected for 4h0m0s",
			Time:    base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		if err := db.RecordAlert(ev); err != nil {
			t.Fatalf("RecordAlert failed: %v", err)
		}
	}

	got, err := db.RecentAlerts(2)
	if err != nil {
		t.Fatalf("RecentAlerts failed: %v", err)
	}
	want := []alerts.Event{events[2], events[1]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RecentAlerts mismatch (-want +got):\n%s", diff)
	}

	// Window queries are end-exclusive and come back oldest first.
	windowed, err := db.AlertsBetween(base, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("AlertsBetween failed: %v", err)
	}
	want = []alerts.Event{events[0], events[1]}
	if diff := cmp.Diff(want, windowed); diff != "" {
		t.Errorf("AlertsBetween mismatch (-want +got):\n%s", diff)
	}
}

// The store hangs off the event router as a plain consumer and alert sink,
// so readings and alerts published there land in sqlite without extra glue.
func TestStoreConsumesFromRouter(t *testing.T) {
	db := newTestDB(t)

	router := hub.NewRouter()
	router.Register(db)
	router.RegisterAlertSink(db)
	defer router.Close()

	router.Publish(storedReading(sensors.ModelMPU6050, 0x68, time.Now().UTC(), map[string]float64{
		sensors.MetricAccelMag: 1.01,
	}))
	router.EmitAlert(alerts.Event{
		ID: "ev-router", Rule: "fall_detected", Severity: alerts.SeverityCritical,
		Message: "Fall detected", Time: time.Now().UTC(),
	})

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Readings != 1 {
		t.Errorf("Expected 1 stored reading, got %d", stats.Readings)
	}
	if stats.AlertEvents != 1 {
		t.Errorf("Expected 1 stored alert, got %d", stats.AlertEvents)
	}
	if db.Name() != "store" {
		t.Errorf("Expected consumer name store, got %s", db.Name())
	}
}

func TestStatsReportsOldestReading(t *testing.T) {
	db := newTestDB(t)

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if !stats.OldestReading.IsZero() {
		t.Errorf("Empty store should have zero OldestReading, got %v", stats.OldestReading)
	}

	base := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		r := storedReading(sensors.ModelBME280, 0x76, base.Add(time.Duration(i)*time.Hour), map[string]float64{
			sensors.MetricTemperature: 21,
		})
		if err := db.RecordReading(r); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}

	stats, err = db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if !stats.OldestReading.Equal(base) {
		t.Errorf("Expected oldest reading at %v, got %v", base, stats.OldestReading)
	}
	if stats.Readings != 2 {
		t.Errorf("Expected 2 readings, got %d", stats.Readings)
	}
}
