package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/sensors"
)

// Name identifies the store on the event router, for both readings and
// alert events.
func (db *DB) Name() string { return "store" }

// OnReading persists one reading. The router calls it for every poll, so
// it stays a single insert.
func (db *DB) OnReading(r sensors.Reading) error {
	return db.RecordReading(r)
}

// OnAlert persists one alert event.
func (db *DB) OnAlert(ev alerts.Event) error {
	return db.RecordAlert(ev)
}

// RecordReading inserts a reading, metric values serialized as JSON.
func (db *DB) RecordReading(r sensors.Reading) error {
	values, err := json.Marshal(r.Values)
	if err != nil {
		return fmt.Errorf("failed to encode reading values: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO readings (model, addr, taken_at_ns, values_json) VALUES (?, ?, ?, ?)`,
		r.Model, r.Addr, r.Time.UnixNano(), string(values),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// RecordAlert inserts an alert event.
func (db *DB) RecordAlert(ev alerts.Event) error {
	_, err := db.Exec(
		`INSERT INTO alert_events (
			event_id, rule, severity, message, metric, value, threshold,
			model, addr, raised_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Rule, ev.Severity, ev.Message, ev.Metric, ev.Value, ev.Threshold,
		ev.Model, ev.Addr, ev.Time.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}
	return nil
}

// LatestReadings returns the newest stored reading for each model,
// ordered by model name.
func (db *DB) LatestReadings() ([]sensors.Reading, error) {
	return db.queryReadings(`
		SELECT model, addr, taken_at_ns, values_json
		FROM readings
		WHERE reading_id IN (SELECT MAX(reading_id) FROM readings GROUP BY model)
		ORDER BY model`)
}

// RecentReadings returns readings taken at or after since, oldest first.
func (db *DB) RecentReadings(since time.Time) ([]sensors.Reading, error) {
	return db.queryReadings(`
		SELECT model, addr, taken_at_ns, values_json
		FROM readings
		WHERE taken_at_ns >= ?
		ORDER BY taken_at_ns`,
		since.UnixNano())
}

// ReadingsBetween returns readings in [start, end), oldest first.
func (db *DB) ReadingsBetween(start, end time.Time) ([]sensors.Reading, error) {
	return db.queryReadings(`
		SELECT model, addr, taken_at_ns, values_json
		FROM readings
		WHERE taken_at_ns >= ? AND taken_at_ns < ?
		ORDER BY taken_at_ns`,
		start.UnixNano(), end.UnixNano())
}

func (db *DB) queryReadings(query string, args ...interface{}) ([]sensors.Reading, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []sensors.Reading
	for rows.Next() {
		var (
			model      string
			addr       int64
			takenAtNs  int64
			valuesJSON string
		)
		if err := rows.Scan(&model, &addr, &takenAtNs, &valuesJSON); err != nil {
			return nil, err
		}
		values := make(map[string]float64)
		if err := json.Unmarshal([]byte(valuesJSON), &values); err != nil {
			return nil, fmt.Errorf("failed to decode reading values: %w", err)
		}
		readings = append(readings, sensors.Reading{
			Model:  model,
			Addr:   uint16(addr),
			Time:   time.Unix(0, takenAtNs).UTC(),
			Values: values,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

// RecentAlerts returns the limit newest alert events, newest first.
func (db *DB) RecentAlerts(limit int) ([]alerts.Event, error) {
	return db.queryAlerts(`
		SELECT event_id, rule, severity, message, metric, value, threshold,
			model, addr, raised_at_ns
		FROM alert_events
		ORDER BY raised_at_ns DESC, event_id DESC
		LIMIT ?`, limit)
}

// AlertsBetween returns alert events raised in [start, end), oldest first.
func (db *DB) AlertsBetween(start, end time.Time) ([]alerts.Event, error) {
	return db.queryAlerts(`
		SELECT event_id, rule, severity, message, metric, value, threshold,
			model, addr, raised_at_ns
		FROM alert_events
		WHERE raised_at_ns >= ? AND raised_at_ns < ?
		ORDER BY raised_at_ns`,
		start.UnixNano(), end.UnixNano())
}

func (db *DB) queryAlerts(query string, args ...interface{}) ([]alerts.Event, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []alerts.Event
	for rows.Next() {
		var (
			ev         alerts.Event
			addr       int64
			raisedAtNs int64
		)
		if err := rows.Scan(&ev.ID, &ev.Rule, &ev.Severity, &ev.Message,
			&ev.Metric, &ev.Value, &ev.Threshold, &ev.Model, &addr, &raisedAtNs); err != nil {
			return nil, err
		}
		ev.Addr = uint16(addr)
		ev.Time = time.Unix(0, raisedAtNs).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Stats summarizes what the store is holding.
type Stats struct {
	Readings      int64     `json:"readings"`
	AlertEvents   int64     `json:"alert_events"`
	RollupRows    int64     `json:"rollup_rows"`
	OldestReading time.Time `json:"oldest_reading,omitzero"`
}

func (db *DB) Stats() (Stats, error) {
	var s Stats
	if err := db.QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&s.Readings); err != nil {
		return s, err
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM alert_events`).Scan(&s.AlertEvents); err != nil {
		return s, err
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM reading_rollup`).Scan(&s.RollupRows); err != nil {
		return s, err
	}
	var oldest sql.NullInt64
	if err := db.QueryRow(`SELECT MIN(taken_at_ns) FROM readings`).Scan(&oldest); err != nil {
		return s, err
	}
	if oldest.Valid {
		s.OldestReading = time.Unix(0, oldest.Int64).UTC()
	}
	return s, nil
}
