package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/vigil-care/vigil/internal/monitoring"
)

// MaintenanceWorker periodically rolls raw readings up into per-minute
// aggregates and prunes rows past their retention. Raw readings are kept
// for Retention; rollup rows and alert events four times that, so trend
// history outlives the samples it came from.
type MaintenanceWorker struct {
	DB        *DB
	Interval  time.Duration // how often to run
	Window    time.Duration // rollup lookback, overlaps the previous run
	Retention time.Duration // raw readings older than this are pruned
	StopChan  chan struct{}
}

func NewMaintenanceWorker(db *DB, retentionDays int) *MaintenanceWorker {
	return &MaintenanceWorker{
		DB:        db,
		Interval:  5 * time.Minute,
		Window:    15 * time.Minute,
		Retention: time.Duration(retentionDays) * 24 * time.Hour,
		StopChan:  make(chan struct{}),
	}
}

// Start runs the periodic maintenance loop in a goroutine.
func (w *MaintenanceWorker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.RunOnce(context.Background()); err != nil {
					monitoring.Logf("store: maintenance run failed: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop.
func (w *MaintenanceWorker) Stop() {
	close(w.StopChan)
}

// RunOnce rolls up the recent window and applies retention. Split out from
// Start so tests and one-shot commands can drive maintenance directly.
func (w *MaintenanceWorker) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()
	if err := w.DB.RollupRange(ctx, now.Add(-w.Window), now); err != nil {
		return err
	}
	stats, err := w.DB.Prune(ctx, now.Add(-w.Retention), now.Add(-4*w.Retention))
	if err != nil {
		return err
	}
	if stats.Readings > 0 || stats.Alerts > 0 || stats.Rollups > 0 {
		monitoring.Diagf("store: pruned %d readings, %d alerts, %d rollup rows",
			stats.Readings, stats.Alerts, stats.Rollups)
	}
	return nil
}

// RollupRange aggregates raw readings in [start, end) into per-minute rows,
// one per model and metric. Start is widened to the containing minute so a
// bucket is always recomputed from all of its samples; buckets already
// present are overwritten, which lets overlapping runs converge instead of
// double counting.
func (db *DB) RollupRange(ctx context.Context, start, end time.Time) error {
	start = start.Truncate(time.Minute)

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			monitoring.Logf("store: rollup rollback failed: %v", err)
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT model, taken_at_ns, values_json
		FROM readings
		WHERE taken_at_ns >= ? AND taken_at_ns < ?
		ORDER BY taken_at_ns`,
		start.UnixNano(), end.UnixNano())
	if err != nil {
		return err
	}
	defer rows.Close()

	type bucketKey struct {
		bucket int64
		model  string
		metric string
	}
	type agg struct {
		count    int64
		sum      float64
		min, max float64
	}
	buckets := make(map[bucketKey]*agg)
	var order []bucketKey

	for rows.Next() {
		var (
			model      string
			takenAtNs  int64
			valuesJSON string
		)
		if err := rows.Scan(&model, &takenAtNs, &valuesJSON); err != nil {
			return err
		}
		values := make(map[string]float64)
		if err := json.Unmarshal([]byte(valuesJSON), &values); err != nil {
			return fmt.Errorf("failed to decode reading values: %w", err)
		}
		bucket := takenAtNs / int64(time.Minute) * 60 // minute start, unix seconds
		for metric, v := range values {
			key := bucketKey{bucket: bucket, model: model, metric: metric}
			a, ok := buckets[key]
			if !ok {
				a = &agg{min: math.Inf(1), max: math.Inf(-1)}
				buckets[key] = a
				order = append(order, key)
			}
			a.count++
			a.sum += v
			if v < a.min {
				a.min = v
			}
			if v > a.max {
				a.max = v
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO reading_rollup (
			bucket_unix, model, metric, sample_count, min_value, avg_value, max_value, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, UNIXEPOCH('subsec'))
		ON CONFLICT(bucket_unix, model, metric) DO UPDATE SET
			sample_count = excluded.sample_count,
			min_value = excluded.min_value,
			avg_value = excluded.avg_value,
			max_value = excluded.max_value,
			updated_at = UNIXEPOCH('subsec')`)
	if err != nil {
		return err
	}
	defer upsert.Close()

	for _, key := range order {
		a := buckets[key]
		if _, err := upsert.ExecContext(ctx, key.bucket, key.model, key.metric,
			a.count, a.min, a.sum/float64(a.count), a.max); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// PruneStats counts rows removed by one retention pass.
type PruneStats struct {
	Readings int64
	Alerts   int64
	Rollups  int64
}

// Prune deletes raw readings taken before readingsBefore, and alert events
// and rollup rows from before alertsBefore.
func (db *DB) Prune(ctx context.Context, readingsBefore, alertsBefore time.Time) (PruneStats, error) {
	var stats PruneStats

	res, err := db.ExecContext(ctx, `DELETE FROM readings WHERE taken_at_ns < ?`,
		readingsBefore.UnixNano())
	if err != nil {
		return stats, fmt.Errorf("failed to prune readings: %w", err)
	}
	stats.Readings, _ = res.RowsAffected()

	res, err = db.ExecContext(ctx, `DELETE FROM alert_events WHERE raised_at_ns < ?`,
		alertsBefore.UnixNano())
	if err != nil {
		return stats, fmt.Errorf("failed to prune alert events: %w", err)
	}
	stats.Alerts, _ = res.RowsAffected()

	res, err = db.ExecContext(ctx, `DELETE FROM reading_rollup WHERE bucket_unix < ?`,
		alertsBefore.Unix())
	if err != nil {
		return stats, fmt.Errorf("failed to prune rollup rows: %w", err)
	}
	stats.Rollups, _ = res.RowsAffected()

	return stats, nil
}

// RollupRow is one minute of aggregated samples for one model metric.
type RollupRow struct {
	Bucket time.Time `json:"bucket"`
	Model  string    `json:"model"`
	Metric string    `json:"metric"`
	Count  int64     `json:"count"`
	Min    float64   `json:"min"`
	Avg    float64   `json:"avg"`
	Max    float64   `json:"max"`
}

// RollupsBetween returns rollup rows for one metric in [start, end),
// ordered by bucket.
func (db *DB) RollupsBetween(ctx context.Context, metric string, start, end time.Time) ([]RollupRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT bucket_unix, model, metric, sample_count, min_value, avg_value, max_value
		FROM reading_rollup
		WHERE metric = ? AND bucket_unix >= ? AND bucket_unix < ?
		ORDER BY bucket_unix`,
		metric, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rollups []RollupRow
	for rows.Next() {
		var (
			r      RollupRow
			bucket int64
		)
		if err := rows.Scan(&bucket, &r.Model, &r.Metric, &r.Count, &r.Min, &r.Avg, &r.Max); err != nil {
			return nil, err
		}
		r.Bucket = time.Unix(bucket, 0).UTC()
		rollups = append(rollups, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rollups, nil
}
