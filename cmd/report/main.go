// Command report renders daily PNG charts from a recorded sensor database.
//
// One chart per metric: the per-minute average as a solid line, the min/max
// envelope dashed, and a marker at every alert the metric raised that day.
// The time axis is drawn in the zone given by -tz.
//
//	report -db /var/lib/vigil/vigil.db -day 2026-08-24 -out ./reports
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/sensors"
	"github.com/vigil-care/vigil/internal/store"
	"github.com/vigil-care/vigil/internal/units"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// defaultMetrics covers the vitals and room series a daily wellness report
// cares about. Raw accelerometer channels are too noisy at one-minute
// resolution to be worth a page.
var defaultMetrics = []string{
	sensors.MetricHeartRate,
	sensors.MetricSpO2,
	sensors.MetricBodyTemp,
	sensors.MetricTemperature,
	sensors.MetricHumidity,
	sensors.MetricPressure,
	sensors.MetricLightLux,
}

func main() {
	var dbPath, day, outDir, tz, metricsFlag string
	flag.StringVar(&dbPath, "db", "vigil.db", "path to sqlite db")
	flag.StringVar(&day, "day", "", "day to report on as YYYY-MM-DD (default today)")
	flag.StringVar(&outDir, "out", ".", "directory for the chart files")
	flag.StringVar(&tz, "tz", "UTC", "timezone for day bounds and the time axis")
	flag.StringVar(&metricsFlag, "metrics", "", "comma-separated metric names (default vitals and room series)")
	flag.Parse()

	if !units.IsTimezoneValid(tz) {
		log.Fatalf("unknown timezone %q", tz)
	}
	loc, _ := time.LoadLocation(tz)
	if day == "" {
		day = time.Now().In(loc).Format("2006-01-02")
	}
	start, end, err := units.DayBounds(day, tz)
	if err != nil {
		log.Fatalf("%v", err)
	}

	metrics := defaultMetrics
	if metricsFlag != "" {
		metrics = strings.Split(metricsFlag, ",")
		for i := range metrics {
			metrics[i] = strings.TrimSpace(metrics[i])
		}
	}

	db, err := store.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	ctx := context.Background()

	// Bucket the window first so the charts include readings the
	// maintenance worker has not rolled up yet.
	if err := db.RollupRange(ctx, start, end); err != nil {
		log.Fatalf("rollup failed: %v", err)
	}

	dayAlerts, err := db.AlertsBetween(start, end)
	if err != nil {
		log.Fatalf("query alerts: %v", err)
	}

	fmt.Printf("report for %s (%s)\n", day, tz)
	wrote := 0
	for _, metric := range metrics {
		rows, err := db.RollupsBetween(ctx, metric, start, end)
		if err != nil {
			log.Fatalf("query %s: %v", metric, err)
		}
		if len(rows) == 0 {
			fmt.Printf("  %-16s no data, skipped\n", metric)
			continue
		}
		file := filepath.Join(outDir, fmt.Sprintf("%s_%s.png", metric, day))
		if err := renderMetric(file, metric, day, loc, rows, alertsFor(dayAlerts, metric)); err != nil {
			log.Fatalf("render %s: %v", metric, err)
		}
		fmt.Printf("  %-16s %d buckets -> %s\n", metric, len(rows), file)
		wrote++
	}

	if len(dayAlerts) > 0 {
		fmt.Printf("%d alerts raised:\n", len(dayAlerts))
		for _, ev := range dayAlerts {
			fmt.Printf("  %s  %-8s %-18s %s\n",
				ev.Time.In(loc).Format("15:04:05"), ev.Severity, ev.Rule, ev.Message)
		}
	}
	fmt.Printf("report complete, %d charts written\n", wrote)
}

// alertsFor picks the alerts tied to one metric. Clock-driven alerts like
// inactivity carry no metric and never land on a chart.
func alertsFor(events []alerts.Event, metric string) []alerts.Event {
	var out []alerts.Event
	for _, ev := range events {
		if ev.Metric == metric {
			out = append(out, ev)
		}
	}
	return out
}

// seriesSet holds the three rollup lines for one model.
type seriesSet struct {
	avg, min, max plotter.XYs
}

// splitByModel groups rollup rows into per-model line data, models sorted
// for a stable legend.
func splitByModel(rows []store.RollupRow) ([]string, map[string]*seriesSet) {
	byModel := make(map[string]*seriesSet)
	var order []string
	for _, r := range rows {
		set, ok := byModel[r.Model]
		if !ok {
			set = &seriesSet{}
			byModel[r.Model] = set
			order = append(order, r.Model)
		}
		x := float64(r.Bucket.Unix())
		set.avg = append(set.avg, plotter.XY{X: x, Y: r.Avg})
		set.min = append(set.min, plotter.XY{X: x, Y: r.Min})
		set.max = append(set.max, plotter.XY{X: x, Y: r.Max})
	}
	sort.Strings(order)
	return order, byModel
}

// renderMetric draws one metric's day and saves it as a PNG.
func renderMetric(file, metric, day string, loc *time.Location, rows []store.RollupRow, events []alerts.Event) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s on %s", metric, day)
	p.X.Label.Text = "time"
	p.Y.Label.Text = axisLabel(metric)
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04", Time: plot.UnixTimeIn(loc)}
	p.Add(plotter.NewGrid())

	order, byModel := splitByModel(rows)
	for i, model := range order {
		set := byModel[model]

		avgLine, err := plotter.NewLine(set.avg)
		if err != nil {
			return err
		}
		avgLine.Color = plotutil.Color(i)
		avgLine.Width = vg.Points(1.5)
		p.Add(avgLine)
		p.Legend.Add(model+" avg", avgLine)

		minLine, err := plotter.NewLine(set.min)
		if err != nil {
			return err
		}
		minLine.Color = plotutil.Color(i)
		minLine.Width = vg.Points(0.5)
		minLine.Dashes = plotutil.Dashes(1)
		p.Add(minLine)
		p.Legend.Add(model+" min/max", minLine)

		maxLine, err := plotter.NewLine(set.max)
		if err != nil {
			return err
		}
		maxLine.Color = plotutil.Color(i)
		maxLine.Width = vg.Points(0.5)
		maxLine.Dashes = plotutil.Dashes(1)
		p.Add(maxLine)
	}

	if len(events) > 0 {
		pts := make(plotter.XYs, 0, len(events))
		for _, ev := range events {
			pts = append(pts, plotter.XY{X: float64(ev.Time.Unix()), Y: ev.Value})
		}
		marks, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		marks.GlyphStyle.Color = color.RGBA{R: 196, A: 255}
		marks.GlyphStyle.Radius = vg.Points(3)
		marks.GlyphStyle.Shape = draw.PyramidGlyph{}
		p.Add(marks)
		p.Legend.Add("alerts", marks)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(12*vg.Inch, 4*vg.Inch, file); err != nil {
		return fmt.Errorf("save chart: %w", err)
	}
	return nil
}

// axisLabel turns the unit suffix baked into a metric name into a y-axis
// label.
func axisLabel(metric string) string {
	switch {
	case strings.HasSuffix(metric, "_bpm"):
		return "beats/min"
	case strings.HasSuffix(metric, "_pct"):
		return "percent"
	case strings.HasSuffix(metric, "_c"):
		return "°C"
	case strings.HasSuffix(metric, "_hpa"):
		return "hPa"
	case strings.HasSuffix(metric, "_lux"):
		return "lux"
	case strings.HasSuffix(metric, "_g"):
		return "g"
	case strings.HasSuffix(metric, "_dps"):
		return "°/s"
	default:
		return metric
	}
}
