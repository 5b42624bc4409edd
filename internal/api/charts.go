package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/vigil-care/vigil/internal/sensors"
	"github.com/vigil-care/vigil/internal/units"
)

// echartsAssetsPrefix serves the chart JS bundle. Pages keep working on the
// LAN as long as the viewing browser can reach it.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// chartSpec names one metric panel on a chart page. Temperature panels
// honor the unit query parameter.
type chartSpec struct {
	metric      string
	title       string
	temperature bool
}

var vitalsCharts = []chartSpec{
	{metric: sensors.MetricHeartRate, title: "Heart Rate (bpm)"},
	{metric: sensors.MetricSpO2, title: "Blood Oxygen (%)"},
	{metric: sensors.MetricBodyTemp, title: "Body Temperature", temperature: true},
}

var environmentCharts = []chartSpec{
	{metric: sensors.MetricTemperature, title: "Room Temperature", temperature: true},
	{metric: sensors.MetricHumidity, title: "Relative Humidity (%)"},
	{metric: sensors.MetricPressure, title: "Pressure (hPa)"},
	{metric: sensors.MetricLightLux, title: "Illuminance (lux)"},
}

func (s *Server) showVitalsCharts(w http.ResponseWriter, r *http.Request) {
	s.renderChartPage(w, r, vitalsCharts)
}

func (s *Server) showEnvironmentCharts(w http.ResponseWriter, r *http.Request) {
	s.renderChartPage(w, r, environmentCharts)
}

// renderChartPage builds one min/avg/max line chart per entry from the
// per-minute rollups and renders them as a single HTML page. Rollups keep
// the pages cheap even over weeks of history.
func (s *Server) renderChartPage(w http.ResponseWriter, r *http.Request, specs []chartSpec) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hours := 24 // default value
	if h := r.URL.Query().Get("hours"); h != "" {
		parsedHours, err := strconv.Atoi(h)
		if err != nil || parsedHours < 1 || parsedHours > 24*31 {
			http.Error(w, "Invalid 'hours' parameter", http.StatusBadRequest)
			return
		}
		hours = parsedHours
	}

	unit := units.Celsius
	if u := r.URL.Query().Get("unit"); u != "" {
		if !units.IsValidTemperatureUnit(u) {
			http.Error(w, "Invalid 'unit' parameter", http.StatusBadRequest)
			return
		}
		unit = u
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	for _, spec := range specs {
		line, err := s.metricLine(r.Context(), spec, unit, start, end)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to build %s chart: %v", spec.metric, err),
				http.StatusInternalServerError)
			return
		}
		page.AddCharts(line)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render charts: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) metricLine(ctx context.Context, spec chartSpec, unit string, start, end time.Time) (*charts.Line, error) {
	rollups, err := s.db.RollupsBetween(ctx, spec.metric, start, end)
	if err != nil {
		return nil, err
	}

	convert := func(v float64) float64 { return v }
	title := spec.title
	if spec.temperature {
		convert = func(v float64) float64 { return units.ConvertTemperature(v, unit) }
		if unit == units.Fahrenheit {
			title += " (F)"
		} else {
			title += " (C)"
		}
	}

	x := make([]string, 0, len(rollups))
	avgData := make([]opts.LineData, 0, len(rollups))
	minData := make([]opts.LineData, 0, len(rollups))
	maxData := make([]opts.LineData, 0, len(rollups))
	for _, row := range rollups {
		x = append(x, row.Bucket.Format("01-02 15:04"))
		avgData = append(avgData, opts.LineData{Value: convert(row.Avg)})
		minData = append(minData, opts.LineData{Value: convert(row.Min)})
		maxData = append(maxData, opts.LineData{Value: convert(row.Max)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "100%", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("buckets=%d window=%s", len(rollups), end.Sub(start))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(x).
		AddSeries("avg", avgData, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)})).
		AddSeries("min", minData, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)})).
		AddSeries("max", maxData, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line, nil
}
