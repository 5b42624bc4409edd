package anomaly

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/sensors"
)

func collectEvents() (func(alerts.Event), *[]alerts.Event) {
	var events []alerts.Event
	return func(ev alerts.Event) { events = append(events, ev) }, &events
}

func hrReading(bpm float64, at time.Time) sensors.Reading {
	return sensors.Reading{
		Model: sensors.ModelMAX30102,
		Addr:  0x57,
		Time:  at,
		Values: map[string]float64{
			sensors.MetricHeartRate: bpm,
		},
	}
}

// feedBaseline pushes n slightly jittered samples around center so the
// window has a realistic nonzero deviation.
func feedBaseline(t *testing.T, d *Detector, n int, center float64, start time.Time) time.Time {
	t.Helper()
	at := start
	for i := 0; i < n; i++ {
		jitter := 0.5 * math.Sin(float64(i))
		require.NoError(t, d.OnReading(hrReading(center+jitter, at)))
		at = at.Add(2 * time.Second)
	}
	return at
}

func TestDetectorFlagsDeviation(t *testing.T) {
	emit, events := collectEvents()
	d := New(Config{Metrics: []string{sensors.MetricHeartRate}}, emit)
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	at := feedBaseline(t, d, DefaultMinSamples, 72, t0)
	require.Empty(t, *events, "nothing should flag while the baseline is learned")

	require.NoError(t, d.OnReading(hrReading(130, at)))
	require.Len(t, *events, 1)

	ev := (*events)[0]
	assert.Equal(t, "anomaly_heart_rate_bpm", ev.Rule)
	assert.Equal(t, alerts.SeverityWarning, ev.Severity)
	assert.Equal(t, 130.0, ev.Value)
	assert.Contains(t, ev.Message, "baseline")
	// The reported bound sits between the learned mean and the sample.
	assert.Greater(t, ev.Threshold, 72.0)
	assert.Less(t, ev.Threshold, 130.0)
}

func TestDetectorNeedsMinSamples(t *testing.T) {
	emit, events := collectEvents()
	d := New(Config{Metrics: []string{sensors.MetricHeartRate}}, emit)
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	at := feedBaseline(t, d, DefaultMinSamples-1, 72, t0)
	require.NoError(t, d.OnReading(hrReading(130, at)))
	assert.Empty(t, *events, "must not flag before min samples accumulate")
}

func TestDetectorCooldownThrottles(t *testing.T) {
	emit, events := collectEvents()
	d := New(Config{Metrics: []string{sensors.MetricHeartRate}}, emit)
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	at := feedBaseline(t, d, DefaultMinSamples, 72, t0)
	require.NoError(t, d.OnReading(hrReading(130, at)))
	require.NoError(t, d.OnReading(hrReading(130, at.Add(time.Minute))))
	require.Len(t, *events, 1, "second breach inside the cooldown must not emit")

	require.NoError(t, d.OnReading(hrReading(130, at.Add(DefaultCooldown+time.Minute))))
	require.Len(t, *events, 2, "a breach after the cooldown emits again")
}

func TestDetectorIgnoresUntrackedMetrics(t *testing.T) {
	emit, events := collectEvents()
	d := New(Config{Metrics: []string{sensors.MetricHeartRate}}, emit)
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < DefaultMinSamples+10; i++ {
		require.NoError(t, d.OnReading(sensors.Reading{
			Model:  sensors.ModelBME280,
			Addr:   0x76,
			Time:   t0.Add(time.Duration(i) * 2 * time.Second),
			Values: map[string]float64{sensors.MetricTemperature: 21 + float64(i)},
		}))
	}
	assert.Empty(t, *events, "an untracked metric must never flag")

	baselines := d.Baselines()
	require.Len(t, baselines, 1)
	assert.Equal(t, 0, baselines[0].Samples, "untracked readings must not fill the window")
}

func TestDetectorTracksMetricsIndependently(t *testing.T) {
	emit, events := collectEvents()
	d := New(Config{
		Metrics: []string{sensors.MetricHeartRate, sensors.MetricSpO2},
	}, emit)
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	at := t0
	for i := 0; i < DefaultMinSamples; i++ {
		require.NoError(t, d.OnReading(sensors.Reading{
			Model: sensors.ModelMAX30102,
			Addr:  0x57,
			Time:  at,
			Values: map[string]float64{
				sensors.MetricHeartRate: 72 + 0.5*math.Sin(float64(i)),
				sensors.MetricSpO2:      97 + 0.3*math.Cos(float64(i)),
			},
		}))
		at = at.Add(2 * time.Second)
	}

	// Only the oximetry channel dips; the pulse stays on baseline.
	require.NoError(t, d.OnReading(sensors.Reading{
		Model: sensors.ModelMAX30102,
		Addr:  0x57,
		Time:  at,
		Values: map[string]float64{
			sensors.MetricHeartRate: 72,
			sensors.MetricSpO2:      85,
		},
	}))
	require.Len(t, *events, 1)
	assert.Equal(t, sensors.MetricSpO2, (*events)[0].Metric)
}

func TestDetectorWindowSlides(t *testing.T) {
	emit, events := collectEvents()
	d := New(Config{
		Metrics:    []string{sensors.MetricHeartRate},
		Window:     10,
		MinSamples: 5,
		Cooldown:   time.Hour,
	}, emit)
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	at := feedBaseline(t, d, 10, 72, t0)
	for i := 0; i < 12; i++ {
		require.NoError(t, d.OnReading(hrReading(90, at)))
		at = at.Add(2 * time.Second)
	}

	// The jump to 90 flagged once, then the window absorbed the shift.
	require.Len(t, *events, 1)
	b := d.Baselines()[0]
	assert.Equal(t, 10, b.Samples, "window should be full")
	assert.Equal(t, 90.0, b.Mean, "window should have slid onto the new level")

	// Back on the (new) baseline, nothing fires even after the cooldown.
	require.NoError(t, d.OnReading(hrReading(90, at.Add(2*time.Hour))))
	assert.Len(t, *events, 1, "a sample equal to the baseline must not flag")
}

func TestDetectorDefaults(t *testing.T) {
	d := New(Config{Metrics: []string{sensors.MetricHeartRate}}, func(alerts.Event) {})

	assert.Equal(t, DefaultSigma, d.sigma)
	assert.Equal(t, DefaultMinSamples, d.minSamples)
	assert.Equal(t, DefaultCooldown, d.cooldown)
	assert.Len(t, d.metrics[sensors.MetricHeartRate].buf, DefaultWindow)
	assert.Equal(t, "anomaly", d.Name())
}
