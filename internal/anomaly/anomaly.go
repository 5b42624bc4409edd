// Package anomaly flags vital-sign readings that stray from the wearer's
// own recent baseline. Fixed thresholds catch emergencies; this catches the
// gradual-then-sudden changes a fixed threshold was not tuned for, by
// keeping a rolling window per metric and comparing each new sample against
// the window's mean and standard deviation.
package anomaly

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/sensors"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultSigma      = 3.0
	DefaultWindow     = 240
	DefaultMinSamples = 60
	DefaultCooldown   = 10 * time.Minute
)

// Config tunes the detector.
type Config struct {
	// Metrics are the metric names to baseline. Readings carrying other
	// metrics pass through untouched.
	Metrics []string

	// Sigma is the deviation multiplier a sample must exceed.
	Sigma float64

	// Window is how many samples the rolling baseline holds.
	Window int

	// MinSamples is how many samples must accumulate before the baseline
	// is trusted enough to flag anything.
	MinSamples int

	// Cooldown throttles emissions per metric.
	Cooldown time.Duration
}

// baseline is one metric's rolling window. Samples land in a ring; mean
// and deviation do not care about order so the ring is handed to gonum
// as-is.
type baseline struct {
	buf      []float64
	n        int
	idx      int
	lastEmit time.Time
}

func (b *baseline) push(v float64) {
	b.buf[b.idx] = v
	b.idx = (b.idx + 1) % len(b.buf)
	if b.n < len(b.buf) {
		b.n++
	}
}

func (b *baseline) meanStdDev() (float64, float64) {
	return stat.MeanStdDev(b.buf[:b.n], nil)
}

// Detector consumes readings and emits an alert event when a tracked
// metric deviates from its rolling baseline. Anomalous samples still enter
// the window, so a persistent shift becomes the new normal instead of
// alerting forever.
type Detector struct {
	sigma      float64
	minSamples int
	cooldown   time.Duration
	emit       func(alerts.Event)

	mu      sync.Mutex
	metrics map[string]*baseline
	order   []string
}

// New creates a Detector emitting through emit.
func New(cfg Config, emit func(alerts.Event)) *Detector {
	if cfg.Sigma <= 0 {
		cfg.Sigma = DefaultSigma
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	d := &Detector{
		sigma:      cfg.Sigma,
		minSamples: cfg.MinSamples,
		cooldown:   cfg.Cooldown,
		emit:       emit,
		metrics:    make(map[string]*baseline, len(cfg.Metrics)),
	}
	for _, m := range cfg.Metrics {
		if _, ok := d.metrics[m]; ok {
			continue
		}
		d.metrics[m] = &baseline{buf: make([]float64, cfg.Window)}
		d.order = append(d.order, m)
	}
	return d
}

// Name identifies the detector in router status output.
func (d *Detector) Name() string { return "anomaly" }

// OnReading evaluates each tracked metric the reading carries against its
// baseline, then folds the sample into the window. Evaluation first means
// a spike cannot hide inside its own baseline.
func (d *Detector) OnReading(r sensors.Reading) error {
	var events []alerts.Event
	d.mu.Lock()
	for _, metric := range d.order {
		b := d.metrics[metric]
		v, ok := r.Value(metric)
		if !ok {
			continue
		}
		if b.n >= d.minSamples {
			mean, std := b.meanStdDev()
			if dev := v - mean; dev > d.sigma*std || dev < -d.sigma*std {
				if b.lastEmit.IsZero() || r.Time.Sub(b.lastEmit) >= d.cooldown {
					b.lastEmit = r.Time
					bound := mean + d.sigma*std
					if v < mean {
						bound = mean - d.sigma*std
					}
					events = append(events, alerts.Event{
						ID:       uuid.NewString(),
						Rule:     "anomaly_" + metric,
						Severity: alerts.SeverityWarning,
						Message: fmt.Sprintf("%s at %.1f deviates from baseline %.1f +/- %.1f",
							metric, v, mean, std),
						Metric:    metric,
						Value:     v,
						Threshold: bound,
						Model:     r.Model,
						Addr:      r.Addr,
						Time:      r.Time,
					})
				}
			}
		}
		b.push(v)
	}
	d.mu.Unlock()

	for _, ev := range events {
		d.emit(ev)
	}
	return nil
}

// BaselineStatus reports one metric's rolling window for the status API.
type BaselineStatus struct {
	Metric   string    `json:"metric"`
	Samples  int       `json:"samples"`
	Mean     float64   `json:"mean"`
	StdDev   float64   `json:"std_dev"`
	LastEmit time.Time `json:"last_emit,omitzero"`
}

// Baselines reports every tracked metric in configuration order.
func (d *Detector) Baselines() []BaselineStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]BaselineStatus, 0, len(d.order))
	for _, metric := range d.order {
		b := d.metrics[metric]
		st := BaselineStatus{Metric: metric, Samples: b.n, LastEmit: b.lastEmit}
		if b.n > 0 {
			st.Mean, st.StdDev = b.meanStdDev()
		}
		out = append(out, st)
	}
	return out
}
