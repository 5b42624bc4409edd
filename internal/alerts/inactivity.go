package alerts

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vigil-care/vigil/internal/sensors"
	"github.com/vigil-care/vigil/internal/timeutil"
)

// motionDeviation is how far accelerometer magnitude must stray from 1g to
// count as movement, matching the driver's motion_state threshold.
const motionDeviation = 0.15

// Watchdog raises an alert when the accelerometer has seen no motion for a
// whole window. It consumes readings for motion evidence and checks the
// window on its own cadence. Construction arms a full window of grace so a
// freshly started daemon does not page anyone at boot.
type Watchdog struct {
	// Window is how long without motion before an alert, and also how
	// often the alert repeats while the stillness lasts.
	Window time.Duration

	// CheckInterval is the spacing between window checks once started.
	CheckInterval time.Duration

	// StopChan signals the check loop to stop.
	StopChan chan struct{}

	emit  func(Event)
	clock timeutil.Clock

	mu         sync.Mutex
	lastMotion time.Time
	lastAlert  time.Time
}

// NewWatchdog creates a Watchdog emitting through emit.
func NewWatchdog(window, checkInterval time.Duration, clock timeutil.Clock, emit func(Event)) *Watchdog {
	return &Watchdog{
		Window:        window,
		CheckInterval: checkInterval,
		StopChan:      make(chan struct{}),
		emit:          emit,
		clock:         clock,
		lastMotion:    clock.Now(),
	}
}

// Name identifies the watchdog in router status output.
func (w *Watchdog) Name() string { return "inactivity" }

// OnReading records motion evidence. Readings without motion metrics leave
// the window untouched.
func (w *Watchdog) OnReading(r sensors.Reading) error {
	moving := false
	if state, ok := r.Value(sensors.MetricMotionState); ok && state >= 1 {
		moving = true
	} else if mag, ok := r.Value(sensors.MetricAccelMag); ok && math.Abs(mag-1) > motionDeviation {
		moving = true
	}
	if !moving {
		return nil
	}
	w.mu.Lock()
	w.lastMotion = r.Time
	w.lastAlert = time.Time{}
	w.mu.Unlock()
	return nil
}

// Check emits an alert if the quiet spell has outlasted the window. While
// the stillness continues it re-alerts once per additional window, and any
// motion re-arms it completely.
func (w *Watchdog) Check() {
	now := w.clock.Now()

	w.mu.Lock()
	quiet := now.Sub(w.lastMotion)
	if quiet < w.Window {
		w.mu.Unlock()
		return
	}
	if !w.lastAlert.IsZero() && now.Sub(w.lastAlert) < w.Window {
		w.mu.Unlock()
		return
	}
	w.lastAlert = now
	w.mu.Unlock()

	w.emit(Event{
		ID:       newEventID(),
		Rule:     "inactivity",
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("No movement detected for %s", quiet.Round(time.Minute)),
		Time:     now,
	})
}

// Start launches the periodic check loop in a goroutine.
func (w *Watchdog) Start() {
	go func() {
		ticker := w.clock.NewTicker(w.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				w.Check()
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop signals the check loop to exit.
func (w *Watchdog) Stop() {
	close(w.StopChan)
}
