// Package alerts turns streams of sensor readings into discrete alert
// events. Threshold rules run a small per-rule state machine with debounce
// and cooldown, a watchdog flags prolonged inactivity, and a scheduler
// emits medication reminders at configured times of day.
package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Severity levels carried by events. Critical events additionally reach the
// emergency contacts; info events are log-and-store only.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event is one discrete alert emission. Events are immutable once emitted.
type Event struct {
	ID        string    `json:"id"`
	Rule      string    `json:"rule"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Metric    string    `json:"metric,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Model     string    `json:"model,omitempty"`
	Addr      uint16    `json:"addr,omitempty"`
	Time      time.Time `json:"time"`
}

// newEventID generates the unique ID stamped on every emitted event.
func newEventID() string {
	return uuid.NewString()
}
