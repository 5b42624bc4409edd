package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/vigil-care/vigil/internal/timeutil"
)

type medTime struct {
	hour, minute int
	label        string
}

// Scheduler emits a reminder event when the clock crosses a configured
// time of day. Crossings are detected between consecutive checks, so a
// check interval longer than a minute still fires every reminder exactly
// once.
type Scheduler struct {
	// CheckInterval is the spacing between crossing checks once started.
	CheckInterval time.Duration

	// StopChan signals the check loop to stop.
	StopChan chan struct{}

	emit  func(Event)
	clock timeutil.Clock

	mu        sync.Mutex
	times     []medTime
	lastCheck time.Time
}

// NewScheduler creates a Scheduler for the given "HH:MM" times of day.
func NewScheduler(times []string, checkInterval time.Duration, clock timeutil.Clock, emit func(Event)) (*Scheduler, error) {
	s := &Scheduler{
		CheckInterval: checkInterval,
		StopChan:      make(chan struct{}),
		emit:          emit,
		clock:         clock,
		lastCheck:     clock.Now(),
	}
	for _, raw := range times {
		parsed, err := time.Parse("15:04", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid medication time %q: %w", raw, err)
		}
		s.times = append(s.times, medTime{
			hour:   parsed.Hour(),
			minute: parsed.Minute(),
			label:  raw,
		})
	}
	return s, nil
}

// Check fires a reminder for every configured time of day crossed since the
// previous check.
func (s *Scheduler) Check() {
	now := s.clock.Now()

	var fired []Event
	s.mu.Lock()
	prev := s.lastCheck
	s.lastCheck = now
	for _, mt := range s.times {
		occ := time.Date(prev.Year(), prev.Month(), prev.Day(), mt.hour, mt.minute, 0, 0, now.Location())
		if !occ.After(prev) {
			next := prev.AddDate(0, 0, 1)
			occ = time.Date(next.Year(), next.Month(), next.Day(), mt.hour, mt.minute, 0, 0, now.Location())
		}
		if occ.After(now) {
			continue
		}
		fired = append(fired, Event{
			ID:       newEventID(),
			Rule:     "medication_reminder",
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("Medication reminder (%s)", mt.label),
			Time:     now,
		})
	}
	s.mu.Unlock()

	for _, ev := range fired {
		s.emit(ev)
	}
}

// Start launches the periodic check loop in a goroutine.
func (s *Scheduler) Start() {
	go func() {
		ticker := s.clock.NewTicker(s.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				s.Check()
			case <-s.StopChan:
				return
			}
		}
	}()
}

// Stop signals the check loop to exit.
func (s *Scheduler) Stop() {
	close(s.StopChan)
}
