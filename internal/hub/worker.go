package hub

import (
	"context"
	"time"

	"github.com/vigil-care/vigil/internal/monitoring"
)

// Worker drives the hub on its two cadences: a fast poll loop reading every
// adapter and a slow refresh loop re-scanning the bus for plugged or
// unplugged devices.
type Worker struct {
	Hub *Hub

	// PollInterval is the spacing between poll sweeps.
	PollInterval time.Duration

	// RefreshInterval is the spacing between bus re-scans.
	RefreshInterval time.Duration

	// StopChan signals the worker to stop.
	StopChan chan struct{}
}

// NewWorker creates a worker for the given hub.
func NewWorker(h *Hub, poll, refresh time.Duration) *Worker {
	return &Worker{
		Hub:             h,
		PollInterval:    poll,
		RefreshInterval: refresh,
		StopChan:        make(chan struct{}),
	}
}

// Start launches the worker loop in a goroutine. A refresh runs immediately
// so the daemon comes up with whatever is already on the bus instead of
// waiting a full refresh interval.
func (w *Worker) Start() {
	go func() {
		if err := w.Hub.Refresh(context.Background()); err != nil {
			monitoring.Logf("hub: initial refresh failed: %v", err)
		}

		poll := time.NewTicker(w.PollInterval)
		defer poll.Stop()
		refresh := time.NewTicker(w.RefreshInterval)
		defer refresh.Stop()

		for {
			select {
			case <-poll.C:
				if _, err := w.Hub.PollOnce(context.Background()); err != nil {
					monitoring.Logf("hub: poll sweep aborted: %v", err)
				}
			case <-refresh.C:
				if err := w.Hub.Refresh(context.Background()); err != nil {
					monitoring.Logf("hub: refresh failed: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop signals the worker loop to exit.
func (w *Worker) Stop() {
	close(w.StopChan)
}

// RunOnce performs one refresh followed by one poll sweep. Split out from
// Start so tests and one-shot commands can drive the hub directly.
func (w *Worker) RunOnce(ctx context.Context) error {
	if err := w.Hub.Refresh(ctx); err != nil {
		return err
	}
	_, err := w.Hub.PollOnce(ctx)
	return err
}
