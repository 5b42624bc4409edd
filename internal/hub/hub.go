// Package hub owns the sensor set for one I2C bus. It discovers adapters by
// scanning and matching addresses, polls every adapter on a fixed cadence,
// fans readings out to registered consumers, and evicts devices that stop
// answering so one dead sensor cannot poison the sweep.
package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vigil-care/vigil/internal/monitoring"
	"github.com/vigil-care/vigil/internal/sensors"
)

// DefaultMaxFailures is how many consecutive read failures an adapter gets
// before the hub drops it until the next refresh re-admits it.
const DefaultMaxFailures = 3

// slot tracks one live adapter and its health counters. Slots are only
// mutated under the hub mutex; the adapter itself is touched only by the
// single polling goroutine.
type slot struct {
	adapter     sensors.Adapter
	reads       uint64
	errors      uint64
	consecFails int
	last        sensors.Reading
	lastOK      time.Time
}

// Hub coordinates scanning, polling and eviction for one bus. Refresh and
// PollOnce must be called from a single goroutine (normally the Worker);
// Snapshot and the admin routes are safe from any goroutine.
type Hub struct {
	scanner *sensors.Scanner
	router  *Router

	maxFailures int

	mu          sync.Mutex
	slots       map[uint16]*slot
	lastScan    []uint16
	lastRefresh time.Time
	scans       uint64
	pollCycles  uint64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMaxFailures overrides the consecutive-failure eviction threshold.
func WithMaxFailures(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.maxFailures = n
		}
	}
}

// New creates a Hub over the given scanner, delivering readings through
// router.
func New(scanner *sensors.Scanner, router *Router, opts ...HubOption) *Hub {
	h := &Hub{
		scanner:     scanner,
		router:      router,
		maxFailures: DefaultMaxFailures,
		slots:       make(map[uint16]*slot),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns the router readings are delivered through.
func (h *Hub) Router() *Router {
	return h.router
}

// Refresh re-scans the bus and reconciles the adapter set: addresses that
// vanished are dropped, new addresses are matched against the detection
// table, and adapters evicted for failures get another chance if their
// device identifies again. Known adapters keep their counters.
func (h *Hub) Refresh(ctx context.Context) error {
	found, err := h.scanner.Scan(ctx)
	if err != nil {
		return err
	}
	present := make(map[uint16]bool, len(found))
	for _, addr := range found {
		present[addr] = true
	}

	h.mu.Lock()
	h.scans++
	h.lastScan = found
	h.lastRefresh = time.Now()
	var stale []uint16
	for addr := range h.slots {
		if !present[addr] {
			stale = append(stale, addr)
		}
	}
	for _, addr := range stale {
		monitoring.Logf("hub: %s at 0x%02x gone from scan, dropping", h.slots[addr].adapter.Model(), addr)
		delete(h.slots, addr)
	}
	missing := make([]uint16, 0, len(found))
	for _, addr := range found {
		if _, ok := h.slots[addr]; !ok {
			missing = append(missing, addr)
		}
	}
	h.mu.Unlock()

	// Match outside the lock: identification does bus I/O and can take a
	// few transactions per address.
	for _, addr := range missing {
		if err := ctx.Err(); err != nil {
			return err
		}
		adapter, ok := h.scanner.Match(addr)
		if !ok {
			continue
		}
		monitoring.Logf("hub: detected %s at 0x%02x", adapter.Model(), addr)
		h.mu.Lock()
		h.slots[addr] = &slot{adapter: adapter}
		h.mu.Unlock()
	}
	return nil
}

// PollOnce reads every live adapter once, in ascending address order, and
// publishes each successful reading. A failed read skips that adapter for
// the cycle; maxFailures consecutive failures evict it until the next
// refresh. Returns the number of readings delivered.
func (h *Hub) PollOnce(ctx context.Context) (int, error) {
	delivered := 0
	for _, sl := range h.pollOrder() {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		reading, err := sl.adapter.Read()
		if err != nil {
			h.noteFailure(sl, err)
			continue
		}
		h.noteSuccess(sl, reading)
		h.router.Publish(reading)
		delivered++
	}
	h.mu.Lock()
	h.pollCycles++
	h.mu.Unlock()
	return delivered, nil
}

func (h *Hub) pollOrder() []*slot {
	h.mu.Lock()
	defer h.mu.Unlock()
	slots := make([]*slot, 0, len(h.slots))
	for _, sl := range h.slots {
		slots = append(slots, sl)
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].adapter.Addr() < slots[j].adapter.Addr()
	})
	return slots
}

func (h *Hub) noteSuccess(sl *slot, reading sensors.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sl.reads++
	sl.consecFails = 0
	sl.last = reading
	sl.lastOK = reading.Time
}

func (h *Hub) noteFailure(sl *slot, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sl.errors++
	sl.consecFails++
	monitoring.Diagf("hub: read %s at 0x%02x failed (%d consecutive): %v",
		sl.adapter.Model(), sl.adapter.Addr(), sl.consecFails, err)
	if sl.consecFails >= h.maxFailures {
		monitoring.Logf("hub: evicting %s at 0x%02x after %d consecutive failures",
			sl.adapter.Model(), sl.adapter.Addr(), sl.consecFails)
		delete(h.slots, sl.adapter.Addr())
	}
}

// AdapterStatus describes one live adapter for the status API.
type AdapterStatus struct {
	Model               string           `json:"model"`
	Addr                uint16           `json:"addr"`
	Reads               uint64           `json:"reads"`
	Errors              uint64           `json:"errors"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastOK              time.Time        `json:"last_ok,omitzero"`
	LastReading         *sensors.Reading `json:"last_reading,omitempty"`
}

// Status is a point-in-time view of the hub for the status API and the
// debug pages.
type Status struct {
	Adapters    []AdapterStatus  `json:"adapters"`
	LastScan    []uint16         `json:"last_scan"`
	LastRefresh time.Time        `json:"last_refresh,omitzero"`
	Scans       uint64           `json:"scans"`
	PollCycles  uint64           `json:"poll_cycles"`
	Consumers   []ConsumerStatus `json:"consumers"`
}

// Snapshot returns the current hub state. The returned readings are deep
// copies.
func (h *Hub) Snapshot() Status {
	h.mu.Lock()
	st := Status{
		Adapters:    make([]AdapterStatus, 0, len(h.slots)),
		LastScan:    append([]uint16(nil), h.lastScan...),
		LastRefresh: h.lastRefresh,
		Scans:       h.scans,
		PollCycles:  h.pollCycles,
	}
	for _, sl := range h.slots {
		as := AdapterStatus{
			Model:               sl.adapter.Model(),
			Addr:                sl.adapter.Addr(),
			Reads:               sl.reads,
			Errors:              sl.errors,
			ConsecutiveFailures: sl.consecFails,
			LastOK:              sl.lastOK,
		}
		if sl.reads > 0 {
			r := sl.last.Clone()
			as.LastReading = &r
		}
		st.Adapters = append(st.Adapters, as)
	}
	h.mu.Unlock()

	sort.Slice(st.Adapters, func(i, j int) bool {
		return st.Adapters[i].Addr < st.Adapters[j].Addr
	})
	st.Consumers = h.router.ConsumerStatuses()
	return st
}

// Adapters returns the models of the live adapters keyed by address.
func (h *Hub) Adapters() map[uint16]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[uint16]string, len(h.slots))
	for addr, sl := range h.slots {
		out[addr] = sl.adapter.Model()
	}
	return out
}
