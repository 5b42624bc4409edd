package hub

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/monitoring"
	"github.com/vigil-care/vigil/internal/sensors"
)

// subscriberBuffer is the per-subscriber channel depth for the live tail
// feeds. A slow subscriber drops readings rather than stalling delivery.
const subscriberBuffer = 16

// Consumer receives every reading the hub delivers. Consumers run
// synchronously in registration order and must not mutate the shared
// reading; take a Clone first.
type Consumer interface {
	// Name identifies the consumer in logs and status output.
	Name() string
	// OnReading handles one reading. An error is counted and logged but
	// never stops delivery to later consumers.
	OnReading(r sensors.Reading) error
}

// AlertSink receives every emitted alert event, with the same ordering and
// isolation contract as Consumer.
type AlertSink interface {
	Name() string
	OnAlert(ev alerts.Event) error
}

type consumerSlot struct {
	c         Consumer
	delivered uint64
	errors    uint64
	lastErr   string
}

type sinkSlot struct {
	s         AlertSink
	delivered uint64
	errors    uint64
	lastErr   string
}

// Router fans readings and alert events out to registered consumers and to
// ad-hoc channel subscribers (the debug tail and the websocket feed).
// Consumer delivery is synchronous and ordered; subscriber delivery is
// best-effort and never blocks.
type Router struct {
	mu          sync.Mutex
	consumers   []*consumerSlot
	sinks       []*sinkSlot
	readingSubs map[string]chan sensors.Reading
	alertSubs   map[string]chan alerts.Event
	closed      bool
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		readingSubs: make(map[string]chan sensors.Reading),
		alertSubs:   make(map[string]chan alerts.Event),
	}
}

// Register appends a reading consumer. Delivery order is registration
// order, so register storage before alerting if alerts should see stored
// readings.
func (rt *Router) Register(c Consumer) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.consumers = append(rt.consumers, &consumerSlot{c: c})
}

// RegisterAlertSink appends an alert sink.
func (rt *Router) RegisterAlertSink(s AlertSink) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.sinks = append(rt.sinks, &sinkSlot{s: s})
}

// Publish delivers one reading to every consumer in registration order,
// then to the channel subscribers. A consumer error is recorded and logged;
// later consumers still receive the reading.
func (rt *Router) Publish(r sensors.Reading) {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return
	}
	consumers := rt.consumers
	rt.mu.Unlock()

	for _, cs := range consumers {
		err := cs.c.OnReading(r)
		rt.mu.Lock()
		cs.delivered++
		if err != nil {
			cs.errors++
			cs.lastErr = err.Error()
		}
		rt.mu.Unlock()
		if err != nil {
			monitoring.Diagf("router: consumer %s rejected %s reading: %v", cs.c.Name(), r.Model, err)
		}
	}

	rt.mu.Lock()
	for _, ch := range rt.readingSubs {
		select {
		case ch <- r:
		default:
			// subscriber not keeping up, drop rather than stall the poll loop
		}
	}
	rt.mu.Unlock()
}

// EmitAlert delivers one alert event to every alert sink in registration
// order, then to the alert subscribers. Sink errors are isolated the same
// way consumer errors are.
func (rt *Router) EmitAlert(ev alerts.Event) {
	monitoring.Logf("alert [%s] %s: %s", ev.Severity, ev.Rule, ev.Message)

	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return
	}
	sinks := rt.sinks
	rt.mu.Unlock()

	for _, ss := range sinks {
		err := ss.s.OnAlert(ev)
		rt.mu.Lock()
		ss.delivered++
		if err != nil {
			ss.errors++
			ss.lastErr = err.Error()
		}
		rt.mu.Unlock()
		if err != nil {
			monitoring.Diagf("router: alert sink %s failed on %s: %v", ss.s.Name(), ev.Rule, err)
		}
	}

	rt.mu.Lock()
	for _, ch := range rt.alertSubs {
		select {
		case ch <- ev:
		default:
		}
	}
	rt.mu.Unlock()
}

// randomID generates a random subscriber ID (8 byte random hex encoded
// value).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a channel receiving published readings. The returned ID
// identifies the channel when unsubscribing.
func (rt *Router) Subscribe() (string, chan sensors.Reading) {
	id := randomID()
	ch := make(chan sensors.Reading, subscriberBuffer)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.readingSubs[id] = ch
	return id, ch
}

// Unsubscribe removes a reading subscriber and closes its channel.
func (rt *Router) Unsubscribe(id string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if ch, ok := rt.readingSubs[id]; ok {
		close(ch)
		delete(rt.readingSubs, id)
	}
}

// SubscribeAlerts creates a channel receiving emitted alert events.
func (rt *Router) SubscribeAlerts() (string, chan alerts.Event) {
	id := randomID()
	ch := make(chan alerts.Event, subscriberBuffer)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.alertSubs[id] = ch
	return id, ch
}

// UnsubscribeAlerts removes an alert subscriber and closes its channel.
func (rt *Router) UnsubscribeAlerts(id string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if ch, ok := rt.alertSubs[id]; ok {
		close(ch)
		delete(rt.alertSubs, id)
	}
}

// Close stops all future delivery and closes every subscriber channel.
func (rt *Router) Close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.closed = true
	for id, ch := range rt.readingSubs {
		close(ch)
		delete(rt.readingSubs, id)
	}
	for id, ch := range rt.alertSubs {
		close(ch)
		delete(rt.alertSubs, id)
	}
}

// ConsumerStatus reports delivery counters for one consumer or sink.
type ConsumerStatus struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Delivered uint64 `json:"delivered"`
	Errors    uint64 `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

// ConsumerStatuses returns counters for every registered consumer and
// sink, consumers first, each in registration order.
func (rt *Router) ConsumerStatuses() []ConsumerStatus {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]ConsumerStatus, 0, len(rt.consumers)+len(rt.sinks))
	for _, cs := range rt.consumers {
		out = append(out, ConsumerStatus{
			Name:      cs.c.Name(),
			Kind:      "readings",
			Delivered: cs.delivered,
			Errors:    cs.errors,
			LastError: cs.lastErr,
		})
	}
	for _, ss := range rt.sinks {
		out = append(out, ConsumerStatus{
			Name:      ss.s.Name(),
			Kind:      "alerts",
			Delivered: ss.delivered,
			Errors:    ss.errors,
			LastError: ss.lastErr,
		})
	}
	return out
}
