// Package feed publishes readings and alert events to an MQTT broker so
// off-board consumers (wall displays, voice units) can follow the stream
// without touching the daemon. Publishing is decoupled from the poll loop
// by bounded queues; while the broker is unreachable the queues fill and
// the newest traffic is dropped.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/monitoring"
	"github.com/vigil-care/vigil/internal/sensors"
)

const (
	readingQueueSize = 256
	alertQueueSize   = 64
	publishTimeout   = 5 * time.Second
	keepAliveSecs    = 30
)

// Publisher forwards readings and alerts to MQTT. It satisfies the
// router's consumer and alert sink interfaces; enqueueing never blocks
// the poll loop. Readings go out retained at QoS 0 on
// <prefix>/readings/<model>, alerts at QoS 1 on <prefix>/alerts.
type Publisher struct {
	broker string
	prefix string

	readings chan sensors.Reading
	events   chan alerts.Event
	stop     chan struct{}
	done     chan struct{}

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

func NewPublisher(broker, topicPrefix string) *Publisher {
	return &Publisher{
		broker:   broker,
		prefix:   topicPrefix,
		readings: make(chan sensors.Reading, readingQueueSize),
		events:   make(chan alerts.Event, alertQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *Publisher) Name() string { return "feed" }

// OnReading queues a reading for publication. A full queue drops the
// reading; the router's per-consumer error counter records the loss.
func (p *Publisher) OnReading(r sensors.Reading) error {
	select {
	case p.readings <- r:
		return nil
	default:
		return fmt.Errorf("reading queue full, dropped %s", r.Model)
	}
}

// OnAlert queues an alert event for publication.
func (p *Publisher) OnAlert(ev alerts.Event) error {
	select {
	case p.events <- ev:
		return nil
	default:
		return fmt.Errorf("alert queue full, dropped %s", ev.Rule)
	}
}

// Start connects to the broker and runs the forwarding loop. The
// connection manager reconnects with backoff on its own; queued traffic
// flows again once a connection is up. Cancelling ctx tears the
// connection down.
func (p *Publisher) Start(ctx context.Context) error {
	u, err := url.Parse(p.broker)
	if err != nil {
		return fmt.Errorf("parse broker url %q: %w", p.broker, err)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     keepAliveSecs,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			monitoring.Logf("feed: connected to %s", p.broker)
		},
		OnConnectError: func(err error) {
			monitoring.Diagf("feed: connect error: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID(),
			OnClientError: func(err error) {
				monitoring.Diagf("feed: client error: %v", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				monitoring.Diagf("feed: server disconnect, reason code %d", d.ReasonCode)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", p.broker, err)
	}
	p.mu.Lock()
	p.cm = cm
	p.mu.Unlock()

	go p.run(ctx)
	return nil
}

// Stop ends the forwarding loop and disconnects cleanly. Safe to call
// when Start was never called or failed.
func (p *Publisher) Stop() {
	p.mu.Lock()
	cm := p.cm
	p.mu.Unlock()

	close(p.stop)
	if cm == nil {
		return
	}
	<-p.done

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cm.Disconnect(ctx); err != nil {
		monitoring.Diagf("feed: disconnect: %v", err)
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case r := <-p.readings:
			p.publish(ctx, p.prefix+"/readings/"+r.Model, 0, true, r)
		case ev := <-p.events:
			p.publish(ctx, p.prefix+"/alerts", 1, false, ev)
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// publish sends one JSON payload. Publish waits for a connection, so a
// broker outage stalls here until the timeout; the bounded queues take
// the overflow and the poll loop never notices.
func (p *Publisher) publish(ctx context.Context, topic string, qos byte, retain bool, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		monitoring.Logf("feed: encode for %s: %v", topic, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err = p.cm.Publish(pubCtx, &paho.Publish{
		QoS:     qos,
		Retain:  retain,
		Topic:   topic,
		Payload: body,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	if err != nil {
		monitoring.Diagf("feed: publish %s: %v", topic, err)
	}
}

func clientID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "vigil"
	}
	return "vigil-" + host
}
