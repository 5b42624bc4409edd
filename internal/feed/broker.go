package feed

import (
	"fmt"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/vigil-care/vigil/internal/monitoring"
)

// Broker is an embedded MQTT broker for installations without an external
// one. Displays on the LAN then connect straight to the daemon.
type Broker struct {
	server *mochi.Server
}

// NewBroker starts an embedded broker listening on addr. Clients are not
// authenticated; the broker is meant for the care unit's own network.
func NewBroker(addr string) (*Broker, error) {
	server := mochi.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("broker auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{Type: "tcp", ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("broker listener on %s: %w", addr, err)
	}
	if err := server.Serve(); err != nil {
		return nil, fmt.Errorf("broker serve: %w", err)
	}
	monitoring.Logf("feed: embedded broker listening on %s", addr)
	return &Broker{server: server}, nil
}

// Close shuts the broker down and disconnects its clients.
func (b *Broker) Close() error {
	return b.server.Close()
}
