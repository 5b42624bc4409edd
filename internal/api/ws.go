package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigil-care/vigil/internal/monitoring"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 512
	wsSendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from other hosts on the LAN.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is the envelope sent to websocket clients. Type is "reading" or
// "alert"; the payload is the corresponding JSON object.
type wsFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// wsHub tracks connected websocket clients and fans frames out to them.
// All client-set mutation happens inside run, so no lock is needed.
type wsHub struct {
	clients    map[*wsClient]bool
	frames     chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	stop       <-chan struct{}
}

func newWSHub(stop <-chan struct{}) *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		frames:     make(chan []byte),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		stop:       stop,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case frame := <-h.frames:
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					// client is not draining, drop it
					delete(h.clients, client)
					close(client.send)
				}
			}
		case <-h.stop:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		}
	}
}

func (h *wsHub) broadcast(kind string, payload interface{}) {
	frame, err := json.Marshal(wsFrame{Type: kind, Payload: payload})
	if err != nil {
		monitoring.Logf("api: failed to encode %s frame: %v", kind, err)
		return
	}
	select {
	case h.frames <- frame:
	case <-h.stop:
	}
}

// wsClient is one connected websocket peer.
type wsClient struct {
	hub  *wsHub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound messages; the stream is one way. It exists to
// run the pong handler and to notice the peer going away.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Tracef("api: websocket closed: %v", err)
			}
			return
		}
	}
}

// writePump forwards hub frames to the peer and keeps the connection alive
// with pings. One frame per websocket message, each a complete JSON
// document.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				// the hub dropped us
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWS upgrades the connection and attaches it to the fan-out hub. The
// handler blocks in the read pump for the lifetime of the connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{hub: s.ws, conn: conn, send: make(chan []byte, wsSendBuffer)}
	select {
	case s.ws.register <- client:
	case <-s.ws.stop:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
