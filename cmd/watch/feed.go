package main

import (
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/sensors"
)

const reconnectDelay = 2 * time.Second

// feedFrame is one message off the daemon's WebSocket feed.
type feedFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type readingMsg sensors.Reading

type alertMsg alerts.Event

type connMsg struct {
	connected bool
	err       error
}

// runFeed owns the WebSocket connection and pushes decoded frames into msgs.
// It reconnects forever; the TUI just shows the connection state.
func runFeed(url string, msgs chan<- tea.Msg) {
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			msgs <- connMsg{err: err}
			time.Sleep(reconnectDelay)
			continue
		}
		msgs <- connMsg{connected: true}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				conn.Close()
				msgs <- connMsg{err: err}
				break
			}
			if msg, ok := decodeFrame(data); ok {
				msgs <- msg
			}
		}
		time.Sleep(reconnectDelay)
	}
}

// decodeFrame maps one wire frame to its TUI message. Unknown or malformed
// frames are dropped so a newer daemon cannot wedge an older watch.
func decodeFrame(data []byte) (tea.Msg, bool) {
	var frame feedFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, false
	}
	switch frame.Type {
	case "reading":
		var r sensors.Reading
		if err := json.Unmarshal(frame.Payload, &r); err != nil {
			return nil, false
		}
		return readingMsg(r), true
	case "alert":
		var ev alerts.Event
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			return nil, false
		}
		return alertMsg(ev), true
	}
	return nil, false
}

// waitForFrame hands the next feed message to the update loop.
func waitForFrame(msgs chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-msgs }
}
