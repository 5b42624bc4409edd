// Command watch is the terminal live view. It connects to a running daemon's
// WebSocket feed and renders the latest vitals, per-metric sparklines and the
// recent alerts in place.
package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	var addr string
	flag.StringVar(&addr, "addr", "http://127.0.0.1:8650", "daemon base URL")
	flag.Parse()

	wsURL, err := feedURL(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -addr: %v\n", err)
		os.Exit(1)
	}

	msgs := make(chan tea.Msg, 64)
	go runFeed(wsURL, msgs)

	p := tea.NewProgram(newModel(addr, msgs), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// feedURL turns the daemon base URL into its WebSocket feed URL.
func feedURL(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
