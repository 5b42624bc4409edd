// Package notify delivers critical alert events to the emergency contacts
// as SMS text messages through a serial AT modem (SIM800/SIM7000 class
// hats). Anything below critical is ignored; send failures are logged and
// reported to the router but never take the daemon down.
package notify

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/config"
	"github.com/vigil-care/vigil/internal/monitoring"
)

// smsBodyLimit is the single-segment GSM text budget. Longer messages are
// truncated rather than split.
const smsBodyLimit = 160

// readPollInterval bounds each blocking modem read so response scans can
// check their deadline.
const readPollInterval = 200 * time.Millisecond

// Port is the subset of the serial port the notifier drives.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Notifier sends SMS for critical alert events. It satisfies the router's
// alert sink interface. The modem is a shared single-transaction device,
// so sends are serialized under the mutex.
type Notifier struct {
	CommandTimeout time.Duration
	SendTimeout    time.Duration

	contacts []config.Contact

	mu   sync.Mutex
	port Port
}

// Open connects to the modem on portName at baud (8N1) and returns a
// notifier for the given contacts.
func Open(portName string, baud int, contacts []config.Contact) (*Notifier, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open modem %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readPollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", portName, err)
	}
	return NewNotifier(port, contacts), nil
}

// NewNotifier wraps an already-open port. Reads on the port must time out
// on their own (Open arranges this); a port that blocks forever would wedge
// the response scans.
func NewNotifier(port Port, contacts []config.Contact) *Notifier {
	return &Notifier{
		CommandTimeout: 2 * time.Second,
		SendTimeout:    10 * time.Second,
		contacts:       contacts,
		port:           port,
	}
}

func (n *Notifier) Name() string { return "sms" }

// OnAlert texts every emergency contact for critical events. One contact
// failing does not stop the others; the first error is returned so the
// router counts the delivery as failed.
func (n *Notifier) OnAlert(ev alerts.Event) error {
	if ev.Severity != alerts.SeverityCritical {
		return nil
	}

	body := fmt.Sprintf("vigil %s: %s", ev.Rule, ev.Message)
	if len(body) > smsBodyLimit {
		body = body[:smsBodyLimit]
	}

	var firstErr error
	for _, c := range n.contacts {
		if err := n.Send(c.Phone, body); err != nil {
			monitoring.Logf("sms: send to %s (%s) failed: %v", c.Name, c.Phone, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("send to %s: %w", c.Name, err)
			}
			continue
		}
		monitoring.Logf("sms: sent %s alert to %s", ev.Rule, c.Name)
	}
	return firstErr
}

// Send runs one text-mode AT transaction: handshake, text mode, recipient,
// body, Ctrl-Z.
func (n *Notifier) Send(phone, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.command("AT", "OK", n.CommandTimeout); err != nil {
		return fmt.Errorf("modem handshake: %w", err)
	}
	if err := n.command("AT+CMGF=1", "OK", n.CommandTimeout); err != nil {
		return fmt.Errorf("set text mode: %w", err)
	}
	if err := n.command(fmt.Sprintf("AT+CMGS=%q", phone), ">", n.CommandTimeout); err != nil {
		return fmt.Errorf("address %s: %w", phone, err)
	}
	// body, then Ctrl-Z to submit
	if _, err := n.port.Write([]byte(body + "\x1a")); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := n.readUntil("OK", n.SendTimeout); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// Close closes the modem port.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.port.Close()
}

func (n *Notifier) command(cmd, want string, timeout time.Duration) error {
	if _, err := n.port.Write([]byte(cmd + "\r")); err != nil {
		return fmt.Errorf("write %s: %w", cmd, err)
	}
	return n.readUntil(want, timeout)
}

// readUntil accumulates modem output until the wanted token shows up. The
// modem echoes commands and pads responses with CRLF, so this scans the
// whole accumulated buffer rather than parsing lines.
func (n *Notifier) readUntil(want string, timeout time.Duration) error {
	var buf bytes.Buffer
	chunk := make([]byte, 64)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		nr, err := n.port.Read(chunk)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if nr == 0 {
			continue // read timeout tick
		}
		buf.Write(chunk[:nr])
		if strings.Contains(buf.String(), want) {
			return nil
		}
		if strings.Contains(buf.String(), "ERROR") {
			return fmt.Errorf("modem answered ERROR while waiting for %q", want)
		}
	}
	return fmt.Errorf("timed out waiting for %q (got %q)", want, buf.String())
}
