package i2cbus

import "fmt"

// UnavailableBus stands in when the hardware bus could not be opened. Every
// transaction reports ErrBusUnavailable and probes never ack, so the hub
// stays empty while the rest of the process keeps serving.
type UnavailableBus struct {
	reason error
}

// NewUnavailable wraps the open failure so later transactions can report it.
func NewUnavailable(reason error) *UnavailableBus {
	return &UnavailableBus{reason: reason}
}

func (b *UnavailableBus) ReadReg(addr uint16, reg byte, buf []byte) error {
	return fmt.Errorf("%w: %v", ErrBusUnavailable, b.reason)
}

func (b *UnavailableBus) WriteReg(addr uint16, reg byte, data []byte) error {
	return fmt.Errorf("%w: %v", ErrBusUnavailable, b.reason)
}

func (b *UnavailableBus) Probe(addr uint16) bool { return false }

func (b *UnavailableBus) Close() error { return nil }
