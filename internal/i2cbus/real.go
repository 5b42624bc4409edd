package i2cbus

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var hostInitOnce sync.Once

// RealBus drives a hardware I2C bus through periph.io. On a Raspberry Pi the
// primary bus is "1" (GPIO 2/3).
type RealBus struct {
	name    string
	bus     i2c.BusCloser
	timeout time.Duration

	// txMu serialises transactions. The polling loop is the only steady
	// writer but admin probes can arrive from other goroutines.
	txMu sync.Mutex
}

// Open opens the named I2C bus. An empty name selects the platform default.
// Failure to open returns an error wrapping ErrBusUnavailable so callers can
// degrade instead of exiting.
func Open(name string, timeout time.Duration) (*RealBus, error) {
	var initErr error
	hostInitOnce.Do(func() {
		_, initErr = host.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("%w: host init: %v", ErrBusUnavailable, initErr)
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrBusUnavailable, name, err)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RealBus{name: name, bus: bus, timeout: timeout}, nil
}

// Name returns the bus name as opened.
func (b *RealBus) Name() string { return b.name }

// tx runs one write-then-read transaction with the configured deadline.
// The ioctl underneath cannot be interrupted, so on timeout the transaction
// goroutine is abandoned and its eventual result discarded.
func (b *RealBus) tx(addr uint16, w, r []byte) error {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- b.bus.Tx(addr, w, r)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(b.timeout):
		return fmt.Errorf("device 0x%02x: %w", addr, ErrTimeout)
	}
}

func (b *RealBus) ReadReg(addr uint16, reg byte, buf []byte) error {
	if err := b.tx(addr, []byte{reg}, buf); err != nil {
		return fmt.Errorf("read reg 0x%02x from 0x%02x: %w", reg, addr, err)
	}
	return nil
}

func (b *RealBus) WriteReg(addr uint16, reg byte, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	if err := b.tx(addr, w, nil); err != nil {
		return fmt.Errorf("write reg 0x%02x to 0x%02x: %w", reg, addr, err)
	}
	return nil
}

// Probe issues a bare one-byte read, the same ack test i2cdetect uses for
// this address range. Devices that do not answer return a NAK error.
func (b *RealBus) Probe(addr uint16) bool {
	var buf [1]byte
	return b.tx(addr, nil, buf[:]) == nil
}

func (b *RealBus) Close() error {
	return b.bus.Close()
}
