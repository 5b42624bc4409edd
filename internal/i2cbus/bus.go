// Package i2cbus abstracts register-level access to an I2C bus so sensor
// drivers can run against real hardware, a simulated bus, or a test fake.
package i2cbus

import (
	"errors"
	"time"
)

var (
	// ErrBusUnavailable reports that the underlying I2C bus could not be
	// opened. Fatal for the sensor subsystem, non-fatal for the process.
	ErrBusUnavailable = errors.New("i2c bus unavailable")

	// ErrTimeout reports a bus transaction that exceeded the configured
	// deadline, usually a wedged or unplugged device.
	ErrTimeout = errors.New("i2c transaction timed out")
)

// Scan range for 7-bit addressing. Addresses below 0x03 and above 0x77 are
// reserved by the I2C specification.
const (
	ScanMin uint16 = 0x03
	ScanMax uint16 = 0x77
)

// DefaultTimeout bounds a single bus transaction so one stuck device cannot
// stall a whole poll cycle.
const DefaultTimeout = 250 * time.Millisecond

// Bus is the register-level capability shared by all implementations.
// A Bus is owned by a single polling loop; implementations serialise
// transactions internally so occasional out-of-loop probes stay safe.
type Bus interface {
	// ReadReg reads len(buf) bytes from the device register at reg.
	ReadReg(addr uint16, reg byte, buf []byte) error
	// WriteReg writes data to the device register at reg.
	WriteReg(addr uint16, reg byte, data []byte) error
	// Probe reports whether a device acknowledges the address. It never
	// writes to device registers.
	Probe(addr uint16) bool
	// Close releases the bus.
	Close() error
}
