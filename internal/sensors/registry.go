package sensors

import (
	"github.com/vigil-care/vigil/internal/i2cbus"
)

// Probe is one entry in the detection table: the addresses a model can
// appear at, an identify check, and the adapter constructor.
type Probe struct {
	Model string

	// Addrs lists the bus addresses this model can occupy.
	Addrs []uint16

	// Identify reports whether the device at addr answers like this model.
	// It must be read-only on device state wherever the silicon allows.
	Identify func(bus i2cbus.Bus, addr uint16) bool

	// New constructs the adapter, running any init/calibration reads.
	New func(bus i2cbus.Bus, addr uint16) (Adapter, error)
}

// DefaultProbes returns the detection table in priority order: models with
// an exact identity register first, range heuristics after, and BH1750 last
// because it has no identity register at all and is claimed purely by a
// command round-trip at its two fixed addresses. A fresh slice is returned
// each call so callers cannot mutate shared state.
func DefaultProbes() []Probe {
	return []Probe{
		{
			Model:    ModelMPU6050,
			Addrs:    []uint16{0x68, 0x69},
			Identify: identifyMPU6050,
			New:      newMPU6050,
		},
		{
			Model:    ModelBME280,
			Addrs:    []uint16{0x76, 0x77},
			Identify: identifyBME280,
			New:      newBME280,
		},
		{
			Model:    ModelMAX30102,
			Addrs:    []uint16{0x57},
			Identify: identifyMAX30102,
			New:      newMAX30102,
		},
		{
			Model:    ModelMLX90614,
			Addrs:    []uint16{0x5A},
			Identify: identifyMLX90614,
			New:      newMLX90614,
		},
		{
			Model:    ModelBH1750,
			Addrs:    []uint16{0x23, 0x5C},
			Identify: identifyBH1750,
			New:      newBH1750,
		},
	}
}

func (p Probe) claims(addr uint16) bool {
	for _, a := range p.Addrs {
		if a == addr {
			return true
		}
	}
	return false
}
