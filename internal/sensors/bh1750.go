package sensors

import (
	"fmt"

	"github.com/vigil-care/vigil/internal/i2cbus"
)

// BH1750 opcodes. The chip is command-driven rather than register-mapped;
// on this bus abstraction the opcode travels in the register slot and a
// read returns the latest completed measurement.
const (
	bhCmdPowerOn    = 0x01
	bhCmdContHiRes  = 0x10
	bhLuxPerCountHi = 1.0 / 1.2
)

// BH1750 reads ambient light. Darkness across an evening combined with no
// motion is one of the wellness signals, so lux matters despite being the
// humblest sensor on the bus.
type BH1750 struct {
	bus  i2cbus.Bus
	addr uint16
	ts   monotonicStamp
}

// identifyBH1750 claims the address only when a power-on command and a
// measurement read both succeed; there is no identity register. The probe
// table keeps this entry last so anything with a real identity register is
// checked first.
func identifyBH1750(bus i2cbus.Bus, addr uint16) bool {
	if err := bus.WriteReg(addr, bhCmdPowerOn, nil); err != nil {
		return false
	}
	var raw [2]byte
	return bus.ReadReg(addr, bhCmdContHiRes, raw[:]) == nil
}

func newBH1750(bus i2cbus.Bus, addr uint16) (Adapter, error) {
	if err := bus.WriteReg(addr, bhCmdPowerOn, nil); err != nil {
		return nil, fmt.Errorf("bh1750 power on: %w", err)
	}
	// continuous high-resolution mode, new value every ~120ms
	if err := bus.WriteReg(addr, bhCmdContHiRes, nil); err != nil {
		return nil, fmt.Errorf("bh1750 mode: %w", err)
	}
	return &BH1750{bus: bus, addr: addr}, nil
}

func (b *BH1750) Model() string { return ModelBH1750 }
func (b *BH1750) Addr() uint16  { return b.addr }

func (b *BH1750) Read() (Reading, error) {
	var raw [2]byte
	if err := b.bus.ReadReg(b.addr, bhCmdContHiRes, raw[:]); err != nil {
		return Reading{}, fmt.Errorf("bh1750 read: %w", err)
	}
	lux := float64(uint16(raw[0])<<8|uint16(raw[1])) * bhLuxPerCountHi

	return Reading{
		Model: ModelBH1750,
		Addr:  b.addr,
		Time:  b.ts.stamp(),
		Values: map[string]float64{
			MetricLightLux: lux,
		},
	}, nil
}
