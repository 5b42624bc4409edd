package sensors

import (
	"fmt"

	"github.com/vigil-care/vigil/internal/i2cbus"
)

// MLX90614 RAM cells (SMBus word reads, LSB first)
const (
	mlxRegTa   = 0x06 // ambient temperature
	mlxRegTobj = 0x07 // object temperature, the wearer's skin

	// raw words are in units of 0.02K
	mlxKelvinPerLSB = 0.02
	mlxKelvinOffset = 273.15
)

// MLX90614 reads contactless IR body temperature plus the sensor's own
// ambient temperature.
type MLX90614 struct {
	bus  i2cbus.Bus
	addr uint16
	ts   monotonicStamp
}

// identifyMLX90614 has no identity register to check, so it reads the
// ambient cell and accepts the device only if the value decodes inside the
// chip's rated -40..125°C ambient range. The flag bit (0x8000) marks a
// failed conversion.
func identifyMLX90614(bus i2cbus.Bus, addr uint16) bool {
	raw, err := mlxReadWord(bus, addr, mlxRegTa)
	if err != nil || raw&0x8000 != 0 {
		return false
	}
	tempC := mlxToCelsius(raw)
	return tempC > -40 && tempC < 125
}

func newMLX90614(bus i2cbus.Bus, addr uint16) (Adapter, error) {
	return &MLX90614{bus: bus, addr: addr}, nil
}

func mlxReadWord(bus i2cbus.Bus, addr uint16, reg byte) (uint16, error) {
	var raw [2]byte
	if err := bus.ReadReg(addr, reg, raw[:]); err != nil {
		return 0, err
	}
	return uint16(raw[0]) | uint16(raw[1])<<8, nil
}

func mlxToCelsius(raw uint16) float64 {
	return float64(raw)*mlxKelvinPerLSB - mlxKelvinOffset
}

func (m *MLX90614) Model() string { return ModelMLX90614 }
func (m *MLX90614) Addr() uint16  { return m.addr }

func (m *MLX90614) Read() (Reading, error) {
	ambient, err := mlxReadWord(m.bus, m.addr, mlxRegTa)
	if err != nil {
		return Reading{}, fmt.Errorf("mlx90614 ambient read: %w", err)
	}
	object, err := mlxReadWord(m.bus, m.addr, mlxRegTobj)
	if err != nil {
		return Reading{}, fmt.Errorf("mlx90614 object read: %w", err)
	}
	if ambient&0x8000 != 0 || object&0x8000 != 0 {
		return Reading{}, fmt.Errorf("mlx90614 conversion flagged invalid")
	}

	return Reading{
		Model: ModelMLX90614,
		Addr:  m.addr,
		Time:  m.ts.stamp(),
		Values: map[string]float64{
			MetricBodyTemp:    mlxToCelsius(object),
			MetricAmbientTemp: mlxToCelsius(ambient),
		},
	}, nil
}
