package sensors

import (
	"fmt"

	"github.com/vigil-care/vigil/internal/i2cbus"
	"github.com/vigil-care/vigil/internal/units"
)

// BME280 register map (Bosch datasheet rev 1.6)
const (
	bmeRegCalib00  = 0x88 // dig_T1..dig_P9, 24 bytes
	bmeRegCalibH1  = 0xA1
	bmeRegID       = 0xD0
	bmeRegCalib26  = 0xE1 // dig_H2..dig_H6, 7 bytes
	bmeRegCtrlHum  = 0xF2
	bmeRegCtrlMeas = 0xF4
	bmeRegConfig   = 0xF5
	bmeRegData     = 0xF7 // press/temp/hum burst, 8 bytes

	bmeIDValue = 0x60
)

// bmeCalib holds the factory trim coefficients read once at init.
type bmeCalib struct {
	T1         uint16
	T2, T3     int16
	P1         uint16
	P2, P3, P4 int16
	P5, P6, P7 int16
	P8, P9     int16
	H1         uint8
	H2         int16
	H3         uint8
	H4, H5     int16
	H6         int8
}

// BME280 reads room temperature, humidity, and barometric pressure.
type BME280 struct {
	bus   i2cbus.Bus
	addr  uint16
	calib bmeCalib
	ts    monotonicStamp
}

func identifyBME280(bus i2cbus.Bus, addr uint16) bool {
	var id [1]byte
	if err := bus.ReadReg(addr, bmeRegID, id[:]); err != nil {
		return false
	}
	return id[0] == bmeIDValue
}

func newBME280(bus i2cbus.Bus, addr uint16) (Adapter, error) {
	b := &BME280{bus: bus, addr: addr}
	if err := b.readCalibration(); err != nil {
		return nil, fmt.Errorf("bme280 calibration: %w", err)
	}

	// humidity 1x oversampling; ctrl_hum only latches after ctrl_meas
	if err := bus.WriteReg(addr, bmeRegCtrlHum, []byte{0x01}); err != nil {
		return nil, fmt.Errorf("bme280 ctrl_hum: %w", err)
	}
	// temp 1x, pressure 1x, normal mode
	if err := bus.WriteReg(addr, bmeRegCtrlMeas, []byte{0x27}); err != nil {
		return nil, fmt.Errorf("bme280 ctrl_meas: %w", err)
	}
	// standby 1000ms, filter off; the hub polls on seconds, not millis
	if err := bus.WriteReg(addr, bmeRegConfig, []byte{0xA0}); err != nil {
		return nil, fmt.Errorf("bme280 config: %w", err)
	}
	return b, nil
}

func (b *BME280) readCalibration() error {
	var lo [24]byte
	if err := b.bus.ReadReg(b.addr, bmeRegCalib00, lo[:]); err != nil {
		return err
	}
	var h1 [1]byte
	if err := b.bus.ReadReg(b.addr, bmeRegCalibH1, h1[:]); err != nil {
		return err
	}
	var hi [7]byte
	if err := b.bus.ReadReg(b.addr, bmeRegCalib26, hi[:]); err != nil {
		return err
	}

	u16 := func(p []byte) uint16 { return uint16(p[0]) | uint16(p[1])<<8 }
	s16 := func(p []byte) int16 { return int16(u16(p)) }

	b.calib = bmeCalib{
		T1: u16(lo[0:]), T2: s16(lo[2:]), T3: s16(lo[4:]),
		P1: u16(lo[6:]), P2: s16(lo[8:]), P3: s16(lo[10:]),
		P4: s16(lo[12:]), P5: s16(lo[14:]), P6: s16(lo[16:]),
		P7: s16(lo[18:]), P8: s16(lo[20:]), P9: s16(lo[22:]),
		H1: h1[0],
		H2: s16(hi[0:]),
		H3: hi[2],
		// H4/H5 are 12-bit values packed across three bytes
		H4: int16(hi[3])<<4 | int16(hi[4]&0x0F),
		H5: int16(hi[5])<<4 | int16(hi[4]>>4),
		H6: int8(hi[6]),
	}
	return nil
}

func (b *BME280) Model() string { return ModelBME280 }
func (b *BME280) Addr() uint16  { return b.addr }

// Read burst-reads the measurement registers and applies the datasheet
// floating-point compensation.
func (b *BME280) Read() (Reading, error) {
	var raw [8]byte
	if err := b.bus.ReadReg(b.addr, bmeRegData, raw[:]); err != nil {
		return Reading{}, fmt.Errorf("bme280 read: %w", err)
	}

	adcP := uint32(raw[0])<<12 | uint32(raw[1])<<4 | uint32(raw[2])>>4
	adcT := uint32(raw[3])<<12 | uint32(raw[4])<<4 | uint32(raw[5])>>4
	adcH := uint32(raw[6])<<8 | uint32(raw[7])

	tempC, tFine := b.compensateTemp(adcT)
	pressPa := b.compensatePress(adcP, tFine)
	humPct := b.compensateHum(adcH, tFine)

	return Reading{
		Model: ModelBME280,
		Addr:  b.addr,
		Time:  b.ts.stamp(),
		Values: map[string]float64{
			MetricTemperature: tempC,
			MetricHumidity:    humPct,
			MetricPressure:    units.PaToHPa(pressPa),
		},
	}, nil
}

// compensateTemp implements the datasheet double-precision formula and
// returns °C plus the t_fine carrier the other channels need.
func (b *BME280) compensateTemp(adcT uint32) (float64, float64) {
	c := b.calib
	var1 := (float64(adcT)/16384.0 - float64(c.T1)/1024.0) * float64(c.T2)
	var2 := (float64(adcT)/131072.0 - float64(c.T1)/8192.0) *
		(float64(adcT)/131072.0 - float64(c.T1)/8192.0) * float64(c.T3)
	tFine := var1 + var2
	return tFine / 5120.0, tFine
}

// compensatePress returns pascals.
func (b *BME280) compensatePress(adcP uint32, tFine float64) float64 {
	c := b.calib
	var1 := tFine/2.0 - 64000.0
	var2 := var1 * var1 * float64(c.P6) / 32768.0
	var2 += var1 * float64(c.P5) * 2.0
	var2 = var2/4.0 + float64(c.P4)*65536.0
	var1 = (float64(c.P3)*var1*var1/524288.0 + float64(c.P2)*var1) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(c.P1)
	if var1 == 0 {
		return 0 // avoid division by zero on blank calibration
	}
	p := 1048576.0 - float64(adcP)
	p = (p - var2/4096.0) * 6250.0 / var1
	var1 = float64(c.P9) * p * p / 2147483648.0
	var2 = p * float64(c.P8) / 32768.0
	return p + (var1+var2+float64(c.P7))/16.0
}

// compensateHum returns %RH clamped to 0..100.
func (b *BME280) compensateHum(adcH uint32, tFine float64) float64 {
	c := b.calib
	h := tFine - 76800.0
	h = (float64(adcH) - (float64(c.H4)*64.0 + float64(c.H5)/16384.0*h)) *
		(float64(c.H2) / 65536.0 * (1.0 + float64(c.H6)/67108864.0*h*
			(1.0+float64(c.H3)/67108864.0*h)))
	h = h * (1.0 - float64(c.H1)*h/524288.0)
	if h > 100 {
		return 100
	}
	if h < 0 {
		return 0
	}
	return h
}
