package simbus

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

func putBE16(buf []byte, v int16) {
	buf[0] = byte(uint16(v) >> 8)
	buf[1] = byte(uint16(v))
}

// simMPU6050 models the accelerometer at rest, walking, and during a
// scripted fall. Scale factors match the ±8g / ±250°/s driver configuration.
type simMPU6050 struct {
	rng    *rand.Rand
	moving bool
	step   int
	fall   []float64 // queued impact magnitudes in g
}

func newSimMPU6050(rng *rand.Rand) *simMPU6050 {
	return &simMPU6050{rng: rng}
}

func (d *simMPU6050) triggerFall() {
	d.fall = append(d.fall, 3.2, 2.9, 1.6)
	d.moving = false
}

func (d *simMPU6050) readReg(reg byte, buf []byte) error {
	switch reg {
	case 0x75: // WHO_AM_I
		buf[0] = 0x68
		return nil
	case 0x3B: // accel/temp/gyro burst
		frame := d.sample()
		for i := range buf {
			if i < len(frame) {
				buf[i] = frame[i]
			} else {
				buf[i] = 0
			}
		}
		return nil
	default:
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
}

func (d *simMPU6050) writeReg(byte, []byte) error { return nil }

func (d *simMPU6050) sample() [14]byte {
	d.step++

	var ax, ay, az, gx, gy, gz float64
	switch {
	case len(d.fall) > 0:
		az = d.fall[0]
		d.fall = d.fall[1:]
		gx = 120 + d.rng.Float64()*40 // tumbling
	case d.moving:
		// walking: vertical bounce past the motion deadband
		bounce := 0.25
		if d.step%2 == 0 {
			bounce = -bounce
		}
		az = 1 + bounce + d.rng.NormFloat64()*0.03
		ax = d.rng.NormFloat64() * 0.1
		ay = d.rng.NormFloat64() * 0.1
		gx = d.rng.NormFloat64() * 25
		gy = d.rng.NormFloat64() * 25
	default:
		az = 1 + d.rng.NormFloat64()*0.01
		ax = d.rng.NormFloat64() * 0.01
		ay = d.rng.NormFloat64() * 0.01
		gz = d.rng.NormFloat64() * 0.5
	}

	toAccel := func(g float64) int16 { return int16(math.Round(g * 4096)) }
	toGyro := func(dps float64) int16 { return int16(math.Round(dps * 131)) }

	var frame [14]byte
	putBE16(frame[0:], toAccel(ax))
	putBE16(frame[2:], toAccel(ay))
	putBE16(frame[4:], toAccel(az))
	putBE16(frame[8:], toGyro(gx))
	putBE16(frame[10:], toGyro(gy))
	putBE16(frame[12:], toGyro(gz))
	return frame
}

// simBME280 carries slow random walks around comfortable indoor conditions.
// Its trim coefficients are chosen so the driver's compensation decodes the
// walk values exactly.
type simBME280 struct {
	rng     *rand.Rand
	file    [256]byte
	tempC   float64
	humPct  float64
	pressPa float64
}

func newSimBME280(rng *rand.Rand) *simBME280 {
	d := &simBME280{rng: rng, tempC: 22.5, humPct: 45, pressPa: 101325}
	d.file[0xD0] = 0x60
	d.file[0x8B] = 0x64 // dig_T2 = 25600
	d.file[0x8E] = 0x6A // dig_P1 = 6250
	d.file[0x8F] = 0x18
	d.file[0xE2] = 0x02 // dig_H2 = 512
	return d
}

func (d *simBME280) readReg(reg byte, buf []byte) error {
	if reg == 0xF7 {
		d.walk()
		d.encode()
	}
	for i := range buf {
		if idx := int(reg) + i; idx < len(d.file) {
			buf[i] = d.file[idx]
		} else {
			buf[i] = 0
		}
	}
	return nil
}

func (d *simBME280) writeReg(byte, []byte) error { return nil }

func (d *simBME280) walk() {
	clamp := func(v, lo, hi float64) float64 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	d.tempC = clamp(d.tempC+d.rng.NormFloat64()*0.03, 18, 28)
	d.humPct = clamp(d.humPct+d.rng.NormFloat64()*0.15, 30, 60)
	d.pressPa = clamp(d.pressPa+d.rng.NormFloat64()*3, 100800, 101900)
}

func (d *simBME280) encode() {
	adcT := uint32(math.Round(d.tempC * 3276.8))
	adcP := uint32(1048576 - int(math.Round(d.pressPa)))
	adcH := uint32(math.Round(d.humPct * 128))
	d.file[0xF7] = byte(adcP >> 12)
	d.file[0xF8] = byte(adcP >> 4)
	d.file[0xF9] = byte(adcP&0xF) << 4
	d.file[0xFA] = byte(adcT >> 12)
	d.file[0xFB] = byte(adcT >> 4)
	d.file[0xFC] = byte(adcT&0xF) << 4
	d.file[0xFD] = byte(adcH >> 8)
	d.file[0xFE] = byte(adcH)
}

// simMAX30102 streams a phase-continuous pulse waveform through a real FIFO
// pointer protocol, including overflow accounting when the hub falls behind.
type simMAX30102 struct {
	rng     *rand.Rand
	bpm     float64
	spo2    float64
	finger  bool
	phase   float64
	pending []simPPG
	rd      int
	ovf     int
}

type simPPG struct {
	red, ir uint32
}

// simBatch is how many samples arrive between polls: 12 at 6.25 samples/s
// matches a 2s poll interval.
const simBatch = 12

func newSimMAX30102(rng *rand.Rand) *simMAX30102 {
	return &simMAX30102{rng: rng, bpm: 72, spo2: 97, finger: true}
}

func (d *simMAX30102) readReg(reg byte, buf []byte) error {
	switch reg {
	case 0xFF: // PART_ID
		buf[0] = 0x15
	case 0x04: // FIFO_WR_PTR: new samples arrive when the poller looks
		d.generate(simBatch)
		buf[0] = byte((d.rd + len(d.pending)) & 0x1F)
	case 0x06: // FIFO_RD_PTR
		buf[0] = byte(d.rd & 0x1F)
	case 0x05: // OVF_COUNTER, cleared on read
		n := d.ovf
		if n > 255 {
			n = 255
		}
		buf[0] = byte(n)
		d.ovf = 0
	case 0x07: // FIFO_DATA
		var s simPPG
		if len(d.pending) > 0 {
			s = d.pending[0]
			d.pending = d.pending[1:]
			d.rd = (d.rd + 1) & 0x1F
		}
		if len(buf) >= 6 {
			buf[0] = byte(s.red >> 16)
			buf[1] = byte(s.red >> 8)
			buf[2] = byte(s.red)
			buf[3] = byte(s.ir >> 16)
			buf[4] = byte(s.ir >> 8)
			buf[5] = byte(s.ir)
		}
	default:
		for i := range buf {
			buf[i] = 0
		}
	}
	return nil
}

func (d *simMAX30102) writeReg(byte, []byte) error { return nil }

func (d *simMAX30102) generate(n int) {
	// red/IR amplitude ratio encodes the target saturation
	ratio := (110 - d.spo2) / 25
	for i := 0; i < n; i++ {
		d.phase += 2 * math.Pi * (d.bpm / 60) / 6.25
		if !d.finger {
			d.pending = append(d.pending, simPPG{red: 8000, ir: 8000})
			continue
		}
		wave := math.Sin(d.phase)
		noise := d.rng.NormFloat64() * 15
		d.pending = append(d.pending, simPPG{
			red: uint32(52000 + 1500*ratio*wave + noise),
			ir:  uint32(52000 + 1500*wave + noise),
		})
	}
	if over := len(d.pending) - 32; over > 0 {
		d.pending = d.pending[over:]
		d.ovf += over
	}
}

// simMLX90614 answers SMBus word reads with drifting skin and ambient
// temperatures.
type simMLX90614 struct {
	rng      *rand.Rand
	bodyC    float64
	ambientC float64
}

func newSimMLX90614(rng *rand.Rand) *simMLX90614 {
	return &simMLX90614{rng: rng, bodyC: 36.6, ambientC: 22.5}
}

func (d *simMLX90614) readReg(reg byte, buf []byte) error {
	var c float64
	switch reg {
	case 0x06:
		d.ambientC += d.rng.NormFloat64() * 0.02
		c = d.ambientC
	case 0x07:
		d.bodyC += d.rng.NormFloat64() * 0.01
		c = d.bodyC
	default:
		return errors.New("mlx90614: unsupported cell")
	}
	word := uint16(math.Round((c + 273.15) / 0.02))
	if len(buf) >= 2 {
		buf[0] = byte(word)
		buf[1] = byte(word >> 8)
	}
	return nil
}

func (d *simMLX90614) writeReg(byte, []byte) error { return nil }

// simBH1750 tracks a coarse day/night light curve unless a test pins it.
type simBH1750 struct {
	rng    *rand.Rand
	lux    float64
	pinned bool
}

func newSimBH1750(rng *rand.Rand) *simBH1750 {
	return &simBH1750{rng: rng, lux: 150}
}

func (d *simBH1750) readReg(_ byte, buf []byte) error {
	lux := d.lux
	if !d.pinned {
		switch h := time.Now().Hour(); {
		case h >= 22 || h < 6:
			lux = 2
		case h >= 9 && h < 18:
			lux = 320
		default:
			lux = 120
		}
		lux += lux * d.rng.NormFloat64() * 0.05
		if lux < 0 {
			lux = 0
		}
	}
	counts := uint16(math.Round(lux * 1.2))
	if len(buf) >= 2 {
		buf[0] = byte(counts >> 8)
		buf[1] = byte(counts)
	}
	return nil
}

func (d *simBH1750) writeReg(byte, []byte) error { return nil }

// simWM8960 stands in for the audio codec sharing the bus. The real part
// has no register readback, so reads fail the way they would on hardware.
type simWM8960 struct{}

func (simWM8960) readReg(byte, []byte) error  { return errors.New("wm8960: write-only device") }
func (simWM8960) writeReg(byte, []byte) error { return nil }
