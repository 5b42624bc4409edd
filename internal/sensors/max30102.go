package sensors

import (
	"fmt"
	"math"
	"time"

	"github.com/vigil-care/vigil/internal/i2cbus"
)

// MAX30102 register map (datasheet rev 1)
const (
	maxRegFifoWrPtr  = 0x04
	maxRegOvfCounter = 0x05
	maxRegFifoRdPtr  = 0x06
	maxRegFifoData   = 0x07
	maxRegFifoConfig = 0x08
	maxRegModeConfig = 0x09
	maxRegSpO2Config = 0x0A
	maxRegLed1PA     = 0x0C // red
	maxRegLed2PA     = 0x0D // IR
	maxRegPartID     = 0xFF

	maxPartIDValue = 0x15

	// sample averaging 8x, FIFO rollover on
	maxFifoConfigValue = 0x70
	// SpO2 mode (red + IR)
	maxModeSpO2 = 0x03
	// ADC range 4096nA, 50 samples/s, 411us pulse width
	maxSpO2ConfigValue = 0x43
	// moderate LED drive, ~6.4mA
	maxLedCurrent = 0x24

	maxFifoDepth = 32

	// 50Hz with 8x averaging leaves 6.25 samples/s out of the FIFO. The
	// low output rate is deliberate: it stretches the 32-slot FIFO across
	// a full poll interval so the waveform stays continuous between polls.
	maxSampleRateHz = 6.25
)

// Estimation windows, in samples at maxSampleRateHz.
const (
	maxRingCap    = 128 // ~20s of waveform
	maxMinSamples = 32  // ~5s before the first estimate
	// IR DC level below this means no finger on the sensor
	maxPresenceFloor = 30000.0
)

type ppgSample struct {
	red float64
	ir  float64
}

// MAX30102 reads a pulse oximeter. Heart rate and SpO2 are derived from the
// photoplethysmogram accumulated across poll cycles; until enough waveform
// exists, or when no finger is present, the Reading carries no vitals and
// downstream rules simply do not evaluate.
type MAX30102 struct {
	bus  i2cbus.Bus
	addr uint16
	ring []ppgSample
	ts   monotonicStamp
}

func identifyMAX30102(bus i2cbus.Bus, addr uint16) bool {
	var id [1]byte
	if err := bus.ReadReg(addr, maxRegPartID, id[:]); err != nil {
		return false
	}
	return id[0] == maxPartIDValue
}

func newMAX30102(bus i2cbus.Bus, addr uint16) (Adapter, error) {
	if err := bus.WriteReg(addr, maxRegModeConfig, []byte{0x40}); err != nil {
		return nil, fmt.Errorf("max30102 reset: %w", err)
	}
	time.Sleep(2 * time.Millisecond) // reset self-clears in under a millisecond

	init := []struct {
		reg byte
		val byte
	}{
		{maxRegFifoConfig, maxFifoConfigValue},
		{maxRegSpO2Config, maxSpO2ConfigValue},
		{maxRegLed1PA, maxLedCurrent},
		{maxRegLed2PA, maxLedCurrent},
		{maxRegFifoWrPtr, 0x00},
		{maxRegOvfCounter, 0x00},
		{maxRegFifoRdPtr, 0x00},
		{maxRegModeConfig, maxModeSpO2},
	}
	for _, w := range init {
		if err := bus.WriteReg(addr, w.reg, []byte{w.val}); err != nil {
			return nil, fmt.Errorf("max30102 init reg 0x%02x: %w", w.reg, err)
		}
	}

	return &MAX30102{bus: bus, addr: addr, ring: make([]ppgSample, 0, maxRingCap)}, nil
}

func (m *MAX30102) Model() string { return ModelMAX30102 }
func (m *MAX30102) Addr() uint16  { return m.addr }

// Read drains the FIFO into the waveform ring, then estimates vitals when
// enough signal has accumulated.
func (m *MAX30102) Read() (Reading, error) {
	if err := m.drainFifo(); err != nil {
		return Reading{}, fmt.Errorf("max30102 read: %w", err)
	}

	values := map[string]float64{}
	red, ir := m.channels()

	if len(ir) >= maxMinSamples && mean(ir) >= maxPresenceFloor {
		if bpm, ok := estimateHeartRate(ir, maxSampleRateHz); ok {
			values[MetricHeartRate] = bpm
		}
		if spo2, ok := estimateSpO2(red, ir); ok {
			values[MetricSpO2] = spo2
		}
	}

	return Reading{
		Model:  ModelMAX30102,
		Addr:   m.addr,
		Time:   m.ts.stamp(),
		Values: values,
	}, nil
}

func (m *MAX30102) drainFifo() error {
	var ptr [1]byte
	if err := m.bus.ReadReg(m.addr, maxRegFifoWrPtr, ptr[:]); err != nil {
		return err
	}
	wr := int(ptr[0] & 0x1F)
	if err := m.bus.ReadReg(m.addr, maxRegFifoRdPtr, ptr[:]); err != nil {
		return err
	}
	rd := int(ptr[0] & 0x1F)
	if err := m.bus.ReadReg(m.addr, maxRegOvfCounter, ptr[:]); err != nil {
		return err
	}

	avail := (wr - rd + maxFifoDepth) % maxFifoDepth
	if ptr[0] > 0 {
		// overflow: every slot holds data and waveform continuity is lost
		avail = maxFifoDepth
		m.ring = m.ring[:0]
	}

	for i := 0; i < avail; i++ {
		var raw [6]byte
		if err := m.bus.ReadReg(m.addr, maxRegFifoData, raw[:]); err != nil {
			return err
		}
		// 18-bit samples, left-justified in three bytes each
		red := (uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])) & 0x3FFFF
		ir := (uint32(raw[3])<<16 | uint32(raw[4])<<8 | uint32(raw[5])) & 0x3FFFF
		m.ring = append(m.ring, ppgSample{red: float64(red), ir: float64(ir)})
	}
	if len(m.ring) > maxRingCap {
		m.ring = m.ring[len(m.ring)-maxRingCap:]
	}
	return nil
}

func (m *MAX30102) channels() (red, ir []float64) {
	red = make([]float64, len(m.ring))
	ir = make([]float64, len(m.ring))
	for i, s := range m.ring {
		red[i] = s.red
		ir[i] = s.ir
	}
	return red, ir
}

// estimateHeartRate finds the pulse frequency by counting rising crossings
// of the detrended IR waveform. Returns false when fewer than three beats
// are visible or the result lands outside the plausible 40..180 range.
func estimateHeartRate(ir []float64, rateHz float64) (float64, bool) {
	detrended := detrend(ir, 8)

	// require a minimum swing so flatline noise does not count beats
	swing := 0.0
	for _, v := range detrended {
		if a := math.Abs(v); a > swing {
			swing = a
		}
	}
	if swing < 10 {
		return 0, false
	}

	var crossings []int
	minGap := 3 // at 6.25Hz this caps detection at ~125bpm beat spacing
	last := -minGap
	for i := 1; i < len(detrended); i++ {
		if detrended[i-1] < 0 && detrended[i] >= 0 && i-last >= minGap {
			crossings = append(crossings, i)
			last = i
		}
	}
	if len(crossings) < 3 {
		return 0, false
	}

	interval := float64(crossings[len(crossings)-1]-crossings[0]) / float64(len(crossings)-1)
	bpm := 60.0 * rateHz / interval
	if bpm < 40 || bpm > 180 {
		return 0, false
	}
	return bpm, true
}

// estimateSpO2 applies the ratio-of-ratios approximation. The curve is the
// standard uncalibrated one, good to a couple of percent on healthy skin.
func estimateSpO2(red, ir []float64) (float64, bool) {
	dcRed, dcIR := mean(red), mean(ir)
	if dcRed <= 0 || dcIR <= 0 {
		return 0, false
	}
	acRed, acIR := rms(detrend(red, 8)), rms(detrend(ir, 8))
	if acRed <= 0 || acIR <= 0 {
		return 0, false
	}

	r := (acRed / dcRed) / (acIR / dcIR)
	spo2 := 110.0 - 25.0*r
	if spo2 > 100 {
		spo2 = 100
	}
	if spo2 < 70 {
		return 0, false
	}
	return spo2, true
}

// detrend subtracts a centered moving mean of the given half-window.
func detrend(xs []float64, halfWindow int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		lo := i - halfWindow
		if lo < 0 {
			lo = 0
		}
		hi := i + halfWindow
		if hi >= len(xs) {
			hi = len(xs) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += xs[j]
		}
		out[i] = xs[i] - sum/float64(hi-lo+1)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

func rms(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(xs)))
}
