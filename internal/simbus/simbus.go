// Package simbus provides a simulated I2C bus carrying virtual wellness
// sensors. The daemon's demo mode runs entirely on it, and the hub tests use
// it to script hardware behaviour (falls, unplugged devices, wedged reads)
// that is impractical to stage on a bench.
package simbus

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/vigil-care/vigil/internal/i2cbus"
)

// Canonical simulated addresses, matching where the real hardware sits on a
// wellness hat.
const (
	AddrMPU6050  uint16 = 0x68
	AddrBME280   uint16 = 0x76
	AddrMAX30102 uint16 = 0x57
	AddrMLX90614 uint16 = 0x5A
	AddrBH1750   uint16 = 0x23
	AddrWM8960   uint16 = 0x1A
)

// simDevice is one virtual chip on the bus.
type simDevice interface {
	readReg(reg byte, buf []byte) error
	writeReg(reg byte, data []byte) error
}

// SimBus implements i2cbus.Bus over a set of virtual devices. All scenario
// methods are safe to call while a hub polls the bus from its worker.
type SimBus struct {
	mu      sync.Mutex
	rng     *rand.Rand
	devices map[uint16]simDevice
	failing map[uint16]bool
	closed  bool

	mpu *simMPU6050
	max *simMAX30102
	mlx *simMLX90614
	bme *simBME280
	bh  *simBH1750
}

// Option configures a SimBus.
type Option func(*simConfig)

type simConfig struct {
	seed   int64
	models map[string]bool // nil means all
}

// WithSeed fixes the noise generator so runs are reproducible.
func WithSeed(seed int64) Option {
	return func(c *simConfig) { c.seed = seed }
}

// WithModels restricts which virtual sensors are populated. The audio codec
// stub is always present; it is part of the hat, not a choice.
func WithModels(models ...string) Option {
	return func(c *simConfig) {
		c.models = make(map[string]bool, len(models))
		for _, m := range models {
			c.models[m] = true
		}
	}
}

// New builds a SimBus with the full virtual sensor suite.
func New(opts ...Option) *SimBus {
	cfg := simConfig{seed: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	want := func(model string) bool {
		return cfg.models == nil || cfg.models[model]
	}

	s := &SimBus{
		rng:     rand.New(rand.NewSource(cfg.seed)),
		devices: make(map[uint16]simDevice),
		failing: make(map[uint16]bool),
	}
	s.devices[AddrWM8960] = &simWM8960{}

	if want("mpu6050") {
		s.mpu = newSimMPU6050(s.rng)
		s.devices[AddrMPU6050] = s.mpu
	}
	if want("bme280") {
		s.bme = newSimBME280(s.rng)
		s.devices[AddrBME280] = s.bme
	}
	if want("max30102") {
		s.max = newSimMAX30102(s.rng)
		s.devices[AddrMAX30102] = s.max
	}
	if want("mlx90614") {
		s.mlx = newSimMLX90614(s.rng)
		s.devices[AddrMLX90614] = s.mlx
	}
	if want("bh1750") {
		s.bh = newSimBH1750(s.rng)
		s.devices[AddrBH1750] = s.bh
	}
	return s
}

func (s *SimBus) ReadReg(addr uint16, reg byte, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("simbus: closed")
	}
	if s.failing[addr] {
		return fmt.Errorf("simbus: device 0x%02x: %w", addr, i2cbus.ErrTimeout)
	}
	dev, ok := s.devices[addr]
	if !ok {
		return fmt.Errorf("simbus: no device at 0x%02x", addr)
	}
	return dev.readReg(reg, buf)
}

func (s *SimBus) WriteReg(addr uint16, reg byte, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("simbus: closed")
	}
	if s.failing[addr] {
		return fmt.Errorf("simbus: device 0x%02x: %w", addr, i2cbus.ErrTimeout)
	}
	dev, ok := s.devices[addr]
	if !ok {
		return fmt.Errorf("simbus: no device at 0x%02x", addr)
	}
	return dev.writeReg(reg, data)
}

func (s *SimBus) Probe(addr uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	_, ok := s.devices[addr]
	return ok
}

func (s *SimBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Unplug detaches the device at addr, as if its cable came loose. The next
// hub refresh will notice.
func (s *SimBus) Unplug(addr uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, addr)
}

// SetWedged makes the device at addr ack probes but time out all I/O,
// mimicking a half-dead sensor holding the bus.
func (s *SimBus) SetWedged(addr uint16, wedged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[addr] = wedged
}

// TriggerFall scripts a fall impact on the accelerometer: a spike past 3g
// followed by the stillness of someone on the floor.
func (s *SimBus) TriggerFall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mpu != nil {
		s.mpu.triggerFall()
	}
}

// SetMoving toggles wearer activity on the accelerometer.
func (s *SimBus) SetMoving(moving bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mpu != nil {
		s.mpu.moving = moving
	}
}

// SetHeartRate retunes the simulated pulse, keeping waveform phase so the
// change looks physiological rather than spliced.
func (s *SimBus) SetHeartRate(bpm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max != nil {
		s.max.bpm = bpm
	}
}

// SetSpO2 sets the oxygen saturation the pulse waveform encodes.
func (s *SimBus) SetSpO2(pct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max != nil {
		s.max.spo2 = pct
	}
}

// SetFingerPresent controls whether the oximeter sees a fingertip.
func (s *SimBus) SetFingerPresent(present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max != nil {
		s.max.finger = present
	}
}

// SetBodyTemp pins the IR thermometer's object reading.
func (s *SimBus) SetBodyTemp(tempC float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mlx != nil {
		s.mlx.bodyC = tempC
	}
}

// SetRoom pins the environmental sensor's current readings.
func (s *SimBus) SetRoom(tempC, humPct, pressHPa float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bme != nil {
		s.bme.tempC = tempC
		s.bme.humPct = humPct
		s.bme.pressPa = pressHPa * 100
	}
}

// SetLux pins the light level.
func (s *SimBus) SetLux(lux float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bh != nil {
		s.bh.lux = lux
		s.bh.pinned = true
	}
}
