package sensors

import (
	"errors"
	"math"
	"testing"

	"github.com/vigil-care/vigil/internal/i2cbus"
)

// putS16 stores a big-endian int16 at reg/reg+1, the MPU6050 output layout.
func putS16(regs map[byte]byte, reg byte, v int16) {
	regs[reg] = byte(uint16(v) >> 8)
	regs[reg+1] = byte(uint16(v))
}

func mpuFake(t *testing.T, ax, ay, az, gx, gy, gz int16) (*i2cbus.FakeBus, Adapter) {
	t.Helper()
	regs := map[byte]byte{mpuRegWhoAmI: mpuWhoAmIValue}
	putS16(regs, mpuRegAccelXOutH, ax)
	putS16(regs, mpuRegAccelXOutH+2, ay)
	putS16(regs, mpuRegAccelXOutH+4, az)
	putS16(regs, mpuRegAccelXOutH+8, gx)
	putS16(regs, mpuRegAccelXOutH+10, gy)
	putS16(regs, mpuRegAccelXOutH+12, gz)

	bus := i2cbus.NewFakeBus()
	bus.AddDevice(0x68, regs)

	adapter, err := newMPU6050(bus, 0x68)
	if err != nil {
		t.Fatalf("newMPU6050: %v", err)
	}
	return bus, adapter
}

func TestMPU6050ReadAtRest(t *testing.T) {
	// flat on the table: gravity entirely on Z
	_, adapter := mpuFake(t, 0, 0, 4096, 131, 0, 0)

	r, err := adapter.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	checks := map[string]float64{
		MetricAccelX:      0,
		MetricAccelY:      0,
		MetricAccelZ:      1.0,
		MetricAccelMag:    1.0,
		MetricGyroX:       1.0,
		MetricMotionState: 0,
	}
	for metric, want := range checks {
		got, ok := r.Value(metric)
		if !ok {
			t.Errorf("metric %s missing", metric)
			continue
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("%s = %v, want %v", metric, got, want)
		}
	}
}

func TestMPU6050ReadTilted(t *testing.T) {
	// gravity on -X: still at rest, magnitude must stay 1g
	_, adapter := mpuFake(t, -4096, 0, 0, 0, 0, 0)

	r, err := adapter.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got, _ := r.Value(MetricAccelX); got != -1.0 {
		t.Errorf("accel_x_g = %v, want -1.0", got)
	}
	if got, _ := r.Value(MetricMotionState); got != 0 {
		t.Errorf("motion_state = %v, want 0 at rest regardless of orientation", got)
	}
}

func TestMPU6050ReadImpact(t *testing.T) {
	// 3g on Z, the kind of spike a fall produces
	_, adapter := mpuFake(t, 0, 0, 3*4096, 0, 0, 0)

	r, err := adapter.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got, _ := r.Value(MetricAccelMag); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("accel_magnitude_g = %v, want 3.0", got)
	}
	if got, _ := r.Value(MetricMotionState); got != 1 {
		t.Errorf("motion_state = %v, want 1 during an impact", got)
	}
}

func TestMPU6050InitSequence(t *testing.T) {
	bus, _ := mpuFake(t, 0, 0, 4096, 0, 0, 0)

	if len(bus.Writes) != 3 {
		t.Fatalf("init wrote %d registers, want 3: %+v", len(bus.Writes), bus.Writes)
	}
	wake := bus.Writes[0]
	if wake.Reg != mpuRegPwrMgmt1 || wake.Data[0] != 0x00 {
		t.Errorf("first init write = %+v, want wake via PWR_MGMT_1", wake)
	}
	accel := bus.Writes[1]
	if accel.Reg != mpuRegAccelConfig || accel.Data[0] != mpuAccelFSSel {
		t.Errorf("accel config write = %+v, want full scale 0x%02x", accel, mpuAccelFSSel)
	}
}

func TestMPU6050ReadError(t *testing.T) {
	bus, adapter := mpuFake(t, 0, 0, 4096, 0, 0, 0)
	bus.FailAddrs[0x68] = true

	if _, err := adapter.Read(); !errors.Is(err, i2cbus.ErrTimeout) {
		t.Errorf("Read error = %v, want ErrTimeout", err)
	}
}

func TestMPU6050Identify(t *testing.T) {
	bus := i2cbus.NewFakeBus()
	bus.AddDevice(0x68, map[byte]byte{mpuRegWhoAmI: mpuWhoAmIValue})
	bus.AddDevice(0x69, map[byte]byte{mpuRegWhoAmI: 0x71})

	if !identifyMPU6050(bus, 0x68) {
		t.Error("identify rejected a live MPU6050")
	}
	if identifyMPU6050(bus, 0x69) {
		t.Error("identify accepted a device with the wrong WHO_AM_I")
	}
	if identifyMPU6050(bus, 0x4B) {
		t.Error("identify accepted an empty address")
	}
}
