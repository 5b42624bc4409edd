package sensors

import (
	"fmt"
	"math"

	"github.com/vigil-care/vigil/internal/i2cbus"
)

// MPU6050 register map (datasheet rev 4.2)
const (
	mpuRegGyroConfig  = 0x1B
	mpuRegAccelConfig = 0x1C
	mpuRegAccelXOutH  = 0x3B
	mpuRegPwrMgmt1    = 0x6B
	mpuRegWhoAmI      = 0x75

	mpuWhoAmIValue = 0x68

	// ±8g accel full scale. The ±2g default saturates at 2g and a fall
	// impact peaks well past that. Gyro stays at the ±250°/s default.
	mpuAccelFSSel    = 0x10
	mpuAccelLSBPerG  = 4096.0
	mpuGyroLSBPerDPS = 131.0
)

// motionDeadbandG is how far the acceleration magnitude must deviate from
// 1g before the wearer counts as moving. Gravity always contributes 1g at
// rest regardless of orientation.
const motionDeadbandG = 0.15

// MPU6050 reads a 6-axis accelerometer/gyro. The fall-detection rules key
// off the accel magnitude it reports.
type MPU6050 struct {
	bus  i2cbus.Bus
	addr uint16
	ts   monotonicStamp
}

func identifyMPU6050(bus i2cbus.Bus, addr uint16) bool {
	var id [1]byte
	if err := bus.ReadReg(addr, mpuRegWhoAmI, id[:]); err != nil {
		return false
	}
	return id[0] == mpuWhoAmIValue
}

func newMPU6050(bus i2cbus.Bus, addr uint16) (Adapter, error) {
	// wake from sleep (device powers up asleep) and pin the full-scale
	// ranges the LSB constants assume
	if err := bus.WriteReg(addr, mpuRegPwrMgmt1, []byte{0x00}); err != nil {
		return nil, fmt.Errorf("mpu6050 wake: %w", err)
	}
	if err := bus.WriteReg(addr, mpuRegAccelConfig, []byte{mpuAccelFSSel}); err != nil {
		return nil, fmt.Errorf("mpu6050 accel config: %w", err)
	}
	if err := bus.WriteReg(addr, mpuRegGyroConfig, []byte{0x00}); err != nil {
		return nil, fmt.Errorf("mpu6050 gyro config: %w", err)
	}
	return &MPU6050{bus: bus, addr: addr}, nil
}

func (m *MPU6050) Model() string { return ModelMPU6050 }
func (m *MPU6050) Addr() uint16  { return m.addr }

// Read burst-reads accel, temp, and gyro in one transaction (14 bytes from
// ACCEL_XOUT_H) so all axes come from the same sample.
func (m *MPU6050) Read() (Reading, error) {
	var raw [14]byte
	if err := m.bus.ReadReg(m.addr, mpuRegAccelXOutH, raw[:]); err != nil {
		return Reading{}, fmt.Errorf("mpu6050 read: %w", err)
	}

	ax := float64(int16(uint16(raw[0])<<8|uint16(raw[1]))) / mpuAccelLSBPerG
	ay := float64(int16(uint16(raw[2])<<8|uint16(raw[3]))) / mpuAccelLSBPerG
	az := float64(int16(uint16(raw[4])<<8|uint16(raw[5]))) / mpuAccelLSBPerG
	// raw[6:8] is die temperature, not worth reporting next to the BME280
	gx := float64(int16(uint16(raw[8])<<8|uint16(raw[9]))) / mpuGyroLSBPerDPS
	gy := float64(int16(uint16(raw[10])<<8|uint16(raw[11]))) / mpuGyroLSBPerDPS
	gz := float64(int16(uint16(raw[12])<<8|uint16(raw[13]))) / mpuGyroLSBPerDPS

	mag := math.Sqrt(ax*ax + ay*ay + az*az)

	motion := 0.0
	if math.Abs(mag-1.0) > motionDeadbandG {
		motion = 1.0
	}

	return Reading{
		Model: ModelMPU6050,
		Addr:  m.addr,
		Time:  m.ts.stamp(),
		Values: map[string]float64{
			MetricAccelX:      ax,
			MetricAccelY:      ay,
			MetricAccelZ:      az,
			MetricAccelMag:    mag,
			MetricGyroX:       gx,
			MetricGyroY:       gy,
			MetricGyroZ:       gz,
			MetricMotionState: motion,
		},
	}, nil
}
