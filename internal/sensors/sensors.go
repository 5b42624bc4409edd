// Package sensors holds the I2C sensor drivers, the detection table that
// maps bus addresses to driver constructors, and the bus scanner. Each
// driver translates one physical model's register protocol into normalized
// Readings.
package sensors

import (
	"time"
)

// Model tags for the supported sensor hardware.
const (
	ModelMPU6050  = "mpu6050"  // 6-axis accelerometer/gyro
	ModelMAX30102 = "max30102" // pulse oximeter
	ModelBME280   = "bme280"   // temperature/humidity/pressure
	ModelMLX90614 = "mlx90614" // IR thermometer
	ModelBH1750   = "bh1750"   // ambient light
)

// Canonical metric names emitted by the drivers. Consumers key off these.
const (
	MetricAccelX      = "accel_x_g"
	MetricAccelY      = "accel_y_g"
	MetricAccelZ      = "accel_z_g"
	MetricAccelMag    = "accel_magnitude_g"
	MetricGyroX       = "gyro_x_dps"
	MetricGyroY       = "gyro_y_dps"
	MetricGyroZ       = "gyro_z_dps"
	MetricMotionState = "motion_state"
	MetricHeartRate   = "heart_rate_bpm"
	MetricSpO2        = "spo2_pct"
	MetricTemperature = "temperature_c"
	MetricHumidity    = "humidity_pct"
	MetricPressure    = "pressure_hpa"
	MetricBodyTemp    = "body_temp_c"
	MetricAmbientTemp = "ambient_temp_c"
	MetricLightLux    = "light_lux"
)

// Reading is one timestamped set of metric values from a single adapter.
// Immutable once produced; consumers that need to mutate take a Clone.
type Reading struct {
	Model  string             `json:"model"`
	Addr   uint16             `json:"addr"`
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
}

// Clone returns a deep copy of the reading.
func (r Reading) Clone() Reading {
	values := make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Reading{Model: r.Model, Addr: r.Addr, Time: r.Time, Values: values}
}

// Value returns the named metric and whether it is present.
func (r Reading) Value(metric string) (float64, bool) {
	v, ok := r.Values[metric]
	return v, ok
}

// Adapter is the uniform capability every sensor driver implements. An
// adapter owns its address and any model-specific calibration state; it is
// created when the scanner matches the address and dropped when the device
// disappears.
type Adapter interface {
	// Model returns the model tag, e.g. "mpu6050".
	Model() string
	// Addr returns the claimed bus address.
	Addr() uint16
	// Read produces one normalized Reading.
	Read() (Reading, error)
}

// monotonicStamp keeps per-adapter reading timestamps non-decreasing even
// if the wall clock steps backwards (NTP corrections on a Pi are routine).
type monotonicStamp struct {
	last time.Time
}

func (m *monotonicStamp) stamp() time.Time {
	now := time.Now()
	if now.Before(m.last) {
		return m.last
	}
	m.last = now
	return now
}
