package simbus

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vigil-care/vigil/internal/i2cbus"
	"github.com/vigil-care/vigil/internal/sensors"
)

func TestScanFindsFullSuite(t *testing.T) {
	bus := New(WithSeed(42))

	got, err := sensors.NewScanner(bus).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []uint16{AddrWM8960, AddrBH1750, AddrMAX30102, AddrMLX90614, AddrMPU6050, AddrBME280}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Scan mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchIdentifiesEveryModel(t *testing.T) {
	bus := New(WithSeed(42))
	scanner := sensors.NewScanner(bus)

	wantModels := map[uint16]string{
		AddrMPU6050:  sensors.ModelMPU6050,
		AddrBME280:   sensors.ModelBME280,
		AddrMAX30102: sensors.ModelMAX30102,
		AddrMLX90614: sensors.ModelMLX90614,
		AddrBH1750:   sensors.ModelBH1750,
	}
	for addr, want := range wantModels {
		adapter, ok := scanner.Match(addr)
		if !ok {
			t.Errorf("Match(0x%02x) found nothing, want %s", addr, want)
			continue
		}
		if adapter.Model() != want {
			t.Errorf("Match(0x%02x) = %s, want %s", addr, adapter.Model(), want)
		}
	}

	if _, ok := scanner.Match(AddrWM8960); ok {
		t.Error("Match claimed the audio codec")
	}
}

func TestWithModelsLimitsSuite(t *testing.T) {
	bus := New(WithSeed(1), WithModels(sensors.ModelBME280))

	if bus.Probe(AddrMPU6050) {
		t.Error("accelerometer present despite WithModels(bme280)")
	}
	if !bus.Probe(AddrBME280) {
		t.Error("bme280 missing despite WithModels(bme280)")
	}
	// the codec is soldered to the hat either way
	if !bus.Probe(AddrWM8960) {
		t.Error("audio codec missing")
	}
}

func TestEnvironmentWalksStayInRange(t *testing.T) {
	bus := New(WithSeed(7))
	adapter, ok := sensors.NewScanner(bus).Match(AddrBME280)
	if !ok {
		t.Fatal("no bme280")
	}

	for i := 0; i < 50; i++ {
		r, err := adapter.Read()
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		temp, _ := r.Value(sensors.MetricTemperature)
		if temp < 18 || temp > 28 {
			t.Fatalf("temperature walked out of range: %v", temp)
		}
		hum, _ := r.Value(sensors.MetricHumidity)
		if hum < 30 || hum > 60 {
			t.Fatalf("humidity walked out of range: %v", hum)
		}
		press, _ := r.Value(sensors.MetricPressure)
		if press < 1007 || press > 1020 {
			t.Fatalf("pressure walked out of range: %v", press)
		}
	}
}

func TestFallScenario(t *testing.T) {
	bus := New(WithSeed(3))
	adapter, ok := sensors.NewScanner(bus).Match(AddrMPU6050)
	if !ok {
		t.Fatal("no mpu6050")
	}

	r, err := adapter.Read()
	if err != nil {
		t.Fatalf("baseline Read: %v", err)
	}
	if mag, _ := r.Value(sensors.MetricAccelMag); math.Abs(mag-1) > 0.1 {
		t.Fatalf("baseline magnitude = %v, want ~1g", mag)
	}

	bus.TriggerFall()

	r, err = adapter.Read()
	if err != nil {
		t.Fatalf("impact Read: %v", err)
	}
	if mag, _ := r.Value(sensors.MetricAccelMag); mag < 2.5 {
		t.Errorf("impact magnitude = %v, want > 2.5g", mag)
	}

	// the scripted sequence ends with the wearer still on the floor
	for i := 0; i < 4; i++ {
		if r, err = adapter.Read(); err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if mag, _ := r.Value(sensors.MetricAccelMag); math.Abs(mag-1) > 0.1 {
		t.Errorf("post-fall magnitude = %v, want ~1g stillness", mag)
	}
	if motion, _ := r.Value(sensors.MetricMotionState); motion != 0 {
		t.Error("post-fall motion_state = 1, want stillness")
	}
}

func TestMovementSetsMotionState(t *testing.T) {
	bus := New(WithSeed(5))
	adapter, ok := sensors.NewScanner(bus).Match(AddrMPU6050)
	if !ok {
		t.Fatal("no mpu6050")
	}

	bus.SetMoving(true)
	sawMotion := false
	for i := 0; i < 10; i++ {
		r, err := adapter.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if motion, _ := r.Value(sensors.MetricMotionState); motion == 1 {
			sawMotion = true
			break
		}
	}
	if !sawMotion {
		t.Error("no motion_state=1 reading while moving")
	}
}

func TestVitalsConvergeToSetpoints(t *testing.T) {
	bus := New(WithSeed(11))
	bus.SetHeartRate(72)
	bus.SetSpO2(97)

	adapter, ok := sensors.NewScanner(bus).Match(AddrMAX30102)
	if !ok {
		t.Fatal("no max30102")
	}

	var lastHR, lastSpO2 float64
	var haveHR, haveSpO2 bool
	for i := 0; i < 15; i++ {
		r, err := adapter.Read()
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if v, ok := r.Value(sensors.MetricHeartRate); ok {
			lastHR, haveHR = v, true
		}
		if v, ok := r.Value(sensors.MetricSpO2); ok {
			lastSpO2, haveSpO2 = v, true
		}
	}

	if !haveHR {
		t.Fatal("no heart rate after 15 polls")
	}
	if math.Abs(lastHR-72) > 8 {
		t.Errorf("heart_rate_bpm = %v, want 72 ±8", lastHR)
	}
	if !haveSpO2 {
		t.Fatal("no SpO2 after 15 polls")
	}
	if math.Abs(lastSpO2-97) > 2 {
		t.Errorf("spo2_pct = %v, want 97 ±2", lastSpO2)
	}
}

func TestNoFingerNoVitals(t *testing.T) {
	bus := New(WithSeed(11))
	bus.SetFingerPresent(false)

	adapter, ok := sensors.NewScanner(bus).Match(AddrMAX30102)
	if !ok {
		t.Fatal("no max30102")
	}
	for i := 0; i < 8; i++ {
		r, err := adapter.Read()
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if len(r.Values) != 0 {
			t.Fatalf("Read %d reported %v with no finger", i, r.Values)
		}
	}
}

func TestBodyTempSetpoint(t *testing.T) {
	bus := New(WithSeed(2))
	adapter, ok := sensors.NewScanner(bus).Match(AddrMLX90614)
	if !ok {
		t.Fatal("no mlx90614")
	}

	r, err := adapter.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if body, _ := r.Value(sensors.MetricBodyTemp); body < 36 || body > 37.5 {
		t.Errorf("resting body_temp_c = %v, want normal range", body)
	}

	bus.SetBodyTemp(39.2) // fever
	r, err = adapter.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if body, _ := r.Value(sensors.MetricBodyTemp); math.Abs(body-39.2) > 0.2 {
		t.Errorf("feverish body_temp_c = %v, want ~39.2", body)
	}
}

func TestLuxPinned(t *testing.T) {
	bus := New(WithSeed(2))
	bus.SetLux(500)

	adapter, ok := sensors.NewScanner(bus).Match(AddrBH1750)
	if !ok {
		t.Fatal("no bh1750")
	}
	r, err := adapter.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if lux, _ := r.Value(sensors.MetricLightLux); math.Abs(lux-500) > 1 {
		t.Errorf("light_lux = %v, want 500", lux)
	}
}

func TestWedgedDeviceTimesOut(t *testing.T) {
	bus := New(WithSeed(2))
	adapter, ok := sensors.NewScanner(bus).Match(AddrBME280)
	if !ok {
		t.Fatal("no bme280")
	}

	bus.SetWedged(AddrBME280, true)
	if !bus.Probe(AddrBME280) {
		t.Error("wedged device should still ack probes")
	}
	if _, err := adapter.Read(); !errors.Is(err, i2cbus.ErrTimeout) {
		t.Errorf("Read error = %v, want ErrTimeout", err)
	}

	bus.SetWedged(AddrBME280, false)
	if _, err := adapter.Read(); err != nil {
		t.Errorf("Read after recovery: %v", err)
	}
}

func TestUnplugRemovesDevice(t *testing.T) {
	bus := New(WithSeed(2))

	bus.Unplug(AddrMPU6050)
	if bus.Probe(AddrMPU6050) {
		t.Error("unplugged device still acks probes")
	}

	got, err := sensors.NewScanner(bus).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, addr := range got {
		if addr == AddrMPU6050 {
			t.Error("unplugged device still appears in scan")
		}
	}
}

func TestSeededRunsAreReproducible(t *testing.T) {
	read := func() float64 {
		bus := New(WithSeed(99))
		adapter, ok := sensors.NewScanner(bus).Match(AddrMPU6050)
		if !ok {
			t.Fatal("no mpu6050")
		}
		r, err := adapter.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		mag, _ := r.Value(sensors.MetricAccelMag)
		return mag
	}

	if a, b := read(), read(); a != b {
		t.Errorf("same seed produced different readings: %v vs %v", a, b)
	}
}
