package sensors

import (
	"math"
	"testing"

	"github.com/vigil-care/vigil/internal/i2cbus"
)

func bh1750Fake(t *testing.T, raw uint16) (*i2cbus.FakeBus, Adapter) {
	t.Helper()
	bus := i2cbus.NewFakeBus()
	bus.AddDevice(0x23, nil)
	bus.SetBlock(0x23, bhCmdContHiRes, []byte{byte(raw >> 8), byte(raw)})

	adapter, err := newBH1750(bus, 0x23)
	if err != nil {
		t.Fatalf("newBH1750: %v", err)
	}
	return bus, adapter
}

func TestBH1750Read(t *testing.T) {
	// 600 counts at 1.2 counts/lux is a lit living room
	_, adapter := bh1750Fake(t, 600)

	r, err := adapter.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got, _ := r.Value(MetricLightLux); math.Abs(got-500) > 1e-6 {
		t.Errorf("light_lux = %v, want 500", got)
	}
}

func TestBH1750ReadDarkness(t *testing.T) {
	_, adapter := bh1750Fake(t, 0)

	r, err := adapter.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got, _ := r.Value(MetricLightLux); got != 0 {
		t.Errorf("light_lux = %v, want 0 in darkness", got)
	}
}

func TestBH1750InitSequence(t *testing.T) {
	bus, _ := bh1750Fake(t, 600)

	if len(bus.Writes) != 2 {
		t.Fatalf("init wrote %d commands, want 2: %+v", len(bus.Writes), bus.Writes)
	}
	if bus.Writes[0].Reg != bhCmdPowerOn {
		t.Errorf("first command = 0x%02x, want power on", bus.Writes[0].Reg)
	}
	if bus.Writes[1].Reg != bhCmdContHiRes {
		t.Errorf("second command = 0x%02x, want continuous high-res mode", bus.Writes[1].Reg)
	}
}

func TestBH1750Identify(t *testing.T) {
	bus := i2cbus.NewFakeBus()
	bus.AddDevice(0x23, nil)

	if !identifyBH1750(bus, 0x23) {
		t.Error("identify rejected a responsive device")
	}
	if identifyBH1750(bus, 0x5C) {
		t.Error("identify accepted an empty address")
	}
}
