package main

import (
	"context"
	"testing"

	"github.com/vigil-care/vigil/internal/sensors"
	"github.com/vigil-care/vigil/internal/simbus"
)

func TestScanOnceAgainstSimulatedBus(t *testing.T) {
	bus := simbus.New(simbus.WithSeed(7))
	defer bus.Close()
	scanner := sensors.NewScanner(bus)

	rows, err := scanOnce(context.Background(), scanner)
	if err != nil {
		t.Fatalf("scanOnce failed: %v", err)
	}

	// Full virtual suite plus the audio codec stub, in ascending address
	// order.
	wantAddrs := []string{"0x1a", "0x23", "0x57", "0x5a", "0x68", "0x76"}
	if len(rows) != len(wantAddrs) {
		t.Fatalf("expected %d rows, got %d: %+v", len(wantAddrs), len(rows), rows)
	}
	for i, want := range wantAddrs {
		if rows[i].Addr != want {
			t.Errorf("row %d: expected addr %s, got %s", i, want, rows[i].Addr)
		}
	}

	byAddr := make(map[string]scanRow, len(rows))
	for _, row := range rows {
		byAddr[row.Addr] = row
	}

	if got := byAddr["0x1a"].Status; got != "skipped (audio codec)" {
		t.Errorf("expected codec to be skipped, got status %q", got)
	}

	models := map[string]string{
		"0x23": "bh1750",
		"0x57": "max30102",
		"0x5a": "mlx90614",
		"0x68": "mpu6050",
		"0x76": "bme280",
	}
	for addr, model := range models {
		row := byAddr[addr]
		if row.Model != model {
			t.Errorf("%s: expected model %s, got %q", addr, model, row.Model)
		}
		if row.Status != "ok" {
			t.Errorf("%s: expected status ok, got %q (%s)", addr, row.Status, row.Error)
		}
		if len(row.Values) == 0 {
			t.Errorf("%s: expected values from a successful read", addr)
		}
	}
}

func TestScanOnceRestrictedModels(t *testing.T) {
	bus := simbus.New(simbus.WithModels("bme280"))
	defer bus.Close()
	scanner := sensors.NewScanner(bus)

	rows, err := scanOnce(context.Background(), scanner)
	if err != nil {
		t.Fatalf("scanOnce failed: %v", err)
	}

	// Codec stub plus the one configured sensor.
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[1].Model != "bme280" || rows[1].Status != "ok" {
		t.Errorf("expected a bme280 read, got %+v", rows[1])
	}
}

func TestFormatValues(t *testing.T) {
	got := formatValues(map[string]float64{"b": 2, "a": 1.5})
	want := "a=1.50 b=2.00"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got := formatValues(nil); got != "" {
		t.Errorf("expected empty string for no values, got %q", got)
	}
}
