package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/sensors"
)

func encodeFrame(t *testing.T, kind string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	data, err := json.Marshal(feedFrame{Type: kind, Payload: raw})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return data
}

func TestDecodeFrameReading(t *testing.T) {
	r := sensors.Reading{
		Model:  "bme280",
		Addr:   0x76,
		Time:   time.Now().UTC(),
		Values: map[string]float64{sensors.MetricTemperature: 21.5},
	}

	msg, ok := decodeFrame(encodeFrame(t, "reading", r))
	if !ok {
		t.Fatal("expected a reading frame to decode")
	}
	got, ok := msg.(readingMsg)
	if !ok {
		t.Fatalf("expected readingMsg, got %T", msg)
	}
	if got.Model != "bme280" || got.Values[sensors.MetricTemperature] != 21.5 {
		t.Errorf("decoded reading does not match: %+v", got)
	}
}

func TestDecodeFrameAlert(t *testing.T) {
	ev := alerts.Event{
		ID:       "ev-1",
		Rule:     "fall_detected",
		Severity: alerts.SeverityCritical,
		Message:  "Fall detected",
		Time:     time.Now().UTC(),
	}

	msg, ok := decodeFrame(encodeFrame(t, "alert", ev))
	if !ok {
		t.Fatal("expected an alert frame to decode")
	}
	got, ok := msg.(alertMsg)
	if !ok {
		t.Fatalf("expected alertMsg, got %T", msg)
	}
	if got.Rule != "fall_detected" || got.Severity != alerts.SeverityCritical {
		t.Errorf("decoded alert does not match: %+v", got)
	}
}

func TestDecodeFrameRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("nope")},
		{"unknown type", []byte(`{"type":"bogus","payload":{}}`)},
		{"reading with bad payload", []byte(`{"type":"reading","payload":"nope"}`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := decodeFrame(tc.data); ok {
				t.Error("expected frame to be dropped")
			}
		})
	}
}

func TestFeedURL(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		want    string
		wantErr bool
	}{
		{"http", "http://127.0.0.1:8080", "ws://127.0.0.1:8080/ws", false},
		{"https", "https://pi.local", "wss://pi.local/ws", false},
		{"trailing slash", "http://pi.local/", "ws://pi.local/ws", false},
		{"already ws", "ws://pi.local", "ws://pi.local/ws", false},
		{"unsupported scheme", "ftp://pi.local", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := feedURL(tc.addr)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("feedURL(%q) failed: %v", tc.addr, err)
			}
			if got != tc.want {
				t.Errorf("feedURL(%q) = %q, want %q", tc.addr, got, tc.want)
			}
		})
	}
}
