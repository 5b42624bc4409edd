package sensors

import (
	"context"

	"github.com/vigil-care/vigil/internal/i2cbus"
	"github.com/vigil-care/vigil/internal/monitoring"
)

// AddrWM8960 is the audio codec that shares the bus on the voice hat. It
// answers probes but is not a sensor; the scanner never offers it to the
// detection table so a stray register read cannot disturb audio.
const AddrWM8960 uint16 = 0x1A

// Scanner probes the I2C address space and matches discovered addresses to
// adapters. Scanning is a pure discovery query with no side effects beyond
// bus I/O, safe to re-run at any time.
type Scanner struct {
	bus     i2cbus.Bus
	probes  []Probe
	skip    map[uint16]bool
	enabled map[string]bool // nil means all models enabled
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithProbes replaces the default detection table.
func WithProbes(probes []Probe) ScannerOption {
	return func(s *Scanner) { s.probes = probes }
}

// WithEnabledModels restricts detection to the named models. An empty list
// enables everything.
func WithEnabledModels(models []string) ScannerOption {
	return func(s *Scanner) {
		if len(models) == 0 {
			s.enabled = nil
			return
		}
		s.enabled = make(map[string]bool, len(models))
		for _, m := range models {
			s.enabled[m] = true
		}
	}
}

// WithSkipAddrs adds bus addresses the scanner reports but never matches.
func WithSkipAddrs(addrs ...uint16) ScannerOption {
	return func(s *Scanner) {
		for _, a := range addrs {
			s.skip[a] = true
		}
	}
}

// NewScanner creates a Scanner over the given bus using the default
// detection table.
func NewScanner(bus i2cbus.Bus, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		bus:    bus,
		probes: DefaultProbes(),
		skip:   map[uint16]bool{AddrWM8960: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan enumerates the bus and returns every address that acks, in ascending
// order. An empty bus yields an empty slice, not an error. The context is
// checked between addresses so shutdown never waits for a full sweep.
func (s *Scanner) Scan(ctx context.Context) ([]uint16, error) {
	var found []uint16
	for addr := i2cbus.ScanMin; addr <= i2cbus.ScanMax; addr++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		if s.bus.Probe(addr) {
			found = append(found, addr)
		}
	}
	return found, nil
}

// Match tries each probe in table order against addr and returns the first
// adapter whose identify check passes. No match is absence, not an error.
// If a later probe would also have claimed the address the conflict is
// logged and the earlier match wins.
func (s *Scanner) Match(addr uint16) (Adapter, bool) {
	if s.skip[addr] {
		return nil, false
	}

	var matched Adapter
	var matchedModel string
	for _, p := range s.probes {
		if !p.claims(addr) {
			continue
		}
		if s.enabled != nil && !s.enabled[p.Model] {
			continue
		}
		if !p.Identify(s.bus, addr) {
			continue
		}
		if matched != nil {
			monitoring.Opsf("address 0x%02x also identifies as %s; keeping %s by priority", addr, p.Model, matchedModel)
			continue
		}
		adapter, err := p.New(s.bus, addr)
		if err != nil {
			monitoring.Logf("init %s at 0x%02x failed: %v", p.Model, addr, err)
			continue
		}
		matched = adapter
		matchedModel = p.Model
	}
	if matched == nil {
		return nil, false
	}
	return matched, true
}
