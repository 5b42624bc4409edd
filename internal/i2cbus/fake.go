package i2cbus

import (
	"errors"
	"fmt"
	"sync"
)

// FakeBus implements Bus with configurable behaviour for testing. Devices
// are plain register maps keyed by address; errors and latency knobs let
// tests exercise failure paths without hardware.
type FakeBus struct {
	mu sync.Mutex

	// devices maps address -> register -> value
	devices map[uint16]map[byte]byte

	// blocks maps address -> register -> full response, for devices that
	// answer a command with a multi-byte payload (SMBus word reads,
	// measurement opcodes) instead of exposing a flat register file. A
	// block takes precedence over the register map for its register.
	blocks map[uint16]map[byte][]byte

	// ReadError is returned by the next ReadReg call if set, then cleared
	ReadError error

	// WriteError is returned by the next WriteReg call if set, then cleared
	WriteError error

	// FailAddrs lists addresses whose reads always fail, simulating an
	// unplugged or wedged device that still acks probes
	FailAddrs map[uint16]bool

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of ReadReg calls
	ReadCalls int

	// WriteCalls records the number of WriteReg calls
	WriteCalls int

	// Writes records every register write for assertion
	Writes []FakeWrite
}

// FakeWrite records details of one WriteReg call.
type FakeWrite struct {
	Addr uint16
	Reg  byte
	Data []byte
}

// NewFakeBus creates an empty FakeBus. Add devices with AddDevice.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		devices:   make(map[uint16]map[byte]byte),
		blocks:    make(map[uint16]map[byte][]byte),
		FailAddrs: make(map[uint16]bool),
	}
}

// AddDevice attaches a device at addr with the given register contents.
// Registers not present read as zero.
func (f *FakeBus) AddDevice(addr uint16, regs map[byte]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(map[byte]byte, len(regs))
	for k, v := range regs {
		cp[k] = v
	}
	f.devices[addr] = cp
}

// RemoveDevice detaches the device at addr, simulating an unplug.
func (f *FakeBus) RemoveDevice(addr uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.devices, addr)
}

// SetRegister updates one register on an attached device.
func (f *FakeBus) SetRegister(addr uint16, reg, value byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if regs, ok := f.devices[addr]; ok {
		regs[reg] = value
	}
}

// SetBlock installs a multi-byte response for reads of reg on an attached
// device. The device must already exist via AddDevice.
func (f *FakeBus) SetBlock(addr uint16, reg byte, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.devices[addr]; !ok {
		return
	}
	if f.blocks[addr] == nil {
		f.blocks[addr] = make(map[byte][]byte)
	}
	f.blocks[addr][reg] = append([]byte(nil), data...)
}

func (f *FakeBus) ReadReg(addr uint16, reg byte, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ReadCalls++

	if f.Closed {
		return errors.New("bus closed")
	}
	if f.ReadError != nil {
		err := f.ReadError
		f.ReadError = nil
		return err
	}
	if f.FailAddrs[addr] {
		return fmt.Errorf("device 0x%02x: %w", addr, ErrTimeout)
	}

	regs, ok := f.devices[addr]
	if !ok {
		return fmt.Errorf("no device at 0x%02x", addr)
	}
	if blk, ok := f.blocks[addr][reg]; ok {
		for i := range buf {
			if i < len(blk) {
				buf[i] = blk[i]
			} else {
				buf[i] = 0
			}
		}
		return nil
	}
	for i := range buf {
		buf[i] = regs[reg+byte(i)]
	}
	return nil
}

func (f *FakeBus) WriteReg(addr uint16, reg byte, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.WriteCalls++

	if f.Closed {
		return errors.New("bus closed")
	}
	if f.WriteError != nil {
		err := f.WriteError
		f.WriteError = nil
		return err
	}

	regs, ok := f.devices[addr]
	if !ok {
		return fmt.Errorf("no device at 0x%02x", addr)
	}
	for i, b := range data {
		regs[reg+byte(i)] = b
	}
	f.Writes = append(f.Writes, FakeWrite{Addr: addr, Reg: reg, Data: append([]byte(nil), data...)})
	return nil
}

func (f *FakeBus) Probe(addr uint16) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return false
	}
	_, ok := f.devices[addr]
	return ok
}

func (f *FakeBus) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset clears recorded calls and injected errors but keeps devices.
func (f *FakeBus) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReadCalls = 0
	f.WriteCalls = 0
	f.Writes = nil
	f.ReadError = nil
	f.WriteError = nil
	f.Closed = false
}
