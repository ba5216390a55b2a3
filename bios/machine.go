// machine.go - BIOS host environment: ROM loading, IVT setup and BIOS calls
//
// A Machine couples flat memory, a port bus and a CPU so host code can call
// real-mode BIOS services the way a video driver calls INT 10h:
// - option ROMs are validated and copied into the C000 area
// - every vector defaults to an IRET stub in the system BIOS segment
// - calls return to a HLT stub at 0000:0600, which ends the run
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package bios

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/intuitionamiga/x86emu/log"
	"github.com/intuitionamiga/x86emu/x86"
)

// Fixed addresses of the BIOS environment
const (
	HaltStubSeg = 0x0000
	HaltStubOff = 0x0600
	IretStubSeg = 0xF000
	IretStubOff = 0xFF53
	BDASeg      = 0x0040

	DefaultStackSeg = 0x1000
	stackTop        = 0x1000

	VideoROMSeg = 0xC000
	romInitOff  = 0x0003
)

var (
	ErrNoROMSignature = errors.New("missing 55AA ROM signature")
	ErrROMChecksum    = errors.New("bad ROM checksum")
	ErrUnexpectedHalt = errors.New("halted outside the return stub")
	ErrStopped        = errors.New("stopped before the call returned")
)

// Options configures a Machine.
type Options struct {
	MemorySize int    // zero selects DefaultMemorySize
	StackSeg   uint16 // zero selects DefaultStackSeg
	CPU        x86.Config
}

// Machine is a real-mode PC with just enough BIOS to run option ROM code.
type Machine struct {
	Mem   *Memory
	Ports *PortBus
	CPU   *x86.CPU
	DAC   *DAC
	CRTC  *CRTC

	opts Options
	log  *slog.Logger
}

// New builds a machine with an initialized IVT, the DAC and CRTC on their
// ports, the PCI BIOS on INT 1Ah and the fallback video services.
func New(opts Options) *Machine {
	if opts.StackSeg == 0 {
		opts.StackSeg = DefaultStackSeg
	}
	logger := opts.CPU.Logger
	if logger == nil {
		logger = log.Root()
	}
	m := &Machine{
		Mem:   NewMemory(opts.MemorySize),
		Ports: NewPortBus(logger),
		DAC:   defaultDAC(),
		CRTC:  &CRTC{},
		opts:  opts,
		log:   logger,
	}
	m.CPU = x86.New(m.Mem, m.Ports, opts.CPU)
	m.Ports.Handle(PortDACReadIndex, PortDACData, m.DAC.handler())
	for _, base := range []uint16{PortCRTCMono, PortCRTCColour} {
		m.Ports.Handle(base, base+1, m.CRTC.handler())
		m.Ports.Handle(base+4, base+5, m.CRTC.handler())
	}
	m.CPU.SetHook(0x1A, m.pciBIOS)
	for _, v := range []byte{0x10, 0x42, 0x6D} {
		m.CPU.SetHook(v, m.videoFallback)
	}
	m.SetupIVT()
	return m
}

// SetupIVT points every vector at the default IRET stub, places the HLT
// return stub and installs the video parameter table behind INT 1Dh.
func (m *Machine) SetupIVT() {
	for v := range uint32(256) {
		m.Mem.Write16(v*4, IretStubOff)
		m.Mem.Write16(v*4+2, IretStubSeg)
	}
	m.Mem.Write8(linear(IretStubSeg, IretStubOff), 0xCF)
	m.Mem.Write8(linear(HaltStubSeg, HaltStubOff), 0xF4)
	m.installVideoParms()
}

// SetVector points vector at seg:off.
func (m *Machine) SetVector(vector byte, seg, off uint16) {
	m.Mem.Write16(uint32(vector)*4, off)
	m.Mem.Write16(uint32(vector)*4+2, seg)
}

// Vector returns the IVT entry for vector.
func (m *Machine) Vector(vector byte) (seg, off uint16) {
	return m.Mem.Read16(uint32(vector)*4 + 2), m.Mem.Read16(uint32(vector) * 4)
}

// LoadROM validates an option ROM image and copies it to seg:0000. The
// image must start with 55 AA, declare its length in 512-byte blocks and
// sum to zero over that length.
func (m *Machine) LoadROM(seg uint16, image []byte) error {
	if len(image) < 3 || image[0] != 0x55 || image[1] != 0xAA {
		return ErrNoROMSignature
	}
	size := int(image[2]) * 512
	if size == 0 || size > len(image) {
		return fmt.Errorf("rom declares %d bytes, image has %d: %w", size, len(image), ErrROMChecksum)
	}
	if sum := Checksum(image[:size]); sum != 0 {
		return fmt.Errorf("sum %02X: %w", sum, ErrROMChecksum)
	}
	if err := m.Mem.Load(linear(seg, 0), image[:size]); err != nil {
		return fmt.Errorf("load rom: %w", err)
	}
	m.log.Info("loaded option rom", "seg", hexPort(seg), "size", size)
	return nil
}

// Checksum returns the byte sum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// SetupInt loads the calling convention for a BIOS call: the caller's
// general registers and ES, a fresh stack, DS on the BIOS data area and
// interrupts enabled. CS:IP is left on the HLT stub.
func (m *Machine) SetupInt(in x86.Registers) {
	c := m.CPU
	c.Reset()
	c.EAX, c.EBX, c.ECX, c.EDX = in.EAX, in.EBX, in.ECX, in.EDX
	c.ESI, c.EDI, c.EBP = in.ESI, in.EDI, in.EBP
	c.ES = in.ES
	c.ESP = stackTop
	c.SS = m.opts.StackSeg
	c.CS, c.IP = HaltStubSeg, HaltStubOff
	c.DS = BDASeg
	c.FS, c.GS = 0, 0
	c.SetFlag(x86.FlagIF, true)
}

// RunInt calls BIOS interrupt vector with the registers in and returns the
// registers at the point the handler returned to the HLT stub. A Lua or Go
// hook on the vector runs in place of the IVT entry.
func (m *Machine) RunInt(ctx context.Context, vector byte, in x86.Registers) (x86.Registers, error) {
	m.SetupInt(in)
	m.CPU.RaiseInterrupt(vector)
	m.log.Debug("bios call", "int", fmt.Sprintf("%02X", vector), "ax", hexPort(in.AX()))
	return m.run(ctx)
}

// InitROM runs the option ROM initialization entry at seg:0003 as a far
// call, with AX holding the PCI slot of the adapter the way a system BIOS
// passes it.
func (m *Machine) InitROM(ctx context.Context, seg uint16, slot uint16) (x86.Registers, error) {
	var in x86.Registers
	in.SetAX(slot)
	m.SetupInt(in)
	c := m.CPU
	m.push(HaltStubSeg)
	m.push(HaltStubOff)
	c.CS, c.IP = seg, romInitOff
	return m.run(ctx)
}

func (m *Machine) run(ctx context.Context) (x86.Registers, error) {
	c := m.CPU
	for {
		res := c.Run(ctx)
		switch res.Status {
		case x86.Running:
			if err := ctx.Err(); err != nil {
				return c.Registers, err
			}
			if m.opts.CPU.SingleStep {
				continue
			}
			return c.Registers, ErrStopped
		case x86.Faulted:
			m.logFailure("bios call faulted")
			return c.Registers, fmt.Errorf("bios call: %w", res.Err)
		}
		if res.Clean || (c.CS == HaltStubSeg && c.IP == HaltStubOff+1) {
			return c.Registers, nil
		}
		m.logFailure("bios call halted early")
		return c.Registers, fmt.Errorf("at %04X:%04X: %w", c.CS, c.IP, ErrUnexpectedHalt)
	}
}

func (m *Machine) push(v uint16) {
	c := m.CPU
	c.SetSP(c.SP() - 2)
	m.Mem.Write16(linear(c.SS, uint32(c.SP())), v)
}

// vectorIVT performs the emulated INT sequence for a hooked vector that
// declines a request.
func (m *Machine) vectorIVT(c *x86.CPU, vector byte) {
	m.push(uint16(c.PackedFlags()))
	c.SetFlag(x86.FlagIF|x86.FlagTF, false)
	m.push(c.CS)
	m.push(c.IP)
	c.CS, c.IP = m.Vector(vector)
}

func (m *Machine) logFailure(msg string) {
	m.log.Error(msg, "regs", m.CPU.Dump(), "code", m.DumpCode(), "stack", m.StackTrace())
}

// DumpCode returns the 32 bytes at CS:IP in hex.
func (m *Machine) DumpCode() string {
	c := m.CPU
	return fmt.Sprintf("% 02X", m.Mem.Slice(linear(c.CS, uint32(c.IP)), 32))
}

// StackTrace returns the bytes between SS:SP and the top of the call stack
// in hex, or "" when the stack is empty.
func (m *Machine) StackTrace() string {
	c := m.CPU
	sp := linear(c.SS, uint32(c.SP()))
	tail := linear(c.SS, stackTop)
	if sp >= tail {
		return ""
	}
	var sb strings.Builder
	for i, b := range m.Mem.Slice(sp, int(tail-sp)) {
		if i > 0 {
			if i%16 == 0 {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

func linear(seg uint16, off uint32) uint32 {
	return uint32(seg)<<4 + off
}
