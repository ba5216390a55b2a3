// cpu.go - Real-mode x86 CPU state: registers, flags and host interfaces
//
// This implements the register and flag model of a real-mode x86 with:
// - 8/16/32-bit aliased general purpose register views
// - Six segment registers (ES/CS/SS/DS/FS/GS)
// - Host-supplied memory and port I/O callbacks
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import (
	"log/slog"
	"sync/atomic"

	"github.com/intuitionamiga/x86emu/log"
)

// Memory is the host's view of the emulated physical address space.
// Multi-byte accesses are little-endian.
type Memory interface {
	Read8(addr uint32) byte
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Write8(addr uint32, v byte)
	Write16(addr uint32, v uint16)
	Write32(addr uint32, v uint32)
}

// Ports is the host's view of the emulated I/O port space.
type Ports interface {
	In8(port uint16) byte
	In16(port uint16) uint16
	In32(port uint16) uint32
	Out8(port uint16, v byte)
	Out16(port uint16, v uint16)
	Out32(port uint16, v uint32)
}

// InterruptHook replaces IVT vectoring for one interrupt vector.
type InterruptHook func(c *CPU, vector byte)

// Config selects optional behavior at construction time.
type Config struct {
	Trace      bool // emit a TraceRecord before every instruction
	FPUEnabled bool // execute x87 arithmetic; decode only when false
	SingleStep bool // Run returns after every instruction

	TraceFunc func(TraceRecord)
	Logger    *slog.Logger
}

// Flag bits
const (
	FlagCF = 1 << 0  // Carry
	FlagPF = 1 << 2  // Parity
	FlagAF = 1 << 4  // Auxiliary carry
	FlagZF = 1 << 6  // Zero
	FlagSF = 1 << 7  // Sign
	FlagTF = 1 << 8  // Trap
	FlagIF = 1 << 9  // Interrupt enable
	FlagDF = 1 << 10 // Direction
	FlagOF = 1 << 11 // Overflow

	// flagsReserved is always read back as one.
	flagsReserved = 1 << 1
	flagsMask     = FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagTF | FlagIF | FlagDF | FlagOF
)

// Segment register indices in ModRM encoding order
const (
	segES = 0
	segCS = 1
	segSS = 2
	segDS = 3
	segFS = 4
	segGS = 5
)

// REP prefix state
const (
	repNone = iota
	repE    // F3: REP / REPE
	repNE   // F2: REPNE
)

// Registers is the architectural register file. It is a plain value so a
// host can snapshot and restore it with ordinary assignment.
type Registers struct {
	EAX uint32
	ECX uint32
	EDX uint32
	EBX uint32
	ESP uint32
	EBP uint32
	ESI uint32
	EDI uint32

	IP uint16

	ES uint16
	CS uint16
	SS uint16
	DS uint16
	FS uint16
	GS uint16

	Flags uint32
}

// CPU is one emulated real-mode processor. All state lives here; separate
// CPUs share nothing.
type CPU struct {
	Registers

	mem   Memory
	ports Ports
	cfg   Config
	log   *slog.Logger
	fpu   *FPU
	hooks [256]InterruptHook

	// Decode mode, valid until the next non-prefix instruction completes
	prefixSeg      int // -1 = none, else segES..segGS
	prefixRep      int
	prefixOpSize   bool
	prefixAddrSize bool
	prefixActive   bool

	// Start of the instruction being executed, prefixes included
	insnCS uint16
	insnIP uint16

	intrPending bool
	intrVector  byte
	halted      bool
	exited      bool // clean exit through an illegal opcode at SP == 0
	fault       error
	exitReq     atomic.Bool

	tsc    uint64
	Cycles uint64
}

// New creates a CPU wired to the host's memory and port callbacks.
func New(mem Memory, ports Ports, cfg Config) *CPU {
	c := &CPU{
		mem:   mem,
		ports: ports,
		cfg:   cfg,
		log:   cfg.Logger,
		fpu:   NewFPU(),
	}
	if c.log == nil {
		c.log = log.Root()
	}
	c.Reset()
	return c
}

// Reset returns the CPU to its power-on state. Hooks are kept.
func (c *CPU) Reset() {
	c.Registers = Registers{Flags: flagsReserved}
	c.clearPrefixes()
	c.intrPending = false
	c.halted = false
	c.exited = false
	c.fault = nil
	c.exitReq.Store(false)
	c.tsc = 0
	c.Cycles = 0
	c.fpu.Reset()
}

// FPU returns the coprocessor state.
func (c *CPU) FPU() *FPU {
	return c.fpu
}

// Memory returns the host memory the CPU was built with.
func (c *CPU) Memory() Memory {
	return c.mem
}

func (c *CPU) clearPrefixes() {
	c.prefixSeg = -1
	c.prefixRep = repNone
	c.prefixOpSize = false
	c.prefixAddrSize = false
	c.prefixActive = false
}

// =============================================================================
// Register views
// =============================================================================

func (r *Registers) AX() uint16 { return uint16(r.EAX) }
func (r *Registers) BX() uint16 { return uint16(r.EBX) }
func (r *Registers) CX() uint16 { return uint16(r.ECX) }
func (r *Registers) DX() uint16 { return uint16(r.EDX) }
func (r *Registers) SI() uint16 { return uint16(r.ESI) }
func (r *Registers) DI() uint16 { return uint16(r.EDI) }
func (r *Registers) BP() uint16 { return uint16(r.EBP) }
func (r *Registers) SP() uint16 { return uint16(r.ESP) }

func (r *Registers) SetAX(v uint16) { r.EAX = r.EAX&0xFFFF0000 | uint32(v) }
func (r *Registers) SetBX(v uint16) { r.EBX = r.EBX&0xFFFF0000 | uint32(v) }
func (r *Registers) SetCX(v uint16) { r.ECX = r.ECX&0xFFFF0000 | uint32(v) }
func (r *Registers) SetDX(v uint16) { r.EDX = r.EDX&0xFFFF0000 | uint32(v) }
func (r *Registers) SetSI(v uint16) { r.ESI = r.ESI&0xFFFF0000 | uint32(v) }
func (r *Registers) SetDI(v uint16) { r.EDI = r.EDI&0xFFFF0000 | uint32(v) }
func (r *Registers) SetBP(v uint16) { r.EBP = r.EBP&0xFFFF0000 | uint32(v) }
func (r *Registers) SetSP(v uint16) { r.ESP = r.ESP&0xFFFF0000 | uint32(v) }

func (r *Registers) AL() byte { return byte(r.EAX) }
func (r *Registers) AH() byte { return byte(r.EAX >> 8) }
func (r *Registers) BL() byte { return byte(r.EBX) }
func (r *Registers) BH() byte { return byte(r.EBX >> 8) }
func (r *Registers) CL() byte { return byte(r.ECX) }
func (r *Registers) CH() byte { return byte(r.ECX >> 8) }
func (r *Registers) DL() byte { return byte(r.EDX) }
func (r *Registers) DH() byte { return byte(r.EDX >> 8) }

func (r *Registers) SetAL(v byte) { r.EAX = r.EAX&0xFFFFFF00 | uint32(v) }
func (r *Registers) SetAH(v byte) { r.EAX = r.EAX&0xFFFF00FF | uint32(v)<<8 }
func (r *Registers) SetBL(v byte) { r.EBX = r.EBX&0xFFFFFF00 | uint32(v) }
func (r *Registers) SetBH(v byte) { r.EBX = r.EBX&0xFFFF00FF | uint32(v)<<8 }
func (r *Registers) SetCL(v byte) { r.ECX = r.ECX&0xFFFFFF00 | uint32(v) }
func (r *Registers) SetCH(v byte) { r.ECX = r.ECX&0xFFFF00FF | uint32(v)<<8 }
func (r *Registers) SetDL(v byte) { r.EDX = r.EDX&0xFFFFFF00 | uint32(v) }
func (r *Registers) SetDH(v byte) { r.EDX = r.EDX&0xFFFF00FF | uint32(v)<<8 }

// reg32 returns the register selected by a 3-bit ModRM field
// (EAX ECX EDX EBX ESP EBP ESI EDI).
func (r *Registers) reg32(idx byte) *uint32 {
	switch idx & 7 {
	case 0:
		return &r.EAX
	case 1:
		return &r.ECX
	case 2:
		return &r.EDX
	case 3:
		return &r.EBX
	case 4:
		return &r.ESP
	case 5:
		return &r.EBP
	case 6:
		return &r.ESI
	default:
		return &r.EDI
	}
}

// getReg8 uses the byte-register encoding: AL CL DL BL AH CH DH BH.
func (r *Registers) getReg8(idx byte) byte {
	if idx&4 == 0 {
		return byte(*r.reg32(idx))
	}
	return byte(*r.reg32(idx&3) >> 8)
}

func (r *Registers) setReg8(idx byte, v byte) {
	if idx&4 == 0 {
		p := r.reg32(idx)
		*p = *p&0xFFFFFF00 | uint32(v)
		return
	}
	p := r.reg32(idx & 3)
	*p = *p&0xFFFF00FF | uint32(v)<<8
}

func (r *Registers) getReg16(idx byte) uint16 {
	return uint16(*r.reg32(idx))
}

func (r *Registers) setReg16(idx byte, v uint16) {
	p := r.reg32(idx)
	*p = *p&0xFFFF0000 | uint32(v)
}

func (r *Registers) getReg32(idx byte) uint32 {
	return *r.reg32(idx)
}

func (r *Registers) setReg32(idx byte, v uint32) {
	*r.reg32(idx) = v
}

// Seg returns a segment register by index (ES CS SS DS FS GS).
func (r *Registers) Seg(idx int) uint16 {
	return *r.seg(idx)
}

// SetSeg sets a segment register by index.
func (r *Registers) SetSeg(idx int, v uint16) {
	*r.seg(idx) = v
}

func (r *Registers) seg(idx int) *uint16 {
	switch idx {
	case segES:
		return &r.ES
	case segCS:
		return &r.CS
	case segSS:
		return &r.SS
	case segFS:
		return &r.FS
	case segGS:
		return &r.GS
	default:
		return &r.DS
	}
}

// =============================================================================
// Flags
// =============================================================================

// Flag reports whether any of the given flag bits is set.
func (r *Registers) Flag(mask uint32) bool {
	return r.Flags&mask != 0
}

// SetFlag sets or clears the given flag bits.
func (r *Registers) SetFlag(mask uint32, set bool) {
	if set {
		r.Flags |= mask
	} else {
		r.Flags &^= mask
	}
}

// PackedFlags is the FLAGS image pushed by PUSHF and interrupt entry.
func (r *Registers) PackedFlags() uint32 {
	return r.Flags&flagsMask | flagsReserved
}

func (r *Registers) loadFlags(v uint32) {
	r.Flags = v&flagsMask | flagsReserved
}

func parity(v byte) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 == 0
}

// cond evaluates a 4-bit condition code as used by Jcc/SETcc.
func (r *Registers) cond(cc byte) bool {
	var res bool
	switch cc >> 1 {
	case 0: // O
		res = r.Flag(FlagOF)
	case 1: // B
		res = r.Flag(FlagCF)
	case 2: // Z
		res = r.Flag(FlagZF)
	case 3: // BE
		res = r.Flag(FlagCF | FlagZF)
	case 4: // S
		res = r.Flag(FlagSF)
	case 5: // P
		res = r.Flag(FlagPF)
	case 6: // L
		res = r.Flag(FlagSF) != r.Flag(FlagOF)
	case 7: // LE
		res = r.Flag(FlagZF) || r.Flag(FlagSF) != r.Flag(FlagOF)
	}
	if cc&1 != 0 {
		return !res
	}
	return res
}
