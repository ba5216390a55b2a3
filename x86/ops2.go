// ops2.go - Two-byte (0F-prefixed) opcode dispatch table and handlers
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import "math/bits"

var twoByteOps = [...]opcode{
	// 0x00
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	// 0x10
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	// 0x20
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	// 0x30
	badOp, inst("RDTSC", opRdtsc), badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	// 0x40
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	// 0x50
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	// 0x60
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	// 0x70
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,

	// 0x80
	inst("JO Jv", opJccNear),
	inst("JNO Jv", opJccNear),
	inst("JB Jv", opJccNear),
	inst("JNB Jv", opJccNear),
	inst("JZ Jv", opJccNear),
	inst("JNZ Jv", opJccNear),
	inst("JBE Jv", opJccNear),
	inst("JNBE Jv", opJccNear),
	inst("JS Jv", opJccNear),
	inst("JNS Jv", opJccNear),
	inst("JP Jv", opJccNear),
	inst("JNP Jv", opJccNear),
	inst("JL Jv", opJccNear),
	inst("JNL Jv", opJccNear),
	inst("JLE Jv", opJccNear),
	inst("JNLE Jv", opJccNear),

	// 0x90
	inst("SETO Eb", opSetcc),
	inst("SETNO Eb", opSetcc),
	inst("SETB Eb", opSetcc),
	inst("SETNB Eb", opSetcc),
	inst("SETZ Eb", opSetcc),
	inst("SETNZ Eb", opSetcc),
	inst("SETBE Eb", opSetcc),
	inst("SETNBE Eb", opSetcc),
	inst("SETS Eb", opSetcc),
	inst("SETNS Eb", opSetcc),
	inst("SETP Eb", opSetcc),
	inst("SETNP Eb", opSetcc),
	inst("SETL Eb", opSetcc),
	inst("SETNL Eb", opSetcc),
	inst("SETLE Eb", opSetcc),
	inst("SETNLE Eb", opSetcc),

	// 0xA0
	inst("PUSH FS", pushSeg(segFS)),
	inst("POP FS", popSeg(segFS)),
	inst("CPUID", opCpuid),
	inst("BT Ev,Gv", bitRM(bitTest)),
	inst("SHLD Ev,Gv,Ib", shiftDouble(true, countImm)),
	inst("SHLD Ev,Gv,CL", shiftDouble(true, countCL)),
	badOp,
	badOp,
	inst("PUSH GS", pushSeg(segGS)),
	inst("POP GS", popSeg(segGS)),
	badOp, // RSM
	inst("BTS Ev,Gv", bitRM(bitSet)),
	inst("SHRD Ev,Gv,Ib", shiftDouble(false, countImm)),
	inst("SHRD Ev,Gv,CL", shiftDouble(false, countCL)),
	badOp,
	inst("IMUL Gv,Ev", opImulGvEv),

	// 0xB0
	badOp, // CMPXCHG
	badOp,
	inst("LSS Gv,Mp", loadFarPointer("LSS", segSS)),
	inst("BTR Ev,Gv", bitRM(bitReset)),
	inst("LFS Gv,Mp", loadFarPointer("LFS", segFS)),
	inst("LGS Gv,Mp", loadFarPointer("LGS", segGS)),
	inst("MOVZX Gv,Eb", movExtend(wByte, false)),
	inst("MOVZX Gv,Ew", movExtend(wWord, false)),
	badOp,
	badOp,
	inst("GRP8 Ev,Ib", opGrp8),
	inst("BTC Ev,Gv", bitRM(bitComplement)),
	inst("BSF Gv,Ev", opBitScan),
	inst("BSR Gv,Ev", opBitScan),
	inst("MOVSX Gv,Eb", movExtend(wByte, true)),
	inst("MOVSX Gv,Ew", movExtend(wWord, true)),

	// 0xC0
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	inst("BSWAP EAX", opBswap),
	inst("BSWAP ECX", opBswap),
	inst("BSWAP EDX", opBswap),
	inst("BSWAP EBX", opBswap),
	inst("BSWAP ESP", opBswap),
	inst("BSWAP EBP", opBswap),
	inst("BSWAP ESI", opBswap),
	inst("BSWAP EDI", opBswap),

	// 0xD0
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	// 0xE0
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	// 0xF0
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
	badOp, badOp, badOp, badOp, badOp, badOp, badOp, badOp,
}

var (
	_ [256 - len(twoByteOps)]struct{}
	_ [len(twoByteOps) - 256]struct{}
)

func opJccNear(c *CPU, op byte) {
	rel := c.fetchImm(c.opWidth(wVar))
	if c.cond(op & 0x0F) {
		c.jumpRel(rel)
	}
}

func opSetcc(c *CPU, op byte) {
	mod, _, rm := c.decodeModRM()
	dst := c.decodeRM(mod, rm)
	var v uint32
	if c.cond(op & 0x0F) {
		v = 1
	}
	c.writeOp(dst, wByte, v)
}

// opCpuid reports a 486DX4 "GenuineIntel" with only leaves 0 and 1.
func opCpuid(c *CPU, _ byte) {
	switch c.EAX {
	case 0:
		c.EAX = 1
		c.EBX = 0x756E6547 // "Genu"
		c.EDX = 0x49656E69 // "ineI"
		c.ECX = 0x6C65746E // "ntel"
	case 1:
		c.EAX = 0x00000480
		c.EBX = 0
		c.ECX = 0
		c.EDX = 0x00000002 // VME
	default:
		c.EAX, c.EBX, c.ECX, c.EDX = 0, 0, 0, 0
	}
}

// opRdtsc returns a virtual counter that advances by 0x10000 per read.
func opRdtsc(c *CPU, _ byte) {
	c.tsc += 0x10000
	c.EAX = uint32(c.tsc)
	c.EDX = uint32(c.tsc >> 32)
}

func opBswap(c *CPU, op byte) {
	c.setReg32(op&7, bits.ReverseBytes32(c.getReg32(op&7)))
}

func opImulGvEv(c *CPU, _ byte) {
	w := c.opWidth(wVar)
	mod, reg, rm := c.decodeModRM()
	src := c.decodeRM(mod, rm)
	c.setReg(reg, w, c.imulTrunc(w, c.getReg(reg, w), c.readOp(src, w)))
}

func movExtend(srcW width, signed bool) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(wVar)
		mod, reg, rm := c.decodeModRM()
		src := c.decodeRM(mod, rm)
		v := c.readOp(src, srcW)
		if signed {
			v = srcW.signExtend(v)
		}
		c.setReg(reg, w, v&w.mask())
	}
}

// opBitScan handles BSF (BC) and BSR (BD). A zero source sets ZF and
// leaves the destination unchanged.
func opBitScan(c *CPU, op byte) {
	w := c.opWidth(wVar)
	mod, reg, rm := c.decodeModRM()
	src := c.decodeRM(mod, rm)
	v := c.readOp(src, w)
	if v == 0 {
		c.SetFlag(FlagZF, true)
		return
	}
	c.SetFlag(FlagZF, false)
	if op == 0xBC {
		c.setReg(reg, w, uint32(bits.TrailingZeros32(v)))
	} else {
		c.setReg(reg, w, uint32(31-bits.LeadingZeros32(v)))
	}
}

func shiftDouble(left bool, src int) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(wVar)
		mod, reg, rm := c.decodeModRM()
		dst := c.decodeRM(mod, rm)
		var count byte
		if src == countImm {
			count = c.fetch8()
		} else {
			count = c.CL()
		}
		d, s := c.readOp(dst, w), c.getReg(reg, w)
		var r uint32
		if left {
			r = c.shld(w, d, s, count)
		} else {
			r = c.shrd(w, d, s, count)
		}
		if count&0x1F != 0 {
			c.writeOp(dst, w, r)
		}
	}
}

// =============================================================================
// Bit test family
// =============================================================================

type bitOp int

const (
	bitTest bitOp = iota
	bitSet
	bitReset
	bitComplement
)

// bitRM handles BT/BTS/BTR/BTC Ev,Gv. For a memory operand the signed bit
// index, shifted right by 4 (word) or 5 (dword), is added to the offset as
// a byte displacement.
func bitRM(bop bitOp) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(wVar)
		mod, reg, rm := c.decodeModRM()
		dst := c.decodeRM(mod, rm)
		idx := c.getReg(reg, w)
		if dst.mem {
			var disp int32
			if w == wLong {
				disp = int32(int16(idx)) >> 5
			} else {
				disp = int32(int16(idx)) >> 4
			}
			dst = c.offsetWith(dst, uint32(disp))
		}
		c.bitOperate(bop, w, dst, idx)
	}
}

// opGrp8 handles 0F BA: BT/BTS/BTR/BTC Ev,Ib.
func opGrp8(c *CPU, _ byte) {
	w := c.opWidth(wVar)
	mod, reg, rm := c.decodeModRM()
	dst := c.decodeRM(mod, rm)
	idx := uint32(c.fetch8())
	if reg < 4 {
		c.illegal()
		return
	}
	c.bitOperate(bitOp(reg-4), w, dst, idx)
}

func (c *CPU) bitOperate(bop bitOp, w width, dst operand, idx uint32) {
	mask := uint32(1) << (idx & uint32(w.bits()-1))
	v := c.readOp(dst, w)
	c.SetFlag(FlagCF, v&mask != 0)
	switch bop {
	case bitSet:
		v |= mask
	case bitReset:
		v &^= mask
	case bitComplement:
		v ^= mask
	default:
		return
	}
	c.writeOp(dst, w, v)
}
