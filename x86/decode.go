// decode.go - Instruction stream fetch and ModRM/SIB addressing-mode decoding
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

// width is an operand size in bytes. wVar resolves to 2 or 4 by the
// operand-size prefix.
type width uint8

const (
	wVar  width = 0
	wByte width = 1
	wWord width = 2
	wLong width = 4
	wQuad width = 8 // x87 memory operands only
)

func (w width) bits() uint {
	return uint(w) * 8
}

func (w width) mask() uint32 {
	switch w {
	case wByte:
		return 0xFF
	case wWord:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

func (w width) sign() uint32 {
	return 1 << (w.bits() - 1)
}

// signExtend widens a value of width w to 32 bits.
func (w width) signExtend(v uint32) uint32 {
	switch w {
	case wByte:
		return uint32(int32(int8(v)))
	case wWord:
		return uint32(int32(int16(v)))
	default:
		return v
	}
}

// opWidth resolves wVar by the current operand-size prefix.
func (c *CPU) opWidth(w width) width {
	if w != wVar {
		return w
	}
	if c.prefixOpSize {
		return wLong
	}
	return wWord
}

// operand is a decoded register or memory reference. It lives for one
// instruction only.
type operand struct {
	mem bool
	reg byte // register field when !mem
	seg int  // segment index when mem
	off uint32
}

// physical forms a real-mode linear address.
func physical(seg uint16, off uint32) uint32 {
	return uint32(seg)<<4 + off
}

// =============================================================================
// Instruction stream
// =============================================================================

func (c *CPU) fetch8() byte {
	v := c.mem.Read8(physical(c.CS, uint32(c.IP)))
	c.IP++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	return lo | uint16(c.fetch8())<<8
}

func (c *CPU) fetch32() uint32 {
	lo := uint32(c.fetch16())
	return lo | uint32(c.fetch16())<<16
}

// fetchImm reads an immediate of width w.
func (c *CPU) fetchImm(w width) uint32 {
	switch w {
	case wByte:
		return uint32(c.fetch8())
	case wWord:
		return uint32(c.fetch16())
	default:
		return c.fetch32()
	}
}

// fetchOffset reads a displacement or moffs sized by the address-size prefix.
func (c *CPU) fetchOffset() uint32 {
	if c.prefixAddrSize {
		return c.fetch32()
	}
	return uint32(c.fetch16())
}

// =============================================================================
// ModRM / SIB
// =============================================================================

// decodeModRM consumes the ModRM byte and splits it into its fields.
func (c *CPU) decodeModRM() (mod, reg, rm byte) {
	b := c.fetch8()
	return b >> 6, (b >> 3) & 7, b & 7
}

// decodeRM turns the mod/rm fields into an operand, consuming any SIB byte
// and displacement from the stream.
func (c *CPU) decodeRM(mod, rm byte) operand {
	if mod == 3 {
		return operand{reg: rm}
	}
	var off uint32
	var ss bool
	switch mod {
	case 0:
		off, ss = c.decodeRM00Address(rm)
	case 1:
		off, ss = c.decodeRM01Address(rm)
	default:
		off, ss = c.decodeRM10Address(rm)
	}
	return operand{mem: true, seg: c.dataSegment(ss), off: off}
}

// dataSegment picks the segment for a memory operand: an override wins,
// otherwise SS for BP/EBP/ESP based forms and DS for the rest.
func (c *CPU) dataSegment(ss bool) int {
	if c.prefixSeg >= 0 {
		return c.prefixSeg
	}
	if ss {
		return segSS
	}
	return segDS
}

func (c *CPU) decodeRM00Address(rm byte) (uint32, bool) {
	if c.prefixAddrSize {
		switch rm {
		case 4:
			return c.decodeSIBAddress(0)
		case 5:
			return c.fetch32(), false
		}
		return c.getReg32(rm), false
	}
	if rm == 6 {
		return uint32(c.fetch16()), false
	}
	off, ss := c.base16(rm)
	return off, ss
}

func (c *CPU) decodeRM01Address(rm byte) (uint32, bool) {
	if c.prefixAddrSize {
		base, ss := c.base32(rm, 1)
		disp := uint32(int32(int8(c.fetch8())))
		return base + disp, ss
	}
	base, ss := c.base16(rm)
	disp := uint32(int32(int8(c.fetch8())))
	return (base + disp) & 0xFFFF, ss
}

func (c *CPU) decodeRM10Address(rm byte) (uint32, bool) {
	if c.prefixAddrSize {
		base, ss := c.base32(rm, 2)
		return base + c.fetch32(), ss
	}
	base, ss := c.base16(rm)
	return (base + uint32(c.fetch16())) & 0xFFFF, ss
}

// base16 is the register sum for 16-bit rm encodings; rm=6 means BP here,
// the mod=00 disp16 form is handled by the caller.
func (c *CPU) base16(rm byte) (uint32, bool) {
	var off uint16
	var ss bool
	switch rm {
	case 0:
		off = c.BX() + c.SI()
	case 1:
		off = c.BX() + c.DI()
	case 2:
		off, ss = c.BP()+c.SI(), true
	case 3:
		off, ss = c.BP()+c.DI(), true
	case 4:
		off = c.SI()
	case 5:
		off = c.DI()
	case 6:
		off, ss = c.BP(), true
	case 7:
		off = c.BX()
	}
	return uint32(off), ss
}

// base32 is the register part of a 32-bit rm encoding with mod 01 or 10.
func (c *CPU) base32(rm, mod byte) (uint32, bool) {
	switch rm {
	case 4:
		return c.decodeSIBAddress(mod)
	case 5:
		return c.EBP, true
	}
	return c.getReg32(rm), false
}

// decodeSIBAddress consumes the SIB byte. With mod=00 and base=5 there is
// no base register and a disp32 follows the SIB byte.
func (c *CPU) decodeSIBAddress(mod byte) (uint32, bool) {
	sib := c.fetch8()
	scale := uint32(1) << (sib >> 6)
	index := (sib >> 3) & 7
	base := sib & 7

	var off uint32
	var ss bool
	switch {
	case base == 5 && mod == 0:
		off = c.fetch32()
	case base == 4 || base == 5:
		off, ss = c.getReg32(base), true
	default:
		off = c.getReg32(base)
	}
	if index != 4 {
		off += c.getReg32(index) * scale
	}
	return off, ss
}

// =============================================================================
// Memory and operand access
// =============================================================================

func (c *CPU) addr(seg int, off uint32) uint32 {
	return physical(c.Seg(seg), off)
}

func (c *CPU) readMem(seg int, off uint32, w width) uint32 {
	a := c.addr(seg, off)
	switch w {
	case wByte:
		return uint32(c.mem.Read8(a))
	case wWord:
		return uint32(c.mem.Read16(a))
	default:
		return c.mem.Read32(a)
	}
}

func (c *CPU) writeMem(seg int, off uint32, w width, v uint32) {
	a := c.addr(seg, off)
	switch w {
	case wByte:
		c.mem.Write8(a, byte(v))
	case wWord:
		c.mem.Write16(a, uint16(v))
	default:
		c.mem.Write32(a, v)
	}
}

func (c *CPU) getReg(idx byte, w width) uint32 {
	switch w {
	case wByte:
		return uint32(c.getReg8(idx))
	case wWord:
		return uint32(c.getReg16(idx))
	default:
		return c.getReg32(idx)
	}
}

func (c *CPU) setReg(idx byte, w width, v uint32) {
	switch w {
	case wByte:
		c.setReg8(idx, byte(v))
	case wWord:
		c.setReg16(idx, uint16(v))
	default:
		c.setReg32(idx, v)
	}
}

func (c *CPU) readOp(op operand, w width) uint32 {
	if op.mem {
		return c.readMem(op.seg, op.off, w)
	}
	return c.getReg(op.reg, w)
}

func (c *CPU) writeOp(op operand, w width, v uint32) {
	if op.mem {
		c.writeMem(op.seg, op.off, w, v)
		return
	}
	c.setReg(op.reg, w, v)
}

// offsetWith adds a displacement to a memory operand, wrapping at 16 bits
// unless the address-size prefix is active.
func (c *CPU) offsetWith(op operand, disp uint32) operand {
	op.off += disp
	if !c.prefixAddrSize {
		op.off &= 0xFFFF
	}
	return op
}

// =============================================================================
// Stack
// =============================================================================

func (c *CPU) push16(v uint16) {
	sp := c.SP() - 2
	c.SetSP(sp)
	c.mem.Write16(physical(c.SS, uint32(sp)), v)
}

func (c *CPU) pop16() uint16 {
	sp := c.SP()
	v := c.mem.Read16(physical(c.SS, uint32(sp)))
	c.SetSP(sp + 2)
	return v
}

func (c *CPU) push32(v uint32) {
	sp := c.SP() - 4
	c.SetSP(sp)
	c.mem.Write32(physical(c.SS, uint32(sp)), v)
}

func (c *CPU) pop32() uint32 {
	sp := c.SP()
	v := c.mem.Read32(physical(c.SS, uint32(sp)))
	c.SetSP(sp + 4)
	return v
}

// pushV and popV use the current operand size.
func (c *CPU) pushV(v uint32) {
	if c.prefixOpSize {
		c.push32(v)
		return
	}
	c.push16(uint16(v))
}

func (c *CPU) popV() uint32 {
	if c.prefixOpSize {
		return c.pop32()
	}
	return uint32(c.pop16())
}
