// alu.go - Arithmetic, logic, shift and BCD primitives
//
// Every primitive takes its operands at an explicit width, returns the
// result masked to that width and updates the flags the way the x86 does.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

// aluOp is the 3-bit operation field shared by opcodes 00-3F and group 1.
type aluOp byte

const (
	aluAdd aluOp = iota
	aluOr
	aluAdc
	aluSbb
	aluAnd
	aluSub
	aluXor
	aluCmp
)

// alu applies op and reports whether the result is written back.
func (c *CPU) alu(op aluOp, w width, d, s uint32) (uint32, bool) {
	switch op {
	case aluAdd:
		return c.add(w, d, s), true
	case aluOr:
		return c.or(w, d, s), true
	case aluAdc:
		return c.adc(w, d, s), true
	case aluSbb:
		return c.sbb(w, d, s), true
	case aluAnd:
		return c.and(w, d, s), true
	case aluSub:
		return c.sub(w, d, s), true
	case aluXor:
		return c.xor(w, d, s), true
	default:
		c.sub(w, d, s)
		return d, false
	}
}

// setSZP sets SF, ZF and PF from a result.
func (c *CPU) setSZP(w width, r uint32) {
	c.SetFlag(FlagZF, r&w.mask() == 0)
	c.SetFlag(FlagSF, r&w.sign() != 0)
	c.SetFlag(FlagPF, parity(byte(r)))
}

func (c *CPU) addWithCarry(w width, d, s, carry uint32) uint32 {
	d, s = d&w.mask(), s&w.mask()
	wide := uint64(d) + uint64(s) + uint64(carry)
	r := uint32(wide) & w.mask()
	c.SetFlag(FlagCF, wide > uint64(w.mask()))
	c.SetFlag(FlagOF, ^(d^s)&(d^r)&w.sign() != 0)
	c.SetFlag(FlagAF, (d^s^r)&0x10 != 0)
	c.setSZP(w, r)
	return r
}

func (c *CPU) subWithBorrow(w width, d, s, borrow uint32) uint32 {
	d, s = d&w.mask(), s&w.mask()
	r := (d - s - borrow) & w.mask()
	c.SetFlag(FlagCF, uint64(s)+uint64(borrow) > uint64(d))
	c.SetFlag(FlagOF, (d^s)&(d^r)&w.sign() != 0)
	c.SetFlag(FlagAF, (d^s^r)&0x10 != 0)
	c.setSZP(w, r)
	return r
}

func (c *CPU) carry() uint32 {
	if c.Flag(FlagCF) {
		return 1
	}
	return 0
}

func (c *CPU) add(w width, d, s uint32) uint32 { return c.addWithCarry(w, d, s, 0) }
func (c *CPU) adc(w width, d, s uint32) uint32 { return c.addWithCarry(w, d, s, c.carry()) }
func (c *CPU) sub(w width, d, s uint32) uint32 { return c.subWithBorrow(w, d, s, 0) }
func (c *CPU) sbb(w width, d, s uint32) uint32 { return c.subWithBorrow(w, d, s, c.carry()) }
func (c *CPU) cmp(w width, d, s uint32)        { c.subWithBorrow(w, d, s, 0) }

func (c *CPU) logic(w width, r uint32) uint32 {
	r &= w.mask()
	c.SetFlag(FlagCF|FlagOF|FlagAF, false)
	c.setSZP(w, r)
	return r
}

func (c *CPU) and(w width, d, s uint32) uint32 { return c.logic(w, d&s) }
func (c *CPU) or(w width, d, s uint32) uint32  { return c.logic(w, d|s) }
func (c *CPU) xor(w width, d, s uint32) uint32 { return c.logic(w, d^s) }
func (c *CPU) test(w width, d, s uint32)       { c.logic(w, d&s) }

func (c *CPU) not(w width, d uint32) uint32 {
	return ^d & w.mask()
}

func (c *CPU) neg(w width, d uint32) uint32 {
	r := c.subWithBorrow(w, 0, d, 0)
	c.SetFlag(FlagCF, d&w.mask() != 0)
	return r
}

// inc and dec leave CF alone.
func (c *CPU) inc(w width, d uint32) uint32 {
	cf := c.Flag(FlagCF)
	r := c.addWithCarry(w, d, 1, 0)
	c.SetFlag(FlagCF, cf)
	return r
}

func (c *CPU) dec(w width, d uint32) uint32 {
	cf := c.Flag(FlagCF)
	r := c.subWithBorrow(w, d, 1, 0)
	c.SetFlag(FlagCF, cf)
	return r
}

// =============================================================================
// Multiply / divide
// =============================================================================

// mul is the accumulator form: AX = AL*s, DX:AX = AX*s, EDX:EAX = EAX*s.
func (c *CPU) mul(w width, s uint32) {
	switch w {
	case wByte:
		r := uint16(c.AL()) * uint16(byte(s))
		c.SetAX(r)
		c.SetFlag(FlagCF|FlagOF, r>>8 != 0)
	case wWord:
		r := uint32(c.AX()) * (s & 0xFFFF)
		c.SetAX(uint16(r))
		c.SetDX(uint16(r >> 16))
		c.SetFlag(FlagCF|FlagOF, r>>16 != 0)
	default:
		r := uint64(c.EAX) * uint64(s)
		c.EAX = uint32(r)
		c.EDX = uint32(r >> 32)
		c.SetFlag(FlagCF|FlagOF, r>>32 != 0)
	}
}

func (c *CPU) imul(w width, s uint32) {
	switch w {
	case wByte:
		r := int16(int8(c.AL())) * int16(int8(s))
		c.SetAX(uint16(r))
		c.SetFlag(FlagCF|FlagOF, r != int16(int8(r)))
	case wWord:
		r := int32(int16(c.AX())) * int32(int16(s))
		c.SetAX(uint16(r))
		c.SetDX(uint16(uint32(r) >> 16))
		c.SetFlag(FlagCF|FlagOF, r != int32(int16(r)))
	default:
		r := int64(int32(c.EAX)) * int64(int32(s))
		c.EAX = uint32(r)
		c.EDX = uint32(uint64(r) >> 32)
		c.SetFlag(FlagCF|FlagOF, r != int64(int32(r)))
	}
}

// imulTrunc is the two and three operand form: the product truncated to w.
func (c *CPU) imulTrunc(w width, a, b uint32) uint32 {
	r := int64(int32(w.signExtend(a))) * int64(int32(w.signExtend(b)))
	t := uint32(r) & w.mask()
	c.SetFlag(FlagCF|FlagOF, int64(int32(w.signExtend(t))) != r)
	return t
}

// div divides the accumulator pair by s. A zero divisor or a quotient that
// does not fit leaves the registers untouched and raises vector 0.
func (c *CPU) div(w width, s uint32) {
	s &= w.mask()
	if s == 0 {
		c.RaiseInterrupt(0)
		return
	}
	switch w {
	case wByte:
		n := uint32(c.AX())
		q := n / s
		if q > 0xFF {
			c.RaiseInterrupt(0)
			return
		}
		c.SetAL(byte(q))
		c.SetAH(byte(n % s))
	case wWord:
		n := uint32(c.DX())<<16 | uint32(c.AX())
		q := n / s
		if q > 0xFFFF {
			c.RaiseInterrupt(0)
			return
		}
		c.SetAX(uint16(q))
		c.SetDX(uint16(n % s))
	default:
		n := uint64(c.EDX)<<32 | uint64(c.EAX)
		q := n / uint64(s)
		if q > 0xFFFFFFFF {
			c.RaiseInterrupt(0)
			return
		}
		c.EAX = uint32(q)
		c.EDX = uint32(n % uint64(s))
	}
}

func (c *CPU) idiv(w width, s uint32) {
	if s&w.mask() == 0 {
		c.RaiseInterrupt(0)
		return
	}
	d := int64(int32(w.signExtend(s)))
	switch w {
	case wByte:
		n := int64(int16(c.AX()))
		q := n / d
		if q != int64(int8(q)) {
			c.RaiseInterrupt(0)
			return
		}
		c.SetAL(byte(q))
		c.SetAH(byte(n % d))
	case wWord:
		n := int64(int32(uint32(c.DX())<<16 | uint32(c.AX())))
		q := n / d
		if q != int64(int16(q)) {
			c.RaiseInterrupt(0)
			return
		}
		c.SetAX(uint16(q))
		c.SetDX(uint16(n % d))
	default:
		n := int64(uint64(c.EDX)<<32 | uint64(c.EAX))
		if n == -1<<63 && d == -1 {
			c.RaiseInterrupt(0)
			return
		}
		q := n / d
		if q != int64(int32(q)) {
			c.RaiseInterrupt(0)
			return
		}
		c.EAX = uint32(q)
		c.EDX = uint32(n % d)
	}
}

// =============================================================================
// Shifts and rotates
// =============================================================================

// shiftOp is the reg field of group 2.
type shiftOp byte

const (
	shRol shiftOp = iota
	shRor
	shRcl
	shRcr
	shShl
	shShr
	shSal
	shSar
)

// shift applies a group 2 operation. A count of zero (after masking to five
// bits) changes neither the operand nor the flags.
func (c *CPU) shift(op shiftOp, w width, d uint32, count byte) uint32 {
	cnt := uint(count & 0x1F)
	if cnt == 0 {
		return d
	}
	d &= w.mask()
	switch op {
	case shRol:
		return c.rol(w, d, cnt)
	case shRor:
		return c.ror(w, d, cnt)
	case shRcl:
		return c.rcl(w, d, cnt)
	case shRcr:
		return c.rcr(w, d, cnt)
	case shShl, shSal:
		return c.shl(w, d, cnt)
	case shShr:
		return c.shr(w, d, cnt)
	default:
		return c.sar(w, d, cnt)
	}
}

func (c *CPU) rol(w width, d uint32, cnt uint) uint32 {
	n := cnt % w.bits()
	r := (d<<n | d>>(w.bits()-n)) & w.mask()
	c.SetFlag(FlagCF, r&1 != 0)
	if cnt == 1 {
		c.SetFlag(FlagOF, (r&w.sign() != 0) != c.Flag(FlagCF))
	}
	return r
}

func (c *CPU) ror(w width, d uint32, cnt uint) uint32 {
	n := cnt % w.bits()
	r := (d>>n | d<<(w.bits()-n)) & w.mask()
	c.SetFlag(FlagCF, r&w.sign() != 0)
	if cnt == 1 {
		c.SetFlag(FlagOF, (r&w.sign() != 0) != (r&(w.sign()>>1) != 0))
	}
	return r
}

func (c *CPU) rcl(w width, d uint32, cnt uint) uint32 {
	cf := c.carry()
	for range cnt % (w.bits() + 1) {
		out := d & w.sign()
		d = (d<<1 | cf) & w.mask()
		cf = 0
		if out != 0 {
			cf = 1
		}
	}
	c.SetFlag(FlagCF, cf != 0)
	if cnt == 1 {
		c.SetFlag(FlagOF, (d&w.sign() != 0) != (cf != 0))
	}
	return d
}

func (c *CPU) rcr(w width, d uint32, cnt uint) uint32 {
	cf := c.carry()
	if cnt == 1 {
		c.SetFlag(FlagOF, (d&w.sign() != 0) != (cf != 0))
	}
	for range cnt % (w.bits() + 1) {
		out := d & 1
		d = d>>1 | cf<<(w.bits()-1)
		cf = out
	}
	c.SetFlag(FlagCF, cf != 0)
	return d
}

func (c *CPU) shl(w width, d uint32, cnt uint) uint32 {
	var r uint32
	if cnt <= w.bits() {
		c.SetFlag(FlagCF, (uint64(d)>>(w.bits()-cnt))&1 != 0)
		r = uint32(uint64(d)<<cnt) & w.mask()
	} else {
		c.SetFlag(FlagCF, false)
	}
	if cnt == 1 {
		c.SetFlag(FlagOF, (r&w.sign() != 0) != c.Flag(FlagCF))
	}
	c.SetFlag(FlagAF, false)
	c.setSZP(w, r)
	return r
}

func (c *CPU) shr(w width, d uint32, cnt uint) uint32 {
	var r uint32
	if cnt <= w.bits() {
		c.SetFlag(FlagCF, (d>>(cnt-1))&1 != 0)
		r = uint32(uint64(d) >> cnt)
	} else {
		c.SetFlag(FlagCF, false)
	}
	if cnt == 1 {
		c.SetFlag(FlagOF, d&w.sign() != 0)
	}
	c.SetFlag(FlagAF, false)
	c.setSZP(w, r)
	return r
}

func (c *CPU) sar(w width, d uint32, cnt uint) uint32 {
	v := int32(w.signExtend(d))
	if cnt >= w.bits() {
		cnt = w.bits()
	}
	c.SetFlag(FlagCF, (v>>(cnt-1))&1 != 0)
	r := uint32(v>>cnt) & w.mask()
	if cnt == 1 {
		c.SetFlag(FlagOF, false)
	}
	c.SetFlag(FlagAF, false)
	c.setSZP(w, r)
	return r
}

// shld shifts d left by cnt, filling from the top of s.
func (c *CPU) shld(w width, d, s uint32, count byte) uint32 {
	cnt := uint(count & 0x1F)
	if cnt == 0 {
		return d
	}
	bits := w.bits()
	combined := uint64(d&w.mask())<<bits | uint64(s&w.mask())
	r := uint32(combined<<cnt>>bits) & w.mask()
	c.SetFlag(FlagCF, (combined>>(2*bits-cnt))&1 != 0)
	if cnt == 1 {
		c.SetFlag(FlagOF, (r^d)&w.sign() != 0)
	}
	c.setSZP(w, r)
	return r
}

// shrd shifts d right by cnt, filling from the bottom of s.
func (c *CPU) shrd(w width, d, s uint32, count byte) uint32 {
	cnt := uint(count & 0x1F)
	if cnt == 0 {
		return d
	}
	bits := w.bits()
	combined := uint64(s&w.mask())<<bits | uint64(d&w.mask())
	r := uint32(combined>>cnt) & w.mask()
	c.SetFlag(FlagCF, (combined>>(cnt-1))&1 != 0)
	if cnt == 1 {
		c.SetFlag(FlagOF, (r^d)&w.sign() != 0)
	}
	c.setSZP(w, r)
	return r
}

// =============================================================================
// BCD adjust
// =============================================================================

func (c *CPU) daa() {
	old, oldCF := c.AL(), c.Flag(FlagCF)
	al := old
	adjust := old&0x0F > 9 || c.Flag(FlagAF)
	if adjust {
		al += 6
	}
	c.SetFlag(FlagAF, adjust)
	cf := old > 0x99 || oldCF
	if cf {
		al += 0x60
	}
	c.SetFlag(FlagCF, cf)
	c.SetAL(al)
	c.setSZP(wByte, uint32(al))
}

func (c *CPU) das() {
	old, oldCF := c.AL(), c.Flag(FlagCF)
	al := old
	adjust := old&0x0F > 9 || c.Flag(FlagAF)
	if adjust {
		al -= 6
	}
	c.SetFlag(FlagAF, adjust)
	cf := old > 0x99 || oldCF
	if cf {
		al -= 0x60
	}
	c.SetFlag(FlagCF, cf)
	c.SetAL(al)
	c.setSZP(wByte, uint32(al))
}

func (c *CPU) aaa() {
	adjust := c.AL()&0x0F > 9 || c.Flag(FlagAF)
	if adjust {
		c.SetAX(c.AX() + 0x106)
	}
	c.SetFlag(FlagAF|FlagCF, adjust)
	c.SetAL(c.AL() & 0x0F)
}

func (c *CPU) aas() {
	adjust := c.AL()&0x0F > 9 || c.Flag(FlagAF)
	if adjust {
		c.SetAL(c.AL() - 6)
		c.SetAH(c.AH() - 1)
	}
	c.SetFlag(FlagAF|FlagCF, adjust)
	c.SetAL(c.AL() & 0x0F)
}

// aam with a zero base raises vector 0 and leaves AX alone.
func (c *CPU) aam(base byte) {
	if base == 0 {
		c.RaiseInterrupt(0)
		return
	}
	al := c.AL()
	c.SetAH(al / base)
	c.SetAL(al % base)
	c.setSZP(wByte, uint32(c.AL()))
}

func (c *CPU) aad(base byte) {
	al := c.AH()*base + c.AL()
	c.SetAX(uint16(al))
	c.setSZP(wByte, uint32(al))
}
