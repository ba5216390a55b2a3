// string.go - String instructions and REP/REPE/REPNE handling
//
// Source operands are DS:SI (segment overridable), destinations ES:DI.
// Under the address-size prefix ESI/EDI/ECX are used instead.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

const (
	regSI = 6
	regDI = 7
)

// repeat runs body once, or CX times under a REP prefix. For CMPS/SCAS
// (compare set) REPE stops once ZF clears and REPNE once it sets.
func (c *CPU) repeat(compare bool, body func()) {
	if c.prefixRep == repNone {
		body()
		return
	}
	for c.counter() != 0 {
		body()
		c.setCounter(c.counter() - 1)
		if compare && (c.prefixRep == repE) != c.Flag(FlagZF) {
			break
		}
	}
}

func (c *CPU) index(reg byte) uint32 {
	if c.prefixAddrSize {
		return c.getReg32(reg)
	}
	return uint32(c.getReg16(reg))
}

// advance steps SI or DI by the element size in the DF direction.
func (c *CPU) advance(reg byte, w width) {
	step := uint32(w)
	if c.Flag(FlagDF) {
		step = -step
	}
	if c.prefixAddrSize {
		c.setReg32(reg, c.getReg32(reg)+step)
		return
	}
	c.setReg16(reg, c.getReg16(reg)+uint16(step))
}

func opMovs(c *CPU, op byte) {
	w := byteOrVar(c, op)
	src := c.dataSegment(false)
	c.repeat(false, func() {
		v := c.readMem(src, c.index(regSI), w)
		c.writeMem(segES, c.index(regDI), w, v)
		c.advance(regSI, w)
		c.advance(regDI, w)
	})
}

func opCmps(c *CPU, op byte) {
	w := byteOrVar(c, op)
	src := c.dataSegment(false)
	c.repeat(true, func() {
		a := c.readMem(src, c.index(regSI), w)
		b := c.readMem(segES, c.index(regDI), w)
		c.cmp(w, a, b)
		c.advance(regSI, w)
		c.advance(regDI, w)
	})
}

func opStos(c *CPU, op byte) {
	w := byteOrVar(c, op)
	c.repeat(false, func() {
		c.writeMem(segES, c.index(regDI), w, c.getReg(0, w))
		c.advance(regDI, w)
	})
}

func opLods(c *CPU, op byte) {
	w := byteOrVar(c, op)
	src := c.dataSegment(false)
	c.repeat(false, func() {
		c.setReg(0, w, c.readMem(src, c.index(regSI), w))
		c.advance(regSI, w)
	})
}

func opScas(c *CPU, op byte) {
	w := byteOrVar(c, op)
	c.repeat(true, func() {
		c.cmp(w, c.getReg(0, w), c.readMem(segES, c.index(regDI), w))
		c.advance(regDI, w)
	})
}

func opIns(c *CPU, op byte) {
	w := byteOrVar(c, op)
	c.repeat(false, func() {
		c.writeMem(segES, c.index(regDI), w, c.in(c.DX(), w))
		c.advance(regDI, w)
	})
}

func opOuts(c *CPU, op byte) {
	w := byteOrVar(c, op)
	src := c.dataSegment(false)
	c.repeat(false, func() {
		c.out(c.DX(), w, c.readMem(src, c.index(regSI), w))
		c.advance(regSI, w)
	})
}
