// grp.go - Opcode groups selected by the ModRM reg field
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

// grp1 handles 80-83: ADD/OR/ADC/SBB/AND/SUB/XOR/CMP Ev,Iv. A byte
// immediate on a word or dword operand is sign-extended.
func grp1(sz, immSz width) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(sz)
		mod, reg, rm := c.decodeModRM()
		dst := c.decodeRM(mod, rm)
		var imm uint32
		if immSz == wByte {
			imm = wByte.signExtend(uint32(c.fetch8()))
		} else {
			imm = c.fetchImm(w)
		}
		r, store := c.alu(aluOp(reg), w, c.readOp(dst, w), imm)
		if store {
			c.writeOp(dst, w, r)
		}
	}
}

// Shift count sources for group 2.
const (
	countImm = iota
	countOne
	countCL
)

// grp2 handles C0/C1 and D0-D3: rotates and shifts.
func grp2(sz width, src int) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(sz)
		mod, reg, rm := c.decodeModRM()
		dst := c.decodeRM(mod, rm)
		var count byte
		switch src {
		case countImm:
			count = c.fetch8()
		case countOne:
			count = 1
		default:
			count = c.CL()
		}
		d := c.readOp(dst, w)
		r := c.shift(shiftOp(reg), w, d, count)
		if count&0x1F != 0 {
			c.writeOp(dst, w, r)
		}
	}
}

// grp3 handles F6/F7: TEST/NOT/NEG/MUL/IMUL/DIV/IDIV.
func grp3(sz width) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(sz)
		mod, reg, rm := c.decodeModRM()
		dst := c.decodeRM(mod, rm)
		switch reg {
		case 0, 1:
			imm := c.fetchImm(w)
			c.test(w, c.readOp(dst, w), imm)
		case 2:
			c.writeOp(dst, w, c.not(w, c.readOp(dst, w)))
		case 3:
			c.writeOp(dst, w, c.neg(w, c.readOp(dst, w)))
		case 4:
			c.mul(w, c.readOp(dst, w))
		case 5:
			c.imul(w, c.readOp(dst, w))
		case 6:
			c.div(w, c.readOp(dst, w))
		case 7:
			c.idiv(w, c.readOp(dst, w))
		}
	}
}

// opGrp4 handles FE: INC/DEC Eb.
func opGrp4(c *CPU, _ byte) {
	mod, reg, rm := c.decodeModRM()
	dst := c.decodeRM(mod, rm)
	switch reg {
	case 0:
		c.writeOp(dst, wByte, c.inc(wByte, c.readOp(dst, wByte)))
	case 1:
		c.writeOp(dst, wByte, c.dec(wByte, c.readOp(dst, wByte)))
	default:
		c.illegal()
	}
}

// opGrp5 handles FF: INC/DEC/CALL/CALL far/JMP/JMP far/PUSH Ev.
func opGrp5(c *CPU, _ byte) {
	w := c.opWidth(wVar)
	mod, reg, rm := c.decodeModRM()
	dst := c.decodeRM(mod, rm)
	switch reg {
	case 0:
		c.writeOp(dst, w, c.inc(w, c.readOp(dst, w)))
	case 1:
		c.writeOp(dst, w, c.dec(w, c.readOp(dst, w)))
	case 2:
		target := c.readOp(dst, w)
		c.pushV(uint32(c.IP))
		c.IP = uint16(target)
	case 3, 5:
		if !dst.mem {
			c.unsupported("far CALL/JMP Ev")
			return
		}
		off := c.readOp(dst, w)
		sel := uint16(c.readOp(c.offsetWith(dst, uint32(w)), wWord))
		if reg == 3 {
			c.pushV(uint32(c.CS))
			c.pushV(uint32(c.IP))
		}
		c.IP = uint16(off)
		c.CS = sel
	case 4:
		c.IP = uint16(c.readOp(dst, w))
	case 6:
		c.pushV(c.readOp(dst, w))
	default:
		c.illegal()
	}
}
