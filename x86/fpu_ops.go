// fpu_ops.go - Coprocessor escape opcodes D8-DF
//
// The ModRM byte and any memory displacement are always consumed so that
// IP advances identically with the FPU disabled; only the arithmetic is
// skipped.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import "math"

// fpuArith is indexed by the ModRM reg field of D8/DA/DC/DE. Entries 2 and
// 3 (FCOM/FCOMP) are handled separately.
var fpuArith = [8]func(a, b float64) float64{
	0: func(a, b float64) float64 { return a + b }, // FADD
	1: func(a, b float64) float64 { return a * b }, // FMUL
	4: func(a, b float64) float64 { return a - b }, // FSUB
	5: func(a, b float64) float64 { return b - a }, // FSUBR
	6: func(a, b float64) float64 { return a / b }, // FDIV
	7: func(a, b float64) float64 { return b / a }, // FDIVR
}

func opEsc(c *CPU, op byte) {
	mod, reg, rm := c.decodeModRM()
	var mem operand
	if mod != 3 {
		mem = c.decodeRM(mod, rm)
	}
	if !c.cfg.FPUEnabled {
		return
	}
	f := c.fpu
	f.FOP = uint16(op&7)<<8 | uint16(mod<<6|reg<<3|rm)
	f.FIP = uint32(c.insnIP)
	f.FCS = c.insnCS
	if mod == 3 {
		c.fpuRegOp(op, reg, int(rm))
		return
	}
	f.FDP = mem.off
	f.FDS = c.Seg(mem.seg)
	c.fpuMemOp(op, reg, c.addr(mem.seg, mem.off))
}

func (f *FPU) arith(reg byte, dst int, a, b float64) {
	r := fpuArith[reg](a, b)
	if math.IsNaN(r) && !math.IsNaN(a) && !math.IsNaN(b) {
		f.setException(FSW_IE)
	}
	if (reg == 6 && b == 0) || (reg == 7 && a == 0) {
		f.setException(FSW_ZE)
	}
	f.setST(dst, r)
}

// memArith is the shared body of D8/DA/DC/DE memory forms.
func (f *FPU) memArith(reg byte, v float64) {
	if f.underflow(0) {
		return
	}
	switch reg {
	case 2:
		f.compare(f.ST(0), v)
	case 3:
		f.compare(f.ST(0), v)
		f.pop()
	default:
		f.arith(reg, 0, f.ST(0), v)
	}
}

func (c *CPU) fpuMemOp(op, reg byte, addr uint32) {
	f, m := c.fpu, c.mem
	switch op {
	case 0xD8:
		f.memArith(reg, f.loadFloat32(m, addr))
	case 0xDA:
		f.memArith(reg, f.loadInt(m, addr, wLong))
	case 0xDC:
		f.memArith(reg, f.loadFloat64(m, addr))
	case 0xDE:
		f.memArith(reg, f.loadInt(m, addr, wWord))

	case 0xD9:
		switch reg {
		case 0:
			f.push(f.loadFloat32(m, addr))
		case 2, 3:
			if !f.underflow(0) {
				f.storeFloat32(m, addr, f.ST(0))
				if reg == 3 {
					f.pop()
				}
			}
		case 4:
			f.loadEnv(m, addr)
		case 5:
			f.FCW = m.Read16(addr)
		case 6:
			f.storeEnv(m, addr)
		case 7:
			m.Write16(addr, f.FCW)
		}

	case 0xDB:
		switch reg {
		case 0:
			f.push(f.loadInt(m, addr, wLong))
		case 2, 3:
			if !f.underflow(0) {
				f.storeInt(m, addr, wLong, f.ST(0))
				if reg == 3 {
					f.pop()
				}
			}
		case 5:
			f.push(f.loadExtended(m, addr))
		case 7:
			if !f.underflow(0) {
				f.storeExtended(m, addr, f.ST(0))
				f.pop()
			}
		}

	case 0xDD:
		switch reg {
		case 0:
			f.push(f.loadFloat64(m, addr))
		case 2, 3:
			if !f.underflow(0) {
				f.storeFloat64(m, addr, f.ST(0))
				if reg == 3 {
					f.pop()
				}
			}
		case 4:
			f.restore(m, addr)
		case 6:
			f.save(m, addr)
		case 7:
			m.Write16(addr, f.FSW)
		}

	case 0xDF:
		switch reg {
		case 0:
			f.push(f.loadInt(m, addr, wWord))
		case 2, 3:
			if !f.underflow(0) {
				f.storeInt(m, addr, wWord, f.ST(0))
				if reg == 3 {
					f.pop()
				}
			}
		case 4:
			f.push(f.loadBCD(m, addr))
		case 5:
			f.push(f.loadInt(m, addr, wQuad))
		case 6:
			if !f.underflow(0) {
				f.storeBCD(m, addr, f.ST(0))
				f.pop()
			}
		case 7:
			if !f.underflow(0) {
				f.storeInt(m, addr, wQuad, f.ST(0))
				f.pop()
			}
		}
	}
}

// regArith is the shared body of D8/DC/DE register forms. toSTi selects
// the ST(i) destination of DC/DE, whose SUB/SUBR and DIV/DIVR encodings
// are swapped relative to D8.
func (f *FPU) regArith(reg byte, i int, toSTi, pop bool) {
	if f.underflow(0, i) {
		return
	}
	switch {
	case reg == 2 || reg == 3:
		f.compare(f.ST(0), f.ST(i))
		if reg == 3 {
			f.pop()
		}
		return
	case toSTi:
		if reg >= 4 {
			reg ^= 1
		}
		f.arith(reg, i, f.ST(i), f.ST(0))
	default:
		f.arith(reg, 0, f.ST(0), f.ST(i))
	}
	if pop {
		f.pop()
	}
}

func (c *CPU) fpuRegOp(op, reg byte, i int) {
	f := c.fpu
	switch op {
	case 0xD8:
		f.regArith(reg, i, false, false)
	case 0xD9:
		c.fpuD9Reg(reg, i)
	case 0xDA:
		if reg == 5 && i == 1 { // FUCOMPP
			if !f.underflow(0, 1) {
				f.compare(f.ST(0), f.ST(1))
				f.pop()
				f.pop()
			}
		}
	case 0xDB:
		switch {
		case reg == 4 && i == 2: // FNCLEX
			f.FSW &^= 0x80FF
		case reg == 4 && i == 3: // FNINIT
			f.Reset()
		}
	case 0xDC:
		f.regArith(reg, i, true, false)
	case 0xDD:
		switch reg {
		case 0: // FFREE
			f.setTag(f.physReg(i), fpuTagEmpty)
		case 2, 3: // FST/FSTP ST(i)
			if !f.underflow(0) {
				f.setST(i, f.ST(0))
				if reg == 3 {
					f.pop()
				}
			}
		case 4, 5: // FUCOM/FUCOMP
			if !f.underflow(0, i) {
				f.compare(f.ST(0), f.ST(i))
				if reg == 5 {
					f.pop()
				}
			}
		}
	case 0xDE:
		if reg == 3 {
			if i == 1 { // FCOMPP
				if !f.underflow(0, 1) {
					f.compare(f.ST(0), f.ST(1))
					f.pop()
					f.pop()
				}
			}
			return
		}
		f.regArith(reg, i, true, true)
	case 0xDF:
		if reg == 4 && i == 0 { // FNSTSW AX
			c.SetAX(f.FSW)
		}
	}
}

func (c *CPU) fpuD9Reg(reg byte, i int) {
	f := c.fpu
	switch reg {
	case 0: // FLD ST(i)
		if !f.underflow(i) {
			f.push(f.ST(i))
		}
	case 1: // FXCH
		if !f.underflow(0, i) {
			a, b := f.ST(0), f.ST(i)
			f.setST(0, b)
			f.setST(i, a)
		}
	case 2: // FNOP
	case 4:
		switch i {
		case 0: // FCHS
			if !f.underflow(0) {
				f.setST(0, -f.ST(0))
			}
		case 1: // FABS
			if !f.underflow(0) {
				f.setST(0, math.Abs(f.ST(0)))
			}
		case 4: // FTST
			if !f.underflow(0) {
				f.compare(f.ST(0), 0)
			}
		case 5: // FXAM
			f.examine()
		}
	case 5:
		if i < len(fpuConstants) {
			f.push(fpuConstants[i])
		}
	case 6:
		switch i {
		case 0: // F2XM1
			if !f.underflow(0) {
				f.setST(0, math.Exp2(f.ST(0))-1)
			}
		case 1: // FYL2X
			if !f.underflow(0, 1) {
				f.setST(1, f.ST(1)*math.Log2(f.ST(0)))
				f.pop()
			}
		case 3: // FPATAN
			if !f.underflow(0, 1) {
				f.setST(1, math.Atan2(f.ST(1), f.ST(0)))
				f.pop()
			}
		case 6: // FDECSTP
			f.setTop(f.top() - 1)
		case 7: // FINCSTP
			f.setTop(f.top() + 1)
		}
	case 7:
		if f.underflow(0) {
			return
		}
		x := f.ST(0)
		switch i {
		case 0: // FPREM
			if !f.underflow(1) {
				f.setST(0, math.Mod(x, f.ST(1)))
				f.FSW &^= FSW_C2
			}
		case 2: // FSQRT
			if x < 0 {
				f.setException(FSW_IE)
			}
			f.setST(0, math.Sqrt(x))
		case 4: // FRNDINT
			f.setST(0, f.round(x))
		case 5: // FSCALE
			if !f.underflow(1) {
				f.setST(0, math.Ldexp(x, int(math.Trunc(f.ST(1)))))
			}
		case 6: // FSIN
			f.setST(0, math.Sin(x))
		case 7: // FCOS
			f.setST(0, math.Cos(x))
		}
	}
}
