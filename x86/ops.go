// ops.go - One-byte opcode dispatch table and handlers
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

// opcode is one dispatch table slot. Prefix handlers leave their decode
// mode set for the next instruction; every other handler has it cleared on
// completion.
type opcode struct {
	name   string
	exec   func(c *CPU, op byte)
	prefix bool
}

func inst(name string, fn func(*CPU, byte)) opcode {
	return opcode{name: name, exec: fn}
}

func prefix(name string, fn func(*CPU, byte)) opcode {
	return opcode{name: name, exec: fn, prefix: true}
}

var badOp = inst("(bad)", func(c *CPU, _ byte) { c.illegal() })

var oneByteOps = [...]opcode{
	// 0x00
	inst("ADD Eb,Gb", aluRM(aluAdd, wByte, false)),
	inst("ADD Ev,Gv", aluRM(aluAdd, wVar, false)),
	inst("ADD Gb,Eb", aluRM(aluAdd, wByte, true)),
	inst("ADD Gv,Ev", aluRM(aluAdd, wVar, true)),
	inst("ADD AL,Ib", aluAcc(aluAdd, wByte)),
	inst("ADD eAX,Iv", aluAcc(aluAdd, wVar)),
	inst("PUSH ES", pushSeg(segES)),
	inst("POP ES", popSeg(segES)),
	inst("OR Eb,Gb", aluRM(aluOr, wByte, false)),
	inst("OR Ev,Gv", aluRM(aluOr, wVar, false)),
	inst("OR Gb,Eb", aluRM(aluOr, wByte, true)),
	inst("OR Gv,Ev", aluRM(aluOr, wVar, true)),
	inst("OR AL,Ib", aluAcc(aluOr, wByte)),
	inst("OR eAX,Iv", aluAcc(aluOr, wVar)),
	inst("PUSH CS", pushSeg(segCS)),
	inst("0F", opTwoByte),

	// 0x10
	inst("ADC Eb,Gb", aluRM(aluAdc, wByte, false)),
	inst("ADC Ev,Gv", aluRM(aluAdc, wVar, false)),
	inst("ADC Gb,Eb", aluRM(aluAdc, wByte, true)),
	inst("ADC Gv,Ev", aluRM(aluAdc, wVar, true)),
	inst("ADC AL,Ib", aluAcc(aluAdc, wByte)),
	inst("ADC eAX,Iv", aluAcc(aluAdc, wVar)),
	inst("PUSH SS", pushSeg(segSS)),
	inst("POP SS", popSeg(segSS)),
	inst("SBB Eb,Gb", aluRM(aluSbb, wByte, false)),
	inst("SBB Ev,Gv", aluRM(aluSbb, wVar, false)),
	inst("SBB Gb,Eb", aluRM(aluSbb, wByte, true)),
	inst("SBB Gv,Ev", aluRM(aluSbb, wVar, true)),
	inst("SBB AL,Ib", aluAcc(aluSbb, wByte)),
	inst("SBB eAX,Iv", aluAcc(aluSbb, wVar)),
	inst("PUSH DS", pushSeg(segDS)),
	inst("POP DS", popSeg(segDS)),

	// 0x20
	inst("AND Eb,Gb", aluRM(aluAnd, wByte, false)),
	inst("AND Ev,Gv", aluRM(aluAnd, wVar, false)),
	inst("AND Gb,Eb", aluRM(aluAnd, wByte, true)),
	inst("AND Gv,Ev", aluRM(aluAnd, wVar, true)),
	inst("AND AL,Ib", aluAcc(aluAnd, wByte)),
	inst("AND eAX,Iv", aluAcc(aluAnd, wVar)),
	prefix("ES:", segPrefix(segES)),
	inst("DAA", func(c *CPU, _ byte) { c.daa() }),
	inst("SUB Eb,Gb", aluRM(aluSub, wByte, false)),
	inst("SUB Ev,Gv", aluRM(aluSub, wVar, false)),
	inst("SUB Gb,Eb", aluRM(aluSub, wByte, true)),
	inst("SUB Gv,Ev", aluRM(aluSub, wVar, true)),
	inst("SUB AL,Ib", aluAcc(aluSub, wByte)),
	inst("SUB eAX,Iv", aluAcc(aluSub, wVar)),
	prefix("CS:", segPrefix(segCS)),
	inst("DAS", func(c *CPU, _ byte) { c.das() }),

	// 0x30
	inst("XOR Eb,Gb", aluRM(aluXor, wByte, false)),
	inst("XOR Ev,Gv", aluRM(aluXor, wVar, false)),
	inst("XOR Gb,Eb", aluRM(aluXor, wByte, true)),
	inst("XOR Gv,Ev", aluRM(aluXor, wVar, true)),
	inst("XOR AL,Ib", aluAcc(aluXor, wByte)),
	inst("XOR eAX,Iv", aluAcc(aluXor, wVar)),
	prefix("SS:", segPrefix(segSS)),
	inst("AAA", func(c *CPU, _ byte) { c.aaa() }),
	inst("CMP Eb,Gb", aluRM(aluCmp, wByte, false)),
	inst("CMP Ev,Gv", aluRM(aluCmp, wVar, false)),
	inst("CMP Gb,Eb", aluRM(aluCmp, wByte, true)),
	inst("CMP Gv,Ev", aluRM(aluCmp, wVar, true)),
	inst("CMP AL,Ib", aluAcc(aluCmp, wByte)),
	inst("CMP eAX,Iv", aluAcc(aluCmp, wVar)),
	prefix("DS:", segPrefix(segDS)),
	inst("AAS", func(c *CPU, _ byte) { c.aas() }),

	// 0x40
	inst("INC eAX", opIncReg),
	inst("INC eCX", opIncReg),
	inst("INC eDX", opIncReg),
	inst("INC eBX", opIncReg),
	inst("INC eSP", opIncReg),
	inst("INC eBP", opIncReg),
	inst("INC eSI", opIncReg),
	inst("INC eDI", opIncReg),
	inst("DEC eAX", opDecReg),
	inst("DEC eCX", opDecReg),
	inst("DEC eDX", opDecReg),
	inst("DEC eBX", opDecReg),
	inst("DEC eSP", opDecReg),
	inst("DEC eBP", opDecReg),
	inst("DEC eSI", opDecReg),
	inst("DEC eDI", opDecReg),

	// 0x50
	inst("PUSH eAX", opPushReg),
	inst("PUSH eCX", opPushReg),
	inst("PUSH eDX", opPushReg),
	inst("PUSH eBX", opPushReg),
	inst("PUSH eSP", opPushReg),
	inst("PUSH eBP", opPushReg),
	inst("PUSH eSI", opPushReg),
	inst("PUSH eDI", opPushReg),
	inst("POP eAX", opPopReg),
	inst("POP eCX", opPopReg),
	inst("POP eDX", opPopReg),
	inst("POP eBX", opPopReg),
	inst("POP eSP", opPopReg),
	inst("POP eBP", opPopReg),
	inst("POP eSI", opPopReg),
	inst("POP eDI", opPopReg),

	// 0x60
	inst("PUSHA", opPusha),
	inst("POPA", opPopa),
	badOp, // BOUND
	badOp, // ARPL
	prefix("FS:", segPrefix(segFS)),
	prefix("GS:", segPrefix(segGS)),
	prefix("DATA32", func(c *CPU, _ byte) { c.prefixOpSize = true }),
	prefix("ADDR32", func(c *CPU, _ byte) { c.prefixAddrSize = true }),
	inst("PUSH Iv", func(c *CPU, _ byte) { c.pushV(c.fetchImm(c.opWidth(wVar))) }),
	inst("IMUL Gv,Ev,Iv", imulImm(wVar)),
	inst("PUSH Ib", func(c *CPU, _ byte) { c.pushV(wByte.signExtend(uint32(c.fetch8()))) }),
	inst("IMUL Gv,Ev,Ib", imulImm(wByte)),
	inst("INSB", opIns),
	inst("INSW", opIns),
	inst("OUTSB", opOuts),
	inst("OUTSW", opOuts),

	// 0x70
	inst("JO", opJccShort),
	inst("JNO", opJccShort),
	inst("JB", opJccShort),
	inst("JNB", opJccShort),
	inst("JZ", opJccShort),
	inst("JNZ", opJccShort),
	inst("JBE", opJccShort),
	inst("JNBE", opJccShort),
	inst("JS", opJccShort),
	inst("JNS", opJccShort),
	inst("JP", opJccShort),
	inst("JNP", opJccShort),
	inst("JL", opJccShort),
	inst("JNL", opJccShort),
	inst("JLE", opJccShort),
	inst("JNLE", opJccShort),

	// 0x80
	inst("GRP1 Eb,Ib", grp1(wByte, wByte)),
	inst("GRP1 Ev,Iv", grp1(wVar, wVar)),
	inst("GRP1 Eb,Ib", grp1(wByte, wByte)),
	inst("GRP1 Ev,Ib", grp1(wVar, wByte)),
	inst("TEST Eb,Gb", opTestRM),
	inst("TEST Ev,Gv", opTestRM),
	inst("XCHG Eb,Gb", opXchgRM),
	inst("XCHG Ev,Gv", opXchgRM),
	inst("MOV Eb,Gb", movRM(wByte, false)),
	inst("MOV Ev,Gv", movRM(wVar, false)),
	inst("MOV Gb,Eb", movRM(wByte, true)),
	inst("MOV Gv,Ev", movRM(wVar, true)),
	inst("MOV Ew,Sw", opMovEwSw),
	inst("LEA Gv,M", opLea),
	inst("MOV Sw,Ew", opMovSwEw),
	inst("POP Ev", opPopEv),

	// 0x90
	inst("NOP", func(*CPU, byte) {}),
	inst("XCHG eCX,eAX", opXchgAcc),
	inst("XCHG eDX,eAX", opXchgAcc),
	inst("XCHG eBX,eAX", opXchgAcc),
	inst("XCHG eSP,eAX", opXchgAcc),
	inst("XCHG eBP,eAX", opXchgAcc),
	inst("XCHG eSI,eAX", opXchgAcc),
	inst("XCHG eDI,eAX", opXchgAcc),
	inst("CBW", opCbw),
	inst("CWD", opCwd),
	inst("CALL Ap", opCallFar),
	inst("WAIT", func(*CPU, byte) {}),
	inst("PUSHF", func(c *CPU, _ byte) { c.pushV(c.PackedFlags()) }),
	inst("POPF", func(c *CPU, _ byte) { c.loadFlags(c.popV()) }),
	inst("SAHF", opSahf),
	inst("LAHF", func(c *CPU, _ byte) { c.SetAH(byte(c.PackedFlags())) }),

	// 0xA0
	inst("MOV AL,Ob", movMoffs(wByte, true)),
	inst("MOV eAX,Ov", movMoffs(wVar, true)),
	inst("MOV Ob,AL", movMoffs(wByte, false)),
	inst("MOV Ov,eAX", movMoffs(wVar, false)),
	inst("MOVSB", opMovs),
	inst("MOVSW", opMovs),
	inst("CMPSB", opCmps),
	inst("CMPSW", opCmps),
	inst("TEST AL,Ib", opTestAcc),
	inst("TEST eAX,Iv", opTestAcc),
	inst("STOSB", opStos),
	inst("STOSW", opStos),
	inst("LODSB", opLods),
	inst("LODSW", opLods),
	inst("SCASB", opScas),
	inst("SCASW", opScas),

	// 0xB0
	inst("MOV AL,Ib", opMovRegImm8),
	inst("MOV CL,Ib", opMovRegImm8),
	inst("MOV DL,Ib", opMovRegImm8),
	inst("MOV BL,Ib", opMovRegImm8),
	inst("MOV AH,Ib", opMovRegImm8),
	inst("MOV CH,Ib", opMovRegImm8),
	inst("MOV DH,Ib", opMovRegImm8),
	inst("MOV BH,Ib", opMovRegImm8),
	inst("MOV eAX,Iv", opMovRegImm),
	inst("MOV eCX,Iv", opMovRegImm),
	inst("MOV eDX,Iv", opMovRegImm),
	inst("MOV eBX,Iv", opMovRegImm),
	inst("MOV eSP,Iv", opMovRegImm),
	inst("MOV eBP,Iv", opMovRegImm),
	inst("MOV eSI,Iv", opMovRegImm),
	inst("MOV eDI,Iv", opMovRegImm),

	// 0xC0
	inst("GRP2 Eb,Ib", grp2(wByte, countImm)),
	inst("GRP2 Ev,Ib", grp2(wVar, countImm)),
	inst("RET Iw", opRetNearImm),
	inst("RET", func(c *CPU, _ byte) { c.IP = uint16(c.popV()) }),
	inst("LES Gv,Mp", loadFarPointer("LES", segES)),
	inst("LDS Gv,Mp", loadFarPointer("LDS", segDS)),
	inst("MOV Eb,Ib", movRMImm(wByte)),
	inst("MOV Ev,Iv", movRMImm(wVar)),
	inst("ENTER Iw,Ib", opEnter),
	inst("LEAVE", opLeave),
	inst("RETF Iw", opRetFarImm),
	inst("RETF", opRetFar),
	inst("INT3", func(c *CPU, _ byte) { c.deliver(3) }),
	inst("INT Ib", func(c *CPU, _ byte) { c.deliver(c.fetch8()) }),
	inst("INTO", opInto),
	inst("IRET", opIret),

	// 0xD0
	inst("GRP2 Eb,1", grp2(wByte, countOne)),
	inst("GRP2 Ev,1", grp2(wVar, countOne)),
	inst("GRP2 Eb,CL", grp2(wByte, countCL)),
	inst("GRP2 Ev,CL", grp2(wVar, countCL)),
	inst("AAM Ib", func(c *CPU, _ byte) { c.aam(c.fetch8()) }),
	inst("AAD Ib", func(c *CPU, _ byte) { c.aad(c.fetch8()) }),
	badOp, // SALC
	inst("XLAT", opXlat),
	inst("ESC D8", opEsc),
	inst("ESC D9", opEsc),
	inst("ESC DA", opEsc),
	inst("ESC DB", opEsc),
	inst("ESC DC", opEsc),
	inst("ESC DD", opEsc),
	inst("ESC DE", opEsc),
	inst("ESC DF", opEsc),

	// 0xE0
	inst("LOOPNE Jb", opLoop),
	inst("LOOPE Jb", opLoop),
	inst("LOOP Jb", opLoop),
	inst("JCXZ Jb", opLoop),
	inst("IN AL,Ib", opInImm),
	inst("IN eAX,Ib", opInImm),
	inst("OUT Ib,AL", opOutImm),
	inst("OUT Ib,eAX", opOutImm),
	inst("CALL Jv", opCallNear),
	inst("JMP Jv", opJmpNear),
	inst("JMP Ap", opJmpFar),
	inst("JMP Jb", func(c *CPU, _ byte) { c.jumpRel(wByte.signExtend(uint32(c.fetch8()))) }),
	inst("IN AL,DX", opInDX),
	inst("IN eAX,DX", opInDX),
	inst("OUT DX,AL", opOutDX),
	inst("OUT DX,eAX", opOutDX),

	// 0xF0
	prefix("LOCK", func(*CPU, byte) {}),
	badOp, // ICEBP
	prefix("REPNE", func(c *CPU, _ byte) { c.prefixRep = repNE }),
	prefix("REP", func(c *CPU, _ byte) { c.prefixRep = repE }),
	inst("HLT", func(c *CPU, _ byte) { c.Halt() }),
	inst("CMC", func(c *CPU, _ byte) { c.Flags ^= FlagCF }),
	inst("GRP3 Eb", grp3(wByte)),
	inst("GRP3 Ev", grp3(wVar)),
	inst("CLC", func(c *CPU, _ byte) { c.SetFlag(FlagCF, false) }),
	inst("STC", func(c *CPU, _ byte) { c.SetFlag(FlagCF, true) }),
	inst("CLI", func(c *CPU, _ byte) { c.SetFlag(FlagIF, false) }),
	inst("STI", func(c *CPU, _ byte) { c.SetFlag(FlagIF, true) }),
	inst("CLD", func(c *CPU, _ byte) { c.SetFlag(FlagDF, false) }),
	inst("STD", func(c *CPU, _ byte) { c.SetFlag(FlagDF, true) }),
	inst("GRP4 Eb", opGrp4),
	inst("GRP5 Ev", opGrp5),
}

// Both tables must have exactly 256 slots.
var (
	_ [256 - len(oneByteOps)]struct{}
	_ [len(oneByteOps) - 256]struct{}
)

// =============================================================================
// ALU forms
// =============================================================================

// aluRM handles opcodes 00-3B: Eb,Gb and Ev,Gv, or Gb,Eb and Gv,Ev when
// toReg is set.
func aluRM(a aluOp, sz width, toReg bool) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(sz)
		mod, reg, rm := c.decodeModRM()
		rmOp := c.decodeRM(mod, rm)
		if toReg {
			r, store := c.alu(a, w, c.getReg(reg, w), c.readOp(rmOp, w))
			if store {
				c.setReg(reg, w, r)
			}
			return
		}
		r, store := c.alu(a, w, c.readOp(rmOp, w), c.getReg(reg, w))
		if store {
			c.writeOp(rmOp, w, r)
		}
	}
}

// aluAcc handles the AL,Ib and eAX,Iv forms.
func aluAcc(a aluOp, sz width) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(sz)
		imm := c.fetchImm(w)
		r, store := c.alu(a, w, c.getReg(0, w), imm)
		if store {
			c.setReg(0, w, r)
		}
	}
}

// byteOrVar maps the low opcode bit to a width: even is byte, odd is v.
func byteOrVar(c *CPU, op byte) width {
	if op&1 == 0 {
		return wByte
	}
	return c.opWidth(wVar)
}

func opTestRM(c *CPU, op byte) {
	w := byteOrVar(c, op)
	mod, reg, rm := c.decodeModRM()
	rmOp := c.decodeRM(mod, rm)
	c.test(w, c.readOp(rmOp, w), c.getReg(reg, w))
}

func opTestAcc(c *CPU, op byte) {
	w := byteOrVar(c, op)
	c.test(w, c.getReg(0, w), c.fetchImm(w))
}

func imulImm(immSz width) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(wVar)
		mod, reg, rm := c.decodeModRM()
		src := c.decodeRM(mod, rm)
		var imm uint32
		if immSz == wByte {
			imm = wByte.signExtend(uint32(c.fetch8()))
		} else {
			imm = c.fetchImm(w)
		}
		c.setReg(reg, w, c.imulTrunc(w, c.readOp(src, w), imm))
	}
}

func opIncReg(c *CPU, op byte) {
	w := c.opWidth(wVar)
	c.setReg(op&7, w, c.inc(w, c.getReg(op&7, w)))
}

func opDecReg(c *CPU, op byte) {
	w := c.opWidth(wVar)
	c.setReg(op&7, w, c.dec(w, c.getReg(op&7, w)))
}

// =============================================================================
// Data movement
// =============================================================================

func movRM(sz width, toReg bool) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(sz)
		mod, reg, rm := c.decodeModRM()
		rmOp := c.decodeRM(mod, rm)
		if toReg {
			c.setReg(reg, w, c.readOp(rmOp, w))
		} else {
			c.writeOp(rmOp, w, c.getReg(reg, w))
		}
	}
}

func movRMImm(sz width) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(sz)
		mod, _, rm := c.decodeModRM()
		dst := c.decodeRM(mod, rm)
		c.writeOp(dst, w, c.fetchImm(w))
	}
}

// movMoffs handles A0-A3: a direct offset, DS unless overridden.
func movMoffs(sz width, toAcc bool) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(sz)
		off := c.fetchOffset()
		seg := c.dataSegment(false)
		if toAcc {
			c.setReg(0, w, c.readMem(seg, off, w))
		} else {
			c.writeMem(seg, off, w, c.getReg(0, w))
		}
	}
}

func opMovRegImm8(c *CPU, op byte) {
	c.setReg8(op&7, c.fetch8())
}

func opMovRegImm(c *CPU, op byte) {
	w := c.opWidth(wVar)
	c.setReg(op&7, w, c.fetchImm(w))
}

func opMovEwSw(c *CPU, _ byte) {
	mod, reg, rm := c.decodeModRM()
	dst := c.decodeRM(mod, rm)
	if reg > segGS {
		c.unsupported("MOV Ew,Sw")
		return
	}
	w := wWord
	if !dst.mem {
		w = c.opWidth(wVar)
	}
	c.writeOp(dst, w, uint32(c.Seg(int(reg))))
}

func opMovSwEw(c *CPU, _ byte) {
	mod, reg, rm := c.decodeModRM()
	src := c.decodeRM(mod, rm)
	if reg > segGS {
		c.unsupported("MOV Sw,Ew")
		return
	}
	c.SetSeg(int(reg), uint16(c.readOp(src, wWord)))
}

func opLea(c *CPU, _ byte) {
	w := c.opWidth(wVar)
	mod, reg, rm := c.decodeModRM()
	src := c.decodeRM(mod, rm)
	if !src.mem {
		c.unsupported("LEA")
		return
	}
	c.setReg(reg, w, src.off&w.mask())
}

// loadFarPointer handles LES/LDS/LSS/LFS/LGS: offset then selector.
func loadFarPointer(name string, seg int) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		w := c.opWidth(wVar)
		mod, reg, rm := c.decodeModRM()
		src := c.decodeRM(mod, rm)
		if !src.mem {
			c.unsupported(name)
			return
		}
		off := c.readOp(src, w)
		sel := c.readOp(c.offsetWith(src, uint32(w)), wWord)
		c.setReg(reg, w, off)
		c.SetSeg(seg, uint16(sel))
	}
}

func opXchgRM(c *CPU, op byte) {
	w := byteOrVar(c, op)
	mod, reg, rm := c.decodeModRM()
	rmOp := c.decodeRM(mod, rm)
	a, b := c.readOp(rmOp, w), c.getReg(reg, w)
	c.writeOp(rmOp, w, b)
	c.setReg(reg, w, a)
}

func opXchgAcc(c *CPU, op byte) {
	w := c.opWidth(wVar)
	a, b := c.getReg(0, w), c.getReg(op&7, w)
	c.setReg(0, w, b)
	c.setReg(op&7, w, a)
}

func opCbw(c *CPU, _ byte) {
	if c.prefixOpSize {
		c.EAX = wWord.signExtend(c.EAX)
		return
	}
	c.SetAX(uint16(wByte.signExtend(uint32(c.AL()))))
}

func opCwd(c *CPU, _ byte) {
	if c.prefixOpSize {
		c.EDX = uint32(int32(c.EAX) >> 31)
		return
	}
	c.SetDX(uint16(int16(c.AX()) >> 15))
}

func opSahf(c *CPU, _ byte) {
	const mask = FlagSF | FlagZF | FlagAF | FlagPF | FlagCF
	c.Flags = c.Flags&^mask | uint32(c.AH())&mask | flagsReserved
}

func opXlat(c *CPU, _ byte) {
	var off uint32
	if c.prefixAddrSize {
		off = c.EBX + uint32(c.AL())
	} else {
		off = uint32(c.BX()+uint16(c.AL())) & 0xFFFF
	}
	c.SetAL(byte(c.readMem(c.dataSegment(false), off, wByte)))
}

// =============================================================================
// Stack
// =============================================================================

func pushSeg(seg int) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		c.pushV(uint32(c.Seg(seg)))
	}
}

func popSeg(seg int) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		c.SetSeg(seg, uint16(c.popV()))
	}
}

// opPushReg pushes the value the register had before the push, SP included.
func opPushReg(c *CPU, op byte) {
	c.pushV(c.getReg(op&7, c.opWidth(wVar)))
}

func opPopReg(c *CPU, op byte) {
	w := c.opWidth(wVar)
	c.setReg(op&7, w, c.popV())
}

func opPopEv(c *CPU, _ byte) {
	w := c.opWidth(wVar)
	mod, _, rm := c.decodeModRM()
	dst := c.decodeRM(mod, rm)
	c.writeOp(dst, w, c.popV())
}

func opPusha(c *CPU, _ byte) {
	w := c.opWidth(wVar)
	sp := c.getReg(4, w)
	for i := range byte(8) {
		if i == 4 {
			c.pushV(sp)
			continue
		}
		c.pushV(c.getReg(i, w))
	}
}

func opPopa(c *CPU, _ byte) {
	w := c.opWidth(wVar)
	for i := 7; i >= 0; i-- {
		v := c.popV()
		if i != 4 {
			c.setReg(byte(i), w, v)
		}
	}
}

func opEnter(c *CPU, _ byte) {
	size := c.fetch16()
	level := c.fetch8() & 0x1F
	w := c.opWidth(wVar)
	c.pushV(c.getReg(5, w))
	frame := c.getReg(4, w)
	for i := 1; i < int(level); i++ {
		bp := (c.getReg(5, w) - uint32(w)) & w.mask()
		c.setReg(5, w, bp)
		c.pushV(c.readMem(segSS, bp&0xFFFF, w))
	}
	if level > 0 {
		c.pushV(frame)
	}
	c.setReg(5, w, frame)
	c.SetSP(c.SP() - size)
}

func opLeave(c *CPU, _ byte) {
	w := c.opWidth(wVar)
	c.setReg(4, w, c.getReg(5, w))
	c.setReg(5, w, c.popV())
}

// =============================================================================
// Control transfer
// =============================================================================

func (c *CPU) jumpRel(rel uint32) {
	c.IP += uint16(rel)
}

func opJccShort(c *CPU, op byte) {
	rel := wByte.signExtend(uint32(c.fetch8()))
	if c.cond(op & 0x0F) {
		c.jumpRel(rel)
	}
}

func opJmpNear(c *CPU, _ byte) {
	c.jumpRel(c.fetchImm(c.opWidth(wVar)))
}

func opCallNear(c *CPU, _ byte) {
	rel := c.fetchImm(c.opWidth(wVar))
	c.pushV(uint32(c.IP))
	c.jumpRel(rel)
}

func opJmpFar(c *CPU, _ byte) {
	off := c.fetchImm(c.opWidth(wVar))
	sel := c.fetch16()
	c.IP = uint16(off)
	c.CS = sel
}

func opCallFar(c *CPU, _ byte) {
	off := c.fetchImm(c.opWidth(wVar))
	sel := c.fetch16()
	c.pushV(uint32(c.CS))
	c.pushV(uint32(c.IP))
	c.IP = uint16(off)
	c.CS = sel
}

func opRetNearImm(c *CPU, _ byte) {
	n := c.fetch16()
	c.IP = uint16(c.popV())
	c.SetSP(c.SP() + n)
}

func opRetFar(c *CPU, _ byte) {
	c.IP = uint16(c.popV())
	c.CS = uint16(c.popV())
}

func opRetFarImm(c *CPU, _ byte) {
	n := c.fetch16()
	opRetFar(c, 0)
	c.SetSP(c.SP() + n)
}

func opIret(c *CPU, _ byte) {
	c.IP = uint16(c.popV())
	c.CS = uint16(c.popV())
	c.loadFlags(c.popV())
}

func opInto(c *CPU, _ byte) {
	if c.Flag(FlagOF) {
		c.deliver(4)
	}
}

// counter returns CX, or ECX under the address-size prefix.
func (c *CPU) counter() uint32 {
	if c.prefixAddrSize {
		return c.ECX
	}
	return uint32(c.CX())
}

func (c *CPU) setCounter(v uint32) {
	if c.prefixAddrSize {
		c.ECX = v
		return
	}
	c.SetCX(uint16(v))
}

// opLoop handles E0-E3: LOOPNE, LOOPE, LOOP and JCXZ.
func opLoop(c *CPU, op byte) {
	rel := wByte.signExtend(uint32(c.fetch8()))
	if op == 0xE3 {
		if c.counter() == 0 {
			c.jumpRel(rel)
		}
		return
	}
	n := c.counter() - 1
	c.setCounter(n)
	if !c.prefixAddrSize {
		n &= 0xFFFF
	}
	taken := n != 0
	switch op {
	case 0xE0:
		taken = taken && !c.Flag(FlagZF)
	case 0xE1:
		taken = taken && c.Flag(FlagZF)
	}
	if taken {
		c.jumpRel(rel)
	}
}

func opTwoByte(c *CPU, _ byte) {
	op := c.fetch8()
	twoByteOps[op].exec(c, op)
}

func segPrefix(seg int) func(*CPU, byte) {
	return func(c *CPU, _ byte) {
		c.prefixSeg = seg
	}
}

// =============================================================================
// Port I/O
// =============================================================================

func (c *CPU) in(port uint16, w width) uint32 {
	switch w {
	case wByte:
		return uint32(c.ports.In8(port))
	case wWord:
		return uint32(c.ports.In16(port))
	default:
		return c.ports.In32(port)
	}
}

func (c *CPU) out(port uint16, w width, v uint32) {
	switch w {
	case wByte:
		c.ports.Out8(port, byte(v))
	case wWord:
		c.ports.Out16(port, uint16(v))
	default:
		c.ports.Out32(port, v)
	}
}

func opInImm(c *CPU, op byte) {
	w := byteOrVar(c, op)
	port := uint16(c.fetch8())
	c.setReg(0, w, c.in(port, w))
}

func opOutImm(c *CPU, op byte) {
	w := byteOrVar(c, op)
	port := uint16(c.fetch8())
	c.out(port, w, c.getReg(0, w))
}

func opInDX(c *CPU, op byte) {
	w := byteOrVar(c, op)
	c.setReg(0, w, c.in(c.DX(), w))
}

func opOutDX(c *CPU, op byte) {
	w := byteOrVar(c, op)
	c.out(c.DX(), w, c.getReg(0, w))
}
