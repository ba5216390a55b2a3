// trace.go - Instruction tracing, disassembly and register dumps
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/intuitionamiga/x86emu/log"
)

// maxInsnLen is the architectural limit on one instruction's length.
const maxInsnLen = 15

// TraceRecord describes one instruction about to execute.
type TraceRecord struct {
	CS     uint16
	IP     uint16
	Bytes  []byte
	Disasm string
	Regs   Registers
}

// Disassemble decodes the instruction at seg:off in 16-bit mode. Undecodable
// bytes come back as "(bad)" with a length of one.
func Disassemble(mem Memory, seg, off uint16) (string, []byte) {
	buf := make([]byte, maxInsnLen)
	for i := range buf {
		buf[i] = mem.Read8(physical(seg, uint32(off+uint16(i))))
	}
	inst, err := x86asm.Decode(buf, 16)
	if err != nil || inst.Len == 0 {
		return "(bad)", buf[:1]
	}
	return strings.ToLower(x86asm.IntelSyntax(inst, uint64(off), nil)), buf[:inst.Len]
}

func (c *CPU) trace() {
	text, b := Disassemble(c.mem, c.CS, c.IP)
	rec := TraceRecord{CS: c.CS, IP: c.IP, Bytes: b, Disasm: text, Regs: c.Registers}
	if c.cfg.TraceFunc != nil {
		c.cfg.TraceFunc(rec)
		return
	}
	log.Trace(c.log, "exec",
		"at", fmt.Sprintf("%04X:%04X", rec.CS, rec.IP),
		"bytes", fmt.Sprintf("% X", rec.Bytes),
		"insn", rec.Disasm)
}

// traceHalt logs where execution stopped and the machine state.
func (c *CPU) traceHalt() {
	_, b := Disassemble(c.mem, c.insnCS, c.insnIP)
	c.log.Info("halted",
		"at", fmt.Sprintf("%04X:%04X", c.insnCS, c.insnIP),
		"bytes", fmt.Sprintf("% X", b),
		"regs", c.Dump())
}

// Dump formats the register file in the classic debugger layout.
func (r *Registers) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "EAX=%08X EBX=%08X ECX=%08X EDX=%08X\n", r.EAX, r.EBX, r.ECX, r.EDX)
	fmt.Fprintf(&sb, "ESP=%08X EBP=%08X ESI=%08X EDI=%08X\n", r.ESP, r.EBP, r.ESI, r.EDI)
	fmt.Fprintf(&sb, "CS=%04X DS=%04X ES=%04X SS=%04X FS=%04X GS=%04X IP=%04X %s",
		r.CS, r.DS, r.ES, r.SS, r.FS, r.GS, r.IP, r.flagString())
	return sb.String()
}

var flagMnemonics = [...]struct {
	mask     uint32
	set, clr string
}{
	{FlagOF, "OV", "NV"},
	{FlagDF, "DN", "UP"},
	{FlagIF, "EI", "DI"},
	{FlagSF, "NG", "PL"},
	{FlagZF, "ZR", "NZ"},
	{FlagAF, "AC", "NA"},
	{FlagPF, "PE", "PO"},
	{FlagCF, "CY", "NC"},
}

func (r *Registers) flagString() string {
	parts := make([]string, 0, len(flagMnemonics))
	for _, f := range flagMnemonics {
		if r.Flag(f.mask) {
			parts = append(parts, f.set)
		} else {
			parts = append(parts, f.clr)
		}
	}
	return strings.Join(parts, " ")
}
