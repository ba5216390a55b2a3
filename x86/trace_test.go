// trace_test.go - Trace records, disassembly and register dumps
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intuitionamiga/x86emu/log"
)

func TestTraceFuncReceivesEachInstruction(t *testing.T) {
	var recs []TraceRecord
	cfg := Config{Trace: true, TraceFunc: func(r TraceRecord) { recs = append(recs, r) }}
	c, _ := newTestCPU(t, []byte{0xB8, 0x34, 0x12, 0x2E, 0x90, 0xF4}, cfg)
	runToHalt(t, c)

	require.Len(t, recs, 3, "prefix and its instruction are one record")
	assert.Equal(t, uint16(testCS), recs[0].CS)
	assert.Equal(t, uint16(0), recs[0].IP)
	assert.Equal(t, []byte{0xB8, 0x34, 0x12}, recs[0].Bytes)
	assert.Contains(t, recs[0].Disasm, "mov")
	assert.Contains(t, recs[0].Disasm, "ax")
	assert.Equal(t, uint16(0), recs[0].Regs.AX(), "registers before execution")

	assert.Equal(t, uint16(3), recs[1].IP)
	assert.Equal(t, uint16(0x1234), recs[1].Regs.AX())
	assert.Equal(t, uint16(5), recs[2].IP)
	assert.Contains(t, recs[2].Disasm, "hlt")
}

func TestTraceToLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Trace: true, Logger: log.New(&buf, log.LevelTrace)}
	c, _ := newTestCPU(t, []byte{0x90, 0xF4}, cfg)
	runToHalt(t, c)

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "at=1000:0000")
	assert.Contains(t, out, "msg=halted")
	assert.Contains(t, out, "EAX=00000000")
}

func TestNoTraceWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	called := false
	cfg := Config{
		Logger:    log.New(&buf, log.LevelTrace),
		TraceFunc: func(TraceRecord) { called = true },
	}
	c, _ := newTestCPU(t, []byte{0x90, 0xF4}, cfg)
	runToHalt(t, c)
	assert.False(t, called)
	assert.Empty(t, buf.String())
}

func TestDisassemble(t *testing.T) {
	bus := newTestBus()
	bus.poke(0x2000, 0x10, 0x8B, 0x46, 0x02, 0xCD, 0x21)

	text, b := Disassemble(bus, 0x2000, 0x10)
	assert.Equal(t, []byte{0x8B, 0x46, 0x02}, b)
	assert.Contains(t, text, "bp")

	text, b = Disassemble(bus, 0x2000, 0x13)
	assert.Equal(t, []byte{0xCD, 0x21}, b)
	assert.Contains(t, text, "int")
}

func TestDisassembleSizePrefixes(t *testing.T) {
	bus := newTestBus()
	// MOV EAX,12345678h ; MOV AL,[EBX] ; MOV AX,[BX]
	bus.poke(0x2000, 0, 0x66, 0xB8, 0x78, 0x56, 0x34, 0x12, 0x67, 0x8A, 0x03, 0x8B, 0x07)

	text, b := Disassemble(bus, 0x2000, 0)
	assert.Len(t, b, 6)
	assert.Contains(t, text, "eax")

	text, b = Disassemble(bus, 0x2000, 6)
	assert.Len(t, b, 3)
	assert.Contains(t, text, "ebx")

	text, b = Disassemble(bus, 0x2000, 9)
	assert.Len(t, b, 2)
	assert.Contains(t, text, "bx")
	assert.NotContains(t, text, "ebx")
}

func TestRegisterDump(t *testing.T) {
	r := Registers{EAX: 0x12345678, CS: 0xF000, IP: 0xFFF0, Flags: flagsReserved | FlagZF | FlagCF}
	out := r.Dump()
	assert.Contains(t, out, "EAX=12345678")
	assert.Contains(t, out, "CS=F000")
	assert.Contains(t, out, "IP=FFF0")
	assert.Contains(t, out, "NV UP DI PL ZR NA PO CY")
}
