// exec_test.go - Step/Run loop, interrupts, halts and illegal opcodes
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovImmediateFromReset(t *testing.T) {
	c, _ := newTestCPU(t, []byte{0xB8, 0x34, 0x12})
	steps(t, c, 1)
	assert.Equal(t, uint16(0x1234), c.AX())
	assert.Equal(t, uint16(3), c.IP)
	assert.Equal(t, uint32(flagsReserved), c.Flags)
}

func TestMovThenIncByte(t *testing.T) {
	c, _ := newTestCPU(t, []byte{0xB0, 0x05, 0xFE, 0xC0})
	steps(t, c, 2)
	assert.Equal(t, byte(6), c.AL())
	assert.Equal(t, uint16(4), c.IP)
}

func TestRaiseInterruptVectorsThroughIVT(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0x90})
	bus.Write16(0x21*4, 0x2000)
	bus.Write16(0x21*4+2, 0x1000)
	bus.poke(0x1000, 0x2000, 0x90)
	c.IP = 0x0100
	c.SetFlag(FlagIF|FlagTF|FlagCF, true)
	oldFlags := c.PackedFlags()

	c.RaiseInterrupt(0x21)
	steps(t, c, 1)

	assert.Equal(t, uint16(testSP-6), c.SP())
	assert.False(t, c.Flag(FlagIF))
	assert.False(t, c.Flag(FlagTF))
	assert.True(t, c.Flag(FlagCF))
	assert.Equal(t, uint16(0x1000), c.CS)
	assert.Equal(t, uint16(0x2001), c.IP, "handler's first instruction ran")

	assert.Equal(t, uint16(0x0100), bus.peek16(testSS, testSP-6))
	assert.Equal(t, uint16(testCS), bus.peek16(testSS, testSP-4))
	assert.Equal(t, uint16(oldFlags), bus.peek16(testSS, testSP-2))
}

func TestPushSignExtendedByte(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0x6A, 0xFF})
	steps(t, c, 1)
	assert.Equal(t, uint16(testSP-2), c.SP())
	assert.Equal(t, uint16(0xFFFF), bus.peek16(testSS, testSP-2))
}

func TestMaskableInterruptWaitsForIF(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0x90, 0xFB, 0x90})
	bus.Write16(0x08*4, 0x0000)
	bus.Write16(0x08*4+2, 0x5000)
	bus.poke(0x5000, 0, 0x90)

	c.RaiseInterrupt(0x08)
	steps(t, c, 2) // NOP, STI
	assert.Equal(t, uint16(testCS), c.CS)
	assert.True(t, c.Flag(FlagIF))

	steps(t, c, 1)
	assert.Equal(t, uint16(0x5000), c.CS)
}

func TestDivideAndNMIIgnoreIF(t *testing.T) {
	for _, vec := range []byte{0, 2} {
		c, bus := newTestCPU(t, []byte{0x90})
		bus.Write16(uint32(vec)*4+2, 0x6000)
		c.RaiseInterrupt(vec)
		steps(t, c, 1)
		assert.Equal(t, uint16(0x6000), c.CS, "vector %d", vec)
	}
}

func TestInterruptNotTakenAfterPrefix(t *testing.T) {
	// ES: MOV AL,[BX]
	c, bus := newTestCPU(t, []byte{0x26, 0x8A, 0x07, 0x90})
	bus.Write16(0x21*4+2, 0x7000)
	bus.poke(testES, 0, 0x5A)
	c.SetFlag(FlagIF, true)

	steps(t, c, 1)
	c.RaiseInterrupt(0x21)
	steps(t, c, 1)
	assert.Equal(t, byte(0x5A), c.AL())
	assert.Equal(t, uint16(testCS), c.CS)

	steps(t, c, 1)
	assert.Equal(t, uint16(0x7000), c.CS)
}

func TestIntInstructionAndIret(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xCD, 0x30, 0xB0, 0x01})
	bus.Write16(0x30*4, 0x0010)
	bus.Write16(0x30*4+2, 0x5000)
	bus.poke(0x5000, 0x0010, 0xB4, 0x77, 0xCF) // MOV AH,77 ; IRET
	c.SetFlag(FlagIF, true)

	steps(t, c, 1)
	assert.Equal(t, uint16(0x5000), c.CS)
	assert.Equal(t, uint16(0x0010), c.IP)
	assert.False(t, c.Flag(FlagIF))

	steps(t, c, 3)
	assert.Equal(t, uint16(testCS), c.CS)
	assert.Equal(t, uint16(4), c.IP)
	assert.Equal(t, uint16(0x7701), c.AX())
	assert.True(t, c.Flag(FlagIF))
	assert.Equal(t, uint16(testSP), c.SP())
}

func TestInterruptHookReplacesIVT(t *testing.T) {
	c, _ := newTestCPU(t, []byte{0xCD, 0x10, 0x90})
	var got []byte
	c.SetHook(0x10, func(cpu *CPU, vector byte) {
		got = append(got, vector)
		cpu.SetAX(0xBEEF)
	})

	steps(t, c, 1)
	assert.Equal(t, []byte{0x10}, got)
	assert.Equal(t, uint16(0xBEEF), c.AX())
	assert.Equal(t, uint16(2), c.IP)
	assert.Equal(t, uint16(testSP), c.SP())

	c.SetHook(0x10, nil)
	c.IP = 0
	steps(t, c, 1)
	assert.Equal(t, uint16(testSP-6), c.SP())
}

func TestIntoOnlyWithOverflow(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xCE, 0xCE})
	bus.Write16(4*4+2, 0x6000)
	steps(t, c, 1)
	assert.Equal(t, uint16(testCS), c.CS)

	c.SetFlag(FlagOF, true)
	steps(t, c, 1)
	assert.Equal(t, uint16(0x6000), c.CS)
}

func TestDivideByZeroVectorsToZero(t *testing.T) {
	// DIV BL with BL = 0
	c, bus := newTestCPU(t, []byte{0xF6, 0xF3, 0x90})
	bus.Write16(0, 0x0040)
	bus.Write16(2, 0x6000)
	bus.poke(0x6000, 0x0040, 0x90)
	c.SetAX(0x1234)

	steps(t, c, 1)
	assert.Equal(t, uint16(0x1234), c.AX())
	assert.Equal(t, uint16(2), c.IP)

	steps(t, c, 1)
	assert.Equal(t, uint16(0x6000), c.CS)
	assert.Equal(t, uint16(0x0041), c.IP)
}

func TestHaltAndResume(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xFB, 0xF4, 0x90})
	bus.Write16(0x08*4+2, 0x5000)

	steps(t, c, 2)
	res := c.Step()
	assert.Equal(t, Halted, res.Status)
	assert.False(t, res.Clean)
	assert.True(t, c.IsHalted())
	assert.Equal(t, uint16(2), c.IP)

	c.RaiseInterrupt(0x08)
	steps(t, c, 1)
	assert.False(t, c.IsHalted())
	assert.Equal(t, uint16(0x5000), c.CS)
}

func TestIllegalOpcodeFaults(t *testing.T) {
	tests := []struct {
		name  string
		code  []byte
		steps int
		want  []byte
	}{
		{"one byte", []byte{0xD6}, 1, []byte{0xD6}},
		{"two byte", []byte{0x0F, 0x0B}, 1, []byte{0x0F, 0x0B}},
		{"with prefix", []byte{0x2E, 0xD6}, 2, []byte{0x2E, 0xD6}},
		{"grp4 reg field", []byte{0xFE, 0xD0}, 1, []byte{0xFE, 0xD0}},
		{"grp5 reg 7", []byte{0xFF, 0xF8}, 1, []byte{0xFF, 0xF8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCPU(t, tt.code)
			var res Result
			for range tt.steps {
				res = c.Step()
			}
			require.Equal(t, Faulted, res.Status)
			assert.True(t, errors.Is(res.Err, ErrIllegalOpcode))

			var ill *IllegalOpcodeError
			require.ErrorAs(t, res.Err, &ill)
			assert.Equal(t, uint16(testCS), ill.CS)
			assert.Equal(t, uint16(0), ill.IP)
			assert.Equal(t, tt.want, ill.Bytes)

			// Sticky until cleared
			assert.Equal(t, Faulted, c.Step().Status)
			c.ClearFault()
			c.IP = 0
			c.SetSP(0)
			for range tt.steps {
				c.Step()
			}
			assert.Equal(t, Halted, c.Step().Status)
		})
	}
}

func TestIllegalOpcodeWithZeroStackIsCleanHalt(t *testing.T) {
	c, _ := newTestCPU(t, []byte{0xD6})
	c.SetSP(0)
	res := runToHalt(t, c)
	assert.True(t, res.Clean)
	assert.NoError(t, res.Err)
}

func TestCleanHaltSurvivesPendingInterrupt(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xD6, 0x90, 0x90})
	bus.poke(0, 8*4, 0x00, 0x00, 0x00, 0x50)
	bus.poke(0x5000, 0, 0x90, 0x90)
	c.SetSP(0)
	c.SetFlag(FlagIF, true)

	res := c.Step()
	assert.Equal(t, Halted, res.Status, "the illegal opcode step reports the halt")
	assert.True(t, res.Clean)

	c.RaiseInterrupt(8)
	for range 3 {
		res = c.Step()
		assert.Equal(t, Halted, res.Status)
		assert.True(t, res.Clean)
	}
	assert.Equal(t, uint16(testCS), c.CS)
	assert.Equal(t, uint16(1), c.IP)
	assert.Equal(t, uint16(0), c.SP())

	c.Reset()
	assert.False(t, c.IsHalted())
}

func TestRunUntilHalt(t *testing.T) {
	// MOV CX,3 ; L: INC AX ; LOOP L ; HLT
	c, _ := newTestCPU(t, []byte{0xB9, 0x03, 0x00, 0x40, 0xE2, 0xFD, 0xF4})
	res := runToHalt(t, c)
	assert.False(t, res.Clean)
	assert.Equal(t, uint16(3), c.AX())
	assert.Equal(t, uint16(0), c.CX())
	assert.Equal(t, uint64(8), c.Cycles)
}

func TestRunSingleStep(t *testing.T) {
	c, _ := newTestCPU(t, []byte{0x40, 0x40, 0xF4}, Config{SingleStep: true})
	res := c.Run(context.Background())
	assert.Equal(t, Running, res.Status)
	assert.Equal(t, uint16(1), c.AX())
	assert.Equal(t, uint64(1), c.Cycles)
}

func TestRunRequestExit(t *testing.T) {
	c, _ := newTestCPU(t, []byte{0xEB, 0xFE}) // JMP $
	c.RequestExit()
	res := c.Run(context.Background())
	assert.Equal(t, Running, res.Status)
	assert.Equal(t, uint64(0), c.Cycles)

	// The request is consumed.
	c.SetHook(0x03, func(cpu *CPU, _ byte) { cpu.RequestExit() })
	c.mem.Write8(physical(testCS, 0), 0xCC) // INT3
	res = c.Run(context.Background())
	assert.Equal(t, Running, res.Status)
	assert.Equal(t, uint64(1), c.Cycles)
}

func TestRunContextCancel(t *testing.T) {
	c, _ := newTestCPU(t, []byte{0xEB, 0xFE})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case res := <-done:
		assert.Equal(t, Running, res.Status)
		assert.Equal(t, uint16(0), c.IP)
		assert.NotZero(t, c.Cycles)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "halted", Halted.String())
	assert.Equal(t, "faulted", Faulted.String())
	assert.Equal(t, "Status(9)", Status(9).String())
}

func TestSeparateCPUsShareNothing(t *testing.T) {
	a, _ := newTestCPU(t, []byte{0x40})
	b, _ := newTestCPU(t, []byte{0x48})
	steps(t, a, 1)
	steps(t, b, 1)
	assert.Equal(t, uint16(1), a.AX())
	assert.Equal(t, uint16(0xFFFF), b.AX())
}
