// string_test.go - String instructions and repeat prefixes
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepMovsb(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xF3, 0xA4})
	copy(bus.mem[physical(testDS, 0):], "abcd")
	c.SetCX(4)
	c.SetDI(0x10)
	steps(t, c, 2)
	assert.Equal(t, "abcd", string(bus.mem[physical(testES, 0x10):physical(testES, 0x14)]))
	assert.Equal(t, uint16(0), c.CX())
	assert.Equal(t, uint16(4), c.SI())
	assert.Equal(t, uint16(0x14), c.DI())
	assert.Equal(t, uint16(2), c.IP)
}

func TestRepWithZeroCount(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xF3, 0xAA})
	c.SetAL(0xFF)
	steps(t, c, 2)
	assert.Equal(t, byte(0), bus.Read8(physical(testES, 0)))
	assert.Equal(t, uint16(0), c.DI())
}

func TestMovsWithoutRepRunsOnce(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xA5})
	bus.Write16(physical(testDS, 0), 0x1234)
	c.SetCX(10)
	steps(t, c, 1)
	assert.Equal(t, uint16(0x1234), bus.peek16(testES, 0))
	assert.Equal(t, uint16(10), c.CX())
	assert.Equal(t, uint16(2), c.SI())
}

func TestDirectionFlagSteps(t *testing.T) {
	// STD ; LODSW ; LODSB
	c, bus := newTestCPU(t, []byte{0xFD, 0xAD, 0xAC})
	bus.Write16(physical(testDS, 0x20), 0xBEEF)
	bus.Write8(physical(testDS, 0x1E), 0x42)
	c.SetSI(0x20)
	steps(t, c, 2)
	assert.Equal(t, uint16(0xBEEF), c.AX())
	assert.Equal(t, uint16(0x1E), c.SI())
	steps(t, c, 1)
	assert.Equal(t, byte(0x42), c.AL())
	assert.Equal(t, uint16(0x1D), c.SI())
}

func TestRepeCmpsbStopsOnMismatch(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xF3, 0xA6})
	copy(bus.mem[physical(testDS, 0):], "abcX")
	copy(bus.mem[physical(testES, 0):], "abcY")
	c.SetCX(10)
	steps(t, c, 2)
	assert.Equal(t, uint16(6), c.CX())
	assert.False(t, c.Flag(FlagZF))
	assert.Equal(t, uint16(4), c.SI())
	assert.Equal(t, uint16(4), c.DI())
}

func TestRepeCmpsbAllEqual(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xF3, 0xA6})
	copy(bus.mem[physical(testDS, 0):], "same")
	copy(bus.mem[physical(testES, 0):], "same")
	c.SetCX(4)
	steps(t, c, 2)
	assert.Equal(t, uint16(0), c.CX())
	assert.True(t, c.Flag(FlagZF))
}

func TestRepneScasbFindsByte(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xF2, 0xAE})
	copy(bus.mem[physical(testES, 0):], "abcd")
	c.SetAL('c')
	c.SetCX(10)
	steps(t, c, 2)
	assert.Equal(t, uint16(7), c.CX())
	assert.True(t, c.Flag(FlagZF))
	assert.Equal(t, uint16(3), c.DI())
}

func TestRepStoswAndSegmentOverride(t *testing.T) {
	// REP STOSW ; ES: MOVSB
	c, bus := newTestCPU(t, []byte{0xF3, 0xAB, 0x26, 0xA4})
	c.SetAX(0xA5A5)
	c.SetCX(3)
	steps(t, c, 2)
	for i := range uint16(3) {
		assert.Equal(t, uint16(0xA5A5), bus.peek16(testES, i*2))
	}
	assert.Equal(t, uint16(6), c.DI())

	c.SetSI(0)
	steps(t, c, 2)
	assert.Equal(t, byte(0xA5), bus.Read8(physical(testES, 6)), "source read from ES")
}

func TestAddr32StringIndexes(t *testing.T) {
	// ADDR32 REP MOVSB
	c, bus := newTestCPU(t, []byte{0x67, 0xF3, 0xA4})
	c.ESI = 0x10000
	c.EDI = 0x10000
	c.ECX = 2
	bus.Write16(physical(testDS, 0x10000), 0x3344)
	steps(t, c, 3)
	assert.Equal(t, uint16(0x3344), bus.Read16(physical(testES, 0x10000)))
	assert.Equal(t, uint32(0x10002), c.ESI)
	assert.Equal(t, uint32(0x10002), c.EDI)
	assert.Equal(t, uint32(0), c.ECX)
}

func TestStringPortIO(t *testing.T) {
	// REP OUTSB ; INSB
	c, bus := newTestCPU(t, []byte{0xF3, 0x6E, 0x6C})
	copy(bus.mem[physical(testDS, 0):], "hi")
	c.SetDX(0xE9)
	c.SetCX(2)
	bus.ports[0xE9] = 0x7E
	steps(t, c, 3)
	assert.Equal(t, []portWrite{{0xE9, 'h'}, {0xE9, 'i'}}, bus.outs)
	assert.Equal(t, byte(0x7E), bus.Read8(physical(testES, 0)))
	assert.Equal(t, uint16(1), c.DI())
}
