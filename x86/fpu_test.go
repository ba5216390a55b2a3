// fpu_test.go - x87 register stack, formats and escape opcodes
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fpuOn = Config{FPUEnabled: true}

func TestFPUResetState(t *testing.T) {
	f := NewFPU()
	assert.Equal(t, uint16(0x037F), f.FCW)
	assert.Equal(t, uint16(0), f.FSW)
	assert.Equal(t, uint16(0xFFFF), f.FTW)
	for i := range 8 {
		assert.True(t, f.Empty(i))
	}
}

func TestFPUCompareAndStoreStatus(t *testing.T) {
	// FLD1 ; FLDZ ; FCOMPP ; FNSTSW AX
	c, _ := newTestCPU(t, []byte{0xD9, 0xE8, 0xD9, 0xEE, 0xDE, 0xD9, 0xDF, 0xE0}, fpuOn)
	steps(t, c, 2)
	assert.Equal(t, 0.0, c.FPU().ST(0))
	assert.Equal(t, 1.0, c.FPU().ST(1))
	steps(t, c, 2)
	assert.Equal(t, FSW_C0, c.AX())
	assert.True(t, c.FPU().Empty(0))
}

func TestFPUMemoryArithmetic(t *testing.T) {
	c, bus := newTestCPU(t, []byte{
		0xD9, 0x06, 0x00, 0x02, // FLD DWORD [0200]
		0xD8, 0x06, 0x04, 0x02, // FADD DWORD [0204]
		0xDD, 0x1E, 0x08, 0x02, // FSTP QWORD [0208]
	}, fpuOn)
	bus.Write32(physical(testDS, 0x200), math.Float32bits(1.5))
	bus.Write32(physical(testDS, 0x204), math.Float32bits(2.25))
	steps(t, c, 3)
	got := math.Float64frombits(uint64(bus.Read32(physical(testDS, 0x208))) |
		uint64(bus.Read32(physical(testDS, 0x20C)))<<32)
	assert.Equal(t, 3.75, got)
	assert.True(t, c.FPU().Empty(0))
	assert.Equal(t, uint16(testDS), c.FPU().FDS)
	assert.Equal(t, uint32(0x208), c.FPU().FDP)
	assert.Equal(t, uint32(8), c.FPU().FIP)
}

func TestFPUIntegerLoadStore(t *testing.T) {
	c, bus := newTestCPU(t, []byte{
		0xDF, 0x06, 0x10, 0x02, // FILD WORD [0210]
		0xDA, 0x0E, 0x14, 0x02, // FIMUL DWORD [0214]
		0xDF, 0x1E, 0x18, 0x02, // FISTP WORD [0218]
	}, fpuOn)
	bus.Write16(physical(testDS, 0x210), 0xFFFB) // -5
	bus.Write32(physical(testDS, 0x214), 3)
	steps(t, c, 3)
	assert.Equal(t, uint16(0xFFF1), bus.peek16(testDS, 0x218))
}

func TestFPUDivideByZero(t *testing.T) {
	// FLD1 ; FLDZ ; FDIVP ST(1),ST
	c, _ := newTestCPU(t, []byte{0xD9, 0xE8, 0xD9, 0xEE, 0xDE, 0xF9}, fpuOn)
	steps(t, c, 3)
	f := c.FPU()
	assert.True(t, math.IsInf(f.ST(0), 1))
	assert.NotZero(t, f.FSW&FSW_ZE)
	assert.Zero(t, f.FSW&FSW_ES, "ZE is masked by the reset control word")
	assert.True(t, f.Empty(1))
}

func TestFPUDisabledKeepsInstructionLengths(t *testing.T) {
	code := []byte{
		0xD9, 0xE8, // FLD1
		0xDD, 0x9F, 0x00, 0x03, // FSTP QWORD [BX+0300]
		0xD9, 0x06, 0x00, 0x02, // FLD DWORD [0200]
		0x67, 0xDC, 0x44, 0x24, 0x08, // FADD QWORD [ESP+8]
		0xDB, 0xE3, // FNINIT
		0x90,
	}
	run := func(cfg Config) ([]uint16, *testBus) {
		c, bus := newTestCPU(t, code, cfg)
		var ips []uint16
		for c.IP < uint16(len(code)) {
			steps(t, c, 1)
			ips = append(ips, c.IP)
		}
		return ips, bus
	}
	on, busOn := run(fpuOn)
	off, busOff := run(Config{})
	assert.Equal(t, on, off)
	assert.NotZero(t, busOn.Read32(physical(testDS, 0x304)))
	assert.Zero(t, busOff.Read32(physical(testDS, 0x304)))
}

func TestFPUStackOverflowAndUnderflow(t *testing.T) {
	f := NewFPU()
	for i := range 8 {
		f.push(float64(i))
	}
	assert.Zero(t, f.FSW&FSW_SF)
	f.push(99)
	assert.NotZero(t, f.FSW&FSW_SF)
	assert.NotZero(t, f.FSW&FSW_C1)
	assert.Equal(t, 7.0, f.ST(0))

	f.Reset()
	assert.True(t, math.IsNaN(f.pop()))
	assert.NotZero(t, f.FSW&FSW_IE)
	assert.Zero(t, f.FSW&FSW_C1)
}

func TestFPURounding(t *testing.T) {
	f := NewFPU()
	tests := []struct {
		rc   uint16
		in   float64
		want float64
	}{
		{0, 2.5, 2},
		{0, 3.5, 4},
		{fcwRCDown, -1.5, -2},
		{fcwRCUp, 1.1, 2},
		{fcwRCChop, -1.9, -1},
	}
	for _, tt := range tests {
		f.FCW = fpuResetFCW&^(3<<fcwRCShift) | tt.rc<<fcwRCShift
		assert.Equal(t, tt.want, f.round(tt.in), "rc=%d in=%v", tt.rc, tt.in)
	}
}

func TestFPUIntegerOverflowIsIndefinite(t *testing.T) {
	f := NewFPU()
	assert.Equal(t, int64(-32768), f.toInt(40000, 16))
	assert.NotZero(t, f.FSW&FSW_IE)
	f.Reset()
	assert.Equal(t, int64(-2), f.toInt(-2, 16))
	assert.Zero(t, f.FSW)
}

func TestFPUExtendedFormat(t *testing.T) {
	bus := newTestBus()
	f := NewFPU()
	for _, v := range []float64{1, -3.25, 1e300, 6.02214076e23, 0, math.Inf(-1)} {
		f.storeExtended(bus, 0x100, v)
		assert.Equal(t, v, f.loadExtended(bus, 0x100), "%v", v)
	}
	f.storeExtended(bus, 0x100, 1)
	assert.Equal(t, uint16(0x3FFF), bus.Read16(0x108))
	assert.Equal(t, uint32(0x80000000), bus.Read32(0x104))

	f.storeExtended(bus, 0x100, math.NaN())
	assert.True(t, math.IsNaN(f.loadExtended(bus, 0x100)))
}

func TestFPUPackedBCD(t *testing.T) {
	bus := newTestBus()
	f := NewFPU()
	f.storeBCD(bus, 0x200, -12345)
	assert.Equal(t, []byte{0x45, 0x23, 0x01, 0x00}, bus.mem[0x200:0x204])
	assert.Equal(t, byte(0x80), bus.Read8(0x209))
	assert.Equal(t, -12345.0, f.loadBCD(bus, 0x200))
}

func TestFPUSaveRestore(t *testing.T) {
	bus := newTestBus()
	f := NewFPU()
	f.push(2)
	f.push(math.Pi)
	f.FCW = 0x027F
	saved := *f

	f.save(bus, 0x400)
	assert.True(t, f.Empty(0), "FSAVE reinitializes")
	assert.Equal(t, uint16(0x037F), f.FCW)

	f.restore(bus, 0x400)
	assert.Equal(t, saved.FCW, f.FCW)
	assert.Equal(t, saved.FSW, f.FSW)
	assert.Equal(t, saved.FTW, f.FTW)
	assert.Equal(t, math.Pi, f.ST(0))
	assert.Equal(t, 2.0, f.ST(1))
}

func TestFPUExamine(t *testing.T) {
	f := NewFPU()
	f.examine()
	assert.Equal(t, FSW_C0|FSW_C3, f.FSW&fpuCondMask, "empty")

	f.push(-1)
	f.examine()
	assert.Equal(t, FSW_C1|FSW_C2, f.FSW&fpuCondMask, "negative normal")

	f.setST(0, 0)
	f.examine()
	assert.Equal(t, FSW_C3, f.FSW&fpuCondMask, "zero")
}

func TestFPUConstantsAndTranscendentals(t *testing.T) {
	// FLDPI ; FSIN ; FLDL2T ; FSQRT ; FXCH
	c, _ := newTestCPU(t, []byte{0xD9, 0xEB, 0xD9, 0xFE, 0xD9, 0xE9, 0xD9, 0xFA, 0xD9, 0xC9}, fpuOn)
	steps(t, c, 2)
	require.False(t, c.FPU().Empty(0))
	assert.InDelta(t, 0, c.FPU().ST(0), 1e-15)
	steps(t, c, 2)
	assert.InDelta(t, math.Sqrt(math.Log2(10)), c.FPU().ST(0), 1e-15)
	steps(t, c, 1)
	assert.InDelta(t, 0, c.FPU().ST(0), 1e-15)
}
