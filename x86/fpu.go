// fpu.go - x87 coprocessor state and memory operand formats
//
// The register stack holds float64 values. 80-bit extended and packed BCD
// operands are converted on load and store.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import "math"

var fpuSmallestNormal = math.Float64frombits(0x0010000000000000)

// Tag word values
const (
	fpuTagValid   = uint16(0)
	fpuTagZero    = uint16(1)
	fpuTagSpecial = uint16(2)
	fpuTagEmpty   = uint16(3)
)

// Status word bits
const (
	FSW_IE = uint16(1 << 0)
	FSW_DE = uint16(1 << 1)
	FSW_ZE = uint16(1 << 2)
	FSW_OE = uint16(1 << 3)
	FSW_UE = uint16(1 << 4)
	FSW_PE = uint16(1 << 5)
	FSW_SF = uint16(1 << 6)
	FSW_ES = uint16(1 << 7)
	FSW_C0 = uint16(1 << 8)
	FSW_C1 = uint16(1 << 9)
	FSW_C2 = uint16(1 << 10)
	FSW_C3 = uint16(1 << 14)
)

const (
	fswTopMask  = uint16(7 << 11)
	fswTopShift = 11
	fpuCondMask = FSW_C0 | FSW_C1 | FSW_C2 | FSW_C3

	fcwRCShift = 10
	fcwRCDown  = 1
	fcwRCUp    = 2
	fcwRCChop  = 3

	fpuResetFCW = 0x037F
	fpuAllEmpty = 0xFFFF
	fpuIndefInt = int64(-1) << 63
)

// FPU is the x87 register stack and control state.
type FPU struct {
	regs [8]float64

	FCW uint16
	FSW uint16
	FTW uint16

	FIP uint32
	FCS uint16
	FDP uint32
	FDS uint16
	FOP uint16
}

// NewFPU returns an FPU in its FNINIT state.
func NewFPU() *FPU {
	f := &FPU{}
	f.Reset()
	return f
}

// Reset is FNINIT.
func (f *FPU) Reset() {
	*f = FPU{FCW: fpuResetFCW, FTW: fpuAllEmpty}
}

func (f *FPU) top() int {
	return int((f.FSW & fswTopMask) >> fswTopShift)
}

func (f *FPU) setTop(top int) {
	f.FSW = f.FSW&^fswTopMask | uint16(top&7)<<fswTopShift
}

func (f *FPU) physReg(i int) int {
	return (f.top() + i) & 7
}

// ST returns stack register i.
func (f *FPU) ST(i int) float64 {
	return f.regs[f.physReg(i)]
}

func (f *FPU) setST(i int, v float64) {
	p := f.physReg(i)
	f.regs[p] = v
	f.setTag(p, classifyTag(v))
}

func (f *FPU) tag(phys int) uint16 {
	return (f.FTW >> uint((phys&7)*2)) & 3
}

func (f *FPU) setTag(phys int, tag uint16) {
	shift := uint((phys & 7) * 2)
	f.FTW = f.FTW&^(3<<shift) | (tag&3)<<shift
}

// Empty reports whether stack register i holds no value.
func (f *FPU) Empty(i int) bool {
	return f.tag(f.physReg(i)) == fpuTagEmpty
}

func classifyTag(v float64) uint16 {
	switch {
	case v == 0:
		return fpuTagZero
	case math.IsNaN(v), math.IsInf(v, 0), math.Abs(v) < fpuSmallestNormal:
		return fpuTagSpecial
	default:
		return fpuTagValid
	}
}

func (f *FPU) setException(mask uint16) {
	f.FSW |= mask
	if f.FCW&mask == 0 {
		f.FSW |= FSW_ES
	}
}

// underflow checks that each listed register is occupied and flags a
// stack fault otherwise.
func (f *FPU) underflow(idx ...int) bool {
	for _, i := range idx {
		if f.Empty(i) {
			f.setException(FSW_IE | FSW_SF)
			f.FSW &^= FSW_C1
			return true
		}
	}
	return false
}

func (f *FPU) push(v float64) {
	next := (f.top() - 1) & 7
	if f.tag(next) != fpuTagEmpty {
		f.setException(FSW_IE | FSW_SF)
		f.FSW |= FSW_C1
		return
	}
	f.setTop(next)
	f.regs[next] = v
	f.setTag(next, classifyTag(v))
}

func (f *FPU) pop() float64 {
	if f.underflow(0) {
		return math.NaN()
	}
	t := f.top()
	v := f.regs[t]
	f.setTag(t, fpuTagEmpty)
	f.setTop(t + 1)
	return v
}

func (f *FPU) round(v float64) float64 {
	switch (f.FCW >> fcwRCShift) & 3 {
	case fcwRCDown:
		return math.Floor(v)
	case fcwRCUp:
		return math.Ceil(v)
	case fcwRCChop:
		return math.Trunc(v)
	default:
		return math.RoundToEven(v)
	}
}

// toInt rounds per FCW and returns the integer indefinite value on overflow.
func (f *FPU) toInt(v float64, bits uint) int64 {
	r := f.round(v)
	limit := math.Ldexp(1, int(bits-1))
	if math.IsNaN(r) || r < -limit || r >= limit {
		f.setException(FSW_IE)
		return fpuIndefInt >> (64 - bits)
	}
	if r != v {
		f.setException(FSW_PE)
	}
	return int64(r)
}

func (f *FPU) compare(a, b float64) {
	f.FSW &^= fpuCondMask
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		f.FSW |= FSW_C0 | FSW_C2 | FSW_C3
		f.setException(FSW_IE)
	case a < b:
		f.FSW |= FSW_C0
	case a == b:
		f.FSW |= FSW_C3
	}
}

func (f *FPU) examine() {
	f.FSW &^= fpuCondMask
	if f.Empty(0) {
		f.FSW |= FSW_C0 | FSW_C3
		return
	}
	v := f.ST(0)
	if math.Signbit(v) {
		f.FSW |= FSW_C1
	}
	switch {
	case math.IsNaN(v):
		f.FSW |= FSW_C0
	case math.IsInf(v, 0):
		f.FSW |= FSW_C0 | FSW_C2
	case v == 0:
		f.FSW |= FSW_C3
	case math.Abs(v) < fpuSmallestNormal:
		f.FSW |= FSW_C2 | FSW_C3
	default:
		f.FSW |= FSW_C2
	}
}

// =============================================================================
// Memory formats
// =============================================================================

func read64(m Memory, addr uint32) uint64 {
	return uint64(m.Read32(addr)) | uint64(m.Read32(addr+4))<<32
}

func write64(m Memory, addr uint32, v uint64) {
	m.Write32(addr, uint32(v))
	m.Write32(addr+4, uint32(v>>32))
}

func (f *FPU) loadFloat32(m Memory, addr uint32) float64 {
	return float64(math.Float32frombits(m.Read32(addr)))
}

func (f *FPU) storeFloat32(m Memory, addr uint32, v float64) {
	m.Write32(addr, math.Float32bits(float32(v)))
}

func (f *FPU) loadFloat64(m Memory, addr uint32) float64 {
	return math.Float64frombits(read64(m, addr))
}

func (f *FPU) storeFloat64(m Memory, addr uint32, v float64) {
	write64(m, addr, math.Float64bits(v))
}

func (f *FPU) loadInt(m Memory, addr uint32, w width) float64 {
	switch w {
	case wWord:
		return float64(int16(m.Read16(addr)))
	case wLong:
		return float64(int32(m.Read32(addr)))
	default:
		return float64(int64(read64(m, addr)))
	}
}

func (f *FPU) storeInt(m Memory, addr uint32, w width, v float64) {
	switch w {
	case wWord:
		m.Write16(addr, uint16(f.toInt(v, 16)))
	case wLong:
		m.Write32(addr, uint32(f.toInt(v, 32)))
	default:
		write64(m, addr, uint64(f.toInt(v, 64)))
	}
}

// loadExtended converts an 80-bit extended real (explicit integer bit).
func (f *FPU) loadExtended(m Memory, addr uint32) float64 {
	mant := read64(m, addr)
	se := m.Read16(addr + 8)
	neg := se&0x8000 != 0
	exp := int(se & 0x7FFF)
	var v float64
	switch {
	case exp == 0 && mant == 0:
		v = 0
	case exp == 0x7FFF:
		if mant<<1 == 0 {
			v = math.Inf(1)
		} else {
			v = math.NaN()
		}
	default:
		v = math.Ldexp(float64(mant), exp-16383-63)
	}
	if neg {
		v = math.Copysign(v, -1)
	}
	return v
}

func (f *FPU) storeExtended(m Memory, addr uint32, v float64) {
	var se uint16
	var mant uint64
	if math.Signbit(v) {
		se = 0x8000
		v = -v
	}
	switch {
	case math.IsNaN(v):
		se |= 0x7FFF
		mant = 0xC000000000000000
	case math.IsInf(v, 0):
		se |= 0x7FFF
		mant = 1 << 63
	case v != 0:
		frac, exp := math.Frexp(v)
		mant = uint64(math.Ldexp(frac, 64))
		se |= uint16(exp - 1 + 16383)
	}
	write64(m, addr, mant)
	m.Write16(addr+8, se)
}

// loadBCD reads 18 packed BCD digits and a sign byte.
func (f *FPU) loadBCD(m Memory, addr uint32) float64 {
	var val int64
	for i := 8; i >= 0; i-- {
		b := m.Read8(addr + uint32(i))
		val = val*100 + int64(b>>4)*10 + int64(b&0x0F)
	}
	if m.Read8(addr+9)&0x80 != 0 {
		val = -val
	}
	return float64(val)
}

func (f *FPU) storeBCD(m Memory, addr uint32, v float64) {
	r := int64(f.round(v))
	var sign byte
	if r < 0 {
		sign, r = 0x80, -r
	}
	for i := range 9 {
		lo := byte(r % 10)
		r /= 10
		hi := byte(r % 10)
		r /= 10
		m.Write8(addr+uint32(i), hi<<4|lo)
	}
	m.Write8(addr+9, sign)
}

// 16-bit real-mode environment layout (14 bytes), as FNSTENV writes it
// without the operand-size prefix.
func (f *FPU) storeEnv(m Memory, addr uint32) {
	m.Write16(addr, f.FCW)
	m.Write16(addr+2, f.FSW)
	m.Write16(addr+4, f.FTW)
	m.Write16(addr+6, uint16(f.FIP))
	m.Write16(addr+8, uint16(f.FIP>>4)&0xF000|f.FOP&0x7FF)
	m.Write16(addr+10, uint16(f.FDP))
	m.Write16(addr+12, uint16(f.FDP>>4)&0xF000)
}

func (f *FPU) loadEnv(m Memory, addr uint32) {
	f.FCW = m.Read16(addr)
	f.FSW = m.Read16(addr + 2)
	f.FTW = m.Read16(addr + 4)
	f.FIP = uint32(m.Read16(addr + 6))
	f.FOP = m.Read16(addr+8) & 0x7FF
	f.FDP = uint32(m.Read16(addr + 10))
}

const fpuEnvSize = 14

func (f *FPU) save(m Memory, addr uint32) {
	f.storeEnv(m, addr)
	for i := range 8 {
		f.storeExtended(m, addr+fpuEnvSize+uint32(i*10), f.ST(i))
	}
	f.Reset()
}

func (f *FPU) restore(m Memory, addr uint32) {
	f.loadEnv(m, addr)
	for i := range 8 {
		f.regs[f.physReg(i)] = f.loadExtended(m, addr+fpuEnvSize+uint32(i*10))
	}
}

var fpuConstants = [7]float64{
	1.0,
	math.Log2(10),
	math.Log2E,
	math.Pi,
	math.Log10(2),
	math.Ln2,
	0.0,
}
