// vbe_test.go - VESA BIOS Extensions client
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package bios

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intuitionamiga/x86emu/x86"
)

// vbeCard answers INT 10h function 4Fh the way a VBE 3.0 video BIOS does.
type vbeCard struct {
	m       *Machine
	mode    uint16
	bank    [2]uint16
	power   byte
	clock   uint32
	palette [256]uint32
}

func newVBECard(t *testing.T) (*Machine, *vbeCard) {
	t.Helper()
	m := newTestMachine(t)
	card := &vbeCard{m: m, mode: 0x0003}
	m.CPU.SetHook(0x10, card.int10)
	return m, card
}

func (v *vbeCard) int10(c *x86.CPU, _ byte) {
	mem := v.m.Mem
	buf := linear(c.ES, uint32(c.DI()))
	far := func(off uint16) uint32 { return uint32(c.ES)<<16 | uint32(c.DI()+off) }
	ok := func() { c.SetAX(0x004F) }

	switch c.AX() {
	case 0x4F00:
		if string(mem.Slice(buf, 4)) != "VBE2" {
			c.SetAX(0x014F)
			return
		}
		mem.Load(buf, []byte("VESA"))
		mem.Write16(buf+4, 0x0300)
		mem.Write32(buf+6, far(0x100))
		mem.Write32(buf+10, 0x00000001)
		mem.Write32(buf+14, far(0x120))
		mem.Write16(buf+18, 256)
		mem.Write16(buf+20, 0x0102)
		mem.Write32(buf+22, far(0x140))
		mem.Write32(buf+26, far(0x150))
		mem.Write32(buf+30, 0)
		mem.Load(buf+0x100, []byte("Test VGA BIOS\x00"))
		for i, mode := range []uint16{0x0100, 0x0101, 0x0112, 0xFFFF} {
			mem.Write16(buf+0x120+uint32(i)*2, mode)
		}
		mem.Load(buf+0x140, []byte("Vendor\x00"))
		mem.Load(buf+0x150, []byte("Product\x00"))
		ok()
	case 0x4F01:
		if c.CX() != 0x0101 {
			c.SetAX(0x014F)
			return
		}
		mem.Write16(buf, ModeSupported|ModeColour|ModeGraphics|ModeLinearFrame)
		mem.Write16(buf+4, 64)
		mem.Write16(buf+8, 0xA000)
		mem.Write16(buf+16, 640)
		mem.Write16(buf+18, 640)
		mem.Write16(buf+20, 480)
		mem.Write8(buf+25, 8)
		mem.Write8(buf+27, 4)
		mem.Write32(buf+40, 0xE0000000)
		mem.Write16(buf+50, 640)
		mem.Write32(buf+62, 135000000)
		ok()
	case 0x4F02:
		v.mode = c.BX() &^ (1 << 11)
		if c.BX()&(1<<11) != 0 {
			v.clock = mem.Read32(buf + 13)
		}
		ok()
	case 0x4F03:
		c.SetBX(v.mode)
		ok()
	case 0x4F05:
		if c.BH() != 0 || c.BL() > 1 {
			c.SetAX(0x014F)
			return
		}
		v.bank[c.BL()] = c.DX()
		ok()
	case 0x4F09:
		first, n := int(c.DX()), int(c.CX())
		for i := range n {
			addr := buf + uint32(i)*4
			if c.BL() == 0 {
				v.palette[first+i] = mem.Read32(addr)
			} else {
				mem.Write32(addr, v.palette[first+i])
			}
		}
		ok()
	case 0x4F10:
		if c.BH() == byte(DPMSSuspend) {
			c.SetAX(0x024F)
			return
		}
		v.power = c.BH()
		ok()
	case 0x4F15:
		switch c.BL() {
		case 0:
			c.SetBX(0x0102)
		case 1:
			mem.Load(buf, edidHeader)
			mem.Write16(buf+8, 0x1C4C)
		}
		ok()
	}
}

func TestVBEInfo(t *testing.T) {
	m, _ := newVBECard(t)
	info, err := NewVBE(m).Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "VESA", info.Signature)
	assert.Equal(t, uint16(0x0300), info.Version)
	assert.Equal(t, "Test VGA BIOS", info.OEM)
	assert.Equal(t, uint32(1), info.Capabilities)
	assert.Equal(t, []uint16{0x0100, 0x0101, 0x0112}, info.Modes)
	assert.Equal(t, uint16(256), info.TotalMemory)
	assert.Equal(t, uint16(0x0102), info.SoftwareRev)
	assert.Equal(t, "Vendor", info.Vendor)
	assert.Equal(t, "Product", info.Product)
	assert.Empty(t, info.ProductRev, "null pointer")
}

func TestVBEModeInfo(t *testing.T) {
	m, _ := newVBECard(t)
	vbe := NewVBE(m)
	mi, err := vbe.ModeInfo(context.Background(), 0x0101)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x99), mi.Attributes)
	assert.Equal(t, uint16(64), mi.WinGranularity)
	assert.Equal(t, uint16(0xA000), mi.WinASegment)
	assert.Equal(t, uint16(640), mi.BytesPerScanLine)
	assert.Equal(t, uint16(640), mi.XResolution)
	assert.Equal(t, uint16(480), mi.YResolution)
	assert.Equal(t, uint8(8), mi.BitsPerPixel)
	assert.Equal(t, uint8(4), mi.MemoryModel)
	assert.Equal(t, uint32(0xE0000000), mi.PhysBasePtr)
	assert.Equal(t, uint16(640), mi.LinBytesPerScanLine)
	assert.Equal(t, uint32(135000000), mi.MaxPixelClock)

	_, err = vbe.ModeInfo(context.Background(), 0x0199)
	var verr *VBEError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint16(0x4F01), verr.Func)
	assert.ErrorIs(t, err, ErrVBEFailed)
}

func TestVBESetAndGetMode(t *testing.T) {
	m, card := newVBECard(t)
	vbe := NewVBE(m)
	ctx := context.Background()

	require.NoError(t, vbe.SetMode(ctx, 0x4101, nil))
	mode, err := vbe.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4101), mode)

	require.NoError(t, vbe.SetMode(ctx, 0x0112, &CRTCInfo{HorizontalTotal: 800, PixelClock: 25175000, RefreshRate: 6000}))
	assert.Equal(t, uint16(0x0112), card.mode)
	assert.Equal(t, uint32(25175000), card.clock)
}

func TestVBEBankAndPalette(t *testing.T) {
	m, card := newVBECard(t)
	vbe := NewVBE(m)
	ctx := context.Background()

	require.NoError(t, vbe.SetBank(ctx, 1, 7))
	assert.Equal(t, uint16(7), card.bank[1])
	assert.ErrorIs(t, vbe.SetBank(ctx, 2, 0), ErrVBEFailed)

	require.NoError(t, vbe.SetPalette(ctx, 16, []uint32{0x003F0000, 0x00003F00}))
	assert.Equal(t, uint32(0x003F0000), card.palette[16])
	card.palette[18] = 0x0000003F

	pal, err := vbe.Palette(ctx, 16, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x003F0000, 0x00003F00, 0x0000003F}, pal)

	_, err = vbe.Palette(ctx, 250, 10)
	assert.Error(t, err)
	assert.Error(t, vbe.SetPalette(ctx, 0, nil))
}

func TestVBEPowerAndDDC(t *testing.T) {
	m, card := newVBECard(t)
	vbe := NewVBE(m)
	ctx := context.Background()

	require.NoError(t, vbe.DPMS(ctx, DPMSOff))
	assert.Equal(t, byte(DPMSOff), card.power)
	assert.ErrorIs(t, vbe.DPMS(ctx, DPMSSuspend), ErrVBEHardware)

	ddc, err := vbe.DDC(ctx)
	require.NoError(t, err)
	assert.Equal(t, DDCInfo{Level: 2, Seconds: 1}, ddc)

	edid, err := vbe.ReadEDID(ctx)
	require.NoError(t, err)
	require.Len(t, edid, EDIDSize)
	assert.True(t, bytes.HasPrefix(edid, edidHeader))
	assert.Equal(t, uint16(0x1C4C), binary.LittleEndian.Uint16(edid[8:]))
}

func TestVBEUnsupported(t *testing.T) {
	m := newTestMachine(t)
	vbe := NewVBE(m)
	// the fallback video services leave function 4Fh alone
	_, err := vbe.Info(context.Background())
	assert.ErrorIs(t, err, ErrVBEUnsupported)
	_, err = vbe.DDC(context.Background())
	assert.ErrorIs(t, err, ErrVBEUnsupported)
}

func TestVBEFromROM(t *testing.T) {
	m := newTestMachine(t)
	// MOV AX,004F ; MOV BX,0101 ; IRET
	require.NoError(t, m.LoadROM(VideoROMSeg, testROM(nil, []byte{0xB8, 0x4F, 0x00, 0xBB, 0x01, 0x01, 0xCF})))
	m.SetVector(0x10, VideoROMSeg, 0x10)
	mode, err := NewVBE(m).Mode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0101), mode)
}

func TestVBECallFailure(t *testing.T) {
	m := newTestMachine(t)
	require.NoError(t, m.LoadROM(VideoROMSeg, testROM(nil, []byte{0xF4})))
	m.SetVector(0x10, VideoROMSeg, 0x10)
	_, err := NewVBE(m).Mode(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedHalt)
	assert.ErrorContains(t, err, "vbe 4F03")
}

func TestVBEErrorStatus(t *testing.T) {
	tests := []struct {
		ax   uint16
		want error
	}{
		{0x4F00, ErrVBEUnsupported},
		{0x0000, ErrVBEUnsupported},
		{0x014F, ErrVBEFailed},
		{0x024F, ErrVBEHardware},
		{0x034F, ErrVBEInvalidMode},
		{0x7F4F, ErrVBEFailed},
	}
	for _, tt := range tests {
		err := &VBEError{Func: 0x4F02, AX: tt.ax}
		assert.ErrorIs(t, err, tt.want, "%04X", tt.ax)
	}
}
