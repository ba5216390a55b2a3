// vbe.go - VESA BIOS Extensions client over INT 10h function 4Fh
//
// Every call goes through RunInt, so whatever handler sits on INT 10h
// answers it: an option ROM, a Lua hook or a Go hook. Buffers passed in
// ES:DI live in a scratch area below the BIOS call stack.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package bios

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/intuitionamiga/x86emu/x86"
)

// VBE scratch buffer for ES:DI arguments
const (
	VBEBufferSeg  = 0x0800
	vbeBufferSize = 0x800
	vbeStatusOK   = 0x004F
)

var (
	ErrVBEUnsupported  = errors.New("vbe function not supported")
	ErrVBEFailed       = errors.New("vbe function call failed")
	ErrVBEHardware     = errors.New("vbe function not supported in current hardware configuration")
	ErrVBEInvalidMode  = errors.New("vbe function invalid in current video mode")
	ErrVBEBadSignature = errors.New("bad vbe info signature")
)

// VBEError is a VBE call that returned a status other than 004Fh in AX.
type VBEError struct {
	Func uint16 // AX on entry
	AX   uint16 // AX on return
}

func (e *VBEError) Error() string {
	return fmt.Sprintf("vbe %04X: status %04X: %v", e.Func, e.AX, e.Unwrap())
}

func (e *VBEError) Unwrap() error {
	if byte(e.AX) != 0x4F {
		return ErrVBEUnsupported
	}
	switch e.AX >> 8 {
	case 0x02:
		return ErrVBEHardware
	case 0x03:
		return ErrVBEInvalidMode
	}
	return ErrVBEFailed
}

// VBEInfo is the controller information block from function 00h.
type VBEInfo struct {
	Signature    string
	Version      uint16 // BCD, 0300h for VBE 3.0
	OEM          string
	Capabilities uint32
	Modes        []uint16
	TotalMemory  uint16 // 64 KiB blocks

	// VBE 2.0 and later
	SoftwareRev uint16
	Vendor      string
	Product     string
	ProductRev  string
}

// ModeInfo is the mode information block from function 01h.
type ModeInfo struct {
	Attributes       uint16
	WinAAttributes   uint8
	WinBAttributes   uint8
	WinGranularity   uint16
	WinSize          uint16
	WinASegment      uint16
	WinBSegment      uint16
	WinFuncPtr       uint32
	BytesPerScanLine uint16

	XResolution  uint16
	YResolution  uint16
	XCharSize    uint8
	YCharSize    uint8
	Planes       uint8
	BitsPerPixel uint8
	Banks        uint8
	MemoryModel  uint8
	BankSize     uint8
	ImagePages   uint8
	_            uint8

	RedMaskSize         uint8
	RedFieldPosition    uint8
	GreenMaskSize       uint8
	GreenFieldPosition  uint8
	BlueMaskSize        uint8
	BlueFieldPosition   uint8
	RsvdMaskSize        uint8
	RsvdFieldPosition   uint8
	DirectColorModeInfo uint8

	PhysBasePtr         uint32
	OffScreenMemOffset  uint32
	OffScreenMemSize    uint16
	LinBytesPerScanLine uint16
	BnkImagePages       uint8
	LinImagePages       uint8
	_                   [8]uint8
	MaxPixelClock       uint32
}

// Mode attribute bits
const (
	ModeSupported   = 1 << 0
	ModeColour      = 1 << 3
	ModeGraphics    = 1 << 4
	ModeLinearFrame = 1 << 7
)

// CRTCInfo overrides the default refresh timing in a mode set.
type CRTCInfo struct {
	HorizontalTotal uint16
	HSyncStart      uint16
	HSyncEnd        uint16
	VerticalTotal   uint16
	VSyncStart      uint16
	VSyncEnd        uint16
	Flags           uint8
	PixelClock      uint32 // Hz
	RefreshRate     uint16 // 0.01 Hz
	_               [40]uint8
}

// DPMSState is a display power state for function 10h.
type DPMSState byte

const (
	DPMSOn      DPMSState = 0x00
	DPMSStandby DPMSState = 0x01
	DPMSSuspend DPMSState = 0x02
	DPMSOff     DPMSState = 0x04
)

// DDCInfo is the DDC capability report from function 15h.
type DDCInfo struct {
	Level   byte // bit 0 DDC1, bit 1 DDC2
	Blank   bool // screen blanked during transfer
	Seconds byte // approximate time per EDID block
}

// EDIDSize is the length of one EDID block.
const EDIDSize = 128

var edidHeader = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// VBE calls VESA BIOS Extensions services on a Machine.
type VBE struct {
	m *Machine
}

// NewVBE returns a VBE client for m.
func NewVBE(m *Machine) *VBE {
	return &VBE{m: m}
}

func (v *VBE) buffer(n int) []byte {
	b := v.m.Mem.Slice(linear(VBEBufferSeg, 0), n)
	clear(b)
	return b
}

func (v *VBE) call(ctx context.Context, in x86.Registers) (x86.Registers, error) {
	fn := in.AX()
	out, err := v.m.RunInt(ctx, 0x10, in)
	if err != nil {
		return out, fmt.Errorf("vbe %04X: %w", fn, err)
	}
	if out.AX() != vbeStatusOK {
		return out, &VBEError{Func: fn, AX: out.AX()}
	}
	return out, nil
}

func bufferCall(ax uint16) x86.Registers {
	var in x86.Registers
	in.SetAX(ax)
	in.ES = VBEBufferSeg
	in.SetDI(0)
	return in
}

// farString reads the NUL terminated string a real-mode far pointer
// addresses. A null pointer reads as "".
func (m *Machine) farString(ptr uint32) string {
	if ptr == 0 {
		return ""
	}
	b := m.Mem.Slice(linear(uint16(ptr>>16), uint32(uint16(ptr))), 256)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Info calls function 00h and decodes the controller information block.
func (v *VBE) Info(ctx context.Context) (*VBEInfo, error) {
	b := v.buffer(512)
	copy(b, "VBE2")
	if _, err := v.call(ctx, bufferCall(0x4F00)); err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	info := &VBEInfo{
		Signature:    string(b[0:4]),
		Version:      le.Uint16(b[4:]),
		OEM:          v.m.farString(le.Uint32(b[6:])),
		Capabilities: le.Uint32(b[10:]),
		TotalMemory:  le.Uint16(b[18:]),
	}
	if info.Signature != "VESA" {
		return info, fmt.Errorf("%q: %w", info.Signature, ErrVBEBadSignature)
	}
	if ptr := le.Uint32(b[14:]); ptr != 0 {
		addr := linear(uint16(ptr>>16), uint32(uint16(ptr)))
		for i := range uint32(256) {
			mode := v.m.Mem.Read16(addr + i*2)
			if mode == 0xFFFF {
				break
			}
			info.Modes = append(info.Modes, mode)
		}
	}
	if info.Version >= 0x0200 {
		info.SoftwareRev = le.Uint16(b[20:])
		info.Vendor = v.m.farString(le.Uint32(b[22:]))
		info.Product = v.m.farString(le.Uint32(b[26:]))
		info.ProductRev = v.m.farString(le.Uint32(b[30:]))
	}
	v.m.log.Debug("vbe info", "version", fmt.Sprintf("%04X", info.Version), "oem", info.OEM, "modes", len(info.Modes))
	return info, nil
}

// ModeInfo calls function 01h for mode.
func (v *VBE) ModeInfo(ctx context.Context, mode uint16) (*ModeInfo, error) {
	b := v.buffer(256)
	in := bufferCall(0x4F01)
	in.SetCX(mode)
	if _, err := v.call(ctx, in); err != nil {
		return nil, err
	}
	mi := &ModeInfo{}
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, mi); err != nil {
		return nil, fmt.Errorf("decode mode %03X info: %w", mode, err)
	}
	return mi, nil
}

// SetMode calls function 02h. A non-nil crtc selects its refresh timing.
func (v *VBE) SetMode(ctx context.Context, mode uint16, crtc *CRTCInfo) error {
	in := bufferCall(0x4F02)
	in.SetBX(mode)
	if crtc != nil {
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, crtc); err != nil {
			return err
		}
		copy(v.buffer(buf.Len()), buf.Bytes())
		in.SetBX(mode | 1<<11)
	}
	_, err := v.call(ctx, in)
	return err
}

// Mode calls function 03h and returns the current mode.
func (v *VBE) Mode(ctx context.Context) (uint16, error) {
	var in x86.Registers
	in.SetAX(0x4F03)
	out, err := v.call(ctx, in)
	return out.BX(), err
}

// SetBank calls function 05h to position window 0 or 1.
func (v *VBE) SetBank(ctx context.Context, window byte, bank uint16) error {
	var in x86.Registers
	in.SetAX(0x4F05)
	in.SetBX(uint16(window))
	in.SetDX(bank)
	_, err := v.call(ctx, in)
	return err
}

// Palette calls function 09h to read count entries starting at first.
// Entries are packed as blue, green, red and alignment bytes.
func (v *VBE) Palette(ctx context.Context, first, count int) ([]uint32, error) {
	if first < 0 || count <= 0 || first+count > 256 {
		return nil, fmt.Errorf("palette range %d+%d out of 0-255", first, count)
	}
	b := v.buffer(count * 4)
	in := bufferCall(0x4F09)
	in.SetBX(0x0001)
	in.SetCX(uint16(count))
	in.SetDX(uint16(first))
	if _, err := v.call(ctx, in); err != nil {
		return nil, err
	}
	entries := make([]uint32, count)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return entries, nil
}

// SetPalette calls function 09h to load entries starting at first.
func (v *VBE) SetPalette(ctx context.Context, first int, entries []uint32) error {
	if first < 0 || len(entries) == 0 || first+len(entries) > 256 {
		return fmt.Errorf("palette range %d+%d out of 0-255", first, len(entries))
	}
	b := v.buffer(len(entries) * 4)
	for i, e := range entries {
		binary.LittleEndian.PutUint32(b[i*4:], e)
	}
	in := bufferCall(0x4F09)
	in.SetBX(0x0000)
	in.SetCX(uint16(len(entries)))
	in.SetDX(uint16(first))
	_, err := v.call(ctx, in)
	return err
}

// DPMS calls function 10h to set the display power state.
func (v *VBE) DPMS(ctx context.Context, state DPMSState) error {
	var in x86.Registers
	in.SetAX(0x4F10)
	in.SetBX(uint16(state)<<8 | 0x01)
	_, err := v.call(ctx, in)
	return err
}

// DDC calls function 15h subfunction 00h to report DDC support.
func (v *VBE) DDC(ctx context.Context) (DDCInfo, error) {
	var in x86.Registers
	in.SetAX(0x4F15)
	out, err := v.call(ctx, in)
	if err != nil {
		return DDCInfo{}, err
	}
	return DDCInfo{
		Level:   out.BL() & 3,
		Blank:   out.BL()&4 != 0,
		Seconds: out.BH(),
	}, nil
}

// ReadEDID calls function 15h subfunction 01h for the monitor's first
// EDID block.
func (v *VBE) ReadEDID(ctx context.Context) ([]byte, error) {
	b := v.buffer(EDIDSize)
	in := bufferCall(0x4F15)
	in.SetBX(0x0001)
	if _, err := v.call(ctx, in); err != nil {
		return nil, err
	}
	edid := bytes.Clone(b)
	if !bytes.HasPrefix(edid, edidHeader) {
		v.m.log.Warn("edid block without header", "head", fmt.Sprintf("% 02X", edid[:8]))
	}
	return edid, nil
}
