// int10.go - Primitive INT 10h video services used before a video ROM is initialized
//
// The system BIOS answers INT 10h, 42h and 6Dh itself while the vector
// still points at the default IRET stub. Once an option ROM installs its
// own handler the request is vectored through the IVT instead.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package bios

import (
	"fmt"

	"github.com/intuitionamiga/x86emu/x86"
)

// CRT controller index ports; data, mode and colour registers follow.
const (
	PortCRTCMono   = 0x3B4
	PortCRTCColour = 0x3D4
)

// Video parameter table, pointed to by INT 1Dh
const (
	VideoParmsSeg = 0xF000
	VideoParmsOff = 0xF0A4
)

// BIOS data area offsets
const (
	bdaEquipment   = 0x10
	bdaVideoMode   = 0x49
	bdaColumns     = 0x4A
	bdaPageLength  = 0x4C
	bdaPageStart   = 0x4E
	bdaCursorPos   = 0x50
	bdaCursorEnd   = 0x60
	bdaCursorStart = 0x61
	bdaActivePage  = 0x62
	bdaCRTCPort    = 0x63
	bdaCGAMode     = 0x65
	bdaCGAColour   = 0x66
	bdaLastRow     = 0x84
)

// videoParms is the IBM PC video parameter table: CRTC values for 40x25,
// 80x25, graphics and monochrome, then page lengths, column counts and
// mode register values per mode.
var videoParms = [...]byte{
	0x38, 0x28, 0x2D, 0x0A, 0x1F, 0x06, 0x19, 0x1C, 0x02, 0x07, 0x06, 0x07, 0, 0, 0, 0,
	0x71, 0x50, 0x5A, 0x0A, 0x1F, 0x06, 0x19, 0x1C, 0x02, 0x07, 0x06, 0x07, 0, 0, 0, 0,
	0x38, 0x28, 0x2D, 0x0A, 0x7F, 0x06, 0x64, 0x70, 0x02, 0x01, 0x06, 0x07, 0, 0, 0, 0,
	0x61, 0x50, 0x52, 0x0F, 0x19, 0x06, 0x19, 0x19, 0x02, 0x0D, 0x0B, 0x0C, 0, 0, 0, 0,
	0x00, 0x08, 0x00, 0x10, 0x00, 0x40, 0x00, 0x40,
	40, 40, 80, 80, 40, 40, 80, 80,
	0x2C, 0x28, 0x2D, 0x29, 0x2A, 0x2E, 0x1E, 0x29,
}

// CRTC records what programs write to the 6845 CRT controller ports.
type CRTC struct {
	Base   uint16 // index port last written
	Index  byte
	Regs   [32]byte
	Mode   byte
	Colour byte
}

func (r *CRTC) handler() PortHandler {
	return PortHandler{
		In: func(port uint16, _ int) uint32 {
			switch port & 0xF {
			case 0x4:
				return uint32(r.Index)
			case 0x5:
				return uint32(r.Regs[r.Index&0x1F])
			}
			return 0xFF
		},
		Out: func(port uint16, _ int, v uint32) {
			switch port & 0xF {
			case 0x4:
				r.Base, r.Index = port, byte(v)
			case 0x5:
				r.Regs[r.Index&0x1F] = byte(v)
			case 0x8:
				r.Mode = byte(v)
			case 0x9:
				r.Colour = byte(v)
			}
		},
	}
}

// StartAddress returns the display start held in registers 0Ch and 0Dh.
func (r *CRTC) StartAddress() uint16 {
	return uint16(r.Regs[0x0C])<<8 | uint16(r.Regs[0x0D])
}

// Cursor returns the cursor address held in registers 0Eh and 0Fh.
func (r *CRTC) Cursor() uint16 {
	return uint16(r.Regs[0x0E])<<8 | uint16(r.Regs[0x0F])
}

func (m *Machine) installVideoParms() {
	if err := m.Mem.Load(linear(VideoParmsSeg, VideoParmsOff), videoParms[:]); err != nil {
		panic(err)
	}
	m.SetVector(0x1D, VideoParmsSeg, VideoParmsOff)
}

func (m *Machine) bda8(off uint32) byte       { return m.Mem.Read8(linear(BDASeg, off)) }
func (m *Machine) bda16(off uint32) uint16    { return m.Mem.Read16(linear(BDASeg, off)) }
func (m *Machine) setBDA8(off uint32, v byte) { m.Mem.Write8(linear(BDASeg, off), v) }
func (m *Machine) setBDA16(off uint32, v uint16) {
	m.Mem.Write16(linear(BDASeg, off), v)
}

func (m *Machine) crtc(reg, v byte) {
	port := m.bda16(bdaCRTCPort)
	m.Ports.Out8(port, reg)
	m.Ports.Out8(port+1, v)
}

func (m *Machine) crtcWord(reg byte, v uint16) {
	m.crtc(reg, byte(v>>8))
	m.crtc(reg+1, byte(v))
}

// videoFallback is the hook on INT 10h, 42h and 6Dh.
func (m *Machine) videoFallback(c *x86.CPU, vector byte) {
	if seg, off := m.Vector(vector); seg != IretStubSeg || off != IretStubOff {
		m.vectorIVT(c, vector)
		return
	}
	switch ah := c.AH(); ah {
	case 0x00:
		m.setVideoMode(c)
	case 0x01:
		m.setBDA8(bdaCursorEnd, c.CL())
		m.setBDA8(bdaCursorStart, c.CH())
		m.crtc(0x0A, c.CH())
		m.crtc(0x0B, c.CL())
	case 0x02:
		page := uint32(c.BH() & 7)
		m.setBDA8(bdaCursorPos+page*2, c.DL())
		m.setBDA8(bdaCursorPos+page*2+1, c.DH())
		if byte(page) != m.bda8(bdaActivePage) {
			return
		}
		off := uint16(c.DH())*m.bda16(bdaColumns) + uint16(c.DL())
		m.crtcWord(0x0E, off+m.bda16(bdaPageStart)<<1)
	case 0x03:
		page := uint32(c.BH() & 7)
		c.SetCL(m.bda8(bdaCursorEnd))
		c.SetCH(m.bda8(bdaCursorStart))
		c.SetDL(m.bda8(bdaCursorPos + page*2))
		c.SetDH(m.bda8(bdaCursorPos + page*2 + 1))
	case 0x04:
		c.SetAH(0)
		c.SetBX(0)
		c.SetCX(0)
		c.SetDX(0)
	case 0x05:
		page := c.AL() & 7
		m.setBDA8(bdaActivePage, page)
		start := uint16(page) * m.bda16(bdaPageLength)
		m.setBDA16(bdaPageStart, start)
		start <<= 1
		m.crtcWord(0x0C, start)
		col := uint16(m.bda8(bdaCursorPos + uint32(page)*2))
		row := uint16(m.bda8(bdaCursorPos + uint32(page)*2 + 1))
		m.crtcWord(0x0E, start+row*m.bda16(bdaColumns)+col)
	case 0x08:
		c.SetAX(0)
		m.notImplemented(vector, ah)
	case 0x0B:
		colour := m.bda8(bdaCGAColour)
		if c.BH() == 0 {
			colour = colour&0xE0 | c.BL()&0x1F
		} else {
			colour = colour&0xDF | (c.BL()&1)<<5
		}
		m.setBDA8(bdaCGAColour, colour)
		m.Ports.Out8(m.bda16(bdaCRTCPort)+5, colour)
	case 0x0D:
		c.SetAL(0)
		m.notImplemented(vector, ah)
	case 0x0F:
		c.SetAH(byte(m.bda16(bdaColumns)))
		c.SetAL(m.bda8(bdaVideoMode))
		c.SetBH(m.bda8(bdaActivePage))
	case 0x06, 0x07, 0x09, 0x0A, 0x0C, 0x0E, 0x13:
		m.notImplemented(vector, ah)
	}
}

func (m *Machine) notImplemented(vector, ah byte) {
	m.log.Debug("video service not implemented", "int", fmt.Sprintf("%02X", vector), "ah", fmt.Sprintf("%02X", ah))
}

// setVideoMode programs a CGA or MDA text or graphics mode from the table
// INT 1Dh points at. The adapter comes from the equipment word.
func (m *Machine) setVideoMode(c *x86.CPU) {
	mode := c.AL()
	if mode > 0x13 {
		return
	}
	port := uint16(PortCRTCColour)
	switch m.bda8(bdaEquipment) & 0x30 {
	case 0x30:
		mode, port = 0x07, PortCRTCMono
	case 0x20:
		if mode >= 7 {
			mode = 3
		}
	default:
		if mode >= 7 {
			mode = 1
		}
	}

	seg, off := m.Vector(0x1D)
	table := func(i uint16) uint32 { return linear(seg, uint32(off+i)) }
	regs := uint16(mode>>1) << 4
	colour := byte(0x30)
	if mode == 6 {
		regs -= 0x10
		colour = 0x3F
	}
	cga := m.Mem.Read8(table(0x50 + uint16(mode)))

	m.setBDA8(bdaVideoMode, mode)
	m.setBDA16(bdaColumns, uint16(m.Mem.Read8(table(0x48+uint16(mode)))))
	m.setBDA16(bdaPageLength, m.Mem.Read16(table(0x40+uint16(mode&6))))
	m.setBDA16(bdaPageStart, 0)
	for p := range uint32(8) {
		m.setBDA16(bdaCursorPos+p*2, 0)
	}
	m.setBDA8(bdaCursorEnd, m.Mem.Read8(table(regs+0x0B)))
	m.setBDA8(bdaCursorStart, m.Mem.Read8(table(regs+0x0A)))
	m.setBDA8(bdaActivePage, 0)
	m.setBDA16(bdaCRTCPort, port)
	m.setBDA8(bdaCGAMode, cga)
	m.setBDA8(bdaCGAColour, colour)
	m.setBDA8(bdaLastRow, 25-1)

	m.Ports.Out8(port+4, cga&0x37)
	for i := range uint16(16) {
		m.crtc(byte(i), m.Mem.Read8(table(regs+i)))
	}
	m.Ports.Out8(port+5, colour)
	m.Ports.Out8(port+4, cga)
}
