// vga.go - VGA DAC palette capture and mode 13h framebuffer export
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package bios

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/bmp"
)

// VGA DAC ports
const (
	PortDACReadIndex  = 0x3C7
	PortDACWriteIndex = 0x3C8
	PortDACData       = 0x3C9
)

// Mode 13h framebuffer geometry
const (
	VGAFrameBuffer = 0xA0000
	VGAWidth       = 320
	VGAHeight      = 200
)

// DAC holds the 256-entry palette as 6-bit components.
type DAC struct {
	Palette [256][3]byte

	writeIndex, writePhase byte
	readIndex, readPhase   byte
}

// defaultDAC matches the BIOS power-on palette for the first 16 entries
// and ramps grey above them.
func defaultDAC() *DAC {
	d := &DAC{}
	ega := [16][3]byte{
		{0, 0, 0}, {0, 0, 42}, {0, 42, 0}, {0, 42, 42},
		{42, 0, 0}, {42, 0, 42}, {42, 21, 0}, {42, 42, 42},
		{21, 21, 21}, {21, 21, 63}, {21, 63, 21}, {21, 63, 63},
		{63, 21, 21}, {63, 21, 63}, {63, 63, 21}, {63, 63, 63},
	}
	copy(d.Palette[:], ega[:])
	for i := 16; i < 256; i++ {
		g := byte(i) & 0x3F
		d.Palette[i] = [3]byte{g, g, g}
	}
	return d
}

func (d *DAC) handler() PortHandler {
	return PortHandler{
		In: func(port uint16, _ int) uint32 {
			switch port {
			case PortDACWriteIndex:
				return uint32(d.writeIndex)
			case PortDACData:
				v := d.Palette[d.readIndex][d.readPhase]
				if d.readPhase++; d.readPhase == 3 {
					d.readPhase = 0
					d.readIndex++
				}
				return uint32(v)
			}
			return 0xFF
		},
		Out: func(port uint16, _ int, v uint32) {
			switch port {
			case PortDACReadIndex:
				d.readIndex, d.readPhase = byte(v), 0
			case PortDACWriteIndex:
				d.writeIndex, d.writePhase = byte(v), 0
			case PortDACData:
				d.Palette[d.writeIndex][d.writePhase] = byte(v) & 0x3F
				if d.writePhase++; d.writePhase == 3 {
					d.writePhase = 0
					d.writeIndex++
				}
			}
		},
	}
}

// Color expands entry i to 8 bits per component.
func (d *DAC) Color(i byte) color.RGBA {
	e := d.Palette[i]
	x := func(v byte) byte { return v<<2 | v>>4 }
	return color.RGBA{R: x(e[0]), G: x(e[1]), B: x(e[2]), A: 0xFF}
}

// VGAImage returns the mode 13h framebuffer as a paletted image.
func (m *Machine) VGAImage() *image.Paletted {
	pal := make(color.Palette, 256)
	for i := range pal {
		pal[i] = m.DAC.Color(byte(i))
	}
	img := image.NewPaletted(image.Rect(0, 0, VGAWidth, VGAHeight), pal)
	copy(img.Pix, m.Mem.Slice(VGAFrameBuffer, VGAWidth*VGAHeight))
	return img
}

// DumpVGA writes the mode 13h framebuffer to w as a BMP.
func (m *Machine) DumpVGA(w io.Writer) error {
	if err := bmp.Encode(w, m.VGAImage()); err != nil {
		return fmt.Errorf("encode vga dump: %w", err)
	}
	return nil
}
