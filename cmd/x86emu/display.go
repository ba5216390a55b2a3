// display.go - Framebuffer conversion shared by the display window
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"errors"
	"image"
	"image/draw"

	"github.com/intuitionamiga/x86emu/bios"
)

// stepsPerFrame is the instruction budget the window runs between frames.
const stepsPerFrame = 50_000

var errNoDisplay = errors.New("built without display support")

// newFrame returns an RGBA buffer the size of the mode 13h screen.
func newFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, bios.VGAWidth, bios.VGAHeight))
}

// renderFrame expands the paletted framebuffer of m into dst.
func renderFrame(dst *image.RGBA, m *bios.Machine) {
	src := m.VGAImage()
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
}
