//go:build !headless

// display_ebiten.go - Live mode 13h window on ebiten
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"context"
	"fmt"
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/intuitionamiga/x86emu/bios"
	"github.com/intuitionamiga/x86emu/x86"
)

// vgaWindow runs the CPU from the ebiten update loop, so memory is only
// touched on one goroutine.
type vgaWindow struct {
	ctx    context.Context
	m      *bios.Machine
	window *ebiten.Image
	frame  *image.RGBA

	res  x86.Result
	done bool
	err  error
}

func (w *vgaWindow) Update() error {
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	if w.ctx.Err() != nil {
		if !w.done {
			w.err = context.Cause(w.ctx)
		}
		return ebiten.Termination
	}
	if w.done {
		return nil
	}
	for range stepsPerFrame {
		res := w.m.CPU.Step()
		if res.Status == x86.Running {
			continue
		}
		w.res, w.done = res, true
		if res.Status == x86.Faulted {
			w.err = res.Err
		}
		ebiten.SetWindowTitle(fmt.Sprintf("x86emu - stopped at %04X:%04X", w.m.CPU.CS, w.m.CPU.IP))
		break
	}
	return nil
}

func (w *vgaWindow) Draw(screen *ebiten.Image) {
	if w.window == nil {
		w.window = ebiten.NewImage(bios.VGAWidth, bios.VGAHeight)
	}
	renderFrame(w.frame, w.m)
	w.window.WritePixels(w.frame.Pix)
	screen.DrawImage(w.window, nil)
}

func (w *vgaWindow) Layout(_, _ int) (int, int) {
	return bios.VGAWidth, bios.VGAHeight
}

// runDisplay runs m inside a window showing the mode 13h framebuffer until
// the window is closed or ctx ends. The window stays open after the CPU
// stops so the final frame can be inspected.
func runDisplay(ctx context.Context, m *bios.Machine, scale int) (x86.Result, error) {
	w := &vgaWindow{ctx: ctx, m: m, frame: newFrame()}
	ebiten.SetWindowSize(bios.VGAWidth*max(scale, 1), bios.VGAHeight*max(scale, 1))
	ebiten.SetWindowTitle("x86emu")
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)
	if err := ebiten.RunGame(w); err != nil {
		return w.res, fmt.Errorf("display: %w", err)
	}
	return w.res, w.err
}
