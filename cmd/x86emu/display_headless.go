//go:build headless

// display_headless.go - Display stub for builds without a window system
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"context"

	"github.com/intuitionamiga/x86emu/bios"
	"github.com/intuitionamiga/x86emu/x86"
)

func runDisplay(context.Context, *bios.Machine, int) (x86.Result, error) {
	return x86.Result{}, errNoDisplay
}
