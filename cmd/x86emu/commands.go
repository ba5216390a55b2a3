// commands.go - run, int, vbe, debug and config subcommands
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/intuitionamiga/x86emu/bios"
	"github.com/intuitionamiga/x86emu/config"
	"github.com/intuitionamiga/x86emu/log"
	"github.com/intuitionamiga/x86emu/luahook"
	"github.com/intuitionamiga/x86emu/monitor"
	"github.com/intuitionamiga/x86emu/x86"
)

// parseWord reads a 16-bit value written the way the monitor accepts
// addresses.
func parseWord(name, s string) (uint16, error) {
	v, ok := monitor.ParseAddress(s)
	if !ok || v > 0xFFFF {
		return 0, fmt.Errorf("%s: bad 16-bit value %q", name, s)
	}
	return uint16(v), nil
}

// newMachine builds a machine from cfg and installs its Lua hooks. The
// returned close func releases the Lua state.
func newMachine(cfg config.Config, trace io.Writer) (*bios.Machine, func(), error) {
	cpuCfg := x86.Config{
		Trace:      cfg.Trace,
		FPUEnabled: cfg.FPU,
		SingleStep: cfg.SingleStep,
		Logger:     log.Root(),
	}
	if cfg.Trace {
		cpuCfg.TraceFunc = func(r x86.TraceRecord) {
			fmt.Fprintf(trace, "%04X:%04X %-14X %s\n", r.CS, r.IP, r.Bytes, r.Disasm)
		}
	}
	m := bios.New(bios.Options{MemorySize: cfg.MemorySize, CPU: cpuCfg})
	if cfg.LuaScript == "" {
		return m, func() {}, nil
	}
	hooks, err := luahook.Load(cfg.LuaScript, log.Root())
	if err != nil {
		return nil, nil, err
	}
	hooks.Install(m.CPU)
	return m, hooks.Close, nil
}

// boot loads a flat image at LoadSeg:EntryIP and points the CPU at it with
// every data segment on the load segment.
func boot(m *bios.Machine, cfg config.Config, image []byte) error {
	addr := uint32(cfg.LoadSeg)<<4 + uint32(cfg.EntryIP)
	if err := m.Mem.Load(addr, image); err != nil {
		return err
	}
	c := m.CPU
	c.Reset()
	c.CS, c.IP = cfg.LoadSeg, cfg.EntryIP
	c.DS, c.ES = cfg.LoadSeg, cfg.LoadSeg
	c.SS, c.ESP = cfg.StackSeg, uint32(cfg.SP)
	c.SetFlag(x86.FlagIF, true)
	log.Root().Info("image loaded", "bytes", len(image), "at", fmt.Sprintf("%04X:%04X", cfg.LoadSeg, cfg.EntryIP))
	return nil
}

var errTimeout = errors.New("program did not halt in time")

// execute runs c until it halts or faults. A non-zero timeout bounds the
// wall clock time of the run.
func execute(ctx context.Context, c *x86.CPU, timeout time.Duration) (x86.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var res x86.Result
	g.Go(func() error {
		defer cancel()
		for {
			res = c.Run(gctx)
			switch res.Status {
			case x86.Faulted:
				return res.Err
			case x86.Halted:
				return nil
			}
			if err := gctx.Err(); err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		if timeout <= 0 {
			<-gctx.Done()
			return nil
		}
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-gctx.Done():
			return nil
		case <-t.C:
			return fmt.Errorf("%w after %s", errTimeout, timeout)
		}
	})
	return res, g.Wait()
}

type runCmd struct {
	File    string        `arg type:"existingfile" help:"Flat binary image."`
	VGADump string        `name:"vga-dump" help:"Write the mode 13h framebuffer to this BMP on exit."`
	Timeout time.Duration `help:"Stop the run after this long (0 for no limit)."`
	Display bool          `help:"Show the mode 13h framebuffer in a window while the program runs."`
	Scale   int           `default:"2" help:"Window scale factor for --display."`
}

func (r *runCmd) Run(g *CLI) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if r.VGADump != "" {
		cfg.VGADump = r.VGADump
	}
	image, err := os.ReadFile(r.File)
	if err != nil {
		return err
	}
	m, closeHooks, err := newMachine(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer closeHooks()
	if err := boot(m, cfg, image); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	start := time.Now()
	var (
		res    x86.Result
		runErr error
	)
	if r.Display {
		if r.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeoutCause(ctx, r.Timeout, fmt.Errorf("%w after %s", errTimeout, r.Timeout))
			defer cancel()
		}
		res, runErr = runDisplay(ctx, m, r.Scale)
	} else {
		res, runErr = execute(ctx, m.CPU, r.Timeout)
	}
	log.Root().Info("run finished",
		"at", fmt.Sprintf("%04X:%04X", m.CPU.CS, m.CPU.IP),
		"clean", res.Clean,
		"cycles", m.CPU.Cycles,
		"elapsed", time.Since(start).Round(time.Millisecond))
	if runErr != nil {
		fmt.Fprint(os.Stderr, m.CPU.Dump())
	}
	if cfg.VGADump != "" {
		if err := writeVGA(m, cfg.VGADump); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func writeVGA(m *bios.Machine, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.DumpVGA(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// installROM loads the option ROM at path, if any, and runs its
// initialization entry with the PCI slot in AX when init is set.
func installROM(ctx context.Context, m *bios.Machine, path string, init bool, slotFlag string) error {
	if path == "" {
		return nil
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadROM(bios.VideoROMSeg, image); err != nil {
		return err
	}
	if !init {
		return nil
	}
	var slot uint16
	if slotFlag != "" {
		if slot, err = parseWord("slot", slotFlag); err != nil {
			return err
		}
	}
	if _, err := m.InitROM(ctx, bios.VideoROMSeg, slot); err != nil {
		return fmt.Errorf("rom init: %w", err)
	}
	return nil
}

type intCmd struct {
	Vector string `arg help:"Interrupt vector (hex)."`
	ROM    string `name:"rom" type:"existingfile" help:"Option ROM image loaded at C000:0000."`
	Init   bool   `help:"Run the ROM initialization entry before the call."`
	Slot   string `help:"PCI slot passed in AX to the ROM initialization entry (hex)."`

	AX string `name:"ax" default:"0" help:"AX on entry (hex)."`
	BX string `name:"bx" default:"0" help:"BX on entry (hex)."`
	CX string `name:"cx" default:"0" help:"CX on entry (hex)."`
	DX string `name:"dx" default:"0" help:"DX on entry (hex)."`
	ES string `name:"es" default:"0" help:"ES on entry (hex)."`
}

// registers collects the entry registers from the flags.
func (r *intCmd) registers() (x86.Registers, error) {
	var in x86.Registers
	for _, f := range []struct {
		name, val string
		set       func(uint16)
	}{
		{"ax", r.AX, in.SetAX},
		{"bx", r.BX, in.SetBX},
		{"cx", r.CX, in.SetCX},
		{"dx", r.DX, in.SetDX},
		{"es", r.ES, func(v uint16) { in.ES = v }},
	} {
		v, err := parseWord(f.name, f.val)
		if err != nil {
			return in, err
		}
		f.set(v)
	}
	return in, nil
}

func (r *intCmd) Run(g *CLI) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	vector, err := parseWord("vector", r.Vector)
	if err != nil || vector > 0xFF {
		return fmt.Errorf("vector: bad interrupt number %q", r.Vector)
	}
	in, err := r.registers()
	if err != nil {
		return err
	}
	m, closeHooks, err := newMachine(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer closeHooks()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := installROM(ctx, m, r.ROM, r.Init, r.Slot); err != nil {
		return err
	}
	out, err := m.RunInt(ctx, byte(vector), in)
	if err != nil {
		return fmt.Errorf("int %02Xh: %w", vector, err)
	}
	fmt.Print(out.Dump())
	return nil
}

type vbeCmd struct {
	ROM   string `name:"rom" type:"existingfile" help:"Option ROM image loaded at C000:0000."`
	Init  bool   `help:"Run the ROM initialization entry first."`
	Slot  string `help:"PCI slot passed in AX to the ROM initialization entry (hex)."`
	Modes bool   `help:"Also print the mode information block of every listed mode."`
}

func (r *vbeCmd) Run(g *CLI) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	m, closeHooks, err := newMachine(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer closeHooks()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := installROM(ctx, m, r.ROM, r.Init, r.Slot); err != nil {
		return err
	}
	return printVBE(ctx, os.Stdout, bios.NewVBE(m), r.Modes)
}

// printVBE writes the controller information and optionally each mode's
// geometry to w.
func printVBE(ctx context.Context, w io.Writer, vbe *bios.VBE, modes bool) error {
	info, err := vbe.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "VBE %d.%d  %s\n", info.Version>>8, info.Version&0xFF, info.OEM)
	if info.Vendor != "" || info.Product != "" {
		fmt.Fprintf(w, "%s %s %s (rev %04X)\n", info.Vendor, info.Product, info.ProductRev, info.SoftwareRev)
	}
	fmt.Fprintf(w, "memory %d KiB, capabilities %08X, %d modes\n", int(info.TotalMemory)*64, info.Capabilities, len(info.Modes))
	if !modes {
		return nil
	}
	for _, mode := range info.Modes {
		mi, err := vbe.ModeInfo(ctx, mode)
		if err != nil {
			fmt.Fprintf(w, "%03X  %v\n", mode, err)
			continue
		}
		fmt.Fprintf(w, "%03X  %4dx%-4d %2d bpp  attr %04X  lfb %08X\n",
			mode, mi.XResolution, mi.YResolution, mi.BitsPerPixel, mi.Attributes, mi.PhysBasePtr)
	}
	return nil
}

type debugCmd struct {
	File    string `arg type:"existingfile" help:"Flat binary image."`
	History string `help:"Command history file for interactive sessions."`
}

func (d *debugCmd) Run(g *CLI) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if d.History != "" {
		cfg.History = d.History
	}
	image, err := os.ReadFile(d.File)
	if err != nil {
		return err
	}

	var (
		src monitor.CommandSource
		out io.Writer = os.Stdout
	)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		rl, err := monitor.NewReadlineSource("-", cfg.History)
		if err != nil {
			return err
		}
		defer rl.Close()
		src, out = rl, rl.Stdout()
	} else {
		rs := monitor.NewReaderSource(os.Stdin)
		rs.Prompt, rs.Out = "-", os.Stdout
		src = rs
	}

	m, closeHooks, err := newMachine(cfg, out)
	if err != nil {
		return err
	}
	defer closeHooks()
	if err := boot(m, cfg, image); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return monitor.New(m.CPU, src, out, log.Root()).Run(ctx)
}

type configCmd struct{}

func (configCmd) Run(g *CLI) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	b, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}
