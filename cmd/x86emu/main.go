// main.go - Command line front end for the real-mode x86 emulator
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"github.com/alecthomas/kong"

	"github.com/intuitionamiga/x86emu/config"
	"github.com/intuitionamiga/x86emu/log"
)

// CLI is the command line. Its flags are shared by every command and
// override the matching configuration keys when set.
type CLI struct {
	Config     string `name:"config" help:"YAML configuration file." type:"existingfile"`
	LogLevel   string `name:"log-level" help:"Log level: trace, debug, info, warn or error."`
	Trace      bool   `help:"Print every instruction before it executes."`
	FPU        bool   `name:"fpu" help:"Execute x87 arithmetic."`
	SingleStep bool   `name:"single-step" help:"Return to the host loop after every instruction."`
	Lua        string `name:"lua" type:"existingfile" help:"Lua script with int_XX hook functions."`
	LoadSeg    string `name:"load-seg" help:"Segment the image is loaded into (hex)."`
	Entry      string `name:"entry" help:"Offset of the first instruction (hex)."`

	Run  runCmd    `cmd help:"Run a flat binary image until it halts."`
	Int  intCmd    `cmd help:"Call a BIOS interrupt and print the returned registers."`
	VBE  vbeCmd    `cmd name:"vbe" help:"Query the VESA BIOS Extensions of an option ROM."`
	Dbg  debugCmd  `cmd name:"debug" help:"Load a flat binary image under the interactive monitor."`
	Show configCmd `cmd name:"config" help:"Print the effective configuration as YAML."`
}

// load returns the file configuration with the global flags applied and
// installs the root logger.
func (g *CLI) load() (config.Config, error) {
	cfg := config.Default()
	if g.Config != "" {
		var err error
		if cfg, err = config.Load(g.Config); err != nil {
			return cfg, err
		}
	}
	if err := g.apply(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, log.Init(cfg.LogLevel)
}

func (g *CLI) apply(cfg *config.Config) error {
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	cfg.Trace = cfg.Trace || g.Trace
	cfg.FPU = cfg.FPU || g.FPU
	cfg.SingleStep = cfg.SingleStep || g.SingleStep
	if g.Lua != "" {
		cfg.LuaScript = g.Lua
	}
	var err error
	if g.LoadSeg != "" {
		if cfg.LoadSeg, err = parseWord("load-seg", g.LoadSeg); err != nil {
			return err
		}
	}
	if g.Entry != "" {
		if cfg.EntryIP, err = parseWord("entry", g.Entry); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("x86emu"),
		kong.Description("Real-mode x86 emulator with a BIOS host environment."),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
