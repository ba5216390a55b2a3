// monitor.go - Line oriented debug monitor for a real-mode CPU
//
// Commands:
//
//	u [addr]   disassemble ten instructions
//	d [addr]   hex dump eight lines of memory
//	g addr     run until CS:IP reaches addr or the CPU stops
//	r, x       show registers
//	t, <enter> single step
//	q          quit
//
// Addresses are seg:off or an offset in the default segment (CS for u and
// g, DS for d), written as $hex, 0xhex, bare hex or #decimal.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/intuitionamiga/x86emu/log"
	"github.com/intuitionamiga/x86emu/x86"
)

const (
	disasmLines = 10
	dumpLines   = 8
)

// Command is a parsed command with name and arguments.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a raw input line into a command name and arguments.
func ParseCommand(input string) Command {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return Command{}
	}
	return Command{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// ParseAddress parses a number as $hex, 0xhex, bare hex or #decimal.
func ParseAddress(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	base := 16
	switch {
	case strings.HasPrefix(s, "#"):
		s, base = s[1:], 10
	case strings.HasPrefix(s, "$"):
		s = s[1:]
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 64)
	return v, err == nil
}

// ParseSegOff parses seg:off, or a bare offset in defSeg.
func ParseSegOff(s string, defSeg uint16) (seg, off uint16, ok bool) {
	if segStr, offStr, found := strings.Cut(s, ":"); found {
		sv, ok1 := ParseAddress(segStr)
		ov, ok2 := ParseAddress(offStr)
		if !ok1 || !ok2 || sv > 0xFFFF || ov > 0xFFFF {
			return 0, 0, false
		}
		return uint16(sv), uint16(ov), true
	}
	ov, ok := ParseAddress(s)
	if !ok || ov > 0xFFFF {
		return 0, 0, false
	}
	return defSeg, uint16(ov), true
}

// Monitor drives a CPU from a CommandSource and writes results to an
// io.Writer.
type Monitor struct {
	cpu *x86.CPU
	src CommandSource
	out io.Writer
	log *slog.Logger

	// Where a bare u or d continues from
	uSeg, uOff uint16
	dSeg, dOff uint16
	uSet, dSet bool
}

// New returns a monitor for cpu. logger may be nil.
func New(cpu *x86.CPU, src CommandSource, out io.Writer, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = log.Root()
	}
	return &Monitor{cpu: cpu, src: src, out: out, log: logger}
}

// Run executes commands until q, the end of the source or a cancelled ctx.
func (m *Monitor) Run(ctx context.Context) error {
	m.printf("%s", m.cpu.Dump())
	m.showNext()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := m.src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}
		if m.Execute(ctx, line) {
			return nil
		}
	}
}

// Execute runs one command line and reports whether the session should end.
func (m *Monitor) Execute(ctx context.Context, line string) bool {
	cmd := ParseCommand(line)
	switch cmd.Name {
	case "", "t":
		m.cmdStep()
	case "u":
		m.cmdDisassemble(cmd)
	case "d":
		m.cmdDump(cmd)
	case "g":
		m.cmdGo(ctx, cmd)
	case "r", "x":
		m.printf("%s", m.cpu.Dump())
	case "q":
		return true
	case "?", "help":
		m.printf("u [addr]  d [addr]  g addr  r  x  t  q")
	default:
		m.printf("unknown command: %s", cmd.Name)
	}
	return false
}

func (m *Monitor) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format+"\n", args...)
}

func (m *Monitor) report(res x86.Result) {
	switch res.Status {
	case x86.Halted:
		if res.Clean {
			m.printf("halted (clean)")
		} else {
			m.printf("halted")
		}
	case x86.Faulted:
		m.printf("fault: %v", res.Err)
	}
}

func (m *Monitor) cmdStep() {
	res := m.cpu.Step()
	m.report(res)
	m.uSet = false
	m.printf("%s", m.cpu.Dump())
	m.showNext()
}

// showNext prints the instruction at CS:IP.
func (m *Monitor) showNext() {
	text, b := x86.Disassemble(m.cpu.Memory(), m.cpu.CS, m.cpu.IP)
	m.printf("%04X:%04X %-14X %s", m.cpu.CS, m.cpu.IP, b, text)
}

func (m *Monitor) cmdDisassemble(cmd Command) {
	seg, off := m.cpu.CS, m.cpu.IP
	if m.uSet {
		seg, off = m.uSeg, m.uOff
	}
	if len(cmd.Args) > 0 {
		var ok bool
		if seg, off, ok = ParseSegOff(cmd.Args[0], m.cpu.CS); !ok {
			m.printf("bad address: %s", cmd.Args[0])
			return
		}
	}
	for range disasmLines {
		text, b := x86.Disassemble(m.cpu.Memory(), seg, off)
		m.printf("%04X:%04X %-14X %s", seg, off, b, text)
		off += uint16(len(b))
	}
	m.uSeg, m.uOff, m.uSet = seg, off, true
}

func (m *Monitor) cmdDump(cmd Command) {
	seg, off := m.cpu.DS, uint16(0)
	if m.dSet {
		seg, off = m.dSeg, m.dOff
	}
	if len(cmd.Args) > 0 {
		var ok bool
		if seg, off, ok = ParseSegOff(cmd.Args[0], m.cpu.DS); !ok {
			m.printf("bad address: %s", cmd.Args[0])
			return
		}
	}
	mem := m.cpu.Memory()
	for range dumpLines {
		var hex, ascii strings.Builder
		for j := range uint16(16) {
			b := mem.Read8(uint32(seg)<<4 + uint32(off+j))
			if j == 8 {
				hex.WriteByte(' ')
			}
			fmt.Fprintf(&hex, " %02X", b)
			if b >= 0x20 && b < 0x7F {
				ascii.WriteByte(b)
			} else {
				ascii.WriteByte('.')
			}
		}
		m.printf("%04X:%04X%s  %s", seg, off, hex.String(), ascii.String())
		off += 16
	}
	m.dSeg, m.dOff, m.dSet = seg, off, true
}

func (m *Monitor) cmdGo(ctx context.Context, cmd Command) {
	if len(cmd.Args) == 0 {
		m.printf("usage: g addr")
		return
	}
	seg, off, ok := ParseSegOff(cmd.Args[0], m.cpu.CS)
	if !ok {
		m.printf("bad address: %s", cmd.Args[0])
		return
	}
	m.log.Debug("breakpoint set", "at", fmt.Sprintf("%04X:%04X", seg, off))
	for ctx.Err() == nil {
		res := m.cpu.Step()
		if res.Status != x86.Running {
			m.report(res)
			break
		}
		if m.cpu.CS == seg && m.cpu.IP == off {
			m.printf("breakpoint at %04X:%04X", seg, off)
			break
		}
	}
	m.uSet = false
	m.printf("%s", m.cpu.Dump())
	m.showNext()
}
