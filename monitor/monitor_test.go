// monitor_test.go - Scripted monitor sessions
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package monitor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intuitionamiga/x86emu/bios"
	"github.com/intuitionamiga/x86emu/log"
	"github.com/intuitionamiga/x86emu/x86"
)

func TestAddressParsing(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
		ok    bool
	}{
		{"$1000", 0x1000, true},
		{"0x1000", 0x1000, true},
		{"1000", 0x1000, true},
		{"#4096", 4096, true},
		{"0XBEEF", 0xBEEF, true},
		{"FF", 0xFF, true},
		{"#0", 0, true},
		{"", 0, false},
		{"zz", 0, false},
		{"#1F", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAddress(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		if ok {
			assert.Equal(t, tt.want, got, tt.input)
		}
	}
}

func TestSegOffParsing(t *testing.T) {
	tests := []struct {
		input    string
		seg, off uint16
		ok       bool
	}{
		{"F000:FFF0", 0xF000, 0xFFF0, true},
		{"$40:#16", 0x40, 0x10, true},
		{"100", 0x1234, 0x100, true},
		{"10000", 0, 0, false},
		{"1:2:3", 0, 0, false},
		{":5", 0, 0, false},
	}
	for _, tt := range tests {
		seg, off, ok := ParseSegOff(tt.input, 0x1234)
		assert.Equal(t, tt.ok, ok, tt.input)
		if ok {
			assert.Equal(t, tt.seg, seg, tt.input)
			assert.Equal(t, tt.off, off, tt.input)
		}
	}
}

func TestCommandParsing(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantArgs []string
	}{
		{"u 1000:0", "u", []string{"1000:0"}},
		{"  D  $40:0  ", "d", []string{"$40:0"}},
		{"", "", nil},
		{"   ", "", nil},
	}
	for _, tt := range tests {
		cmd := ParseCommand(tt.input)
		assert.Equal(t, tt.wantName, cmd.Name)
		assert.Len(t, cmd.Args, len(tt.wantArgs))
	}
}

// program: MOV AX,1234 ; INC AX ; NOP ; MOV BX,AX ; HLT
var program = []byte{0xB8, 0x34, 0x12, 0x40, 0x90, 0x89, 0xC3, 0xF4}

func newSession(t *testing.T, lines ...string) (*x86.CPU, string) {
	t.Helper()
	m := bios.New(bios.Options{CPU: x86.Config{Logger: log.Discard()}})
	require.NoError(t, m.Mem.Load(0x10000, program))
	copy(m.Mem.Slice(0x20000, 5), "hello")
	c := m.CPU
	c.CS, c.IP = 0x1000, 0
	c.DS = 0x2000
	c.SS, c.ESP = 0x3000, 0x100

	var out bytes.Buffer
	mon := New(c, NewLineSource(lines...), &out, log.Discard())
	require.NoError(t, mon.Run(context.Background()))
	return c, out.String()
}

func TestStepCommands(t *testing.T) {
	c, out := newSession(t, "t", "", "r")
	assert.Equal(t, uint16(0x1235), c.AX())
	assert.Equal(t, uint16(4), c.IP)
	assert.Contains(t, out, "EAX=00001235")
	assert.Contains(t, out, "1000:0004 90")
	assert.Contains(t, out, "nop")
}

func TestDisassembleCommand(t *testing.T) {
	_, out := newSession(t, "u 1000:0", "q", "t")
	assert.Contains(t, out, "1000:0000 B83412")
	assert.Contains(t, out, "1000:0003 40")
	assert.Contains(t, out, "1000:0007 F4")
	assert.Contains(t, out, "hlt")
	assert.NotContains(t, out, "EAX=00001234", "q ends the session")
}

func TestDumpCommand(t *testing.T) {
	_, out := newSession(t, "d", "d 1000:0")
	lines := strings.Split(out, "\n")
	var first string
	for _, l := range lines {
		if strings.HasPrefix(l, "2000:0000") {
			first = l
		}
	}
	assert.Equal(t, "2000:0000 68 65 6C 6C 6F 00 00 00  00 00 00 00 00 00 00 00  hello...........", first)
	assert.Contains(t, out, "2000:0070")
	assert.Contains(t, out, "1000:0000 B8 34 12 40 90 89 C3 F4")
}

func TestGoToBreakpoint(t *testing.T) {
	c, out := newSession(t, "g 5")
	assert.Equal(t, uint16(5), c.IP)
	assert.Equal(t, uint16(0), c.BX())
	assert.Contains(t, out, "breakpoint at 1000:0005")
}

func TestGoStopsOnHalt(t *testing.T) {
	c, out := newSession(t, "g 1000:FFFF", "x")
	assert.True(t, c.IsHalted())
	assert.Equal(t, uint16(0x1235), c.BX())
	assert.Contains(t, out, "halted")
}

func TestUnknownAndBadInput(t *testing.T) {
	_, out := newSession(t, "zap", "u nowhere", "g")
	assert.Contains(t, out, "unknown command: zap")
	assert.Contains(t, out, "bad address: nowhere")
	assert.Contains(t, out, "usage: g addr")
}

func TestReaderSource(t *testing.T) {
	var prompt bytes.Buffer
	src := NewReaderSource(strings.NewReader("t\nq\n"))
	src.Prompt, src.Out = "-", &prompt

	line, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "t", line)
	line, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, "q", line)
	_, err = src.Next()
	assert.Equal(t, "---", prompt.String())
	assert.True(t, errors.Is(err, io.EOF))
}

type failingSource struct{}

func (failingSource) Next() (string, error) { return "", errors.New("tty gone") }

func TestRunReportsSourceErrors(t *testing.T) {
	m := bios.New(bios.Options{CPU: x86.Config{Logger: log.Discard()}})
	mon := New(m.CPU, failingSource{}, &bytes.Buffer{}, log.Discard())
	assert.ErrorContains(t, mon.Run(context.Background()), "tty gone")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mon = New(m.CPU, NewLineSource("t"), &bytes.Buffer{}, log.Discard())
	assert.ErrorIs(t, mon.Run(ctx), context.Canceled)
}
