// config_test.go - YAML configuration loading
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
load_seg: 0x2000
entry_ip: 0
trace: true
fpu: true
lua: hooks.lua
log_level: trace
`))
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2000), cfg.LoadSeg)
	assert.Equal(t, uint16(0), cfg.EntryIP)
	assert.True(t, cfg.Trace)
	assert.True(t, cfg.FPU)
	assert.False(t, cfg.SingleStep)
	assert.Equal(t, "hooks.lua", cfg.LuaScript)
	assert.Equal(t, "trace", cfg.LogLevel)
	assert.Equal(t, Default().MemorySize, cfg.MemorySize)
	assert.Equal(t, uint16(0xFFFE), cfg.SP)
}

func TestDecodeEmpty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"unknown key", "turbo: true\n", "turbo"},
		{"bad level", "log_level: loud\n", "log_level"},
		{"small memory", "memory_size: 4096\n", "memory_size"},
		{"overflow", "load_seg: 0x10000\n", "decode config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src))
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x86emu.yaml")
	require.NoError(t, os.WriteFile(path, []byte("single_step: true\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.SingleStep)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "open config")
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.VGADump = "out.bmp"
	b, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(b), "vga_dump: out.bmp")

	back, err := Decode(strings.NewReader(string(b)))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
