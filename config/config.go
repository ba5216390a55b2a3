// config.go - Emulator configuration loaded from YAML
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/intuitionamiga/x86emu/bios"
	"github.com/intuitionamiga/x86emu/log"
)

// Config holds every setting the command line can also override.
type Config struct {
	MemorySize int    `yaml:"memory_size"`
	LoadSeg    uint16 `yaml:"load_seg"`
	EntryIP    uint16 `yaml:"entry_ip"`
	StackSeg   uint16 `yaml:"stack_seg"`
	SP         uint16 `yaml:"sp"`

	Trace      bool `yaml:"trace"`
	FPU        bool `yaml:"fpu"`
	SingleStep bool `yaml:"single_step"`

	LuaScript string `yaml:"lua"`
	VGADump   string `yaml:"vga_dump"`
	LogLevel  string `yaml:"log_level"`
	History   string `yaml:"history"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		MemorySize: bios.DefaultMemorySize,
		LoadSeg:    0x1000,
		EntryIP:    0x0100,
		StackSeg:   0x1000,
		SP:         0xFFFE,
		LogLevel:   "info",
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r over the defaults.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later.
func (c Config) Validate() error {
	if c.MemorySize < 1<<20 {
		return fmt.Errorf("memory_size %d is below the 1 MiB real-mode space", c.MemorySize)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
