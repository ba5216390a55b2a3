// memory.go - Flat real-mode physical memory
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package bios

import (
	"encoding/binary"
	"fmt"
)

// DefaultMemorySize covers the 1 MiB real-mode space plus the HMA reachable
// through FFFF:0010 and above.
const DefaultMemorySize = 1<<20 + 64<<10

// Memory is a flat little-endian byte array. Reads past the end return all
// ones and writes past the end are dropped, as on an open bus.
type Memory struct {
	data []byte
}

// NewMemory allocates size bytes of zeroed memory. A size of zero selects
// DefaultMemorySize.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{data: make([]byte, size)}
}

// Size returns the number of addressable bytes.
func (m *Memory) Size() int {
	return len(m.data)
}

// Load copies data to addr.
func (m *Memory) Load(addr uint32, data []byte) error {
	if uint64(addr)+uint64(len(data)) > uint64(len(m.data)) {
		return fmt.Errorf("load %d bytes at %05X: beyond %d bytes of memory", len(data), addr, len(m.data))
	}
	copy(m.data[addr:], data)
	return nil
}

// Slice returns the n bytes at addr, clipped to the end of memory. The
// slice aliases emulated memory.
func (m *Memory) Slice(addr uint32, n int) []byte {
	if int(addr) >= len(m.data) {
		return nil
	}
	end := min(int(addr)+n, len(m.data))
	return m.data[addr:end]
}

// Clear zeroes all of memory.
func (m *Memory) Clear() {
	clear(m.data)
}

func (m *Memory) fits(addr uint32, n uint32) bool {
	return uint64(addr)+uint64(n) <= uint64(len(m.data))
}

func (m *Memory) Read8(addr uint32) byte {
	if !m.fits(addr, 1) {
		return 0xFF
	}
	return m.data[addr]
}

func (m *Memory) Read16(addr uint32) uint16 {
	if !m.fits(addr, 2) {
		return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
	}
	return binary.LittleEndian.Uint16(m.data[addr:])
}

func (m *Memory) Read32(addr uint32) uint32 {
	if !m.fits(addr, 4) {
		return uint32(m.Read16(addr)) | uint32(m.Read16(addr+2))<<16
	}
	return binary.LittleEndian.Uint32(m.data[addr:])
}

func (m *Memory) Write8(addr uint32, v byte) {
	if m.fits(addr, 1) {
		m.data[addr] = v
	}
}

func (m *Memory) Write16(addr uint32, v uint16) {
	if !m.fits(addr, 2) {
		m.Write8(addr, byte(v))
		m.Write8(addr+1, byte(v>>8))
		return
	}
	binary.LittleEndian.PutUint16(m.data[addr:], v)
}

func (m *Memory) Write32(addr uint32, v uint32) {
	if !m.fits(addr, 4) {
		m.Write16(addr, uint16(v))
		m.Write16(addr+2, uint16(v>>16))
		return
	}
	binary.LittleEndian.PutUint32(m.data[addr:], v)
}
