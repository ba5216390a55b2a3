// ports.go - I/O port bus: handler ranges, PIT timer and PCI config access
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package bios

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/intuitionamiga/x86emu/log"
)

// Port numbers with built-in behavior
const (
	PortPIT0       = 0x40
	PortPITControl = 0x43
	PortTimer      = 0x5C
	PortPCIAddr    = 0xCF8
	PortPCIData    = 0xCFC
)

// PortHandler serves a range of ports. size is the access width in bytes.
// A nil In reads as all ones; a nil Out drops the write.
type PortHandler struct {
	In  func(port uint16, size int) uint32
	Out func(port uint16, size int, v uint32)
}

type portRange struct {
	first, last uint16
	h           PortHandler
}

// PortBus implements x86.Ports for a BIOS environment.
type PortBus struct {
	ranges []portRange
	log    *slog.Logger
	now    func() time.Time

	pitLatch uint16
	pciAddr  uint32
	pci      map[uint16]*PCIDevice
}

// NewPortBus returns a bus with only the built-in ports. logger may be nil.
func NewPortBus(logger *slog.Logger) *PortBus {
	if logger == nil {
		logger = log.Root()
	}
	return &PortBus{
		log: logger,
		now: time.Now,
		pci: make(map[uint16]*PCIDevice),
	}
}

// Handle routes ports first..last to h. Later registrations take
// precedence over earlier overlapping ones.
func (b *PortBus) Handle(first, last uint16, h PortHandler) {
	b.ranges = append(b.ranges, portRange{first: first, last: last, h: h})
}

func (b *PortBus) lookup(port uint16) *PortHandler {
	for i := len(b.ranges) - 1; i >= 0; i-- {
		if r := &b.ranges[i]; port >= r.first && port <= r.last {
			return &r.h
		}
	}
	return nil
}

func (b *PortBus) in(port uint16, size int) uint32 {
	if h := b.lookup(port); h != nil {
		if h.In == nil {
			return sizeMask(size)
		}
		return h.In(port, size) & sizeMask(size)
	}
	b.log.Debug("unhandled port read", "port", hexPort(port), "size", size)
	return sizeMask(size)
}

func (b *PortBus) out(port uint16, size int, v uint32) {
	if h := b.lookup(port); h != nil {
		if h.Out != nil {
			h.Out(port, size, v&sizeMask(size))
		}
		return
	}
	b.log.Debug("unhandled port write", "port", hexPort(port), "size", size, "value", v)
}

func (b *PortBus) In8(port uint16) byte {
	if port == PortPIT0 {
		// Alternate low and high bytes of the latched count.
		b.pitLatch++
		return byte(b.pitLatch >> ((b.pitLatch & 1) << 3))
	}
	if v, ok := b.pciIn(port, 1); ok {
		return byte(v)
	}
	return byte(b.in(port, 1))
}

func (b *PortBus) In16(port uint16) uint16 {
	if port == PortTimer {
		// Free running timer with a resolution of about 3us.
		return uint16(b.now().Nanosecond() / 1000 / 3)
	}
	if v, ok := b.pciIn(port, 2); ok {
		return uint16(v)
	}
	return uint16(b.in(port, 2))
}

func (b *PortBus) In32(port uint16) uint32 {
	if v, ok := b.pciIn(port, 4); ok {
		return v
	}
	return b.in(port, 4)
}

func (b *PortBus) Out8(port uint16, v byte) {
	if port == PortPITControl && v == 0 {
		// Latch counter 0. The low bit selects which byte port 40 returns.
		b.pitLatch = uint16(b.now().Nanosecond()/1000) | 1
		return
	}
	if b.pciOut(port, 1, uint32(v)) {
		return
	}
	b.out(port, 1, uint32(v))
}

func (b *PortBus) Out16(port uint16, v uint16) {
	if b.pciOut(port, 2, uint32(v)) {
		return
	}
	b.out(port, 2, uint32(v))
}

func (b *PortBus) Out32(port uint16, v uint32) {
	if b.pciOut(port, 4, v) {
		return
	}
	b.out(port, 4, v)
}

// =============================================================================
// PCI configuration mechanism #1
// =============================================================================

// AddPCIDevice makes d visible through CF8/CFC and the PCI BIOS.
func (b *PortBus) AddPCIDevice(d *PCIDevice) {
	b.pci[d.Slot()] = d
}

// PCIDevice returns the device at slot (bus<<8 | dev<<3 | func).
func (b *PortBus) PCIDevice(slot uint16) *PCIDevice {
	return b.pci[slot]
}

// selected returns the device and register addressed by CF8.
func (b *PortBus) selected() (*PCIDevice, byte) {
	a := b.pciAddr
	if a&0x80000000 == 0 {
		return nil, 0
	}
	return b.pci[uint16(a>>8)], byte(a) & 0xFC
}

func (b *PortBus) pciIn(port uint16, size int) (uint32, bool) {
	switch {
	case port >= PortPCIAddr && port < PortPCIAddr+4:
		if size == 4 && port != PortPCIAddr {
			return 0, false
		}
		shift := uint(port-PortPCIAddr) * 8
		return b.pciAddr >> shift & sizeMask(size), true
	case port >= PortPCIData && port < PortPCIData+4:
		if size == 4 && port != PortPCIData {
			return 0, false
		}
		dev, reg := b.selected()
		if dev == nil {
			return sizeMask(size), true
		}
		return dev.read(reg+byte(port-PortPCIData), size), true
	}
	return 0, false
}

func (b *PortBus) pciOut(port uint16, size int, v uint32) bool {
	switch {
	case port >= PortPCIAddr && port < PortPCIAddr+4:
		if size == 4 && port != PortPCIAddr {
			return false
		}
		shift := uint(port-PortPCIAddr) * 8
		m := sizeMask(size) << shift
		b.pciAddr = b.pciAddr&^m | v<<shift&m
		return true
	case port >= PortPCIData && port < PortPCIData+4:
		if size == 4 && port != PortPCIData {
			return false
		}
		if dev, reg := b.selected(); dev != nil {
			dev.write(reg+byte(port-PortPCIData), size, v)
		}
		return true
	}
	return false
}

func sizeMask(size int) uint32 {
	switch size {
	case 1:
		return 0xFF
	case 2:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

func hexPort(p uint16) string {
	return fmt.Sprintf("%04X", p)
}
