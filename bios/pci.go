// pci.go - PCI configuration space devices and the INT 1Ah PCI BIOS
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package bios

import (
	"encoding/binary"
	"slices"

	"github.com/intuitionamiga/x86emu/x86"
)

// PCIDevice is one function's 256-byte configuration space.
type PCIDevice struct {
	Bus, Dev, Func byte
	Config         [256]byte
}

// NewPCIDevice returns a device with its ID and class registers filled in.
// class is the 24-bit class/subclass/prog-if value.
func NewPCIDevice(bus, dev, fn byte, vendor, device uint16, class uint32) *PCIDevice {
	d := &PCIDevice{Bus: bus, Dev: dev & 0x1F, Func: fn & 7}
	binary.LittleEndian.PutUint16(d.Config[0x00:], vendor)
	binary.LittleEndian.PutUint16(d.Config[0x02:], device)
	binary.LittleEndian.PutUint32(d.Config[0x08:], class<<8)
	return d
}

// Slot packs bus, device and function the way the PCI BIOS passes them in BX.
func (d *PCIDevice) Slot() uint16 {
	return uint16(d.Bus)<<8 | uint16(d.Dev)<<3 | uint16(d.Func)
}

func (d *PCIDevice) VendorID() uint16 { return binary.LittleEndian.Uint16(d.Config[0x00:]) }
func (d *PCIDevice) DeviceID() uint16 { return binary.LittleEndian.Uint16(d.Config[0x02:]) }
func (d *PCIDevice) Class() uint32    { return binary.LittleEndian.Uint32(d.Config[0x08:]) >> 8 }

func (d *PCIDevice) read(reg byte, size int) uint32 {
	var v uint32
	for i := range size {
		v |= uint32(d.Config[reg+byte(i)]) << (8 * i)
	}
	return v
}

func (d *PCIDevice) write(reg byte, size int, v uint32) {
	for i := range size {
		d.Config[reg+byte(i)] = byte(v >> (8 * i))
	}
}

// PCI BIOS return codes in AH
const (
	pciSuccessful     = 0x00
	pciFuncNotSupport = 0x81
	pciDeviceNotFound = 0x86
	pciBadRegister    = 0x87
)

// pciBIOS serves the B1xx functions of INT 1Ah from the bus's devices and
// passes everything else to the emulated vector.
func (m *Machine) pciBIOS(c *x86.CPU, vector byte) {
	if c.AH() != 0xB1 {
		m.vectorIVT(c, vector)
		return
	}
	devs := m.pciDevices()
	status := byte(pciSuccessful)

	switch c.AL() {
	case 0x01: // installation check, AL reports config mechanism #1
		c.EAX = 0x0001
		c.EDX = 0x20494350 // "PCI "
		c.EBX = 0x0210
		var last byte
		for _, d := range devs {
			last = max(last, d.Bus)
		}
		c.ECX = c.ECX&0xFF00 | uint32(last)
		c.SetFlag(x86.FlagCF, false)
		return
	case 0x02: // find device
		status = pciDeviceNotFound
		idx := c.SI()
		for _, d := range devs {
			if d.VendorID() == c.DX() && d.DeviceID() == c.CX() {
				if idx == 0 {
					c.SetBX(d.Slot())
					status = pciSuccessful
					break
				}
				idx--
			}
		}
	case 0x03: // find class
		status = pciDeviceNotFound
		idx := c.SI()
		for _, d := range devs {
			if d.Class() == c.ECX&0xFFFFFF {
				if idx == 0 {
					c.SetBX(d.Slot())
					status = pciSuccessful
					break
				}
				idx--
			}
		}
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D:
		d := m.Ports.PCIDevice(c.BX())
		if d == nil {
			status = pciBadRegister
			break
		}
		reg := byte(c.DI())
		switch c.AL() {
		case 0x08:
			c.SetCL(byte(d.read(reg, 1)))
		case 0x09:
			c.SetCX(uint16(d.read(reg, 2)))
		case 0x0A:
			c.ECX = d.read(reg, 4)
		case 0x0B:
			d.write(reg, 1, uint32(c.CL()))
		case 0x0C:
			d.write(reg, 2, uint32(c.CX()))
		case 0x0D:
			d.write(reg, 4, c.ECX)
		}
	default:
		m.log.Debug("unsupported PCI BIOS function", "ax", hexPort(c.AX()))
		status = pciFuncNotSupport
	}

	c.EAX = uint32(c.AL()) | uint32(status)<<8
	c.SetFlag(x86.FlagCF, status != pciSuccessful)
}

// pciDevices returns the bus's devices in slot order.
func (m *Machine) pciDevices() []*PCIDevice {
	devs := make([]*PCIDevice, 0, len(m.Ports.pci))
	for _, d := range m.Ports.pci {
		devs = append(devs, d)
	}
	slices.SortFunc(devs, func(a, b *PCIDevice) int { return int(a.Slot()) - int(b.Slot()) })
	return devs
}
