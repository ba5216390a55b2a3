// luahook.go - Interrupt hooks written in Lua
//
// A script defines global functions named int_XX, XX being the vector in
// hex. Each one replaces IVT vectoring for its vector and is called with a
// cpu object and the vector number:
//
//	function int_10(cpu, vec)
//	  if cpu.ah == 0x0e then io.write(string.char(cpu.al)) end
//	end
//
// The cpu object exposes registers as fields (eax, ax, al, cs, ip, flags,
// ...) and the methods read8, read16, write8, write16, flag, set_flag,
// clear_flag and halt.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package luahook

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/intuitionamiga/x86emu/log"
	"github.com/intuitionamiga/x86emu/x86"
)

const cpuTypeName = "x86.cpu"

// Hooks is a loaded script and the vectors it handles.
type Hooks struct {
	L       *lua.LState
	log     *slog.Logger
	funcs   map[byte]*lua.LFunction
	vectors []byte
}

// Load runs the script at path and collects its int_XX functions.
func Load(path string, logger *slog.Logger) (*Hooks, error) {
	h := newHooks(logger)
	if err := h.L.DoFile(path); err != nil {
		h.Close()
		return nil, fmt.Errorf("load lua hooks %s: %w", path, err)
	}
	h.collect()
	return h, nil
}

// LoadString is Load for an in-memory script.
func LoadString(src string, logger *slog.Logger) (*Hooks, error) {
	h := newHooks(logger)
	if err := h.L.DoString(src); err != nil {
		h.Close()
		return nil, fmt.Errorf("load lua hooks: %w", err)
	}
	h.collect()
	return h, nil
}

func newHooks(logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = log.Root()
	}
	h := &Hooks{
		L:     lua.NewState(),
		log:   logger,
		funcs: make(map[byte]*lua.LFunction),
	}
	mt := h.L.NewTypeMetatable(cpuTypeName)
	h.L.SetField(mt, "__index", h.L.NewFunction(cpuIndex))
	h.L.SetField(mt, "__newindex", h.L.NewFunction(cpuNewIndex))
	h.L.SetGlobal("log", h.L.NewFunction(h.luaLog))
	return h
}

func (h *Hooks) collect() {
	h.L.G.Global.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		fn, isFn := v.(*lua.LFunction)
		if !ok || !isFn || !strings.HasPrefix(string(name), "int_") {
			return
		}
		n, err := strconv.ParseUint(string(name)[4:], 16, 8)
		if err != nil {
			h.log.Warn("ignoring lua function with bad vector", "name", string(name))
			return
		}
		h.funcs[byte(n)] = fn
		h.vectors = append(h.vectors, byte(n))
	})
	slices.Sort(h.vectors)
}

// Vectors returns the hooked vectors in ascending order.
func (h *Hooks) Vectors() []byte {
	return h.vectors
}

// Install registers every hook on c.
func (h *Hooks) Install(c *x86.CPU) {
	for _, v := range h.vectors {
		c.SetHook(v, h.call)
	}
	h.log.Debug("lua hooks installed", "vectors", len(h.vectors))
}

// Close releases the Lua state.
func (h *Hooks) Close() {
	h.L.Close()
}

// call runs the script function for vector. A Lua error halts the CPU.
func (h *Hooks) call(c *x86.CPU, vector byte) {
	fn := h.funcs[vector]
	if fn == nil {
		return
	}
	ud := h.L.NewUserData()
	ud.Value = c
	h.L.SetMetatable(ud, h.L.GetTypeMetatable(cpuTypeName))

	err := h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, ud, lua.LNumber(vector))
	if err != nil {
		h.log.Error("lua hook failed", "int", fmt.Sprintf("%02X", vector), "err", err)
		c.Halt()
	}
}

func (h *Hooks) luaLog(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	h.log.Info(strings.Join(parts, " "), "src", "lua")
	return 0
}

// =============================================================================
// cpu object
// =============================================================================

type register struct {
	get func(c *x86.CPU) uint32
	set func(c *x86.CPU, v uint32)
}

func reg32(p func(c *x86.CPU) *uint32) register {
	return register{
		get: func(c *x86.CPU) uint32 { return *p(c) },
		set: func(c *x86.CPU, v uint32) { *p(c) = v },
	}
}

func reg16(p func(c *x86.CPU) *uint16) register {
	return register{
		get: func(c *x86.CPU) uint32 { return uint32(*p(c)) },
		set: func(c *x86.CPU, v uint32) { *p(c) = uint16(v) },
	}
}

// low16 views the low half of a 32-bit register.
func low16(p func(c *x86.CPU) *uint32) register {
	return register{
		get: func(c *x86.CPU) uint32 { return *p(c) & 0xFFFF },
		set: func(c *x86.CPU, v uint32) { *p(c) = *p(c)&0xFFFF0000 | v&0xFFFF },
	}
}

// byteOf views the byte at shift within a 32-bit register.
func byteOf(p func(c *x86.CPU) *uint32, shift uint) register {
	return register{
		get: func(c *x86.CPU) uint32 { return *p(c) >> shift & 0xFF },
		set: func(c *x86.CPU, v uint32) { *p(c) = *p(c)&^(0xFF<<shift) | (v&0xFF)<<shift },
	}
}

var (
	eax = func(c *x86.CPU) *uint32 { return &c.EAX }
	ebx = func(c *x86.CPU) *uint32 { return &c.EBX }
	ecx = func(c *x86.CPU) *uint32 { return &c.ECX }
	edx = func(c *x86.CPU) *uint32 { return &c.EDX }
	esi = func(c *x86.CPU) *uint32 { return &c.ESI }
	edi = func(c *x86.CPU) *uint32 { return &c.EDI }
	ebp = func(c *x86.CPU) *uint32 { return &c.EBP }
	esp = func(c *x86.CPU) *uint32 { return &c.ESP }
)

var registers = map[string]register{
	"eax": reg32(eax), "ebx": reg32(ebx), "ecx": reg32(ecx), "edx": reg32(edx),
	"esi": reg32(esi), "edi": reg32(edi), "ebp": reg32(ebp), "esp": reg32(esp),

	"ax": low16(eax), "bx": low16(ebx), "cx": low16(ecx), "dx": low16(edx),
	"si": low16(esi), "di": low16(edi), "bp": low16(ebp), "sp": low16(esp),

	"al": byteOf(eax, 0), "ah": byteOf(eax, 8), "bl": byteOf(ebx, 0), "bh": byteOf(ebx, 8),
	"cl": byteOf(ecx, 0), "ch": byteOf(ecx, 8), "dl": byteOf(edx, 0), "dh": byteOf(edx, 8),

	"ip": reg16(func(c *x86.CPU) *uint16 { return &c.IP }),
	"cs": reg16(func(c *x86.CPU) *uint16 { return &c.CS }),
	"ds": reg16(func(c *x86.CPU) *uint16 { return &c.DS }),
	"es": reg16(func(c *x86.CPU) *uint16 { return &c.ES }),
	"ss": reg16(func(c *x86.CPU) *uint16 { return &c.SS }),
	"fs": reg16(func(c *x86.CPU) *uint16 { return &c.FS }),
	"gs": reg16(func(c *x86.CPU) *uint16 { return &c.GS }),

	"flags": {
		get: func(c *x86.CPU) uint32 { return c.Flags },
		set: func(c *x86.CPU, v uint32) {
			for _, f := range flagNames {
				c.SetFlag(f, v&f != 0)
			}
		},
	},
}

var flagNames = map[string]uint32{
	"cf": x86.FlagCF, "pf": x86.FlagPF, "af": x86.FlagAF, "zf": x86.FlagZF,
	"sf": x86.FlagSF, "tf": x86.FlagTF, "if": x86.FlagIF, "df": x86.FlagDF,
	"of": x86.FlagOF,
}

var methods = map[string]lua.LGFunction{
	"read8":      cpuRead8,
	"read16":     cpuRead16,
	"write8":     cpuWrite8,
	"write16":    cpuWrite16,
	"flag":       cpuFlag,
	"set_flag":   func(L *lua.LState) int { return cpuSetFlag(L, true) },
	"clear_flag": func(L *lua.LState) int { return cpuSetFlag(L, false) },
	"halt": func(L *lua.LState) int {
		checkCPU(L).Halt()
		return 0
	},
}

func checkCPU(L *lua.LState) *x86.CPU {
	ud := L.CheckUserData(1)
	c, ok := ud.Value.(*x86.CPU)
	if !ok {
		L.ArgError(1, "cpu expected")
	}
	return c
}

func cpuIndex(L *lua.LState) int {
	c := checkCPU(L)
	key := L.CheckString(2)
	if r, ok := registers[key]; ok {
		L.Push(lua.LNumber(r.get(c)))
		return 1
	}
	if m, ok := methods[key]; ok {
		L.Push(L.NewFunction(m))
		return 1
	}
	L.ArgError(2, "unknown cpu field "+key)
	return 0
}

func cpuNewIndex(L *lua.LState) int {
	c := checkCPU(L)
	key := L.CheckString(2)
	r, ok := registers[key]
	if !ok {
		L.ArgError(2, "unknown register "+key)
		return 0
	}
	r.set(c, checkUint(L, 3))
	return 0
}

func checkUint(L *lua.LState, n int) uint32 {
	return uint32(int64(L.CheckNumber(n)))
}

// readAddress takes read8(addr) or read8(seg, off).
func readAddress(L *lua.LState) uint32 {
	if L.GetTop() >= 3 {
		return checkUint(L, 2)<<4 + checkUint(L, 3)&0xFFFF
	}
	return checkUint(L, 2)
}

func cpuRead8(L *lua.LState) int {
	c := checkCPU(L)
	addr := readAddress(L)
	L.Push(lua.LNumber(c.Memory().Read8(addr)))
	return 1
}

func cpuRead16(L *lua.LState) int {
	c := checkCPU(L)
	addr := readAddress(L)
	L.Push(lua.LNumber(c.Memory().Read16(addr)))
	return 1
}

func cpuWrite8(L *lua.LState) int {
	c := checkCPU(L)
	addr, next := writeAddress(L)
	c.Memory().Write8(addr, byte(checkUint(L, next)))
	return 0
}

func cpuWrite16(L *lua.LState) int {
	c := checkCPU(L)
	addr, next := writeAddress(L)
	c.Memory().Write16(addr, uint16(checkUint(L, next)))
	return 0
}

// writeAddress takes write8(addr, v) or write8(seg, off, v) and returns the
// stack index of the value.
func writeAddress(L *lua.LState) (uint32, int) {
	if L.GetTop() >= 4 {
		return checkUint(L, 2)<<4 + checkUint(L, 3)&0xFFFF, 4
	}
	return checkUint(L, 2), 3
}

func checkFlag(L *lua.LState) uint32 {
	if L.Get(2).Type() == lua.LTNumber {
		return checkUint(L, 2)
	}
	name := strings.ToLower(L.CheckString(2))
	f, ok := flagNames[name]
	if !ok {
		L.ArgError(2, "unknown flag "+name)
	}
	return f
}

func cpuFlag(L *lua.LState) int {
	c := checkCPU(L)
	L.Push(lua.LBool(c.Flag(checkFlag(L))))
	return 1
}

func cpuSetFlag(L *lua.LState, set bool) int {
	c := checkCPU(L)
	c.SetFlag(checkFlag(L), set)
	return 0
}
