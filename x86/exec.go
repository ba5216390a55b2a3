// exec.go - Execution loop, halt/fault handling and interrupt delivery
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import (
	"context"
	"errors"
	"fmt"
)

// ErrIllegalOpcode is wrapped by every IllegalOpcodeError.
var ErrIllegalOpcode = errors.New("illegal opcode")

// IllegalOpcodeError reports an undefined opcode executed with a live stack.
type IllegalOpcodeError struct {
	CS    uint16
	IP    uint16
	Bytes []byte
}

func (e *IllegalOpcodeError) Error() string {
	return fmt.Sprintf("illegal opcode % X at %04X:%04X", e.Bytes, e.CS, e.IP)
}

func (e *IllegalOpcodeError) Unwrap() error {
	return ErrIllegalOpcode
}

// Status is the state of the execution loop after a step.
type Status int

const (
	Running Status = iota
	Halted
	Faulted
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is returned by Step and Run. Clean is set when the CPU halted
// with SP == 0, the convention for a completed host-initiated call.
type Result struct {
	Status Status
	Clean  bool
	Err    error
}

// SetHook installs fn for vector; nil restores IVT vectoring.
func (c *CPU) SetHook(vector byte, fn InterruptHook) {
	c.hooks[vector] = fn
}

// RaiseInterrupt marks vector pending. It is taken at the start of the next
// step if it is an NMI/divide vector or IF is set.
func (c *CPU) RaiseInterrupt(vector byte) {
	c.intrPending = true
	c.intrVector = vector
}

// Halt stops the loop at the next step. A pending deliverable interrupt
// resumes execution.
func (c *CPU) Halt() {
	c.halted = true
}

// IsHalted reports whether a halt is requested or the CPU has exited.
func (c *CPU) IsHalted() bool {
	return c.halted
}

// RequestExit makes Run return after the current instruction. Safe to call
// from any goroutine.
func (c *CPU) RequestExit() {
	c.exitReq.Store(true)
}

// Step executes one instruction (a lone prefix counts as one).
func (c *CPU) Step() Result {
	if c.fault != nil {
		return Result{Status: Faulted, Err: c.fault}
	}
	if c.exited {
		return Result{Status: Halted, Clean: true}
	}
	if c.intrPending && !c.prefixActive &&
		(c.intrVector == 0 || c.intrVector == 2 || c.Flag(FlagIF)) {
		c.halted = false
		c.deliver(c.intrVector)
	}
	if c.halted {
		if c.cfg.Trace {
			c.traceHalt()
		}
		return Result{Status: Halted, Clean: c.SP() == 0}
	}

	if !c.prefixActive {
		c.insnCS, c.insnIP = c.CS, c.IP
		if c.cfg.Trace {
			c.trace()
		}
	}
	op := c.fetch8()
	entry := &oneByteOps[op]
	entry.exec(c, op)
	if entry.prefix {
		c.prefixActive = true
	} else {
		c.clearPrefixes()
	}
	c.Cycles++

	if c.fault != nil {
		if c.cfg.Trace {
			c.traceHalt()
		}
		return Result{Status: Faulted, Err: c.fault}
	}
	if c.exited {
		if c.cfg.Trace {
			c.traceHalt()
		}
		return Result{Status: Halted, Clean: true}
	}
	return Result{Status: Running}
}

// Run executes until the CPU halts or faults, ctx is cancelled, RequestExit
// is called or, in single-step mode, one instruction has run. A Result with
// Status Running means an early exit.
func (c *CPU) Run(ctx context.Context) Result {
	stop := context.AfterFunc(ctx, c.RequestExit)
	defer stop()

	for {
		if c.exitReq.CompareAndSwap(true, false) {
			return Result{Status: Running}
		}
		res := c.Step()
		if res.Status != Running || c.cfg.SingleStep {
			return res
		}
	}
}

// deliver transfers control to an interrupt. A registered hook runs in
// place of the emulated IVT.
func (c *CPU) deliver(vector byte) {
	c.intrPending = false
	if hook := c.hooks[vector]; hook != nil {
		hook(c, vector)
		return
	}
	c.push16(uint16(c.PackedFlags()))
	c.SetFlag(FlagIF|FlagTF, false)
	c.push16(c.CS)
	c.push16(c.IP)
	vec := uint32(vector) * 4
	c.IP = c.mem.Read16(vec)
	c.CS = c.mem.Read16(vec + 2)
}

// illegal handles an undefined opcode. With SP == 0 the code has returned
// into a host call stub, which ends the run cleanly. Only Reset leaves
// that state; pending interrupts do not.
func (c *CPU) illegal() {
	if c.SP() == 0 {
		c.halted = true
		c.exited = true
		return
	}
	n := c.IP - c.insnIP
	bytes := make([]byte, n)
	for i := range bytes {
		bytes[i] = c.mem.Read8(physical(c.insnCS, uint32(c.insnIP+uint16(i))))
	}
	c.fault = &IllegalOpcodeError{CS: c.insnCS, IP: c.insnIP, Bytes: bytes}
	c.log.Error("illegal opcode", "cs", hex16(c.insnCS), "ip", hex16(c.insnIP), "bytes", fmt.Sprintf("% X", bytes))
}

// unsupported logs an operand encoding the instruction does not accept and
// otherwise does nothing.
func (c *CPU) unsupported(what string) {
	c.log.Warn("unsupported operand encoding", "insn", what, "cs", hex16(c.insnCS), "ip", hex16(c.insnIP))
}

// ClearFault drops a recorded fault so the host can resume.
func (c *CPU) ClearFault() {
	c.fault = nil
}

func hex16(v uint16) string {
	return fmt.Sprintf("%04X", v)
}
