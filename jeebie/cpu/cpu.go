package cpu

import (
	"fmt"
	"log/slog"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
)

// Bus is the CPU's view of the address space.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
}

// Flag is one of the 4 possible flags used in the flag register (high part of AF)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

const (
	// InterruptDispatchTicks is the cost of jumping to an interrupt vector.
	InterruptDispatchTicks = 20
	idleTicks              = 4
	eiDelaySteps           = 2
)

// State is the serializable CPU state.
type State struct {
	Registers    Registers
	IME          bool
	EIDelay      int
	Halted       bool
	HaltBug      bool
	Stopped      bool
	Locked       bool
	Cycles       uint64
	Instructions uint64
}

// CPU is the LR35902 core: registers, the interrupt master enable and the
// fetch/decode/execute loop.
type CPU struct {
	// registers
	a  uint8
	f  uint8
	b  uint8
	c  uint8
	d  uint8
	e  uint8
	h  uint8
	l  uint8
	sp uint16
	pc uint16

	// metadata
	ime           bool
	eiDelay       int
	currentOpcode uint16
	halted        bool
	stopped       bool
	locked        bool
	cycles        uint64
	instructions  uint64

	// haltBug makes the next fetch read the opcode without advancing PC. Set by
	// HALT executed with IME=0 while an interrupt is already pending.
	haltBug bool

	bus    Bus
	logger *slog.Logger
}

// New returns a CPU in the state the DMG boot ROM leaves behind.
// A nil logger uses slog.Default().
func New(bus Bus, logger *slog.Logger) *CPU {
	if logger == nil {
		logger = slog.Default()
	}
	cpu := &CPU{
		bus:    bus,
		logger: logger,
	}
	cpu.Reset(false)
	return cpu
}

// Reset reinitializes the CPU. With a boot ROM, execution starts at 0x0000
// with zeroed registers, otherwise at 0x0100 with the post-boot values.
func (c *CPU) Reset(bootROM bool) {
	c.SetRegisters(Registers{})
	c.ime = false
	c.eiDelay = 0
	c.currentOpcode = 0
	c.halted = false
	c.haltBug = false
	c.stopped = false
	c.locked = false
	c.cycles = 0
	c.instructions = 0

	if bootROM {
		return
	}

	c.setAF(0x01B0)
	c.setBC(0x0013)
	c.setDE(0x00D8)
	c.setHL(0x014D)
	c.sp = 0xFFFE
	c.pc = addr.EntryPoint
}

// Step executes one instruction, or idles for one machine cycle while halted,
// stopped or locked. Returns the clock ticks consumed.
func (c *CPU) Step() int {
	if c.locked {
		return c.idle()
	}

	if c.halted {
		if c.pendingInterrupts() == 0 {
			return c.idle()
		}
		c.halted = false
	}

	if c.stopped {
		if !c.stopWake() {
			return c.idle()
		}
		c.stopped = false
	}

	start := c.pc
	opcode := c.fetch()
	c.currentOpcode = uint16(opcode)
	instruction := opcodes[opcode]
	if opcode == 0xCB {
		cb := c.fetch()
		c.currentOpcode = 0xCB00 | uint16(cb)
		instruction = opcodesCB[cb]
	}

	if instruction == nil {
		c.lock(start, opcode)
		return c.idle()
	}

	cycles := instruction(c)
	c.cycles += uint64(cycles)
	c.instructions++

	if c.eiDelay > 0 {
		c.eiDelay--
		if c.eiDelay == 0 {
			c.ime = true
		}
	}

	return cycles
}

func (c *CPU) idle() int {
	c.cycles += idleTicks
	return idleTicks
}

// fetch reads the byte at PC and advances it, except right after the halt bug.
func (c *CPU) fetch() uint8 {
	value := c.bus.Read(c.pc)
	if c.haltBug {
		c.haltBug = false
		return value
	}
	c.pc++
	return value
}

func (c *CPU) lock(pc uint16, opcode uint8) {
	c.pc = pc
	c.locked = true
	c.logger.Warn("illegal opcode, CPU locked",
		"opcode", fmt.Sprintf("0x%02X", opcode),
		"pc", fmt.Sprintf("0x%04X", pc))
}

func (c *CPU) pendingInterrupts() uint8 {
	return c.bus.Read(addr.IE) & c.bus.Read(addr.IF) & uint8(addr.InterruptMask)
}

// stopWake reports whether STOP mode should end: any enabled interrupt is
// pending, or a joypad line was pressed.
func (c *CPU) stopWake() bool {
	return c.pendingInterrupts() != 0 || c.bus.Read(addr.IF)&uint8(addr.JoypadInterrupt) != 0
}

// ServiceInterrupts dispatches the highest priority pending interrupt when IME
// is set and returns the ticks spent doing so. It also wakes a halted or
// stopped CPU.
func (c *CPU) ServiceInterrupts() int {
	if c.locked {
		return 0
	}

	pending := c.pendingInterrupts()
	if c.stopped && c.stopWake() {
		c.stopped = false
	}
	if pending == 0 {
		return 0
	}
	c.halted = false

	if !c.ime {
		return 0
	}

	for _, interrupt := range addr.Interrupts {
		if pending&uint8(interrupt) == 0 {
			continue
		}

		c.ime = false
		c.eiDelay = 0
		c.bus.Write(addr.IF, c.bus.Read(addr.IF)&^uint8(interrupt))
		// a HALT that triggered the bug returns to itself
		ret := c.pc
		if c.haltBug {
			ret--
			c.haltBug = false
		}
		c.pushStack(ret)
		c.pc = interrupt.Vector()
		c.cycles += InterruptDispatchTicks

		c.logger.Debug("interrupt dispatched", "interrupt", interrupt.String(), "vector", fmt.Sprintf("0x%04X", c.pc))
		return InterruptDispatchTicks
	}

	return 0
}

// readImmediate returns the byte at PC ('n' in mnemonics) and advances PC.
func (c *CPU) readImmediate() uint8 {
	n := c.bus.Read(c.pc)
	c.pc++
	return n
}

// readImmediateWord returns the little endian word at PC ('nn' in mnemonics) and advances PC twice.
func (c *CPU) readImmediateWord() uint16 {
	low := c.readImmediate()
	high := c.readImmediate()
	return bit.Combine(high, low)
}

// readSignedImmediate returns the byte at PC as a signed offset ('e' in mnemonics).
func (c *CPU) readSignedImmediate() int8 {
	return int8(c.readImmediate())
}

func (c *CPU) pushStack(value uint16) {
	c.sp--
	c.bus.Write(c.sp, bit.High(value))
	c.sp--
	c.bus.Write(c.sp, bit.Low(value))
}

func (c *CPU) popStack() uint16 {
	low := c.bus.Read(c.sp)
	c.sp++
	high := c.bus.Read(c.sp)
	c.sp++
	return bit.Combine(high, low)
}

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &^= uint8(flag)
}

func (c *CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

// flagToBit will return 1 if the passed flag is set, 0 otherwise
func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if !condition {
		c.resetFlag(flag)
		return
	}
	c.setFlag(flag)
}

// setFlags replaces all four flags at once.
func (c *CPU) setFlags(z, n, h, cy bool) {
	c.f = 0
	c.setFlagToCondition(zeroFlag, z)
	c.setFlagToCondition(subFlag, n)
	c.setFlagToCondition(halfCarryFlag, h)
	c.setFlagToCondition(carryFlag, cy)
}

func (c *CPU) setBC(value uint16) {
	c.b = bit.High(value)
	c.c = bit.Low(value)
}

func (c *CPU) getBC() uint16 {
	return bit.Combine(c.b, c.c)
}

func (c *CPU) setDE(value uint16) {
	c.d = bit.High(value)
	c.e = bit.Low(value)
}

func (c *CPU) getDE() uint16 {
	return bit.Combine(c.d, c.e)
}

func (c *CPU) setHL(value uint16) {
	c.h = bit.High(value)
	c.l = bit.Low(value)
}

func (c *CPU) getHL() uint16 {
	return bit.Combine(c.h, c.l)
}

func (c *CPU) setAF(value uint16) {
	c.a = bit.High(value)
	// F register lower 4 bits must be 0
	c.f = bit.Low(value) & 0xF0
}

func (c *CPU) getAF() uint16 {
	return bit.Combine(c.a, c.f)
}

// PC returns the program counter.
func (c *CPU) PC() uint16 { return c.pc }

// IME reports whether the interrupt master enable is set.
func (c *CPU) IME() bool { return c.ime }

// Halted reports whether the CPU is waiting in HALT for an interrupt.
func (c *CPU) Halted() bool { return c.halted }

// Stopped reports whether STOP put the CPU to sleep.
func (c *CPU) Stopped() bool { return c.stopped }

// Locked reports whether an illegal opcode hung the CPU.
func (c *CPU) Locked() bool { return c.locked }

// Cycles returns the clock ticks consumed since reset, interrupt dispatch included.
func (c *CPU) Cycles() uint64 { return c.cycles }

// Instructions returns the number of instructions executed since reset.
func (c *CPU) Instructions() uint64 { return c.instructions }

// CurrentOpcode returns the last decoded opcode, 0xCBxx for prefixed ones.
func (c *CPU) CurrentOpcode() uint16 { return c.currentOpcode }

// FlagString returns a human-readable representation of the flag register
func (c *CPU) FlagString() string {
	flags := []byte("----")
	for i, f := range []Flag{zeroFlag, subFlag, halfCarryFlag, carryFlag} {
		if c.isSetFlag(f) {
			flags[i] = "ZNHC"[i]
		}
	}
	return string(flags)
}

// State captures the CPU for a save state.
func (c *CPU) State() State {
	return State{
		Registers:    c.Registers(),
		IME:          c.ime,
		EIDelay:      c.eiDelay,
		Halted:       c.halted,
		HaltBug:      c.haltBug,
		Stopped:      c.stopped,
		Locked:       c.locked,
		Cycles:       c.cycles,
		Instructions: c.instructions,
	}
}

// Restore loads a state captured by State.
func (c *CPU) Restore(s State) {
	c.SetRegisters(s.Registers)
	c.ime = s.IME
	c.eiDelay = s.EIDelay
	c.halted = s.Halted
	c.haltBug = s.HaltBug
	c.stopped = s.Stopped
	c.locked = s.Locked
	c.cycles = s.Cycles
	c.instructions = s.Instructions
}
