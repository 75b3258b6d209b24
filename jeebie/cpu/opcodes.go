package cpu

import (
	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
)

// Opcode executes one decoded instruction and returns the clock ticks it took.
type Opcode func(*CPU) int

// opcodes and opcodesCB are built once at init. Nil entries are the illegal
// opcodes that lock the CPU.
var (
	opcodes   [256]Opcode
	opcodesCB [256]Opcode
)

// illegalOpcodes hang the DMG CPU when executed.
var illegalOpcodes = [...]uint8{0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD}

func init() {
	buildLoads()
	buildArithmetic()
	buildControlFlow()
	buildMisc()
	buildCB()
}

// Decode returns the handler for the instruction at PC without executing it,
// or nil for an illegal opcode.
func Decode(c *CPU) Opcode {
	op := c.bus.Read(c.pc)
	if op == 0xCB {
		return opcodesCB[c.bus.Read(c.pc+1)]
	}
	return opcodes[op]
}

// ticks converts machine cycles to clock ticks.
func ticks(mcycles int) int {
	return mcycles * 4
}

func buildLoads() {
	// LD r, r' (0x40-0x7F, 0x76 is HALT)
	for op := 0x40; op < 0x80; op++ {
		if op == 0x76 {
			continue
		}
		dst, src := bit.ExtractBits(uint8(op), 5, 3), bit.ExtractBits(uint8(op), 2, 0)
		cost := ticks(1)
		if dst == regHL || src == regHL {
			cost = ticks(2)
		}
		opcodes[op] = func(c *CPU) int {
			c.setReg(dst, c.reg(src))
			return cost
		}
	}

	// LD r, n
	for r := uint8(0); r < 8; r++ {
		cost := ticks(2)
		if r == regHL {
			cost = ticks(3)
		}
		opcodes[r<<3|0x06] = func(c *CPU) int {
			c.setReg(r, c.readImmediate())
			return cost
		}
	}

	// LD rr, nn
	for p := uint8(0); p < 4; p++ {
		opcodes[p<<4|0x01] = func(c *CPU) int {
			c.setPair(p, c.readImmediateWord())
			return ticks(3)
		}
	}

	// LD (BC),A / LD (DE),A / LD (HL+),A / LD (HL-),A and the matching loads into A
	for i := uint8(0); i < 4; i++ {
		opcodes[i<<4|0x02] = func(c *CPU) int {
			c.bus.Write(c.indirectAddress(i), c.a)
			return ticks(2)
		}
		opcodes[i<<4|0x0A] = func(c *CPU) int {
			c.a = c.bus.Read(c.indirectAddress(i))
			return ticks(2)
		}
	}

	// PUSH rr / POP rr
	for p := uint8(0); p < 4; p++ {
		opcodes[0xC1|p<<4] = func(c *CPU) int {
			c.setStackPair(p, c.popStack())
			return ticks(3)
		}
		opcodes[0xC5|p<<4] = func(c *CPU) int {
			c.pushStack(c.stackPair(p))
			return ticks(4)
		}
	}

	//LD (nn), SP
	opcodes[0x08] = func(c *CPU) int {
		nn := c.readImmediateWord()
		c.bus.Write(nn, uint8(c.sp))
		c.bus.Write(nn+1, uint8(c.sp>>8))
		return ticks(5)
	}

	//LDH (n), A
	opcodes[0xE0] = func(c *CPU) int {
		c.bus.Write(addr.IOStart|uint16(c.readImmediate()), c.a)
		return ticks(3)
	}

	//LDH A, (n)
	opcodes[0xF0] = func(c *CPU) int {
		c.a = c.bus.Read(addr.IOStart | uint16(c.readImmediate()))
		return ticks(3)
	}

	//LD (C), A
	opcodes[0xE2] = func(c *CPU) int {
		c.bus.Write(addr.IOStart|uint16(c.c), c.a)
		return ticks(2)
	}

	//LD A, (C)
	opcodes[0xF2] = func(c *CPU) int {
		c.a = c.bus.Read(addr.IOStart | uint16(c.c))
		return ticks(2)
	}

	//LD (nn), A
	opcodes[0xEA] = func(c *CPU) int {
		c.bus.Write(c.readImmediateWord(), c.a)
		return ticks(4)
	}

	//LD A, (nn)
	opcodes[0xFA] = func(c *CPU) int {
		c.a = c.bus.Read(c.readImmediateWord())
		return ticks(4)
	}

	//LD HL, SP+e
	opcodes[0xF8] = func(c *CPU) int {
		c.setHL(c.spPlusOffset(c.readSignedImmediate()))
		return ticks(3)
	}

	//LD SP, HL
	opcodes[0xF9] = func(c *CPU) int {
		c.sp = c.getHL()
		return ticks(2)
	}
}

// indirectAddress resolves the operand of the 0x02/0x0A column: (BC), (DE),
// (HL+) or (HL-), applying the HL post-increment or decrement.
func (c *CPU) indirectAddress(index uint8) uint16 {
	switch index {
	case 0:
		return c.getBC()
	case 1:
		return c.getDE()
	}
	hl := c.getHL()
	if index == 2 {
		c.setHL(hl + 1)
	} else {
		c.setHL(hl - 1)
	}
	return hl
}

func buildArithmetic() {
	// ALU A, r (0x80-0xBF)
	for op := 0x80; op < 0xC0; op++ {
		kind, src := bit.ExtractBits(uint8(op), 5, 3), bit.ExtractBits(uint8(op), 2, 0)
		cost := ticks(1)
		if src == regHL {
			cost = ticks(2)
		}
		opcodes[op] = func(c *CPU) int {
			c.alu(kind, c.reg(src))
			return cost
		}
	}

	// ALU A, n
	for kind := uint8(0); kind < 8; kind++ {
		opcodes[0xC6|kind<<3] = func(c *CPU) int {
			c.alu(kind, c.readImmediate())
			return ticks(2)
		}
	}

	// INC r / DEC r
	for r := uint8(0); r < 8; r++ {
		cost := ticks(1)
		if r == regHL {
			cost = ticks(3)
		}
		opcodes[r<<3|0x04] = func(c *CPU) int {
			c.setReg(r, c.inc(c.reg(r)))
			return cost
		}
		opcodes[r<<3|0x05] = func(c *CPU) int {
			c.setReg(r, c.dec(c.reg(r)))
			return cost
		}
	}

	// INC rr / DEC rr / ADD HL, rr
	for p := uint8(0); p < 4; p++ {
		opcodes[p<<4|0x03] = func(c *CPU) int {
			c.setPair(p, c.pair(p)+1)
			return ticks(2)
		}
		opcodes[p<<4|0x0B] = func(c *CPU) int {
			c.setPair(p, c.pair(p)-1)
			return ticks(2)
		}
		opcodes[p<<4|0x09] = func(c *CPU) int {
			c.addToHL(c.pair(p))
			return ticks(2)
		}
	}

	//ADD SP, e
	opcodes[0xE8] = func(c *CPU) int {
		c.sp = c.spPlusOffset(c.readSignedImmediate())
		return ticks(4)
	}

	//RLCA / RRCA / RLA / RRA: like the CB rotations but Z is always cleared
	for op := uint8(0); op < 4; op++ {
		opcodes[op<<3|0x07] = func(c *CPU) int {
			c.a = c.rotate(op, c.a)
			c.resetFlag(zeroFlag)
			return ticks(1)
		}
	}

	opcodes[0x27] = func(c *CPU) int { c.daa(); return ticks(1) }
	opcodes[0x2F] = func(c *CPU) int { c.cpl(); return ticks(1) }
	opcodes[0x37] = func(c *CPU) int { c.scf(); return ticks(1) }
	opcodes[0x3F] = func(c *CPU) int { c.ccf(); return ticks(1) }
}

func buildControlFlow() {
	//JR e
	opcodes[0x18] = func(c *CPU) int {
		c.jumpRelative(c.readSignedImmediate())
		return ticks(3)
	}

	//JP nn
	opcodes[0xC3] = func(c *CPU) int {
		c.pc = c.readImmediateWord()
		return ticks(4)
	}

	//JP HL
	opcodes[0xE9] = func(c *CPU) int {
		c.pc = c.getHL()
		return ticks(1)
	}

	//CALL nn
	opcodes[0xCD] = func(c *CPU) int {
		target := c.readImmediateWord()
		c.pushStack(c.pc)
		c.pc = target
		return ticks(6)
	}

	//RET
	opcodes[0xC9] = func(c *CPU) int {
		c.pc = c.popStack()
		return ticks(4)
	}

	//RETI
	opcodes[0xD9] = func(c *CPU) int {
		c.pc = c.popStack()
		c.ime = true
		c.eiDelay = 0
		return ticks(4)
	}

	for cc := uint8(0); cc < 4; cc++ {
		//JR cc, e
		opcodes[0x20|cc<<3] = func(c *CPU) int {
			offset := c.readSignedImmediate()
			if !c.condition(cc) {
				return ticks(2)
			}
			c.jumpRelative(offset)
			return ticks(3)
		}

		//JP cc, nn
		opcodes[0xC2|cc<<3] = func(c *CPU) int {
			target := c.readImmediateWord()
			if !c.condition(cc) {
				return ticks(3)
			}
			c.pc = target
			return ticks(4)
		}

		//CALL cc, nn
		opcodes[0xC4|cc<<3] = func(c *CPU) int {
			target := c.readImmediateWord()
			if !c.condition(cc) {
				return ticks(3)
			}
			c.pushStack(c.pc)
			c.pc = target
			return ticks(6)
		}

		//RET cc
		opcodes[0xC0|cc<<3] = func(c *CPU) int {
			if !c.condition(cc) {
				return ticks(2)
			}
			c.pc = c.popStack()
			return ticks(5)
		}
	}

	//RST n
	for n := uint8(0); n < 8; n++ {
		vector := uint16(n) * 8
		opcodes[0xC7|n<<3] = func(c *CPU) int {
			c.pushStack(c.pc)
			c.pc = vector
			return ticks(4)
		}
	}
}

func (c *CPU) jumpRelative(offset int8) {
	c.pc = uint16(int32(c.pc) + int32(offset))
}

func buildMisc() {
	//NOP
	opcodes[0x00] = func(c *CPU) int {
		return ticks(1)
	}

	//STOP: the second byte is consumed and the divider is reset
	opcodes[0x10] = func(c *CPU) int {
		c.readImmediate()
		c.bus.Write(addr.DIV, 0)
		c.stopped = true
		return ticks(1)
	}

	//HALT
	opcodes[0x76] = func(c *CPU) int {
		if !c.ime && c.pendingInterrupts() != 0 {
			c.haltBug = true
			return ticks(1)
		}
		c.halted = true
		return ticks(1)
	}

	//DI
	opcodes[0xF3] = func(c *CPU) int {
		c.ime = false
		c.eiDelay = 0
		return ticks(1)
	}

	//EI
	opcodes[0xFB] = func(c *CPU) int {
		if !c.ime && c.eiDelay == 0 {
			c.eiDelay = eiDelaySteps
		}
		return ticks(1)
	}

	// 0xCB is only a prefix, Step never dispatches it directly
	opcodes[0xCB] = nil

	for _, op := range illegalOpcodes {
		opcodes[op] = nil
	}
}

func buildCB() {
	for op := 0; op < 0x100; op++ {
		group, n, r := bit.ExtractBits(uint8(op), 7, 6), bit.ExtractBits(uint8(op), 5, 3), bit.ExtractBits(uint8(op), 2, 0)

		cost := ticks(2)
		if r == regHL {
			cost = ticks(4)
			if group == 1 {
				cost = ticks(3)
			}
		}

		switch group {
		case 0:
			opcodesCB[op] = func(c *CPU) int {
				c.setReg(r, c.rotate(n, c.reg(r)))
				return cost
			}
		case 1:
			opcodesCB[op] = func(c *CPU) int {
				c.testBit(n, c.reg(r))
				return cost
			}
		case 2:
			opcodesCB[op] = func(c *CPU) int {
				c.setReg(r, c.reg(r)&^(1<<n))
				return cost
			}
		default:
			opcodesCB[op] = func(c *CPU) int {
				c.setReg(r, c.reg(r)|1<<n)
				return cost
			}
		}
	}
}
