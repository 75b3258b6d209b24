package cpu

import "github.com/valerio/jeebie-core/jeebie/bit"

// Registers is a copy of the register file.
type Registers struct {
	A, F, B, C, D, E, H, L uint8
	SP, PC                 uint16
}

func (r Registers) AF() uint16 { return bit.Combine(r.A, r.F) }
func (r Registers) BC() uint16 { return bit.Combine(r.B, r.C) }
func (r Registers) DE() uint16 { return bit.Combine(r.D, r.E) }
func (r Registers) HL() uint16 { return bit.Combine(r.H, r.L) }

// Registers returns a copy of the register file.
func (c *CPU) Registers() Registers {
	return Registers{
		A: c.a, F: c.f, B: c.b, C: c.c, D: c.d, E: c.e, H: c.h, L: c.l,
		SP: c.sp, PC: c.pc,
	}
}

// SetRegisters loads the register file. The low nibble of F always reads 0.
func (c *CPU) SetRegisters(r Registers) {
	c.a, c.b, c.c, c.d, c.e, c.h, c.l = r.A, r.B, r.C, r.D, r.E, r.H, r.L
	c.f = r.F & 0xF0
	c.sp, c.pc = r.SP, r.PC
}

// Operand indexes used by the opcode encoding: 0-7 = B, C, D, E, H, L, (HL), A.
const (
	regB uint8 = iota
	regC
	regD
	regE
	regH
	regL
	regHL
	regA
)

var regNames = [8]string{"B", "C", "D", "E", "H", "L", "(HL)", "A"}

// reg reads an 8-bit operand by its encoding index.
func (c *CPU) reg(index uint8) uint8 {
	switch index {
	case regB:
		return c.b
	case regC:
		return c.c
	case regD:
		return c.d
	case regE:
		return c.e
	case regH:
		return c.h
	case regL:
		return c.l
	case regHL:
		return c.bus.Read(c.getHL())
	}
	return c.a
}

// setReg writes an 8-bit operand by its encoding index.
func (c *CPU) setReg(index, value uint8) {
	switch index {
	case regB:
		c.b = value
	case regC:
		c.c = value
	case regD:
		c.d = value
	case regE:
		c.e = value
	case regH:
		c.h = value
	case regL:
		c.l = value
	case regHL:
		c.bus.Write(c.getHL(), value)
	default:
		c.a = value
	}
}

// Register pair indexes: 0-3 = BC, DE, HL, SP (AF replaces SP for PUSH/POP).
var pairNames = [4]string{"BC", "DE", "HL", "SP"}

func (c *CPU) pair(index uint8) uint16 {
	switch index {
	case 0:
		return c.getBC()
	case 1:
		return c.getDE()
	case 2:
		return c.getHL()
	}
	return c.sp
}

func (c *CPU) setPair(index uint8, value uint16) {
	switch index {
	case 0:
		c.setBC(value)
	case 1:
		c.setDE(value)
	case 2:
		c.setHL(value)
	default:
		c.sp = value
	}
}

func (c *CPU) stackPair(index uint8) uint16 {
	if index == 3 {
		return c.getAF()
	}
	return c.pair(index)
}

func (c *CPU) setStackPair(index uint8, value uint16) {
	if index == 3 {
		c.setAF(value)
		return
	}
	c.setPair(index, value)
}

// Condition codes used by JR, JP, CALL and RET: NZ, Z, NC, C.
var conditionNames = [4]string{"NZ", "Z", "NC", "C"}

func (c *CPU) condition(index uint8) bool {
	switch index {
	case 0:
		return !c.isSetFlag(zeroFlag)
	case 1:
		return c.isSetFlag(zeroFlag)
	case 2:
		return !c.isSetFlag(carryFlag)
	}
	return c.isSetFlag(carryFlag)
}
