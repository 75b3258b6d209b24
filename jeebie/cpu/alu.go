package cpu

import "github.com/valerio/jeebie-core/jeebie/bit"

// add sets A to A + value (+ carry for ADC), setting all flags.
func (c *CPU) add(value uint8, withCarry bool) {
	var carry uint8
	if withCarry {
		carry = c.flagToBit(carryFlag)
	}
	a := c.a
	result := uint16(a) + uint16(value) + uint16(carry)
	c.a = uint8(result)
	c.setFlags(c.a == 0, false, bit.HalfCarryAdd(a, value, carry), result > 0xFF)
}

// sub sets A to A - value (- carry for SBC), setting all flags.
func (c *CPU) sub(value uint8, withCarry bool) {
	c.a = c.compare(value, withCarry)
}

// compare computes A - value without storing it, setting flags as SUB does.
func (c *CPU) compare(value uint8, withCarry bool) uint8 {
	var carry uint8
	if withCarry {
		carry = c.flagToBit(carryFlag)
	}
	a := c.a
	result := a - value - carry
	c.setFlags(result == 0, true, bit.HalfBorrowSub(a, value, carry), uint16(a) < uint16(value)+uint16(carry))
	return result
}

func (c *CPU) and(value uint8) {
	c.a &= value
	c.setFlags(c.a == 0, false, true, false)
}

func (c *CPU) xor(value uint8) {
	c.a ^= value
	c.setFlags(c.a == 0, false, false, false)
}

func (c *CPU) or(value uint8) {
	c.a |= value
	c.setFlags(c.a == 0, false, false, false)
}

// alu runs one of the eight accumulator operations in opcode order:
// ADD, ADC, SUB, SBC, AND, XOR, OR, CP.
func (c *CPU) alu(op, value uint8) {
	switch op {
	case 0:
		c.add(value, false)
	case 1:
		c.add(value, true)
	case 2:
		c.sub(value, false)
	case 3:
		c.sub(value, true)
	case 4:
		c.and(value)
	case 5:
		c.xor(value)
	case 6:
		c.or(value)
	default:
		c.compare(value, false)
	}
}

// inc returns value + 1, leaving the carry flag untouched.
func (c *CPU) inc(value uint8) uint8 {
	result := value + 1
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, value&0x0F == 0x0F)
	return result
}

// dec returns value - 1, leaving the carry flag untouched.
func (c *CPU) dec(value uint8) uint8 {
	result := value - 1
	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, value&0x0F == 0)
	return result
}

// addToHL adds a 16 bit value to HL. H comes from bit 11, C from bit 15, Z is kept.
func (c *CPU) addToHL(value uint16) {
	hl := c.getHL()
	result := uint32(hl) + uint32(value)

	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, (hl&0x0FFF)+(value&0x0FFF) > 0x0FFF)
	c.setFlagToCondition(carryFlag, result > 0xFFFF)

	c.setHL(uint16(result))
}

// spPlusOffset computes SP + e for ADD SP,e and LD HL,SP+e. H and C come
// from the unsigned addition of the low byte, Z and N are cleared.
func (c *CPU) spPlusOffset(offset int8) uint16 {
	sp := c.sp
	low := uint8(offset)
	c.setFlags(false, false,
		(sp&0x0F)+uint16(low&0x0F) > 0x0F,
		(sp&0xFF)+uint16(low) > 0xFF)
	return uint16(int32(sp) + int32(offset))
}

// daa adjusts A to packed BCD after an addition or subtraction.
func (c *CPU) daa() {
	a := c.a
	carry := c.isSetFlag(carryFlag)

	if !c.isSetFlag(subFlag) {
		if carry || a > 0x99 {
			a += 0x60
			carry = true
		}
		if c.isSetFlag(halfCarryFlag) || a&0x0F > 0x09 {
			a += 0x06
		}
	} else {
		if carry {
			a -= 0x60
		}
		if c.isSetFlag(halfCarryFlag) {
			a -= 0x06
		}
	}

	c.a = a
	c.setFlagToCondition(zeroFlag, a == 0)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, carry)
}

func (c *CPU) cpl() {
	c.a = ^c.a
	c.setFlag(subFlag)
	c.setFlag(halfCarryFlag)
}

func (c *CPU) scf() {
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlag(carryFlag)
}

func (c *CPU) ccf() {
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, !c.isSetFlag(carryFlag))
}

// rotate runs one of the eight CB shift/rotate operations in opcode order:
// RLC, RRC, RL, RR, SLA, SRA, SWAP, SRL. Z is set from the result.
func (c *CPU) rotate(op, value uint8) uint8 {
	var result uint8
	carry := false

	switch op {
	case 0: // RLC
		carry = value&0x80 != 0
		result = value<<1 | value>>7
	case 1: // RRC
		carry = value&0x01 != 0
		result = value>>1 | value<<7
	case 2: // RL
		carry = value&0x80 != 0
		result = value<<1 | c.flagToBit(carryFlag)
	case 3: // RR
		carry = value&0x01 != 0
		result = value>>1 | c.flagToBit(carryFlag)<<7
	case 4: // SLA
		carry = value&0x80 != 0
		result = value << 1
	case 5: // SRA
		carry = value&0x01 != 0
		result = value>>1 | value&0x80
	case 6: // SWAP
		result = value<<4 | value>>4
	default: // SRL
		carry = value&0x01 != 0
		result = value >> 1
	}

	c.setFlags(result == 0, false, false, carry)
	return result
}

// testBit implements BIT n: Z is set when the bit is clear, C is kept.
func (c *CPU) testBit(index, value uint8) {
	c.setFlagToCondition(zeroFlag, !bit.IsSet(index, value))
	c.resetFlag(subFlag)
	c.setFlag(halfCarryFlag)
}
