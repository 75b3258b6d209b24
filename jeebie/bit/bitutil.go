package bit

// Combine combines two 8 bit values into a single 16 bit value.
// The high byte will be the most significant one.
func Combine(high, low uint8) uint16 {
	return (uint16(high) << 8) | uint16(low)
}

// Low returns the low (LSB) part of a 16 bit number.
func Low(value uint16) uint8 {
	return uint8(value)
}

// High returns the high (MSB) part of a 16 bit number.
func High(value uint16) uint8 {
	return uint8(value >> 8)
}

// IsSet will check if the bit at the specified index is set to 1 or not.
func IsSet(index, value uint8) bool {
	return (value>>index)&1 == 1
}

// Set returns value with the bit at index set to 1.
func Set(index, value uint8) uint8 {
	return value | (1 << index)
}

// Reset returns value with the bit at index set to 0.
func Reset(index, value uint8) uint8 {
	return value &^ (1 << index)
}

// SetTo sets or resets the bit at index depending on on.
func SetTo(index, value uint8, on bool) uint8 {
	if on {
		return Set(index, value)
	}
	return Reset(index, value)
}

// Value returns 1 if the bit at index is set, 0 otherwise.
func Value(index, value uint8) uint8 {
	return (value >> index) & 1
}

// ExtractBits extracts bits from highBit to lowBit (inclusive)
// Example: ExtractBits(0b11010110, 6, 4) -> 0b101 (extracts bits 6, 5, 4)
func ExtractBits(value uint8, highBit, lowBit uint8) uint8 {
	width := highBit - lowBit + 1
	mask := uint8((1 << width) - 1)
	return (value >> lowBit) & mask
}

// HalfCarryAdd reports a carry out of bit 3 when adding a, b and carry.
func HalfCarryAdd(a, b, carry uint8) bool {
	return (a&0x0F)+(b&0x0F)+carry > 0x0F
}

// HalfBorrowSub reports a borrow from bit 4 when subtracting b and carry from a.
func HalfBorrowSub(a, b, carry uint8) bool {
	return int(a&0x0F)-int(b&0x0F)-int(carry) < 0
}

// Rising reports whether a signal went from low to high.
func Rising(before, after bool) bool {
	return !before && after
}

// Falling reports whether a signal went from high to low.
func Falling(before, after bool) bool {
	return before && !after
}
