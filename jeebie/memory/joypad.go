package memory

import "github.com/valerio/jeebie-core/jeebie/bit"

// JoypadKey is a bit index into the host joypad state byte.
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// Joypad holds the host-side button state and the P1 selection bits.
//
// The pressed byte uses 1 for pressed: bits 0-3 are the d-pad (Right, Left, Up,
// Down), bits 4-7 the buttons (A, B, Select, Start). P1 itself is active low.
type Joypad struct {
	pressed byte
	selects byte
}

// SetState replaces the pressed keys and returns the keys that went from
// released to pressed.
func (j *Joypad) SetState(state byte) byte {
	newlyPressed := state &^ j.pressed
	j.pressed = state
	return newlyPressed
}

// Press marks a single key as pressed and reports whether it was newly pressed.
func (j *Joypad) Press(key JoypadKey) bool {
	return j.SetState(bit.Set(uint8(key), j.pressed)) != 0
}

// Release marks a single key as released.
func (j *Joypad) Release(key JoypadKey) {
	j.SetState(bit.Reset(uint8(key), j.pressed))
}

// Pressed returns the pressed-keys byte.
func (j *Joypad) Pressed() byte {
	return j.pressed
}

// Read returns P1. If bit 4 is clear the d-pad is mapped to bits 0-3, if bit 5
// is clear the buttons are. With both selected the lines are ANDed, with none
// selected the lines float high. Bits 6-7 always read 1.
func (j *Joypad) Read() byte {
	lines := byte(0x0F)
	if !bit.IsSet(4, j.selects) {
		lines &^= j.pressed & 0x0F
	}
	if !bit.IsSet(5, j.selects) {
		lines &^= j.pressed >> 4
	}
	return 0xC0 | j.selects | lines
}

// Write updates the selection bits; the rest of P1 is read-only.
func (j *Joypad) Write(value byte) {
	j.selects = value & 0x30
}

// JoypadState is the serializable state of the joypad.
type JoypadState struct {
	Pressed byte
	Selects byte
}

func (j *Joypad) State() JoypadState {
	return JoypadState{Pressed: j.pressed, Selects: j.selects}
}

func (j *Joypad) Restore(s JoypadState) {
	j.pressed = s.Pressed
	j.selects = s.Selects & 0x30
}
