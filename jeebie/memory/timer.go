package memory

import (
	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
)

// tacLookup maps TAC input clock select (bits 1-0) to the bit of the internal
// divider whose falling edge clocks TIMA.
//
//	00 -> bit 9  (4096 Hz)
//	01 -> bit 3  (262144 Hz)
//	10 -> bit 5  (65536 Hz)
//	11 -> bit 7  (16384 Hz)
var tacLookup = [4]uint16{9, 3, 5, 7}

// timaReloadDelay is the number of clock ticks between TIMA overflowing and TMA being loaded.
const timaReloadDelay = 4

// TimerState is the serializable state of the timer.
type TimerState struct {
	Divider    uint16
	LastBit    bool
	Reload     int
	PendingIRQ bool
	TIMA       byte
	TMA        byte
	TAC        byte
}

// Timer implements DIV/TIMA/TMA/TAC. DIV is the upper byte of a free-running
// 16-bit divider; TIMA counts falling edges of the divider bit picked by TAC.
type Timer struct {
	s TimerState

	// OnOverflow is called when TIMA is reloaded after an overflow.
	OnOverflow func()
}

// SetSeed initializes the internal divider. The post-boot state starts with a non-zero divider.
func (t *Timer) SetSeed(seed uint16) {
	t.s = TimerState{Divider: seed}
}

// Tick advances the timer by the given number of clock ticks.
func (t *Timer) Tick(cycles int) {
	for range cycles {
		if t.s.PendingIRQ {
			if t.OnOverflow != nil {
				t.OnOverflow()
			}
			t.s.PendingIRQ = false
		}

		t.s.Divider++

		if t.s.Reload > 0 {
			t.s.Reload--
			if t.s.Reload == 0 {
				t.s.TIMA = t.s.TMA
				t.s.PendingIRQ = true
			}
		}

		t.checkEdge()
	}
}

// checkEdge increments TIMA when the selected divider bit falls. Disabling the
// timer drops the input to 0, which counts as a falling edge too.
func (t *Timer) checkEdge() {
	current := bit.IsSet(2, t.s.TAC) && t.s.Divider&(1<<tacLookup[t.s.TAC&0x03]) != 0
	if bit.Falling(t.s.LastBit, current) {
		t.incrementTIMA()
	}
	t.s.LastBit = current
}

func (t *Timer) incrementTIMA() {
	if t.s.TIMA == 0xFF {
		t.s.Reload = timaReloadDelay
	}
	t.s.TIMA++
}

func (t *Timer) Read(address uint16) byte {
	switch address {
	case addr.DIV:
		return byte(t.s.Divider >> 8)
	case addr.TIMA:
		return t.s.TIMA
	case addr.TMA:
		return t.s.TMA
	case addr.TAC:
		return t.s.TAC | 0xF8
	default:
		return 0xFF
	}
}

func (t *Timer) Write(address uint16, value byte) {
	switch address {
	case addr.DIV:
		t.s.Divider = 0
		t.checkEdge()
	case addr.TIMA:
		// a write during the reload window cancels the reload
		t.s.TIMA = value
		t.s.Reload = 0
	case addr.TMA:
		t.s.TMA = value
	case addr.TAC:
		t.s.TAC = value & 0x07
		t.checkEdge()
	}
}

// State returns a copy of the timer state.
func (t *Timer) State() TimerState {
	return t.s
}

// Restore replaces the timer state.
func (t *Timer) Restore(s TimerState) {
	t.s = s
}
