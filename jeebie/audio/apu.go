package audio

import (
	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
)

// ChannelState is the externally visible state of one sound channel.
type ChannelState struct {
	Enabled bool
	// Frequency is the raw 11-bit period value from NRx3/NRx4.
	Frequency uint16
	// Volume is the current envelope volume (0-15), or the wave output level (0-3).
	Volume uint8

	LengthCounter  uint16
	LengthEnabled  bool
	EnvelopePeriod uint8
	EnvelopeUp     bool
	EnvelopeTimer  uint8
}

// State is the serializable state of the APU.
type State struct {
	Powered     bool
	Registers   [registerCount]byte
	Channels    [numChannels]ChannelState
	FrameStep   int
	FrameCycles int
}

// APU mirrors the sound registers and tracks channel enable, frequency, volume,
// length and envelope. It produces no samples; output is left to the host.
// Reference: https://gbdev.io/pandocs/Audio.html
type APU struct {
	s State
}

// New creates an APU with the post-boot register values.
func New() *APU {
	a := &APU{}
	a.Reset()
	return a
}

// Reset restores the post-boot register values.
// Reference: https://gbdev.io/pandocs/Power_Up_Sequence.html#hardware-registers
func (a *APU) Reset() {
	a.s = State{Powered: true}
	r := &a.s.Registers
	r[addr.NR10-addr.AudioStart] = 0x80
	r[addr.NR11-addr.AudioStart] = 0xBF
	r[addr.NR12-addr.AudioStart] = 0xF3
	r[addr.NR14-addr.AudioStart] = 0xBF
	r[addr.NR21-addr.AudioStart] = 0x3F
	r[addr.NR24-addr.AudioStart] = 0xBF
	r[addr.NR30-addr.AudioStart] = 0x7F
	r[addr.NR31-addr.AudioStart] = 0xFF
	r[addr.NR32-addr.AudioStart] = 0x9F
	r[addr.NR34-addr.AudioStart] = 0xBF
	r[addr.NR41-addr.AudioStart] = 0xFF
	r[addr.NR44-addr.AudioStart] = 0xBF
	r[addr.NR50-addr.AudioStart] = 0x77
	r[addr.NR51-addr.AudioStart] = 0xF3
	r[nr52Index] = 0xF1

	// the boot ROM leaves channel 1 playing its chime
	a.s.Channels[0] = ChannelState{Enabled: true, EnvelopePeriod: 3}
}

// Tick advances the frame sequencer.
func (a *APU) Tick(cycles int) {
	if !a.s.Powered {
		return
	}

	a.s.FrameCycles += cycles
	for a.s.FrameCycles >= cyclesPerStep {
		a.s.FrameCycles -= cyclesPerStep
		a.stepFrameSequencer()
	}
}

// stepFrameSequencer clocks length counters on even steps and envelopes on step 7.
//
//	Step   Length  Sweep  Envelope
//	0      Clock   -      -
//	2      Clock   Clock  -
//	4      Clock   -      -
//	6      Clock   Clock  -
//	7      -       -      Clock
func (a *APU) stepFrameSequencer() {
	switch a.s.FrameStep {
	case 0, 2, 4, 6:
		a.clockLengths()
	case 7:
		a.clockEnvelopes()
	}
	a.s.FrameStep = (a.s.FrameStep + 1) & 7
}

func (a *APU) clockLengths() {
	for i := range a.s.Channels {
		ch := &a.s.Channels[i]
		if ch.LengthEnabled && ch.LengthCounter > 0 {
			ch.LengthCounter--
			if ch.LengthCounter == 0 {
				ch.Enabled = false
			}
		}
	}
}

func (a *APU) clockEnvelopes() {
	// the wave channel has no envelope
	for _, i := range []int{0, 1, 3} {
		ch := &a.s.Channels[i]
		if ch.EnvelopePeriod == 0 {
			continue
		}
		ch.EnvelopeTimer++
		if ch.EnvelopeTimer < ch.EnvelopePeriod {
			continue
		}
		ch.EnvelopeTimer = 0
		if ch.EnvelopeUp && ch.Volume < 15 {
			ch.Volume++
		} else if !ch.EnvelopeUp && ch.Volume > 0 {
			ch.Volume--
		}
	}
}

// ReadRegister reads a sound register or wave RAM byte.
func (a *APU) ReadRegister(address uint16) uint8 {
	if address < addr.AudioStart || address > addr.AudioEnd {
		return 0xFF
	}

	index := address - addr.AudioStart
	if address >= addr.WaveRAMStart {
		return a.s.Registers[index]
	}
	if address == addr.NR52 {
		status := bit.SetTo(nr52PowerBit, nr52UnusedMask, a.s.Powered)
		for i, ch := range a.s.Channels {
			status = bit.SetTo(uint8(i), status, ch.Enabled)
		}
		return status
	}
	return a.s.Registers[index] | readMasks[index]
}

// WriteRegister writes a sound register. While powered off only NR52 and wave RAM accept writes.
func (a *APU) WriteRegister(address uint16, value uint8) {
	if address < addr.AudioStart || address > addr.AudioEnd {
		return
	}

	index := address - addr.AudioStart
	switch {
	case address >= addr.WaveRAMStart:
		a.s.Registers[index] = value
		return
	case address == addr.NR52:
		a.setPower(bit.IsSet(nr52PowerBit, value))
		return
	case !a.s.Powered:
		return
	}

	a.s.Registers[index] = value
	a.mapRegisterToState(address, value)
}

func (a *APU) setPower(on bool) {
	if a.s.Powered && !on {
		for i := addr.AudioStart; i < addr.WaveRAMStart; i++ {
			a.s.Registers[i-addr.AudioStart] = 0
		}
		a.s.Channels = [numChannels]ChannelState{}
	}
	if !a.s.Powered && on {
		a.s.FrameStep = 0
		a.s.FrameCycles = 0
	}
	a.s.Powered = on
}

func (a *APU) reg(address uint16) uint8 {
	return a.s.Registers[address-addr.AudioStart]
}

func setFrequencyLow(current uint16, low uint8) uint16 {
	return current&0x700 | uint16(low)
}

func setFrequencyHigh(current uint16, high uint8) uint16 {
	return current&0xFF | uint16(high&0x07)<<8
}

func (ch *ChannelState) setEnvelope(value uint8) {
	ch.Volume = value >> 4
	ch.EnvelopePeriod = value & 0x07
	ch.EnvelopeUp = bit.IsSet(envelopeUpBit, value)
	if value&dacEnabledMask == 0 {
		ch.Enabled = false
	}
}

// trigger restarts a channel. An expired length counter reloads to its maximum.
func (ch *ChannelState) trigger(envelope uint8, steps uint16) {
	ch.Enabled = envelope&dacEnabledMask != 0
	ch.Volume = envelope >> 4
	ch.EnvelopeTimer = 0
	if ch.LengthCounter == 0 {
		ch.LengthCounter = steps
	}
}

// mapRegisterToState updates channel state from a register write.
func (a *APU) mapRegisterToState(address uint16, value uint8) {
	ch1, ch2, ch3, ch4 := &a.s.Channels[0], &a.s.Channels[1], &a.s.Channels[2], &a.s.Channels[3]

	switch address {
	case addr.NR11:
		ch1.LengthCounter = pulseLengthSteps - uint16(value&pulseLengthMask)
	case addr.NR12:
		ch1.setEnvelope(value)
	case addr.NR13:
		ch1.Frequency = setFrequencyLow(ch1.Frequency, value)
	case addr.NR14:
		ch1.Frequency = setFrequencyHigh(ch1.Frequency, value)
		ch1.LengthEnabled = bit.IsSet(lengthEnableBit, value)
		if bit.IsSet(triggerBit, value) {
			ch1.trigger(a.reg(addr.NR12), pulseLengthSteps)
		}

	case addr.NR21:
		ch2.LengthCounter = pulseLengthSteps - uint16(value&pulseLengthMask)
	case addr.NR22:
		ch2.setEnvelope(value)
	case addr.NR23:
		ch2.Frequency = setFrequencyLow(ch2.Frequency, value)
	case addr.NR24:
		ch2.Frequency = setFrequencyHigh(ch2.Frequency, value)
		ch2.LengthEnabled = bit.IsSet(lengthEnableBit, value)
		if bit.IsSet(triggerBit, value) {
			ch2.trigger(a.reg(addr.NR22), pulseLengthSteps)
		}

	case addr.NR30:
		if !bit.IsSet(waveDACBit, value) {
			ch3.Enabled = false
		}
	case addr.NR31:
		ch3.LengthCounter = waveLengthSteps - uint16(value)
	case addr.NR32:
		ch3.Volume = (value >> 5) & 0x03
	case addr.NR33:
		ch3.Frequency = setFrequencyLow(ch3.Frequency, value)
	case addr.NR34:
		ch3.Frequency = setFrequencyHigh(ch3.Frequency, value)
		ch3.LengthEnabled = bit.IsSet(lengthEnableBit, value)
		if bit.IsSet(triggerBit, value) {
			ch3.Enabled = bit.IsSet(waveDACBit, a.reg(addr.NR30))
			if ch3.LengthCounter == 0 {
				ch3.LengthCounter = waveLengthSteps
			}
		}

	case addr.NR41:
		ch4.LengthCounter = pulseLengthSteps - uint16(value&pulseLengthMask)
	case addr.NR42:
		ch4.setEnvelope(value)
	case addr.NR43:
		// noise frequency is exposed as the raw NR43 value
		ch4.Frequency = uint16(value)
	case addr.NR44:
		ch4.LengthEnabled = bit.IsSet(lengthEnableBit, value)
		if bit.IsSet(triggerBit, value) {
			ch4.trigger(a.reg(addr.NR42), pulseLengthSteps)
		}
	}
}

// Channel returns the state of channel i (0-3).
func (a *APU) Channel(i int) ChannelState {
	if i < 0 || i >= numChannels {
		return ChannelState{}
	}
	return a.s.Channels[i]
}

// Powered reports the NR52 master switch.
func (a *APU) Powered() bool {
	return a.s.Powered
}

// State returns a copy of the APU state.
func (a *APU) State() State {
	return a.s
}

// Restore replaces the APU state.
func (a *APU) Restore(s State) {
	a.s = s
}
