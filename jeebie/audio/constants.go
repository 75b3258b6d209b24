package audio

// Timing constants
// Reference: https://gbdev.io/pandocs/Audio_details.html
const (
	// cyclesPerStep is the number of clock ticks per frame sequencer tick.
	// The frame sequencer runs at 512 Hz: 4194304 Hz / 512 Hz = 8192 ticks
	cyclesPerStep = 8192
)

const (
	// numChannels is the number of sound generators: two pulse, wave and noise.
	numChannels = 4

	registerCount = 0x30
	nr52Index     = 0x16

	triggerBit       = 7
	lengthEnableBit  = 6
	envelopeUpBit    = 3
	waveDACBit       = 7
	nr52PowerBit     = 7
	nr52UnusedMask   = 0x70
	dacEnabledMask   = 0xF8
	pulseLengthMask  = 0x3F
	pulseLengthSteps = 64
	waveLengthSteps  = 256
)

// readMasks are ORed into register reads: write-only and unused bits read back as 1.
// Reference: https://gbdev.io/pandocs/Audio_Registers.html
var readMasks = [registerCount]uint8{
	0x80, 0x3F, 0x00, 0xFF, 0xBF, // NR10-NR14
	0xFF, 0x3F, 0x00, 0xFF, 0xBF, // unused, NR21-NR24
	0x7F, 0xFF, 0x9F, 0xFF, 0xBF, // NR30-NR34
	0xFF, 0xFF, 0x00, 0x00, 0xBF, // unused, NR41-NR44
	0x00, 0x00, 0x70, // NR50-NR52
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // unused
}
