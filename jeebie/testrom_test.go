package jeebie

import (
	"io"
	"log/slog"
)

// loopProgram enables the VBlank interrupt and the timer, then spins on a loop
// that keeps A, B and WRAM changing. The VBlank handler counts frames in C.
var loopProgram = []byte{
	0xF3,             // 0x100 DI
	0x31, 0xFE, 0xFF, // 0x101 LD SP,0xFFFE
	0x21, 0x00, 0xC0, // 0x104 LD HL,0xC000
	0x3E, 0x01,       // 0x107 LD A,1
	0xE0, 0xFF,       // 0x109 LDH (IE),A
	0x3E, 0x05,       // 0x10B LD A,5
	0xE0, 0x07,       // 0x10D LDH (TAC),A
	0xFB,             // 0x10F EI
	0x3C,             // 0x110 INC A
	0x04,             // 0x111 INC B
	0x80,             // 0x112 ADD A,B
	0x77,             // 0x113 LD (HL),A
	0x2C,             // 0x114 INC L
	0x18, 0xF9,       // 0x115 JR 0x110
}

var vblankHandler = []byte{
	0x0C, // INC C
	0xD9, // RETI
}

// buildROM assembles a 32 KiB image with a valid header around program, which
// starts at the entry point.
func buildROM(title string, cartType, ramCode uint8, program []byte) []byte {
	rom := make([]byte, 0x8000)
	copy(rom[0x40:], vblankHandler)
	copy(rom[0x100:], program)
	copy(rom[0x134:0x143], title)
	rom[0x147] = cartType
	rom[0x148] = 0x00
	rom[0x149] = ramCode

	var sum uint8
	for _, b := range rom[0x134:0x14D] {
		sum = sum - b - 1
	}
	rom[0x14D] = sum
	return rom
}

func loopROM() []byte {
	return buildROM("LOOP", 0x00, 0x00, loopProgram)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
