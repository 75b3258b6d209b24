package jeebie

import (
	"os"
	"testing"
)

func BenchmarkRunOneFrame(b *testing.B) {
	roms := []struct {
		name string
		rom  func() ([]byte, error)
	}{
		{"loop", func() ([]byte, error) { return loopROM(), nil }},
		{"dmg_acid2", func() ([]byte, error) { return os.ReadFile("../test-roms/game-boy-test-roms/dmg-acid2/dmg-acid2.gb") }},
	}

	for _, tc := range roms {
		b.Run(tc.name, func(b *testing.B) {
			rom, err := tc.rom()
			if err != nil {
				b.Skipf("ROM not available: %v", err)
			}
			d, err := NewWithROM(rom, WithLogger(quietLogger()))
			if err != nil {
				b.Fatalf("Failed to create emulator: %v", err)
			}

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				d.RunOneFrame()
			}
		})
	}
}

func BenchmarkSaveState(b *testing.B) {
	d, err := NewWithROM(loopROM(), WithLogger(quietLogger()))
	if err != nil {
		b.Fatalf("Failed to create emulator: %v", err)
	}
	d.RunOneFrame()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.SaveState(); err != nil {
			b.Fatal(err)
		}
	}
}
