package jeebie

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/video"
)

// maxStepTicks bounds how far a Step can overshoot a target: the longest
// instruction plus an interrupt dispatch.
const maxStepTicks = 24 + 20

func newLoopDMG(t *testing.T, opts ...Option) *DMG {
	t.Helper()
	d, err := NewWithROM(loopROM(), append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return d
}

func TestNew_PostBootState(t *testing.T) {
	d := newLoopDMG(t)

	regs := d.Registers()
	assert.Equal(t, uint16(0x0100), regs.PC)
	assert.Equal(t, uint16(0x01B0), regs.AF())
	assert.Equal(t, uint8(0xAB), d.Read(addr.DIV))
	assert.Equal(t, "LOOP", d.Cartridge().Title())
	assert.Equal(t, uint64(0), d.Status().Ticks)
	assert.Equal(t, video.OAMScanMode, d.Status().Mode)
}

func TestNew_Errors(t *testing.T) {
	_, err := NewWithROM(make([]byte, 0x20))
	assert.Error(t, err, "rom too short for a header")

	_, err = NewWithFile("does/not/exist.gb")
	assert.Error(t, err)

	_, err = New(WithBootROM(make([]byte, 10)))
	assert.Error(t, err, "boot rom must be 256 bytes")
}

func TestStep_AdvancesEverything(t *testing.T) {
	d := newLoopDMG(t)

	ticks := d.Step() // DI
	assert.Equal(t, 4, ticks)
	assert.Equal(t, uint64(4), d.Status().Ticks)
	assert.Equal(t, uint64(4), d.Status().Cycles)
	assert.Equal(t, uint16(0xF3), d.Status().Opcode)
	assert.Equal(t, 4, d.ppu.Dot())

	ticks = d.Step() // LD SP,nn
	assert.Equal(t, 12, ticks)
	assert.Equal(t, uint64(16), d.Status().Ticks)
	assert.Equal(t, uint64(2), d.Status().Instructions)
	assert.Equal(t, uint16(0x31), d.Status().Opcode)
	assert.Contains(t, d.Status().String(), "op=0x0031")
}

func TestRunCycles(t *testing.T) {
	d := newLoopDMG(t)

	for _, n := range []int{1, 100, 4567, 70224} {
		before := d.Status().Ticks
		got := d.RunCycles(n)
		assert.GreaterOrEqual(t, got, n)
		assert.Less(t, got, n+maxStepTicks)
		assert.Equal(t, before+uint64(got), d.Status().Ticks)
	}
}

func TestRunOneFrame(t *testing.T) {
	t.Run("frames are 70224 ticks apart", func(t *testing.T) {
		d := newLoopDMG(t)

		first := d.RunOneFrame()
		require.NotNil(t, first)
		assert.Equal(t, uint64(1), d.Status().Frames)
		assert.Equal(t, uint8(144), d.Status().LY)
		t1 := d.Status().Ticks

		for i := 0; i < 5; i++ {
			d.RunOneFrame()
			t2 := d.Status().Ticks
			assert.InDelta(t, video.DotsPerFrame, float64(t2-t1), maxStepTicks)
			t1 = t2
		}
		assert.Equal(t, uint64(6), d.Status().Frames)
		assert.Equal(t, uint64(6), d.Frame().Number)
	})

	t.Run("VBlank handler runs once per frame", func(t *testing.T) {
		d := newLoopDMG(t)
		c := d.Registers().C

		for i := 0; i < 10; i++ {
			d.RunOneFrame()
		}
		d.RunCycles(1000)
		assert.Equal(t, c+10, d.Registers().C)
	})

	t.Run("LCD off runs one frame of ticks", func(t *testing.T) {
		d := newLoopDMG(t)
		d.RunOneFrame()
		frame := d.Frame()

		d.mem.Write(addr.LCDC, 0x11)
		before := d.Status().Ticks
		got := d.RunOneFrame()

		elapsed := d.Status().Ticks - before
		assert.GreaterOrEqual(t, elapsed, uint64(video.DotsPerFrame))
		assert.Less(t, elapsed, uint64(video.DotsPerFrame+maxStepTicks))
		assert.Same(t, frame, got, "no new frame is published")
		assert.Equal(t, uint64(1), d.Status().Frames)
	})
}

func TestRunFrames(t *testing.T) {
	d := newLoopDMG(t)

	n, err := d.RunFrames(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(3), d.Status().Frames)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err = d.RunFrames(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
	assert.Equal(t, uint64(3), d.Status().Frames)
}

func TestReset(t *testing.T) {
	d := newLoopDMG(t)
	d.RunFrames(context.Background(), 2)

	d.Reset()
	s := d.Status()
	assert.Equal(t, uint64(0), s.Ticks)
	assert.Equal(t, uint16(0x0100), s.PC)
	assert.Equal(t, uint8(0), s.LY)
	assert.False(t, s.IME)
	assert.Equal(t, uint8(0), d.Read(0xC000), "work RAM cleared")
}

func TestSetJoypad(t *testing.T) {
	d := newLoopDMG(t)

	d.mem.Write(addr.P1, 0x10) // select buttons
	d.SetJoypad(0x80)          // Start
	assert.Equal(t, uint8(0xD7), d.Read(addr.P1))
	assert.NotZero(t, d.Read(addr.IF)&uint8(addr.JoypadInterrupt))
}

func TestSerialOutput(t *testing.T) {
	d := newLoopDMG(t)

	for _, ch := range []byte("ok\n") {
		d.mem.Write(addr.SB, ch)
		d.mem.Write(addr.SC, 0x81)
		d.Step()
	}

	assert.Equal(t, []string{"ok"}, d.SerialOutput())
	assert.NotZero(t, d.Read(addr.IF)&uint8(addr.SerialInterrupt))
}

func TestBatteryRAM(t *testing.T) {
	rom := buildROM("SAVE", 0x03, 0x02, loopProgram) // MBC1+RAM+BATTERY, 8 KiB
	d, err := NewWithROM(rom, WithLogger(quietLogger()))
	require.NoError(t, err)

	d.mem.Write(0x0000, 0x0A)
	d.mem.Write(0xA000, 0x42)
	ram := d.BatteryRAM()
	require.Len(t, ram, 0x2000)
	assert.Equal(t, uint8(0x42), ram[0])

	d.Reset()
	assert.Equal(t, uint8(0x42), d.BatteryRAM()[0], "battery RAM survives reset")

	other, err := NewWithROM(rom, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, other.LoadBatteryRAM(ram))
	other.mem.Write(0x0000, 0x0A)
	assert.Equal(t, uint8(0x42), other.Read(0xA000))

	assert.Error(t, other.LoadBatteryRAM(make([]byte, 3)))

	plain := newLoopDMG(t)
	assert.Nil(t, plain.BatteryRAM())
	assert.Error(t, plain.LoadBatteryRAM(ram))
}

func TestBootROM(t *testing.T) {
	boot := make([]byte, 0x100)
	copy(boot, []byte{
		0x3E, 0x01, // LD A,1
		0xE0, 0x50, // LDH (0x50),A
	})

	d := newLoopDMG(t, WithBootROM(boot))
	assert.Equal(t, uint16(0x0000), d.Status().PC)
	assert.Equal(t, uint8(0x3E), d.Read(0x0000), "boot ROM overlays the cartridge")
	assert.True(t, d.mem.BootROMMapped())

	d.Step()
	d.Step()
	assert.False(t, d.mem.BootROMMapped())
	assert.Equal(t, uint8(0x00), d.Read(0x0000))
	assert.Equal(t, uint16(0x0004), d.Status().PC)
}

func TestCurrentInstruction(t *testing.T) {
	d := newLoopDMG(t)
	assert.Contains(t, d.CurrentInstruction(), "DI")
	d.Step()
	assert.Contains(t, d.CurrentInstruction(), "LD SP,nn")
}
