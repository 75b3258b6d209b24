package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/jeebie-core/jeebie/addr"
)

type testBus struct {
	vram [0x2000]byte
	oam  [addr.OAMSize]byte
	irqs map[addr.Interrupt]int
}

func newTestBus() *testBus {
	return &testBus{irqs: map[addr.Interrupt]int{}}
}

func (b *testBus) ReadVRAM(address uint16) byte { return b.vram[address-addr.VRAMStart] }

func (b *testBus) ReadOAM(offset int) byte { return b.oam[offset] }

func (b *testBus) RequestInterrupt(i addr.Interrupt) { b.irqs[i]++ }

func (b *testBus) setTile(base uint16, low, high byte) {
	for row := 0; row < 8; row++ {
		b.vram[base-addr.VRAMStart+uint16(row*2)] = low
		b.vram[base-addr.VRAMStart+uint16(row*2)+1] = high
	}
}

func (b *testBus) setSprite(index int, x, y int, tile, flags byte) {
	base := index * spriteAttrBytes
	b.oam[base] = byte(y + spriteYOffset)
	b.oam[base+1] = byte(x + spriteXOffset)
	b.oam[base+2] = tile
	b.oam[base+3] = flags
}

func newTestPPU() (*PPU, *testBus) {
	bus := newTestBus()
	p := New(bus, nil)
	p.WriteRegister(addr.BGP, 0xE4)
	p.WriteRegister(addr.OBP0, 0xE4)
	return p, bus
}

func TestPPU_FrameTiming(t *testing.T) {
	p, bus := newTestPPU()

	p.Tick(DotsPerFrame)

	assert.Equal(t, uint8(0), p.LY())
	assert.Equal(t, OAMScanMode, p.Mode())
	assert.Equal(t, 0, p.Dot())
	assert.Equal(t, 1, bus.irqs[addr.VBlankInterrupt])
	assert.Equal(t, uint64(1), p.Frames())

	for i := 0; i < 10*DotsPerFrame/4; i++ {
		p.Tick(4)
	}
	assert.Equal(t, 11, bus.irqs[addr.VBlankInterrupt], "one VBlank per frame")
	assert.Equal(t, uint8(0), p.LY())
}

func TestPPU_VBlankOnLine144(t *testing.T) {
	p, bus := newTestPPU()

	p.Tick(visibleLines*dotsPerLine - 1)
	assert.Equal(t, uint8(143), p.LY())
	assert.Equal(t, 0, bus.irqs[addr.VBlankInterrupt])
	first := p.Frame()

	p.Tick(1)
	assert.Equal(t, uint8(144), p.LY())
	assert.Equal(t, VBlankMode, p.Mode())
	assert.Equal(t, 1, bus.irqs[addr.VBlankInterrupt])
	assert.NotSame(t, first, p.Frame(), "frame published on VBlank")

	p.Tick(9 * dotsPerLine)
	assert.Equal(t, uint8(153), p.LY())
	assert.Equal(t, 1, bus.irqs[addr.VBlankInterrupt])
}

func TestPPU_ModeTimeline(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(p *PPU, bus *testBus)
		hblankAt int
	}{
		{"plain line", func(p *PPU, bus *testBus) {}, 80 + 172},
		{"fine scroll", func(p *PPU, bus *testBus) { p.WriteRegister(addr.SCX, 0x0B) }, 80 + 172 + 3},
		{"two sprites", func(p *PPU, bus *testBus) {
			bus.setSprite(0, 10, 0, 0, 0)
			bus.setSprite(1, 40, 0, 0, 0)
			p.WriteRegister(addr.LCDC, 0x93)
		}, 80 + 172 + 12},
		{"window", func(p *PPU, bus *testBus) {
			p.WriteRegister(addr.WX, 7)
			p.WriteRegister(addr.LCDC, 0xB1)
		}, 80 + 172 + 6},
		{"ten sprites, scroll and window", func(p *PPU, bus *testBus) {
			for i := 0; i < 10; i++ {
				bus.setSprite(i, i*8, 0, 0, 0)
			}
			p.WriteRegister(addr.SCX, 0x07)
			p.WriteRegister(addr.WX, 7)
			p.WriteRegister(addr.LCDC, 0xB3)
		}, 80 + 172 + 7 + 6 + 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, bus := newTestPPU()
			tt.setup(p, bus)

			p.Tick(oamScanDots - 1)
			assert.Equal(t, OAMScanMode, p.Mode())
			assert.False(t, p.OAMAccessible())
			assert.True(t, p.VRAMAccessible())

			p.Tick(1)
			assert.Equal(t, TransferMode, p.Mode())
			assert.False(t, p.VRAMAccessible())

			p.Tick(tt.hblankAt - oamScanDots - 1)
			assert.Equal(t, TransferMode, p.Mode())
			p.Tick(1)
			assert.Equal(t, HBlankMode, p.Mode())
			assert.True(t, p.VRAMAccessible())
			assert.True(t, p.OAMAccessible())

			p.Tick(dotsPerLine - tt.hblankAt)
			assert.Equal(t, uint8(1), p.LY())
			assert.Equal(t, OAMScanMode, p.Mode())
		})
	}
}

func TestPPU_STATInterrupt(t *testing.T) {
	tests := []struct {
		name string
		lyc  byte
		stat byte
		want int
	}{
		{"LY=LYC", 2, 0x40, 1},
		{"HBlank on every visible line", 0, 0x08, 144},
		{"VBlank", 0, 0x10, 1},
		{"OAM scan", 0, 0x20, 144},
		{"combined line blocks back-to-back edges", 5, 0x48, 143},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, bus := newTestPPU()
			p.WriteRegister(addr.LYC, tt.lyc)
			p.Tick(1)
			p.WriteRegister(addr.STAT, tt.stat)
			bus.irqs[addr.LCDSTATInterrupt] = 0

			p.Tick(DotsPerFrame)
			assert.Equal(t, tt.want, bus.irqs[addr.LCDSTATInterrupt])
		})
	}
}

func TestPPU_Registers(t *testing.T) {
	p, _ := newTestPPU()

	p.WriteRegister(addr.STAT, 0xFF)
	assert.Equal(t, uint8(0xFE), p.ReadRegister(addr.STAT), "mode and coincidence are read-only")

	p.Tick(dotsPerLine * 3)
	p.WriteRegister(addr.LY, 0x42)
	assert.Equal(t, uint8(3), p.ReadRegister(addr.LY), "LY ignores writes")

	p.WriteRegister(addr.LYC, 3)
	assert.Equal(t, uint8(0x04), p.ReadRegister(addr.STAT)&0x04)

	for _, reg := range []uint16{addr.SCY, addr.SCX, addr.BGP, addr.OBP0, addr.OBP1, addr.WY, addr.WX} {
		p.WriteRegister(reg, 0x5A)
		assert.Equal(t, uint8(0x5A), p.ReadRegister(reg))
	}
}

func TestPPU_LCDOff(t *testing.T) {
	p, bus := newTestPPU()
	bus.setTile(addr.TileData0, 0xFF, 0xFF)
	p.Tick(DotsPerFrame)
	before := p.Frame()

	p.Tick(dotsPerLine*10 + 100)
	p.WriteRegister(addr.LCDC, 0x11)

	assert.Equal(t, uint8(0), p.LY())
	assert.Equal(t, HBlankMode, p.Mode())
	assert.True(t, p.VRAMAccessible())
	assert.True(t, p.OAMAccessible())
	assert.Equal(t, uint8(0x80), p.ReadRegister(addr.STAT))

	p.Tick(DotsPerFrame * 2)
	assert.Equal(t, uint8(0), p.LY())
	assert.Equal(t, 1, bus.irqs[addr.VBlankInterrupt], "no interrupts while off")
	assert.Same(t, before, p.Frame(), "frame keeps its last contents")

	p.WriteRegister(addr.LCDC, 0x91)
	assert.Equal(t, OAMScanMode, p.Mode())
	assert.Equal(t, 0, p.Dot())
}

func TestPPU_StateRoundTrip(t *testing.T) {
	p, bus := newTestPPU()
	bus.setTile(addr.TileData0, 0x0F, 0xF0)
	p.WriteRegister(addr.SCX, 3)
	p.Tick(DotsPerFrame + 12345)

	state := p.State()

	other := New(bus, nil)
	require.NoError(t, other.Restore(state))
	assert.Equal(t, state, other.State())

	p.Tick(DotsPerFrame)
	other.Tick(DotsPerFrame)
	assert.Equal(t, p.Frame().Pix, other.Frame().Pix)
	assert.Equal(t, p.LY(), other.LY())
	assert.Equal(t, p.Dot(), other.Dot())

	bad := state
	bad.Back = bad.Back[:10]
	assert.Error(t, other.Restore(bad))
	bad = state
	bad.LY = 200
	assert.Error(t, other.Restore(bad))
}
