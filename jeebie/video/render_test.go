package video

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valerio/jeebie-core/jeebie/addr"
)

func tileAt(index uint8) uint16 {
	return tileDataAddress(index, true)
}

func TestTileRow_Pixels(t *testing.T) {
	row := TileRow{Low: 0x3C, High: 0x7E}

	var plain, flipped []uint8
	for x := 0; x < 8; x++ {
		plain = append(plain, row.Pixel(x))
		flipped = append(flipped, row.PixelFlipped(x))
	}

	assert.Equal(t, []uint8{0, 2, 3, 3, 3, 3, 2, 0}, plain)
	assert.Equal(t, []uint8{0, 2, 3, 3, 3, 3, 2, 0}, flipped)

	row = TileRow{Low: 0x80, High: 0x01}
	assert.Equal(t, uint8(1), row.Pixel(0))
	assert.Equal(t, uint8(2), row.Pixel(7))
	assert.Equal(t, uint8(2), row.PixelFlipped(0))
}

func TestTileDataAddress(t *testing.T) {
	tests := []struct {
		index    uint8
		unsigned bool
		want     uint16
	}{
		{0x00, true, 0x8000},
		{0x01, true, 0x8010},
		{0xFF, true, 0x8FF0},
		{0x00, false, 0x9000},
		{0x7F, false, 0x97F0},
		{0x80, false, 0x8800},
		{0xFF, false, 0x8FF0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tileDataAddress(tt.index, tt.unsigned), "index 0x%02X unsigned=%v", tt.index, tt.unsigned)
	}
}

func TestApplyPalette(t *testing.T) {
	assert.Equal(t, uint8(0), applyPalette(0xE4, 0))
	assert.Equal(t, uint8(3), applyPalette(0xE4, 3))
	assert.Equal(t, uint8(3), applyPalette(0x1B, 0))
	assert.Equal(t, uint8(0), applyPalette(0x1B, 3))
}

func renderFrame(p *PPU) *Frame {
	p.Tick(DotsPerFrame)
	return p.Frame()
}

func TestRender_Background(t *testing.T) {
	t.Run("unsigned tile data", func(t *testing.T) {
		p, bus := newTestPPU()
		bus.setTile(tileAt(1), 0xFF, 0x00)
		bus.vram[addr.TileMap0-addr.VRAMStart] = 1

		f := renderFrame(p)
		assert.Equal(t, uint8(1), f.At(0, 0))
		assert.Equal(t, uint8(1), f.At(7, 7))
		assert.Equal(t, uint8(0), f.At(8, 0))
		assert.Equal(t, uint8(0), f.At(0, 8))
	})

	t.Run("signed tile data", func(t *testing.T) {
		p, bus := newTestPPU()
		p.WriteRegister(addr.LCDC, 0x81)
		bus.setTile(0x9000, 0x00, 0xFF)
		bus.setTile(0x8FF0, 0xFF, 0xFF)
		bus.vram[addr.TileMap0-addr.VRAMStart+1] = 0xFF

		f := renderFrame(p)
		assert.Equal(t, uint8(2), f.At(0, 0), "index 0 is at 0x9000")
		assert.Equal(t, uint8(3), f.At(8, 0), "index 0xFF is at 0x8FF0")
	})

	t.Run("scroll wraps around the map", func(t *testing.T) {
		p, bus := newTestPPU()
		bus.setTile(tileAt(1), 0xFF, 0xFF)
		bus.vram[addr.TileMap0-addr.VRAMStart+31] = 1
		p.WriteRegister(addr.SCX, 0xF8)
		p.WriteRegister(addr.SCY, 0x02)

		f := renderFrame(p)
		assert.Equal(t, uint8(3), f.At(0, 0))
		assert.Equal(t, uint8(3), f.At(7, 5))
		assert.Equal(t, uint8(0), f.At(7, 6))
		assert.Equal(t, uint8(0), f.At(8, 0))
	})

	t.Run("palette", func(t *testing.T) {
		p, bus := newTestPPU()
		bus.setTile(tileAt(0), 0xFF, 0x00)
		p.WriteRegister(addr.BGP, 0x0C)

		f := renderFrame(p)
		assert.Equal(t, uint8(3), f.At(50, 50))
		assert.Equal(t, BlackColor, f.Color(50, 50))
	})

	t.Run("LCDC bit 0 off blanks BG and window", func(t *testing.T) {
		p, bus := newTestPPU()
		bus.setTile(tileAt(0), 0xFF, 0xFF)
		p.WriteRegister(addr.BGP, 0xFF)
		p.WriteRegister(addr.LCDC, 0xB0)

		f := renderFrame(p)
		assert.Equal(t, uint8(0), f.At(10, 10))
	})
}

func TestRender_Window(t *testing.T) {
	p, bus := newTestPPU()
	bus.setTile(tileAt(2), 0xFF, 0xFF)
	for i := 0; i < 32*32; i++ {
		bus.vram[addr.TileMap1-addr.VRAMStart+uint16(i)] = 2
	}
	p.WriteRegister(addr.WY, 10)
	p.WriteRegister(addr.WX, 7+20)
	p.WriteRegister(addr.LCDC, 0xF1)

	f := renderFrame(p)
	assert.Equal(t, uint8(0), f.At(30, 9), "above WY")
	assert.Equal(t, uint8(0), f.At(19, 10), "left of WX")
	assert.Equal(t, uint8(3), f.At(20, 10))
	assert.Equal(t, uint8(3), f.At(159, 143))
}

func TestRender_WindowLineCounter(t *testing.T) {
	p, bus := newTestPPU()
	bus.setTile(tileAt(1), 0xFF, 0x00)
	bus.vram[addr.TileMap1-addr.VRAMStart] = 1
	p.WriteRegister(addr.WY, 0)
	p.WriteRegister(addr.WX, 7)
	p.WriteRegister(addr.LCDC, 0xF1)

	// hide the window for lines 4-7, it resumes from its own line 4
	p.Tick(4 * dotsPerLine)
	p.WriteRegister(addr.WX, 200)
	p.Tick(4 * dotsPerLine)
	p.WriteRegister(addr.WX, 7)

	f := renderFrame(p)
	assert.Equal(t, uint8(1), f.At(0, 3))
	assert.Equal(t, uint8(0), f.At(0, 5))
	assert.Equal(t, uint8(1), f.At(0, 8), "window line 4 of tile 1")
	assert.Equal(t, uint8(1), f.At(0, 11))
	assert.Equal(t, uint8(0), f.At(0, 12))
}

func TestRender_Sprites(t *testing.T) {
	const solid, rightHalf, oneColor = 1, 2, 3

	setup := func() (*PPU, *testBus) {
		p, bus := newTestPPU()
		bus.setTile(tileAt(solid), 0xFF, 0xFF)
		bus.setTile(tileAt(rightHalf), 0x0F, 0x0F)
		bus.setTile(tileAt(oneColor), 0xFF, 0x00)
		p.WriteRegister(addr.OBP1, 0x00)
		p.WriteRegister(addr.LCDC, 0x93)
		return p, bus
	}

	t.Run("draws with OBP0", func(t *testing.T) {
		p, bus := setup()
		bus.setSprite(0, 10, 20, solid, 0)

		f := renderFrame(p)
		assert.Equal(t, uint8(3), f.At(10, 20))
		assert.Equal(t, uint8(3), f.At(17, 27))
		assert.Equal(t, uint8(0), f.At(18, 20))
		assert.Equal(t, uint8(0), f.At(10, 28))
	})

	t.Run("lower X wins", func(t *testing.T) {
		p, bus := setup()
		bus.setSprite(0, 14, 0, solid, 0x10)
		bus.setSprite(1, 10, 0, oneColor, 0)

		f := renderFrame(p)
		assert.Equal(t, uint8(1), f.At(14, 0))
		assert.Equal(t, uint8(1), f.At(17, 0))
		assert.Equal(t, uint8(0), f.At(18, 0), "OBP1 maps everything to 0")
	})

	t.Run("equal X lower OAM index wins", func(t *testing.T) {
		p, bus := setup()
		bus.setSprite(3, 10, 0, solid, 0)
		bus.setSprite(1, 10, 0, oneColor, 0)

		f := renderFrame(p)
		assert.Equal(t, uint8(1), f.At(12, 0))
	})

	t.Run("transparent pixels show lower priority sprites", func(t *testing.T) {
		p, bus := setup()
		bus.setSprite(0, 10, 0, rightHalf, 0)
		bus.setSprite(1, 12, 0, oneColor, 0)

		f := renderFrame(p)
		assert.Equal(t, uint8(0), f.At(11, 0))
		assert.Equal(t, uint8(1), f.At(12, 0))
		assert.Equal(t, uint8(3), f.At(14, 0))
		assert.Equal(t, uint8(1), f.At(18, 0))
	})

	t.Run("flip X", func(t *testing.T) {
		p, bus := setup()
		bus.setSprite(0, 10, 0, rightHalf, 0x20)

		f := renderFrame(p)
		assert.Equal(t, uint8(3), f.At(10, 0))
		assert.Equal(t, uint8(0), f.At(14, 0))
	})

	t.Run("behind BG colors 1-3", func(t *testing.T) {
		p, bus := setup()
		bus.setTile(tileAt(0), 0x0F, 0x00)
		bus.setSprite(0, 0, 0, solid, 0x80)

		f := renderFrame(p)
		assert.Equal(t, uint8(3), f.At(0, 0), "BG color 0 lets the sprite through")
		assert.Equal(t, uint8(1), f.At(4, 0), "BG color 1 hides it")
	})

	t.Run("partially off screen", func(t *testing.T) {
		p, bus := setup()
		bus.setSprite(0, -4, -4, solid, 0)

		f := renderFrame(p)
		assert.Equal(t, uint8(3), f.At(0, 0))
		assert.Equal(t, uint8(3), f.At(3, 3))
		assert.Equal(t, uint8(0), f.At(4, 0))
	})

	t.Run("8x16 sprites use an even/odd tile pair", func(t *testing.T) {
		p, bus := setup()
		p.WriteRegister(addr.LCDC, 0x97)
		bus.setTile(tileAt(4), 0xFF, 0xFF)
		bus.setTile(tileAt(5), 0xFF, 0x00)
		bus.setSprite(0, 0, 0, 5, 0)

		f := renderFrame(p)
		assert.Equal(t, uint8(3), f.At(0, 0))
		assert.Equal(t, uint8(1), f.At(0, 8))
		assert.Equal(t, uint8(1), f.At(0, 15))
		assert.Equal(t, uint8(0), f.At(0, 16))
	})

	t.Run("flip Y on tall sprite", func(t *testing.T) {
		p, bus := setup()
		p.WriteRegister(addr.LCDC, 0x97)
		bus.setTile(tileAt(4), 0xFF, 0xFF)
		bus.setTile(tileAt(5), 0xFF, 0x00)
		bus.setSprite(0, 0, 0, 4, 0x40)

		f := renderFrame(p)
		assert.Equal(t, uint8(1), f.At(0, 0))
		assert.Equal(t, uint8(3), f.At(0, 15))
	})

	t.Run("ten sprites per line", func(t *testing.T) {
		p, bus := setup()
		for i := 0; i < 12; i++ {
			bus.setSprite(i, i*10, 0, solid, 0)
		}

		f := renderFrame(p)
		assert.Equal(t, uint8(3), f.At(90, 0))
		assert.Equal(t, uint8(0), f.At(100, 0))
		assert.Equal(t, uint8(0), f.At(110, 0))
	})

	t.Run("off screen sprites count toward the limit", func(t *testing.T) {
		p, bus := setup()
		for i := 0; i < 10; i++ {
			bus.setSprite(i, -8, 0, solid, 0)
		}
		bus.setSprite(10, 50, 0, solid, 0)

		f := renderFrame(p)
		assert.Equal(t, uint8(0), f.At(50, 0))
	})
}

func TestSpritePriorityBuffer(t *testing.T) {
	var buf SpritePriorityBuffer
	buf.Clear()

	assert.Equal(t, -1, buf.Owner(5))
	assert.True(t, buf.TryClaimPixel(5, 3, 5))
	assert.False(t, buf.TryClaimPixel(5, 1, 6), "higher X loses")
	assert.True(t, buf.TryClaimPixel(5, 1, 5), "same X, lower index wins")
	assert.False(t, buf.TryClaimPixel(5, 2, 5))
	assert.True(t, buf.TryClaimPixel(5, 7, 2))
	assert.Equal(t, 7, buf.Owner(5))

	assert.False(t, buf.TryClaimPixel(-1, 0, 0))
	assert.False(t, buf.TryClaimPixel(FramebufferWidth, 0, 0))
	assert.Equal(t, -1, buf.Owner(FramebufferWidth))
}
