package video

import (
	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
)

const (
	windowXOffset = 7
	maxWindowX    = 166
	tileMapWidth  = 32
)

// applyPalette maps a 2-bit color index through a BGP/OBPx style palette.
func applyPalette(palette, color uint8) uint8 {
	return (palette >> (color * 2)) & 0x03
}

func (p *PPU) windowVisible() bool {
	return bit.IsSet(windowDisplayEnable, p.lcdc) &&
		bit.IsSet(bgDisplay, p.lcdc) &&
		p.windowSeen &&
		p.wx <= maxWindowX
}

func (p *PPU) tileMap(selectBit uint8) uint16 {
	if bit.IsSet(selectBit, p.lcdc) {
		return addr.TileMap1
	}
	return addr.TileMap0
}

// renderScanline draws line LY into the back buffer.
func (p *PPU) renderScanline() {
	row := p.back.Row(int(p.ly))

	if bit.IsSet(bgDisplay, p.lcdc) {
		p.renderBackground(row)
		if p.windowVisible() {
			p.renderWindow(row)
		}
	} else {
		for x := range row {
			row[x] = 0
			p.bgColor[x] = 0
		}
	}

	if bit.IsSet(spriteDisplayEnable, p.lcdc) {
		p.renderSprites(row)
	}
}

// bgPixel returns the color index at (x, y) of the 256x256 map starting at mapBase.
func (p *PPU) bgPixel(mapBase uint16, x, y int) uint8 {
	unsigned := bit.IsSet(bgWindowTileDataSelect, p.lcdc)
	tile := p.bus.ReadVRAM(mapBase + uint16((y/8)*tileMapWidth+x/8))
	tr := fetchTileRow(p.bus, tileDataAddress(tile, unsigned), y%8)
	return tr.Pixel(x % 8)
}

func (p *PPU) renderBackground(row []uint8) {
	mapBase := p.tileMap(bgTileMapDisplaySelect)
	y := (int(p.ly) + int(p.scy)) & 0xFF

	for x := range row {
		color := p.bgPixel(mapBase, (x+int(p.scx))&0xFF, y)
		p.bgColor[x] = color
		row[x] = applyPalette(p.bgp, color)
	}
}

func (p *PPU) renderWindow(row []uint8) {
	start := int(p.wx) - windowXOffset
	if start >= FramebufferWidth {
		return
	}

	mapBase := p.tileMap(windowTileMapSelect)
	for x := max(start, 0); x < FramebufferWidth; x++ {
		color := p.bgPixel(mapBase, x-start, p.windowLine)
		p.bgColor[x] = color
		row[x] = applyPalette(p.bgp, color)
	}
	p.windowLine++
}

func (p *PPU) renderSprites(row []uint8) {
	p.priority.Clear()

	sprites := p.oam.Selected()
	for i := range sprites {
		sp := &sprites[i]

		line := int(p.ly) - sp.Y
		if sp.FlipY {
			line = sp.Height - 1 - line
		}
		tile := sp.TileIndex
		if sp.Height == 16 {
			tile &= 0xFE
		}
		tr := fetchTileRow(p.bus, tileDataAddress(tile, true), line)

		for px := 0; px < 8; px++ {
			var color uint8
			if sp.FlipX {
				color = tr.PixelFlipped(px)
			} else {
				color = tr.Pixel(px)
			}
			if color == 0 {
				continue
			}
			p.priority.claim(sp.X+px, sp, color)
		}
	}

	for x := range row {
		owner := &p.priority.owner[x]
		if owner.index < 0 {
			continue
		}
		if owner.behindBG && p.bgColor[x] != 0 {
			continue
		}
		palette := p.obp0
		if owner.obp1 {
			palette = p.obp1
		}
		row[x] = applyPalette(palette, owner.color)
	}
}
