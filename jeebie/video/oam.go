package video

import (
	"github.com/valerio/jeebie-core/jeebie/bit"
)

const (
	spriteCount     = 40
	spritesPerLine  = 10
	spriteYOffset   = 16
	spriteXOffset   = 8
	spriteAttrBytes = 4
)

// Sprite is one decoded OAM entry, with screen coordinates (hardware offsets removed).
type Sprite struct {
	Y         int
	X         int
	TileIndex uint8
	Flags     uint8
	OAMIndex  int
	Height    int

	PaletteOBP1 bool
	FlipX       bool
	FlipY       bool
	BehindBG    bool
}

func (s *Sprite) parseFlags() {
	s.PaletteOBP1 = bit.IsSet(4, s.Flags)
	s.FlipX = bit.IsSet(5, s.Flags)
	s.FlipY = bit.IsSet(6, s.Flags)
	s.BehindBG = bit.IsSet(7, s.Flags)
}

// OAMReader gives the PPU unrestricted access to sprite attribute memory.
type OAMReader interface {
	ReadOAM(offset int) byte
}

// OAM decodes sprite attribute memory and performs the per-line sprite scan.
type OAM struct {
	bus     OAMReader
	scanned [spritesPerLine]Sprite
	count   int
}

func NewOAM(bus OAMReader) *OAM {
	return &OAM{bus: bus}
}

// ScanLine selects up to 10 sprites covering the scanline, in OAM order.
// Sprites off screen horizontally still count toward the limit.
func (o *OAM) ScanLine(line, height int) []Sprite {
	o.count = 0
	for i := 0; i < spriteCount && o.count < spritesPerLine; i++ {
		y := int(o.bus.ReadOAM(i*spriteAttrBytes)) - spriteYOffset
		if line < y || line >= y+height {
			continue
		}
		o.scanned[o.count] = o.readSprite(i, height)
		o.count++
	}
	return o.scanned[:o.count]
}

// Selected returns the sprites found by the last scan.
func (o *OAM) Selected() []Sprite {
	return o.scanned[:o.count]
}

func (o *OAM) readSprite(index, height int) Sprite {
	base := index * spriteAttrBytes
	s := Sprite{
		Y:         int(o.bus.ReadOAM(base)) - spriteYOffset,
		X:         int(o.bus.ReadOAM(base+1)) - spriteXOffset,
		TileIndex: o.bus.ReadOAM(base + 2),
		Flags:     o.bus.ReadOAM(base + 3),
		OAMIndex:  index,
		Height:    height,
	}
	s.parseFlags()
	return s
}
