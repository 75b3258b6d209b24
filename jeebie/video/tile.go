package video

import (
	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
)

const tileBytes = 16

// TileRow is one 8-pixel row of a tile in 2bpp bit-plane format.
//
// Low holds bit 0 of each pixel's color index and High holds bit 1. Bit 7 is
// the leftmost pixel:
//
//	Low  (0x3C): 0 0 1 1 1 1 0 0
//	High (0x7E): 0 1 1 1 1 1 1 0
//	            -----------------
//	Colors:      0 2 3 3 3 3 2 0
//
// Reference: https://gbdev.io/pandocs/Tile_Data.html
type TileRow struct {
	Low  byte
	High byte
}

// Pixel returns the color index (0-3) of pixel x, 0 being the leftmost.
func (t TileRow) Pixel(x int) uint8 {
	return t.pixelAtBit(uint8(7 - x))
}

// PixelFlipped returns the color index of pixel x with the row mirrored.
func (t TileRow) PixelFlipped(x int) uint8 {
	return t.pixelAtBit(uint8(x))
}

func (t TileRow) pixelAtBit(index uint8) uint8 {
	return bit.Value(index, t.High)<<1 | bit.Value(index, t.Low)
}

// VRAMReader gives the renderer unrestricted access to video memory.
type VRAMReader interface {
	ReadVRAM(address uint16) byte
}

// fetchTileRow reads row (0-15 for tall sprites) of a tile whose data starts at base.
func fetchTileRow(vram VRAMReader, base uint16, row int) TileRow {
	address := base + uint16(row*2)
	return TileRow{
		Low:  vram.ReadVRAM(address),
		High: vram.ReadVRAM(address + 1),
	}
}

// tileDataAddress resolves a tile index from a tile map into the start of its data.
// In unsigned mode tiles 0-255 live at 0x8000; in signed mode the index is an
// int8 offset from 0x9000.
func tileDataAddress(index uint8, unsigned bool) uint16 {
	if unsigned {
		return addr.TileData0 + uint16(index)*tileBytes
	}
	return uint16(int32(addr.TileData2) + int32(int8(index))*tileBytes)
}
