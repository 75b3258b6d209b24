package video

const (
	FramebufferWidth  = 160
	FramebufferHeight = 144
)

// GBColor is an ARGB color used by hosts to present a shade.
type GBColor uint32

const (
	WhiteColor     GBColor = 0xFFFFFFFF
	LightGreyColor GBColor = 0xFF989898
	DarkGreyColor  GBColor = 0xFF4C4C4C
	BlackColor     GBColor = 0xFF000000
)

// ShadeColors maps a 2-bit shade (0 lightest, 3 darkest) to its display color.
var ShadeColors = [4]GBColor{WhiteColor, LightGreyColor, DarkGreyColor, BlackColor}

// Frame holds one screen of 2-bit shades, already mapped through the palettes.
// Frames returned by the PPU are snapshots and must not be modified.
type Frame struct {
	Pix    [FramebufferWidth * FramebufferHeight]uint8
	Number uint64
}

// At returns the shade at (x, y), or 0 outside the screen.
func (f *Frame) At(x, y int) uint8 {
	if x < 0 || x >= FramebufferWidth || y < 0 || y >= FramebufferHeight {
		return 0
	}
	return f.Pix[y*FramebufferWidth+x]
}

// Row returns the shades of scanline y.
func (f *Frame) Row(y int) []uint8 {
	return f.Pix[y*FramebufferWidth : (y+1)*FramebufferWidth]
}

// Color returns the display color at (x, y).
func (f *Frame) Color(x, y int) GBColor {
	return ShadeColors[f.At(x, y)&0x03]
}

// Clone returns a copy that can be handed out as an immutable snapshot.
func (f *Frame) Clone() *Frame {
	c := *f
	return &c
}
