package video

// SpritePriorityBuffer resolves which sprite shows at each pixel of a scanline
// on DMG, see https://gbdev.io/pandocs/OAM.html#drawing-priority.
//
// Among sprites with an opaque pixel at the same position, the one with the
// lower X coordinate wins, and on equal X the lower OAM index wins:
//
//	Pixels:     0  1  2  3  4  5  6  7  8  9 10 11 12 13 14 15 16 17
//	Sprite 0:                  [-----A-----]                    (X=5, OAM=0)
//	Sprite 1:                           [-----B-----]           (X=10, OAM=1)
//	Result:                    [-----A-----]--B-----]
//
// Rather than sorting sprites, each sprite claims its opaque pixels in turn and
// a claim succeeds only against a lower priority owner. The winner's color and
// attributes are kept so the final BG-over-OBJ check only looks at the winner.
type SpritePriorityBuffer struct {
	owner [FramebufferWidth]spritePixel
}

type spritePixel struct {
	index    int // OAM index, -1 when unowned
	x        int
	color    uint8
	obp1     bool
	behindBG bool
}

// Clear resets the buffer for a new scanline.
func (s *SpritePriorityBuffer) Clear() {
	for i := range s.owner {
		s.owner[i] = spritePixel{index: -1}
	}
}

// TryClaimPixel claims pixelX for the sprite at OAM index spriteIndex positioned
// at spriteX. It reports whether the sprite now owns the pixel.
func (s *SpritePriorityBuffer) TryClaimPixel(pixelX, spriteIndex, spriteX int) bool {
	if pixelX < 0 || pixelX >= FramebufferWidth {
		return false
	}

	cur := &s.owner[pixelX]
	if cur.index != -1 {
		if spriteX > cur.x || (spriteX == cur.x && spriteIndex >= cur.index) {
			return false
		}
	}

	*cur = spritePixel{index: spriteIndex, x: spriteX}
	return true
}

// claim records a sprite's opaque pixel, keeping the data needed to draw it.
func (s *SpritePriorityBuffer) claim(pixelX int, sp *Sprite, color uint8) {
	if !s.TryClaimPixel(pixelX, sp.OAMIndex, sp.X) {
		return
	}
	s.owner[pixelX].color = color
	s.owner[pixelX].obp1 = sp.PaletteOBP1
	s.owner[pixelX].behindBG = sp.BehindBG
}

// Owner returns the OAM index of the sprite owning pixelX, or -1.
func (s *SpritePriorityBuffer) Owner(pixelX int) int {
	if pixelX < 0 || pixelX >= FramebufferWidth {
		return -1
	}
	return s.owner[pixelX].index
}
