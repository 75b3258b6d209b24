package render

import "github.com/valerio/jeebie-core/jeebie/video"

// shadeRunes draws a single shade per cell, lightest first.
var shadeRunes = [4]rune{' ', '░', '▒', '█'}

// HalfBlockRune picks the glyph for a text cell holding two pixel rows. With
// equal shades the cell is drawn as one shade glyph; otherwise it is an upper
// half block whose foreground is the top pixel and background the bottom one.
func HalfBlockRune(top, bottom uint8) rune {
	if top == bottom {
		return shadeRunes[top&0x03]
	}
	switch {
	case bottom == 0:
		return '▀'
	case top == 0:
		return '▄'
	}
	return '▀'
}

// FrameToHalfBlocks renders a frame as text, two pixel rows per line: 72 lines
// of 160 runes.
func FrameToHalfBlocks(frame *video.Frame) []string {
	lines := make([]string, 0, video.FramebufferHeight/2)
	line := make([]rune, video.FramebufferWidth)
	for y := 0; y < video.FramebufferHeight; y += 2 {
		for x := range line {
			line[x] = HalfBlockRune(frame.At(x, y), frame.At(x, y+1))
		}
		lines = append(lines, string(line))
	}
	return lines
}
