package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/valerio/jeebie-core/jeebie/video"
)

// FrameImage converts a frame into a paletted image using the DMG grey shades.
func FrameImage(frame *video.Frame) *image.Paletted {
	palette := make(color.Palette, len(video.ShadeColors))
	for i, c := range video.ShadeColors {
		palette[i] = color.RGBA{R: uint8(c >> 16), G: uint8(c >> 8), B: uint8(c), A: uint8(c >> 24)}
	}

	img := image.NewPaletted(image.Rect(0, 0, video.FramebufferWidth, video.FramebufferHeight), palette)
	for i, shade := range frame.Pix {
		img.Pix[i] = shade & 0x03
	}
	return img
}

// WritePNG encodes a frame scaled by an integer factor with nearest-neighbor
// sampling, so pixels stay sharp.
func WritePNG(w io.Writer, frame *video.Frame, scale int) error {
	if scale < 1 {
		return errors.Errorf("invalid scale %d", scale)
	}

	var img image.Image = FrameImage(frame)
	if scale > 1 {
		dst := image.NewRGBA(image.Rect(0, 0, video.FramebufferWidth*scale, video.FramebufferHeight*scale))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = dst
	}

	return errors.Wrap(png.Encode(w, img), "encoding png")
}

// SavePNG writes a frame to dir as <baseName>_<frame number>.png and returns the path.
func SavePNG(dir, baseName string, frame *video.Frame, scale int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating snapshot directory %s", dir)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%06d.png", baseName, frame.Number))
	file, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s", path)
	}
	defer file.Close()

	if err := WritePNG(file, frame, scale); err != nil {
		return "", err
	}

	slog.Debug("Snapshot saved", "path", path, "size", fmt.Sprintf("%dx%d", video.FramebufferWidth*scale, video.FramebufferHeight*scale))
	return path, nil
}
