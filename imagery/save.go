package imagery

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const (
	DefaultMaxDimension = 1080
	DefaultQuality      = 85
)

// Saver writes images to disk, downscaled to MaxDimension on the longer side.
// Opaque images become JPEG at Quality, images with transparency become PNG.
type Saver struct {
	MaxDimension int
	Quality      int
}

// Save encodes img next to base (a path without extension) and returns the
// written path. Missing directories are created.
func (s Saver) Save(img image.Image, base string) (string, error) {
	if img == nil {
		return "", fmt.Errorf("save %s: nil image", base)
	}
	img = Downscale(img, s.maxDimension())

	path := base + ".jpeg"
	alpha := HasAlpha(img)
	if alpha {
		path = base + ".png"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if alpha {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: s.quality()})
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	return path, nil
}

func (s Saver) maxDimension() int {
	if s.MaxDimension <= 0 {
		return DefaultMaxDimension
	}
	return s.MaxDimension
}

func (s Saver) quality() int {
	if s.Quality < 1 || s.Quality > 100 {
		return DefaultQuality
	}
	return s.Quality
}

// Downscale shrinks img so that its longer side is at most limit, keeping the
// aspect ratio. Smaller images are returned unchanged.
func Downscale(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longer := w
	if h > longer {
		longer = h
	}
	if limit <= 0 || longer <= limit {
		return img
	}
	nw := w * limit / longer
	nh := h * limit / longer
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// HasAlpha reports whether img may carry transparent pixels.
func HasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	switch img.(type) {
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		return false
	}
	return true
}
