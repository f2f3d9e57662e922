// Package imaging decodes raster inputs and prepares page images for OCR.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned for inputs no registered decoder accepts
var ErrUnsupportedImage = errors.New("unsupported image format")

// PointsPerInch is the PDF user-space unit
const PointsPerInch = 72.0

// Decode reads a png, jpeg, tiff, bmp or webp image
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnsupportedImage
		}
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// DecodeBytes is Decode over an in-memory buffer
func DecodeBytes(data []byte) (image.Image, string, error) {
	return Decode(bytes.NewReader(data))
}

// IsImage reports whether data starts with a known raster signature
func IsImage(data []byte) bool {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}

// PageSizeAt returns the page size in points of an image scanned at dpi
func PageSizeAt(img image.Image, dpi int) (float64, float64) {
	if dpi <= 0 {
		dpi = 72
	}
	b := img.Bounds()
	return float64(b.Dx()) * PointsPerInch / float64(dpi), float64(b.Dy()) * PointsPerInch / float64(dpi)
}

// FitToDPI rescales img so that a page of the given size in points renders at
// dpi. Images already within 2% of the target are returned unchanged.
func FitToDPI(img image.Image, pageWidth, pageHeight float64, dpi int) image.Image {
	if dpi <= 0 || pageWidth <= 0 || pageHeight <= 0 {
		return img
	}
	w := int(math.Round(pageWidth / PointsPerInch * float64(dpi)))
	h := int(math.Round(pageHeight / PointsPerInch * float64(dpi)))
	b := img.Bounds()
	if w <= 0 || h <= 0 || (within(b.Dx(), w, 0.02) && within(b.Dy(), h, 0.02)) {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func within(have, want int, frac float64) bool {
	return math.Abs(float64(have-want)) <= frac*float64(want)
}

// Gray converts img to 8-bit grayscale with its origin at 0,0
func Gray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) && src.Stride == b.Dx() {
		copy(g.Pix, src.Pix)
		return g
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.SetGray(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)).(color.Gray))
		}
	}
	return g
}
