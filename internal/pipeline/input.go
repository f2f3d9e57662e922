package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"os"

	"finscan/internal/imaging"
	"finscan/internal/pagemode"
	"finscan/internal/pdf"
)

// Input is a paginated document. *pdf.Source implements it.
type Input interface {
	PageCount() int

	// Analyze returns the native content and page-mode signals of a page. A
	// non-nil page with an error means the geometry was unreadable.
	Analyze(index int) (*pdf.Page, error)

	// Raster returns the page image used for OCR.
	Raster(index int) (image.Image, error)
}

// ImageInput is a single raster image treated as a one-page scan
type ImageInput struct {
	img    image.Image
	width  float64
	height float64
}

// NewImageInput wraps img, sizing the page as if scanned at dpi
func NewImageInput(img image.Image, dpi int) *ImageInput {
	w, h := imaging.PageSizeAt(img, dpi)
	return &ImageInput{img: img, width: w, height: h}
}

func (in *ImageInput) PageCount() int { return 1 }

func (in *ImageInput) Analyze(index int) (*pdf.Page, error) {
	if index != 0 {
		return nil, pdf.ErrPageOutOfRange
	}
	return &pdf.Page{
		Index:   0,
		Width:   in.width,
		Height:  in.height,
		Content: &pdf.Content{},
		Signals: pagemode.Signals{
			PageIndex:          0,
			ImageCoverageRatio: 1,
			Width:              in.width,
			Height:             in.height,
		},
	}, nil
}

func (in *ImageInput) Raster(index int) (image.Image, error) {
	if index != 0 {
		return nil, pdf.ErrPageOutOfRange
	}
	return in.img, nil
}

// OpenInput reads a PDF or a raster image from disk. imageDPI sizes the
// page of an image input.
func OpenInput(path string, imageDPI int) (Input, error) {
	const op = "OpenInput"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ReadInput(data, imageDPI)
}

// ReadInput detects the input type from its content
func ReadInput(data []byte, imageDPI int) (Input, error) {
	const op = "ReadInput"

	if imaging.IsImage(data) {
		img, format, err := imaging.DecodeBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: decode %s: %w: %v", op, format, ErrUnreadableInput, err)
		}
		return NewImageInput(img, imageDPI), nil
	}

	src, err := pdf.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrUnreadableInput, err)
	}
	return src, nil
}
