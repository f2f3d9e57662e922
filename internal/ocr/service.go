// Package ocr runs text recognition over rendered page images.
//
// Engines are external collaborators reached through the Engine interface.
// Two implementations ship with the package:
//   - Tesseract (local, via gosseract), which honours the page segmentation
//     mode of each pass
//   - Google Cloud Vision (remote), which ignores the PSM and is throttled by
//     a rate limiter
//
// The Selector evaluates an ordered list of passes lazily, scores each result
// with the quality package and keeps the most plausible one.
//
// Required Environment Variables for the Vision engine:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
package ocr

import (
	"context"
	"image"
	"strings"

	"finscan/pkg/models"
)

// Engine recognizes text on a single page image
type Engine interface {
	// Name identifies the engine in pass configs and audit records.
	Name() string

	// Recognize runs one OCR attempt. Element boxes must be returned in page
	// coordinates (see PageImage.ToPage).
	Recognize(ctx context.Context, img PageImage, pass models.PassConfig) (*EngineResult, error)
}

// PageImage is a rendered or embedded raster of one physical page
type PageImage struct {
	PageIndex int
	Image     image.Image
	DPI       int

	// Page geometry in PDF points, used to map pixel boxes back to page space.
	// Zero values mean the image itself is the page.
	PageWidth  float64
	PageHeight float64

	Languages []string
}

// ToPage maps a pixel rectangle of the image to page coordinates
func (p PageImage) ToPage(r image.Rectangle) models.BBox {
	b := p.Image.Bounds()
	sx, sy := 1.0, 1.0
	if p.PageWidth > 0 && b.Dx() > 0 {
		sx = p.PageWidth / float64(b.Dx())
	}
	if p.PageHeight > 0 && b.Dy() > 0 {
		sy = p.PageHeight / float64(b.Dy())
	}
	return models.BBox{
		X0: float64(r.Min.X-b.Min.X) * sx,
		Y0: float64(r.Min.Y-b.Min.Y) * sy,
		X1: float64(r.Max.X-b.Min.X) * sx,
		Y1: float64(r.Max.Y-b.Min.Y) * sy,
	}
}

// EngineResult is what a single engine call returns
type EngineResult struct {
	Elements []models.Element
	Language string
}

// Text joins the element texts in returned order
func (r *EngineResult) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Elements))
	for i := range r.Elements {
		if t := r.Elements[i].PlainText(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// PassResult is the ephemeral outcome of one pass, discarded after selection
type PassResult struct {
	Config   models.PassConfig
	Elements []models.Element
	Metrics  models.QualityMetrics
	Err      error
}
