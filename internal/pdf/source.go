// Package pdf reads page geometry, page-mode signals, native text, rule-line
// tables and embedded scan images from PDF files through pdfcpu.
//
// pdfcpu does not rasterize pages. OCR input for scan pages is the largest
// embedded image of the page; pages without one cannot be OCRed.
package pdf

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"sync"

	"finscan/internal/imaging"
	"finscan/internal/logger"
	"finscan/internal/pagemode"
	"finscan/pkg/models"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidPDF is returned when pdfcpu cannot read or validate the input.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrPageOutOfRange is returned for page indices outside the document.
	ErrPageOutOfRange = errors.New("page index out of range")

	// ErrNoRaster is returned when a page carries no decodable embedded image.
	ErrNoRaster = errors.New("page has no embedded raster image")
)

// densityScale normalises stroked line length per unit page area so that a
// single full-width rule scores about 1.
const densityScale = 1000

// Page is the analysed content of one physical page
type Page struct {
	Index   int
	Width   float64
	Height  float64
	Content *Content

	// Lines are native text elements, one per visual line, page coordinates.
	Lines   []models.Element
	Signals pagemode.Signals
}

// Source wraps a validated pdfcpu context. Methods are safe for concurrent use.
type Source struct {
	mu   sync.Mutex
	ctx  *model.Context
	dims []types.Dim
	log  zerolog.Logger
}

// Open reads and validates a PDF
func Open(rs io.ReadSeeker) (*Source, error) {
	ctx, err := api.ReadValidateAndOptimize(rs, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	src := &Source{ctx: ctx, log: logger.WithComponent("pdf")}
	if src.dims, err = ctx.PageDims(); err != nil {
		// every page then reports unreadable geometry
		src.log.Warn().Err(err).Msg("Failed to read page dimensions")
	}
	return src, nil
}

// OpenFile opens a PDF from disk
func OpenFile(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Open(f)
}

// PageCount returns the number of physical pages
func (s *Source) PageCount() int {
	return s.ctx.PageCount
}

// PageSize returns the page size in points. Non-positive sizes are reported as errors.
func (s *Source) PageSize(index int) (float64, float64, error) {
	if index < 0 || index >= s.ctx.PageCount {
		return 0, 0, ErrPageOutOfRange
	}
	if index >= len(s.dims) {
		return 0, 0, fmt.Errorf("page %d: geometry unavailable", index)
	}
	d := s.dims[index]
	if d.Width <= 0 || d.Height <= 0 {
		return 0, 0, fmt.Errorf("page %d: invalid geometry %.1fx%.1f", index, d.Width, d.Height)
	}
	return d.Width, d.Height, nil
}

// Analyze interprets the page content and computes the page-mode signals. When
// the geometry is unreadable the returned page has zero size and signals
// that classify as unreadable; the error describes why.
func (s *Source) Analyze(index int) (*Page, error) {
	if index < 0 || index >= s.ctx.PageCount {
		return nil, ErrPageOutOfRange
	}

	width, height, geomErr := s.PageSize(index)

	data, err := s.pageContent(index)
	if err != nil {
		return &Page{Index: index, Signals: pagemode.Signals{PageIndex: index}}, err
	}
	content := Interpret(data)

	page := &Page{Index: index, Width: width, Height: height, Content: content}
	if geomErr != nil {
		page.Signals = pagemode.Signals{PageIndex: index}
		return page, geomErr
	}

	page.Lines = BuildLines(content.Runs, index, height)
	area := width * height
	page.Signals = pagemode.Signals{
		PageIndex:          index,
		NativeCharCount:    charCount(page.Lines),
		ImageCoverageRatio: math.Min(content.ImageArea(s.imageNames(index))/area, 1),
		VectorLineDensity:  lineDensity(content.Segments, area),
		Width:              width,
		Height:             height,
	}

	s.log.Debug().
		Int("page", index).
		Int("chars", page.Signals.NativeCharCount).
		Float64("image_coverage", page.Signals.ImageCoverageRatio).
		Float64("vector_density", page.Signals.VectorLineDensity).
		Msg("Page analysed")
	return page, nil
}

// Raster returns the largest decodable embedded image of the page
func (s *Source) Raster(index int) (image.Image, error) {
	if index < 0 || index >= s.ctx.PageCount {
		return nil, ErrPageOutOfRange
	}

	s.mu.Lock()
	images, err := pdfcpu.ExtractPageImages(s.ctx, index+1, false)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("extract images of page %d: %w", index, err)
	}

	var best image.Image
	bestArea := 0
	for _, img := range images {
		data, err := io.ReadAll(img)
		if err != nil {
			continue
		}
		decoded, _, err := imaging.DecodeBytes(data)
		if err != nil {
			s.log.Debug().Err(err).Int("page", index).Str("type", img.FileType).Msg("Skipping undecodable image")
			continue
		}
		b := decoded.Bounds()
		if a := b.Dx() * b.Dy(); a > bestArea {
			best, bestArea = decoded, a
		}
	}
	if best == nil {
		return nil, ErrNoRaster
	}
	return best, nil
}

func (s *Source) pageContent(index int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := pdfcpu.ExtractPageContent(s.ctx, index+1)
	if err != nil {
		return nil, fmt.Errorf("extract content of page %d: %w", index, err)
	}
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}

func (s *Source) imageNames(index int) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	images, err := pdfcpu.ExtractPageImages(s.ctx, index+1, true)
	if err != nil {
		return nil
	}
	names := make(map[string]bool, len(images))
	for _, img := range images {
		if img.Name != "" {
			names[img.Name] = true
		}
	}
	return names
}

func charCount(lines []models.Element) int {
	n := 0
	for i, l := range lines {
		if i > 0 {
			n++ // line break
		}
		n += len([]rune(l.Text))
	}
	return n
}

// lineDensity sums stroked line length (rectangles excluded) per page area
func lineDensity(segments []Segment, area float64) float64 {
	if area <= 0 {
		return 0
	}
	var total float64
	for _, s := range segments {
		if !s.Rect {
			total += s.Length()
		}
	}
	return math.Min(total/area*densityScale, 1)
}
