package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"finscan/internal/imaging"
	"finscan/internal/layout"
	"finscan/internal/logger"
	"finscan/internal/ocr"
	"finscan/internal/pagemode"
	"finscan/internal/pdf"
	"finscan/internal/toc"
	"finscan/pkg/models"
)

// Fallback geometry for pages whose size cannot be read from the document
// or a raster (A4 portrait, points).
const (
	fallbackWidth  = 595.0
	fallbackHeight = 842.0
)

// processPage runs every page-local stage and fills pages[index]. It reports false
// when ctx expired before the page was finished; the caller then treats the
// page as abandoned.
func (p *Pipeline) processPage(ctx context.Context, in Input, pages []models.Page, index int, findings *findingLog) bool {
	log := logger.WithPage(p.log, index)
	page := &pages[index]
	page.Index = index

	var analysed *pdf.Page
	var analyseErr error
	if err := p.withCPU(ctx, func() { analysed, analyseErr = in.Analyze(index) }); err != nil {
		return false
	}

	if analysed == nil || analyseErr != nil {
		cerr := &ClassificationError{Op: "Analyze", Page: index, Err: analyseErr, Details: "degraded to scan"}
		if analyseErr == nil {
			cerr.Err = errors.New("no page content")
		}
		log.Warn().Err(cerr).Msg("Page geometry unreadable")
		findings.add(models.NewPageFinding(checkerName, models.SeverityWarning, index, "%v", cerr))
		page.Manifest = pagemode.Unreadable(index, p.cfg.PageMode)
	} else {
		page.Manifest = pagemode.Classify(analysed.Signals, p.cfg.PageMode)
		page.Width, page.Height = analysed.Width, analysed.Height
	}

	var native []models.Element
	if analysed != nil && page.Manifest.Mode != models.ModeScan {
		native = append(native, analysed.Lines...)
		if analysed.Content != nil && page.Width > 0 {
			native = append(native, pdf.DetectTables(analysed.Content, index, page.Width, page.Height)...)
		}
	}

	var recognised []models.Element
	if page.Manifest.NeedsOCR() {
		var ok bool
		recognised, ok = p.recognise(ctx, in, page, findings)
		if !ok {
			return false
		}
	}
	if page.Width <= 0 || page.Height <= 0 {
		page.Width, page.Height = fallbackWidth, fallbackHeight
		findings.add(models.NewPageFinding(checkerName, models.SeverityWarning, index,
			"page size unknown, using %.0fx%.0f", fallbackWidth, fallbackHeight))
	}

	elements := append(native, layout.Dedupe(native, recognised)...)

	page.IsTOC = toc.DetectPage(elements)
	if page.IsTOC {
		elements = toc.ConvertTables(elements)
	} else {
		var validated []models.Element
		for _, el := range elements {
			validated = append(validated, layout.ValidateTable(el)...)
		}
		elements = validated
	}

	geom := layout.Geometry{Width: page.Width, Height: page.Height}
	if err := p.withCPU(ctx, func() {
		page.Elements, page.Margins = layout.Merge(geom, elements, page.IsTOC)
	}); err != nil {
		return false
	}

	p.classifier.Pass1(pages[index : index+1])

	log.Debug().
		Str("mode", string(page.Manifest.Mode)).
		Int("elements", len(page.Elements)).
		Int("margins", len(page.Margins)).
		Bool("toc", page.IsTOC).
		Str("section", page.Section).
		Msg("Page processed")
	return true
}

// recognise runs the OCR pass ladder and table recovery for one page. It
// reports false only when ctx expired.
func (p *Pipeline) recognise(ctx context.Context, in Input, page *models.Page, findings *findingLog) ([]models.Element, bool) {
	index := page.Index
	log := logger.WithPage(p.log, index)

	if p.selector == nil {
		findings.add(models.NewPageFinding(checkerName, models.SeverityWarning, index,
			"page needs OCR (%s) but no OCR engine is configured", page.Manifest.Mode))
		return nil, true
	}

	raster, err := in.Raster(index)
	if err != nil || raster == nil {
		if err == nil {
			err = pdf.ErrNoRaster
		}
		sev := models.SeverityWarning
		if page.Manifest.Mode == models.ModeScan {
			page.Failed = true
			sev = models.SeverityError
		}
		log.Warn().Err(err).Msg("No page image for OCR")
		findings.add(models.NewPageFinding(checkerName, sev, index, "no page image for OCR: %v", err))
		return nil, true
	}

	if page.Width <= 0 || page.Height <= 0 {
		page.Width, page.Height = imaging.PageSizeAt(raster, page.Manifest.RecommendedDPI)
	}

	var img image.Image
	if err := p.withCPU(ctx, func() {
		img = imaging.FitToDPI(raster, page.Width, page.Height, page.Manifest.RecommendedDPI)
	}); err != nil {
		return nil, false
	}
	pi := ocr.PageImage{
		PageIndex:  index,
		Image:      img,
		DPI:        page.Manifest.RecommendedDPI,
		PageWidth:  page.Width,
		PageHeight: page.Height,
		Languages:  p.cfg.Languages,
	}

	sel, err := p.selector.Select(ctx, pi, p.cfg.Passes)
	if err != nil {
		if ctx.Err() != nil && isCancellation(err) {
			return nil, false
		}
		if errors.Is(err, ocr.ErrAllPassesFailed) {
			page.Failed = true
			log.Error().Err(err).Msg("Every OCR pass failed")
			findings.add(models.NewPageFinding(checkerName, models.SeverityError, index, "%v", err))
			return nil, true
		}
		findings.add(models.NewPageFinding(checkerName, models.SeverityWarning, index, "OCR: %v", err))
		return nil, true
	}

	metrics := sel.Metrics
	page.Quality = &metrics
	page.OCRPass = sel.Audit
	elements := sel.Elements

	if p.tables != nil {
		tbls, err := p.extractTables(ctx, pi)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, false
		case err != nil:
			log.Warn().Err(err).Msg("Table structure recovery failed")
			findings.add(models.NewPageFinding(checkerName, models.SeverityWarning, index, "table structure: %v", err))
		default:
			elements = append(tbls, layout.Dedupe(tbls, elements)...)
		}
	}
	return elements, true
}

// extractTables calls the table engine inside the accelerator gate
func (p *Pipeline) extractTables(ctx context.Context, img ocr.PageImage) ([]models.Element, error) {
	if err := p.accel.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.accel.Release(1)

	tbls, err := p.tables.ExtractTables(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", img.PageIndex, err)
	}
	return tbls, nil
}
