package checks

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"finscan/pkg/models"
)

const worstPagesShown = 5

// OCRGate fails a document whose OCR-evaluated pages are too often bad
type OCRGate struct {
	strict         bool
	threshold      float64
	noiseRepeatMin int
}

// NewOCRGate creates the gate for the configured mode
func NewOCRGate(cfg Config) *OCRGate {
	cfg = cfg.WithDefaults()
	g := &OCRGate{
		strict:         cfg.GateMode == ModeStrict,
		threshold:      cfg.LenientBadFraction,
		noiseRepeatMin: cfg.NoiseRepeatMin,
	}
	if g.strict {
		g.threshold = cfg.StrictBadFraction
	}
	return g
}

func (g *OCRGate) Name() string { return "ocr_quality_gate" }

func (g *OCRGate) Check(doc *models.Document) []models.Finding {
	var evaluated, bad, noisy []*models.Page
	for i := range doc.Pages {
		p := &doc.Pages[i]
		if p.Quality == nil {
			continue
		}
		evaluated = append(evaluated, p)
		if p.Quality.Status == models.QualityBad {
			bad = append(bad, p)
		}
		if p.Quality.RepeatRunMax >= g.noiseRepeatMin {
			noisy = append(noisy, p)
		}
	}
	if len(evaluated) == 0 {
		return nil
	}

	var findings []models.Finding
	fraction := float64(len(bad)) / float64(len(evaluated))
	if fraction > g.threshold {
		sev, mode := models.SeverityWarning, ModeLenient
		if g.strict {
			sev, mode = models.SeverityError, ModeStrict
		}
		findings = append(findings, models.NewFinding(g.Name(), sev,
			"%d of %d OCR pages are bad (%.2f > %.2f, %s)", len(bad), len(evaluated), fraction, g.threshold, mode))
	}

	if len(bad) > 0 {
		worst := slices.Clone(bad)
		slices.SortStableFunc(worst, func(a, b *models.Page) int {
			if c := cmp.Compare(a.Quality.Score, b.Quality.Score); c != 0 {
				return c
			}
			return cmp.Compare(a.Index, b.Index)
		})
		worst = worst[:min(len(worst), worstPagesShown)]
		parts := make([]string, len(worst))
		for i, p := range worst {
			parts[i] = fmt.Sprintf("p%d:%.2f", p.Index, p.Quality.Score)
		}
		findings = append(findings, models.NewPageFinding(g.Name(), models.SeverityWarning, worst[0].Index,
			"%d pages have bad OCR quality, worst: %s", len(bad), strings.Join(parts, ", ")))
	}

	if len(noisy) > 0 {
		parts := make([]string, 0, worstPagesShown)
		for _, p := range noisy[:min(len(noisy), worstPagesShown)] {
			parts = append(parts, fmt.Sprintf("p%d:%d", p.Index, p.Quality.RepeatRunMax))
		}
		findings = append(findings, models.NewPageFinding(g.Name(), models.SeverityWarning, noisy[0].Index,
			"%d pages have high noise (repeat_run_max >= %d): %s", len(noisy), g.noiseRepeatMin, strings.Join(parts, ", ")))
	}
	return findings
}
