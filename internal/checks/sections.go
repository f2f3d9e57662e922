package checks

import (
	"fmt"
	"slices"
	"strings"

	"finscan/internal/semantic"
	"finscan/pkg/models"
)

// shortDocumentPages is the page count up to which a document is treated as
// an excerpt that only needs a cover and a TOC
const shortDocumentPages = 5

// Sections verifies that the sections every report carries were found and
// that the labelling did not mostly fall back to the default
type Sections struct {
	fallbackShareMax float64
}

// NewSections creates the section coverage checker
func NewSections(cfg Config) *Sections {
	return &Sections{fallbackShareMax: cfg.WithDefaults().FallbackShareMax}
}

func (s *Sections) Name() string { return "semantic_sections" }

func (s *Sections) Check(doc *models.Document) []models.Finding {
	if len(doc.Pages) == 0 {
		return nil
	}

	found := map[string]bool{}
	var unlabelled, fallback []int
	for i := range doc.Pages {
		p := &doc.Pages[i]
		switch {
		case p.Section == "":
			unlabelled = append(unlabelled, p.Index)
		case semantic.IsFallback(p):
			fallback = append(fallback, p.Index)
		}
		if p.Section != "" {
			found[p.Section] = true
		}
	}

	required := []string{string(models.FinIncomeStatement), string(models.FinBalanceSheet)}
	if len(doc.Pages) <= shortDocumentPages {
		required = []string{models.SectionCover, models.SectionTOC}
	}
	var missing []string
	for _, r := range required {
		if !found[r] {
			missing = append(missing, r)
		}
	}

	var findings []models.Finding
	if len(missing) > 0 {
		findings = append(findings, models.NewFinding(s.Name(), models.SeverityWarning,
			"required sections missing: %s", strings.Join(missing, ", ")))
	}

	if len(fallback) > 0 {
		share := float64(len(fallback)) / float64(len(doc.Pages))
		sev := models.SeverityInfo
		if share > s.fallbackShareMax {
			sev = models.SeverityWarning
		}
		findings = append(findings, models.NewPageFinding(s.Name(), sev, fallback[0],
			"%d of %d pages labelled by fallback: %s", len(fallback), len(doc.Pages), pageList(fallback)))
	}
	if len(unlabelled) > 0 {
		findings = append(findings, models.NewPageFinding(s.Name(), models.SeverityInfo, unlabelled[0],
			"%d pages have no section: %s", len(unlabelled), pageList(unlabelled)))
	}
	return findings
}

func pageList(pages []int) string {
	const shown = 10
	parts := make([]string, 0, shown)
	for _, p := range pages[:min(len(pages), shown)] {
		parts = append(parts, fmt.Sprint(p))
	}
	out := strings.Join(parts, ", ")
	if len(pages) > shown {
		out += fmt.Sprintf(" (+%d more)", len(pages)-shown)
	}
	return out
}

// AllFallback reports whether every page ended at the fallback label
func AllFallback(doc *models.Document) bool {
	return len(doc.Pages) > 0 && !slices.ContainsFunc(doc.Pages, func(p models.Page) bool {
		return !semantic.IsFallback(&p)
	})
}
