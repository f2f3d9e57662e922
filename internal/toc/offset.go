package toc

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"finscan/pkg/models"
)

// OffsetConfig tunes the page-number offset vote
type OffsetConfig struct {
	// SearchWindow is how many physical pages either side of a printed
	// target page are scanned for rendered page numbers.
	SearchWindow int `yaml:"search_window"`

	// MinAgreement is the share of candidates the winning offset needs.
	MinAgreement float64 `yaml:"min_agreement"`

	// MaxPrintedPage bounds accepted page numbers.
	MaxPrintedPage int `yaml:"max_printed_page"`

	FooterBand float64 `yaml:"footer_band"`
	HeaderBand float64 `yaml:"header_band"`
}

// DefaultOffsetConfig returns the tuned defaults
func DefaultOffsetConfig() OffsetConfig {
	return OffsetConfig{
		SearchWindow:   3,
		MinAgreement:   0.5,
		MaxPrintedPage: 500,
		FooterBand:     0.15,
		HeaderBand:     0.10,
	}
}

// WithDefaults fills zero fields from DefaultOffsetConfig
func (c OffsetConfig) WithDefaults() OffsetConfig {
	d := DefaultOffsetConfig()
	if c.SearchWindow <= 0 {
		c.SearchWindow = d.SearchWindow
	}
	if c.MinAgreement <= 0 {
		c.MinAgreement = d.MinAgreement
	}
	if c.MaxPrintedPage <= 0 {
		c.MaxPrintedPage = d.MaxPrintedPage
	}
	if c.FooterBand <= 0 {
		c.FooterBand = d.FooterBand
	}
	if c.HeaderBand <= 0 {
		c.HeaderBand = d.HeaderBand
	}
	return c
}

// Candidate is one rendered page number found in a page margin
type Candidate struct {
	PageIndex int    `json:"page_index"`
	Printed   int    `json:"printed"`
	Offset    int    `json:"offset"`
	Origin    string `json:"origin"` // footer, footer_phrase, header
}

// OffsetResolution is the outcome of the offset vote. It is a value: once
// computed it is passed along unchanged.
type OffsetResolution struct {
	Offset     int         `json:"offset"`
	Resolved   bool        `json:"resolved"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Agreement  float64     `json:"agreement"`
}

var (
	standalonePage = regexp.MustCompile(`^(\d{1,3})$`)
	pagePhrase     = regexp.MustCompile(`(?:sivu|page)\s*(\d{1,3})`)
)

// ResolveOffset votes on physical_index - printed_number over the page
// numbers rendered in page margins. With entries present only pages near a
// printed target are scanned, falling back to all pages when that finds
// nothing. TOC pages are never scanned. The result depends only on its
// inputs.
func ResolveOffset(pages []models.Page, entries []models.TOCEntry, cfg OffsetConfig) OffsetResolution {
	cfg = cfg.WithDefaults()

	var candidates []Candidate
	if len(entries) > 0 {
		near := make(map[int]bool)
		for _, e := range entries {
			for i := e.PrintedTargetPage - cfg.SearchWindow; i <= e.PrintedTargetPage+cfg.SearchWindow; i++ {
				near[i] = true
			}
		}
		candidates = scan(pages, cfg, func(p *models.Page) bool { return near[p.Index] })
	}
	if len(candidates) == 0 {
		candidates = scan(pages, cfg, func(*models.Page) bool { return true })
	}

	res := OffsetResolution{Candidates: candidates}
	if len(candidates) == 0 {
		return res
	}

	counts := make(map[int]int)
	for _, c := range candidates {
		counts[c.Offset]++
	}
	offsets := make([]int, 0, len(counts))
	for o := range counts {
		offsets = append(offsets, o)
	}
	// most votes, then smallest magnitude, then smallest value
	slices.SortFunc(offsets, func(a, b int) int {
		return cmp.Or(
			cmp.Compare(counts[b], counts[a]),
			cmp.Compare(abs(a), abs(b)),
			cmp.Compare(a, b),
		)
	})

	best := offsets[0]
	res.Agreement = float64(counts[best]) / float64(len(candidates))
	if res.Agreement >= cfg.MinAgreement {
		res.Offset = best
		res.Resolved = true
	}
	return res
}

func scan(pages []models.Page, cfg OffsetConfig, include func(*models.Page) bool) []Candidate {
	var out []Candidate
	for i := range pages {
		p := &pages[i]
		if p.IsTOC || p.Height <= 0 || !include(p) {
			continue
		}
		for _, group := range [][]models.Element{p.Margins, p.Elements} {
			for j := range group {
				if group[j].IsTable() {
					continue
				}
				out = append(out, pageNumbers(p, &group[j], cfg)...)
			}
		}
	}
	return out
}

func pageNumbers(p *models.Page, el *models.Element, cfg OffsetConfig) []Candidate {
	text := strings.TrimSpace(el.Text)
	valid := func(s string) (int, bool) {
		n, err := strconv.Atoi(s)
		return n, err == nil && n >= 1 && n <= cfg.MaxPrintedPage
	}
	found := func(n int, origin string) Candidate {
		return Candidate{PageIndex: p.Index, Printed: n, Offset: p.Index - n, Origin: origin}
	}

	switch {
	case el.BBox.Y1 > p.Height*(1-cfg.FooterBand):
		if m := standalonePage.FindStringSubmatch(text); m != nil {
			if n, ok := valid(m[1]); ok {
				return []Candidate{found(n, "footer")}
			}
		}
		if m := pagePhrase.FindStringSubmatch(strings.ToLower(text)); m != nil {
			if n, ok := valid(m[1]); ok {
				return []Candidate{found(n, "footer_phrase")}
			}
		}
	case el.BBox.Y0 < p.Height*cfg.HeaderBand:
		if m := standalonePage.FindStringSubmatch(text); m != nil {
			if n, ok := valid(m[1]); ok {
				return []Candidate{found(n, "header")}
			}
		}
	}
	return nil
}

// Target maps a printed page number to a physical index in [0, pageCount-1]
func Target(printed, offset, pageCount int) int {
	return min(max(printed+offset, 0), max(pageCount-1, 0))
}

// Apply returns a copy of the entries with PDFTargetPage set
func Apply(entries []models.TOCEntry, offset, pageCount int) []models.TOCEntry {
	out := make([]models.TOCEntry, len(entries))
	for i, e := range entries {
		t := Target(e.PrintedTargetPage, offset, pageCount)
		e.PDFTargetPage = &t
		out[i] = e
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
