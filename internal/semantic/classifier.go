// Package semantic labels pages with a financial section and elements with
// a structural and financial type.
//
// Classification runs in two passes. Pass 1 looks at one page at a time and
// is safe to run concurrently per page. Pass 2 needs every page and the TOC
// entries with resolved targets; it overrides Pass 1 labels with the
// sections the document's own table of contents names.
package semantic

import (
	"strings"

	"finscan/internal/logger"
	"finscan/pkg/models"

	"github.com/rs/zerolog"
)

// Confidence levels. Fallback and hint levels stay below every keyword
// decision so that output consumers can tell them apart.
const (
	ConfTOCPage     = 0.9
	ConfHardRule    = 0.9
	ConfCover       = 0.9
	ConfWeakCover   = 0.5
	ConfStrong      = 0.8
	ConfKeyword     = 0.7
	ConfHint        = 0.4
	ConfFallback    = 0.3
	DefaultTOCTrust = 0.95
)

// EvidenceFallback marks a page nothing matched
const EvidenceFallback = "fallback"

// EvidenceTOCOverride marks a page labelled from a TOC entry
const EvidenceTOCOverride = "toc_override"

// Decision is one page-level label with its audit trail
type Decision struct {
	Section    string
	Confidence float64
	Evidence   []string
}

// Classifier assigns page sections and element types
type Classifier struct {
	tocTrust float64
	hints    HintProvider
	log      zerolog.Logger
}

// Option configures a Classifier
type Option func(*Classifier)

// WithTOCTrust sets the confidence of TOC-guided overrides
func WithTOCTrust(trust float64) Option {
	return func(c *Classifier) {
		if trust > 0 && trust <= 1 {
			c.tocTrust = trust
		}
	}
}

// WithHints enables advisory labels for pages left at the fallback
func WithHints(p HintProvider) Option {
	return func(c *Classifier) { c.hints = p }
}

// New creates a Classifier
func New(opts ...Option) *Classifier {
	c := &Classifier{
		tocTrust: DefaultTOCTrust,
		log:      logger.WithComponent("semantic"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// hard rules: two indicators on one page settle the statement type
var hardRules = []struct {
	section    models.FinancialType
	indicators []string
}{
	{models.FinBalanceSheet, []string{"VASTAAVAA", "VASTATTAVAA", "PYSYVÄT VASTAAVAT", "VAIHTUVAT VASTAAVAT", "OMA PÄÄOMA", "VIERAS PÄÄOMA", "TOTAL ASSETS", "TOTAL LIABILITIES"}},
	{models.FinIncomeStatement, []string{"TOIMINTATUOTOT", "TOIMINTAKULUT", "VUOSIKATE", "TILIKAUDEN TULOS", "SATUNNAISET TUOTOT", "SATUNNAISET KULUT"}},
	{models.FinCashFlowStatement, []string{"TOIMINNAN RAHAVIRTA", "INVESTOINTIEN RAHAVIRTA", "RAHOITUKSEN RAHAVIRTA", "RAHAVAROJEN MUUTOS"}},
}

var coverKeywords = []string{"tilinpäätös", "financial statement", "annual report", "vuosikertomus", "toimintakertomus ja tilinpäätös"}

type rung struct {
	section    models.FinancialType
	confidence float64
	keywords   []string
}

// pageLadder is tried top to bottom on the page's leading text
var pageLadder = []rung{
	{models.FinManagementReport, ConfStrong, []string{"johtajan kertomus", "hallituksen kertomus", "toimintakertomus", "management report"}},
	{models.FinNotes, ConfStrong, []string{"liitetiedot", "notes to the financial statements", "explanatory notes", "selitykset"}},
	{models.FinAuditorsReport, ConfStrong, []string{"tilintarkastuskertomus", "auditor's report", "independent auditor"}},
	{models.FinBalanceSheet, ConfKeyword, []string{"tase", "balance sheet", "statement of financial position"}},
	{models.FinIncomeStatement, ConfKeyword, []string{"tuloslaskelma", "income statement", "profit or loss"}},
	{models.FinCashFlowStatement, ConfKeyword, []string{"rahoituslaskelma", "rahavirtalaskelma", "cash flow"}},
	{models.FinAccountingPolicies, ConfKeyword, []string{"laatimisperiaatteet", "accounting policies"}},
	{models.FinChangesInEquity, ConfKeyword, []string{"oman pääoman muutos", "changes in equity"}},
	{models.FinCommitmentsContingencies, ConfKeyword, []string{"vastuusitoumukset", "vakuudet", "commitments", "contingencies"}},
	{models.FinRelatedParty, ConfKeyword, []string{"lähipiiri", "related party"}},
	{models.FinBudgetComparison, ConfKeyword, []string{"talousarvion toteutuminen", "budget comparison"}},
	{models.FinPerformanceIndicators, ConfKeyword, []string{"tunnusluvut", "key figures", "performance indicators"}},
}

// ClassifyPage is Pass 1: a local decision from one page's content
func ClassifyPage(p *models.Page) Decision {
	if p.IsTOC {
		return Decision{Section: models.SectionTOC, Confidence: ConfTOCPage, Evidence: []string{"toc_page"}}
	}

	upper := strings.ToUpper(p.AllText())
	for _, rule := range hardRules {
		var hits []string
		for _, ind := range rule.indicators {
			if strings.Contains(upper, ind) {
				hits = append(hits, "hard_rule:"+strings.ToLower(ind))
			}
		}
		if len(hits) >= 2 {
			return Decision{Section: string(rule.section), Confidence: ConfHardRule, Evidence: hits}
		}
	}

	sample := strings.ToLower(leadingText(p))
	if p.Index == 0 {
		if kw, ok := firstContained(sample, coverKeywords); ok {
			return Decision{Section: models.SectionCover, Confidence: ConfCover, Evidence: []string{"keyword:" + kw}}
		}
	}
	if p.Index <= 1 && nearEmpty(p) {
		return Decision{Section: models.SectionCover, Confidence: ConfWeakCover, Evidence: []string{"near_empty_title"}}
	}

	for _, r := range pageLadder {
		if kw, ok := firstContained(sample, r.keywords); ok {
			return Decision{Section: string(r.section), Confidence: r.confidence, Evidence: []string{"keyword:" + kw}}
		}
	}

	return Decision{Section: string(models.FinAppendix), Confidence: ConfFallback, Evidence: []string{EvidenceFallback}}
}

// Pass1 labels every page from its own content
func (c *Classifier) Pass1(pages []models.Page) {
	for i := range pages {
		apply(&pages[i], ClassifyPage(&pages[i]))
	}
}

// Pass2 overrides page labels with TOC entries that carry a financial type
// and a target page. TOC and cover pages keep their labels. When two entries
// target the same page the first wins. It returns the number of overrides.
func (c *Classifier) Pass2(pages []models.Page, entries []models.TOCEntry) int {
	done := make(map[int]bool)
	n := 0
	for _, e := range entries {
		if e.PDFTargetPage == nil || !e.FinancialType.Valid() {
			continue
		}
		idx := *e.PDFTargetPage
		if idx < 0 || idx >= len(pages) || done[idx] {
			continue
		}
		p := &pages[idx]
		if p.Section == models.SectionTOC || p.Section == models.SectionCover {
			continue
		}
		done[idx] = true
		previous := p.Section
		apply(p, Decision{
			Section:    string(e.FinancialType),
			Confidence: c.tocTrust,
			Evidence:   []string{EvidenceTOCOverride, "toc_entry:" + e.Label},
		})
		n++
		c.log.Debug().
			Int("page", idx).
			Str("from", previous).
			Str("to", p.Section).
			Str("entry", e.Label).
			Msg("TOC-guided override")
	}
	return n
}

// IsFallback reports whether the page label is the unmatched default
func IsFallback(p *models.Page) bool {
	return p.Section == string(models.FinAppendix) && p.SectionConfidence == ConfFallback
}

func apply(p *models.Page, d Decision) {
	p.Section = d.Section
	p.SectionConfidence = d.Confidence
	p.SectionEvidence = d.Evidence
}

// leadingText is the text of the first ten elements, using only the
// header row of tables
func leadingText(p *models.Page) string {
	var parts []string
	for i := range p.Elements {
		if i >= 10 {
			break
		}
		el := &p.Elements[i]
		if !el.IsTable() {
			parts = append(parts, el.Text)
			continue
		}
		var header []string
		for _, c := range el.Cells {
			if c.Row == 0 && len(header) < 5 {
				header = append(header, c.Text)
			}
		}
		parts = append(parts, strings.Join(header, " "))
	}
	return strings.Join(parts, " ")
}

// nearEmpty holds for a page with a short title and almost no body
func nearEmpty(p *models.Page) bool {
	if len(p.Elements) == 0 || len(p.Elements) > 4 {
		return false
	}
	return len([]rune(strings.TrimSpace(p.AllText()))) < 200
}

func firstContained(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}
