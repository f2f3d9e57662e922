package semantic

import (
	"regexp"
	"strings"
	"unicode"

	"finscan/internal/toc"
	"finscan/pkg/models"
)

// elementKeywords classify text and table header rows. Order matters:
// the first list with a hit decides.
var elementKeywords = []struct {
	typ      models.FinancialType
	keywords []string
}{
	{models.FinBalanceSheet, []string{"tase", "balance sheet", "statement of financial position", "vastaavaa", "vastattavaa", "omavaraisuusaste", "varat", "velat"}},
	{models.FinIncomeStatement, []string{"tuloslaskelma", "income statement", "profit or loss", "toimintatuotot", "toimintakulut", "verotulot", "tulos"}},
	{models.FinCashFlowStatement, []string{"rahoituslaskelma", "cash flow", "rahavirtalaskelma", "käteisvarat"}},
	{models.FinNotes, []string{"liitetiedot", "notes", "liite", "selitykset", "explanatory notes"}},
	{models.FinAccountingPolicies, []string{"tilinpäätöksen laatimisperiaatteet", "accounting policies", "tilinpäätösperiaatteet"}},
}

var (
	bulletStart     = regexp.MustCompile(`^[\d•\-\*]\s+`)
	numberedHeading = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\p{Lu}`)
	headingWords    = []string{"tase", "tuloslaskelma", "rahoituslaskelma", "liite", "notes"}
	yearCell        = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// ClassifyText returns the financial type named by a text, with evidence
func ClassifyText(text string) (models.FinancialType, []string) {
	lower := strings.ToLower(text)
	for _, group := range elementKeywords {
		if kw, ok := firstContained(lower, group.keywords); ok {
			return group.typ, []string{"keyword:" + kw}
		}
	}
	return "", nil
}

// ClassifyTable infers a financial type from table structure, then from
// the header row text.
func ClassifyTable(el *models.Element) (models.FinancialType, []string) {
	if len(el.Cells) == 0 {
		return "", nil
	}
	n := min(len(el.Cells), 10)
	first := make([]string, 0, n)
	for _, c := range el.Cells[:n] {
		first = append(first, strings.ToLower(c.Text))
	}
	head := strings.Join(first, " ")

	if _, ok := firstContained(head, []string{"vastaavaa", "vastattavaa", "varat", "velat"}); ok {
		return models.FinBalanceSheet, []string{"structure:balance_sheet_columns"}
	}
	if yearCell.MatchString(head) {
		if _, ok := firstContained(head, []string{"tuotot", "kulut", "tulos"}); ok {
			return models.FinIncomeStatement, []string{"structure:income_statement_columns"}
		}
	}

	var header []string
	for _, c := range el.Cells {
		if c.Row == 0 && len(header) < 5 {
			header = append(header, c.Text)
		}
	}
	return ClassifyText(strings.Join(header, " "))
}

// ElementType returns the structural semantic type of a flow element
func ElementType(el *models.Element, first bool) string {
	if el.IsTable() {
		return models.SemanticTable
	}
	if el.SemanticType != "" {
		return el.SemanticType
	}
	text := strings.TrimSpace(el.Text)
	lower := strings.ToLower(text)
	runes := []rune(text)

	if first && len(runes) < 100 && (isUpper(text) || len(strings.Fields(text)) <= 5) {
		return models.SemanticTitle
	}
	if len(runes) < 50 {
		if numberedHeading.MatchString(text) {
			return models.SemanticSectionHeader
		}
		if _, ok := firstContained(lower, headingWords); ok && len(strings.Fields(text)) <= 6 {
			return models.SemanticSectionHeader
		}
	}
	if bulletStart.MatchString(lower) {
		return models.SemanticListItem
	}
	return models.SemanticText
}

// Elements types every element of every page. On TOC pages text lines with
// a target page become list items carrying the printed and physical target;
// the physical target uses the resolved offset passed in.
func (c *Classifier) Elements(pages []models.Page, offset toc.OffsetResolution) {
	for i := range pages {
		classifyElements(&pages[i], offset.Offset, len(pages))
	}
}

func classifyElements(p *models.Page, offset, pageCount int) {
	for i := range p.Margins {
		m := &p.Margins[i]
		if (m.BBox.Y0+m.BBox.Y1)/2 < p.Height/2 {
			m.SemanticType = models.SemanticPageHeader
		} else {
			m.SemanticType = models.SemanticPageFooter
		}
	}

	for i := range p.Elements {
		el := &p.Elements[i]
		el.SemanticType = ElementType(el, i == 0)

		if el.IsTable() {
			el.FinancialType, el.Evidence = ClassifyTable(el)
			continue
		}

		if p.IsTOC {
			if label, printed, ok := toc.ParseTarget(el.Text); ok && strings.ContainsFunc(label, unicode.IsLetter) {
				el.SemanticType = models.SemanticListItem
				target := toc.Target(printed, offset, pageCount)
				el.TOCTargetPage = &printed
				el.PDFTargetPage = &target
				if ft := toc.FinancialTypeOf(label); ft != "" {
					el.FinancialType = ft
					el.Evidence = []string{"toc_entry:" + label}
					continue
				}
			}
		}
		el.FinancialType, el.Evidence = ClassifyText(el.Text)
	}
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
