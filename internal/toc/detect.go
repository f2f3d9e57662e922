// Package toc detects table-of-contents pages, parses their entries and
// resolves the offset between printed page numbers and physical page indices.
package toc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"finscan/pkg/models"
)

// MaxEntryPage bounds the page numbers accepted from TOC lines.
const MaxEntryPage = 500

var headingKeywords = []string{
	"table of contents",
	"contents",
	"sisällysluettelo",
	"sisallysluettelo",
	"sisällys",
}

var (
	sectionNumber = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?`)
	dotLeader     = regexp.MustCompile(`\.{3,}`)
	pageNumber    = regexp.MustCompile(`\b\d{1,3}\b`)
	bareNumber    = regexp.MustCompile(`^\d+$`)

	// tried in order; the first that yields a page in range wins
	targetLadder = []*regexp.Regexp{
		regexp.MustCompile(`\.{2,}\s*(\d{1,3})\s*$`),
		regexp.MustCompile(`\s+(\d{1,3})\s*$`),
		regexp.MustCompile(`(\d{1,3})\s*$`),
	}
	trailingLeader = regexp.MustCompile(`[\s.…·_-]+$`)
)

// DetectPage reports whether the elements of a page form a table of contents
func DetectPage(elements []models.Element) bool {
	var sb strings.Builder
	for i := range elements {
		sb.WriteByte(' ')
		sb.WriteString(elements[i].PlainText())
	}
	all := sb.String()
	lower := strings.ToLower(all)

	for _, kw := range headingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	if len(sectionNumber.FindAllString(all, -1)) >= 3 &&
		len(dotLeader.FindAllString(all, -1)) >= 2 &&
		len(pageNumber.FindAllString(all, -1)) >= 3 {
		return true
	}

	for i := range elements {
		if DetectTable(elements[i]) {
			return true
		}
	}
	return false
}

// DetectTable reports whether a table is a dot-leader list rather than data
func DetectTable(el models.Element) bool {
	if !el.IsTable() || len(el.Cells) < 3 {
		return false
	}
	var dots, pages int
	for _, c := range el.Cells {
		text := strings.TrimSpace(c.Text)
		if dotLeader.MatchString(text) {
			dots++
		}
		if bareNumber.MatchString(text) {
			pages++
		}
	}
	total := float64(len(el.Cells))
	dotRatio, pageRatio := float64(dots)/total, float64(pages)/total
	return (dotRatio > 0.1 && pageRatio > 0.1) || dotRatio > 0.2
}

// ConvertTables replaces every table with list items, one per non-empty row.
// Row items split the table box vertically so reading order follows the rows.
func ConvertTables(elements []models.Element) []models.Element {
	out := make([]models.Element, 0, len(elements))
	for _, el := range elements {
		if !el.IsTable() {
			out = append(out, el)
			continue
		}
		keys, rows := el.Rows()
		if len(keys) == 0 {
			continue
		}
		step := el.BBox.Height() / float64(len(keys))
		for i, k := range keys {
			parts := make([]string, 0, len(rows[k]))
			for _, c := range rows[k] {
				if s := strings.TrimSpace(c.Text); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) == 0 {
				continue
			}
			box := el.BBox
			box.Y0 = el.BBox.Y0 + float64(i)*step
			box.Y1 = box.Y0 + step
			out = append(out, models.Element{
				PageIndex:    el.PageIndex,
				ID:           fmt.Sprintf("%s-row-%d", el.ID, k),
				Kind:         models.KindTextBlock,
				BBox:         box,
				Text:         strings.Join(parts, " "),
				Confidence:   el.Confidence,
				Source:       el.Source,
				SemanticType: models.SemanticListItem,
			})
		}
	}
	return out
}

// ParseTarget extracts the printed target page from the end of a TOC line.
// The label is the line with the page number and dot leader removed.
func ParseTarget(line string) (label string, page int, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", 0, false
	}
	for _, re := range targetLadder {
		m := re.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		if m[2] > 0 && unicode.IsDigit(rune(line[m[2]-1])) {
			continue // tail of a longer number such as a year
		}
		n, err := strconv.Atoi(line[m[2]:m[3]])
		if err != nil || n < 1 || n > MaxEntryPage {
			continue
		}
		label = strings.TrimSpace(trailingLeader.ReplaceAllString(line[:m[0]], ""))
		return label, n, true
	}
	return "", 0, false
}

// ParseEntries reads the entries of one TOC page. Lines without a target
// page or without a lettered label are skipped.
func ParseEntries(page *models.Page) []models.TOCEntry {
	var entries []models.TOCEntry
	for i := range page.Elements {
		el := &page.Elements[i]
		if el.IsTable() {
			continue
		}
		for _, line := range strings.Split(el.Text, "\n") {
			label, target, ok := ParseTarget(line)
			if !ok || !strings.ContainsFunc(label, unicode.IsLetter) {
				continue
			}
			entries = append(entries, models.TOCEntry{
				Label:             label,
				PrintedTargetPage: target,
				FinancialType:     FinancialTypeOf(label),
				SourcePage:        page.Index,
			})
		}
	}
	return entries
}

// Entries collects the entries of every TOC page in page order
func Entries(pages []models.Page) []models.TOCEntry {
	var out []models.TOCEntry
	for i := range pages {
		if pages[i].IsTOC {
			out = append(out, ParseEntries(&pages[i])...)
		}
	}
	return out
}

// entryKeywords maps TOC labels to financial types. More specific phrases
// come first; matching is by substring on the lowercased label.
var entryKeywords = []struct {
	keyword string
	typ     models.FinancialType
}{
	{"tilintarkastuskertomus", models.FinAuditorsReport},
	{"auditor", models.FinAuditorsReport},
	{"toimintakertomus", models.FinManagementReport},
	{"hallituksen kertomus", models.FinManagementReport},
	{"management report", models.FinManagementReport},
	{"laatimisperiaatteet", models.FinAccountingPolicies},
	{"accounting policies", models.FinAccountingPolicies},
	{"oman pääoman muutos", models.FinChangesInEquity},
	{"changes in equity", models.FinChangesInEquity},
	{"vastuusitoumukset", models.FinCommitmentsContingencies},
	{"commitments", models.FinCommitmentsContingencies},
	{"lähipiiri", models.FinRelatedParty},
	{"related part", models.FinRelatedParty},
	{"talousarvion toteutuminen", models.FinBudgetComparison},
	{"budget", models.FinBudgetComparison},
	{"tunnusluvut", models.FinPerformanceIndicators},
	{"key figures", models.FinPerformanceIndicators},
	{"rahoituslaskelma", models.FinCashFlowStatement},
	{"rahavirtalaskelma", models.FinCashFlowStatement},
	{"cash flow", models.FinCashFlowStatement},
	{"tuloslaskelma", models.FinIncomeStatement},
	{"income statement", models.FinIncomeStatement},
	{"liitetiedot", models.FinNotes},
	{"notes", models.FinNotes},
	{"tase", models.FinBalanceSheet},
	{"balance sheet", models.FinBalanceSheet},
	{"liitteet", models.FinAppendix},
	{"appendi", models.FinAppendix},
}

// FinancialTypeOf returns the financial type named by a TOC label, or "" when none matches
func FinancialTypeOf(label string) models.FinancialType {
	lower := strings.ToLower(label)
	for _, k := range entryKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.typ
		}
	}
	return ""
}
