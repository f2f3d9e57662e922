package checks

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"finscan/pkg/models"
)

// Diff compares a document with a golden snapshot of an earlier run
type Diff struct {
	golden *models.Document
}

// NewDiff creates the regression diff. A nil golden document skips it.
func NewDiff(golden *models.Document) *Diff {
	return &Diff{golden: golden}
}

func (d *Diff) Name() string { return "regression_diff" }

// PageSummary is the part of a page the regression diff compares
type PageSummary struct {
	Section string
	Labels  []string
	Totals  map[string]string
}

// Summarize reduces a page to its section, the sorted financial labels of
// its elements and its table totals keyed by row label
func Summarize(p *models.Page) PageSummary {
	s := PageSummary{Section: p.Section, Totals: map[string]string{}}
	for i := range p.Elements {
		el := &p.Elements[i]
		if el.FinancialType != "" {
			s.Labels = append(s.Labels, string(el.FinancialType))
		}
		if !el.IsTable() {
			continue
		}
		for _, r := range tableRows(el) {
			if !r.isTotal() || len(r.values) == 0 {
				continue
			}
			vals := make([]string, len(r.values))
			for k, a := range r.values {
				vals[k] = formatAmount(a.value)
			}
			key := r.label
			for n := 2; s.Totals[key] != ""; n++ {
				key = fmt.Sprintf("%s#%d", r.label, n)
			}
			s.Totals[key] = strings.Join(vals, " ")
		}
	}
	slices.Sort(s.Labels)
	return s
}

func (d *Diff) Check(doc *models.Document) []models.Finding {
	if d.golden == nil {
		return []models.Finding{models.NewFinding(d.Name(), models.SeverityInfo,
			"no golden snapshot, regression check skipped")}
	}

	current := pagesByIndex(doc)
	golden := pagesByIndex(d.golden)
	indices := slices.Sorted(maps.Keys(current))
	for idx := range golden {
		if _, ok := current[idx]; !ok {
			indices = append(indices, idx)
		}
	}
	slices.Sort(indices)

	var findings []models.Finding
	for _, idx := range indices {
		cur, inCur := current[idx]
		gold, inGold := golden[idx]
		switch {
		case !inCur:
			findings = append(findings, models.NewPageFinding(d.Name(), models.SeverityError, idx,
				"page %d of the golden snapshot is missing", idx))
			continue
		case !inGold:
			findings = append(findings, models.NewPageFinding(d.Name(), models.SeverityError, idx,
				"page %d is not in the golden snapshot", idx))
			continue
		}

		a, b := Summarize(cur), Summarize(gold)
		var changes []string
		if a.Section != b.Section {
			changes = append(changes, fmt.Sprintf("section %s -> %s", b.Section, a.Section))
		}
		if !slices.Equal(a.Labels, b.Labels) {
			changes = append(changes, fmt.Sprintf("financial labels %v -> %v", b.Labels, a.Labels))
		}
		if !maps.Equal(a.Totals, b.Totals) {
			changes = append(changes, "table totals "+totalsDiff(b.Totals, a.Totals))
		}
		if len(changes) > 0 {
			findings = append(findings, models.NewPageFinding(d.Name(), models.SeverityWarning, idx,
				"page %d changed: %s", idx, strings.Join(changes, "; ")))
		}
	}

	if len(findings) == 0 {
		findings = append(findings, models.NewFinding(d.Name(), models.SeverityInfo,
			"identical to golden snapshot %s (%d pages)", d.golden.ID, len(d.golden.Pages)))
	}
	return findings
}

func pagesByIndex(doc *models.Document) map[int]*models.Page {
	out := make(map[int]*models.Page, len(doc.Pages))
	for i := range doc.Pages {
		out[doc.Pages[i].Index] = &doc.Pages[i]
	}
	return out
}

func totalsDiff(before, after map[string]string) string {
	keys := slices.Sorted(maps.Keys(before))
	for k := range after {
		if _, ok := before[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var parts []string
	for _, k := range keys {
		if before[k] != after[k] {
			parts = append(parts, fmt.Sprintf("%q %s -> %s", k, orNone(before[k]), orNone(after[k])))
		}
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
