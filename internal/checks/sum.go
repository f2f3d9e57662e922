package checks

import (
	"math"
	"strings"

	"finscan/pkg/models"
)

// Sum verifies labelled totals against the amounts they summarise. A total
// row is compared column by column with the detail rows since the previous
// total row. A column whose heading is a total keyword is compared with the
// amounts to its left on the same row.
type Sum struct {
	tolerance float64
}

// NewSum creates the sum checker
func NewSum(cfg Config) *Sum {
	return &Sum{tolerance: cfg.SumTolerance}
}

func (s *Sum) Name() string { return "sum_consistency" }

func (s *Sum) Check(doc *models.Document) []models.Finding {
	var findings []models.Finding
	for i := range doc.Pages {
		p := &doc.Pages[i]
		for _, el := range p.Tables() {
			rows := tableRows(el)
			findings = append(findings, s.totalRows(p.Index, el.ID, rows)...)
			findings = append(findings, s.totalColumns(p.Index, el, rows)...)
		}
	}
	return findings
}

func (s *Sum) totalRows(page int, id string, rows []row) []models.Finding {
	var findings []models.Finding
	start := 0
	for i, r := range rows {
		if !r.isTotal() {
			continue
		}
		children := rows[start:i]
		start = i + 1
		for _, total := range r.values {
			sum, n, dec := 0.0, 0, total.decimals
			headSum, headN := 0.0, 0
			for _, c := range children {
				v, ok := c.at(total.col)
				if !ok {
					continue
				}
				sum += v.value
				n++
				dec = max(dec, v.decimals)
				if c.heading {
					headSum += v.value
					headN++
				}
			}
			if n == 0 {
				continue
			}
			tol := s.toleranceFor(dec)
			delta := math.Abs(sum - total.value)
			// group headings carrying their own subtotal are an alternative decomposition
			if delta > tol && headN > 0 && math.Abs(headSum-total.value) <= tol {
				continue
			}
			if delta > tol {
				findings = append(findings, models.NewPageFinding(s.Name(), models.SeverityWarning, page,
					"sum mismatch in row %q column %d: total %s, sum of %d rows %s, delta %s",
					r.label, total.col, formatAmount(total.value), n, formatAmount(sum), formatAmount(round(delta, dec))).OnElement(id))
			}
		}
	}
	return findings
}

func (s *Sum) totalColumns(page int, el *models.Element, rows []row) []models.Finding {
	totalCol := -1
	for _, c := range el.Cells {
		if c.Row == 0 && totalLabel.MatchString(strings.ToLower(c.Text)) {
			totalCol = c.Col
		}
	}
	if totalCol < 0 {
		return nil
	}

	var findings []models.Finding
	for _, r := range rows {
		total, ok := r.at(totalCol)
		if !ok {
			continue
		}
		sum, n, dec := 0.0, 0, total.decimals
		for _, a := range r.values {
			if a.col >= totalCol {
				continue
			}
			sum += a.value
			n++
			dec = max(dec, a.decimals)
		}
		if n < 2 {
			continue
		}
		if delta := math.Abs(sum - total.value); delta > s.toleranceFor(dec) {
			findings = append(findings, models.NewPageFinding(s.Name(), models.SeverityWarning, page,
				"sum mismatch in total column of row %q: total %s, sum %s, delta %s",
				r.label, formatAmount(total.value), formatAmount(sum), formatAmount(round(delta, dec))).OnElement(el.ID))
		}
	}
	return findings
}

// toleranceFor allows one unit of the smallest displayed decimal, or the
// configured tolerance when that is larger
func (s *Sum) toleranceFor(decimals int) float64 {
	return max(s.tolerance, math.Pow10(-decimals))
}

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
