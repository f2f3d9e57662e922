package checks

import (
	"regexp"
	"strconv"
	"strings"

	"finscan/internal/tables"
	"finscan/pkg/models"
)

var (
	// whole words only: "consumables" and "summary" are not totals
	totalLabel = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:yhteensä|kokonaismäärä|välisumma|summa|sum|(?:sub)?totals?)(?:$|[^\p{L}\p{N}])`)
	// a bare year is a column heading, not an amount
	yearValue = regexp.MustCompile(`^(19|20)\d{2}$`)
)

type amount struct {
	col      int
	value    float64
	decimals int
}

// row is one table row split into its label and its amounts
type row struct {
	index   int
	label   string
	heading bool
	values  []amount
}

func (r row) at(col int) (amount, bool) {
	for _, a := range r.values {
		if a.col == col {
			return a, true
		}
	}
	return amount{}, false
}

func (r row) isTotal() bool {
	return totalLabel.MatchString(r.label)
}

// tableRows splits a table into labelled rows in row order
func tableRows(el *models.Element) []row {
	keys, cells := el.Rows()
	out := make([]row, 0, len(keys))
	for _, k := range keys {
		r := row{index: k}
		var label []string
		for _, c := range cells[k] {
			text := strings.TrimSpace(c.Text)
			if text == "" || yearValue.MatchString(text) {
				continue
			}
			if v, dec, ok := tables.ParseNumber(text); ok {
				r.values = append(r.values, amount{col: c.Col, value: v, decimals: dec})
				continue
			}
			label = append(label, text)
		}
		joined := strings.Join(label, " ")
		r.heading = isHeading(joined)
		r.label = strings.ToLower(joined)
		out = append(out, r)
	}
	return out
}

// isHeading holds for an upper-case group label such as "PYSYVÄT VASTAAVAT"
func isHeading(label string) bool {
	letters := false
	for _, r := range label {
		if r >= 'a' && r <= 'z' || r == 'ä' || r == 'ö' || r == 'å' {
			return false
		}
		if r >= 'A' && r <= 'Z' || r == 'Ä' || r == 'Ö' || r == 'Å' {
			letters = true
		}
	}
	return letters
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
