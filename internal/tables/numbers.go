package tables

import (
	"regexp"
	"strconv"
	"strings"

	"finscan/pkg/models"
)

var plainNumber = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ParseNumber reads a displayed amount in Finnish or English notation and
// reports the number of decimals shown. Spaces (including no-break and thin
// spaces) are thousands separators, a lone comma is the decimal separator,
// parentheses and leading minus signs mean negative, currency and percent
// symbols are dropped.
func ParseNumber(s string) (value float64, decimals int, ok bool) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return 0, 0, false
	}
	for _, sym := range []string{"€", "$", "%", "EUR", "eur", " ", "\u00a0", "\u2009", "\u202f"} {
		cleaned = strings.ReplaceAll(cleaned, sym, "")
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	for _, minus := range []string{"-", "−", "–"} {
		if strings.HasPrefix(cleaned, minus) {
			negative = !negative
			cleaned = strings.TrimPrefix(cleaned, minus)
			break
		}
	}
	if cleaned == "" {
		return 0, 0, false
	}

	commas, dots := strings.Count(cleaned, ","), strings.Count(cleaned, ".")
	switch {
	case commas > 0 && dots > 0:
		// the later separator is the decimal one
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case commas == 1:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case commas > 1:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case dots > 1:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	if !plainNumber.MatchString(cleaned) {
		return 0, 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, 0, false
	}
	if i := strings.IndexByte(cleaned, '.'); i >= 0 {
		decimals = len(cleaned) - i - 1
	}
	if negative {
		v = -v
	}
	return v, decimals, true
}

// FillValues sets Value on every cell whose text parses as a number
func FillValues(cells []models.Cell) {
	for i := range cells {
		if v, _, ok := ParseNumber(cells[i].Text); ok {
			cells[i].Value = &v
		} else {
			cells[i].Value = nil
		}
	}
}

// NumericShare returns the fraction of non-empty cells holding a number
func NumericShare(cells []models.Cell) float64 {
	var filled, numeric int
	for _, c := range cells {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		filled++
		if _, _, ok := ParseNumber(c.Text); ok {
			numeric++
		}
	}
	if filled == 0 {
		return 0
	}
	return float64(numeric) / float64(filled)
}

// ColumnCount returns the number of distinct column indices
func ColumnCount(cells []models.Cell) int {
	cols := map[int]bool{}
	for _, c := range cells {
		cols[c.Col] = true
	}
	return len(cols)
}
