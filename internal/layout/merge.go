// Package layout orders the elements of one page into reading order and
// filters table candidates that do not look like tables.
package layout

import (
	"cmp"
	"slices"
	"strings"

	"finscan/internal/tables"
	"finscan/pkg/models"
)

const (
	// MarginBand is the fraction of page height treated as header and footer.
	MarginBand = 0.10

	// ColumnSpan is the x-centre span, relative to page width, at which the
	// page is read as two columns.
	ColumnSpan = 0.60

	// DisplaceOverlap is the share of a text element's own area that a table
	// must cover for the text to be dropped from the flow.
	DisplaceOverlap = 0.50

	// MinTableColumns and MinNumericShare define a plausible table.
	MinTableColumns = 2
	MinNumericShare = 0.10
)

// Geometry is the page size in points
type Geometry struct {
	Width  float64
	Height float64
}

type item struct {
	el    models.Element
	order int
}

// Merge returns the elements of a page in reading order, plus the text
// elements excluded as page margins. On TOC pages nothing is excluded. The
// result depends only on the input: ties keep extraction order.
func Merge(geom Geometry, elements []models.Element, isTOC bool) (ordered, margins []models.Element) {
	var flow, tbls []item
	for i, el := range elements {
		switch {
		case el.IsTable():
			tbls = append(tbls, item{el: el, order: i})
		case !isTOC && InMargin(el.BBox, geom.Height):
			margins = append(margins, el)
		default:
			flow = append(flow, item{el: el, order: i})
		}
	}

	seq := make([]item, 0, len(flow)+len(tbls))
	for _, col := range columns(flow, geom.Width) {
		slices.SortStableFunc(col, byY)
		seq = append(seq, col...)
	}

	slices.SortStableFunc(tbls, byY)
	for _, t := range tbls {
		seq = placeTable(seq, t)
	}

	ordered = make([]models.Element, len(seq))
	for i, it := range seq {
		ordered[i] = it.el
	}
	return ordered, margins
}

// InMargin reports whether a box reaches into the top or bottom band
func InMargin(b models.BBox, pageHeight float64) bool {
	if pageHeight <= 0 {
		return false
	}
	return b.Y0 < pageHeight*MarginBand || b.Y1 > pageHeight*(1-MarginBand)
}

func byY(a, b item) int {
	return cmp.Or(cmp.Compare(a.el.BBox.Y0, b.el.BBox.Y0), cmp.Compare(a.order, b.order))
}

// columns splits the flow at the page midpoint when x-centres spread wide
// enough. The left column comes first.
func columns(flow []item, width float64) [][]item {
	if len(flow) == 0 {
		return nil
	}
	lo, hi := flow[0].el.BBox.CenterX(), flow[0].el.BBox.CenterX()
	for _, it := range flow[1:] {
		c := it.el.BBox.CenterX()
		lo, hi = min(lo, c), max(hi, c)
	}
	if width <= 0 || (hi-lo)/width < ColumnSpan {
		return [][]item{slices.Clone(flow)}
	}

	mid := width / 2
	var left, right []item
	for _, it := range flow {
		if it.el.BBox.CenterX() < mid {
			left = append(left, it)
		} else {
			right = append(right, it)
		}
	}
	return [][]item{left, right}
}

// placeTable inserts the table before the first element it intersects and
// drops text it mostly covers. A table touching nothing goes before the
// first element starting below it.
func placeTable(seq []item, t item) []item {
	anchor := slices.IndexFunc(seq, func(it item) bool { return it.el.BBox.Intersects(t.el.BBox) })
	if anchor < 0 {
		anchor = slices.IndexFunc(seq, func(it item) bool { return it.el.BBox.Y0 > t.el.BBox.Y0 })
		if anchor < 0 {
			anchor = len(seq)
		}
	}

	out := make([]item, 0, len(seq)+1)
	for i, it := range seq {
		if i == anchor {
			out = append(out, t)
		}
		if displaced(it.el, t.el.BBox) {
			continue
		}
		out = append(out, it)
	}
	if anchor == len(seq) {
		out = append(out, t)
	}
	return out
}

func displaced(el models.Element, table models.BBox) bool {
	if el.IsTable() {
		return false
	}
	area := el.BBox.Area()
	if area == 0 {
		return false
	}
	return el.BBox.Intersection(table).Area() >= DisplaceOverlap*area
}

// ValidateTable keeps a table with at least two columns and a tenth of its
// filled cells numeric. Anything else becomes a single text block carrying
// the cell text, or nothing when the table is empty.
func ValidateTable(el models.Element) []models.Element {
	if !el.IsTable() {
		return []models.Element{el}
	}
	if tables.ColumnCount(el.Cells) >= MinTableColumns && tables.NumericShare(el.Cells) >= MinNumericShare {
		return []models.Element{el}
	}

	var parts []string
	for _, c := range el.Cells {
		if s := strings.TrimSpace(c.Text); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return []models.Element{{
		PageIndex:    el.PageIndex,
		ID:           el.ID + "-text",
		Kind:         models.KindTextBlock,
		BBox:         el.BBox,
		Text:         strings.Join(parts, " "),
		Confidence:   el.Confidence,
		Source:       el.Source,
		SemanticType: models.SemanticText,
	}}
}

// Dedupe drops the secondary elements that primary elements of the same kind
// already cover by at least DisplaceOverlap of their area. Primary boxes are
// assumed not to overlap each other.
func Dedupe(primary, secondary []models.Element) []models.Element {
	out := make([]models.Element, 0, len(secondary))
	for _, el := range secondary {
		area := el.BBox.Area()
		var covered float64
		for i := range primary {
			if primary[i].IsTable() == el.IsTable() {
				covered += el.BBox.Intersection(primary[i].BBox).Area()
			}
		}
		if area > 0 && covered >= DisplaceOverlap*area {
			continue
		}
		out = append(out, el)
	}
	return out
}
