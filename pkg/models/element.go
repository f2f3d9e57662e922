package models

import (
	"cmp"
	"slices"
	"strconv"
)

// ElementKind is the structural kind of an extracted element
type ElementKind string

const (
	KindTextBlock ElementKind = "text_block"
	KindTable     ElementKind = "table"
	KindFigure    ElementKind = "figure"
)

// Source identifies which extraction path produced an element. It is the
// discriminant of the element variant: merging treats all sources alike,
// checkers may branch on it when trust matters.
type Source string

const (
	SourceNative Source = "native"
	SourceOCR    Source = "ocr"
	SourceVector Source = "vector"
)

// Semantic element types assigned by the classifier
const (
	SemanticTitle         = "title"
	SemanticSectionHeader = "section_header"
	SemanticText          = "text"
	SemanticListItem      = "list_item"
	SemanticTable         = "table"
	SemanticPageHeader    = "page_header"
	SemanticPageFooter    = "page_footer"
)

// BBox is an axis-aligned box in page coordinates, origin top-left, y growing downwards.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of the box
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent of the box
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// Area returns the box area, zero for degenerate boxes
func (b BBox) Area() float64 {
	if b.X1 <= b.X0 || b.Y1 <= b.Y0 {
		return 0
	}
	return (b.X1 - b.X0) * (b.Y1 - b.Y0)
}

// CenterX returns the horizontal centre
func (b BBox) CenterX() float64 { return (b.X0 + b.X1) / 2 }

// Intersects reports whether the two boxes share a region of positive area
func (b BBox) Intersects(o BBox) bool {
	return b.X0 < o.X1 && o.X0 < b.X1 && b.Y0 < o.Y1 && o.Y0 < b.Y1
}

// Intersection returns the overlapping box, empty when disjoint
func (b BBox) Intersection(o BBox) BBox {
	r := BBox{
		X0: max(b.X0, o.X0),
		Y0: max(b.Y0, o.Y0),
		X1: min(b.X1, o.X1),
		Y1: min(b.Y1, o.Y1),
	}
	if r.X1 <= r.X0 || r.Y1 <= r.Y0 {
		return BBox{}
	}
	return r
}

// Union returns the smallest box containing both
func (b BBox) Union(o BBox) BBox {
	if b.Area() == 0 {
		return o
	}
	if o.Area() == 0 {
		return b
	}
	return BBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// Cell is one grid cell of a table element
type Cell struct {
	Row   int      `json:"row"`
	Col   int      `json:"col"`
	Text  string   `json:"text"`
	Value *float64 `json:"value,omitempty"` // parsed numeric value, nil when the cell is not numeric
}

// Element is a single extracted unit on a page. Text blocks and figures use
// Text; tables use Cells.
type Element struct {
	PageIndex  int         `json:"page_index"`
	ID         string      `json:"element_id"`
	Kind       ElementKind `json:"kind"`
	BBox       BBox        `json:"bbox"`
	Text       string      `json:"text,omitempty"`
	Cells      []Cell      `json:"cells,omitempty"`
	Confidence float64     `json:"confidence"`
	Source     Source      `json:"source"`

	// Filled by classification
	SemanticType  string        `json:"semantic_type,omitempty"`
	FinancialType FinancialType `json:"financial_type,omitempty"`
	Evidence      []string      `json:"evidence,omitempty"`

	// TOC list items only
	TOCTargetPage *int `json:"toc_target_page,omitempty"`
	PDFTargetPage *int `json:"pdf_target_page,omitempty"`
}

// IsTable reports whether the element carries a cell grid
func (e *Element) IsTable() bool { return e.Kind == KindTable }

// Rows groups table cells by row index, each row ordered by column.
// Row keys are returned in ascending order alongside the map.
func (e *Element) Rows() ([]int, map[int][]Cell) {
	rows := make(map[int][]Cell)
	for _, c := range e.Cells {
		rows[c.Row] = append(rows[c.Row], c)
	}
	keys := make([]int, 0, len(rows))
	for k, cells := range rows {
		keys = append(keys, k)
		slices.SortStableFunc(cells, func(a, b Cell) int { return cmp.Compare(a.Col, b.Col) })
	}
	slices.Sort(keys)
	return keys, rows
}

// PlainText flattens the element to text; table cells are joined row by row.
func (e *Element) PlainText() string {
	if !e.IsTable() {
		return e.Text
	}
	keys, rows := e.Rows()
	var out []byte
	for i, k := range keys {
		if i > 0 {
			out = append(out, '\n')
		}
		for j, c := range rows[k] {
			if j > 0 {
				out = append(out, ' ')
			}
			out = append(out, c.Text...)
		}
	}
	return string(out)
}

// ElementID builds the stable identifier of the n-th element a source produced on a page
func ElementID(page int, src Source, n int) string {
	return "p" + strconv.Itoa(page) + "-" + string(src) + "-" + strconv.Itoa(n)
}
