package pdf

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"finscan/internal/tables"
	"finscan/pkg/models"
)

const (
	minRuleLength = 10.0 // shorter strokes are underlines or glyph art
	axisTolerance = 0.5
	snapTolerance = 1.5
)

type hRule struct{ y, x0, x1 float64 }
type vRule struct{ x, y0, y1 float64 }

// DetectTables finds ruled grids among the stroked segments of a page and
// fills their cells with the text runs whose centre falls inside. Each
// connected set of rules with at least two horizontal and two vertical lines
// is one table. Boxes are returned in top-left page coordinates.
func DetectTables(c *Content, pageIndex int, width, height float64) []models.Element {
	if c == nil || len(c.Segments) == 0 {
		return nil
	}
	hs, vs := rules(c.Segments)
	if len(hs) < 2 || len(vs) < 2 {
		return nil
	}

	uf := newUnionFind(len(hs) + len(vs))
	for i, h := range hs {
		for j, v := range vs {
			if crosses(h, v) {
				uf.union(i, len(hs)+j)
			}
		}
	}
	groups := map[int][]int{}
	var roots []int
	for i := 0; i < len(hs)+len(vs); i++ {
		r := uf.find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	var out []models.Element
	for _, r := range roots {
		var ys, xs []float64
		for _, i := range groups[r] {
			if i < len(hs) {
				ys = append(ys, hs[i].y)
			} else {
				xs = append(xs, vs[i-len(hs)].x)
			}
		}
		ys, xs = snap(ys), snap(xs)
		if len(ys) < 2 || len(xs) < 2 || (len(ys)-1)*(len(xs)-1) < 2 {
			continue
		}
		slices.Reverse(ys) // top row first in user space

		cells := gridCells(c.Runs, xs, ys)
		tables.FillValues(cells)
		out = append(out, models.Element{
			PageIndex: pageIndex,
			ID:        fmt.Sprintf("p%d-vector-table-%d", pageIndex, len(out)),
			Kind:      models.KindTable,
			BBox: models.BBox{
				X0: xs[0],
				Y0: height - ys[0],
				X1: math.Min(xs[len(xs)-1], width),
				Y1: height - ys[len(ys)-1],
			},
			Cells:      cells,
			Confidence: 1.0,
			Source:     models.SourceVector,
		})
	}
	return out
}

func rules(segments []Segment) ([]hRule, []vRule) {
	var hs []hRule
	var vs []vRule
	for _, s := range segments {
		switch {
		case math.Abs(s.Y1-s.Y0) <= axisTolerance && math.Abs(s.X1-s.X0) >= minRuleLength:
			hs = append(hs, hRule{y: (s.Y0 + s.Y1) / 2, x0: math.Min(s.X0, s.X1), x1: math.Max(s.X0, s.X1)})
		case math.Abs(s.X1-s.X0) <= axisTolerance && math.Abs(s.Y1-s.Y0) >= minRuleLength:
			vs = append(vs, vRule{x: (s.X0 + s.X1) / 2, y0: math.Min(s.Y0, s.Y1), y1: math.Max(s.Y0, s.Y1)})
		}
	}
	return hs, vs
}

func crosses(h hRule, v vRule) bool {
	return v.x >= h.x0-snapTolerance && v.x <= h.x1+snapTolerance &&
		h.y >= v.y0-snapTolerance && h.y <= v.y1+snapTolerance
}

// snap sorts coordinates and merges those closer than snapTolerance
func snap(vals []float64) []float64 {
	slices.Sort(vals)
	var out []float64
	for _, v := range vals {
		if len(out) > 0 && v-out[len(out)-1] <= snapTolerance {
			continue
		}
		out = append(out, v)
	}
	return out
}

// gridCells returns one cell per grid position, row-major. xs ascend, ys
// descend (PDF user space).
func gridCells(runs []TextRun, xs, ys []float64) []models.Cell {
	type placed struct {
		run      TextRun
		row, col int
	}
	var hits []placed
	for _, r := range runs {
		cx := r.X + r.Width/2
		cy := r.Baseline + 0.3*r.Size
		col, row := -1, -1
		for i := 0; i+1 < len(xs); i++ {
			if cx >= xs[i] && cx < xs[i+1] {
				col = i
				break
			}
		}
		for i := 0; i+1 < len(ys); i++ {
			if cy <= ys[i] && cy > ys[i+1] {
				row = i
				break
			}
		}
		if col >= 0 && row >= 0 && strings.TrimSpace(r.Text) != "" {
			hits = append(hits, placed{run: r, row: row, col: col})
		}
	}
	slices.SortStableFunc(hits, func(a, b placed) int {
		if a.row != b.row || a.col != b.col {
			return cmp.Or(cmp.Compare(a.row, b.row), cmp.Compare(a.col, b.col))
		}
		if math.Abs(a.run.Baseline-b.run.Baseline) > 0.35*math.Max(a.run.Size, b.run.Size) {
			return cmp.Compare(b.run.Baseline, a.run.Baseline)
		}
		return cmp.Compare(a.run.X, b.run.X)
	})

	rows, cols := len(ys)-1, len(xs)-1
	text := make([][]string, rows*cols)
	for _, h := range hits {
		k := h.row*cols + h.col
		text[k] = append(text[k], strings.TrimSpace(h.run.Text))
	}
	cells := make([]models.Cell, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cells = append(cells, models.Cell{Row: r, Col: c, Text: strings.Join(text[r*cols+c], " ")})
		}
	}
	return cells
}

type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
