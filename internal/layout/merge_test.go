package layout

import (
	"slices"
	"testing"

	"finscan/pkg/models"
)

var a4 = Geometry{Width: 600, Height: 800}

func text(id string, x0, y0, x1, y1 float64) models.Element {
	return models.Element{ID: id, Kind: models.KindTextBlock, Text: id, BBox: models.BBox{X0: x0, Y0: y0, X1: x1, Y1: y1}}
}

func table(id string, x0, y0, x1, y1 float64, cells ...models.Cell) models.Element {
	return models.Element{ID: id, Kind: models.KindTable, Cells: cells, BBox: models.BBox{X0: x0, Y0: y0, X1: x1, Y1: y1}}
}

func ids(els []models.Element) []string {
	out := make([]string, len(els))
	for i, e := range els {
		out[i] = e.ID
	}
	return out
}

func TestMerge(t *testing.T) {
	elements := []models.Element{
		text("header", 50, 20, 550, 40),
		text("second", 50, 200, 550, 220),
		text("first", 50, 100, 550, 120),
		text("footer", 280, 760, 320, 780),
		table("table", 50, 300, 550, 500),
		text("inside", 60, 310, 200, 330),
		text("below", 50, 600, 550, 620),
	}

	tests := []struct {
		name        string
		isTOC       bool
		wantOrdered []string
		wantMargins []string
	}{
		{
			name:        "margins excluded and table anchored",
			wantOrdered: []string{"first", "second", "table", "below"},
			wantMargins: []string{"header", "footer"},
		},
		{
			name:        "toc page keeps margins in flow",
			isTOC:       true,
			wantOrdered: []string{"header", "first", "second", "table", "below", "footer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ordered, margins := Merge(a4, elements, tt.isTOC)
			if got := ids(ordered); !slices.Equal(got, tt.wantOrdered) {
				t.Errorf("ordered = %v, want %v", got, tt.wantOrdered)
			}
			if got := ids(margins); !slices.Equal(got, tt.wantMargins) {
				t.Errorf("margins = %v, want %v", got, tt.wantMargins)
			}
		})
	}
}

func TestMergeTwoColumns(t *testing.T) {
	elements := []models.Element{
		text("L1", 50, 200, 150, 220),
		text("R1", 450, 100, 550, 120),
		text("L2", 50, 300, 150, 320),
		text("R2", 450, 250, 550, 270),
	}
	ordered, _ := Merge(a4, elements, false)
	want := []string{"L1", "L2", "R1", "R2"}
	if got := ids(ordered); !slices.Equal(got, want) {
		t.Errorf("ordered = %v, want %v", got, want)
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	elements := []models.Element{
		text("a", 50, 200, 300, 220),
		text("b", 310, 200, 550, 220),
		text("c", 50, 200, 300, 220),
		table("t", 50, 400, 550, 450),
		text("d", 50, 100, 550, 120),
	}
	first, _ := Merge(a4, elements, false)
	for i := 0; i < 10; i++ {
		again, _ := Merge(a4, elements, false)
		if !slices.Equal(ids(first), ids(again)) {
			t.Fatalf("run %d = %v, want %v", i, ids(again), ids(first))
		}
	}
	want := []string{"d", "a", "b", "c", "t"}
	if got := ids(first); !slices.Equal(got, want) {
		t.Errorf("ordered = %v, want %v", got, want)
	}
}

func TestMergeTableWithoutIntersection(t *testing.T) {
	elements := []models.Element{
		text("top", 50, 100, 550, 120),
		text("bottom", 50, 600, 550, 620),
		table("t", 50, 400, 550, 450),
	}
	ordered, _ := Merge(a4, elements, false)
	want := []string{"top", "t", "bottom"}
	if got := ids(ordered); !slices.Equal(got, want) {
		t.Errorf("ordered = %v, want %v", got, want)
	}
}

func TestMergeDisplacement(t *testing.T) {
	elements := []models.Element{
		text("straddle", 50, 280, 550, 320), // half inside
		text("edge", 50, 270, 550, 310),     // a quarter inside
		table("t", 50, 300, 550, 500),
	}
	ordered, _ := Merge(a4, elements, false)
	want := []string{"t", "edge"}
	if got := ids(ordered); !slices.Equal(got, want) {
		t.Errorf("ordered = %v, want %v", got, want)
	}
}

func TestValidateTable(t *testing.T) {
	numeric := table("num", 0, 0, 10, 10,
		models.Cell{Row: 0, Col: 0, Text: "Liikevaihto"},
		models.Cell{Row: 0, Col: 1, Text: "1 200"},
	)
	oneColumn := table("one", 0, 0, 10, 10,
		models.Cell{Row: 0, Col: 0, Text: "Hallitus"},
		models.Cell{Row: 1, Col: 0, Text: "Toimitusjohtaja"},
	)
	wordy := table("words", 0, 0, 10, 10,
		models.Cell{Row: 0, Col: 0, Text: "Nimi"},
		models.Cell{Row: 0, Col: 1, Text: "Tehtävä"},
	)
	empty := table("empty", 0, 0, 10, 10, models.Cell{Row: 0, Col: 0}, models.Cell{Row: 0, Col: 1})

	tests := []struct {
		name     string
		in       models.Element
		wantKind models.ElementKind
		wantText string
		wantLen  int
	}{
		{"numeric table kept", numeric, models.KindTable, "", 1},
		{"single column becomes text", oneColumn, models.KindTextBlock, "Hallitus Toimitusjohtaja", 1},
		{"no numbers becomes text", wordy, models.KindTextBlock, "Nimi Tehtävä", 1},
		{"empty table dropped", empty, "", "", 0},
		{"text passes through", text("x", 0, 0, 1, 1), models.KindTextBlock, "x", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateTable(tt.in)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen == 0 {
				return
			}
			if got[0].Kind != tt.wantKind || got[0].Text != tt.wantText {
				t.Errorf("got (%s, %q), want (%s, %q)", got[0].Kind, got[0].Text, tt.wantKind, tt.wantText)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	native := []models.Element{
		text("n0", 50, 100, 300, 112),
		text("n1", 50, 114, 300, 126),
	}
	ocr := []models.Element{
		text("o-same-block", 50, 100, 300, 126), // both native lines
		text("o-margin-note", 400, 100, 550, 112),
		text("o-partial", 250, 100, 400, 112), // a third inside n0
		table("o-table", 50, 100, 300, 126),
	}
	got := ids(Dedupe(native, ocr))
	want := []string{"o-margin-note", "o-partial", "o-table"}
	if !slices.Equal(got, want) {
		t.Errorf("Dedupe() = %v, want %v", got, want)
	}
	if got := Dedupe(nil, ocr); len(got) != len(ocr) {
		t.Errorf("Dedupe(nil) kept %d of %d", len(got), len(ocr))
	}
}
