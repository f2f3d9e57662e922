package pdf

import (
	"math"
	"testing"

	"finscan/pkg/models"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestInterpretText(t *testing.T) {
	c := Interpret([]byte(`BT /F1 12 Tf 1 0 0 1 50 700 Tm (Tase) Tj ET`))
	if len(c.Runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(c.Runs))
	}
	r := c.Runs[0]
	if r.Text != "Tase" || !near(r.X, 50) || !near(r.Baseline, 700) || !near(r.Size, 12) || !near(r.Width, 24) {
		t.Errorf("run = %+v", r)
	}
}

func TestInterpretTJKerning(t *testing.T) {
	c := Interpret([]byte(`BT /F1 10 Tf 1 0 0 1 100 500 Tm [(Er\344) -50 (n) -3000 (2024)] TJ ET`))
	if len(c.Runs) != 2 {
		t.Fatalf("runs = %d, want 2: %+v", len(c.Runs), c.Runs)
	}
	if c.Runs[0].Text != "Erän" || !near(c.Runs[0].X, 100) {
		t.Errorf("first run = %+v", c.Runs[0])
	}
	if c.Runs[1].Text != "2024" || !near(c.Runs[1].X, 150) {
		t.Errorf("second run = %+v", c.Runs[1])
	}
}

func TestInterpretPaths(t *testing.T) {
	c := Interpret([]byte(`q 1 0 0 1 10 20 cm 0 0 m 100 0 l S Q
0 0 50 50 re f
0 0 m 10 10 l n`))
	if len(c.Segments) != 5 {
		t.Fatalf("segments = %d, want 5", len(c.Segments))
	}
	line := c.Segments[0]
	if line.Rect || !near(line.X0, 10) || !near(line.Y0, 20) || !near(line.X1, 110) || !near(line.Y1, 20) {
		t.Errorf("stroked line = %+v", line)
	}
	for _, s := range c.Segments[1:] {
		if !s.Rect {
			t.Errorf("rectangle edge %+v not marked", s)
		}
	}
}

func TestInterpretImageArea(t *testing.T) {
	c := Interpret([]byte("q 200 0 0 100 0 0 cm /Im0 Do Q q 10 0 0 10 0 0 cm BI /W 1 /H 1 ID \x00\xff EI Q"))

	tests := []struct {
		name  string
		names map[string]bool
		want  float64
	}{
		{"no names", nil, 20100},
		{"matching name", map[string]bool{"Im0": true}, 20100},
		{"no match counts all", map[string]bool{"Fm1": true}, 20100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ImageArea(tt.names); !near(got, tt.want) {
				t.Errorf("ImageArea() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInterpretMalformed(t *testing.T) {
	inputs := []string{"", "BT (unterminated", "<<", "1 2 3 Td Tj TJ ]", "BI /W 1 ID"}
	for _, in := range inputs {
		_ = Interpret([]byte(in))
	}
}

func TestBuildLines(t *testing.T) {
	c := Interpret([]byte(`BT /F1 10 Tf 50 700 Td (Vastaavaa) Tj 55 0 Td (yhteens\344) Tj 0 -20 Td (1 000) Tj ET`))
	lines := BuildLines(c.Runs, 3, 800)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %+v", len(lines), lines)
	}

	first := lines[0]
	if first.Text != "Vastaavaa yhteensä" {
		t.Errorf("first line = %q", first.Text)
	}
	if first.Source != models.SourceNative || first.Confidence != 1 || first.ID != "p3-native-0" {
		t.Errorf("first line fields = %+v", first)
	}
	want := models.BBox{X0: 50, Y0: 92, X1: 145, Y1: 102}
	if !near(first.BBox.X0, want.X0) || !near(first.BBox.Y0, want.Y0) || !near(first.BBox.X1, want.X1) || !near(first.BBox.Y1, want.Y1) {
		t.Errorf("first line bbox = %+v, want %+v", first.BBox, want)
	}
	if lines[1].Text != "1 000" {
		t.Errorf("second line = %q", lines[1].Text)
	}
	if charCount(lines) != len([]rune("Vastaavaa yhteensä"))+1+5 {
		t.Errorf("charCount() = %d", charCount(lines))
	}
}

func TestLineDensity(t *testing.T) {
	segs := []Segment{
		{X0: 0, Y0: 0, X1: 100, Y1: 0},
		{X0: 0, Y0: 0, X1: 0, Y1: 500, Rect: true},
	}
	if got := lineDensity(segs, 1e6); !near(got, 0.1) {
		t.Errorf("lineDensity() = %v, want 0.1", got)
	}
	long := []Segment{{X0: 0, Y0: 0, X1: 5000, Y1: 0}}
	if got := lineDensity(long, 1e6); got != 1 {
		t.Errorf("lineDensity() = %v, want capped at 1", got)
	}
	if got := lineDensity(long, 0); got != 0 {
		t.Errorf("lineDensity(area 0) = %v, want 0", got)
	}
}

func grid() []Segment {
	var segs []Segment
	for _, y := range []float64{700, 680, 660} {
		segs = append(segs, Segment{X0: 100, Y0: y, X1: 300, Y1: y})
	}
	for _, x := range []float64{100, 200, 300} {
		segs = append(segs, Segment{X0: x, Y0: 660, X1: x, Y1: 700})
	}
	return segs
}

func TestDetectTables(t *testing.T) {
	c := &Content{
		Segments: append(grid(),
			Segment{X0: 400, Y0: 100, X1: 404, Y1: 100}, // too short
			Segment{X0: 400, Y0: 300, X1: 500, Y1: 300}, // lone rule
		),
		Runs: []TextRun{
			{Text: "Vastaavaa", X: 105, Baseline: 685, Width: 40, Size: 10},
			{Text: "1 000", X: 210, Baseline: 685, Width: 20, Size: 10},
			{Text: "Vastattavaa", X: 105, Baseline: 665, Width: 50, Size: 10},
			{Text: "998", X: 210, Baseline: 665, Width: 15, Size: 10},
			{Text: "outside", X: 500, Baseline: 500, Width: 30, Size: 10},
		},
	}

	got := DetectTables(c, 2, 600, 800)
	if len(got) != 1 {
		t.Fatalf("tables = %d, want 1", len(got))
	}
	table := got[0]
	if table.Source != models.SourceVector || table.Kind != models.KindTable || table.ID != "p2-vector-table-0" {
		t.Errorf("table fields = %+v", table)
	}
	if table.BBox != (models.BBox{X0: 100, Y0: 100, X1: 300, Y1: 140}) {
		t.Errorf("BBox = %+v", table.BBox)
	}

	want := []string{"Vastaavaa", "1 000", "Vastattavaa", "998"}
	if len(table.Cells) != len(want) {
		t.Fatalf("cells = %d, want %d", len(table.Cells), len(want))
	}
	for i, w := range want {
		if table.Cells[i].Text != w {
			t.Errorf("cell %d = %q, want %q", i, table.Cells[i].Text, w)
		}
	}
	if v := table.Cells[3].Value; v == nil || *v != 998 {
		t.Errorf("cell value = %v, want 998", v)
	}
}

func TestDetectTablesSingleBoxIsNotATable(t *testing.T) {
	c := Interpret([]byte(`50 50 200 100 re S`))
	if got := DetectTables(c, 0, 600, 800); len(got) != 0 {
		t.Errorf("tables = %d, want 0", len(got))
	}
}
