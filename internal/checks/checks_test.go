package checks

import (
	"context"
	"strings"
	"testing"

	"finscan/pkg/models"
)

// table builds a table element from rows of cell text
func table(id string, rows ...[]string) models.Element {
	el := models.Element{ID: id, Kind: models.KindTable}
	for r, cells := range rows {
		for c, text := range cells {
			el.Cells = append(el.Cells, models.Cell{Row: r, Col: c, Text: text})
		}
	}
	return el
}

func text(id, s string) models.Element {
	return models.Element{ID: id, Kind: models.KindTextBlock, Text: s}
}

func docWith(pages ...models.Page) *models.Document {
	for i := range pages {
		pages[i].Index = i
		if pages[i].Width == 0 {
			pages[i].Width, pages[i].Height = 595, 842
		}
	}
	return &models.Document{ID: "doc", Pages: pages}
}

func TestBalance(t *testing.T) {
	tests := []struct {
		name     string
		section  string
		table    models.Element
		severity []models.Severity
		message  string
	}{
		{
			name:    "small mismatch",
			section: string(models.FinBalanceSheet),
			table: table("t0",
				[]string{"Vastaavaa", "2024"},
				[]string{"Vastaavaa yhteensä", "1 000"},
				[]string{"Vastattavaa yhteensä", "998"},
			),
			severity: []models.Severity{models.SeverityWarning},
			message:  "delta 2",
		},
		{
			name:    "large mismatch",
			section: string(models.FinBalanceSheet),
			table: table("t0",
				[]string{"Total assets", "1 000"},
				[]string{"Total liabilities and equity", "900"},
			),
			severity: []models.Severity{models.SeverityError},
			message:  "delta 100",
		},
		{
			name:    "within tolerance",
			section: string(models.FinBalanceSheet),
			table: table("t0",
				[]string{"Vastaavaa yhteensä", "1 000"},
				[]string{"Vastattavaa yhteensä", "999"},
			),
		},
		{
			name:    "prior year column",
			section: string(models.FinBalanceSheet),
			table: table("t0",
				[]string{"", "2024", "2023"},
				[]string{"Vastaavaa yhteensä", "1 000", "950"},
				[]string{"Vastattavaa yhteensä", "1 000", "945"},
			),
			severity: []models.Severity{models.SeverityWarning},
			message:  "assets 950, liabilities and equity 945, delta 5",
		},
		{
			name:    "liabilities subtotal before combined total",
			section: string(models.FinBalanceSheet),
			table: table("t0",
				[]string{"Total assets", "1 000"},
				[]string{"Total equity", "400"},
				[]string{"Total liabilities", "600"},
				[]string{"Total equity and liabilities", "1 000"},
			),
		},
		{
			name:    "liabilities total without combined row",
			section: string(models.FinBalanceSheet),
			table: table("t0",
				[]string{"Total assets", "1 000"},
				[]string{"Total liabilities", "995"},
			),
			severity: []models.Severity{models.SeverityWarning},
			message:  "delta 5",
		},
		{
			name:    "not a balance sheet",
			section: string(models.FinNotes),
			table: table("t0",
				[]string{"Vastaavaa yhteensä", "1 000"},
				[]string{"Vastattavaa yhteensä", "998"},
			),
		},
		{
			name:    "one side only",
			section: string(models.FinBalanceSheet),
			table:   table("t0", []string{"Vastaavaa yhteensä", "1 000"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docWith(models.Page{Section: tt.section, Elements: []models.Element{tt.table}})
			got := NewBalance(DefaultConfig()).Check(doc)
			if len(got) != len(tt.severity) {
				t.Fatalf("findings = %v, want %d", got, len(tt.severity))
			}
			for i, f := range got {
				if f.Severity != tt.severity[i] {
					t.Errorf("severity = %s, want %s", f.Severity, tt.severity[i])
				}
				if !strings.Contains(f.Message, tt.message) {
					t.Errorf("message = %q, want it to contain %q", f.Message, tt.message)
				}
				if f.PageIndex == nil || *f.PageIndex != 0 || f.ElementID != "t0" {
					t.Errorf("finding not attached to page 0 table t0: %+v", f)
				}
			}
		})
	}
}

func TestBalanceTypedTable(t *testing.T) {
	el := table("t0",
		[]string{"Vastaavaa yhteensä", "1 000"},
		[]string{"Vastattavaa yhteensä", "998"},
	)
	el.FinancialType = models.FinBalanceSheet
	doc := docWith(models.Page{Section: string(models.FinAppendix), Elements: []models.Element{el}})
	if got := NewBalance(DefaultConfig()).Check(doc); len(got) != 1 {
		t.Errorf("findings = %v, want one for a balance sheet table", got)
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name    string
		table   models.Element
		want    int
		message string
	}{
		{
			name: "consistent",
			table: table("t0",
				[]string{"Toimintatuotot", "1 200,50"},
				[]string{"Muut tuotot", "300,25"},
				[]string{"Yhteensä", "1 500,75"},
			),
		},
		{
			name: "mismatch",
			table: table("t0",
				[]string{"Toimintatuotot", "1 200,50"},
				[]string{"Muut tuotot", "300,25"},
				[]string{"Yhteensä", "1 600,75"},
			),
			want:    1,
			message: "delta 100",
		},
		{
			name: "rounding",
			table: table("t0",
				[]string{"Erä A", "10"},
				[]string{"Erä B", "21"},
				[]string{"Total", "30"},
			),
		},
		{
			name: "group headings carry subtotals",
			table: table("t0",
				[]string{"PYSYVÄT VASTAAVAT", "30"},
				[]string{"Aineettomat hyödykkeet", "10"},
				[]string{"Aineelliset hyödykkeet", "20"},
				[]string{"VAIHTUVAT VASTAAVAT", "5"},
				[]string{"Saamiset", "5"},
				[]string{"Vastaavaa yhteensä", "35"},
			),
		},
		{
			name: "total column",
			table: table("t0",
				[]string{"Erä", "Kunta", "Liikelaitos", "Yhteensä"},
				[]string{"Verotulot", "100", "50", "150"},
				[]string{"Valtionosuudet", "40", "10", "60"},
			),
			want:    1,
			message: `row "valtionosuudet": total 60, sum 50, delta 10`,
		},
		{
			name: "labels containing sum are details",
			table: table("t0",
				[]string{"Office supplies", "40"},
				[]string{"Consumables", "60"},
				[]string{"Summary adjustments", "5"},
				[]string{"Total", "105"},
			),
		},
		{
			name: "subtotal row",
			table: table("t0",
				[]string{"Erä A", "10"},
				[]string{"Erä B", "20"},
				[]string{"Subtotal", "35"},
			),
			want:    1,
			message: "delta 5",
		},
		{
			name:  "total without details",
			table: table("t0", []string{"Yhteensä", "10", "20"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSum(DefaultConfig()).Check(docWith(models.Page{Elements: []models.Element{tt.table}}))
			if len(got) != tt.want {
				t.Fatalf("findings = %v, want %d", got, tt.want)
			}
			for _, f := range got {
				if f.Severity != models.SeverityWarning || !strings.Contains(f.Message, tt.message) {
					t.Errorf("finding = %+v, want warning containing %q", f, tt.message)
				}
			}
		})
	}
}

func TestOCRGate(t *testing.T) {
	pages := make([]models.Page, 11)
	for i := range 10 {
		pages[i].Quality = &models.QualityMetrics{Status: models.QualityGood, Score: 0.9, RepeatRunMax: 2}
	}
	pages[3].Quality = &models.QualityMetrics{Status: models.QualityBad, Score: 0.2, RepeatRunMax: 19}
	pages[7].Quality = &models.QualityMetrics{Status: models.QualityBad, Score: 0.1, RepeatRunMax: 2}
	doc := docWith(pages...)

	strict := NewOCRGate(DefaultConfig()).Check(doc)
	if len(strict) != 3 {
		t.Fatalf("strict findings = %v, want 3", strict)
	}
	if strict[0].Severity != models.SeverityError || strict[0].PageIndex != nil {
		t.Errorf("gate finding = %+v, want document-level error", strict[0])
	}
	if !strings.Contains(strict[1].Message, "p7:0.10, p3:0.20") || *strict[1].PageIndex != 7 {
		t.Errorf("worst pages finding = %+v", strict[1])
	}
	if !strings.Contains(strict[2].Message, "p3:19") {
		t.Errorf("noise finding = %+v", strict[2])
	}

	cfg := DefaultConfig()
	cfg.GateMode = ModeLenient
	lenient := NewOCRGate(cfg).Check(doc)
	if len(lenient) != 2 || lenient[0].Severity != models.SeverityWarning {
		t.Errorf("lenient findings = %v, want only the two page warnings", lenient)
	}

	cfg.LenientBadFraction = 0.15
	if got := NewOCRGate(cfg).Check(doc); got[0].Severity != models.SeverityWarning || got[0].PageIndex != nil {
		t.Errorf("lenient gate finding = %+v, want document-level warning", got[0])
	}

	if got := NewOCRGate(DefaultConfig()).Check(docWith(models.Page{})); got != nil {
		t.Errorf("native document findings = %v, want none", got)
	}
}

func TestCrossReference(t *testing.T) {
	statement := models.Page{
		Section:  string(models.FinIncomeStatement),
		Elements: []models.Element{text("e0", "Verotulot (ks. liite 5) ja see note 12. Liite 5 uudelleen.")},
	}
	contents := models.Page{
		IsTOC:    true,
		Section:  models.SectionTOC,
		Elements: []models.Element{text("e1", "Liite 40 ........ 50")},
	}
	notes := models.Page{
		Section: string(models.FinNotes),
		Elements: []models.Element{
			text("n0", "5. Verotulot"),
			text("n1", "Liite 7 Henkilöstö"),
		},
	}

	got := CrossReference{}.Check(docWith(statement, contents, notes))
	if len(got) != 2 {
		t.Fatalf("findings = %v, want 2", got)
	}
	if got[0].Severity != models.SeverityWarning || got[0].ElementID != "e0" || !strings.Contains(got[0].Message, "note 12") {
		t.Errorf("unresolved finding = %+v", got[0])
	}
	if got[1].Severity != models.SeverityInfo || got[1].Message != "1/2 referenced notes resolved, missing: 12" {
		t.Errorf("summary = %+v", got[1])
	}

	none := CrossReference{}.Check(docWith(statement))
	if len(none) != 1 || none[0].Severity != models.SeverityInfo {
		t.Errorf("without notes = %v, want one info finding", none)
	}
}

func TestDiff(t *testing.T) {
	build := func(section, total string) *models.Document {
		return docWith(
			models.Page{Section: models.SectionCover},
			models.Page{Section: section, Elements: []models.Element{
				table("t0", []string{"Vastaavaa yhteensä", total}),
			}},
		)
	}
	golden := build(string(models.FinBalanceSheet), "1 000")

	same := NewDiff(golden).Check(build(string(models.FinBalanceSheet), "1 000"))
	if len(same) != 1 || same[0].Severity != models.SeverityInfo {
		t.Errorf("identical findings = %v, want one info", same)
	}

	changed := NewDiff(golden).Check(build(string(models.FinNotes), "998"))
	if len(changed) != 1 || changed[0].Severity != models.SeverityWarning || *changed[0].PageIndex != 1 {
		t.Fatalf("changed findings = %v, want one warning on page 1", changed)
	}
	for _, part := range []string{"section balance_sheet -> notes", `"vastaavaa yhteensä" 1000 -> 998`} {
		if !strings.Contains(changed[0].Message, part) {
			t.Errorf("message %q lacks %q", changed[0].Message, part)
		}
	}

	shorter := docWith(models.Page{Section: models.SectionCover})
	missing := NewDiff(golden).Check(shorter)
	if len(missing) != 1 || missing[0].Severity != models.SeverityError {
		t.Errorf("missing page findings = %v, want one error", missing)
	}
	extra := NewDiff(shorter).Check(golden)
	if len(extra) != 1 || extra[0].Severity != models.SeverityError {
		t.Errorf("extra page findings = %v, want one error", extra)
	}

	if got := NewDiff(nil).Check(golden); len(got) != 1 || got[0].Severity != models.SeverityInfo {
		t.Errorf("without golden = %v, want one info", got)
	}
}

func TestSections(t *testing.T) {
	fallback := models.Page{Section: string(models.FinAppendix), SectionConfidence: 0.3}
	pages := []models.Page{
		{Section: models.SectionCover},
		{Section: models.SectionTOC},
		{Section: string(models.FinIncomeStatement), SectionConfidence: 0.7},
		fallback, fallback, fallback, fallback,
		{},
	}
	got := NewSections(DefaultConfig()).Check(docWith(pages...))
	if len(got) != 3 {
		t.Fatalf("findings = %v, want 3", got)
	}
	if got[0].Message != "required sections missing: balance_sheet" {
		t.Errorf("missing = %q", got[0].Message)
	}
	if got[1].Severity != models.SeverityInfo || !strings.Contains(got[1].Message, "4 of 8 pages labelled by fallback: 3, 4, 5, 6") {
		t.Errorf("fallback = %+v", got[1])
	}
	if *got[2].PageIndex != 7 {
		t.Errorf("unlabelled = %+v", got[2])
	}

	short := NewSections(DefaultConfig()).Check(docWith(pages[0], pages[1]))
	if len(short) != 0 {
		t.Errorf("short document findings = %v, want none", short)
	}

	if !AllFallback(docWith(fallback, fallback)) || AllFallback(docWith(pages[:3]...)) {
		t.Error("AllFallback() wrong")
	}
}

func TestSchema(t *testing.T) {
	if got := (Schema{}).Check(&models.Document{}); len(got) != 1 || got[0].Severity != models.SeverityError {
		t.Errorf("empty document = %v, want one error", got)
	}

	doc := docWith(
		models.Page{Elements: []models.Element{text("p0-native-0", "a"), text("p0-native-0", "b")}},
		models.Page{},
	)
	doc.Pages[1].Height = 0
	got := (Schema{}).Check(doc)
	if len(got) != 2 {
		t.Fatalf("findings = %v, want 2", got)
	}
	if got[0].Severity != models.SeverityWarning || got[1].Severity != models.SeverityError {
		t.Errorf("severities = %s, %s", got[0].Severity, got[1].Severity)
	}
}

type fixedChecker struct {
	name  string
	panic bool
}

func (f fixedChecker) Name() string { return f.name }

func (f fixedChecker) Check(*models.Document) []models.Finding {
	if f.panic {
		panic("index out of range")
	}
	return []models.Finding{models.NewFinding(f.name, models.SeverityInfo, "ran")}
}

func TestRunner(t *testing.T) {
	r := NewRunner(fixedChecker{name: "a"}, fixedChecker{name: "b", panic: true}, fixedChecker{name: "c"})
	got, err := r.Run(context.Background(), docWith(models.Page{}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("findings = %v, want 3", got)
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].Checker != want {
			t.Errorf("finding %d from %s, want %s", i, got[i].Checker, want)
		}
	}
	if got[1].Severity != models.SeverityError {
		t.Errorf("panicking checker severity = %s, want error", got[1].Severity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Run(ctx, docWith(models.Page{})); err == nil {
		t.Error("Run() on a cancelled context returned no error")
	}
}

func TestCheckersNeverPanic(t *testing.T) {
	odd := []*models.Document{
		{},
		docWith(models.Page{}),
		docWith(models.Page{
			Section: string(models.FinBalanceSheet),
			Elements: []models.Element{
				{Kind: models.KindTable},
				table("", []string{}, []string{"Yhteensä"}, []string{"yhteensä", "x", "(", "-"}),
				table("t", []string{"Vastaavaa yhteensä", "1e309"}, []string{"Vastattavaa yhteensä", "NaN"}),
				{Kind: models.KindTable, Cells: []models.Cell{{Row: -1, Col: -5, Text: "Total"}, {Row: 3, Col: 0, Text: "12"}}},
				text("x", "liite 999999 note"),
			},
			Quality: &models.QualityMetrics{Status: models.QualityBad},
		}),
		docWith(models.Page{Section: string(models.FinNotes), Elements: []models.Element{text("n", "\n\n1.\t")}}),
	}
	for _, doc := range odd {
		for _, c := range Default(Config{}, doc) {
			func() {
				defer func() {
					if p := recover(); p != nil {
						t.Errorf("%s panicked: %v", c.Name(), p)
					}
				}()
				c.Check(doc)
			}()
		}
	}
}
