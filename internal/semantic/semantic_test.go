package semantic

import (
	"context"
	"errors"
	"slices"
	"testing"

	"finscan/internal/toc"
	"finscan/pkg/models"
)

func textEl(text string, y0 float64) models.Element {
	return models.Element{Kind: models.KindTextBlock, Text: text, BBox: models.BBox{X0: 50, Y0: y0, X1: 550, Y1: y0 + 12}}
}

func page(index int, texts ...string) models.Page {
	p := models.Page{Index: index, Width: 600, Height: 800}
	for i, t := range texts {
		p.Elements = append(p.Elements, textEl(t, 100+float64(i)*20))
	}
	return p
}

const filler = "Kunnan palvelut järjestettiin kertomusvuonna pääosin omana toimintana. " +
	"Henkilöstön määrä kasvoi hieman edellisestä vuodesta ja palvelutarjonta säilyi ennallaan. " +
	"Investoinnit painottuivat koulukiinteistöihin sekä katuverkon peruskorjauksiin."

func TestClassifyPage(t *testing.T) {
	tocPage := page(1, "Jotain")
	tocPage.IsTOC = true

	tests := []struct {
		name       string
		page       models.Page
		section    string
		confidence float64
	}{
		{"toc page", tocPage, models.SectionTOC, ConfTOCPage},
		{"hard rule balance sheet", page(8, "VASTAAVAA", "Pysyvät vastaavat", "VASTATTAVAA", filler), string(models.FinBalanceSheet), ConfHardRule},
		{"hard rule income statement", page(9, "Toimintatuotot 1 200", "Toimintakulut -900", "Vuosikate 300", filler), string(models.FinIncomeStatement), ConfHardRule},
		{"cover keyword", page(0, "Tilinpäätös 2024", filler), models.SectionCover, ConfCover},
		{"near empty title", page(1, "Esimerkin kaupunki"), models.SectionCover, ConfWeakCover},
		{"management report", page(5, "Toimintakertomus", filler), string(models.FinManagementReport), ConfStrong},
		{"notes", page(20, "Tilinpäätöksen liitetiedot", filler), string(models.FinNotes), ConfStrong},
		{"income statement keyword", page(7, "Tuloslaskelma", filler), string(models.FinIncomeStatement), ConfKeyword},
		{"fallback", page(12, "Kaavoitus ja rakentaminen", filler), string(models.FinAppendix), ConfFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPage(&tt.page)
			if got.Section != tt.section || got.Confidence != tt.confidence {
				t.Errorf("ClassifyPage() = (%s, %v), want (%s, %v) evidence %v", got.Section, got.Confidence, tt.section, tt.confidence, got.Evidence)
			}
			if len(got.Evidence) == 0 {
				t.Error("decision without evidence")
			}
		})
	}
}

func TestFallbackIsDistinguishable(t *testing.T) {
	p := page(12, "Kaavoitus ja rakentaminen", filler)
	New().Pass1([]models.Page{p})
	d := ClassifyPage(&p)
	if d.Confidence >= ConfHint || d.Evidence[0] != EvidenceFallback {
		t.Errorf("fallback decision = %+v", d)
	}
	for _, c := range []float64{ConfTOCPage, ConfWeakCover, ConfKeyword, DefaultTOCTrust} {
		if c <= ConfHint {
			t.Errorf("confidence %v not above the hint level", c)
		}
	}
}

func intp(n int) *int { return &n }

func TestPass2(t *testing.T) {
	pages := []models.Page{
		page(0, "Tilinpäätös 2024", filler),
		page(1, "Sisällysluettelo"),
		page(2, "Kaavoitus ja rakentaminen", filler),
		page(3, "Toimintakertomus", filler),
	}
	pages[1].IsTOC = true
	c := New()
	c.Pass1(pages)

	entries := []models.TOCEntry{
		{Label: "Tuloslaskelma", FinancialType: models.FinIncomeStatement, PDFTargetPage: intp(2)},
		{Label: "Tase", FinancialType: models.FinBalanceSheet, PDFTargetPage: intp(2)},
		{Label: "Kansilehti", FinancialType: models.FinAppendix, PDFTargetPage: intp(0)},
		{Label: "Sisällys", FinancialType: models.FinNotes, PDFTargetPage: intp(1)},
		{Label: "Yleistä", PDFTargetPage: intp(3)},
		{Label: "Liitteet", FinancialType: models.FinAppendix, PDFTargetPage: intp(40)},
		{Label: "Ei kohdetta", FinancialType: models.FinNotes},
	}
	if n := c.Pass2(pages, entries); n != 1 {
		t.Errorf("Pass2() overrides = %d, want 1", n)
	}

	p := pages[2]
	if p.Section != string(models.FinIncomeStatement) || p.SectionConfidence != DefaultTOCTrust {
		t.Errorf("page 2 = (%s, %v), want income statement at TOC trust", p.Section, p.SectionConfidence)
	}
	if !slices.Contains(p.SectionEvidence, EvidenceTOCOverride) {
		t.Errorf("evidence = %v, want %q", p.SectionEvidence, EvidenceTOCOverride)
	}
	if pages[0].Section != models.SectionCover || pages[1].Section != models.SectionTOC {
		t.Errorf("cover/toc overridden: %s, %s", pages[0].Section, pages[1].Section)
	}
	if pages[3].Section != string(models.FinManagementReport) {
		t.Errorf("page 3 = %s, want untouched management report", pages[3].Section)
	}
}

func TestElements(t *testing.T) {
	tocPage := page(1, "SISÄLLYSLUETTELO", "Tuloslaskelma ........ 12", "Yleiskatsaus 3")
	tocPage.IsTOC = true
	tocPage.Margins = []models.Element{textEl("Kunta", 10), textEl("2", 780)}

	statement := page(14, "Tase", "1.2 Pysyvät vastaavat", "- Aineettomat hyödykkeet", filler)
	statement.Elements = append(statement.Elements, models.Element{
		Kind: models.KindTable,
		Cells: []models.Cell{
			{Row: 0, Col: 0, Text: "Vastaavaa"}, {Row: 0, Col: 1, Text: "2024"},
			{Row: 1, Col: 0, Text: "Pysyvät vastaavat"}, {Row: 1, Col: 1, Text: "1 000"},
		},
	})

	pages := make([]models.Page, 20)
	pages[1], pages[14] = tocPage, statement
	New().Elements(pages, toc.OffsetResolution{Offset: 2, Resolved: true})

	got := pages[1]
	if got.Margins[0].SemanticType != models.SemanticPageHeader || got.Margins[1].SemanticType != models.SemanticPageFooter {
		t.Errorf("margin types = %s, %s", got.Margins[0].SemanticType, got.Margins[1].SemanticType)
	}
	if got.Elements[0].SemanticType != models.SemanticTitle {
		t.Errorf("heading type = %s, want title", got.Elements[0].SemanticType)
	}
	entry := got.Elements[1]
	if entry.SemanticType != models.SemanticListItem || entry.FinancialType != models.FinIncomeStatement {
		t.Errorf("entry = (%s, %s)", entry.SemanticType, entry.FinancialType)
	}
	if entry.TOCTargetPage == nil || *entry.TOCTargetPage != 12 || entry.PDFTargetPage == nil || *entry.PDFTargetPage != 14 {
		t.Errorf("entry targets = %v, %v, want 12 and 14", entry.TOCTargetPage, entry.PDFTargetPage)
	}
	if other := got.Elements[2]; other.SemanticType != models.SemanticListItem || *other.PDFTargetPage != 5 || other.FinancialType != "" {
		t.Errorf("untyped entry = (%s, %v, %q)", other.SemanticType, *other.PDFTargetPage, other.FinancialType)
	}

	st := pages[14].Elements
	wantTypes := []string{models.SemanticTitle, models.SemanticSectionHeader, models.SemanticListItem, models.SemanticText, models.SemanticTable}
	for i, want := range wantTypes {
		if st[i].SemanticType != want {
			t.Errorf("element %d type = %s, want %s", i, st[i].SemanticType, want)
		}
	}
	if st[0].FinancialType != models.FinBalanceSheet {
		t.Errorf("title financial type = %s", st[0].FinancialType)
	}
	if st[4].FinancialType != models.FinBalanceSheet || st[4].Evidence[0] != "structure:balance_sheet_columns" {
		t.Errorf("table = (%s, %v)", st[4].FinancialType, st[4].Evidence)
	}
}

type fakeHints struct {
	hint  *Hint
	err   error
	calls int
}

func (f *fakeHints) Suggest(context.Context, string) (*Hint, error) {
	f.calls++
	return f.hint, f.err
}

func TestApplyHints(t *testing.T) {
	pages := []models.Page{
		page(4, "Kaavoitus ja rakentaminen", filler),
		page(5, "Toimintakertomus", filler),
	}
	c := New(WithHints(&fakeHints{hint: &Hint{Section: models.FinNotes, Model: "test-model"}}))
	c.Pass1(pages)

	if n := c.ApplyHints(context.Background(), pages); n != 1 {
		t.Fatalf("ApplyHints() = %d, want 1", n)
	}
	if pages[0].Section != string(models.FinNotes) || pages[0].SectionConfidence != ConfHint {
		t.Errorf("hinted page = (%s, %v)", pages[0].Section, pages[0].SectionConfidence)
	}
	if !slices.Contains(pages[0].SectionEvidence, "hint:test-model") {
		t.Errorf("evidence = %v", pages[0].SectionEvidence)
	}
	if pages[1].Section != string(models.FinManagementReport) {
		t.Errorf("keyword page relabelled to %s", pages[1].Section)
	}

	failing := &fakeHints{err: errors.New("unavailable")}
	other := []models.Page{page(4, "Kaavoitus ja rakentaminen", filler)}
	c = New(WithHints(failing))
	c.Pass1(other)
	if n := c.ApplyHints(context.Background(), other); n != 0 || !IsFallback(&other[0]) {
		t.Errorf("failed hint changed page: n=%d section=%s", n, other[0].Section)
	}
	if n := New().ApplyHints(context.Background(), other); n != 0 {
		t.Errorf("ApplyHints() without provider = %d", n)
	}
}

func TestParseHint(t *testing.T) {
	h, err := parseHint("```json\n{\"section\": \"related_party\", \"confidence\": 0.6, \"reason\": \"x\"}\n```")
	if err != nil || h.Section != models.FinRelatedParty {
		t.Errorf("parseHint() = %+v, %v", h, err)
	}
	if _, err := parseHint(`{"section": "cover"}`); err == nil {
		t.Error("parseHint() accepted a label outside the taxonomy")
	}
	if _, err := parseHint("not json"); err == nil {
		t.Error("parseHint() accepted invalid JSON")
	}
}
