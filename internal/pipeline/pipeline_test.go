package pipeline

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"finscan/internal/ocr"
	"finscan/internal/pagemode"
	"finscan/internal/pdf"
	"finscan/pkg/models"
)

// fakeInput serves prepared pages
type fakeInput struct {
	pages      []*pdf.Page
	analyseErr map[int]error
	raster     image.Image
}

func (f *fakeInput) PageCount() int { return len(f.pages) }

func (f *fakeInput) Analyze(i int) (*pdf.Page, error) {
	if i < 0 || i >= len(f.pages) {
		return nil, pdf.ErrPageOutOfRange
	}
	return f.pages[i], f.analyseErr[i]
}

func (f *fakeInput) Raster(i int) (image.Image, error) {
	if f.raster == nil {
		return nil, pdf.ErrNoRaster
	}
	return f.raster, nil
}

// nativePage lays out one line per string, with an optional footer
func nativePage(index int, footer string, lines ...string) *pdf.Page {
	const w, h = 595.0, 842.0
	p := &pdf.Page{
		Index:   index,
		Width:   w,
		Height:  h,
		Signals: pagemode.Signals{PageIndex: index, NativeCharCount: 400, Width: w, Height: h},
	}
	for k, line := range lines {
		y := 100 + 30*float64(k)
		p.Lines = append(p.Lines, models.Element{
			PageIndex:  index,
			ID:         models.ElementID(index, models.SourceNative, k),
			Kind:       models.KindTextBlock,
			BBox:       models.BBox{X0: 72, Y0: y, X1: 400, Y1: y + 18},
			Text:       line,
			Confidence: 1,
			Source:     models.SourceNative,
		})
	}
	if footer != "" {
		p.Lines = append(p.Lines, models.Element{
			PageIndex:  index,
			ID:         models.ElementID(index, models.SourceNative, len(lines)),
			Kind:       models.KindTextBlock,
			BBox:       models.BBox{X0: 290, Y0: 810, X1: 305, Y1: 822},
			Text:       footer,
			Confidence: 1,
			Source:     models.SourceNative,
		})
	}
	return p
}

func reportInput() *fakeInput {
	return &fakeInput{pages: []*pdf.Page{
		nativePage(0, "", "Esimerkin kunta", "Tilinpäätös 2024"),
		nativePage(1, "", "Sisällysluettelo", "Tuloslaskelma ..... 3", "Tase ..... 4"),
		nativePage(2, "3", "TULOSLASKELMA", "Toimintatuotot 1 200"),
		nativePage(3, "4", "TASE", "VASTAAVAA", "VASTATTAVAA"),
	}}
}

// fakeEngine returns one text block in the middle of the page
type fakeEngine struct {
	text  string
	fail  bool
	block bool
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(ctx context.Context, img ocr.PageImage, _ models.PassConfig) (*ocr.EngineResult, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.fail {
		return nil, errors.New("engine crashed")
	}
	b := img.Image.Bounds()
	return &ocr.EngineResult{Elements: []models.Element{{
		PageIndex:  img.PageIndex,
		ID:         models.ElementID(img.PageIndex, models.SourceOCR, 0),
		Kind:       models.KindTextBlock,
		BBox:       img.ToPage(image.Rect(b.Dx()/10, b.Dy()/4, b.Dx()*9/10, b.Dy()/2)),
		Text:       f.text,
		Confidence: 0.9,
		Source:     models.SourceOCR,
	}}}, nil
}

func scanInput() *ImageInput {
	return NewImageInput(image.NewGray(image.Rect(0, 0, 248, 351)), 300)
}

func TestRunNativeReport(t *testing.T) {
	res, err := New(DefaultConfig()).Run(context.Background(), reportInput(), "tilinpaatos-2024.pdf")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	doc := res.Document

	wantSections := []string{
		models.SectionCover,
		models.SectionTOC,
		string(models.FinIncomeStatement),
		string(models.FinBalanceSheet),
	}
	for i, want := range wantSections {
		if got := doc.Pages[i].Section; got != want {
			t.Errorf("page %d section = %q, want %q", i, got, want)
		}
	}
	if !doc.Pages[1].IsTOC {
		t.Error("page 1 not detected as TOC")
	}
	if doc.Pages[3].SectionConfidence != 0.95 {
		t.Errorf("page 3 confidence = %v, want TOC trust 0.95", doc.Pages[3].SectionConfidence)
	}

	if !doc.OffsetResolved || doc.PageNumberOffset != -1 {
		t.Errorf("offset = %d resolved=%v, want -1 resolved", doc.PageNumberOffset, doc.OffsetResolved)
	}
	if len(doc.TOCEntries) != 2 || *doc.TOCEntries[1].PDFTargetPage != 3 {
		t.Errorf("TOC entries = %+v", doc.TOCEntries)
	}
	if len(doc.Pages[2].Margins) != 1 || doc.Pages[2].Margins[0].Text != "3" {
		t.Errorf("page 2 margins = %+v, want the footer", doc.Pages[2].Margins)
	}

	s := res.Summary
	if s.Status != StatusSuccess {
		t.Errorf("status = %s, want success; findings = %+v", s.Status, res.Findings)
	}
	if s.Pages != 4 || s.FailedPages != 0 || s.OCRPages != 0 || s.Partial {
		t.Errorf("summary = %+v", s)
	}
	if doc.ID == "" || s.RunID == "" || s.DocumentID != doc.ID || doc.SourceName != "tilinpaatos-2024.pdf" {
		t.Errorf("ids: doc %q run %q summary %q", doc.ID, s.RunID, s.DocumentID)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	p := New(DefaultConfig())
	a, err := p.Run(context.Background(), reportInput(), "a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Run(context.Background(), reportInput(), "a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Document.Pages {
		pa, pb := a.Document.Pages[i], b.Document.Pages[i]
		if pa.Section != pb.Section || len(pa.Elements) != len(pb.Elements) {
			t.Fatalf("page %d differs between runs", i)
		}
		for j := range pa.Elements {
			if pa.Elements[j].ID != pb.Elements[j].ID {
				t.Errorf("page %d element %d: %s vs %s", i, j, pa.Elements[j].ID, pb.Elements[j].ID)
			}
		}
	}
}

func TestRunScan(t *testing.T) {
	engine := &fakeEngine{text: "TULOSLASKELMA\nToimintatuotot 1200\nToimintakulut 900"}
	res, err := New(DefaultConfig(), WithOCR(engine)).Run(context.Background(), scanInput(), "scan.png")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	page := res.Document.Pages[0]
	if page.Manifest.Mode != models.ModeScan {
		t.Errorf("mode = %s, want scan", page.Manifest.Mode)
	}
	if page.Quality == nil || page.Quality.Status != models.QualityGood {
		t.Fatalf("quality = %+v, want good", page.Quality)
	}
	if page.OCRPass == nil || page.OCRPass.Winner.ID != "p1" || page.OCRPass.Winner.Engine != "fake" {
		t.Errorf("pass audit = %+v, want p1 on fake", page.OCRPass)
	}
	if page.Section != string(models.FinIncomeStatement) {
		t.Errorf("section = %q, want income statement", page.Section)
	}
	if len(page.Elements) != 1 || page.Elements[0].Source != models.SourceOCR {
		t.Errorf("elements = %+v", page.Elements)
	}
	if res.Summary.OCRPages != 1 {
		t.Errorf("OCR pages = %d, want 1", res.Summary.OCRPages)
	}
}

func TestRunAllPassesFail(t *testing.T) {
	res, err := New(DefaultConfig(), WithOCR(&fakeEngine{fail: true})).Run(context.Background(), scanInput(), "scan.png")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !res.Document.Pages[0].Failed {
		t.Error("page not marked failed")
	}
	var found bool
	for _, f := range res.Findings {
		if f.Checker == checkerName && f.Severity == models.SeverityError && f.PageIndex != nil && *f.PageIndex == 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("no page error finding in %+v", res.Findings)
	}
	if res.Summary.Status != StatusFailed || res.Summary.FailedPages != 1 {
		t.Errorf("summary = %+v, want failed", res.Summary)
	}
}

func TestRunDocumentBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DocumentTimeout = 50 * time.Millisecond

	res, err := New(cfg, WithOCR(&fakeEngine{block: true})).Run(context.Background(), scanInput(), "scan.png")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !res.Summary.Partial || res.Summary.Status != StatusPartial {
		t.Errorf("summary = %+v, want partial", res.Summary)
	}
	page := res.Document.Pages[0]
	if !page.Failed || page.Section == "" || page.Width <= 0 {
		t.Errorf("abandoned page = %+v, want failed, labelled and sized", page)
	}
	var expired bool
	for _, f := range res.Findings {
		if strings.Contains(f.Message, "budget") {
			expired = true
		}
	}
	if !expired {
		t.Errorf("no budget finding in %+v", res.Findings)
	}
}

func TestRunDegradedPages(t *testing.T) {
	in := reportInput()
	in.pages[2] = &pdf.Page{Index: 2, Signals: pagemode.Signals{PageIndex: 2}}
	in.analyseErr = map[int]error{2: errors.New("invalid geometry 0.0x0.0")}

	res, err := New(DefaultConfig()).Run(context.Background(), in, "broken.pdf")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	page := res.Document.Pages[2]
	if page.Manifest.Mode != models.ModeScan || page.Manifest.GeometryReadable {
		t.Errorf("manifest = %+v, want unreadable scan", page.Manifest)
	}
	if page.Width != fallbackWidth || page.Height != fallbackHeight {
		t.Errorf("size = %vx%v, want fallback", page.Width, page.Height)
	}

	var classification, noEngine bool
	for _, f := range res.Findings {
		if f.PageIndex == nil || *f.PageIndex != 2 {
			continue
		}
		if strings.Contains(f.Message, "degraded to scan") {
			classification = true
		}
		if strings.Contains(f.Message, "no OCR engine") {
			noEngine = true
		}
	}
	if !classification || !noEngine {
		t.Errorf("findings = %+v, want classification and missing engine warnings", res.Findings)
	}
	if res.Summary.Status != StatusWarning {
		t.Errorf("status = %s, want warning", res.Summary.Status)
	}
}

func TestRunErrors(t *testing.T) {
	t.Run("no pages", func(t *testing.T) {
		_, err := New(DefaultConfig()).Run(context.Background(), &fakeInput{}, "empty.pdf")
		if !errors.Is(err, ErrNoPages) {
			t.Errorf("Run() error = %v, want ErrNoPages", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(DefaultConfig()).Run(ctx, reportInput(), "a.pdf")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	})
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name        string
		summary     RunSummary
		allFallback bool
		want        Status
	}{
		{"clean", RunSummary{Pages: 4}, false, StatusSuccess},
		{"warnings", RunSummary{Pages: 4, Warnings: 2}, false, StatusWarning},
		{"partial beats warnings", RunSummary{Pages: 4, Warnings: 2, Partial: true}, false, StatusPartial},
		{"errors at the gate", RunSummary{Pages: 4, Errors: 1, ErrorFraction: 0.25}, false, StatusSuccess},
		{"errors above the gate", RunSummary{Pages: 4, Errors: 2, ErrorFraction: 0.5, Partial: true}, false, StatusFailed},
		{"every page at fallback", RunSummary{Pages: 4}, true, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RunStatus(tt.summary, tt.allFallback, 0.25); got != tt.want {
				t.Errorf("RunStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInspect(t *testing.T) {
	in := reportInput()
	in.pages[1] = &pdf.Page{Index: 1, Signals: pagemode.Signals{PageIndex: 1, ImageCoverageRatio: 0.9, Width: 595, Height: 842}}
	in.analyseErr = map[int]error{3: errors.New("broken content stream")}

	manifest, err := Inspect(context.Background(), in, pagemode.DefaultThresholds())
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	want := []models.PageMode{models.ModeNative, models.ModeScan, models.ModeNative, models.ModeScan}
	for i, m := range manifest {
		if m.Mode != want[i] {
			t.Errorf("page %d mode = %s, want %s", i, m.Mode, want[i])
		}
	}
	if manifest[3].GeometryReadable {
		t.Error("page 3 geometry reported readable")
	}
	if manifest[1].RecommendedDPI != 250 {
		t.Errorf("page 1 DPI = %d, want 250", manifest[1].RecommendedDPI)
	}
}

func TestReadInputImage(t *testing.T) {
	in := scanInput()
	page, err := in.Analyze(0)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	// 248x351 px at 300 dpi is about A4 at a quarter of the resolution
	if page.Width < 59 || page.Width > 60 || page.Signals.ImageCoverageRatio != 1 {
		t.Errorf("page = %+v", page)
	}
	if _, err := in.Analyze(1); !errors.Is(err, pdf.ErrPageOutOfRange) {
		t.Errorf("Analyze(1) error = %v, want ErrPageOutOfRange", err)
	}

	if _, err := ReadInput([]byte("neither a pdf nor an image"), 300); !errors.Is(err, ErrUnreadableInput) {
		t.Errorf("ReadInput() error = %v, want ErrUnreadableInput", err)
	}
}
