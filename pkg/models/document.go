package models

import "time"

// PageMode is the content modality of a page
type PageMode string

const (
	ModeNative PageMode = "native"
	ModeScan   PageMode = "scan"
	ModeMixed  PageMode = "mixed"
)

// PageManifestEntry is created once per page by the mode classifier and is
// immutable afterwards.
type PageManifestEntry struct {
	PageIndex          int      `json:"page_index"`
	NativeCharCount    int      `json:"native_char_count"`
	ImageCoverageRatio float64  `json:"image_coverage_ratio"`
	VectorLineDensity  float64  `json:"vector_line_density"`
	Width              float64  `json:"width"`
	Height             float64  `json:"height"`
	Mode               PageMode `json:"mode"`
	RecommendedDPI     int      `json:"recommended_dpi"`
	GeometryReadable   bool     `json:"geometry_readable"`
}

// NeedsOCR reports whether the page must go through the OCR path
func (m PageManifestEntry) NeedsOCR() bool {
	return m.Mode == ModeScan || m.Mode == ModeMixed
}

// QualityStatus is the OCR plausibility verdict for a block of text
type QualityStatus string

const (
	QualityGood QualityStatus = "good"
	QualityFair QualityStatus = "fair"
	QualityBad  QualityStatus = "bad"
)

// QualityMetrics are derived deterministically from text
type QualityMetrics struct {
	AlphaRatio     float64       `json:"alpha_ratio"`
	DigitRatio     float64       `json:"digit_ratio"`
	RepeatRunMax   int           `json:"repeat_run_max"`
	JunkTokenRatio float64       `json:"junk_token_ratio"`
	AvgWordLen     float64       `json:"avg_word_len"`
	Score          float64       `json:"score"`
	Empty          bool          `json:"empty,omitempty"`
	Status         QualityStatus `json:"status"`
}

// PassConfig describes one OCR attempt
type PassConfig struct {
	ID      string `json:"pass_id" yaml:"id"`
	Engine  string `json:"engine,omitempty" yaml:"engine"`
	PSM     int    `json:"psm" yaml:"psm"`
	Profile string `json:"profile" yaml:"profile"` // minimal, standard, aggressive
}

// PassAudit records which pass won for a page, for auditing and the quality gate
type PassAudit struct {
	Winner   PassConfig     `json:"winner"`
	Index    int            `json:"index"`
	Metrics  QualityMetrics `json:"metrics"`
	Attempts int            `json:"attempts"`
	Failures int            `json:"failures"`
}

// TOCEntry is one parsed line of a table of contents. PrintedTargetPage is the
// number as printed, not a physical index.
type TOCEntry struct {
	Label             string        `json:"label"`
	PrintedTargetPage int           `json:"printed_target_page"`
	FinancialType     FinancialType `json:"financial_type,omitempty"`
	PDFTargetPage     *int          `json:"pdf_target_page,omitempty"`
	SourcePage        int           `json:"source_page"`
}

// Page holds the ordered element stream of one physical page. Once the
// merger promotes elements into Elements the page exclusively owns them.
type Page struct {
	Index    int               `json:"page_index"`
	Width    float64           `json:"width"`
	Height   float64           `json:"height"`
	Manifest PageManifestEntry `json:"manifest"`
	Elements []Element         `json:"elements"`
	Margins  []Element         `json:"margins,omitempty"`

	Quality *QualityMetrics `json:"ocr_quality,omitempty"`
	OCRPass *PassAudit      `json:"ocr_pass,omitempty"`

	IsTOC             bool     `json:"is_toc,omitempty"`
	Section           string   `json:"semantic_section,omitempty"`
	SectionConfidence float64  `json:"section_confidence"`
	SectionEvidence   []string `json:"section_evidence,omitempty"`

	Failed bool `json:"failed,omitempty"`
}

// AllText concatenates the text of ordered elements and margins
func (p *Page) AllText() string {
	var out []byte
	for _, group := range [][]Element{p.Elements, p.Margins} {
		for i := range group {
			t := group[i].PlainText()
			if t == "" {
				continue
			}
			if len(out) > 0 {
				out = append(out, ' ')
			}
			out = append(out, t...)
		}
	}
	return string(out)
}

// Tables returns pointers to the table elements of the page
func (p *Page) Tables() []*Element {
	var out []*Element
	for i := range p.Elements {
		if p.Elements[i].IsTable() {
			out = append(out, &p.Elements[i])
		}
	}
	return out
}

// Document is the reconciled output of one run
type Document struct {
	ID               string     `json:"document_id"`
	SourceName       string     `json:"source"`
	Pages            []Page     `json:"pages"`
	PageNumberOffset int        `json:"page_number_offset"`
	OffsetResolved   bool       `json:"offset_resolved"`
	TOCEntries       []TOCEntry `json:"toc_entries,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// PageCount returns the number of physical pages
func (d *Document) PageCount() int { return len(d.Pages) }
