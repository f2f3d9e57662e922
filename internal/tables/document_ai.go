package tables

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"strings"

	"finscan/internal/logger"
	"finscan/internal/ocr"
	"finscan/pkg/models"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const (
	// MaxImageBytes is the maximum request size for synchronous processing (20MB)
	MaxImageBytes = 20 * 1024 * 1024

	engineName = "documentai"
)

// DocumentAIExtractor implements Extractor using a Google Document AI Form Parser.
type DocumentAIExtractor struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIExtractor creates an extractor with credentials from environment.
// Expects: GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS
// Requires: GOOGLE_PROJECT_ID, DOCUMENT_AI_PROCESSOR_ID
// Optional: GOOGLE_LOCATION (default "us")
func NewDocumentAIExtractor(ctx context.Context) (*DocumentAIExtractor, error) {
	const op = "NewDocumentAIExtractor"

	config := DefaultConfig()
	config.ProjectID = getEnvVar("GOOGLE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	config.ProcessorID = getEnvVar("DOCUMENT_AI_PROCESSOR_ID", "GOOGLE_PROCESSOR_ID")
	if loc := getEnvVar("GOOGLE_LOCATION", "GOOGLE_CLOUD_LOCATION"); loc != "" {
		config.Location = loc
	}

	if config.ProjectID == "" {
		return nil, ocr.WrapEngineError(engineName, op, ErrInvalidConfiguration, "GOOGLE_PROJECT_ID or GOOGLE_CLOUD_PROJECT is required")
	}
	if config.ProcessorID == "" {
		return nil, ocr.WrapEngineError(engineName, op, ErrInvalidConfiguration, "DOCUMENT_AI_PROCESSOR_ID is required")
	}

	var clientOptions []option.ClientOption

	// Set regional endpoint if not us
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	hasCreds := false
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
		hasCreds = true
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
		hasCreds = true
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if !hasCreds {
			return nil, ocr.WrapEngineError(engineName, op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, ocr.WrapEngineError(engineName, op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAIExtractorWithConfig(config, client), nil
}

// NewDocumentAIExtractorWithConfig creates an extractor with explicit config and client (for testing).
func NewDocumentAIExtractorWithConfig(config DocumentAIConfig, client *documentai.DocumentProcessorClient) *DocumentAIExtractor {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &DocumentAIExtractor{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

// ExtractTables sends the page image to the Form Parser and converts every detected table.
func (p *DocumentAIExtractor) ExtractTables(ctx context.Context, img ocr.PageImage) ([]models.Element, error) {
	const op = "ExtractTables"

	if img.Image == nil {
		return nil, ocr.NewEngineError(engineName, op, ocr.ErrEmptyImage, "")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Image); err != nil {
		return nil, ocr.NewEngineError(engineName, op, err, "encode page image")
	}
	if buf.Len() > MaxImageBytes {
		return nil, ocr.NewEngineError(engineName, op, ErrImageTooLarge, fmt.Sprintf("size: %d bytes", buf.Len()))
	}

	processCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: p.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  buf.Bytes(),
				MimeType: "image/png",
			},
		},
	}

	resp, err := p.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, p.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return nil, ocr.NewEngineError(engineName, op, ErrProcessingFailed, "no document in response")
	}

	elements := documentTables(img, resp.Document)
	p.log.Debug().
		Int("page", img.PageIndex).
		Int("tables", len(elements)).
		Msg("Document AI tables extracted")
	return elements, nil
}

// processorName constructs the full processor name for Document AI API.
func (p *DocumentAIExtractor) processorName() string {
	if p.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			p.config.ProjectID, p.config.Location, p.config.ProcessorID, p.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		p.config.ProjectID, p.config.Location, p.config.ProcessorID)
}

// handleProcessingError converts Document AI errors to engine errors.
func (p *DocumentAIExtractor) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return ocr.NewEngineError(engineName, op, ErrInvalidCredentials, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") || strings.Contains(errStr, "RESOURCE_EXHAUSTED"):
		return ocr.NewEngineError(engineName, op, ErrQuotaExceeded, "Document AI API quota exceeded")
	case strings.Contains(errStr, "NOT_FOUND"):
		return ocr.NewEngineError(engineName, op, ErrProcessorNotFound, fmt.Sprintf("processor not found: %s", p.config.ProcessorID))
	case strings.Contains(errStr, "DeadlineExceeded") || strings.Contains(errStr, "context deadline exceeded"):
		return ocr.NewEngineError(engineName, op, context.DeadlineExceeded, "processing timeout")
	case strings.Contains(errStr, "Canceled") || strings.Contains(errStr, "context canceled"):
		return ocr.NewEngineError(engineName, op, context.Canceled, "processing was canceled")
	default:
		return ocr.NewEngineError(engineName, op, ErrProcessingFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// Close closes the underlying Document AI client.
func (p *DocumentAIExtractor) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// documentTables converts the tables of the first response page into
// elements. Header rows precede body rows; column indices account for spans.
func documentTables(img ocr.PageImage, doc *documentaipb.Document) []models.Element {
	if doc == nil || len(doc.Pages) == 0 {
		return nil
	}
	text := []rune(doc.Text)
	page := doc.Pages[0]
	width, height := img.PageWidth, img.PageHeight
	if width <= 0 || height <= 0 {
		b := img.Image.Bounds()
		width, height = float64(b.Dx()), float64(b.Dy())
	}

	var out []models.Element
	for _, table := range page.Tables {
		var cells []models.Cell
		row := 0
		for _, rows := range [][]*documentaipb.Document_Page_Table_TableRow{table.HeaderRows, table.BodyRows} {
			for _, r := range rows {
				col := 0
				for _, c := range r.Cells {
					cells = append(cells, models.Cell{
						Row:  row,
						Col:  col,
						Text: strings.TrimSpace(anchorText(text, c.GetLayout().GetTextAnchor())),
					})
					col += max(1, int(c.ColSpan))
				}
				row++
			}
		}
		if len(cells) == 0 {
			continue
		}
		FillValues(cells)

		out = append(out, models.Element{
			PageIndex:  img.PageIndex,
			ID:         fmt.Sprintf("p%d-ocr-table-%d", img.PageIndex, len(out)),
			Kind:       models.KindTable,
			BBox:       normalizedBox(table.GetLayout().GetBoundingPoly(), width, height),
			Cells:      cells,
			Confidence: float64(table.GetLayout().GetConfidence()),
			Source:     models.SourceOCR,
		})
	}
	return out
}

// anchorText resolves a text anchor. Segment indices count characters of Document.text.
func anchorText(text []rune, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var sb strings.Builder
	for _, seg := range anchor.TextSegments {
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		sb.WriteString(string(text[start:end]))
	}
	return sb.String()
}

func normalizedBox(poly *documentaipb.BoundingPoly, width, height float64) models.BBox {
	if poly == nil || len(poly.NormalizedVertices) == 0 {
		return models.BBox{}
	}
	v0 := poly.NormalizedVertices[0]
	box := models.BBox{X0: float64(v0.X), Y0: float64(v0.Y), X1: float64(v0.X), Y1: float64(v0.Y)}
	for _, v := range poly.NormalizedVertices[1:] {
		box.X0, box.X1 = min(box.X0, float64(v.X)), max(box.X1, float64(v.X))
		box.Y0, box.Y1 = min(box.Y0, float64(v.Y)), max(box.Y1, float64(v.Y))
	}
	return models.BBox{X0: box.X0 * width, Y0: box.Y0 * height, X1: box.X1 * width, Y1: box.Y1 * height}
}

// getEnvVar tries multiple environment variable names and returns the first non-empty value
func getEnvVar(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}
