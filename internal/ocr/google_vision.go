package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"

	"finscan/pkg/models"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// MaxImageBytes is the Vision API limit for inline image content (20MB)
const MaxImageBytes = 20 * 1024 * 1024

// VisionEngine implements Engine using Google Cloud Vision document text detection.
// The page segmentation mode of a pass has no effect on this engine; the
// preprocessing profile still applies.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionEngine creates a Vision engine with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewVisionEngine(ctx context.Context) (*VisionEngine, error) {
	const op = "NewVisionEngine"

	var client *vision.ImageAnnotatorClient
	var err error

	// Check for inline credentials first
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapEngineError("vision", op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapEngineError("vision", op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		// Try default credentials as fallback
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapEngineError("vision", op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &VisionEngine{client: client}, nil
}

// NewVisionEngineWithClient creates an engine with an explicit client (for testing).
func NewVisionEngineWithClient(client *vision.ImageAnnotatorClient) *VisionEngine {
	return &VisionEngine{client: client}
}

func (v *VisionEngine) Name() string { return "vision" }

// Recognize sends the page image to the Vision API. Each detected block becomes one text element.
func (v *VisionEngine) Recognize(ctx context.Context, img PageImage, pass models.PassConfig) (*EngineResult, error) {
	const op = "Recognize"

	if img.Image == nil {
		return nil, NewEngineError(v.Name(), op, ErrEmptyImage, "")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Image); err != nil {
		return nil, NewEngineError(v.Name(), op, err, "encode page image")
	}
	if buf.Len() > MaxImageBytes {
		return nil, NewEngineError(v.Name(), op, ErrEngineFailed, fmt.Sprintf("image size %d bytes exceeds limit", buf.Len()))
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: buf.Bytes()},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{LanguageHints: img.Languages},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, NewEngineError(v.Name(), op, err, "Vision API call failed")
	}
	if len(resp.Responses) == 0 {
		return nil, NewEngineError(v.Name(), op, ErrEngineFailed, "no response from Vision API")
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return nil, NewEngineError(v.Name(), op, ErrEngineFailed, fmt.Sprintf("Vision API error: %s", r.Error.Message))
	}

	return &EngineResult{Elements: visionElements(img, r.FullTextAnnotation)}, nil
}

// Close closes the underlying Vision client.
func (v *VisionEngine) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

// visionElements converts a full text annotation into page elements, one per block
func visionElements(img PageImage, ann *visionpb.TextAnnotation) []models.Element {
	if ann == nil {
		return nil
	}
	var out []models.Element
	for _, page := range ann.Pages {
		for _, block := range page.Blocks {
			text := strings.TrimSpace(blockText(block))
			if text == "" {
				continue
			}
			out = append(out, models.Element{
				PageIndex:  img.PageIndex,
				ID:         models.ElementID(img.PageIndex, models.SourceOCR, len(out)),
				Kind:       models.KindTextBlock,
				BBox:       img.ToPage(polyRect(block.BoundingBox)),
				Text:       text,
				Confidence: float64(block.Confidence),
				Source:     models.SourceOCR,
			})
		}
	}
	return out
}

func blockText(b *visionpb.Block) string {
	var sb strings.Builder
	for pi, para := range b.Paragraphs {
		if pi > 0 {
			sb.WriteByte('\n')
		}
		for _, word := range para.Words {
			for _, sym := range word.Symbols {
				sb.WriteString(sym.Text)
				if sym.Property == nil || sym.Property.DetectedBreak == nil {
					continue
				}
				switch sym.Property.DetectedBreak.Type {
				case visionpb.TextAnnotation_DetectedBreak_SPACE, visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
					sb.WriteByte(' ')
				case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE, visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
					sb.WriteByte('\n')
				}
			}
		}
	}
	return sb.String()
}

func polyRect(p *visionpb.BoundingPoly) image.Rectangle {
	if p == nil || len(p.Vertices) == 0 {
		return image.Rectangle{}
	}
	minX, minY := int(p.Vertices[0].X), int(p.Vertices[0].Y)
	maxX, maxY := minX, minY
	for _, vx := range p.Vertices[1:] {
		minX, maxX = min(minX, int(vx.X)), max(maxX, int(vx.X))
		minY, maxY = min(minY, int(vx.Y)), max(maxY, int(vx.Y))
	}
	return image.Rect(minX, minY, maxX, maxY)
}
