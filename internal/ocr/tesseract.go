package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strconv"
	"strings"

	"finscan/pkg/models"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine implements Engine with a local Tesseract install through gosseract
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
	languages     []string
}

// NewTesseractEngine constructs a Tesseract-backed engine. Languages default to
// Finnish plus English.
func NewTesseractEngine(languages ...string) *TesseractEngine {
	if len(languages) == 0 {
		languages = []string{"fin", "eng"}
	}
	return &TesseractEngine{clientFactory: gosseract.NewClient, languages: languages}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize runs one pass. Each Tesseract text line becomes one text element.
func (e *TesseractEngine) Recognize(ctx context.Context, img PageImage, pass models.PassConfig) (*EngineResult, error) {
	const op = "Recognize"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Image == nil {
		return nil, NewEngineError(e.Name(), op, ErrEmptyImage, "")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Image); err != nil {
		return nil, NewEngineError(e.Name(), op, err, "encode page image")
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, NewEngineError(e.Name(), op, err, "set image")
	}
	langs := img.Languages
	if len(langs) == 0 {
		langs = e.languages
	}
	if err := c.SetLanguage(langs...); err != nil {
		return nil, NewEngineError(e.Name(), op, err, "set languages")
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(pass.PSM)); err != nil {
		return nil, NewEngineError(e.Name(), op, err, fmt.Sprintf("set psm %d", pass.PSM))
	}
	if img.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(img.DPI)); err != nil {
			return nil, NewEngineError(e.Name(), op, err, "set dpi")
		}
	}

	lines, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, NewEngineError(e.Name(), op, err, "recognize lines")
	}

	elements := make([]models.Element, 0, len(lines))
	for _, b := range lines {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		elements = append(elements, models.Element{
			PageIndex:  img.PageIndex,
			ID:         models.ElementID(img.PageIndex, models.SourceOCR, len(elements)),
			Kind:       models.KindTextBlock,
			BBox:       img.ToPage(b.Box),
			Text:       text,
			Confidence: b.Confidence / 100.0,
			Source:     models.SourceOCR,
		})
	}

	return &EngineResult{Elements: elements, Language: langs[0]}, nil
}
