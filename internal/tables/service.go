// Package tables recovers table structure from page images and parses
// displayed amounts.
//
// The Document AI extractor uses a Form Parser processor, whose response
// carries table grids per page.
//
// Required Environment Variables:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - GOOGLE_PROJECT_ID: Google Cloud project ID
//   - GOOGLE_LOCATION: Processing location (e.g., "us", "eu")
//   - DOCUMENT_AI_PROCESSOR_ID: Form Parser processor ID
//
// Document AI API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Quota limits apply (check Google Cloud Console)
package tables

import (
	"context"
	"time"

	"finscan/internal/ocr"
	"finscan/pkg/models"
)

// Extractor recovers table elements from a page image. Returned elements are
// in page coordinates with Kind table and Source ocr.
type Extractor interface {
	ExtractTables(ctx context.Context, img ocr.PageImage) ([]models.Element, error)
}

// DocumentAIConfig holds configuration for Google Document AI processing.
type DocumentAIConfig struct {
	// ProjectID is the Google Cloud project ID where Document AI is enabled.
	ProjectID string

	// Location is the processing location (e.g., "us", "eu").
	Location string

	// ProcessorID is the Form Parser processor ID.
	ProcessorID string

	// ProcessorVersion specifies a particular processor version.
	// If empty, uses the default version.
	ProcessorVersion string

	// Timeout is the maximum time to wait for one page.
	Timeout time.Duration
}

// DefaultConfig returns a DocumentAIConfig with sensible defaults.
func DefaultConfig() DocumentAIConfig {
	return DocumentAIConfig{
		Location: "us",
		Timeout:  60 * time.Second,
	}
}
