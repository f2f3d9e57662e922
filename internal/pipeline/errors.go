package pipeline

import (
	"errors"
	"fmt"

	"finscan/internal/ocr"
)

// Document-level errors. Only these abort a run.
var (
	// ErrNoPages is returned when the input has no pages at all.
	ErrNoPages = errors.New("document has no pages")

	// ErrUnreadableInput is returned when the input is neither a readable PDF
	// nor a supported raster image.
	ErrUnreadableInput = errors.New("input is not a readable PDF or image")
)

// Page-level error kinds. They are recorded as findings and never abort a run.
var (
	// ErrClassification matches every ClassificationError.
	ErrClassification = errors.New("page classification degraded")

	// ErrOffsetUnresolved matches every OffsetUnresolvedError.
	ErrOffsetUnresolved = errors.New("page number offset unresolved")
)

// ExtractionEngineError is an OCR or table engine failure
type ExtractionEngineError = ocr.EngineError

// ClassificationError describes a page whose geometry or content could not
// be read; the page degrades to the safest mode instead of failing.
type ClassificationError struct {
	// Op is the operation that failed (e.g., "Analyze").
	Op string

	// Page is the physical page index.
	Page int

	// Err is the underlying error.
	Err error

	// Details provides additional context about the fallback taken.
	Details string
}

// Error implements the error interface.
func (e *ClassificationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("pipeline: %s page %d: %s: %v", e.Op, e.Page, e.Details, e.Err)
	}
	return fmt.Sprintf("pipeline: %s page %d: %v", e.Op, e.Page, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *ClassificationError) Is(target error) bool {
	return target == ErrClassification || errors.Is(e.Err, target)
}

// OffsetUnresolvedError reports that no page number offset reached the
// required agreement. The run continues with offset zero.
type OffsetUnresolvedError struct {
	// Candidates is the number of page numbers found.
	Candidates int

	// Agreement is the share of candidates behind the most common offset.
	Agreement float64

	// Required is the configured minimum agreement.
	Required float64
}

// Error implements the error interface.
func (e *OffsetUnresolvedError) Error() string {
	if e.Candidates == 0 {
		return "pipeline: offset unresolved: no printed page numbers found, using offset 0"
	}
	return fmt.Sprintf("pipeline: offset unresolved: agreement %.2f below %.2f over %d candidates, using offset 0",
		e.Agreement, e.Required, e.Candidates)
}

// Is implements error matching.
func (e *OffsetUnresolvedError) Is(target error) bool {
	return target == ErrOffsetUnresolved
}
