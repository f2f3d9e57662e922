package ocr

import (
	"errors"
	"fmt"
)

// Common OCR errors
var (
	// ErrEngineFailed matches every engine-side failure. All EngineError values
	// satisfy errors.Is(err, ErrEngineFailed).
	ErrEngineFailed = errors.New("OCR engine failed")

	// ErrAllPassesFailed is returned when no pass of a page produced a result.
	ErrAllPassesFailed = errors.New("all OCR passes failed")

	// ErrNoPasses is returned when the selector is given an empty pass list.
	ErrNoPasses = errors.New("no OCR passes configured")

	// ErrUnknownEngine is returned when a pass names an engine that is not registered.
	ErrUnknownEngine = errors.New("unknown OCR engine")

	// ErrEmptyImage is returned when the page image is missing or has no pixels.
	ErrEmptyImage = errors.New("page image is empty")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS environment variables are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrRateLimited is returned when waiting for the rate limiter was interrupted.
	ErrRateLimited = errors.New("OCR request rate limited")
)

// EngineError wraps errors with context about the failing OCR call.
type EngineError struct {
	// Op is the operation that failed (e.g., "Recognize", "NewVisionEngine").
	Op string

	// Engine is the engine name, empty for selector-level failures.
	Engine string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	op := e.Op
	if e.Engine != "" {
		op = e.Engine + "." + e.Op
	}
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *EngineError) Is(target error) bool {
	return target == ErrEngineFailed || errors.Is(e.Err, target)
}

// NewEngineError creates a new EngineError.
func NewEngineError(engine, op string, err error, details string) *EngineError {
	return &EngineError{
		Op:      op,
		Engine:  engine,
		Err:     err,
		Details: details,
	}
}

// WrapEngineError wraps an error as an EngineError if it isn't already one.
func WrapEngineError(engine, op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var engErr *EngineError
	if errors.As(err, &engErr) {
		return err // Already wrapped
	}

	return NewEngineError(engine, op, err, details)
}
