package pipeline

import (
	"time"

	"finscan/internal/checks"
	"finscan/pkg/models"
)

// Status is the overall verdict of a run
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// RunSummary is the compact outcome of one run
type RunSummary struct {
	RunID          string        `json:"run_id"`
	DocumentID     string        `json:"document_id"`
	Source         string        `json:"source"`
	Status         Status        `json:"status"`
	Pages          int           `json:"pages"`
	FailedPages    int           `json:"failed_pages"`
	OCRPages       int           `json:"ocr_pages"`
	Partial        bool          `json:"partial"`
	Offset         int           `json:"page_number_offset"`
	OffsetResolved bool          `json:"offset_resolved"`
	Errors         int           `json:"errors"`
	Warnings       int           `json:"warnings"`
	Infos          int           `json:"infos"`
	ErrorFraction  float64       `json:"error_fraction"`
	Duration       time.Duration `json:"duration_ns"`
}

func (p *Pipeline) summarize(runID string, doc *models.Document, findings []models.Finding, partial bool, started time.Time) RunSummary {
	counts := models.CountBySeverity(findings)
	s := RunSummary{
		RunID:          runID,
		DocumentID:     doc.ID,
		Source:         doc.SourceName,
		Pages:          len(doc.Pages),
		Partial:        partial,
		Offset:         doc.PageNumberOffset,
		OffsetResolved: doc.OffsetResolved,
		Errors:         counts[models.SeverityError],
		Warnings:       counts[models.SeverityWarning],
		Infos:          counts[models.SeverityInfo],
		Duration:       p.now().Sub(started),
	}
	for i := range doc.Pages {
		if doc.Pages[i].Failed {
			s.FailedPages++
		}
		if doc.Pages[i].Quality != nil {
			s.OCRPages++
		}
	}
	if s.Pages > 0 {
		s.ErrorFraction = float64(s.Errors) / float64(s.Pages)
	}
	s.Status = RunStatus(s, checks.AllFallback(doc), p.cfg.FailGate)
	return s
}

// RunStatus derives the verdict from a summary. A run fails when its error
// findings per page exceed failGate or when no page could be labelled.
func RunStatus(s RunSummary, allFallback bool, failGate float64) Status {
	switch {
	case s.ErrorFraction > failGate || allFallback:
		return StatusFailed
	case s.Partial:
		return StatusPartial
	case s.Warnings > 0:
		return StatusWarning
	default:
		return StatusSuccess
	}
}
