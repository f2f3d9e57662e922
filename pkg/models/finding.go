package models

import "fmt"

// Severity of a finding
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is a single recorded observation. Findings are append-only and
// never mutated once created.
type Finding struct {
	Checker   string   `json:"checker"`
	Severity  Severity `json:"severity"`
	PageIndex *int     `json:"page_index,omitempty"`
	ElementID string   `json:"element_id,omitempty"`
	Message   string   `json:"message"`
}

// NewFinding creates a document-level finding
func NewFinding(checker string, severity Severity, format string, args ...any) Finding {
	return Finding{
		Checker:  checker,
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
	}
}

// NewPageFinding creates a finding attached to a page
func NewPageFinding(checker string, severity Severity, page int, format string, args ...any) Finding {
	f := NewFinding(checker, severity, format, args...)
	f.PageIndex = &page
	return f
}

// OnElement returns a copy of the finding attached to an element
func (f Finding) OnElement(id string) Finding {
	f.ElementID = id
	return f
}

// CountBySeverity tallies findings per severity
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := map[Severity]int{}
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
