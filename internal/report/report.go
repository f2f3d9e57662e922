// Package report renders run results for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"finscan/internal/pipeline"
	"finscan/pkg/models"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	headerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// maxFindings bounds the findings listed per severity
const maxFindings = 20

// Load reads a result written by the process command with --json
func Load(path string) (*pipeline.Result, error) {
	const op = "Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var res pipeline.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%s: decode %s: %w", op, path, err)
	}
	if res.Document == nil {
		return nil, fmt.Errorf("%s: %s has no document", op, path)
	}
	return &res, nil
}

// Render writes the header, the page table and the findings of one result
func Render(w io.Writer, res *pipeline.Result) {
	FormatHeader(w, res.Summary)
	FormatPages(w, res.Document)
	FormatFindings(w, res.Findings)
}

// FormatHeader renders the run summary box
func FormatHeader(w io.Writer, s pipeline.RunSummary) {
	offset := fmt.Sprintf("%+d", s.Offset)
	if !s.OffsetResolved {
		offset += dimStyle.Render(" (unresolved)")
	}

	content := fmt.Sprintf("%s %s\n%s %s  %s %d  %s %d  %s %d\n%s %s  %s %.1fs\n%s %s %s %s %s",
		dimStyle.Render("Source:"), titleStyle.Render(s.Source),
		dimStyle.Render("Status:"), StatusStyle(s.Status).Render(strings.ToUpper(string(s.Status))),
		dimStyle.Render("Pages:"), s.Pages,
		dimStyle.Render("OCR:"), s.OCRPages,
		dimStyle.Render("Failed:"), s.FailedPages,
		dimStyle.Render("Offset:"), offset,
		dimStyle.Render("Duration:"), s.Duration.Seconds(),
		dimStyle.Render("Findings:"),
		errorStyle.Render(fmt.Sprintf("%d errors", s.Errors)),
		warningStyle.Render(fmt.Sprintf("%d warnings", s.Warnings)),
		dimStyle.Render(fmt.Sprintf("%d info", s.Infos)),
		partialNote(s),
	)
	fmt.Fprintln(w, headerBoxStyle.Render(content))
}

func partialNote(s pipeline.RunSummary) string {
	if !s.Partial {
		return ""
	}
	return warningStyle.Render("(partial)")
}

// StatusStyle colours a run status
func StatusStyle(s pipeline.Status) lipgloss.Style {
	switch s {
	case pipeline.StatusSuccess:
		return successStyle
	case pipeline.StatusWarning, pipeline.StatusPartial:
		return warningStyle
	default:
		return errorStyle
	}
}

// FormatPages renders one line per page: mode, section, confidence and OCR quality
func FormatPages(w io.Writer, doc *models.Document) {
	if doc == nil || len(doc.Pages) == 0 {
		return
	}

	var lines []string
	lines = append(lines, dimStyle.Render(fmt.Sprintf("%-4s %-6s %-28s %-5s %s", "page", "mode", "section", "conf", "ocr")))
	for i := range doc.Pages {
		p := &doc.Pages[i]
		ocr := "-"
		if p.Quality != nil {
			ocr = fmt.Sprintf("%s %.2f", p.Quality.Status, p.Quality.Score)
			if p.OCRPass != nil {
				ocr += " " + p.OCRPass.Winner.ID
			}
		}
		section := p.Section
		if p.Failed {
			section = errorStyle.Render(section + " (failed)")
		}
		lines = append(lines, fmt.Sprintf("%-4d %-6s %-28s %-5.2f %s",
			p.Index, p.Manifest.Mode, section, p.SectionConfidence, ocr))
	}

	content := titleStyle.Render("Pages") + "\n" + strings.Join(lines, "\n")
	fmt.Fprintln(w, boxStyle.Render(content))
}

// FormatFindings renders findings grouped by severity, most severe first
func FormatFindings(w io.Writer, findings []models.Finding) {
	if len(findings) == 0 {
		fmt.Fprintln(w, successStyle.Render("No findings"))
		return
	}

	for _, sev := range []models.Severity{models.SeverityError, models.SeverityWarning, models.SeverityInfo} {
		var lines []string
		total := 0
		for _, f := range findings {
			if f.Severity != sev {
				continue
			}
			total++
			if total <= maxFindings {
				lines = append(lines, formatFinding(f))
			}
		}
		if total == 0 {
			continue
		}
		if total > maxFindings {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("... %d more", total-maxFindings)))
		}
		title := severityStyle(sev).Render(fmt.Sprintf("%s (%d)", strings.ToUpper(string(sev)), total))
		fmt.Fprintln(w, boxStyle.Render(title+"\n"+strings.Join(lines, "\n")))
	}
}

func formatFinding(f models.Finding) string {
	where := "doc"
	if f.PageIndex != nil {
		where = fmt.Sprintf("p%d", *f.PageIndex)
	}
	if f.ElementID != "" {
		where += " " + f.ElementID
	}
	return fmt.Sprintf("%s %s %s", dimStyle.Render(fmt.Sprintf("[%s]", f.Checker)), dimStyle.Render(where), f.Message)
}

func severityStyle(s models.Severity) lipgloss.Style {
	switch s {
	case models.SeverityError:
		return errorStyle
	case models.SeverityWarning:
		return warningStyle
	default:
		return dimStyle
	}
}
