package checks

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"finscan/pkg/models"
)

var (
	noteReference = regexp.MustCompile(`(?i)\b(see\s+note|note|ks\.\s*liite|liitetieto|liite)\s*(\d{1,3})\b`)
	noteAnchor    = regexp.MustCompile(`(?im)^\s*(\d{1,3})\.\s|\b(?:note|liitetieto|liite)\s*(\d{1,3})\b`)
)

// CrossReference verifies that every note referenced outside the notes
// section has an anchor inside it
type CrossReference struct{}

func (CrossReference) Name() string { return "cross_reference" }

type reference struct {
	page  int
	id    string
	text  string
	count int
}

func (x CrossReference) Check(doc *models.Document) []models.Finding {
	notesPages := 0
	anchors := map[int]bool{}
	for i := range doc.Pages {
		p := &doc.Pages[i]
		if p.Section != string(models.FinNotes) {
			continue
		}
		notesPages++
		for j := range p.Elements {
			for _, m := range noteAnchor.FindAllStringSubmatch(p.Elements[j].PlainText(), -1) {
				for _, g := range m[1:] {
					if n, err := strconv.Atoi(g); err == nil {
						anchors[n] = true
					}
				}
			}
		}
	}
	if notesPages == 0 {
		return []models.Finding{models.NewFinding(x.Name(), models.SeverityInfo,
			"no notes section found, cross-reference check skipped")}
	}

	refs := map[int]*reference{}
	for i := range doc.Pages {
		p := &doc.Pages[i]
		if p.Section == string(models.FinNotes) || p.IsTOC {
			continue
		}
		for j := range p.Elements {
			el := &p.Elements[j]
			for _, m := range noteReference.FindAllStringSubmatch(el.PlainText(), -1) {
				n, err := strconv.Atoi(m[2])
				if err != nil {
					continue
				}
				if r, ok := refs[n]; ok {
					r.count++
					continue
				}
				refs[n] = &reference{page: p.Index, id: el.ID, text: strings.ToLower(m[0]), count: 1}
			}
		}
	}
	if len(refs) == 0 {
		return nil
	}

	notes := make([]int, 0, len(refs))
	for n := range refs {
		notes = append(notes, n)
	}
	slices.Sort(notes)

	var findings []models.Finding
	var missing []string
	for _, n := range notes {
		if anchors[n] {
			continue
		}
		r := refs[n]
		missing = append(missing, strconv.Itoa(n))
		findings = append(findings, models.NewPageFinding(x.Name(), models.SeverityWarning, r.page,
			"reference %q (note %d) has no anchor in the notes section, referenced %d time(s)", r.text, n, r.count).OnElement(r.id))
	}

	summary := "none"
	if len(missing) > 0 {
		summary = strings.Join(missing, ", ")
	}
	findings = append(findings, models.NewFinding(x.Name(), models.SeverityInfo,
		"%d/%d referenced notes resolved, missing: %s", len(notes)-len(missing), len(notes), summary))
	return findings
}
