package checks

import "finscan/pkg/models"

// Schema verifies the structural completeness of the document
type Schema struct{}

func (Schema) Name() string { return "schema" }

func (s Schema) Check(doc *models.Document) []models.Finding {
	if len(doc.Pages) == 0 {
		return []models.Finding{models.NewFinding(s.Name(), models.SeverityError, "document has no pages")}
	}

	var findings []models.Finding
	seen := map[string]bool{}
	for i := range doc.Pages {
		p := &doc.Pages[i]
		if p.Index != i {
			findings = append(findings, models.NewPageFinding(s.Name(), models.SeverityError, p.Index,
				"page at position %d has index %d", i, p.Index))
		}
		if p.Width <= 0 || p.Height <= 0 {
			findings = append(findings, models.NewPageFinding(s.Name(), models.SeverityError, p.Index,
				"invalid page dimensions %gx%g", p.Width, p.Height))
		}
		for j := range p.Elements {
			id := p.Elements[j].ID
			if id == "" {
				continue
			}
			if seen[id] {
				findings = append(findings, models.NewPageFinding(s.Name(), models.SeverityWarning, p.Index,
					"duplicate element id %s", id).OnElement(id))
			}
			seen[id] = true
		}
	}
	return findings
}
