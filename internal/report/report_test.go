package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"finscan/internal/pipeline"
	"finscan/pkg/models"
)

func sampleResult() *pipeline.Result {
	doc := &models.Document{ID: "doc-1", SourceName: "budget.pdf", Pages: []models.Page{
		{Index: 0, Manifest: models.PageManifestEntry{Mode: models.ModeNative}, Section: models.SectionCover, SectionConfidence: 0.8},
		{
			Index:             1,
			Manifest:          models.PageManifestEntry{Mode: models.ModeScan},
			Section:           string(models.FinBalanceSheet),
			SectionConfidence: 0.95,
			Quality:           &models.QualityMetrics{Score: 0.91, Status: models.QualityGood},
			OCRPass:           &models.PassAudit{Winner: models.PassConfig{ID: "p2"}},
		},
	}}
	return &pipeline.Result{
		Document: doc,
		Findings: []models.Finding{
			models.NewPageFinding("balance_equation", models.SeverityWarning, 1, "balance mismatch: assets 1000, liabilities and equity 998, delta 2"),
			models.NewFinding("regression_diff", models.SeverityInfo, "no golden snapshot, regression check skipped"),
		},
		Summary: pipeline.RunSummary{Source: "budget.pdf", Status: pipeline.StatusWarning, Pages: 2, OCRPages: 1, Warnings: 1, Infos: 1, OffsetResolved: true, Offset: -1},
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, sampleResult())
	out := buf.String()

	for _, want := range []string{
		"budget.pdf",
		"WARNING",
		"-1",
		"balance_sheet",
		"good 0.91 p2",
		"WARNING (1)",
		"[balance_equation]",
		"p1",
		"INFO (1)",
		"no golden snapshot",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ERROR (") {
		t.Errorf("output has an empty error group:\n%s", out)
	}
}

func TestFormatFindingsTruncates(t *testing.T) {
	var findings []models.Finding
	for i := range maxFindings + 3 {
		findings = append(findings, models.NewPageFinding("sum_consistency", models.SeverityError, i, "mismatch %d", i))
	}
	var buf bytes.Buffer
	FormatFindings(&buf, findings)
	if !strings.Contains(buf.String(), "... 3 more") {
		t.Errorf("no truncation line:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), fmt.Sprintf("mismatch %d", maxFindings)) {
		t.Error("finding past the limit was listed")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")
	data, err := json.Marshal(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Summary.Status != pipeline.StatusWarning || len(res.Document.Pages) != 2 || len(res.Findings) != 2 {
		t.Errorf("Load() = %+v", res.Summary)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"findings": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Load() accepted a result without a document")
	}
}
