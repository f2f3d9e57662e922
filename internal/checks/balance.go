package checks

import (
	"math"

	"finscan/pkg/models"
)

var (
	assetsTotals = []string{"vastaavaa yhteensä", "vastaavaa yht", "yhteensä vastaavaa", "total assets", "assets total"}

	// rows that close the whole liabilities side, equity included
	equityAndLiabilitiesTotals = []string{"vastattavaa yhteensä", "vastattavaa yht", "yhteensä vastattavaa", "equity and liabilities", "liabilities and equity", "liabilities and shareholders"}

	// liabilities-only subtotals, used when no combined row exists
	liabilitiesTotals = []string{"total liabilities", "liabilities total"}
)

// Balance verifies that the assets total equals the liabilities and equity
// total on balance sheet pages. Amount columns are compared pairwise, so a
// current and a prior year column are both checked.
type Balance struct {
	tolerance float64
	relative  float64
}

// NewBalance creates the balance equation checker
func NewBalance(cfg Config) *Balance {
	cfg = cfg.WithDefaults()
	return &Balance{tolerance: cfg.BalanceTolerance, relative: cfg.BalanceRelative}
}

func (b *Balance) Name() string { return "balance_equation" }

type sideTotal struct {
	id     string
	values []amount
}

func (b *Balance) Check(doc *models.Document) []models.Finding {
	var findings []models.Finding
	for i := range doc.Pages {
		p := &doc.Pages[i]
		pageIsBalance := p.Section == string(models.FinBalanceSheet)

		var assets, liabilities, liabilitiesOnly *sideTotal
		for _, el := range p.Tables() {
			if !pageIsBalance && el.FinancialType != models.FinBalanceSheet {
				continue
			}
			for _, r := range tableRows(el) {
				if len(r.values) == 0 {
					continue
				}
				switch {
				case assets == nil && containsAny(r.label, assetsTotals):
					assets = &sideTotal{id: el.ID, values: r.values}
				case liabilities == nil && containsAny(r.label, equityAndLiabilitiesTotals):
					liabilities = &sideTotal{id: el.ID, values: r.values}
				case liabilitiesOnly == nil && containsAny(r.label, liabilitiesTotals):
					liabilitiesOnly = &sideTotal{id: el.ID, values: r.values}
				}
			}
		}
		if liabilities == nil {
			liabilities = liabilitiesOnly
		}
		if assets == nil || liabilities == nil {
			continue
		}

		for k := range min(len(assets.values), len(liabilities.values)) {
			a, l := assets.values[k].value, liabilities.values[k].value
			delta := math.Abs(a - l)
			tol := max(b.tolerance, b.relative*max(math.Abs(a), math.Abs(l)))
			if delta <= tol {
				continue
			}
			sev := models.SeverityWarning
			if delta >= 10*tol {
				sev = models.SeverityError
			}
			findings = append(findings, models.NewPageFinding(b.Name(), sev, p.Index,
				"balance mismatch: assets %s, liabilities and equity %s, delta %s",
				formatAmount(a), formatAmount(l), formatAmount(delta)).OnElement(liabilities.id))
		}
	}
	return findings
}
