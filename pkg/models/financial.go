package models

import "slices"

// FinancialType labels which statement or disclosure section a page or element belongs to
type FinancialType string

const (
	FinBalanceSheet             FinancialType = "balance_sheet"
	FinIncomeStatement          FinancialType = "income_statement"
	FinCashFlowStatement        FinancialType = "cash_flow_statement"
	FinChangesInEquity          FinancialType = "changes_in_equity"
	FinNotes                    FinancialType = "notes"
	FinAccountingPolicies       FinancialType = "accounting_policies"
	FinCommitmentsContingencies FinancialType = "commitments_contingencies"
	FinRelatedParty             FinancialType = "related_party"
	FinAuditorsReport           FinancialType = "auditors_report"
	FinManagementReport         FinancialType = "management_report"
	FinBudgetComparison         FinancialType = "budget_comparison"
	FinPerformanceIndicators    FinancialType = "performance_indicators"
	FinAppendix                 FinancialType = "appendix"
)

// FinancialTypes is the closed taxonomy in canonical order
var FinancialTypes = []FinancialType{
	FinBalanceSheet,
	FinIncomeStatement,
	FinCashFlowStatement,
	FinChangesInEquity,
	FinNotes,
	FinAccountingPolicies,
	FinCommitmentsContingencies,
	FinRelatedParty,
	FinAuditorsReport,
	FinManagementReport,
	FinBudgetComparison,
	FinPerformanceIndicators,
	FinAppendix,
}

// Valid reports whether t belongs to the taxonomy
func (t FinancialType) Valid() bool {
	return slices.Contains(FinancialTypes, t)
}

// Page section labels outside the financial taxonomy
const (
	SectionTOC   = "toc"
	SectionCover = "cover"
)
