package core

import "time"

// BalanceSummary is a derived, non-authoritative snapshot of the two
// ledgers. It is cached by the income container and replaced explicitly,
// never recomputed implicitly.
type BalanceSummary struct {
	TotalIncomeCents  int64     `json:"total_income_cents"`
	TotalExpenseCents int64     `json:"total_expense_cents"`
	NetBalanceCents   int64     `json:"net_balance_cents"`
	SavingsRate       float64   `json:"savings_rate"`
	ComputedAt        time.Time `json:"computed_at"`
}

// ComputeBalanceSummary derives a summary from the current record
// sequences. Savings rate is net balance over total income, zero when
// there is no income.
func ComputeBalanceSummary(incomes []Income, expenses []Expense) BalanceSummary {
	summary := BalanceSummary{ComputedAt: time.Now()}

	for _, in := range incomes {
		summary.TotalIncomeCents += in.AmountCents
	}
	for _, ex := range expenses {
		summary.TotalExpenseCents += ex.AmountCents
	}

	summary.NetBalanceCents = summary.TotalIncomeCents - summary.TotalExpenseCents
	if summary.TotalIncomeCents > 0 {
		summary.SavingsRate = float64(summary.NetBalanceCents) / float64(summary.TotalIncomeCents)
	}

	return summary
}
