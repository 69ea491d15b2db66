package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"finquery/internal/store"
)

// MonthTotal is one month's expense total, used for trend answers.
type MonthTotal struct {
	Month    string          `json:"month"` // "2024-01"
	Expenses decimal.Decimal `json:"expenses"`
}

// AggregateResult is a deterministic statistic over a filtered transaction
// set. No model is involved in producing it.
type AggregateResult struct {
	Kind           AggregationKind `json:"kind"`
	Count          int             `json:"count"`
	TotalExpenses  decimal.Decimal `json:"total_expenses"` // magnitude of all negative amounts
	TotalIncome    decimal.Decimal `json:"total_income"`
	Net            decimal.Decimal `json:"net"`
	Average        decimal.Decimal `json:"average"` // mean magnitude per transaction
	Monthly        []MonthTotal    `json:"monthly,omitempty"`
	TransactionIDs []string        `json:"transaction_ids"`
}

// Aggregate computes the requested statistic over the given transactions.
func Aggregate(txs []store.Transaction, kind AggregationKind) AggregateResult {
	result := AggregateResult{Kind: kind, Count: len(txs)}

	monthly := make(map[string]decimal.Decimal)
	var totalMagnitude decimal.Decimal
	for _, t := range txs {
		result.TransactionIDs = append(result.TransactionIDs, t.ID)
		result.Net = result.Net.Add(t.Amount)
		totalMagnitude = totalMagnitude.Add(t.Amount.Abs())
		if t.Amount.IsNegative() {
			result.TotalExpenses = result.TotalExpenses.Add(t.Amount.Abs())
			key := t.Date.Format("2006-01")
			monthly[key] = monthly[key].Add(t.Amount.Abs())
		} else {
			result.TotalIncome = result.TotalIncome.Add(t.Amount)
		}
	}

	if result.Count > 0 {
		result.Average = totalMagnitude.Div(decimal.NewFromInt(int64(result.Count))).Round(2)
	}

	if kind == AggTrend {
		months := make([]string, 0, len(monthly))
		for m := range monthly {
			months = append(months, m)
		}
		sort.Strings(months)
		for _, m := range months {
			result.Monthly = append(result.Monthly, MonthTotal{Month: m, Expenses: monthly[m]})
		}
	}
	return result
}

// ContextBlock renders the aggregate as grounding-context text.
func (r AggregateResult) ContextBlock() string {
	var sb strings.Builder
	sb.WriteString("Computed summary:\n")
	fmt.Fprintf(&sb, "- Number of transactions: %d\n", r.Count)
	fmt.Fprintf(&sb, "- Total expenses: $%s\n", r.TotalExpenses.StringFixed(2))
	fmt.Fprintf(&sb, "- Total income: $%s\n", r.TotalIncome.StringFixed(2))
	fmt.Fprintf(&sb, "- Net: $%s\n", r.Net.StringFixed(2))
	if r.Kind == AggAverage {
		fmt.Fprintf(&sb, "- Average transaction: $%s\n", r.Average.StringFixed(2))
	}
	if r.Kind == AggTrend && len(r.Monthly) > 0 {
		sb.WriteString("Monthly expense trend:\n")
		for _, m := range r.Monthly {
			fmt.Fprintf(&sb, "- %s: $%s\n", m.Month, m.Expenses.StringFixed(2))
		}
		if len(r.Monthly) >= 2 {
			last := r.Monthly[len(r.Monthly)-1].Expenses
			prev := r.Monthly[len(r.Monthly)-2].Expenses
			change := last.Sub(prev)
			direction := "decreasing"
			if change.IsPositive() {
				direction = "increasing"
			}
			fmt.Fprintf(&sb, "Recent trend: %s by $%s\n", direction, change.Abs().StringFixed(2))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FallbackAnswer is the deterministic answer used when the generative model
// is unavailable.
func (r AggregateResult) FallbackAnswer() string {
	switch r.Kind {
	case AggCount:
		return fmt.Sprintf("%d transactions match your question.", r.Count)
	case AggAverage:
		return fmt.Sprintf("The average matching transaction is $%s across %d transactions.", r.Average.StringFixed(2), r.Count)
	case AggTrend:
		if len(r.Monthly) == 0 {
			return "No monthly expense data matches your question."
		}
		parts := make([]string, 0, len(r.Monthly))
		for _, m := range r.Monthly {
			parts = append(parts, fmt.Sprintf("%s: $%s", m.Month, m.Expenses.StringFixed(2)))
		}
		return "Monthly expenses: " + strings.Join(parts, ", ") + "."
	default:
		return fmt.Sprintf("You spent $%s across %d matching transactions.", r.TotalExpenses.StringFixed(2), r.Count)
	}
}
