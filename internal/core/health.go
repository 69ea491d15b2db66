package core

import (
	"fmt"
	"sort"
	"strings"

	"finquery/internal/store"
	"finquery/internal/utils"
)

// HealthReport is a 0-100 financial health score built from weighted
// component scores, with a letter grade and plain-language commentary.
type HealthReport struct {
	Score      float64          `json:"score"`
	Grade      string           `json:"grade"`
	Components []ComponentScore `json:"components"`
	Insights   []string         `json:"insights"`
	Tips       []string         `json:"tips"`
}

type ComponentScore struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

var debtKeywords = []string{"loan", "credit card", "mortgage", "debt", "interest"}
var savingsKeywords = []string{"savings", "emergency", "fund", "investment"}

// ScoreHealth computes the health report from the transaction history alone.
func ScoreHealth(txs []store.Transaction) HealthReport {
	components := []ComponentScore{
		{Name: "savings_rate", Score: scoreSavingsRate(txs), Weight: 0.25},
		{Name: "spending_consistency", Score: scoreSpendingConsistency(txs), Weight: 0.20},
		{Name: "category_balance", Score: scoreCategoryBalance(txs), Weight: 0.15},
		{Name: "debt_management", Score: scoreDebtManagement(txs), Weight: 0.15},
		{Name: "income_stability", Score: scoreIncomeStability(txs), Weight: 0.15},
		{Name: "emergency_fund", Score: scoreEmergencyFund(txs), Weight: 0.10},
	}

	var total float64
	for _, c := range components {
		total += c.Score * c.Weight
	}

	return HealthReport{
		Score:      total,
		Grade:      healthGrade(total),
		Components: components,
		Insights:   healthInsights(txs, components),
		Tips:       healthTips(components),
	}
}

func healthGrade(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 85:
		return "A"
	case score >= 80:
		return "B+"
	case score >= 75:
		return "B"
	case score >= 70:
		return "C+"
	case score >= 65:
		return "C"
	case score >= 60:
		return "D+"
	case score >= 55:
		return "D"
	default:
		return "F"
	}
}

// monthlyNet returns per-month income and expense magnitudes keyed by
// chronological "2006-01" label.
func monthlyNet(txs []store.Transaction) (months []string, income, expenses []float64) {
	type net struct{ income, expenses float64 }
	byMonth := make(map[string]*net)
	for _, t := range txs {
		key := t.Date.Format("2006-01")
		n, ok := byMonth[key]
		if !ok {
			n = &net{}
			byMonth[key] = n
		}
		if t.Amount.IsNegative() {
			n.expenses += t.Amount.Abs().InexactFloat64()
		} else {
			n.income += t.Amount.InexactFloat64()
		}
	}
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		income = append(income, byMonth[m].income)
		expenses = append(expenses, byMonth[m].expenses)
	}
	return months, income, expenses
}

func scoreSavingsRate(txs []store.Transaction) float64 {
	_, income, expenses := monthlyNet(txs)

	var rates []float64
	for i := range income {
		if income[i] > 0 {
			rate := (income[i] - expenses[i]) / income[i] * 100
			if rate < 0 {
				rate = 0
			}
			rates = append(rates, rate)
		}
	}
	if len(rates) == 0 {
		return 50
	}

	avg := utils.Mean(rates)
	switch {
	case avg >= 20:
		return 100
	case avg >= 15:
		return 85
	case avg >= 10:
		return 70
	case avg >= 5:
		return 55
	case avg >= 0:
		return 40
	default:
		return 20
	}
}

func scoreSpendingConsistency(txs []store.Transaction) float64 {
	_, totals := monthlySeries(txs, isExpense)
	if len(totals) < 2 {
		return 75
	}
	mean := utils.Mean(totals)
	if mean == 0 {
		return 75
	}
	cv := utils.StdDev(totals) / mean
	switch {
	case cv <= 0.1:
		return 100
	case cv <= 0.2:
		return 85
	case cv <= 0.3:
		return 70
	case cv <= 0.5:
		return 55
	default:
		return 40
	}
}

var recommendedShares = map[string]float64{
	"Food & Dining":     0.15,
	"Transportation":    0.15,
	"Bills & Utilities": 0.25,
	"Entertainment":     0.05,
	"Shopping":          0.10,
	"Health & Medical":  0.05,
}

func scoreCategoryBalance(txs []store.Transaction) float64 {
	byCategory := make(map[string]float64)
	var total float64
	for _, t := range txs {
		if isExpense(t) {
			amount := t.Amount.Abs().InexactFloat64()
			byCategory[t.Category] += amount
			total += amount
		}
	}
	if total == 0 {
		return 70
	}

	score := 100.0
	for category, recommended := range recommendedShares {
		actual, ok := byCategory[category]
		if !ok {
			continue
		}
		deviation := actual/total - recommended
		if deviation < 0 {
			deviation = -deviation
		}
		penalty := deviation * 200
		if penalty > 30 {
			penalty = 30
		}
		score -= penalty
	}
	if score < 40 {
		score = 40
	}
	return score
}

func matchesKeyword(description string, keywords []string) bool {
	lowered := strings.ToLower(description)
	for _, k := range keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}

func scoreDebtManagement(txs []store.Transaction) float64 {
	var debt, total float64
	for _, t := range txs {
		if !isExpense(t) {
			continue
		}
		amount := t.Amount.Abs().InexactFloat64()
		total += amount
		if matchesKeyword(t.Description, debtKeywords) {
			debt += amount
		}
	}
	if total == 0 {
		return 80
	}
	ratio := debt / total
	switch {
	case ratio <= 0.1:
		return 100
	case ratio <= 0.2:
		return 85
	case ratio <= 0.3:
		return 70
	case ratio <= 0.4:
		return 55
	default:
		return 40
	}
}

func scoreIncomeStability(txs []store.Transaction) float64 {
	_, income, _ := monthlyNet(txs)

	var nonZero []float64
	for _, v := range income {
		if v > 0 {
			nonZero = append(nonZero, v)
		}
	}
	if len(nonZero) < 2 {
		return 75
	}
	mean := utils.Mean(nonZero)
	if mean == 0 {
		return 75
	}
	cv := utils.StdDev(nonZero) / mean
	switch {
	case cv <= 0.05:
		return 100
	case cv <= 0.1:
		return 85
	case cv <= 0.2:
		return 70
	case cv <= 0.3:
		return 55
	default:
		return 40
	}
}

func scoreEmergencyFund(txs []store.Transaction) float64 {
	var saved float64
	for _, t := range txs {
		if !t.Amount.IsNegative() && matchesKeyword(t.Description, savingsKeywords) {
			saved += t.Amount.InexactFloat64()
		}
	}

	_, totals := monthlySeries(txs, isExpense)
	monthlyExpenses := utils.Mean(totals)
	if monthlyExpenses == 0 {
		return 70
	}

	monthsCovered := saved / monthlyExpenses
	switch {
	case monthsCovered >= 6:
		return 100
	case monthsCovered >= 3:
		return 80
	case monthsCovered >= 1:
		return 60
	case monthsCovered >= 0.5:
		return 40
	default:
		return 20
	}
}

func healthInsights(txs []store.Transaction, components []ComponentScore) []string {
	var insights []string

	strongest, weakest := components[0], components[0]
	for _, c := range components[1:] {
		if c.Score > strongest.Score {
			strongest = c
		}
		if c.Score < weakest.Score {
			weakest = c
		}
	}
	insights = append(insights,
		fmt.Sprintf("Strongest area: %s (%.0f/100).", componentLabel(strongest.Name), strongest.Score),
		fmt.Sprintf("Weakest area: %s (%.0f/100).", componentLabel(weakest.Name), weakest.Score),
	)

	byCategory := make(map[string]float64)
	for _, t := range txs {
		if isExpense(t) && t.Category != "" {
			byCategory[t.Category] += t.Amount.Abs().InexactFloat64()
		}
	}
	var topCategory string
	var topAmount float64
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		if byCategory[c] > topAmount {
			topCategory, topAmount = c, byCategory[c]
		}
	}
	if topCategory != "" {
		insights = append(insights, fmt.Sprintf("Largest expense category: %s ($%.2f).", topCategory, topAmount))
	}

	months, totals := monthlySeries(txs, isExpense)
	if len(months) >= 2 {
		first, last := totals[0], totals[len(totals)-1]
		direction := "decreased"
		if last > first {
			direction = "increased"
		}
		insights = append(insights, fmt.Sprintf("Monthly spending %s from $%.2f (%s) to $%.2f (%s).",
			direction, first, months[0], last, months[len(months)-1]))
	}

	return insights
}

var componentTips = map[string]string{
	"savings_rate":         "Aim to save at least 20% of monthly income.",
	"spending_consistency": "Smooth out month-to-month spending swings with a monthly budget.",
	"category_balance":     "Rebalance spending toward recommended category shares.",
	"debt_management":      "Reduce loan and credit card payments below 10% of expenses.",
	"income_stability":     "Diversify income sources to reduce month-to-month variation.",
	"emergency_fund":       "Build an emergency fund covering 3-6 months of expenses.",
}

func componentLabel(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func healthTips(components []ComponentScore) []string {
	var tips []string
	for _, c := range components {
		if c.Score < 70 {
			tips = append(tips, componentTips[c.Name])
		}
	}
	if len(tips) == 0 {
		tips = append(tips, "All areas look strong. Keep up the current habits.")
	}
	return tips
}
