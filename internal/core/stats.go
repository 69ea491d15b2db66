package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"finquery/internal/store"
)

// SummaryStats is the read-only dataset overview handed to the UI
// collaborator.
type SummaryStats struct {
	TotalTransactions int             `json:"total_transactions"`
	DateFrom          time.Time       `json:"date_from"`
	DateTo            time.Time       `json:"date_to"`
	TotalDebits       decimal.Decimal `json:"total_debits"` // signed sum of expenses
	TotalCredits      decimal.Decimal `json:"total_credits"`
	Net               decimal.Decimal `json:"net"`
	Average           decimal.Decimal `json:"average_transaction"`
}

// CategoryStat is one label's share of the dataset.
type CategoryStat struct {
	Category string          `json:"category"`
	Count    int             `json:"count"`
	Amount   decimal.Decimal `json:"amount"` // absolute spend/income in this label
	Percent  float64         `json:"percent"`
}

func Summarize(txs []store.Transaction) SummaryStats {
	stats := SummaryStats{TotalTransactions: len(txs)}
	if len(txs) == 0 {
		return stats
	}

	stats.DateFrom, stats.DateTo = txs[0].Date, txs[0].Date
	var total decimal.Decimal
	for _, t := range txs {
		if t.Date.Before(stats.DateFrom) {
			stats.DateFrom = t.Date
		}
		if t.Date.After(stats.DateTo) {
			stats.DateTo = t.Date
		}
		total = total.Add(t.Amount)
		if t.Amount.IsNegative() {
			stats.TotalDebits = stats.TotalDebits.Add(t.Amount)
		} else {
			stats.TotalCredits = stats.TotalCredits.Add(t.Amount)
		}
	}
	stats.Net = total
	stats.Average = total.Div(decimal.NewFromInt(int64(len(txs)))).Round(2)
	return stats
}

// CategoryDistribution reports per-label counts, absolute amounts and the
// share of transactions, sorted by amount descending.
func CategoryDistribution(txs []store.Transaction) []CategoryStat {
	if len(txs) == 0 {
		return nil
	}

	byLabel := make(map[string]*CategoryStat)
	for _, t := range txs {
		stat, ok := byLabel[t.Category]
		if !ok {
			stat = &CategoryStat{Category: t.Category}
			byLabel[t.Category] = stat
		}
		stat.Count++
		stat.Amount = stat.Amount.Add(t.Amount.Abs())
	}

	stats := make([]CategoryStat, 0, len(byLabel))
	for _, stat := range byLabel {
		stat.Percent = float64(stat.Count) / float64(len(txs)) * 100
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		if !stats[i].Amount.Equal(stats[j].Amount) {
			return stats[i].Amount.GreaterThan(stats[j].Amount)
		}
		return stats[i].Category < stats[j].Category
	})
	return stats
}
