package core

import (
	"fmt"
	"sort"
	"time"

	"finquery/internal/store"
	"finquery/internal/utils"
)

// Alert thresholds. Spending above these multiples of the historical baseline
// raises an alert.
const (
	spikeThreshold     = 1.5 // current month vs historical monthly average
	overspendThreshold = 1.3 // current month vs category's monthly average
	unusualZScore      = 2.0 // transaction size vs typical, in std deviations

	recurringMinCount   = 3    // occurrences before a description counts as recurring
	recurringAmountStd  = 10.0 // max amount variation for a recurring expense
	recurringOverdueDay = 35   // days without the expense before alerting

	trendSlopeShare = 0.1 // monthly increase as a share of average spend

	maxAlerts = 10
)

type Alert struct {
	Type          string  `json:"type"`
	Severity      string  `json:"severity"` // "high", "medium" or "low"
	Message       string  `json:"message"`
	Category      string  `json:"category,omitempty"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
}

// AlertsSummary counts alerts by severity and type.
type AlertsSummary struct {
	Total  int            `json:"total"`
	High   int            `json:"high"`
	Medium int            `json:"medium"`
	Low    int            `json:"low"`
	ByType map[string]int `json:"by_type"`
}

var alertPriorities = map[string]int{
	"spending_spike":      9,
	"unusual_transaction": 7,
	"category_overspend":  6,
	"upward_trend":        5,
	"missing_recurring":   3,
}

// GenerateAlerts scans the transaction set for spending anomalies anchored on
// "now" and returns at most maxAlerts, highest priority first. Purely
// computed; no model is involved.
func GenerateAlerts(txs []store.Transaction, now time.Time) []Alert {
	currentMonth := now.Format("2006-01")

	var alerts []Alert
	alerts = append(alerts, spendingSpikeAlerts(txs, currentMonth)...)
	alerts = append(alerts, unusualTransactionAlerts(txs, currentMonth)...)
	alerts = append(alerts, categoryOverspendAlerts(txs, currentMonth)...)
	alerts = append(alerts, trendAlerts(txs)...)
	alerts = append(alerts, missingRecurringAlerts(txs, now)...)

	sort.SliceStable(alerts, func(i, j int) bool {
		return alertPriorities[alerts[i].Type] > alertPriorities[alerts[j].Type]
	})
	if len(alerts) > maxAlerts {
		alerts = alerts[:maxAlerts]
	}
	return alerts
}

func SummarizeAlerts(alerts []Alert) AlertsSummary {
	summary := AlertsSummary{Total: len(alerts), ByType: make(map[string]int)}
	for _, a := range alerts {
		switch a.Severity {
		case "high":
			summary.High++
		case "medium":
			summary.Medium++
		case "low":
			summary.Low++
		}
		summary.ByType[a.Type]++
	}
	return summary
}

// monthlySeries returns chronologically ordered "2006-01" keys and the summed
// magnitudes of the transactions passing keep.
func monthlySeries(txs []store.Transaction, keep func(store.Transaction) bool) ([]string, []float64) {
	byMonth := make(map[string]float64)
	for _, t := range txs {
		if !keep(t) {
			continue
		}
		key := t.Date.Format("2006-01")
		byMonth[key] += t.Amount.Abs().InexactFloat64()
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	totals := make([]float64, len(months))
	for i, m := range months {
		totals[i] = byMonth[m]
	}
	return months, totals
}

func isExpense(t store.Transaction) bool { return t.Amount.IsNegative() }

func spendingSpikeAlerts(txs []store.Transaction, currentMonth string) []Alert {
	months, totals := monthlySeries(txs, isExpense)
	if len(months) < 2 {
		return nil
	}

	var historical []float64
	var current float64
	for i, m := range months {
		if m == currentMonth {
			current = totals[i]
		} else {
			historical = append(historical, totals[i])
		}
	}
	if len(historical) == 0 || current == 0 {
		return nil
	}

	avg := utils.Mean(historical)
	if avg == 0 || current <= avg*spikeThreshold {
		return nil
	}

	increase := (current - avg) / avg * 100
	severity := "medium"
	if increase > 100 {
		severity = "high"
	}
	return []Alert{{
		Type:     "spending_spike",
		Severity: severity,
		Message:  fmt.Sprintf("Spending spike: this month's spending is %.1f%% above your monthly average.", increase),
		Amount:   current,
	}}
}

func unusualTransactionAlerts(txs []store.Transaction, currentMonth string) []Alert {
	var sizes []float64
	for _, t := range txs {
		if isExpense(t) {
			sizes = append(sizes, t.Amount.Abs().InexactFloat64())
		}
	}
	mean := utils.Mean(sizes)
	std := utils.StdDev(sizes)
	if std == 0 {
		return nil
	}

	var alerts []Alert
	for _, t := range txs {
		if !isExpense(t) || t.Date.Format("2006-01") != currentMonth {
			continue
		}
		amount := t.Amount.Abs().InexactFloat64()
		z := (amount - mean) / std
		if z > unusualZScore {
			alerts = append(alerts, Alert{
				Type:          "unusual_transaction",
				Severity:      "medium",
				Message:       fmt.Sprintf("Unusual transaction: $%.2f at %s (%.1f standard deviations above typical).", amount, t.Description, z),
				TransactionID: t.ID,
				Amount:        amount,
			})
		}
	}
	return alerts
}

func categoryOverspendAlerts(txs []store.Transaction, currentMonth string) []Alert {
	byCategory := make(map[string][]store.Transaction)
	for _, t := range txs {
		if isExpense(t) && t.Category != "" {
			byCategory[t.Category] = append(byCategory[t.Category], t)
		}
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var alerts []Alert
	for _, category := range categories {
		months, totals := monthlySeries(byCategory[category], isExpense)
		var current float64
		for i, m := range months {
			if m == currentMonth {
				current = totals[i]
			}
		}
		avg := utils.Mean(totals)
		if avg == 0 || current <= avg*overspendThreshold {
			continue
		}
		increase := (current - avg) / avg * 100
		alerts = append(alerts, Alert{
			Type:     "category_overspend",
			Severity: "medium",
			Message:  fmt.Sprintf("%s spending is %.1f%% above its monthly average.", category, increase),
			Category: category,
			Amount:   current,
		})
	}
	return alerts
}

func trendAlerts(txs []store.Transaction) []Alert {
	months, totals := monthlySeries(txs, isExpense)
	if len(months) < 3 {
		return nil
	}

	slope, _ := utils.LinearTrend(totals)
	if slope <= utils.Mean(totals)*trendSlopeShare {
		return nil
	}
	return []Alert{{
		Type:     "upward_trend",
		Severity: "medium",
		Message:  fmt.Sprintf("Spending has been increasing by $%.2f per month over the last %d months.", slope, len(months)),
		Amount:   slope,
	}}
}

// missingRecurringAlerts flags descriptions that appeared regularly with a
// stable amount but have not been seen for over a month.
func missingRecurringAlerts(txs []store.Transaction, now time.Time) []Alert {
	type group struct {
		amounts []float64
		last    time.Time
	}
	byDescription := make(map[string]*group)
	for _, t := range txs {
		g, ok := byDescription[t.Description]
		if !ok {
			g = &group{}
			byDescription[t.Description] = g
		}
		g.amounts = append(g.amounts, t.Amount.InexactFloat64())
		if t.Date.After(g.last) {
			g.last = t.Date
		}
	}

	descriptions := make([]string, 0, len(byDescription))
	for d := range byDescription {
		descriptions = append(descriptions, d)
	}
	sort.Strings(descriptions)

	var alerts []Alert
	for _, description := range descriptions {
		g := byDescription[description]
		if len(g.amounts) < recurringMinCount || utils.StdDev(g.amounts) >= recurringAmountStd {
			continue
		}
		daysSince := int(now.Sub(g.last).Hours() / 24)
		if daysSince > recurringOverdueDay {
			alerts = append(alerts, Alert{
				Type:     "missing_recurring",
				Severity: "low",
				Message:  fmt.Sprintf("Recurring expense %q last seen %d days ago.", description, daysSince),
			})
		}
	}
	return alerts
}
