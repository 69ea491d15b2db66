package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finquery/internal/store"
)

// Filters are the structured constraints extracted from a question. They are
// applied both to the transaction table (aggregation) and as the metadata
// pre-filter of the vector index. Amount bounds compare against the absolute
// value, so "over $50" matches a -75.00 expense.
type Filters struct {
	DateFrom   *time.Time       `json:"date_from,omitempty"`
	DateTo     *time.Time       `json:"date_to,omitempty"`
	Categories []string         `json:"categories,omitempty"`
	AmountMin  *decimal.Decimal `json:"amount_min,omitempty"`
	AmountMax  *decimal.Decimal `json:"amount_max,omitempty"`
}

func (f Filters) IsZero() bool {
	return f.DateFrom == nil && f.DateTo == nil && len(f.Categories) == 0 &&
		f.AmountMin == nil && f.AmountMax == nil
}

// Match reports whether a transaction's metadata satisfies every constraint.
func (f Filters) Match(date time.Time, category string, amount decimal.Decimal) bool {
	if f.DateFrom != nil && date.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && date.After(*f.DateTo) {
		return false
	}
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if strings.EqualFold(c, category) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	magnitude := amount.Abs()
	if f.AmountMin != nil && magnitude.LessThan(*f.AmountMin) {
		return false
	}
	if f.AmountMax != nil && magnitude.GreaterThan(*f.AmountMax) {
		return false
	}
	return true
}

// FilterTransactions returns the transactions satisfying the filters, in the
// input order.
func FilterTransactions(txs []store.Transaction, f Filters) []store.Transaction {
	if f.IsZero() {
		return txs
	}
	var matched []store.Transaction
	for _, t := range txs {
		if f.Match(t.Date, t.Category, t.Amount) {
			matched = append(matched, t)
		}
	}
	return matched
}
