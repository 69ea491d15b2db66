package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// keywordRule maps category-indicative substrings to a label. Rules are
// ordered; the first category with a matching keyword wins, which keeps the
// fallback deterministic.
type keywordRule struct {
	Category string
	Keywords []string
}

var keywordRules = []keywordRule{
	{"Food & Dining", []string{
		"restaurant", "cafe", "food", "dining", "pizza", "burger", "starbucks",
		"mcdonald", "subway", "grocery", "market", "supermarket", "uber eats",
		"doordash", "grubhub", "delivery", "takeout",
	}},
	{"Transportation", []string{
		"gas", "fuel", "uber", "lyft", "taxi", "bus", "train", "metro",
		"parking", "toll", "car", "vehicle", "auto", "mechanic", "tire",
	}},
	{"Shopping", []string{
		"amazon", "walmart", "target", "mall", "store", "retail", "clothing",
		"shoes", "electronics", "books", "home depot", "lowes",
	}},
	{"Bills & Utilities", []string{
		"electric", "electricity", "gas bill", "water", "internet", "phone",
		"cable", "subscription", "netflix", "spotify", "utility", "bill",
	}},
	{"Entertainment", []string{
		"movie", "cinema", "theater", "concert", "game", "sport", "gym",
		"fitness", "entertainment", "club", "bar",
	}},
	{"Health & Medical", []string{
		"doctor", "hospital", "pharmacy", "medical", "health", "dental",
		"vision", "clinic", "prescription", "medicine", "cvs", "walgreens",
	}},
	{"Travel", []string{
		"airline", "flight", "hotel", "airbnb", "rental car", "vacation",
		"travel", "booking", "expedia", "trip", "resort",
	}},
	{"Education", []string{
		"school", "university", "college", "tuition", "education", "book",
		"course", "training", "certification",
	}},
	{"Insurance", []string{
		"insurance", "premium", "policy", "coverage", "deductible",
	}},
	{"Investment", []string{
		"investment", "stock", "bond", "mutual fund", "401k", "ira",
		"retirement", "savings", "dividend", "brokerage",
	}},
	{"Income", []string{
		"salary", "payroll", "wage", "bonus", "refund", "cashback",
		"deposit", "payment received", "income",
	}},
	{"Transfer", []string{
		"transfer", "atm", "withdrawal", "deposit", "check", "wire",
		"payment to", "send money",
	}},
}

// incomeKeywords short-circuit positive amounts to "Income" before the
// ordered scan, so a payroll deposit never lands in "Transfer".
var incomeKeywords = []string{"salary", "payroll", "deposit", "refund", "cashback", "dividend"}

// matchKeywords is the pure, deterministic rule fallback: same description and
// amount always produce the same label.
func matchKeywords(description string, amount decimal.Decimal) (string, bool) {
	desc := strings.ToLower(strings.TrimSpace(description))
	if desc == "" {
		return "", false
	}

	if amount.IsPositive() {
		for _, kw := range incomeKeywords {
			if strings.Contains(desc, kw) {
				return "Income", true
			}
		}
	}

	for _, rule := range keywordRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(desc, kw) {
				return rule.Category, true
			}
		}
	}
	return "", false
}
