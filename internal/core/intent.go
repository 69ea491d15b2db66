package core

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IntentKind tags what data a question needs.
type IntentKind string

const (
	IntentAggregate IntentKind = "AGGREGATE"
	IntentSemantic  IntentKind = "SEMANTIC"
	IntentHybrid    IntentKind = "HYBRID"
)

// AggregationKind is the statistic an AGGREGATE or HYBRID question asks for.
type AggregationKind string

const (
	AggSum     AggregationKind = "SUM"
	AggCount   AggregationKind = "COUNT"
	AggAverage AggregationKind = "AVERAGE"
	AggTrend   AggregationKind = "TREND"
)

// QueryIntent is the derived, transient analysis of one question. It is never
// persisted and is recomputed per question.
type QueryIntent struct {
	Kind         IntentKind      `json:"kind"`
	Aggregation  AggregationKind `json:"aggregation,omitempty"`
	Filters      Filters         `json:"filters"`
	SemanticText string          `json:"semantic_text,omitempty"`
}

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var (
	monthYearRe   = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	bareYearRe    = regexp.MustCompile(`\b(?:in|during|for)\s+(20\d{2})\b`)
	betweenAmtRe  = regexp.MustCompile(`\bbetween\s+\$?(\d+(?:\.\d{1,2})?)\s+and\s+\$?(\d+(?:\.\d{1,2})?)\b`)
	overAmtRe     = regexp.MustCompile(`\b(?:over|above|more than|greater than|at least)\s+\$?(\d+(?:\.\d{1,2})?)\b`)
	underAmtRe    = regexp.MustCompile(`\b(?:under|below|less than|at most|cheaper than)\s+\$?(\d+(?:\.\d{1,2})?)\b`)
	nonLetterRe   = regexp.MustCompile(`[^a-z0-9]+`)
)

// relativePeriods maps fixed phrases to date-range builders anchored on "now".
var relativePeriods = []struct {
	phrase string
	build  func(now time.Time) (time.Time, time.Time)
}{
	{"last month", func(now time.Time) (time.Time, time.Time) {
		firstOfThis := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return firstOfThis.AddDate(0, -1, 0), firstOfThis.Add(-time.Second)
	}},
	{"this month", func(now time.Time) (time.Time, time.Time) {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), now
	}},
	{"last year", func(now time.Time) (time.Time, time.Time) {
		return time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, now.Location()),
			time.Date(now.Year()-1, 12, 31, 23, 59, 59, 0, now.Location())
	}},
	{"this year", func(now time.Time) (time.Time, time.Time) {
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), now
	}},
	{"last 6 months", func(now time.Time) (time.Time, time.Time) {
		return now.AddDate(0, -6, 0), now
	}},
	{"last week", func(now time.Time) (time.Time, time.Time) {
		return now.AddDate(0, 0, -7), now
	}},
}

// aggregationCues are checked in order; the first family with a hit decides
// the statistic. TREND and AVERAGE come before SUM so "average per month"
// does not collapse into a plain total.
var aggregationCues = []struct {
	kind    AggregationKind
	phrases []string
}{
	{AggTrend, []string{"trend", "over time", "per month", "monthly", "pattern", "month by month"}},
	{AggAverage, []string{"average", "avg", "mean", "typical"}},
	{AggCount, []string{"how many", "count", "number of"}},
	{AggSum, []string{"how much", "total", "sum", "spending", "spent", "spend", "cost"}},
}

var semanticCues = []string{
	"similar", "like", "related to", "what did i buy", "what did i purchase",
	"show me", "find", "anything",
}

// residueStopwords are tokens that carry no retrieval signal on their own.
var residueStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "at": true, "did": true, "do": true,
	"during": true, "for": true, "from": true, "how": true, "i": true,
	"in": true, "is": true, "it": true, "many": true, "me": true, "money": true,
	"much": true, "my": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "was": true, "what": true, "when": true, "where": true,
	"which": true, "with": true, "transactions": true, "transaction": true,
	"purchases": true, "expenses": true, "payments": true,
}

// ParseQuestion turns a free-form question into a QueryIntent. It is pure:
// the same question, label set and clock always produce the same intent.
func ParseQuestion(question string, labels []string, now time.Time) QueryIntent {
	working := strings.ToLower(question)
	var intent QueryIntent

	working = extractDateRange(working, now, &intent.Filters)
	working = extractAmountRange(working, &intent.Filters)
	working = extractCategories(working, labels, &intent.Filters)

	hasAggregate := false
	for _, family := range aggregationCues {
		for _, phrase := range family.phrases {
			if strings.Contains(working, phrase) {
				if !hasAggregate {
					intent.Aggregation = family.kind
					hasAggregate = true
				}
				working = strings.ReplaceAll(working, phrase, " ")
			}
		}
	}

	hasSemanticCue := false
	for _, cue := range semanticCues {
		if strings.Contains(working, cue) {
			hasSemanticCue = true
			working = strings.ReplaceAll(working, cue, " ")
		}
	}

	residue := residualTokens(working)
	intent.SemanticText = strings.Join(residue, " ")

	switch {
	case hasAggregate && len(residue) == 0:
		intent.Kind = IntentAggregate
	case !hasAggregate && hasSemanticCue:
		intent.Kind = IntentSemantic
	default:
		// Ambiguous questions gather more context, not less.
		intent.Kind = IntentHybrid
	}
	if !hasAggregate {
		intent.Aggregation = AggSum
	}
	return intent
}

func extractDateRange(working string, now time.Time, f *Filters) string {
	if m := monthYearRe.FindStringSubmatch(working); m != nil {
		month := monthsByName[m[1]]
		year := atoiSafe(m[2])
		from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 1, 0).Add(-time.Second)
		f.DateFrom, f.DateTo = &from, &to
		return monthYearRe.ReplaceAllString(working, " ")
	}

	for _, p := range relativePeriods {
		if strings.Contains(working, p.phrase) {
			from, to := p.build(now)
			f.DateFrom, f.DateTo = &from, &to
			return strings.ReplaceAll(working, p.phrase, " ")
		}
	}

	if m := bareYearRe.FindStringSubmatch(working); m != nil {
		year := atoiSafe(m[1])
		from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(year, 12, 31, 23, 59, 59, 0, time.UTC)
		f.DateFrom, f.DateTo = &from, &to
		return bareYearRe.ReplaceAllString(working, " ")
	}
	return working
}

func extractAmountRange(working string, f *Filters) string {
	if m := betweenAmtRe.FindStringSubmatch(working); m != nil {
		lo, err1 := decimal.NewFromString(m[1])
		hi, err2 := decimal.NewFromString(m[2])
		if err1 == nil && err2 == nil {
			if lo.GreaterThan(hi) {
				lo, hi = hi, lo
			}
			f.AmountMin, f.AmountMax = &lo, &hi
		}
		return betweenAmtRe.ReplaceAllString(working, " ")
	}
	if m := overAmtRe.FindStringSubmatch(working); m != nil {
		if lo, err := decimal.NewFromString(m[1]); err == nil {
			f.AmountMin = &lo
		}
		working = overAmtRe.ReplaceAllString(working, " ")
	}
	if m := underAmtRe.FindStringSubmatch(working); m != nil {
		if hi, err := decimal.NewFromString(m[1]); err == nil {
			f.AmountMax = &hi
		}
		working = underAmtRe.ReplaceAllString(working, " ")
	}
	return working
}

// extractCategories matches label names word-by-word, so "dining" selects
// "Food & Dining" without requiring the full label in the question.
func extractCategories(working string, labels []string, f *Filters) string {
	queryTokens := make(map[string]bool)
	for _, tok := range tokenize(working) {
		queryTokens[tok] = true
	}

	for _, label := range labels {
		lowered := strings.ToLower(label)
		if strings.Contains(working, lowered) {
			f.Categories = append(f.Categories, label)
			working = strings.ReplaceAll(working, lowered, " ")
			continue
		}
		for _, tok := range tokenize(lowered) {
			if len(tok) < 4 {
				continue
			}
			if queryTokens[tok] {
				f.Categories = append(f.Categories, label)
				working = strings.ReplaceAll(working, tok, " ")
				break
			}
		}
	}
	return working
}

func residualTokens(working string) []string {
	var residue []string
	for _, tok := range tokenize(working) {
		if residueStopwords[tok] {
			continue
		}
		residue = append(residue, tok)
	}
	return residue
}

func tokenize(s string) []string {
	var tokens []string
	for _, tok := range nonLetterRe.Split(s, -1) {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
