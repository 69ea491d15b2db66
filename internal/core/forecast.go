package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"finquery/internal/store"
	"finquery/internal/utils"
)

// SpendingForecast projects total monthly spending forward from the
// historical trend, with a rough confidence figure based on how regular the
// history is.
type SpendingForecast struct {
	Months         []MonthForecast `json:"months"`
	TrendDirection string          `json:"trend_direction"`
	MonthlyChange  decimal.Decimal `json:"monthly_change"`
	Confidence     float64         `json:"confidence"`
}

type MonthForecast struct {
	Month     string          `json:"month"`
	Predicted decimal.Decimal `json:"predicted"`
}

type CategoryForecast struct {
	Category   string          `json:"category"`
	Predicted  decimal.Decimal `json:"predicted"`
	Trend      string          `json:"trend"`
	Confidence float64         `json:"confidence"`
}

// seasonalFactors scale predictions by calendar month. Applied only when a
// full year of history exists.
var seasonalFactors = map[time.Month]float64{
	time.January: 0.9, time.February: 0.95, time.March: 1.0,
	time.April: 1.05, time.May: 1.0, time.June: 1.1,
	time.July: 1.15, time.August: 1.1, time.September: 1.0,
	time.October: 1.05, time.November: 1.2, time.December: 1.3,
}

// ForecastSpending predicts total spending for the next monthsAhead months.
// With fewer than two months of history there is nothing to extrapolate and a
// flat, low-confidence forecast is returned.
func ForecastSpending(txs []store.Transaction, monthsAhead int, now time.Time) SpendingForecast {
	months, totals := monthlySeries(txs, isExpense)
	if len(months) < 2 {
		return SpendingForecast{TrendDirection: "stable", MonthlyChange: decimal.Zero, Confidence: 50}
	}

	slope, intercept := utils.LinearTrend(totals)
	useSeasonal := len(months) >= 12

	lastMonth, err := time.Parse("2006-01", months[len(months)-1])
	if err != nil {
		lastMonth = now
	}

	forecast := SpendingForecast{
		TrendDirection: "decreasing",
		MonthlyChange:  decimal.NewFromFloat(slope).Abs().Round(2),
		Confidence:     forecastConfidence(totals),
	}
	if slope > 0 {
		forecast.TrendDirection = "increasing"
	}

	n := len(totals)
	for i := 1; i <= monthsAhead; i++ {
		predicted := slope*float64(n-1+i) + intercept
		month := lastMonth.AddDate(0, i, 0)
		if useSeasonal {
			predicted *= seasonalFactors[month.Month()]
		}
		if predicted < 0 {
			predicted = 0
		}
		forecast.Months = append(forecast.Months, MonthForecast{
			Month:     month.Format("2006-01"),
			Predicted: decimal.NewFromFloat(predicted).Round(2),
		})
	}
	return forecast
}

func forecastConfidence(totals []float64) float64 {
	if len(totals) < 3 {
		return 60
	}
	mean := utils.Mean(totals)
	if mean == 0 {
		return 50
	}
	cv := utils.StdDev(totals) / mean
	switch {
	case cv < 0.1:
		return 90
	case cv < 0.2:
		return 80
	case cv < 0.3:
		return 70
	default:
		return 60
	}
}

// ForecastCategories predicts next month's spend per category from each
// category's own trend. Categories with under two months of history are
// skipped.
func ForecastCategories(txs []store.Transaction) []CategoryForecast {
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

	var forecasts []CategoryForecast
	for _, category := range categories {
		months, totals := monthlySeries(byCategory[category], isExpense)
		if len(months) < 2 {
			continue
		}
		slope, _ := utils.LinearTrend(totals)
		last := totals[len(totals)-1]

		predicted := last + slope
		if predicted < 0 {
			predicted = 0
		}

		trend := "stable"
		if slope > 0 {
			trend = "increasing"
		} else if slope < 0 {
			trend = "decreasing"
		}

		confidence := 50.0
		if last > 0 {
			confidence = 100 - (abs(slope)/last)*100
			if confidence < 50 {
				confidence = 50
			}
			if confidence > 100 {
				confidence = 100
			}
		}

		forecasts = append(forecasts, CategoryForecast{
			Category:   category,
			Predicted:  decimal.NewFromFloat(predicted).Round(2),
			Trend:      trend,
			Confidence: confidence,
		})
	}
	return forecasts
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
