package finnhub

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/ternarybob/valuescreen/internal/models"
)

// Metric keys read from the metric=all payload. Where Finnhub publishes more
// than one spelling or period, keys are tried in order.
var (
	epsKeys          = []string{"epsBasicExclExtraItemsTTM", "epsTTM", "epsAnnual"}
	bookValueKeys    = []string{"bookValuePerShareAnnual", "bookValuePerShareQuarterly"}
	currentRatioKeys = []string{"currentRatioAnnual", "currentRatioQuarterly"}
	debtEquityKeys   = []string{"longTermDebt/equityAnnual", "longTermDebtToEquityAnnual", "longTermDebt/equityQuarterly"}
	growthKeys       = []string{"epsGrowth5Y"}
	dividendKeys     = []string{"dividendYieldIndicatedAnnual", "currentDividendYieldTTM"}
)

// Fundamentals maps the loosely typed metric map into typed fundamentals.
// Missing, null or non-numeric values stay nil.
func (m *MetricResponse) Fundamentals() models.Fundamentals {
	if m == nil {
		return models.Fundamentals{}
	}
	return models.Fundamentals{
		EPS:                  m.lookup(epsKeys),
		BookValuePerShare:    m.lookup(bookValueKeys),
		CurrentRatio:         m.lookup(currentRatioKeys),
		LongTermDebtToEquity: m.lookup(debtEquityKeys),
		EarningsGrowth5Y:     m.lookup(growthKeys),
		DividendYield:        m.lookup(dividendKeys),
	}
}

// MarketCap returns the metric marketCapitalization in whole units, or 0.
func (m *MetricResponse) MarketCap() float64 {
	if m == nil {
		return 0
	}
	if v := m.lookup([]string{"marketCapitalization"}); v != nil {
		return *v * 1_000_000
	}
	return 0
}

func (m *MetricResponse) lookup(keys []string) *float64 {
	for _, key := range keys {
		raw, ok := m.Metric[key]
		if !ok || raw == nil {
			continue
		}
		if v, ok := toFloat(raw); ok {
			return models.Float(v)
		}
	}
	return nil
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
