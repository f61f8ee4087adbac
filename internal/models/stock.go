package models

import (
	"math"
	"strings"
	"time"
)

// ReportingCurrency is the currency all persisted monetary fields are expressed in.
const ReportingCurrency = "USD"

// SkipReason tags a record that was deliberately excluded from scoring.
type SkipReason string

const (
	SkipNoPriceData       SkipReason = "no_price_data"
	SkipMarketCapTooSmall SkipReason = "market_cap_too_small"
	SkipInvalidMarketCap  SkipReason = "invalid_market_cap"
)

// SkipReasons lists every skip reason in reporting order.
var SkipReasons = []SkipReason{SkipNoPriceData, SkipMarketCapTooSmall, SkipInvalidMarketCap}

// Fundamentals is the per-share and balance-sheet snapshot used for scoring.
// Every field is optional: nil means the provider did not report it.
type Fundamentals struct {
	EPS                  *float64 `json:"eps,omitempty"`
	BookValuePerShare    *float64 `json:"book_value_per_share,omitempty"`
	CurrentRatio         *float64 `json:"current_ratio,omitempty"`
	LongTermDebtToEquity *float64 `json:"long_term_debt_to_equity,omitempty"`
	EarningsGrowth5Y     *float64 `json:"earnings_growth_5y,omitempty"`
	DividendYield        *float64 `json:"dividend_yield,omitempty"`
}

// Float returns a pointer to v, or nil when v is not a finite number.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// value is the single place where an absent fundamental becomes zero.
func value(p *float64) float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0
	}
	return *p
}

func (f Fundamentals) EPSValue() float64               { return value(f.EPS) }
func (f Fundamentals) BookValuePerShareValue() float64 { return value(f.BookValuePerShare) }

// Coverage returns how many of the six fundamentals are present.
func (f Fundamentals) Coverage() int {
	n := 0
	for _, p := range []*float64{f.EPS, f.BookValuePerShare, f.CurrentRatio, f.LongTermDebtToEquity, f.EarningsGrowth5Y, f.DividendYield} {
		if p != nil {
			n++
		}
	}
	return n
}

// Verdict is the buy/sell label derived from the composite scores.
type Verdict string

const (
	VerdictStrongBuy  Verdict = "Strong Buy"
	VerdictBuy        Verdict = "Buy"
	VerdictHold       Verdict = "Hold"
	VerdictSell       Verdict = "Sell"
	VerdictStrongSell Verdict = "Strong Sell"
)

// Metrics holds everything derived by the scoring engine.
type Metrics struct {
	FairValue      float64 `json:"fair_value"`
	MarginOfSafety float64 `json:"margin_of_safety"`
	SafetyScore    float64 `json:"safety_score"`
	ValueScore     float64 `json:"value_score"`
	PERatio        float64 `json:"pe_ratio"`
	PBRatio        float64 `json:"pb_ratio"`
	Coverage       int     `json:"coverage"`
	Verdict        Verdict `json:"verdict"`
}

// Conversion is the outcome of normalizing listing-currency figures.
type Conversion struct {
	Price             float64 `json:"price"`
	MarketCap         float64 `json:"market_cap"`
	Rate              float64 `json:"rate"`
	ListingCurrency   string  `json:"listing_currency"`
	ReportingCurrency string  `json:"reporting_currency"`
	OriginalPrice     float64 `json:"original_price"`
	OriginalMarketCap float64 `json:"original_market_cap"`
}

// IsIdentity reports whether no currency conversion was applied.
func (c Conversion) IsIdentity() bool {
	return c.ListingCurrency == c.ReportingCurrency
}

// StockRecord is the persisted, enriched record for one symbol.
type StockRecord struct {
	Symbol            string       `json:"symbol" badgerhold:"key" db:"symbol"`
	Name              string       `json:"name" db:"name"`
	Exchange          string       `json:"exchange,omitempty" db:"exchange"`
	Industry          string       `json:"industry,omitempty" db:"industry"`
	Price             float64      `json:"price" db:"price"`
	MarketCap         float64      `json:"market_cap" db:"market_cap"`
	Currency          string       `json:"currency" db:"currency"`
	IsPriceUSD        bool         `json:"is_price_usd" db:"is_price_usd"`
	OriginalPrice     float64      `json:"original_price" db:"original_price"`
	OriginalMarketCap float64      `json:"original_market_cap" db:"original_market_cap"`
	ForexRate         float64      `json:"forex_rate" db:"forex_rate"`
	Fundamentals      Fundamentals `json:"fundamentals" db:"-"`
	Metrics           Metrics      `json:"metrics" db:"-"`
	MarginOfSafety    float64      `json:"margin_of_safety" badgerhold:"index" db:"margin_of_safety"`
	SkipReason        SkipReason   `json:"skip_reason,omitempty" badgerhold:"index" db:"skip_reason"`
	LastUpdated       time.Time    `json:"last_updated" badgerhold:"index" db:"last_updated"`
}

// IsSkipped reports whether the record carries a skip reason.
func (r *StockRecord) IsSkipped() bool {
	return r.SkipReason != ""
}

// IsScoreable reports whether price and market cap are valid for scoring.
func (r *StockRecord) IsScoreable() bool {
	return !r.IsSkipped() && r.Price > 0 && r.MarketCap > 0
}

// ApplyConversion copies normalized monetary fields onto the record.
func (r *StockRecord) ApplyConversion(c *Conversion) {
	r.Price = c.Price
	r.MarketCap = c.MarketCap
	r.Currency = c.ListingCurrency
	r.IsPriceUSD = c.ListingCurrency == ReportingCurrency
	r.OriginalPrice = c.OriginalPrice
	r.OriginalMarketCap = c.OriginalMarketCap
	r.ForexRate = c.Rate
}

// ApplyMetrics stores derived metrics and mirrors the indexed margin field.
func (r *StockRecord) ApplyMetrics(m Metrics) {
	r.Metrics = m
	r.MarginOfSafety = m.MarginOfSafety
}

// NewSkippedRecord builds the record persisted for a skipped symbol so the
// symbol is not re-selected until it goes stale again. No conversion happened,
// so the reporting-currency price and market cap stay zero and the raw
// listing-currency price is kept as OriginalPrice.
func NewSkippedRecord(symbol string, reason SkipReason, listing string, originalPrice float64, now time.Time) *StockRecord {
	code := strings.ToUpper(strings.TrimSpace(listing))
	if code == "" {
		code = ReportingCurrency
	}
	record := &StockRecord{
		Symbol:        symbol,
		Currency:      code,
		IsPriceUSD:    code == ReportingCurrency,
		OriginalPrice: originalPrice,
		SkipReason:    reason,
		LastUpdated:   now.UTC(),
	}
	if record.IsPriceUSD {
		record.ForexRate = 1
	}
	return record
}
