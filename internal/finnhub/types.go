// Package finnhub provides a rate-limited client for the Finnhub market data API.
// Every outbound request passes through a shared limiter and a retry policy.
package finnhub

import (
	"fmt"
)

// APIError represents a non-200 response from the Finnhub API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("finnhub API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Quote is the /quote payload. A zero current price means no price data.
type Quote struct {
	Current       float64 `json:"c" validate:"gte=0"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// Profile is the /stock/profile2 payload. MarketCapitalization is in millions
// of the listing currency.
type Profile struct {
	Ticker               string  `json:"ticker"`
	Name                 string  `json:"name"`
	Country              string  `json:"country"`
	Currency             string  `json:"currency"`
	Exchange             string  `json:"exchange"`
	Industry             string  `json:"finnhubIndustry"`
	IPO                  string  `json:"ipo"`
	MarketCapitalization float64 `json:"marketCapitalization"`
	ShareOutstanding     float64 `json:"shareOutstanding"`
}

// MarketCap returns market capitalization in whole currency units.
func (p *Profile) MarketCap() float64 {
	return p.MarketCapitalization * 1_000_000
}

// MetricResponse is the /stock/metric?metric=all payload. The metric map is
// loosely typed: values may be numbers, strings or null.
type MetricResponse struct {
	Symbol     string                 `json:"symbol"`
	MetricType string                 `json:"metricType"`
	Metric     map[string]interface{} `json:"metric"`
}

// ForexRate is the /forex/exchange payload.
type ForexRate struct {
	Symbol string  `json:"symbol"`
	Rate   float64 `json:"rate" validate:"gt=0"`
}

// Symbol is one entry of the /stock/symbol listing.
type Symbol struct {
	Symbol        string `json:"symbol" validate:"required"`
	Description   string `json:"description"`
	DisplaySymbol string `json:"displaySymbol"`
	Type          string `json:"type"`
	Currency      string `json:"currency"`
	MIC           string `json:"mic"`
}

// CommonStock is the listing type accepted into the universe.
const CommonStock = "Common Stock"
