// Package currency converts listing-currency prices and market caps into the
// reporting currency using provider exchange rates.
package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/singleflight"

	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/models"
)

// DefaultFetchTimeout bounds a shared rate fetch independently of the
// caller that started it.
const DefaultFetchTimeout = 30 * time.Second

// RateSource supplies the multiplier converting one unit of from into to.
// *finnhub.Client satisfies it.
type RateSource interface {
	GetExchangeRate(ctx context.Context, from, to string) (float64, error)
}

var errNonPositiveRate = errors.New("exchange rate must be positive")

// Normalizer converts monetary figures into the reporting currency. Rates are
// cached for the lifetime of the Normalizer, so one instance is created per
// run and each currency pair is fetched at most once.
type Normalizer struct {
	source RateSource
	logger arbor.ILogger

	fetchTimeout time.Duration

	mu    sync.RWMutex
	rates map[string]float64
	group singleflight.Group
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(n *Normalizer) {
		if d > 0 {
			n.fetchTimeout = d
		}
	}
}

// NewNormalizer creates a normalizer backed by source.
func NewNormalizer(source RateSource, logger arbor.ILogger, opts ...Option) *Normalizer {
	n := &Normalizer{
		source:       source,
		logger:       logger,
		fetchTimeout: DefaultFetchTimeout,
		rates:        make(map[string]float64),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts price and marketCap from listing into reporting. An
// empty listing currency is treated as USD. Same-currency
// input returns rate 1 with originals equal to the converted values.
func (n *Normalizer) Normalize(ctx context.Context, price, marketCap float64, listing, reporting string) (*models.Conversion, error) {
	from, err := resolveCode(listing, models.ReportingCurrency)
	if err != nil {
		return nil, &models.NormalizationError{From: listing, To: reporting, Err: err}
	}
	to, err := resolveCode(reporting, models.ReportingCurrency)
	if err != nil {
		return nil, &models.NormalizationError{From: listing, To: reporting, Err: err}
	}

	conv := &models.Conversion{
		Price:             price,
		MarketCap:         marketCap,
		Rate:              1,
		ListingCurrency:   from,
		ReportingCurrency: to,
		OriginalPrice:     price,
		OriginalMarketCap: marketCap,
	}
	if from == to {
		return conv, nil
	}

	rate, err := n.Rate(ctx, from, to)
	if err != nil {
		return nil, &models.NormalizationError{From: from, To: to, Err: err}
	}

	conv.Rate = rate
	conv.Price = Convert(price, rate)
	conv.MarketCap = Convert(marketCap, rate)

	n.logger.Debug().
		Str("from", from).
		Str("to", to).
		Float64("rate", rate).
		Float64("original_price", price).
		Float64("price", conv.Price).
		Msg("Converted listing currency")

	return conv, nil
}

// Rate returns the cached rate for from->to, fetching it on first use.
// Concurrent callers for the same pair share one fetch. The shared fetch is
// detached from the caller that started it and runs under its own timeout;
// each caller stops waiting when its own ctx is done.
func (n *Normalizer) Rate(ctx context.Context, from, to string) (float64, error) {
	key := from + to

	n.mu.RLock()
	rate, ok := n.rates[key]
	n.mu.RUnlock()
	if ok {
		return rate, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := n.group.DoChan(key, func() (interface{}, error) {
		n.mu.RLock()
		cached, ok := n.rates[key]
		n.mu.RUnlock()
		if ok {
			return cached, nil
		}

		var rate float64
		err := common.CatchPanic(func() error {
			rctx, cancel := context.WithTimeout(fetchCtx, n.fetchTimeout)
			defer cancel()
			var err error
			rate, err = n.source.GetExchangeRate(rctx, from, to)
			return err
		})
		if err != nil {
			return 0.0, err
		}
		if !(rate > 0) {
			return 0.0, fmt.Errorf("%w: %v", errNonPositiveRate, rate)
		}

		n.mu.Lock()
		n.rates[key] = rate
		n.mu.Unlock()
		return rate, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(float64), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Denormalize re-derives listing-currency figures from a conversion.
func Denormalize(conv *models.Conversion) (price, marketCap float64) {
	if conv == nil {
		return 0, 0
	}
	if conv.Rate <= 0 || conv.IsIdentity() {
		return conv.Price, conv.MarketCap
	}
	rate := decimal.NewFromFloat(conv.Rate)
	price = decimal.NewFromFloat(conv.Price).Div(rate).Round(2).InexactFloat64()
	marketCap = decimal.NewFromFloat(conv.MarketCap).Div(rate).Round(2).InexactFloat64()
	return price, marketCap
}

// Convert multiplies amount by rate and rounds to two decimal places.
func Convert(amount, rate float64) float64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate)).Round(2).InexactFloat64()
}

// resolveCode upper-cases code, defaults empty input and rejects codes that
// are not ISO 4217.
func resolveCode(code, fallback string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = fallback
	}
	if money.GetCurrency(code) == nil {
		return "", fmt.Errorf("unknown currency code %q", code)
	}
	return code, nil
}
