// Package valuation provides pure Graham-style valuation and scoring functions.
// All functions are stateless, perform no I/O and are total: NaN and infinite
// inputs are treated as zero.
package valuation

import (
	"math"

	"github.com/ternarybob/valuescreen/internal/models"
)

// GrahamMultiplier is Graham's P/E 15 x P/B 1.5 product.
const GrahamMultiplier = 22.5

// Safety score weights, out of a fixed 100-point scale.
const (
	WeightCurrentRatio = 25.0
	WeightDebtToEquity = 35.0
	WeightGrowth       = 20.0
	WeightDividend     = 20.0
)

// Value score weights, out of a fixed 100-point scale.
const (
	WeightPE     = 30.0
	WeightPB     = 30.0
	WeightMargin = 40.0
)

// SafetyInputs feeds SafetyScore. A nil pointer is a missing input and
// earns no credit.
type SafetyInputs struct {
	CurrentRatio  *float64
	DebtToEquity  *float64
	Growth5Y      *float64
	DividendYield *float64
}

// ValueInputs feeds ValueScore. A non-positive ratio means undefined
// (EPS or book value <= 0) and earns no credit.
type ValueInputs struct {
	PERatio        float64
	PBRatio        float64
	MarginOfSafety float64
}

// FairValue returns sqrt(22.5 * EPS * BVPS) after converting both per-share
// figures with rate. It is 0 when either converted input is <= 0.
func FairValue(eps, bvps, rate float64) float64 {
	rate = finite(rate)
	epsUSD := finite(eps) * rate
	bvpsUSD := finite(bvps) * rate
	if epsUSD <= 0 || bvpsUSD <= 0 {
		return 0
	}
	return math.Sqrt(GrahamMultiplier * epsUSD * bvpsUSD)
}

// MarginOfSafety returns the signed percentage (fairValue-price)/fairValue*100.
// Negative means price exceeds fair value. It is 0 when fairValue <= 0.
func MarginOfSafety(price, fairValue float64) float64 {
	price, fairValue = finite(price), finite(fairValue)
	if fairValue <= 0 {
		return 0
	}
	return (fairValue - price) / fairValue * 100
}

// ClampMargin floors a signed margin to [0,100] for callers that read it as a
// pure safety margin.
func ClampMargin(margin float64) float64 {
	return clamp(finite(margin), 0, 100)
}

// SafetyScore is the 0-100 financial strength composite.
func SafetyScore(in SafetyInputs) float64 {
	score := 0.0

	if in.CurrentRatio != nil {
		cr := finite(*in.CurrentRatio)
		switch {
		case cr >= 2:
			score += WeightCurrentRatio
		case cr >= 1.5:
			score += WeightCurrentRatio / 2
		}
	}

	if in.DebtToEquity != nil {
		de := finite(*in.DebtToEquity)
		switch {
		case de < 0:
			// negative equity
		case de <= 0.5:
			score += WeightDebtToEquity
		case de <= 1.0:
			score += WeightDebtToEquity / 2
		}
	}

	if in.Growth5Y != nil {
		g := finite(*in.Growth5Y)
		switch {
		case g > 0:
			score += WeightGrowth
		case g == 0:
			score += WeightGrowth / 2
		}
	}

	if in.DividendYield != nil && finite(*in.DividendYield) > 0 {
		score += WeightDividend
	}

	return clamp(score, 0, 100)
}

// ValueScore is the 0-100 price attractiveness composite.
func ValueScore(in ValueInputs) float64 {
	score := 0.0

	pe := finite(in.PERatio)
	switch {
	case pe <= 0:
	case pe <= 15:
		score += WeightPE
	case pe <= 20:
		score += WeightPE / 2
	}

	pb := finite(in.PBRatio)
	switch {
	case pb <= 0:
	case pb <= 1.2:
		score += WeightPB
	case pb <= 1.5:
		score += WeightPB / 2
	}

	margin := finite(in.MarginOfSafety)
	switch {
	case margin >= 35:
		score += WeightMargin
	case margin >= 20:
		score += WeightMargin / 2
	}

	return clamp(score, 0, 100)
}

// Ratio returns price divided by a per-share figure converted with rate, or
// 0 when the per-share figure is <= 0.
func Ratio(price, perShare, rate float64) float64 {
	denom := finite(perShare) * finite(rate)
	if denom <= 0 {
		return 0
	}
	return finite(price) / denom
}

// Score derives every metric for a USD price, listing-currency fundamentals
// and the rate that converted the price.
func Score(price float64, f models.Fundamentals, rate float64) models.Metrics {
	eps := f.EPSValue()
	bvps := f.BookValuePerShareValue()

	fairValue := FairValue(eps, bvps, rate)
	margin := MarginOfSafety(price, fairValue)
	pe := Ratio(price, eps, rate)
	pb := Ratio(price, bvps, rate)

	safety := SafetyScore(SafetyInputs{
		CurrentRatio:  f.CurrentRatio,
		DebtToEquity:  f.LongTermDebtToEquity,
		Growth5Y:      f.EarningsGrowth5Y,
		DividendYield: f.DividendYield,
	})
	value := ValueScore(ValueInputs{
		PERatio:        pe,
		PBRatio:        pb,
		MarginOfSafety: margin,
	})

	return models.Metrics{
		FairValue:      round2(fairValue),
		MarginOfSafety: round2(margin),
		SafetyScore:    safety,
		ValueScore:     value,
		PERatio:        round2(pe),
		PBRatio:        round2(pb),
		Coverage:       f.Coverage(),
		Verdict:        VerdictFor(value, safety, margin),
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
