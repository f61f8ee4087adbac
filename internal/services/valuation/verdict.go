package valuation

import "github.com/ternarybob/valuescreen/internal/models"

// verdictRule is one tier of the verdict ladder, checked top down.
type verdictRule struct {
	verdict   models.Verdict
	minValue  float64
	minSafety float64
	minMargin float64
}

var verdictLadder = []verdictRule{
	{verdict: models.VerdictStrongBuy, minValue: 80, minSafety: 70, minMargin: 35},
	{verdict: models.VerdictBuy, minValue: 60, minSafety: 50, minMargin: 20},
	{verdict: models.VerdictHold, minValue: 40, minSafety: 30, minMargin: 0},
}

// VerdictFor maps composite scores and the signed margin onto a verdict.
// Anything below the Hold tier is Sell when either score is weak, otherwise
// Strong Sell (scores fine but the price is above fair value).
func VerdictFor(value, safety, margin float64) models.Verdict {
	value, safety, margin = finite(value), finite(safety), finite(margin)

	for _, rule := range verdictLadder {
		if value >= rule.minValue && safety >= rule.minSafety && margin >= rule.minMargin {
			return rule.verdict
		}
	}
	if value < 40 || safety < 30 {
		return models.VerdictSell
	}
	return models.VerdictStrongSell
}
