// Package common provides shared utilities across the application.
package common

import (
	"fmt"
	"time"
)

// StalenessResult contains the result of a staleness check.
type StalenessResult struct {
	// IsStale indicates whether the record needs a refresh.
	IsStale bool
	// NextCheckTime is when a fresh record becomes stale.
	NextCheckTime time.Time
	// Reason provides a human-readable explanation for the staleness decision.
	Reason string
}

// CheckStaleness decides whether a record last updated at lastUpdated is
// older than threshold at now. A zero lastUpdated is always stale.
func CheckStaleness(lastUpdated, now time.Time, threshold time.Duration) StalenessResult {
	if lastUpdated.IsZero() {
		return StalenessResult{
			IsStale: true,
			Reason:  "no record",
		}
	}

	expires := lastUpdated.UTC().Add(threshold)
	now = now.UTC()
	if !now.Before(expires) {
		return StalenessResult{
			IsStale: true,
			Reason:  fmt.Sprintf("last updated %s ago, threshold %s", now.Sub(lastUpdated).Round(time.Second), threshold),
		}
	}

	return StalenessResult{
		IsStale:       false,
		NextCheckTime: expires,
		Reason:        fmt.Sprintf("fresh until %s", expires.Format(time.RFC3339)),
	}
}
