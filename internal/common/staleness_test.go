package common

import (
	"testing"
	"time"
)

func TestCheckStaleness(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	threshold := 12 * time.Hour

	tests := []struct {
		name        string
		lastUpdated time.Time
		wantStale   bool
	}{
		{name: "never updated", lastUpdated: time.Time{}, wantStale: true},
		{name: "just updated", lastUpdated: now.Add(-time.Minute), wantStale: false},
		{name: "one second before threshold", lastUpdated: now.Add(-threshold + time.Second), wantStale: false},
		{name: "exactly at threshold", lastUpdated: now.Add(-threshold), wantStale: true},
		{name: "two days old", lastUpdated: now.Add(-48 * time.Hour), wantStale: true},
		{name: "non-UTC zone", lastUpdated: now.Add(-time.Hour).In(time.FixedZone("AEST", 10*3600)), wantStale: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckStaleness(tt.lastUpdated, now, threshold)
			if result.IsStale != tt.wantStale {
				t.Errorf("IsStale = %v, want %v (%s)", result.IsStale, tt.wantStale, result.Reason)
			}
			if !result.IsStale && !result.NextCheckTime.After(now) {
				t.Errorf("NextCheckTime %v should be after now", result.NextCheckTime)
			}
		})
	}
}
