package models

import "time"

// RunKind identifies which job produced a run summary.
type RunKind string

const (
	RunKindIngest  RunKind = "ingest"
	RunKindRescore RunKind = "rescore"
)

// ProgressEvent is emitted after each identifier is processed.
type ProgressEvent struct {
	RunID     string  `json:"run_id,omitempty"`
	Kind      RunKind `json:"kind,omitempty"`
	Current   int     `json:"current"`
	Total     int     `json:"total"`
	Success   int     `json:"success"`
	Errors    int     `json:"errors"`
	Skipped   int     `json:"skipped"`
	Message   string  `json:"message"`
	Completed bool    `json:"completed,omitempty"`
}

// RunSummary is the final accounting of one ingestion or rescore run.
type RunSummary struct {
	RunID           string             `json:"run_id" badgerhold:"key" db:"run_id"`
	Kind            RunKind            `json:"kind" db:"kind"`
	Total           int                `json:"total" db:"total"`
	Updated         int                `json:"updated" db:"updated"`
	Skipped         int                `json:"skipped" db:"skipped"`
	SkippedByReason map[SkipReason]int `json:"skipped_by_reason" db:"-"`
	Errors          int                `json:"errors" db:"errors"`
	ErrorsByCause   map[string]int     `json:"errors_by_cause,omitempty" db:"-"`
	StartedAt       time.Time          `json:"started_at" badgerhold:"index" db:"started_at"`
	FinishedAt      time.Time          `json:"finished_at" db:"finished_at"`
	Cancelled       bool               `json:"cancelled" db:"cancelled"`
}

// Processed returns the number of identifiers that reached an outcome.
func (s *RunSummary) Processed() int {
	return s.Updated + s.Skipped + s.Errors
}

// Duration returns the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
