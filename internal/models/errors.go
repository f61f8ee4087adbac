package models

import (
	"context"
	"errors"
	"fmt"
)

// ProviderError is the terminal failure of a provider call after retries.
type ProviderError struct {
	Op         string
	Symbol     string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s %s: status %d: %v", e.Op, e.Symbol, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NormalizationError is returned when a currency conversion cannot be made.
type NormalizationError struct {
	From string
	To   string
	Err  error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s->%s: %v", e.From, e.To, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// PersistenceError wraps a repository write failure for one symbol.
type PersistenceError struct {
	Symbol string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Symbol, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SelectionError is fatal to a run: no identifiers could be selected.
type SelectionError struct {
	Err error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("select stale identifiers: %v", e.Err)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// Outcome cause tags used in progress messages and logs.
const (
	CauseProvider      = "provider"
	CauseNormalization = "normalization"
	CausePersistence   = "persistence"
	CauseTimeout       = "timeout"
	CauseUnknown       = "unknown"
)

// OutcomeReason maps an identifier failure onto its cause tag.
func OutcomeReason(err error) string {
	var (
		pe *ProviderError
		ne *NormalizationError
		se *PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	case errors.As(err, &pe):
		return CauseProvider
	case errors.As(err, &ne):
		return CauseNormalization
	case errors.As(err, &se):
		return CausePersistence
	default:
		return CauseUnknown
	}
}
