package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingElement = errors.New("expected element not found")
	ErrEmptyPage      = errors.New("listing page yielded no postings")
	ErrNoIdentifier   = errors.New("no posting identifier in url")
	ErrCarriageReturn = errors.New("field contains a carriage return")
	// ErrTransient marks fetch errors worth another attempt (network, 429, 5xx).
	ErrTransient = errors.New("transient fetch error")
)

// PaginationError reports one listing page that could not be used.
type PaginationError struct {
	Page int
	Err  error
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("listing page %d: %v", e.Page, e.Err)
}

func (e *PaginationError) Unwrap() error { return e.Err }

// ExtractionError reports one posting page that could not be parsed.
type ExtractionError struct {
	Identifier string
	Field      string
	Err        error
}

func (e *ExtractionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("extract %s: %v", e.Identifier, e.Err)
	}
	return fmt.Sprintf("extract %s: field %s: %v", e.Identifier, e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PersistenceError reports a snapshot or ledger read or write failure.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NormalizationError reports a derivation step that failed for one row.
type NormalizationError struct {
	ID   string
	Step string
	Err  error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %s: %v", e.ID, e.Step, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// Transient wraps err so errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
