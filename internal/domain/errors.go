package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks across the pipeline.
var (
	ErrDataAccess       = errors.New("data access failed")
	ErrInsufficientData = errors.New("insufficient data")
	ErrModelNotFound    = errors.New("model not found")
	ErrSchemaMismatch   = errors.New("feature schema mismatch")
	ErrInvalidRequest   = errors.New("invalid request")
)

// DataAccessError reports that the observation store could not be reached
// or queried. It is never retried inside the pipeline.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() []error { return []error{ErrDataAccess, e.Err} }

// NewDataAccessError wraps err for the named store operation.
func NewDataAccessError(op string, err error) error {
	return &DataAccessError{Op: op, Err: err}
}

// InsufficientDataError reports fewer usable rows than the minimum needed to
// train and validate a model.
type InsufficientDataError struct {
	Target string
	Rows   int
	Min    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %q: %d usable rows, need at least %d", e.Target, e.Rows, e.Min)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// ModelNotFoundError reports that no bundle is stored for a target. It is an
// expected condition callers must handle.
type ModelNotFoundError struct {
	Target string
	Key    string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("no trained model for %q (key %s)", e.Target, e.Key)
}

func (e *ModelNotFoundError) Is(target error) bool { return target == ErrModelNotFound }

// SchemaMismatchError lists the schema features a query-time row could not
// supply and that were filled with a default value.
type SchemaMismatchError struct {
	Target string
	Filled []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("feature row for %q filled defaults for: %s", e.Target, strings.Join(e.Filled, ", "))
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }
