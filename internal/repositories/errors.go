package repositories

import (
	"errors"
	"fmt"
)

type storeErrorKind int

const (
	storeErrorUnknown storeErrorKind = iota
	storeErrorNotFound
	storeErrorConflict
	storeErrorUnavailable
)

// StoreError is the RepositoryError implementation shared by the SQL and embedded engines.
type StoreError struct {
	Op   string
	kind storeErrorKind
	Err  error
}

var _ RepositoryError = (*StoreError)(nil)

// NewNotFound reports a missing record.
func NewNotFound(op string, err error) *StoreError {
	return &StoreError{Op: op, kind: storeErrorNotFound, Err: err}
}

// NewConflict reports a uniqueness violation.
func NewConflict(op string, err error) *StoreError {
	return &StoreError{Op: op, kind: storeErrorConflict, Err: err}
}

// NewUnavailable reports a connectivity or engine failure.
func NewUnavailable(op string, err error) *StoreError {
	return &StoreError{Op: op, kind: storeErrorUnavailable, Err: err}
}

// NewStoreError wraps an unclassified failure.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, kind: storeErrorUnknown, Err: err}
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.kindLabel())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.kindLabel(), e.Err)
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.kind == storeErrorNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.kind == storeErrorConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.kind == storeErrorUnavailable }

func (e *StoreError) kindLabel() string {
	switch e.kind {
	case storeErrorNotFound:
		return "not found"
	case storeErrorConflict:
		return "conflict"
	case storeErrorUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

// IsNotFound reports whether err carries a not-found classification.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries a conflict classification.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
