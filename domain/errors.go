package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the four terminal error classes plus the internally
// retried transient conflict. Typed errors below wrap these sentinels so
// callers can match with errors.Is and still extract details with errors.As.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrState      = errors.New("invalid state transition")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")

	// ErrTransientConflict marks store-level write conflicts that are safe
	// to retry once (serialization failures, deadlocks). Never surfaced to
	// callers.
	ErrTransientConflict = errors.New("transient store conflict")
)

// NotFoundError reports an absent entity, or one excluded by the caller's
// scope filter.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s with %s not found", e.Entity, e.Key)
}

func (e NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConflictError reports a request conflicting with current state: duplicate
// active loan request, overlapping loan interval, already-inactive loan.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return e.Reason
}

func (e ConflictError) Unwrap() error {
	return ErrConflict
}

// StateError reports a transition attempted from a wrong state. It carries
// the expected pre-states and the state actually found.
type StateError struct {
	Expected []LoanRequestState
	Actual   LoanRequestState
}

func (e StateError) Error() string {
	names := make([]string, len(e.Expected))
	for i, state := range e.Expected {
		names[i] = state.String()
	}

	return fmt.Sprintf("loan request state is expected to be %s, got: %s",
		strings.Join(names, " or "), e.Actual)
}

func (e StateError) Unwrap() error {
	return ErrState
}

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Unwrap() error {
	return ErrValidation
}
