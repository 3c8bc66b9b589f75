/*
errors.go - Centralized error types for the timeline engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure is returned to the Service's caller as a typed result;
  nothing is swallowed or auto-repaired.

ERROR CATEGORIES:
  1. Input errors - InvalidRange, MissingTarget, unknown policy/action
  2. Invariant errors - MultiConflict (upstream invariant already broken)
  3. Resolution errors - CascadeOverflow (shift would leave the day)
  4. State errors - NoOpenSlice, SliceNotFound
  5. Store errors - Persistence (the only retryable category)

USAGE:
  if errors.Is(err, timeline.ErrCascadeOverflow) {
      // ask the user for a different policy or boundaries
  }

SEE ALSO:
  - resolver.go: Produces MultiConflict and CascadeOverflow
  - service.go: Wraps store failures in PersistenceError
  - api/handlers.go: Maps errors to HTTP status codes
*/
package timeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when a slice's start is not strictly before
	// its effective end, or when it does not fit the day it is resolved in.
	ErrInvalidRange = errors.New("invalid range")

	// ErrMultiConflict is returned when more than one existing slice overlaps
	// a candidate. It means the non-overlap invariant was already broken.
	ErrMultiConflict = errors.New("candidate overlaps more than one slice")

	// ErrCascadeOverflow is returned when a preserve-duration shift would push
	// a slice past the end of its day.
	ErrCascadeOverflow = errors.New("cascading shift overflows day boundary")

	// ErrNoOpenSlice is returned when an operation needs an active slice and
	// none is running.
	ErrNoOpenSlice = errors.New("no open slice")

	// ErrPersistence is returned when the store failed to apply a plan.
	ErrPersistence = errors.New("persistence failure")

	// ErrSliceNotFound is returned when a referenced slice doesn't exist.
	ErrSliceNotFound = errors.New("slice not found")

	// ErrWorkItemNotFound is returned when a referenced work item doesn't exist.
	ErrWorkItemNotFound = errors.New("work item not found")

	// ErrDuplicateSlice is returned when a plan creates an ID that already exists.
	ErrDuplicateSlice = errors.New("duplicate slice id")

	// ErrMissingTarget is returned when away time is reassigned without a
	// target work item.
	ErrMissingTarget = errors.New("reassign requires a target work item")

	ErrUnknownPolicy = errors.New("unknown split policy")
	ErrUnknownAction = errors.New("unknown away action")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RangeError describes a rejected interval.
type RangeError struct {
	SliceID SliceID
	Start   time.Time
	End     time.Time
	Reason  string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range [%s, %s): %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Reason)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// MultiConflictError lists every existing slice the candidate overlaps.
type MultiConflictError struct {
	Candidate SliceID
	Conflicts []SliceID
}

func (e *MultiConflictError) Error() string {
	ids := make([]string, len(e.Conflicts))
	for i, id := range e.Conflicts {
		ids[i] = string(id)
	}
	return fmt.Sprintf("candidate %q overlaps %d slices: %s",
		e.Candidate, len(e.Conflicts), strings.Join(ids, ", "))
}

func (e *MultiConflictError) Unwrap() error { return ErrMultiConflict }

// CascadeOverflowError names the slice a cascade could not place.
type CascadeOverflowError struct {
	SliceID  SliceID
	NewStart time.Time
	NewEnd   time.Time
	Limit    time.Time
}

func (e *CascadeOverflowError) Error() string {
	return fmt.Sprintf("shifting %q to [%s, %s) passes %s",
		e.SliceID, e.NewStart.Format(time.RFC3339), e.NewEnd.Format(time.RFC3339),
		e.Limit.Format(time.RFC3339))
}

func (e *CascadeOverflowError) Unwrap() error { return ErrCascadeOverflow }

// PersistenceError wraps a store failure. The plan it carries is pure data
// and may be replayed by the caller.
type PersistenceError struct {
	Plan EditPlan
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("apply %d ops: %v", len(e.Plan.Ops), e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the same call might succeed on retry. Only
// persistence failures qualify; everything else needs a new decision.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrCascadeOverflow) ||
		errors.Is(err, ErrMissingTarget) ||
		errors.Is(err, ErrUnknownPolicy) ||
		errors.Is(err, ErrUnknownAction)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSliceNotFound) ||
		errors.Is(err, ErrWorkItemNotFound)
}
