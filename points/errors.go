/*
errors.go - Error taxonomy for the points engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Component packages (claims, badges, sprint) return these so the API layer
  maps them to responses without knowing where they came from.

ERROR CATEGORIES:
  1. Rejected claim    - Expected, user-facing, not an error state
  2. Validation        - Bad input, no write attempted
  3. Store unavailable - Retryable write failure, no partial state
  4. Inconsistent      - A claim/badge/completion committed without its
                         ledger entry. Fatal and alerting, never retried
  5. Stale totals      - Ledger committed, cached totals not refreshed

USAGE:
  if errors.Is(err, points.ErrInconsistentState) {
      // page an operator
  }

SEE ALSO:
  - ledger.go: Produces store-unavailable and stale-totals errors
  - claims/award.go, badges/sweep.go: Produce inconsistent-state errors
*/
package points

import (
	"fmt"

	"github.com/pkg/errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRejectedClaim is returned by claim stores when the
	// (student, category, date) row already exists.
	ErrRejectedClaim = errors.New("already claimed today")

	ErrValidation = errors.New("validation failed")

	// ErrStoreUnavailable is a retryable write failure. Nothing was committed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInconsistentState means a guard row was committed and the paired
	// ledger append failed. Retrying blindly risks double payment.
	ErrInconsistentState = errors.New("inconsistent state")

	// ErrStaleTotals means the ledger write committed but the cached totals
	// could not be refreshed.
	ErrStaleTotals = errors.New("totals are stale")

	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrNotFound = errors.New("not found")

	// ErrAlreadyCompleted is returned when completing a finished assignment.
	ErrAlreadyCompleted = errors.New("already completed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Invalid builds a ValidationError for component packages.
func Invalid(field, reason string) error { return invalid(field, reason) }

type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// Unavailable wraps a raw store failure. Known domain errors pass through.
func Unavailable(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

// InconsistentStateError describes a committed guard row whose ledger entry
// is missing.
type InconsistentStateError struct {
	Kind      string // "claim_unpaid", "badge_unpaid", "sprint_unpaid"
	StudentID StudentID
	SourceID  string
	Err       error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent state (%s) for student %s source %s: %v",
		e.Kind, e.StudentID, e.SourceID, e.Err)
}

func (e *InconsistentStateError) Unwrap() []error { return []error{ErrInconsistentState, e.Err} }

// StaleTotalsError reports that entries were committed but recompute failed
// after retries.
type StaleTotalsError struct {
	StudentID StudentID
	Err       error
}

func (e *StaleTotalsError) Error() string {
	return fmt.Sprintf("ledger committed but totals for %s are stale: %v", e.StudentID, e.Err)
}

func (e *StaleTotalsError) Unwrap() []error { return []error{ErrStaleTotals, e.Err} }

type InsufficientBalanceError struct {
	StudentID StudentID
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry without risk
// of double payment. Inconsistent state is never retryable, whatever it wraps.
func IsRetryable(err error) bool {
	if IsAlerting(err) {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStaleTotals)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrAlreadyCompleted)
}

// IsAlerting returns true if an operator must reconcile by hand.
func IsAlerting(err error) bool {
	return errors.Is(err, ErrInconsistentState)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrRejectedClaim, ErrValidation, ErrStoreUnavailable, ErrInconsistentState,
		ErrStaleTotals, ErrDuplicateIdempotencyKey, ErrInsufficientBalance,
		ErrNotFound, ErrAlreadyCompleted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
