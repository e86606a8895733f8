/*
errors.go - Centralized error types for the lease engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Ledger errors - Entry persistence failures
  2. Lookup errors - Missing contracts, customers, users
  3. Auth errors - Credentials and token problems

USAGE:
  if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
      // retry of an already-posted receipt, safe to ignore
  }

SEE ALSO:
  - ledger.go: Uses these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrEntryFailed is returned when an entry cannot be persisted.
	ErrEntryFailed = errors.New("ledger entry failed")

	// ErrAlreadyReversed is returned when reversing an entry twice.
	ErrAlreadyReversed = errors.New("entry already reversed")

	ErrContractNotFound = errors.New("contract not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrEntryNotFound    = errors.New("ledger entry not found")
	ErrUserNotFound     = errors.New("user not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidAmount is returned for non-positive receipt amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidStatus is returned for a contract status change that the
	// lifecycle does not allow (activating an active contract, paying a draft).
	ErrInvalidStatus = errors.New("invalid contract status")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token revoked")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError reports an input field that failed to parse or validate.
type FieldError struct {
	Field   string
	Value   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
}

// OverpaymentError is returned when a receipt exceeds the outstanding balance.
type OverpaymentError struct {
	AccountID   AccountID
	Outstanding Amount
	Requested   Amount
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("receipt %v exceeds outstanding balance %v on %s",
		e.Requested.Value, e.Outstanding.Value, e.AccountID)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrInvalidAmount
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var fieldErr *FieldError
	return errors.As(err, &fieldErr) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsAuthError returns true for credential and token failures.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrTokenRevoked)
}
