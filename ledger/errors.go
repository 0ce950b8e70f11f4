/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Not-found errors   - account or transaction absent; terminal
  2. Guard errors       - reversal idempotency violation; terminal
  3. Conflict errors    - concurrent-write races; retried a bounded
                          number of times before degrading to
                          ErrStoreUnavailable
  4. Store errors       - persistence failures

USAGE:
  Callers classify with errors.Is or the helpers below:

    if ledger.IsNotFound(err) { ... 404 ... }
*/
package ledger

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound is returned when a referenced transaction does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAlreadyReversed is returned when reversing a transaction that has
	// already been reversed. The first reversal stands; this call changed
	// nothing.
	ErrAlreadyReversed = errors.New("transaction already reversed")

	// ErrCodeTaken is returned when an account write loses the race for an
	// external code. The allocator recomputes the gap and retries.
	ErrCodeTaken = errors.New("external code already taken")

	// ErrConflict is returned when the store detects a concurrent
	// modification. Safe to retry.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrStoreUnavailable is returned when the underlying store fails, or
	// when retryable conflicts persist past the retry budget.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidKind is returned when a delta is applied with a kind the
	// ledger does not accept for direct application.
	ErrInvalidKind = errors.New("invalid transaction kind")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsRetryable reports whether the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrCodeTaken)
}

// IsClientError reports whether the error is the caller's fault rather
// than the store's.
func IsClientError(err error) bool {
	return IsNotFound(err) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrInvalidKind)
}
