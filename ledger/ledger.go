/*
ledger.go - The write side of the points ledger

PURPOSE:
  Service is the sole writer of balances and transactions. Every
  point-affecting mutation goes through ApplyDelta or Reverse; account
  lifecycle goes through CreateAccount / DeleteAccount. All writes run
  inside the store's atomic unit, so a failure never leaves a
  half-applied operation and concurrent callers never lose updates.

CORRECTIONS:
  Mistakes are never edited away. Reverse appends a compensating
  transaction with the opposite delta and flips the original's Reversed
  flag; both entries stay in the log forever.

CLAMPING:
  Balances floor at zero. When clamping has occurred, a later reversal
  applies the inverse delta to the *current* balance; it does not try to
  reconstruct the balance that would have existed without clamping. The
  resulting BalanceAfter is the only signal that clamping happened.

RETRIES:
  Conflict-class errors (racing code allocation, concurrent
  modification) are retried a bounded number of times with fresh reads
  before surfacing as ErrStoreUnavailable. Not-found and
  already-reversed errors are terminal and returned immediately.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// conflictRetries bounds how many times a retryable conflict is
// re-attempted before the operation fails as ErrStoreUnavailable.
const conflictRetries = 3

// Service implements the ledger operations over a TxStore.
type Service struct {
	Store TxStore

	// CodePrefix and CodeWidth control external code formatting.
	CodePrefix string
	CodeWidth  int
}

// NewService creates a ledger service with default code formatting.
func NewService(store TxStore) *Service {
	return &Service{
		Store:      store,
		CodePrefix: DefaultCodePrefix,
		CodeWidth:  DefaultCodeWidth,
	}
}

// =============================================================================
// ACCOUNT LIFECYCLE
// =============================================================================

// CreateAccount allocates the lowest free external code, generates a
// credential, and writes the account together with its zero-delta
// creation transaction - atomically. A racing creation that grabs the
// same code is detected by the store's uniqueness check and retried
// with a freshly recomputed gap.
func (s *Service) CreateAccount(ctx context.Context) (Account, error) {
	var created Account
	err := s.withRetry(ctx, func(st Store) error {
		accounts, err := st.ListAccounts(ctx)
		if err != nil {
			return err
		}
		secret, err := NewSecret()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		created = Account{
			ID:          NewID(),
			Code:        NextCode(accounts, s.CodePrefix, s.CodeWidth),
			Secret:      secret,
			Balance:     0,
			Role:        RoleCustomer,
			Provisioned: true,
			CreatedAt:   now,
		}
		if err := st.CreateAccount(ctx, created); err != nil {
			return err
		}
		return st.AppendTransaction(ctx, Transaction{
			ID:           NewID(),
			AccountID:    created.ID,
			Timestamp:    now,
			Kind:         KindCreation,
			Name:         "Account created",
			PointsChange: 0,
			BalanceAfter: 0,
		})
	})
	if err != nil {
		return Account{}, err
	}
	return created, nil
}

// DeleteAccount removes the account record, freeing its external code
// for reuse by the allocator. The account's transaction history is kept.
func (s *Service) DeleteAccount(ctx context.Context, accountID string) error {
	return s.withRetry(ctx, func(st Store) error {
		if _, err := st.GetAccount(ctx, accountID); err != nil {
			return err
		}
		return st.DeleteAccount(ctx, accountID)
	})
}

// CompleteSetup records the holder's first-time setup: profile names and
// a self-chosen secret, and clears the Provisioned flag. No ledger
// arithmetic is involved.
func (s *Service) CompleteSetup(ctx context.Context, accountID, firstName, lastName, newSecret string) (Account, error) {
	var updated Account
	err := s.withRetry(ctx, func(st Store) error {
		a, err := st.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		a.FirstName = firstName
		a.LastName = lastName
		if newSecret != "" {
			a.Secret = newSecret
		}
		a.Provisioned = false
		if err := st.UpdateAccount(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

// EnsureAdmin creates the single administrator account on first
// initialization. If any administrator already exists it does nothing,
// keeping the one-admin invariant.
func (s *Service) EnsureAdmin(ctx context.Context, code, secret string) (Account, error) {
	var admin Account
	err := s.withRetry(ctx, func(st Store) error {
		accounts, err := st.ListAccounts(ctx)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			if a.Role == RoleAdmin {
				admin = a
				return nil
			}
		}
		admin = Account{
			ID:          NewID(),
			Code:        code,
			FirstName:   "Admin",
			LastName:    "User",
			Secret:      secret,
			Balance:     0,
			Role:        RoleAdmin,
			Provisioned: false,
			CreatedAt:   time.Now().UTC(),
		}
		return st.CreateAccount(ctx, admin)
	})
	if err != nil {
		return Account{}, err
	}
	return admin, nil
}

// =============================================================================
// POINT-AFFECTING OPERATIONS
// =============================================================================

// ApplyDelta records a point-affecting event for an account and moves
// its balance, clamped at zero. It returns the updated account and the
// created transaction.
//
// BalanceAfter is persisted as the authoritative post-state: when the
// delta is negative and larger than the balance, BalanceAfter is 0, not
// balance+delta.
func (s *Service) ApplyDelta(ctx context.Context, accountID string, pointsChange int64, name, description string, kind Kind) (Account, Transaction, error) {
	// The delta's sign must agree with the kind: assignments earn,
	// redemptions spend, creation markers carry no points.
	switch kind {
	case KindAssignment:
		if pointsChange < 0 {
			return Account{}, Transaction{}, fmt.Errorf("%w: assignment with negative delta %d", ErrInvalidKind, pointsChange)
		}
	case KindRedemption:
		if pointsChange > 0 {
			return Account{}, Transaction{}, fmt.Errorf("%w: redemption with positive delta %d", ErrInvalidKind, pointsChange)
		}
	case KindCreation:
		if pointsChange != 0 {
			return Account{}, Transaction{}, fmt.Errorf("%w: creation with non-zero delta %d", ErrInvalidKind, pointsChange)
		}
	default:
		return Account{}, Transaction{}, fmt.Errorf("%w: %q cannot be applied directly", ErrInvalidKind, kind)
	}

	var (
		updated Account
		applied Transaction
	)
	err := s.withRetry(ctx, func(st Store) error {
		a, err := st.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		newBalance := clamp(a.Balance + pointsChange)
		applied = Transaction{
			ID:           NewID(),
			AccountID:    a.ID,
			Timestamp:    time.Now().UTC(),
			Kind:         kind,
			Name:         name,
			Description:  description,
			PointsChange: pointsChange,
			BalanceAfter: newBalance,
		}
		if err := st.AppendTransaction(ctx, applied); err != nil {
			return err
		}
		a.Balance = newBalance
		if err := st.UpdateAccount(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return Account{}, Transaction{}, err
	}
	return updated, applied, nil
}

// Reverse compensates a prior transaction: it appends a reversal entry
// carrying the negated delta and flips the original's Reversed flag, in
// one atomic unit. Reversing an already-reversed transaction fails with
// ErrAlreadyReversed and changes nothing.
//
// The inverse delta is applied to the current balance and clamped. If
// clamping occurred between the original and the reversal, the reversal
// is deliberately not a perfect inverse; see the package comment.
func (s *Service) Reverse(ctx context.Context, transactionID string) (Account, Transaction, error) {
	var (
		updated  Account
		reversal Transaction
	)
	err := s.withRetry(ctx, func(st Store) error {
		orig, err := st.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if orig.Reversed {
			return ErrAlreadyReversed
		}
		a, err := st.GetAccount(ctx, orig.AccountID)
		if err != nil {
			return err
		}
		newBalance := clamp(a.Balance - orig.PointsChange)
		reversal = Transaction{
			ID:           NewID(),
			AccountID:    a.ID,
			Timestamp:    time.Now().UTC(),
			Kind:         KindReversal,
			Name:         orig.Name,
			Description:  "Reversal: " + orig.Description,
			PointsChange: -orig.PointsChange,
			BalanceAfter: newBalance,
			// Born reversed: a reversal can never itself be reversed.
			Reversed:   true,
			ReversalOf: orig.ID,
		}
		if err := st.AppendTransaction(ctx, reversal); err != nil {
			return err
		}
		if err := st.MarkReversed(ctx, orig.ID); err != nil {
			return err
		}
		a.Balance = newBalance
		if err := st.UpdateAccount(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return Account{}, Transaction{}, err
	}
	return updated, reversal, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

// withRetry runs fn in the store's atomic unit, retrying conflict-class
// failures with fresh reads. Terminal errors pass through untouched.
func (s *Service) withRetry(ctx context.Context, fn func(Store) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = s.Store.WithTx(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: retries exhausted: %v", ErrStoreUnavailable, err)
}

func clamp(balance int64) int64 {
	if balance < 0 {
		return 0
	}
	return balance
}
