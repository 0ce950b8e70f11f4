package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidelity/loyalty-engine/ledger"
	"github.com/fidelity/loyalty-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*ledger.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return ledger.NewService(mem), mem
}

// alwaysConflict wraps a store so every atomic unit fails with a
// retryable conflict, for exercising the retry budget.
type alwaysConflict struct {
	*store.Memory
	calls int
}

func (s *alwaysConflict) WithTx(_ context.Context, _ func(ledger.Store) error) error {
	s.calls++
	return ledger.ErrConflict
}

// =============================================================================
// ACCOUNT LIFECYCLE
// =============================================================================

func TestCreateAccount_FirstAccount(t *testing.T) {
	// GIVEN: An empty ledger
	// WHEN: Creating an account
	// THEN: It gets code CL001, a credential, zero balance, and a creation transaction

	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	assert.Equal(t, "CL001", a.Code)
	assert.Equal(t, ledger.RoleCustomer, a.Role)
	assert.Equal(t, int64(0), a.Balance)
	assert.True(t, a.Provisioned)
	assert.Len(t, a.Secret, 8)

	history, err := svc.Store.TransactionsByAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ledger.KindCreation, history[0].Kind)
	assert.Equal(t, int64(0), history[0].PointsChange)
	assert.Equal(t, int64(0), history[0].BalanceAfter)
	assert.False(t, history[0].Reversed)
}

func TestCreateAccount_SequentialCodes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	second, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	assert.Equal(t, "CL001", first.Code)
	assert.Equal(t, "CL002", second.Code)
}

func TestDeleteAccount_CodeIsReused(t *testing.T) {
	// GIVEN: Accounts CL001..CL003, then CL002 is deleted
	// WHEN: Creating the next account
	// THEN: It fills the gap and gets CL002

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	second, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	_, err = svc.CreateAccount(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(ctx, second.ID))

	replacement, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CL002", replacement.Code)
}

func TestDeleteAccount_HistorySurvives(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	_, _, err = svc.ApplyDelta(ctx, a.ID, 20, "Men's Haircut", "", ledger.KindAssignment)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(ctx, a.ID))

	history, err := svc.Store.TransactionsByAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "creation and assignment stay after deletion")
}

func TestDeleteAccount_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.DeleteAccount(context.Background(), "missing")
	assert.True(t, ledger.IsNotFound(err))
}

func TestCompleteSetup(t *testing.T) {
	// GIVEN: A freshly provisioned account
	// WHEN: The holder completes setup with names and a new secret
	// THEN: Profile is stored, secret replaced, and the provisioned flag cleared

	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	updated, err := svc.CompleteSetup(ctx, a.ID, "Maria", "Rossi", "my-own-secret")
	require.NoError(t, err)

	assert.Equal(t, "Maria", updated.FirstName)
	assert.Equal(t, "Rossi", updated.LastName)
	assert.Equal(t, "my-own-secret", updated.Secret)
	assert.False(t, updated.Provisioned)
	assert.Equal(t, "Maria Rossi", updated.DisplayName())
}

func TestCompleteSetup_KeepsSecretWhenEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	updated, err := svc.CompleteSetup(ctx, a.ID, "Maria", "Rossi", "")
	require.NoError(t, err)
	assert.Equal(t, a.Secret, updated.Secret)
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	// GIVEN: An admin bootstrapped at startup
	// WHEN: EnsureAdmin runs again (next startup)
	// THEN: The existing admin is returned, no duplicate is created

	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnsureAdmin(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.Equal(t, ledger.RoleAdmin, first.Role)

	second, err := svc.EnsureAdmin(ctx, "admin2", "other")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	accounts, err := svc.Store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestCreateAccount_AdminDoesNotConsumeCustomerCodes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnsureAdmin(ctx, "admin", "admin")
	require.NoError(t, err)

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CL001", a.Code)
}

// =============================================================================
// APPLY DELTA
// =============================================================================

func TestApplyDelta_AssignmentAndRedemption(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	updated, tx, err := svc.ApplyDelta(ctx, a.ID, 20, "Men's Haircut", "Haircut service", ledger.KindAssignment)
	require.NoError(t, err)
	assert.Equal(t, int64(20), updated.Balance)
	assert.Equal(t, int64(20), tx.BalanceAfter)
	assert.Equal(t, int64(20), tx.PointsChange)
	assert.Equal(t, ledger.KindAssignment, tx.Kind)

	updated, tx, err = svc.ApplyDelta(ctx, a.ID, -15, "Free Espresso", "", ledger.KindRedemption)
	require.NoError(t, err)
	assert.Equal(t, int64(5), updated.Balance)
	assert.Equal(t, int64(5), tx.BalanceAfter)
	assert.Equal(t, int64(-15), tx.PointsChange)
}

func TestApplyDelta_ClampsAtZero(t *testing.T) {
	// GIVEN: An account with 10 points
	// WHEN: Redeeming 50
	// THEN: The balance floors at 0 and the transaction records the clamped
	//       post-state, not balance+delta

	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	_, _, err = svc.ApplyDelta(ctx, a.ID, 10, "Bonus", "", ledger.KindAssignment)
	require.NoError(t, err)

	updated, tx, err := svc.ApplyDelta(ctx, a.ID, -50, "Big Prize", "", ledger.KindRedemption)
	require.NoError(t, err)

	assert.Equal(t, int64(0), updated.Balance)
	assert.Equal(t, int64(0), tx.BalanceAfter)
	assert.Equal(t, int64(-50), tx.PointsChange, "the full requested delta is recorded")
}

func TestApplyDelta_RejectsReversalKind(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	_, _, err = svc.ApplyDelta(ctx, a.ID, 5, "x", "", ledger.KindReversal)
	assert.ErrorIs(t, err, ledger.ErrInvalidKind)
}

func TestApplyDelta_RejectsSignKindMismatch(t *testing.T) {
	// GIVEN: An account
	// WHEN: Applying deltas whose sign disagrees with the kind
	// THEN: ErrInvalidKind, and nothing is recorded

	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	cases := []struct {
		name  string
		delta int64
		kind  ledger.Kind
	}{
		{"negative assignment", -5, ledger.KindAssignment},
		{"positive redemption", 5, ledger.KindRedemption},
		{"non-zero creation", 1, ledger.KindCreation},
	}
	for _, tc := range cases {
		_, _, err := svc.ApplyDelta(ctx, a.ID, tc.delta, "x", "", tc.kind)
		assert.ErrorIs(t, err, ledger.ErrInvalidKind, tc.name)
	}

	final, err := svc.Store.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), final.Balance)
	history, err := svc.Store.TransactionsByAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "only the creation marker")
}

func TestApplyDelta_ZeroDeltaAssignmentAllowed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	_, tx, err := svc.ApplyDelta(ctx, a.ID, 0, "Promo Visit", "", ledger.KindAssignment)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tx.BalanceAfter)
}

func TestApplyDelta_UnknownAccount(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.ApplyDelta(context.Background(), "missing", 5, "x", "", ledger.KindAssignment)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestApplyDelta_ConcurrentNoLostUpdate(t *testing.T) {
	// GIVEN: One account, balance 0
	// WHEN: Two concurrent +10 assignments
	// THEN: Balance is 20 and both transactions are in the log

	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.ApplyDelta(ctx, a.ID, 10, "Visit", "", ledger.KindAssignment)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := svc.Store.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), final.Balance)

	history, err := svc.Store.TransactionsByAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3, "creation plus two assignments")
}

// =============================================================================
// REVERSAL
// =============================================================================

func TestReverse_CompensatesAndMarksOriginal(t *testing.T) {
	// GIVEN: An assignment of +20
	// WHEN: Reversing it
	// THEN: A compensating -20 entry is appended, the original is flagged,
	//       and the balance returns to its prior value

	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	_, orig, err := svc.ApplyDelta(ctx, a.ID, 20, "Men's Haircut", "mistake", ledger.KindAssignment)
	require.NoError(t, err)

	updated, reversal, err := svc.Reverse(ctx, orig.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(0), updated.Balance)
	assert.Equal(t, ledger.KindReversal, reversal.Kind)
	assert.Equal(t, int64(-20), reversal.PointsChange)
	assert.Equal(t, int64(0), reversal.BalanceAfter)
	assert.Equal(t, orig.ID, reversal.ReversalOf)
	assert.True(t, reversal.Reversed, "a reversal is born reversed")
	assert.Equal(t, "Reversal: mistake", reversal.Description)

	stored, err := svc.Store.GetTransaction(ctx, orig.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reversed)
}

func TestReverse_SecondAttemptRejected(t *testing.T) {
	// GIVEN: A transaction that was already reversed
	// WHEN: Reversing it again
	// THEN: ErrAlreadyReversed, and neither balance nor log change

	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	_, orig, err := svc.ApplyDelta(ctx, a.ID, 20, "Men's Haircut", "", ledger.KindAssignment)
	require.NoError(t, err)

	_, _, err = svc.Reverse(ctx, orig.ID)
	require.NoError(t, err)

	_, _, err = svc.Reverse(ctx, orig.ID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyReversed)

	final, err := svc.Store.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), final.Balance)

	history, err := svc.Store.TransactionsByAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3, "creation, assignment, one reversal")
}

func TestReverse_ReversalCannotBeReversed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	_, orig, err := svc.ApplyDelta(ctx, a.ID, 20, "x", "", ledger.KindAssignment)
	require.NoError(t, err)
	_, reversal, err := svc.Reverse(ctx, orig.ID)
	require.NoError(t, err)

	_, _, err = svc.Reverse(ctx, reversal.ID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyReversed)
}

func TestReverse_AfterClamping_UsesCurrentBalance(t *testing.T) {
	// GIVEN: +10, then -50 clamped to 0
	// WHEN: Reversing the -50 redemption
	// THEN: The inverse delta (+50) applies to the current balance; the
	//       engine does not reconstruct the unclamped history

	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	_, _, err = svc.ApplyDelta(ctx, a.ID, 10, "Bonus", "", ledger.KindAssignment)
	require.NoError(t, err)
	_, redemption, err := svc.ApplyDelta(ctx, a.ID, -50, "Big Prize", "", ledger.KindRedemption)
	require.NoError(t, err)

	updated, reversal, err := svc.Reverse(ctx, redemption.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(50), reversal.PointsChange)
	assert.Equal(t, int64(50), updated.Balance)
}

func TestReverse_UnknownTransaction(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Reverse(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

// =============================================================================
// RETRY BUDGET
// =============================================================================

func TestConflictRetriesExhausted(t *testing.T) {
	// GIVEN: A store that fails every atomic unit with a conflict
	// WHEN: Creating an account
	// THEN: The operation retries a bounded number of times, then
	//       surfaces ErrStoreUnavailable

	failing := &alwaysConflict{Memory: store.NewMemory()}
	svc := ledger.NewService(failing)

	_, err := svc.CreateAccount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStoreUnavailable)
	assert.False(t, errors.Is(err, ledger.ErrConflict), "conflict is consumed by the retry loop")
	assert.Equal(t, 3, failing.calls)
}
