/*
Package ledger is the points ledger engine: an append-only transaction
log plus one mutable balance per account.

PURPOSE:
  Every point-affecting event (account creation, point assignment,
  redemption, reversal) is recorded as an immutable Transaction. The
  account balance is persisted for fast reads but is always equal to the
  BalanceAfter of the account's most recent transaction.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: transactions are never updated or deleted, with one
     exception - the Reversed flag, which flips false->true exactly once.
  2. BALANCE: for every account, balance == BalanceAfter of its latest
     transaction (0 if the account has no transactions yet).
  3. CLAMPING: balances never go below zero. A delta whose magnitude
     exceeds the current balance floors the balance at 0, and
     BalanceAfter records the floored value, not the arithmetic result.
  4. REVERSAL IS TERMINAL: a reversed transaction cannot be reversed
     again. Corrections happen via compensating transactions, never
     edits.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: a customer or administrator with a running points balance
  - Transaction: an immutable ledger entry recording a balance change
  - Kind: what sort of event a transaction records

SEE ALSO:
  - ledger.go: the write-side Service (create, apply, reverse, delete)
  - projection.go: read-side views over the transaction log
  - store.go: persistence contract
*/
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is a participant in the loyalty program.
//
// Balance is a derived quantity (the BalanceAfter of the latest
// transaction) persisted for fast reads. Only the ledger Service may
// change it.
type Account struct {
	ID        string
	Code      string // human-facing external code, e.g. "CL001"; unique
	FirstName string
	LastName  string
	Secret    string // opaque credential, generated at creation
	Balance   int64
	Role      Role
	// Provisioned is true until the account holder completes first-time
	// setup. It never affects ledger arithmetic.
	Provisioned bool
	CreatedAt   time.Time
}

// DisplayName returns "First Last" when available, falling back to the
// external code for accounts that never completed setup.
func (a Account) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
	if name == "" {
		return a.Code
	}
	return name
}

// =============================================================================
// TRANSACTION
// =============================================================================

type Kind string

const (
	KindCreation   Kind = "creation"   // zero-delta marker written when an account is created
	KindAssignment Kind = "assignment" // points earned (delta >= 0)
	KindRedemption Kind = "redemption" // points spent (delta <= 0)
	KindReversal   Kind = "reversal"   // compensating entry undoing a prior transaction
)

// Transaction is one immutable entry in the ledger.
//
// Name and Description are two separate fields. Callers must not encode
// a secondary label into Description ("Name (Description)"); display
// grouping is the caller's concern, not the ledger's.
type Transaction struct {
	ID           string
	AccountID    string
	Timestamp    time.Time
	Kind         Kind
	Name         string
	Description  string
	PointsChange int64
	// BalanceAfter snapshots the account balance immediately after this
	// transaction was applied. Because of zero-clamping it is the
	// authoritative post-state: it cannot be recomputed from
	// PointsChange alone.
	BalanceAfter int64
	// Reversed flips to true exactly once, when a reversal compensates
	// this transaction. Reversal entries are born with Reversed = true
	// so they can never be reversed themselves.
	Reversed   bool
	ReversalOf string // id of the original transaction; reversal kind only
}

// NewID returns a fresh opaque identifier for accounts and transactions.
func NewID() string {
	return uuid.NewString()
}
