/*
store.go - Persistence contract for accounts and the transaction log

PURPOSE:
  Defines the interface between the ledger and the database. Different
  implementations can use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  The transaction log has exactly one permitted mutation: MarkReversed,
  which flips the Reversed flag false->true once. There is no other
  Update and no Delete on transactions. Deleting an account keeps its
  transaction history.

ATOMICITY:
  TxStore.WithTx is the atomic unit required by the ledger: every
  read-balance / append-transaction / write-balance sequence runs inside
  it, so concurrent operations on the same account serialize instead of
  losing updates, and a failure leaves both the account and the log
  untouched.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - ledger/store: in-memory store for tests and dev
*/
package ledger

import "context"

// Store handles persistence of accounts and transactions.
type Store interface {
	// CreateAccount inserts a new account. Returns ErrCodeTaken if the
	// external code is already in use.
	CreateAccount(ctx context.Context, a Account) error

	// GetAccount returns an account by id, or ErrAccountNotFound.
	GetAccount(ctx context.Context, id string) (Account, error)

	// ListAccounts returns all accounts, administrators included.
	ListAccounts(ctx context.Context) ([]Account, error)

	// UpdateAccount overwrites an existing account's mutable fields
	// (balance, names, secret, provisioned flag).
	UpdateAccount(ctx context.Context, a Account) error

	// DeleteAccount removes the account record. Its transactions remain.
	DeleteAccount(ctx context.Context, id string) error

	// AppendTransaction adds an entry to the log. Append-only.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// GetTransaction returns a transaction by id, or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, id string) (Transaction, error)

	// MarkReversed flips the Reversed flag on a transaction. Returns
	// ErrAlreadyReversed if it is already set - the flag is terminal.
	MarkReversed(ctx context.Context, id string) error

	// TransactionsByAccount returns an account's transactions, most
	// recent first. Works for deleted accounts too.
	TransactionsByAccount(ctx context.Context, accountID string) ([]Transaction, error)

	// RecentTransactions returns the limit most recent transactions
	// system-wide whose kind is in kinds, most recent first.
	RecentTransactions(ctx context.Context, kinds []Kind, limit int) ([]Transaction, error)

	// AllTransactions returns the full log. Used by aggregate views,
	// which must filter by role on every call rather than cache.
	AllTransactions(ctx context.Context) ([]Transaction, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn atomically. If fn returns an error the store is
	// left exactly as it was; otherwise all of fn's writes are applied
	// together. Calls serialize with respect to each other.
	WithTx(ctx context.Context, fn func(Store) error) error
}
