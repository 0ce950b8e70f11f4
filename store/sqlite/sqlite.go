/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

INTERFACES IMPLEMENTED:
  ledger.TxStore: accounts + append-only transaction log, atomic units
  catalog.Store:  actions, prizes, regulations records

APPEND-ONLY ENFORCEMENT:
  The transactions table sees INSERTs and exactly one UPDATE form: the
  guarded flip of the reversed flag (WHERE reversed = 0). Nothing ever
  deletes from it - deleting an account leaves its history in place.

CONCURRENCY:
  A sync.RWMutex serializes writers at the store level; SQLite runs in
  WAL mode so readers don't block. WithTx wraps a database/sql
  transaction, which is what makes applyDelta/reverse atomic per the
  ledger's contract. The UNIQUE index on customer codes turns two racing
  allocations into ledger.ErrCodeTaken, which the service retries with a
  freshly recomputed gap.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fidelity/loyalty-engine/catalog"
	"github.com/fidelity/loyalty-engine/ledger"
)

// Store implements ledger.TxStore and catalog.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent (every
	// pooled connection would otherwise get its own empty database) and
	// matches SQLite's single-writer model.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		secret TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0,
		role TEXT NOT NULL,
		provisioned INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	-- Two racing creations computing the same code gap collide here and
	-- one of them retries with a recomputed gap.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_code ON accounts(code);

	-- Append-only ledger
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		points_change INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		reversed INTEGER NOT NULL DEFAULT 0,
		reversal_of TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account
		ON transactions(account_id, ts DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_ts
		ON transactions(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_kind
		ON transactions(kind);

	-- Catalog records
	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		points INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS prizes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		points_required INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS regulations (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Timestamps are stored at nanosecond precision: transaction ordering
// is timestamp-descending and second precision would collapse entries
// written in the same second.
const tsFormat = time.RFC3339Nano

// =============================================================================
// LEDGER TXSTORE
// =============================================================================

// WithTx executes fn within a database transaction, serialized against
// all other writers.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storeErr("commit transaction", err)
	}
	return nil
}

// txStore exposes ledger.Store over an open sql.Tx. No locking: the
// owning WithTx holds the store mutex.
type txStore struct {
	q dbtx
}

func (t *txStore) CreateAccount(ctx context.Context, a ledger.Account) error {
	return createAccount(ctx, t.q, a)
}
func (t *txStore) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	return getAccount(ctx, t.q, id)
}
func (t *txStore) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	return listAccounts(ctx, t.q)
}
func (t *txStore) UpdateAccount(ctx context.Context, a ledger.Account) error {
	return updateAccount(ctx, t.q, a)
}
func (t *txStore) DeleteAccount(ctx context.Context, id string) error {
	return deleteAccount(ctx, t.q, id)
}
func (t *txStore) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	return appendTransaction(ctx, t.q, tx)
}
func (t *txStore) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	return getTransaction(ctx, t.q, id)
}
func (t *txStore) MarkReversed(ctx context.Context, id string) error {
	return markReversed(ctx, t.q, id)
}
func (t *txStore) TransactionsByAccount(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	return transactionsByAccount(ctx, t.q, accountID)
}
func (t *txStore) RecentTransactions(ctx context.Context, kinds []ledger.Kind, limit int) ([]ledger.Transaction, error) {
	return recentTransactions(ctx, t.q, kinds, limit)
}
func (t *txStore) AllTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	return allTransactions(ctx, t.q)
}

// =============================================================================
// LEDGER STORE - direct (auto-committed) operations
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createAccount(ctx, s.db, a)
}

func (s *Store) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccounts(ctx, s.db)
}

func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAccount(ctx, s.db, a)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAccount(ctx, s.db, id)
}

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func (s *Store) MarkReversed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markReversed(ctx, s.db, id)
}

func (s *Store) TransactionsByAccount(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionsByAccount(ctx, s.db, accountID)
}

func (s *Store) RecentTransactions(ctx context.Context, kinds []ledger.Kind, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recentTransactions(ctx, s.db, kinds, limit)
}

func (s *Store) AllTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return allTransactions(ctx, s.db)
}

// =============================================================================
// ACCOUNT QUERIES
// =============================================================================

func createAccount(ctx context.Context, q dbtx, a ledger.Account) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (id, code, first_name, last_name, secret, balance, role, provisioned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Code, a.FirstName, a.LastName, a.Secret,
		a.Balance, string(a.Role), a.Provisioned, a.CreatedAt.UTC().Format(tsFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrCodeTaken
		}
		return storeErr("create account", err)
	}
	return nil
}

func getAccount(ctx context.Context, q dbtx, id string) (ledger.Account, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, code, first_name, last_name, secret, balance, role, provisioned, created_at
		FROM accounts WHERE id = ?`, id)
	return scanAccountRow(row)
}

func listAccounts(ctx context.Context, q dbtx) ([]ledger.Account, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, code, first_name, last_name, secret, balance, role, provisioned, created_at
		FROM accounts ORDER BY code`)
	if err != nil {
		return nil, storeErr("list accounts", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func updateAccount(ctx context.Context, q dbtx, a ledger.Account) error {
	res, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET first_name = ?, last_name = ?, secret = ?, balance = ?, provisioned = ?
		WHERE id = ?`,
		a.FirstName, a.LastName, a.Secret, a.Balance, a.Provisioned, a.ID,
	)
	if err != nil {
		return storeErr("update account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func deleteAccount(ctx context.Context, q dbtx, id string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return storeErr("delete account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// =============================================================================
// TRANSACTION QUERIES
// =============================================================================

const txColumns = "id, account_id, ts, kind, name, description, points_change, balance_after, reversed, reversal_of"

func appendTransaction(ctx context.Context, q dbtx, tx ledger.Transaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.AccountID, tx.Timestamp.UTC().Format(tsFormat), string(tx.Kind),
		tx.Name, tx.Description, tx.PointsChange, tx.BalanceAfter,
		tx.Reversed, nullString(tx.ReversalOf),
	)
	if err != nil {
		return storeErr("append transaction", err)
	}
	return nil
}

func getTransaction(ctx context.Context, q dbtx, id string) (ledger.Transaction, error) {
	txs, err := queryTransactions(ctx, q,
		"SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if len(txs) == 0 {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return txs[0], nil
}

// markReversed flips the reversed flag exactly once. The WHERE guard
// keeps the flip terminal even if two reversals race past the service's
// own check.
func markReversed(ctx context.Context, q dbtx, id string) error {
	res, err := q.ExecContext(ctx,
		"UPDATE transactions SET reversed = 1 WHERE id = ? AND reversed = 0", id)
	if err != nil {
		return storeErr("mark reversed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := getTransaction(ctx, q, id); err != nil {
			return err
		}
		return ledger.ErrAlreadyReversed
	}
	return nil
}

func transactionsByAccount(ctx context.Context, q dbtx, accountID string) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, q, `
		SELECT `+txColumns+` FROM transactions
		WHERE account_id = ?
		ORDER BY ts DESC, rowid DESC`, accountID)
}

func recentTransactions(ctx context.Context, q dbtx, kinds []ledger.Kind, limit int) ([]ledger.Transaction, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
	args := make([]any, 0, len(kinds)+1)
	for _, k := range kinds {
		args = append(args, string(k))
	}
	args = append(args, limit)

	return queryTransactions(ctx, q, `
		SELECT `+txColumns+` FROM transactions
		WHERE kind IN (`+placeholders+`)
		ORDER BY ts DESC, rowid DESC
		LIMIT ?`, args...)
}

func allTransactions(ctx context.Context, q dbtx) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, q,
		"SELECT "+txColumns+" FROM transactions ORDER BY ts ASC, rowid ASC")
}

func queryTransactions(ctx context.Context, q dbtx, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query transactions", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx         ledger.Transaction
			ts         string
			kind       string
			reversalOf sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &ts, &kind, &tx.Name, &tx.Description,
			&tx.PointsChange, &tx.BalanceAfter, &tx.Reversed, &reversalOf); err != nil {
			return nil, storeErr("scan transaction", err)
		}
		tx.Timestamp, err = time.Parse(tsFormat, ts)
		if err != nil {
			return nil, storeErr("parse transaction timestamp", err)
		}
		tx.Kind = ledger.Kind(kind)
		tx.ReversalOf = reversalOf.String
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanAccountRow(row *sql.Row) (ledger.Account, error) {
	var (
		a         ledger.Account
		role      string
		createdAt string
	)
	err := row.Scan(&a.ID, &a.Code, &a.FirstName, &a.LastName, &a.Secret,
		&a.Balance, &role, &a.Provisioned, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, storeErr("scan account", err)
	}
	a.Role = ledger.Role(role)
	a.CreatedAt, err = time.Parse(tsFormat, createdAt)
	if err != nil {
		return ledger.Account{}, storeErr("parse account timestamp", err)
	}
	return a, nil
}

func scanAccount(rows *sql.Rows) (ledger.Account, error) {
	var (
		a         ledger.Account
		role      string
		createdAt string
	)
	err := rows.Scan(&a.ID, &a.Code, &a.FirstName, &a.LastName, &a.Secret,
		&a.Balance, &role, &a.Provisioned, &createdAt)
	if err != nil {
		return ledger.Account{}, storeErr("scan account", err)
	}
	a.Role = ledger.Role(role)
	a.CreatedAt, err = time.Parse(tsFormat, createdAt)
	if err != nil {
		return ledger.Account{}, storeErr("parse account timestamp", err)
	}
	return a, nil
}

// =============================================================================
// CATALOG STORE (catalog.Store interface)
// =============================================================================

func (s *Store) ListActions(ctx context.Context) ([]catalog.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, points, description, enabled FROM actions ORDER BY name")
	if err != nil {
		return nil, storeErr("list actions", err)
	}
	defer rows.Close()

	var actions []catalog.Action
	for rows.Next() {
		var a catalog.Action
		if err := rows.Scan(&a.ID, &a.Name, &a.Points, &a.Description, &a.Enabled); err != nil {
			return nil, storeErr("scan action", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *Store) SaveAction(ctx context.Context, a catalog.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (id, name, points, description, enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			points = excluded.points,
			description = excluded.description,
			enabled = excluded.enabled`,
		a.ID, a.Name, a.Points, a.Description, a.Enabled,
	)
	if err != nil {
		return storeErr("save action", err)
	}
	return nil
}

func (s *Store) DeleteAction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM actions WHERE id = ?", id)
	if err != nil {
		return storeErr("delete action", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) ListPrizes(ctx context.Context) ([]catalog.Prize, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, points_required FROM prizes ORDER BY points_required ASC")
	if err != nil {
		return nil, storeErr("list prizes", err)
	}
	defer rows.Close()

	var prizes []catalog.Prize
	for rows.Next() {
		var p catalog.Prize
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PointsRequired); err != nil {
			return nil, storeErr("scan prize", err)
		}
		prizes = append(prizes, p)
	}
	return prizes, rows.Err()
}

func (s *Store) SavePrize(ctx context.Context, p catalog.Prize) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prizes (id, name, description, points_required)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			points_required = excluded.points_required`,
		p.ID, p.Name, p.Description, p.PointsRequired,
	)
	if err != nil {
		return storeErr("save prize", err)
	}
	return nil
}

func (s *Store) DeletePrize(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM prizes WHERE id = ?", id)
	if err != nil {
		return storeErr("delete prize", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) GetRegulations(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var text string
	err := s.db.QueryRowContext(ctx,
		"SELECT text FROM regulations WHERE id = 'main'").Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storeErr("get regulations", err)
	}
	return text, nil
}

func (s *Store) SaveRegulations(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO regulations (id, text) VALUES ('main', ?)
		ON CONFLICT(id) DO UPDATE SET text = excluded.text`, text)
	if err != nil {
		return storeErr("save regulations", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isBusyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// storeErr classifies low-level failures into the ledger's taxonomy:
// lock contention is retryable, everything else is a store failure.
func storeErr(op string, err error) error {
	if isBusyError(err) {
		return fmt.Errorf("%w: %s: %v", ledger.ErrConflict, op, err)
	}
	return fmt.Errorf("%w: failed to %s: %v", ledger.ErrStoreUnavailable, op, err)
}
