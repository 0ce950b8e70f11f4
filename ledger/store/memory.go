// Package store provides an in-memory ledger.TxStore for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/fidelity/loyalty-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps the whole ledger in process memory. WithTx works on a
// copy of the state and swaps it in only on success, so a failing fn
// observes full rollback - same no-partial-writes contract as SQLite.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	accounts map[string]ledger.Account
	txs      []ledger.Transaction // append order == chronological order
	txIndex  map[string]int
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		accounts: make(map[string]ledger.Account),
		txIndex:  make(map[string]int),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts: make(map[string]ledger.Account, len(s.accounts)),
		txs:      make([]ledger.Transaction, len(s.txs)),
		txIndex:  make(map[string]int, len(s.txIndex)),
	}
	for id, a := range s.accounts {
		c.accounts[id] = a
	}
	copy(c.txs, s.txs)
	for id, i := range s.txIndex {
		c.txIndex[id] = i
	}
	return c
}

// =============================================================================
// TXSTORE
// =============================================================================

// WithTx runs fn against a private copy of the store. On success the
// copy replaces the live state; on error it is discarded. The store
// mutex serializes all transactions, which is what gives concurrent
// ApplyDelta calls on the same account their lost-update protection.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// memTx exposes Store over a working copy, without locking: the owning
// WithTx already holds the store mutex.
type memTx struct {
	state *memState
}

// =============================================================================
// STORE - direct (auto-committed) operations
// =============================================================================

func (m *Memory) CreateAccount(ctx context.Context, a ledger.Account) error {
	return m.WithTx(ctx, func(st ledger.Store) error { return st.CreateAccount(ctx, a) })
}

func (m *Memory) UpdateAccount(ctx context.Context, a ledger.Account) error {
	return m.WithTx(ctx, func(st ledger.Store) error { return st.UpdateAccount(ctx, a) })
}

func (m *Memory) DeleteAccount(ctx context.Context, id string) error {
	return m.WithTx(ctx, func(st ledger.Store) error { return st.DeleteAccount(ctx, id) })
}

func (m *Memory) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	return m.WithTx(ctx, func(st ledger.Store) error { return st.AppendTransaction(ctx, tx) })
}

func (m *Memory) MarkReversed(ctx context.Context, id string) error {
	return m.WithTx(ctx, func(st ledger.Store) error { return st.MarkReversed(ctx, id) })
}

func (m *Memory) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).GetAccount(ctx, id)
}

func (m *Memory) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).ListAccounts(ctx)
}

func (m *Memory) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).GetTransaction(ctx, id)
}

func (m *Memory) TransactionsByAccount(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).TransactionsByAccount(ctx, accountID)
}

func (m *Memory) RecentTransactions(ctx context.Context, kinds []ledger.Kind, limit int) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).RecentTransactions(ctx, kinds, limit)
}

func (m *Memory) AllTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).AllTransactions(ctx)
}

// =============================================================================
// STORE - implementation over a working copy
// =============================================================================

func (t *memTx) CreateAccount(_ context.Context, a ledger.Account) error {
	for _, existing := range t.state.accounts {
		if existing.Code == a.Code {
			return ledger.ErrCodeTaken
		}
	}
	t.state.accounts[a.ID] = a
	return nil
}

func (t *memTx) GetAccount(_ context.Context, id string) (ledger.Account, error) {
	a, ok := t.state.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (t *memTx) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	accounts := make([]ledger.Account, 0, len(t.state.accounts))
	for _, a := range t.state.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	return accounts, nil
}

func (t *memTx) UpdateAccount(_ context.Context, a ledger.Account) error {
	if _, ok := t.state.accounts[a.ID]; !ok {
		return ledger.ErrAccountNotFound
	}
	t.state.accounts[a.ID] = a
	return nil
}

func (t *memTx) DeleteAccount(_ context.Context, id string) error {
	if _, ok := t.state.accounts[id]; !ok {
		return ledger.ErrAccountNotFound
	}
	delete(t.state.accounts, id)
	return nil
}

func (t *memTx) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	t.state.txIndex[tx.ID] = len(t.state.txs)
	t.state.txs = append(t.state.txs, tx)
	return nil
}

func (t *memTx) GetTransaction(_ context.Context, id string) (ledger.Transaction, error) {
	i, ok := t.state.txIndex[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return t.state.txs[i], nil
}

func (t *memTx) MarkReversed(_ context.Context, id string) error {
	i, ok := t.state.txIndex[id]
	if !ok {
		return ledger.ErrTransactionNotFound
	}
	if t.state.txs[i].Reversed {
		return ledger.ErrAlreadyReversed
	}
	t.state.txs[i].Reversed = true
	return nil
}

func (t *memTx) TransactionsByAccount(_ context.Context, accountID string) ([]ledger.Transaction, error) {
	var result []ledger.Transaction
	// Walk backwards so equal timestamps come out newest-insertion first.
	for i := len(t.state.txs) - 1; i >= 0; i-- {
		if t.state.txs[i].AccountID == accountID {
			result = append(result, t.state.txs[i])
		}
	}
	sortByTimestampDesc(result)
	return result, nil
}

func (t *memTx) RecentTransactions(_ context.Context, kinds []ledger.Kind, limit int) ([]ledger.Transaction, error) {
	wanted := make(map[ledger.Kind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}
	var result []ledger.Transaction
	for i := len(t.state.txs) - 1; i >= 0; i-- {
		if wanted[t.state.txs[i].Kind] {
			result = append(result, t.state.txs[i])
		}
	}
	sortByTimestampDesc(result)
	if limit >= 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (t *memTx) AllTransactions(_ context.Context) ([]ledger.Transaction, error) {
	result := make([]ledger.Transaction, len(t.state.txs))
	copy(result, t.state.txs)
	return result, nil
}

func sortByTimestampDesc(txs []ledger.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
}
