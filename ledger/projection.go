/*
projection.go - Read-side views over the transaction log

PURPOSE:
  The Projector answers display queries without ever mutating state:
  per-account history, the recent activity feed, and the aggregate
  totals shown on the admin overview. Aggregates are recomputed from the
  full transaction set on every call - filtering by account role is a
  correctness requirement, not an optimization target, so nothing here
  is cached.
*/
package ledger

import "context"

// Projector serves read-only views over a ledger store.
type Projector struct {
	Store Store
}

func NewProjector(store Store) *Projector {
	return &Projector{Store: store}
}

// ActivityEntry is a transaction joined with its owner's display name
// for the recent activity feed.
type ActivityEntry struct {
	Transaction Transaction
	AccountName string
}

// Totals aggregates customer activity for summary statistics.
type Totals struct {
	AccountCount          int
	RedeemedCount         int
	PointsAssignedSum     int64
	ActionsCompletedCount int
}

// AccountHistory returns all transactions for an account, most recent
// first. Deleted accounts keep their history, so no existence check is
// made here.
func (p *Projector) AccountHistory(ctx context.Context, accountID string) ([]Transaction, error) {
	return p.Store.TransactionsByAccount(ctx, accountID)
}

// RecentActivity returns the limit most recent assignment and
// redemption transactions system-wide, each joined with the owning
// customer's display name. Transactions whose account cannot be
// resolved - deleted accounts, or the administrator - are silently
// omitted.
func (p *Projector) RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	txs, err := p.Store.RecentTransactions(ctx, []Kind{KindAssignment, KindRedemption}, limit)
	if err != nil {
		return nil, err
	}
	customers, err := p.customersByID(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]ActivityEntry, 0, len(txs))
	for _, tx := range txs {
		a, ok := customers[tx.AccountID]
		if !ok {
			continue
		}
		entries = append(entries, ActivityEntry{Transaction: tx, AccountName: a.DisplayName()})
	}
	return entries, nil
}

// AggregateTotals computes summary statistics over all customer
// accounts' transactions: how many customers exist, how many
// redemptions happened, the sum of positive point deltas, and how many
// assignments (completed actions) were recorded.
func (p *Projector) AggregateTotals(ctx context.Context) (Totals, error) {
	customers, err := p.customersByID(ctx)
	if err != nil {
		return Totals{}, err
	}
	txs, err := p.Store.AllTransactions(ctx)
	if err != nil {
		return Totals{}, err
	}

	totals := Totals{AccountCount: len(customers)}
	for _, tx := range txs {
		if _, ok := customers[tx.AccountID]; !ok {
			continue
		}
		switch tx.Kind {
		case KindRedemption:
			totals.RedeemedCount++
		case KindAssignment:
			totals.ActionsCompletedCount++
		}
		if tx.PointsChange > 0 {
			totals.PointsAssignedSum += tx.PointsChange
		}
	}
	return totals, nil
}

func (p *Projector) customersByID(ctx context.Context) (map[string]Account, error) {
	accounts, err := p.Store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	customers := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		if a.Role == RoleCustomer {
			customers[a.ID] = a
		}
	}
	return customers, nil
}
