/*
dto.go - Data Transfer Objects for API requests and responses

JSON field names follow the ledger's wire contract: externalCode,
isProvisioned, pointsChange, balanceAfter, reversed, reversalOf. DTOs
are pure data carriers; validation happens in handlers.
*/
package api

import (
	"time"

	"github.com/fidelity/loyalty-engine/catalog"
	"github.com/fidelity/loyalty-engine/ledger"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents an account in API responses. The secret is
// never included here; it is returned once, at creation.
type AccountDTO struct {
	ID           string `json:"id"`
	ExternalCode string `json:"externalCode"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Balance      int64  `json:"balance"`
	Role         string `json:"role"`
	Provisioned  bool   `json:"isProvisioned"`
	CreatedAt    string `json:"createdAt"`
}

// CreatedAccountDTO is the create-account response: the account plus
// its generated secret, shown exactly once.
type CreatedAccountDTO struct {
	AccountDTO
	Secret string `json:"secret"`
}

// CompleteSetupRequest records first-time setup.
type CompleteSetupRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Secret    string `json:"secret,omitempty"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents a ledger entry in API responses.
type TransactionDTO struct {
	ID           string `json:"id"`
	AccountID    string `json:"accountId"`
	Timestamp    string `json:"timestamp"`
	Kind         string `json:"kind"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	PointsChange int64  `json:"pointsChange"`
	BalanceAfter int64  `json:"balanceAfter"`
	Reversed     bool   `json:"reversed"`
	ReversalOf   string `json:"reversalOf,omitempty"`
}

// ApplyPointsRequest moves an account's balance. The kind is derived
// from the sign: non-negative deltas are assignments, negative ones
// redemptions.
type ApplyPointsRequest struct {
	PointsChange int64  `json:"pointsChange"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
}

// ApplyPointsResponse returns the updated account and the created
// transaction; Reverse returns the same shape.
type ApplyPointsResponse struct {
	Account     AccountDTO     `json:"account"`
	Transaction TransactionDTO `json:"transaction"`
}

// ActivityDTO is a transaction joined with the owning customer's
// display name, for the recent activity feed.
type ActivityDTO struct {
	TransactionDTO
	AccountName string `json:"accountName"`
}

// TotalsDTO carries the admin overview statistics.
type TotalsDTO struct {
	AccountCount          int   `json:"accountCount"`
	RedeemedCount         int   `json:"redeemedCount"`
	PointsAssignedSum     int64 `json:"pointsAssignedSum"`
	ActionsCompletedCount int   `json:"actionsCompletedCount"`
}

// =============================================================================
// CATALOG
// =============================================================================

type ActionDTO struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Points      int64  `json:"points"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"isEnabled"`
}

type PrizeDTO struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	PointsRequired int64  `json:"pointsRequired"`
}

type RegulationsDTO struct {
	Text string `json:"text"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:           a.ID,
		ExternalCode: a.Code,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Balance:      a.Balance,
		Role:         string(a.Role),
		Provisioned:  a.Provisioned,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:           tx.ID,
		AccountID:    tx.AccountID,
		Timestamp:    tx.Timestamp.Format(time.RFC3339Nano),
		Kind:         string(tx.Kind),
		Name:         tx.Name,
		Description:  tx.Description,
		PointsChange: tx.PointsChange,
		BalanceAfter: tx.BalanceAfter,
		Reversed:     tx.Reversed,
		ReversalOf:   tx.ReversalOf,
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toActionDTO(a catalog.Action) ActionDTO {
	return ActionDTO{ID: a.ID, Name: a.Name, Points: a.Points, Description: a.Description, Enabled: a.Enabled}
}

func toPrizeDTO(p catalog.Prize) PrizeDTO {
	return PrizeDTO{ID: p.ID, Name: p.Name, Description: p.Description, PointsRequired: p.PointsRequired}
}
