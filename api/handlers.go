/*
handlers.go - HTTP handlers for the loyalty points engine

PURPOSE:
  Exposes the ledger and catalog via REST. Handlers parse the request,
  delegate to domain logic, and serialize the response; no ledger
  arithmetic lives here.

ERROR HANDLING:
  Domain errors map onto HTTP status codes:
  - 400: invalid input (bad JSON, invalid kind)
  - 404: account/transaction/catalog record not found
  - 409: reversal idempotency guard (already reversed)
  - 500: store failures, retry budget exhausted

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fidelity/loyalty-engine/catalog"
	"github.com/fidelity/loyalty-engine/ledger"
)

const defaultActivityLimit = 10

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *ledger.Service
	Projector *ledger.Projector
	Catalog   *catalog.Service
}

// NewHandler wires a handler over the ledger service and catalog. The
// projector reads through the same store the service writes to.
func NewHandler(svc *ledger.Service, cat *catalog.Service) *Handler {
	return &Handler{
		Ledger:    svc,
		Projector: ledger.NewProjector(svc.Store),
		Catalog:   cat,
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts, administrators included.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Ledger.Store.ListAccounts(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount allocates a code and credential and records the
// creation transaction. The generated secret appears only in this
// response.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Ledger.CreateAccount(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedAccountDTO{
		AccountDTO: toAccountDTO(a),
		Secret:     a.Secret,
	})
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Ledger.Store.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

// DeleteAccount removes an account, freeing its external code. The
// transaction history stays.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteSetup records first-time profile setup.
func (h *Handler) CompleteSetup(w http.ResponseWriter, r *http.Request) {
	var req CompleteSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := h.Ledger.CompleteSetup(r.Context(), chi.URLParam(r, "id"), req.FirstName, req.LastName, req.Secret)
	if err != nil {
		writeDomainError(w, "Failed to complete setup", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

// =============================================================================
// POINTS HANDLERS
// =============================================================================

// ApplyPoints moves an account's balance. Non-negative deltas are
// assignments, negative ones redemptions.
func (h *Handler) ApplyPoints(w http.ResponseWriter, r *http.Request) {
	var req ApplyPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	kind := ledger.KindAssignment
	if req.PointsChange < 0 {
		kind = ledger.KindRedemption
	}

	a, tx, err := h.Ledger.ApplyDelta(r.Context(), chi.URLParam(r, "id"), req.PointsChange, req.Name, req.Description, kind)
	if err != nil {
		writeDomainError(w, "Failed to apply points", err)
		return
	}
	writeJSON(w, http.StatusOK, ApplyPointsResponse{
		Account:     toAccountDTO(a),
		Transaction: toTransactionDTO(tx),
	})
}

// ReverseTransaction compensates a prior transaction. A second attempt
// on the same transaction returns 409.
func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	a, tx, err := h.Ledger.Reverse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to reverse transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, ApplyPointsResponse{
		Account:     toAccountDTO(a),
		Transaction: toTransactionDTO(tx),
	})
}

// =============================================================================
// READ-SIDE HANDLERS
// =============================================================================

// AccountHistory returns an account's transactions, most recent first.
func (h *Handler) AccountHistory(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Projector.AccountHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to load history", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// RecentActivity returns the most recent assignments and redemptions
// joined with customer names.
func (h *Handler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := h.Projector.RecentActivity(r.Context(), limit)
	if err != nil {
		writeDomainError(w, "Failed to load recent activity", err)
		return
	}

	dtos := make([]ActivityDTO, len(entries))
	for i, e := range entries {
		dtos[i] = ActivityDTO{
			TransactionDTO: toTransactionDTO(e.Transaction),
			AccountName:    e.AccountName,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Stats returns aggregate totals for the admin overview.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Projector.AggregateTotals(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to compute totals", err)
		return
	}
	writeJSON(w, http.StatusOK, TotalsDTO{
		AccountCount:          totals.AccountCount,
		RedeemedCount:         totals.RedeemedCount,
		PointsAssignedSum:     totals.PointsAssignedSum,
		ActionsCompletedCount: totals.ActionsCompletedCount,
	})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.Catalog.ListActions(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list actions", err)
		return
	}
	dtos := make([]ActionDTO, len(actions))
	for i, a := range actions {
		dtos[i] = toActionDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveAction creates an action when no id is given, updates it otherwise.
func (h *Handler) SaveAction(w http.ResponseWriter, r *http.Request) {
	var req ActionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	saved, err := h.Catalog.SaveAction(r.Context(), catalog.Action{
		ID: req.ID, Name: req.Name, Points: req.Points,
		Description: req.Description, Enabled: req.Enabled,
	})
	if err != nil {
		writeDomainError(w, "Failed to save action", err)
		return
	}
	writeJSON(w, http.StatusOK, toActionDTO(saved))
}

func (h *Handler) DeleteAction(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteAction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to delete action", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPrizes(w http.ResponseWriter, r *http.Request) {
	prizes, err := h.Catalog.ListPrizes(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list prizes", err)
		return
	}
	dtos := make([]PrizeDTO, len(prizes))
	for i, p := range prizes {
		dtos[i] = toPrizeDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SavePrize(w http.ResponseWriter, r *http.Request) {
	var req PrizeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	saved, err := h.Catalog.SavePrize(r.Context(), catalog.Prize{
		ID: req.ID, Name: req.Name, Description: req.Description,
		PointsRequired: req.PointsRequired,
	})
	if err != nil {
		writeDomainError(w, "Failed to save prize", err)
		return
	}
	writeJSON(w, http.StatusOK, toPrizeDTO(saved))
}

func (h *Handler) DeletePrize(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeletePrize(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to delete prize", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetRegulations(w http.ResponseWriter, r *http.Request) {
	text, err := h.Catalog.Regulations(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to load regulations", err)
		return
	}
	writeJSON(w, http.StatusOK, RegulationsDTO{Text: text})
}

func (h *Handler) SaveRegulations(w http.ResponseWriter, r *http.Request) {
	var req RegulationsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Catalog.SaveRegulations(r.Context(), req.Text); err != nil {
		writeDomainError(w, "Failed to save regulations", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger/catalog errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err) || errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrAlreadyReversed):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ledger.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
