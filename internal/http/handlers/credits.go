package handlers

import (
	"encoding/json"
	"net/http"

	"snapcode/internal/domain"
)

type creditRequest struct {
	Amount int64  `json:"amount"`
	Kind   string `json:"kind"`
}

// Credits reports the account balance and ledger history.
func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	account, ok := a.accountID(w, r)
	if !ok {
		return
	}
	balance, err := a.Guard.Balance(r.Context(), account)
	if err != nil {
		a.domainError(w, err)
		return
	}
	entries, err := a.Guard.Entries(r.Context(), account)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"account_id": account,
		"balance":    balance,
		"entries":    entries,
	})
}

// AddCredits appends a purchase or adjustment entry. The billing webhook is
// the intended caller.
func (a *App) AddCredits(w http.ResponseWriter, r *http.Request) {
	account, ok := a.accountID(w, r)
	if !ok {
		return
	}
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	kind := domain.EntryKind(req.Kind)
	if kind == "" {
		kind = domain.EntryPurchase
	}
	if kind != domain.EntryPurchase && kind != domain.EntryAdjustment {
		a.error(w, http.StatusBadRequest, "bad_request", "kind must be purchase or adjustment")
		return
	}
	if req.Amount == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "amount must be non-zero")
		return
	}
	if err := a.Guard.Credit(r.Context(), account, req.Amount, kind); err != nil {
		a.domainError(w, err)
		return
	}
	balance, err := a.Guard.Balance(r.Context(), account)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"account_id": account, "balance": balance})
}
