// Package handlers exposes the conversion service over HTTP. Authentication
// is delegated to the fronting gateway; handlers trust the account identity
// it forwards.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"snapcode/internal/convert"
	"snapcode/internal/domain"
	"snapcode/internal/ledger"
	"snapcode/internal/provider"
)

// AccountHeader carries the caller identity set by the gateway.
const AccountHeader = "X-Account-ID"

// App is the handler container.
type App struct {
	Service *convert.Service
	Guard   *ledger.Guard
	Router  *provider.Router
	Log     zerolog.Logger
}

// NewApp wires the handler container.
func NewApp(service *convert.Service, guard *ledger.Guard, router *provider.Router, log zerolog.Logger) *App {
	return &App{Service: service, Guard: guard, Router: router, Log: log}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, msg string) {
	a.json(w, code, map[string]string{"error": slug, "message": msg})
}

// domainError translates service errors to HTTP responses.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidOptions):
		a.error(w, http.StatusBadRequest, "invalid_options", err.Error())
	case errors.Is(err, domain.ErrInvalidImage):
		a.error(w, http.StatusBadRequest, "invalid_image", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "account balance cannot cover this conversion")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrAlreadyTerminal):
		a.error(w, http.StatusConflict, "already_terminal", "job already reached a terminal state")
	case errors.Is(err, domain.ErrNotReady):
		a.error(w, http.StatusConflict, "not_ready", err.Error())
	case errors.Is(err, domain.ErrExpired):
		a.error(w, http.StatusGone, "expired", "artifacts for this job have expired")
	default:
		a.Log.Error().Err(err).Msg("handlers: internal error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := r.Header.Get(AccountHeader)
	if account == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing "+AccountHeader+" header")
		return "", false
	}
	return account, true
}
