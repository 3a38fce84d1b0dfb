package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/service"
)

type AccountController struct {
	AccountService *service.AccountService
	Log            zerolog.Logger
}

func (c *AccountController) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var body service.AccountInput
	if err := decode(w, r, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}
	account, err := c.AccountService.Create(r.Context(), tenantID(r), body)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (c *AccountController) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := c.AccountService.List(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": accounts})
}

func (c *AccountController) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := c.AccountService.Get(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (c *AccountController) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var body service.AccountInput
	if err := decode(w, r, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}
	account, err := c.AccountService.Update(r.Context(), tenantID(r), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (c *AccountController) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := c.AccountService.Delete(r.Context(), tenantID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "sending account deleted"})
}

// TestAccount answers 200 even when the send fails; the body carries the classified error.
func (c *AccountController) TestAccount(w http.ResponseWriter, r *http.Request) {
	var body service.ConnectionTestInput
	if err := decode(w, r, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}
	result, err := c.AccountService.TestConnection(r.Context(), tenantID(r), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
