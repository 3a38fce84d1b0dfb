package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/service"
)

type ContactController struct {
	ContactService *service.ContactService
	Log            zerolog.Logger
}

func (c *ContactController) CreateContact(w http.ResponseWriter, r *http.Request) {
	var body service.ContactInput
	if err := decode(w, r, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}
	contact, err := c.ContactService.Create(r.Context(), tenantID(r), body)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

// ListContacts supports ?search= (name, email, company) and ?tags=a,b (any of).
func (c *ContactController) ListContacts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	contacts, pagination, err := c.ContactService.List(r.Context(), tenantID(r), page, pageSize,
		r.URL.Query().Get("search"), listParam(r, "tags"))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       contacts,
		"pagination": pagination,
	})
}

func (c *ContactController) GetContact(w http.ResponseWriter, r *http.Request) {
	contact, err := c.ContactService.Get(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (c *ContactController) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var body service.ContactInput
	if err := decode(w, r, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}
	contact, err := c.ContactService.Update(r.Context(), tenantID(r), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (c *ContactController) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := c.ContactService.Delete(r.Context(), tenantID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "contact deleted"})
}
