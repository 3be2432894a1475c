package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/emailchange"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-chi/chi/v5"
)

type EmailChangeHandler struct {
	svc    emailchange.Service
	cookie CookieConfig
}

func NewEmailChangeHandler(svc emailchange.Service, cookie CookieConfig) *EmailChangeHandler {
	return &EmailChangeHandler{svc: svc, cookie: cookie}
}

func (h *EmailChangeHandler) Start(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req domain.EmailChangeStartRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	change, err := h.svc.Request(r.Context(), acc.AccountID, req.NewEmail)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, change)
}

func (h *EmailChangeHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req domain.EmailChangeConfirmRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	change, err := h.svc.Confirm(r.Context(), acc.AccountID, chi.URLParam(r, "id"), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.cookie.clear(w)
	writeJSON(w, http.StatusOK, change)
}
