package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/invite"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-chi/chi/v5"
)

type InviteHandler struct {
	svc invite.Service
}

func NewInviteHandler(svc invite.Service) *InviteHandler { return &InviteHandler{svc: svc} }

func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req domain.CreateInvitationRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	inv, err := h.svc.Create(r.Context(), acc.AccountID, req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req domain.AcceptInvitationRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	acc, err := h.svc.Accept(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Revoke(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "invitation revoked"})
}
