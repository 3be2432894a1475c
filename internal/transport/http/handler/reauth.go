package handler

import (
	"context"
	"net/http"

	"github.com/go-auth-nosql/internal/domain"
)

type reauthService interface {
	RequestReauth(ctx context.Context, accountID string) error
	ConfirmReauth(ctx context.Context, accountID, code, action string) (string, error)
}

// ReauthHandler exchanges an emailed code for a short-lived reauth token.
type ReauthHandler struct {
	svc reauthService
}

func NewReauthHandler(svc reauthService) *ReauthHandler { return &ReauthHandler{svc: svc} }

func (h *ReauthHandler) Request(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	if err := h.svc.RequestReauth(r.Context(), acc.AccountID); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: "reauthentication code sent"})
}

func (h *ReauthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req domain.ReauthConfirmRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	tok, err := h.svc.ConfirmReauth(r.Context(), acc.AccountID, req.Code, req.Action)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reauth_token": tok})
}
