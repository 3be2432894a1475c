package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/account"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-chi/chi/v5"
)

// AccountHandler handles self-service and admin account endpoints.
type AccountHandler struct {
	svc    account.Service
	cookie CookieConfig
}

func NewAccountHandler(svc account.Service, cookie CookieConfig) *AccountHandler {
	return &AccountHandler{svc: svc, cookie: cookie}
}

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	acc, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (h *AccountHandler) Verify(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req domain.CodeRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	updated, err := h.svc.VerifyRegistration(r.Context(), acc.AccountID, req.Code)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AccountHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	if err := h.svc.ResendVerification(r.Context(), acc.AccountID); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: "verification code sent"})
}

// ChangePassword revokes every token, including the caller's, so the refresh
// cookie is cleared too.
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req domain.ChangePasswordRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), acc.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		httpError(w, r, err)
		return
	}
	h.cookie.clear(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password changed"})
}

func (h *AccountHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), acc.AccountID); err != nil {
		httpError(w, r, err)
		return
	}
	h.cookie.clear(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "account deleted"})
}

func (h *AccountHandler) RevokeTokens(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.RevokeTokens(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "tokens revoked"})
}

func (h *AccountHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.SetPasswordRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.AdminSetPassword(r.Context(), chi.URLParam(r, "id"), req.NewPassword); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password set"})
}

func (h *AccountHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	if err := h.svc.Suspend(r.Context(), acc.AccountID, chi.URLParam(r, "id")); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "account suspended"})
}

func (h *AccountHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unsuspend(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "account unsuspended"})
}
