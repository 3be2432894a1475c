package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/recovery"
	"github.com/go-auth-nosql/internal/domain"
)

// RecoveryHandler handles password reset and magic-link sign-in.
type RecoveryHandler struct {
	svc    recovery.Service
	cookie CookieConfig
}

func NewRecoveryHandler(svc recovery.Service, cookie CookieConfig) *RecoveryHandler {
	return &RecoveryHandler{svc: svc, cookie: cookie}
}

const codeSentMessage = "if the address is registered, a code has been sent"

func (h *RecoveryHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req domain.EmailRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: codeSentMessage})
}

func (h *RecoveryHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordResetConfirmRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password reset"})
}

func (h *RecoveryHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req domain.EmailRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.RequestMagicLink(r.Context(), req.Email); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: codeSentMessage})
}

func (h *RecoveryHandler) ConsumeMagicLink(w http.ResponseWriter, r *http.Request) {
	var req domain.MagicLinkConsumeRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	tokens, err := h.svc.ConsumeMagicLink(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.cookie.set(w, tokens.RefreshToken)
	writeJSON(w, http.StatusOK, AuthEnvelope{AccessToken: tokens.AccessToken, Account: tokens.Account})
}
