package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

// SessionHandler handles sign-in, refresh and logout.
type SessionHandler struct {
	svc    session.Service
	cookie CookieConfig
}

func NewSessionHandler(svc session.Service, cookie CookieConfig) *SessionHandler {
	return &SessionHandler{svc: svc, cookie: cookie}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	tokens, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.respond(w, tokens)
}

func (h *SessionHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req domain.GoogleLoginRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	tokens, err := h.svc.GoogleLogin(r.Context(), req.IDToken)
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.respond(w, tokens)
}

// Refresh reads the refresh cookie and rotates both tokens. A revoked or
// invalid refresh token also clears the cookie.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(RefreshCookie); err == nil {
		token = c.Value
	}
	tokens, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		if status := middleware.StatusFor(err); status == http.StatusUnauthorized || status == http.StatusForbidden {
			h.cookie.clear(w)
		}
		httpError(w, r, err)
		return
	}
	h.respond(w, tokens)
}

// Logout only deletes the cookie; there is no server-side session to end.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookie.clear(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *SessionHandler) respond(w http.ResponseWriter, tokens *domain.AuthTokens) {
	h.cookie.set(w, tokens.RefreshToken)
	writeJSON(w, http.StatusOK, AuthEnvelope{AccessToken: tokens.AccessToken, Account: tokens.Account})
}
