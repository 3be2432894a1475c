package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/validate"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 64 << 10

var errEmptyBody = fmt.Errorf("request body required: %w", domain.ErrBadRequest)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// AuthEnvelope wraps sign-in responses. The refresh token is set as a cookie only.
type AuthEnvelope struct {
	AccessToken string          `json:"access_token"`
	Account     *domain.Account `json:"account"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps a service error to its status and envelope. Unmatched errors
// are logged and reported as a bare 500.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	status := middleware.StatusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()), "err", err)
	}
	env := MessageEnvelope{Error: middleware.PublicMessage(err), Code: domain.ErrorCode(err)}
	if status == http.StatusUnprocessableEntity {
		env.Code = "validation_error"
	}
	writeJSON(w, status, env)
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid request body: %w", domain.ErrBadRequest)
	}
	return validate.Struct(dst)
}

// currentAccount returns the account Auth attached to the request.
func currentAccount(w http.ResponseWriter, r *http.Request) (*domain.Account, bool) {
	acc, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return acc, ok
}
