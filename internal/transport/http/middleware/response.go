package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/validate"
)

// StatusFor maps a service error to its HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, validate.ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGone):
		return http.StatusGone
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// PublicMessage is the client-facing text for err. Derived sentinels keep their
// own wording; everything else reads as the base sentinel.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenRevoked):
		return "Token revoked"
	case errors.Is(err, validate.ErrInvalid), errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrGone),
		errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrRateLimited):
		return err.Error()
	}
	return "internal server error"
}

// writeJSONError writes the shared error envelope with the correct Content-Type.
func writeJSONError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": PublicMessage(err)}
	if code := errorCode(err); code != "" {
		body["code"] = code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(err))
	_ = json.NewEncoder(w).Encode(body)
}

func errorCode(err error) string {
	if errors.Is(err, validate.ErrInvalid) {
		return "validation_error"
	}
	return domain.ErrorCode(err)
}
