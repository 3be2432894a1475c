package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrGone         = errors.New("gone")
	ErrRateLimited  = errors.New("rate limited")
)

// Derived errors carry a stable code for clients while still matching their base sentinel.
var (
	ErrInvalidToken   = fmt.Errorf("invalid or expired token: %w", ErrUnauthorized)
	ErrTokenRevoked   = fmt.Errorf("token revoked: %w", ErrForbidden)
	ErrAccountLocked  = fmt.Errorf("account suspended: %w", ErrForbidden)
	ErrReauthRequired = fmt.Errorf("reauthentication required: %w", ErrForbidden)
	ErrReauthInvalid  = fmt.Errorf("reauthentication token invalid: %w", ErrUnauthorized)

	ErrCodeNotFound = fmt.Errorf("no active code: %w", ErrNotFound)
	ErrCodeExpired  = fmt.Errorf("code expired: %w", ErrGone)
	ErrCodeInvalid  = fmt.Errorf("invalid code: %w", ErrBadRequest)
	ErrCodeLocked   = fmt.Errorf("too many attempts: %w", ErrRateLimited)
)

// ErrorCode returns the short machine-readable code for err, or "" when none applies.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrReauthRequired):
		return "reauth_required"
	case errors.Is(err, ErrReauthInvalid):
		return "reauth_invalid"
	case errors.Is(err, ErrAccountLocked):
		return "account_suspended"
	case errors.Is(err, ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	case errors.Is(err, ErrCodeInvalid):
		return "invalid_code"
	case errors.Is(err, ErrCodeLocked):
		return "locked"
	case errors.Is(err, ErrBadRequest):
		return "validation_error"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrGone):
		return "gone"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	}
	return ""
}
