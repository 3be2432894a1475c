package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
)

type contextKey string

const (
	claimsKey  contextKey = "claims"
	accountKey contextKey = "account"
)

type accessVerifier interface {
	VerifyKind(tokenStr, kind string) (*jwtinfra.Claims, error)
}

type accountReader interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

// Auth validates the Bearer access token and loads the live account. A token
// minted before the account's latest version bump is rejected as revoked.
func Auth(tokens accessVerifier, accounts accountReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, fmt.Errorf("missing or invalid authorization header: %w", domain.ErrUnauthorized))
				return
			}
			claims, err := tokens.VerifyKind(strings.TrimPrefix(authHeader, "Bearer "), jwtinfra.KindAccess)
			if err != nil {
				writeJSONError(w, err)
				return
			}
			acc, err := accounts.Get(r.Context(), claims.AccountID())
			if errors.Is(err, domain.ErrNotFound) {
				writeJSONError(w, domain.ErrInvalidToken)
				return
			}
			if err != nil {
				writeJSONError(w, err)
				return
			}
			if err := jwtinfra.CheckVersion(claims, acc.TokenVersion); err != nil {
				writeJSONError(w, err)
				return
			}
			if acc.Suspended {
				writeJSONError(w, domain.ErrAccountLocked)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, accountKey, acc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*jwtinfra.Claims)
	return c, ok
}

// AccountFromContext returns the account loaded by Auth.
func AccountFromContext(ctx context.Context) (*domain.Account, bool) {
	a, ok := ctx.Value(accountKey).(*domain.Account)
	return a, ok
}

// WithAccount stores acc as the authenticated account. Handler tests use it
// to skip token verification.
func WithAccount(ctx context.Context, acc *domain.Account) context.Context {
	return context.WithValue(ctx, accountKey, acc)
}
