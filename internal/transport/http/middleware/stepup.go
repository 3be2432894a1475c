package middleware

import (
	"context"
	"net/http"

	"github.com/go-auth-nosql/internal/domain"
)

// ReauthHeader carries the token returned by the reauth confirm endpoint.
const ReauthHeader = "x-reauth-token"

type stepUpChecker interface {
	RequireStepUp(ctx context.Context, accountID, action, reauthToken string) error
}

// RequireStepUp rejects the request unless the caller holds a fresh reauth
// token for action. Deployments that do not gate action pass straight through.
func RequireStepUp(checker stepUpChecker, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc, ok := AccountFromContext(r.Context())
			if !ok {
				writeJSONError(w, domain.ErrUnauthorized)
				return
			}
			if err := checker.RequireStepUp(r.Context(), acc.AccountID, action, r.Header.Get(ReauthHeader)); err != nil {
				writeJSONError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
