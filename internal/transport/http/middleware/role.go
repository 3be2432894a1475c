package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-auth-nosql/internal/domain"
)

var errAdminOnly = fmt.Errorf("administrator role required: %w", domain.ErrForbidden)

// AdminOnly admits accounts whose live role is admin. Role changes apply on
// the next request since Auth reloads the account. It must run after Auth.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc, ok := AccountFromContext(r.Context())
		if !ok {
			writeJSONError(w, domain.ErrUnauthorized)
			return
		}
		if !acc.IsAdmin() {
			writeJSONError(w, errAdminOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}
