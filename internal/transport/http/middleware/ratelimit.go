package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

type limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) error
}

// RateLimit admits at most limit requests per client IP per window within
// scope. A backend failure admits the request rather than locking users out.
func RateLimit(l limiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := l.Check(r.Context(), scope+":"+realIP(r), limit, window)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrRateLimited):
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(window.Seconds()))))
				writeJSONError(w, err)
				return
			default:
				slog.Error("rate limiter unavailable", "scope", scope, "err", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// realIP returns the first X-Forwarded-For hop, then X-Real-Ip, then the
// RemoteAddr host.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); first != "" {
			return first
		}
	}
	if xrip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xrip != "" {
		return xrip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
