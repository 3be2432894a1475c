package http

import (
	"context"

	"github.com/go-auth-nosql/internal/application/account"
	"github.com/go-auth-nosql/internal/application/emailchange"
	"github.com/go-auth-nosql/internal/application/invite"
	"github.com/go-auth-nosql/internal/application/outbox"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/application/recovery"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/application/settings"
	"github.com/go-auth-nosql/internal/application/templates"
	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
)

// TokenVerifier is the minimal interface the router requires from the token service.
type TokenVerifier interface {
	VerifyKind(tokenStr, kind string) (*jwtinfra.Claims, error)
}

// AccountReader loads the live account behind a token.
type AccountReader interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

// HealthChecker backs the readiness check.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// StepUp is the reauthentication surface: gating plus the code exchange.
type StepUp interface {
	RequireStepUp(ctx context.Context, accountID, action, reauthToken string) error
	RequestReauth(ctx context.Context, accountID string) error
	ConfirmReauth(ctx context.Context, accountID, code, action string) (string, error)
}

// Deps holds the services and infrastructure the router wires into handlers.
type Deps struct {
	Tokens      TokenVerifier
	AccountRepo AccountReader
	Limiter     ratelimit.Limiter
	StepUp      StepUp
	Health      HealthChecker

	Sessions     session.Service
	Accounts     account.Service
	Recovery     recovery.Service
	EmailChanges emailchange.Service
	Invites      invite.Service
	Settings     settings.Service
	Outbox       *outbox.Dispatcher
	Templates    *templates.Renderer
}
