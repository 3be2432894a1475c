// Package stepup gates sensitive actions behind a freshly verified OTP.
//
// The flow is: RequestReauth mails a code, ConfirmReauth exchanges it for a
// short-lived reauth token, and RequireStepUp checks that token before the
// action runs. With a OnceStore attached each reauth token passes the gate
// once; without one it stays usable until it expires or the account's token
// version moves.
package stepup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/application/notify"
	"github.com/go-auth-nosql/internal/application/templates"
	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
)

// Gated actions, matching REQUIRE_REAUTH_FOR entries.
const (
	ActionDeleteAccount  = "delete_account"
	ActionSuspendAccount = "suspend_account"
	ActionChangePassword = "change_password"
	ActionChangeEmail    = "change_email"
)

type AccountReader interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

type TokenService interface {
	VerifyKind(tokenStr, kind string) (*jwtinfra.Claims, error)
	IssueReauth(accountID string, version int64, action string) (string, error)
}

type OTP interface {
	Issue(ctx context.Context, subjectKey, purpose string, ttl time.Duration, maxAttempts int) (string, error)
	Verify(ctx context.Context, subjectKey, purpose, code string) error
}

type Notifier interface {
	Notify(ctx context.Context, purpose, to string, d templates.Data) error
}

// OnceStore admits a key at most limit times per window. ratelimit.Limiter
// satisfies it; the guard uses it to spend reauth token IDs.
type OnceStore interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) error
}

// Checker is what the HTTP layer and flows depend on.
type Checker interface {
	RequireStepUp(ctx context.Context, accountID, action, reauthToken string) error
}

type Guard struct {
	accounts AccountReader
	tokens   TokenService
	otp      OTP
	notifier Notifier
	required map[string]bool
	spent    OnceStore
}

func NewGuard(accounts AccountReader, tokens TokenService, otp OTP, notifier Notifier, required map[string]bool) *Guard {
	return &Guard{accounts: accounts, tokens: tokens, otp: otp, notifier: notifier, required: required}
}

// UseOnce makes every reauth token single use, recorded in store.
func (g *Guard) UseOnce(store OnceStore) *Guard {
	g.spent = store
	return g
}

// Required reports whether action is gated in this deployment.
func (g *Guard) Required(action string) bool { return g.required[action] }

// RequireStepUp returns nil when action is not gated or reauthToken proves a
// fresh verification by accountID for it. Otherwise it returns
// ErrReauthRequired or ErrReauthInvalid.
func (g *Guard) RequireStepUp(ctx context.Context, accountID, action, reauthToken string) error {
	if !g.required[action] {
		return nil
	}
	if reauthToken == "" {
		return domain.ErrReauthRequired
	}
	claims, err := g.tokens.VerifyKind(reauthToken, jwtinfra.KindReauth)
	if err != nil {
		return domain.ErrReauthInvalid
	}
	if claims.AccountID() != accountID {
		return domain.ErrReauthRequired
	}
	if claims.Action != "" && claims.Action != action {
		return domain.ErrReauthRequired
	}
	acc, err := g.accounts.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if claims.Version != acc.TokenVersion {
		return domain.ErrReauthRequired
	}
	if g.spent != nil {
		return g.spend(ctx, claims)
	}
	return nil
}

// spend records the token's ID until it expires. A second presentation is
// refused even when the first action failed afterwards.
func (g *Guard) spend(ctx context.Context, claims *jwtinfra.Claims) error {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return domain.ErrReauthRequired
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < time.Second {
		ttl = time.Second
	}
	err := g.spent.Check(ctx, "reauth:"+claims.ID, 1, ttl)
	if errors.Is(err, domain.ErrRateLimited) {
		return domain.ErrReauthRequired
	}
	if err != nil {
		return fmt.Errorf("spend reauth token: %w", err)
	}
	return nil
}

// RequestReauth issues a reauthentication code and queues it to the account's email.
func (g *Guard) RequestReauth(ctx context.Context, accountID string) error {
	acc, err := g.accounts.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	code, err := g.otp.Issue(ctx, accountID, domain.PurposeReauthentication, 0, 0)
	if err != nil {
		return err
	}
	return g.notifier.Notify(ctx, domain.PurposeReauthentication, acc.Email, notify.ForAccount(acc, code))
}

// ConfirmReauth verifies code and returns a reauth token, scoped to action when
// action is non-empty.
func (g *Guard) ConfirmReauth(ctx context.Context, accountID, code, action string) (string, error) {
	if action != "" && !knownAction(action) {
		return "", fmt.Errorf("unknown action %q: %w", action, domain.ErrBadRequest)
	}
	acc, err := g.accounts.Get(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("load account: %w", err)
	}
	if err := g.otp.Verify(ctx, accountID, domain.PurposeReauthentication, code); err != nil {
		return "", err
	}
	tok, err := g.tokens.IssueReauth(accountID, acc.TokenVersion, action)
	if err != nil {
		return "", fmt.Errorf("issue reauth token: %w", err)
	}
	return tok, nil
}

func knownAction(action string) bool {
	switch action {
	case ActionDeleteAccount, ActionSuspendAccount, ActionChangePassword, ActionChangeEmail:
		return true
	}
	return false
}
