// Package recovery covers sign-in without a known password: reset codes and
// one-time magic-link codes, both sent to the account's email.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/application/notify"
	"github.com/go-auth-nosql/internal/application/templates"
	"github.com/go-auth-nosql/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req domain.PasswordResetConfirmRequest) error
	RequestMagicLink(ctx context.Context, email string) error
	ConsumeMagicLink(ctx context.Context, req domain.MagicLinkConsumeRequest) (*domain.AuthTokens, error)
}

type accountStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
	IncrementTokenVersion(ctx context.Context, accountID string, extra map[string]interface{}) (int64, error)
}

type otpService interface {
	Issue(ctx context.Context, subjectKey, purpose string, ttl time.Duration, maxAttempts int) (string, error)
	Verify(ctx context.Context, subjectKey, purpose, code string) error
}

type notifier interface {
	Notify(ctx context.Context, purpose, to string, d templates.Data) error
}

type tokenIssuer interface {
	IssueTokens(acc *domain.Account) (*domain.AuthTokens, error)
}

type ServiceDeps struct {
	AccountRepo accountStore
	OTP         otpService
	Notifier    notifier
	Sessions    tokenIssuer
}

type service struct {
	accounts accountStore
	otp      otpService
	notifier notifier
	sessions tokenIssuer
}

func NewService(deps ServiceDeps) Service {
	return &service{
		accounts: deps.AccountRepo,
		otp:      deps.OTP,
		notifier: deps.Notifier,
		sessions: deps.Sessions,
	}
}

// RequestPasswordReset queues a reset code when email belongs to an account.
// It reports success either way so callers cannot discover accounts.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	s.sendCode(ctx, domain.NormalizeEmail(email), domain.PurposeResetPassword, false)
	return nil
}

func (s *service) RequestMagicLink(ctx context.Context, email string) error {
	s.sendCode(ctx, domain.NormalizeEmail(email), domain.PurposeMagicLink, true)
	return nil
}

func (s *service) sendCode(ctx context.Context, email, purpose string, skipSuspended bool) {
	acc, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Debug("code requested for unknown email", "purpose", purpose)
		return
	}
	if err != nil {
		slog.Error("account lookup failed", "purpose", purpose, "err", err)
		return
	}
	if skipSuspended && acc.Suspended {
		return
	}
	code, err := s.otp.Issue(ctx, email, purpose, 0, 0)
	if err != nil {
		slog.Error("failed to issue code", "purpose", purpose, "account_id", acc.AccountID, "err", err)
		return
	}
	d := notify.ForAccount(acc, code)
	d.Token = code
	if err := s.notifier.Notify(ctx, purpose, acc.Email, d); err != nil {
		slog.Error("failed to queue code", "purpose", purpose, "account_id", acc.AccountID, "err", err)
	}
}

// ResetPassword sets a new password from a reset code. The mailbox proved
// ownership, so the email counts as verified; all earlier tokens are revoked.
func (s *service) ResetPassword(ctx context.Context, req domain.PasswordResetConfirmRequest) error {
	acc, err := s.verifyCode(ctx, req.Email, domain.PurposeResetPassword, req.Code)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.accounts.IncrementTokenVersion(ctx, acc.AccountID, map[string]interface{}{
		"password_hash":  string(hash),
		"verified_email": true,
	})
	return err
}

// ConsumeMagicLink signs the account in from a magic-link code.
func (s *service) ConsumeMagicLink(ctx context.Context, req domain.MagicLinkConsumeRequest) (*domain.AuthTokens, error) {
	acc, err := s.verifyCode(ctx, req.Email, domain.PurposeMagicLink, req.Code)
	if err != nil {
		return nil, err
	}
	if acc.Suspended {
		return nil, domain.ErrAccountLocked
	}
	if !acc.VerifiedEmail {
		if err := s.accounts.Update(ctx, acc.AccountID, map[string]interface{}{"verified_email": true}); err != nil {
			return nil, err
		}
		acc.VerifiedEmail = true
	}
	return s.sessions.IssueTokens(acc)
}

// verifyCode loads the account behind email and checks code. An unknown email
// looks the same as a missing code.
func (s *service) verifyCode(ctx context.Context, email, purpose, code string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	acc, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if err := s.otp.Verify(ctx, email, purpose, code); err != nil {
		return nil, err
	}
	return acc, nil
}
