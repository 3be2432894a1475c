// Package emailchange moves an account to a new address once both the old and
// the new mailbox have confirmed with a code.
package emailchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/application/notify"
	"github.com/go-auth-nosql/internal/application/templates"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
)

const requestTTL = 30 * time.Minute

type Service interface {
	Request(ctx context.Context, accountID, newEmail string) (*domain.EmailChangeRequest, error)
	Confirm(ctx context.Context, accountID, requestID string, req domain.EmailChangeConfirmRequest) (*domain.EmailChangeRequest, error)
}

type accountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	IncrementTokenVersion(ctx context.Context, accountID string, extra map[string]interface{}) (int64, error)
}

type requestStore interface {
	Put(ctx context.Context, req *domain.EmailChangeRequest) error
	Get(ctx context.Context, requestID string) (*domain.EmailChangeRequest, error)
	Transition(ctx context.Context, requestID, to string, now time.Time) error
}

type otpService interface {
	Issue(ctx context.Context, subjectKey, purpose string, ttl time.Duration, maxAttempts int) (string, error)
	Check(ctx context.Context, subjectKey, purpose, code string) error
	Verify(ctx context.Context, subjectKey, purpose, code string) error
}

type notifier interface {
	Notify(ctx context.Context, purpose, to string, d templates.Data) error
}

type ServiceDeps struct {
	AccountRepo     accountStore
	EmailChangeRepo requestStore
	OTP             otpService
	Notifier        notifier
}

type service struct {
	accounts accountStore
	requests requestStore
	otp      otpService
	notifier notifier
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	return &service{
		accounts: deps.AccountRepo,
		requests: deps.EmailChangeRepo,
		otp:      deps.OTP,
		notifier: deps.Notifier,
		now:      time.Now,
	}
}

// Request opens a pending change and mails one code to each address.
func (s *service) Request(ctx context.Context, accountID, newEmail string) (*domain.EmailChangeRequest, error) {
	newEmail = domain.NormalizeEmail(newEmail)
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if newEmail == acc.Email {
		return nil, fmt.Errorf("new email matches the current one: %w", domain.ErrBadRequest)
	}
	if err := s.ensureFree(ctx, newEmail); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	req := &domain.EmailChangeRequest{
		RequestID: id.NewAt(now),
		AccountID: accountID,
		OldEmail:  acc.Email,
		NewEmail:  newEmail,
		Status:    domain.EmailChangePending,
		ExpiresAt: now.Add(requestTTL),
		CreatedAt: now,
	}
	if err := s.requests.Put(ctx, req); err != nil {
		return nil, err
	}

	subject := codeSubject(accountID, req.RequestID)
	for _, leg := range []struct{ purpose, to string }{
		{domain.PurposeChangeEmailCurrent, acc.Email},
		{domain.PurposeChangeEmailNew, newEmail},
	} {
		code, err := s.otp.Issue(ctx, subject, leg.purpose, requestTTL, 0)
		if err != nil {
			return nil, err
		}
		d := notify.ForAccount(acc, code)
		d.Email = leg.to
		if err := s.notifier.Notify(ctx, leg.purpose, leg.to, d); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// Confirm completes a pending request when both codes verify. The address is
// switched and every earlier token revoked in one write.
func (s *service) Confirm(ctx context.Context, accountID, requestID string, in domain.EmailChangeConfirmRequest) (*domain.EmailChangeRequest, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.AccountID != accountID {
		return nil, fmt.Errorf("email change request not found: %w", domain.ErrNotFound)
	}
	switch req.Status {
	case domain.EmailChangePending:
	case domain.EmailChangeExpired:
		return nil, fmt.Errorf("email change request expired: %w", domain.ErrGone)
	default:
		return nil, fmt.Errorf("email change request already %s: %w", req.Status, domain.ErrConflict)
	}

	now := s.now().UTC()
	if now.After(req.ExpiresAt) {
		if err := s.requests.Transition(ctx, requestID, domain.EmailChangeExpired, now); err != nil && !errors.Is(err, domain.ErrConflict) {
			slog.Warn("failed to expire email change request", "request_id", requestID, "err", err)
		}
		return nil, fmt.Errorf("email change request expired: %w", domain.ErrGone)
	}

	// Both codes are checked before either is consumed so a typo in one
	// does not burn the other.
	subject := codeSubject(accountID, requestID)
	if err := s.otp.Check(ctx, subject, domain.PurposeChangeEmailCurrent, in.CurrentCode); err != nil {
		return nil, fmt.Errorf("current address code: %w", err)
	}
	if err := s.otp.Check(ctx, subject, domain.PurposeChangeEmailNew, in.NewCode); err != nil {
		return nil, fmt.Errorf("new address code: %w", err)
	}
	if err := s.ensureFree(ctx, req.NewEmail); err != nil {
		return nil, err
	}
	if err := s.otp.Verify(ctx, subject, domain.PurposeChangeEmailCurrent, in.CurrentCode); err != nil {
		return nil, fmt.Errorf("current address code: %w", err)
	}
	if err := s.otp.Verify(ctx, subject, domain.PurposeChangeEmailNew, in.NewCode); err != nil {
		return nil, fmt.Errorf("new address code: %w", err)
	}
	if err := s.requests.Transition(ctx, requestID, domain.EmailChangeCompleted, now); err != nil {
		return nil, err
	}
	if _, err := s.accounts.IncrementTokenVersion(ctx, accountID, map[string]interface{}{
		"email":          req.NewEmail,
		"verified_email": true,
	}); err != nil {
		return nil, err
	}
	req.Status = domain.EmailChangeCompleted
	req.CompletedAt = &now
	slog.Info("email changed", "account_id", accountID)
	return req, nil
}

// codeSubject scopes both codes to one request, so codes mailed for a newer
// request never confirm an older one.
func codeSubject(accountID, requestID string) string {
	return accountID + "#" + requestID
}

func (s *service) ensureFree(ctx context.Context, email string) error {
	_, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
