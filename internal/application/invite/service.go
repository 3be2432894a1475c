package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/application/templates"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

const invitationTTL = 7 * 24 * time.Hour

type Service interface {
	Create(ctx context.Context, inviterID string, req domain.CreateInvitationRequest) (*domain.Invitation, error)
	Accept(ctx context.Context, invitationID string, req domain.AcceptInvitationRequest) (*domain.Account, error)
	Revoke(ctx context.Context, invitationID string) error
}

type accountStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	Put(ctx context.Context, a *domain.Account) error
}

type invitationStore interface {
	Put(ctx context.Context, inv *domain.Invitation) error
	Get(ctx context.Context, invitationID string) (*domain.Invitation, error)
	Transition(ctx context.Context, invitationID, from, to string, now time.Time) error
}

type otpService interface {
	Issue(ctx context.Context, subjectKey, purpose string, ttl time.Duration, maxAttempts int) (string, error)
	Verify(ctx context.Context, subjectKey, purpose, code string) error
}

type notifier interface {
	Notify(ctx context.Context, purpose, to string, d templates.Data) error
}

type ServiceDeps struct {
	AccountRepo    accountStore
	InvitationRepo invitationStore
	OTP            otpService
	Notifier       notifier
}

type service struct {
	accounts    accountStore
	invitations invitationStore
	otp         otpService
	notifier    notifier
	now         func() time.Time
}

func NewService(deps ServiceDeps) Service {
	return &service{
		accounts:    deps.AccountRepo,
		invitations: deps.InvitationRepo,
		otp:         deps.OTP,
		notifier:    deps.Notifier,
		now:         time.Now,
	}
}

// Create issues an invitation for email and mails the acceptance code.
func (s *service) Create(ctx context.Context, inviterID string, req domain.CreateInvitationRequest) (*domain.Invitation, error) {
	email := domain.NormalizeEmail(req.Email)
	if err := s.free(ctx, s.accounts.GetByEmail, email, "email already registered"); err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	now := s.now().UTC()
	inv := &domain.Invitation{
		InvitationID: id.NewAt(now),
		Email:        email,
		Role:         role,
		InvitedBy:    inviterID,
		Status:       domain.InvitationIssued,
		ExpiresAt:    now.Add(invitationTTL),
		CreatedAt:    now,
	}
	if err := s.invitations.Put(ctx, inv); err != nil {
		return nil, err
	}
	code, err := s.otp.Issue(ctx, email, domain.PurposeInvite, invitationTTL, 0)
	if err != nil {
		return nil, err
	}
	d := templates.Data{Email: email, Code: code, Token: inv.InvitationID, Perm: map[string]bool{"admin": role == domain.RoleAdmin}}
	if err := s.notifier.Notify(ctx, domain.PurposeInvite, email, d); err != nil {
		return nil, err
	}
	return inv, nil
}

// Accept turns an issued invitation into a verified account. An expired or
// revoked invitation is gone; one already accepted is a conflict.
func (s *service) Accept(ctx context.Context, invitationID string, req domain.AcceptInvitationRequest) (*domain.Account, error) {
	inv, err := s.invitations.Get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	email := domain.NormalizeEmail(req.Email)
	if inv.Email != email {
		return nil, fmt.Errorf("invitation not found: %w", domain.ErrNotFound)
	}
	switch inv.Status {
	case domain.InvitationIssued:
	case domain.InvitationAccepted:
		return nil, fmt.Errorf("invitation already accepted: %w", domain.ErrConflict)
	default:
		return nil, fmt.Errorf("invitation %s: %w", inv.Status, domain.ErrGone)
	}
	now := s.now().UTC()
	if now.After(inv.ExpiresAt) {
		if err := s.invitations.Transition(ctx, invitationID, domain.InvitationIssued, domain.InvitationExpired, now); err != nil && !errors.Is(err, domain.ErrConflict) {
			slog.Warn("failed to expire invitation", "invitation_id", invitationID, "err", err)
		}
		return nil, fmt.Errorf("invitation expired: %w", domain.ErrGone)
	}

	// Check availability before spending the code.
	if err := s.free(ctx, s.accounts.GetByEmail, email, "email already registered"); err != nil {
		return nil, err
	}
	if err := s.free(ctx, s.accounts.GetByUsername, req.Username, "username taken"); err != nil {
		return nil, err
	}
	if err := s.otp.Verify(ctx, email, domain.PurposeInvite, req.Code); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	if err := s.invitations.Transition(ctx, invitationID, domain.InvitationIssued, domain.InvitationAccepted, now); err != nil {
		return nil, err
	}

	a := &domain.Account{
		AccountID:     id.NewAt(now),
		Email:         email,
		Username:      req.Username,
		PasswordHash:  string(hash),
		Role:          inv.Role,
		VerifiedEmail: true,
		AuthProvider:  "local",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.accounts.Put(ctx, a); err != nil {
		if rerr := s.invitations.Transition(ctx, invitationID, domain.InvitationAccepted, domain.InvitationIssued, now); rerr != nil {
			slog.Error("failed to reopen invitation", "invitation_id", invitationID, "err", rerr)
		}
		return nil, err
	}
	slog.Info("invitation accepted", "invitation_id", invitationID, "account_id", a.AccountID)
	return a, nil
}

func (s *service) Revoke(ctx context.Context, invitationID string) error {
	if _, err := s.invitations.Get(ctx, invitationID); err != nil {
		return err
	}
	return s.invitations.Transition(ctx, invitationID, domain.InvitationIssued, domain.InvitationRevoked, s.now().UTC())
}

func (s *service) free(ctx context.Context, lookup func(context.Context, string) (*domain.Account, error), value, msg string) error {
	_, err := lookup(ctx, value)
	if err == nil {
		return fmt.Errorf("%s: %w", msg, domain.ErrConflict)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
