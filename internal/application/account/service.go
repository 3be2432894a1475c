package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/application/notify"
	"github.com/go-auth-nosql/internal/application/templates"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldPasswordHash  = "password_hash"
	fieldVerifiedEmail = "verified_email"
	fieldSuspended     = "suspended"
)

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.Account, error)
	VerifyRegistration(ctx context.Context, accountID, code string) (*domain.Account, error)
	ResendVerification(ctx context.Context, accountID string) error
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
	Delete(ctx context.Context, accountID string) error
	Suspend(ctx context.Context, actorID, targetID string) error
	Unsuspend(ctx context.Context, targetID string) error
	AdminSetPassword(ctx context.Context, targetID, newPassword string) error
	RevokeTokens(ctx context.Context, targetID string) (int64, error)
}

type accountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	Put(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
	IncrementTokenVersion(ctx context.Context, accountID string, extra map[string]interface{}) (int64, error)
	Delete(ctx context.Context, accountID string) error
}

type otpService interface {
	Issue(ctx context.Context, subjectKey, purpose string, ttl time.Duration, maxAttempts int) (string, error)
	Verify(ctx context.Context, subjectKey, purpose, code string) error
}

type otpEraser interface {
	DeleteBySubject(ctx context.Context, subjectKey string) error
}

type emailChangeEraser interface {
	DeleteByAccount(ctx context.Context, accountID string) error
}

type invitationEraser interface {
	DeleteByInviter(ctx context.Context, accountID string) error
}

type notifier interface {
	Notify(ctx context.Context, purpose, to string, d templates.Data) error
}

type ServiceDeps struct {
	AccountRepo     accountStore
	OTP             otpService
	OTPRepo         otpEraser
	EmailChangeRepo emailChangeEraser
	InvitationRepo  invitationEraser
	Notifier        notifier
	OpenSignup      bool
}

type service struct {
	repo         accountStore
	otp          otpService
	otpRepo      otpEraser
	emailChanges emailChangeEraser
	invitations  invitationEraser
	notifier     notifier
	openSignup   bool
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:         deps.AccountRepo,
		otp:          deps.OTP,
		otpRepo:      deps.OTPRepo,
		emailChanges: deps.EmailChangeRepo,
		invitations:  deps.InvitationRepo,
		notifier:     deps.Notifier,
		openSignup:   deps.OpenSignup,
	}
}

// Register creates an unverified local account and queues a verification code.
// Uniqueness of email and username is enforced by the store.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Account, error) {
	if !s.openSignup {
		return nil, fmt.Errorf("signup requires an invitation: %w", domain.ErrForbidden)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a := &domain.Account{
		AccountID:    id.New(),
		Email:        domain.NormalizeEmail(req.Email),
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		AuthProvider: "local",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Put(ctx, a); err != nil {
		return nil, err
	}
	if err := s.sendVerification(ctx, a); err != nil {
		// The account exists; the user can ask for another code.
		slog.Warn("failed to queue verification code", "account_id", a.AccountID, "err", err)
	}
	return a, nil
}

func (s *service) sendVerification(ctx context.Context, a *domain.Account) error {
	code, err := s.otp.Issue(ctx, a.AccountID, domain.PurposeVerifyRegistration, 0, 0)
	if err != nil {
		return err
	}
	return s.notifier.Notify(ctx, domain.PurposeVerifyRegistration, a.Email, notify.ForAccount(a, code))
}

// VerifyRegistration marks the email verified. Verifying twice is a no-op.
func (s *service) VerifyRegistration(ctx context.Context, accountID, code string) (*domain.Account, error) {
	a, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a.VerifiedEmail {
		return a, nil
	}
	if err := s.otp.Verify(ctx, accountID, domain.PurposeVerifyRegistration, code); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, accountID, map[string]interface{}{fieldVerifiedEmail: true}); err != nil {
		return nil, err
	}
	a.VerifiedEmail = true
	return a, nil
}

func (s *service) ResendVerification(ctx context.Context, accountID string) error {
	a, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if a.VerifiedEmail {
		return fmt.Errorf("email already verified: %w", domain.ErrConflict)
	}
	return s.sendVerification(ctx, a)
}

// ChangePassword replaces the password and revokes every outstanding token.
func (s *service) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	a, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if a.PasswordHash == "" {
		return fmt.Errorf("account has no password; use password reset: %w", domain.ErrBadRequest)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(currentPassword)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrUnauthorized)
	}
	return s.setPassword(ctx, accountID, newPassword)
}

func (s *service) setPassword(ctx context.Context, accountID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.repo.IncrementTokenVersion(ctx, accountID, map[string]interface{}{fieldPasswordHash: string(hash)})
	return err
}

// Delete erases the account's codes, email-change requests and sent
// invitations, then the account. A failure before the account row is removed
// aborts; failures after it only leave orphans that expire on their own.
func (s *service) Delete(ctx context.Context, accountID string) error {
	a, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return err
	}
	subjects := []string{accountID, a.Email}
	for _, subject := range subjects {
		if err := s.otpRepo.DeleteBySubject(ctx, subject); err != nil {
			return fmt.Errorf("erase codes: %w", err)
		}
	}
	if err := s.emailChanges.DeleteByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("erase email change requests: %w", err)
	}
	if err := s.invitations.DeleteByInviter(ctx, accountID); err != nil {
		return fmt.Errorf("erase invitations: %w", err)
	}
	if err := s.repo.Delete(ctx, accountID); err != nil {
		return err
	}
	// Codes issued while the erase ran would otherwise outlive the account.
	for _, subject := range subjects {
		if err := s.otpRepo.DeleteBySubject(ctx, subject); err != nil {
			slog.Warn("failed to erase late codes", "account_id", accountID, "err", err)
		}
	}
	slog.Info("account deleted", "account_id", accountID)
	return nil
}

// Suspend blocks sign-in for targetID and revokes its tokens.
func (s *service) Suspend(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return fmt.Errorf("cannot suspend your own account: %w", domain.ErrBadRequest)
	}
	_, err := s.repo.IncrementTokenVersion(ctx, targetID, map[string]interface{}{fieldSuspended: true})
	if err == nil {
		slog.Info("account suspended", "account_id", targetID, "by", actorID)
	}
	return err
}

func (s *service) Unsuspend(ctx context.Context, targetID string) error {
	return s.repo.Update(ctx, targetID, map[string]interface{}{fieldSuspended: false})
}

func (s *service) AdminSetPassword(ctx context.Context, targetID, newPassword string) error {
	return s.setPassword(ctx, targetID, newPassword)
}

// RevokeTokens invalidates every token issued to targetID and returns the new version.
func (s *service) RevokeTokens(ctx context.Context, targetID string) (int64, error) {
	return s.repo.IncrementTokenVersion(ctx, targetID, nil)
}
