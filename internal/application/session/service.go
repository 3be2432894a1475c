package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/google"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when no account matches, so unknown
// identifiers take as long to reject as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("no-such-account"), bcrypt.DefaultCost)

var errInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)

type Service interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthTokens, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthTokens, error)
	Me(ctx context.Context, accountID string) (*domain.Account, error)
	GoogleLogin(ctx context.Context, idToken string) (*domain.AuthTokens, error)
	IssueTokens(acc *domain.Account) (*domain.AuthTokens, error)
}

type accountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	Put(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
}

type tokenService interface {
	IssueAccess(accountID, email, username string, version int64) (string, error)
	IssueRefresh(accountID string, version int64) (string, error)
	VerifyKind(tokenStr, kind string) (*jwtinfra.Claims, error)
}

type googleVerifier interface {
	Verify(ctx context.Context, token string) (*google.Identity, error)
}

type ServiceDeps struct {
	AccountRepo    accountStore
	Tokens         tokenService
	GoogleVerifier googleVerifier
	OpenSignup     bool
}

type service struct {
	accounts   accountStore
	tokens     tokenService
	google     googleVerifier
	openSignup bool
}

func NewService(deps ServiceDeps) Service {
	return &service{
		accounts:   deps.AccountRepo,
		tokens:     deps.Tokens,
		google:     deps.GoogleVerifier,
		openSignup: deps.OpenSignup,
	}
}

// Login accepts a username or an email address. Accounts with unverified
// email may sign in; suspended accounts may not.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthTokens, error) {
	acc, err := s.lookup(ctx, strings.TrimSpace(req.Identifier))
	if errors.Is(err, domain.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if acc.PasswordHash == "" {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}
	if acc.Suspended {
		return nil, domain.ErrAccountLocked
	}
	return s.IssueTokens(acc)
}

func (s *service) lookup(ctx context.Context, identifier string) (*domain.Account, error) {
	if strings.Contains(identifier, "@") {
		acc, err := s.accounts.GetByEmail(ctx, identifier)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return acc, err
		}
	}
	return s.accounts.GetByUsername(ctx, identifier)
}

// Refresh exchanges a refresh token for a new pair. A token issued before the
// account's latest version bump is revoked, whatever its remaining lifetime.
func (s *service) Refresh(ctx context.Context, refreshToken string) (*domain.AuthTokens, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token required: %w", domain.ErrInvalidToken)
	}
	claims, err := s.tokens.VerifyKind(refreshToken, jwtinfra.KindRefresh)
	if err != nil {
		return nil, err
	}
	acc, err := s.accounts.Get(ctx, claims.AccountID())
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if err := jwtinfra.CheckVersion(claims, acc.TokenVersion); err != nil {
		return nil, err
	}
	if acc.Suspended {
		return nil, domain.ErrAccountLocked
	}
	return s.IssueTokens(acc)
}

func (s *service) Me(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.accounts.Get(ctx, accountID)
}

// GoogleLogin signs in with a Google ID token. A verified Google email links
// to the matching account, or creates a verified one when signup is open.
func (s *service) GoogleLogin(ctx context.Context, idToken string) (*domain.AuthTokens, error) {
	if s.google == nil {
		return nil, fmt.Errorf("google sign-in not configured: %w", domain.ErrBadRequest)
	}
	ident, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if !ident.EmailVerified {
		return nil, fmt.Errorf("google email not verified: %w", domain.ErrUnauthorized)
	}

	acc, err := s.accounts.GetByEmail(ctx, ident.Email)
	switch {
	case err == nil:
		if acc.GoogleSub != "" && acc.GoogleSub != ident.Subject {
			return nil, fmt.Errorf("email linked to another google account: %w", domain.ErrUnauthorized)
		}
		if acc.Suspended {
			return nil, domain.ErrAccountLocked
		}
		if acc.GoogleSub == "" || !acc.VerifiedEmail {
			if err := s.accounts.Update(ctx, acc.AccountID, map[string]interface{}{
				"google_sub":     ident.Subject,
				"verified_email": true,
			}); err != nil {
				return nil, err
			}
			acc.GoogleSub, acc.VerifiedEmail = ident.Subject, true
		}
	case errors.Is(err, domain.ErrNotFound):
		if !s.openSignup {
			return nil, fmt.Errorf("signup requires an invitation: %w", domain.ErrForbidden)
		}
		if acc, err = s.createGoogleAccount(ctx, ident); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return s.IssueTokens(acc)
}

func (s *service) createGoogleAccount(ctx context.Context, ident *google.Identity) (*domain.Account, error) {
	now := time.Now().UTC()
	accountID := id.New()
	acc := &domain.Account{
		AccountID:     accountID,
		Email:         ident.Email,
		Username:      strings.SplitN(ident.Email, "@", 2)[0],
		Role:          domain.RoleUser,
		VerifiedEmail: true,
		AuthProvider:  "google",
		GoogleSub:     ident.Subject,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.accounts.Put(ctx, acc)
	if errors.Is(err, domain.ErrConflict) {
		// Username taken by someone else; disambiguate with the id tail.
		acc.Username += "-" + strings.ToLower(accountID[len(accountID)-6:])
		err = s.accounts.Put(ctx, acc)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("account created via google", "account_id", acc.AccountID)
	return acc, nil
}

// IssueTokens signs an access and refresh pair at the account's current version.
func (s *service) IssueTokens(acc *domain.Account) (*domain.AuthTokens, error) {
	access, err := s.tokens.IssueAccess(acc.AccountID, acc.Email, acc.Username, acc.TokenVersion)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(acc.AccountID, acc.TokenVersion)
	if err != nil {
		return nil, err
	}
	return &domain.AuthTokens{AccessToken: access, RefreshToken: refresh, Account: acc}, nil
}
