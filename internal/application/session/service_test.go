package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/google"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockAccountStore struct{ mock.Mock }

func (m *mockAccountStore) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	args := m.Called(ctx, username)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) Put(ctx context.Context, a *domain.Account) error {
	return m.Called(ctx, a).Error(0)
}
func (m *mockAccountStore) Update(ctx context.Context, accountID string, updates map[string]interface{}) error {
	return m.Called(ctx, accountID, updates).Error(0)
}

type stubGoogle struct {
	ident *google.Identity
	err   error
}

func (s stubGoogle) Verify(context.Context, string) (*google.Identity, error) { return s.ident, s.err }

// --- helpers ---

func newTokens(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	p, err := jwtinfra.NewProvider(&config.Config{
		JWTSecret:       "0123456789abcdef0123456789abcdef",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ReauthTokenTTL:  5 * time.Minute,
	})
	require.NoError(t, err)
	return p
}

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newSvc(t *testing.T, accounts *mockAccountStore, g googleVerifier) (Service, *jwtinfra.Provider) {
	tokens := newTokens(t)
	return NewService(ServiceDeps{AccountRepo: accounts, Tokens: tokens, GoogleVerifier: g, OpenSignup: true}), tokens
}

// --- Login ---

func TestLogin_ByUsername(t *testing.T) {
	accounts := &mockAccountStore{}
	acc := &domain.Account{AccountID: "a1", Username: "alice", Email: "alice@example.com", PasswordHash: hashed(t, "secret123"), TokenVersion: 2}
	accounts.On("GetByUsername", mock.Anything, "alice").Return(acc, nil)

	svc, tokens := newSvc(t, accounts, nil)
	out, err := svc.Login(context.Background(), domain.LoginRequest{Identifier: "alice", Password: "secret123"})
	require.NoError(t, err)

	claims, err := tokens.VerifyKind(out.AccessToken, jwtinfra.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "a1", claims.AccountID())
	assert.Equal(t, int64(2), claims.Version)
	_, err = tokens.VerifyKind(out.RefreshToken, jwtinfra.KindRefresh)
	assert.NoError(t, err)
}

func TestLogin_ByEmail(t *testing.T) {
	accounts := &mockAccountStore{}
	acc := &domain.Account{AccountID: "a1", Username: "alice", Email: "alice@example.com", PasswordHash: hashed(t, "secret123")}
	accounts.On("GetByEmail", mock.Anything, "alice@example.com").Return(acc, nil)

	svc, _ := newSvc(t, accounts, nil)
	out, err := svc.Login(context.Background(), domain.LoginRequest{Identifier: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "a1", out.Account.AccountID)
	accounts.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
}

func TestLogin_WrongPassword(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("GetByUsername", mock.Anything, "alice").
		Return(&domain.Account{AccountID: "a1", PasswordHash: hashed(t, "secret123")}, nil)

	svc, _ := newSvc(t, accounts, nil)
	_, err := svc.Login(context.Background(), domain.LoginRequest{Identifier: "alice", Password: "nope"})
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestLogin_UnknownIdentifier(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	svc, _ := newSvc(t, accounts, nil)
	_, err := svc.Login(context.Background(), domain.LoginRequest{Identifier: "ghost", Password: "x"})
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestLogin_Suspended(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("GetByUsername", mock.Anything, "alice").
		Return(&domain.Account{AccountID: "a1", PasswordHash: hashed(t, "secret123"), Suspended: true}, nil)

	svc, _ := newSvc(t, accounts, nil)
	_, err := svc.Login(context.Background(), domain.LoginRequest{Identifier: "alice", Password: "secret123"})
	assert.True(t, errors.Is(err, domain.ErrAccountLocked))
}

func TestLogin_GoogleOnlyAccountHasNoPassword(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("GetByUsername", mock.Anything, "alice").Return(&domain.Account{AccountID: "a1"}, nil)

	svc, _ := newSvc(t, accounts, nil)
	_, err := svc.Login(context.Background(), domain.LoginRequest{Identifier: "alice", Password: ""})
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

// --- Refresh ---

func TestRefresh_Success(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("Get", mock.Anything, "a1").Return(&domain.Account{AccountID: "a1", TokenVersion: 4}, nil)

	svc, tokens := newSvc(t, accounts, nil)
	refresh, err := tokens.IssueRefresh("a1", 4)
	require.NoError(t, err)

	out, err := svc.Refresh(context.Background(), refresh)
	require.NoError(t, err)
	claims, err := tokens.VerifyKind(out.AccessToken, jwtinfra.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(4), claims.Version)
}

func TestRefresh_StaleVersionIsRevoked(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("Get", mock.Anything, "a1").Return(&domain.Account{AccountID: "a1", TokenVersion: 2}, nil)

	svc, tokens := newSvc(t, accounts, nil)
	refresh, err := tokens.IssueRefresh("a1", 1)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), refresh)
	assert.True(t, errors.Is(err, domain.ErrTokenRevoked))
	assert.Equal(t, "token_revoked", domain.ErrorCode(err))
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	svc, tokens := newSvc(t, &mockAccountStore{}, nil)
	access, err := tokens.IssueAccess("a1", "a@b.com", "alice", 0)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), access)
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))
}

func TestRefresh_Empty(t *testing.T) {
	svc, _ := newSvc(t, &mockAccountStore{}, nil)
	_, err := svc.Refresh(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestRefresh_DeletedAccount(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("Get", mock.Anything, "a1").Return(nil, domain.ErrNotFound)

	svc, tokens := newSvc(t, accounts, nil)
	refresh, _ := tokens.IssueRefresh("a1", 0)
	_, err := svc.Refresh(context.Background(), refresh)
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))
}

func TestRefresh_Suspended(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("Get", mock.Anything, "a1").Return(&domain.Account{AccountID: "a1", Suspended: true}, nil)

	svc, tokens := newSvc(t, accounts, nil)
	refresh, _ := tokens.IssueRefresh("a1", 0)
	_, err := svc.Refresh(context.Background(), refresh)
	assert.True(t, errors.Is(err, domain.ErrAccountLocked))
}

// --- GoogleLogin ---

func TestGoogleLogin_CreatesVerifiedAccount(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("GetByEmail", mock.Anything, "bob@example.com").Return(nil, domain.ErrNotFound)
	accounts.On("Put", mock.Anything, mock.MatchedBy(func(a *domain.Account) bool {
		return a.Email == "bob@example.com" && a.Username == "bob" && a.VerifiedEmail &&
			a.GoogleSub == "g-1" && a.PasswordHash == "" && a.Role == domain.RoleUser
	})).Return(nil)

	svc, _ := newSvc(t, accounts, stubGoogle{ident: &google.Identity{Subject: "g-1", Email: "bob@example.com", EmailVerified: true}})
	out, err := svc.GoogleLogin(context.Background(), "idtok")
	require.NoError(t, err)
	assert.NotEmpty(t, out.AccessToken)
	accounts.AssertExpectations(t)
}

func TestGoogleLogin_UsernameCollision(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("GetByEmail", mock.Anything, "bob@example.com").Return(nil, domain.ErrNotFound)
	accounts.On("Put", mock.Anything, mock.MatchedBy(func(a *domain.Account) bool { return a.Username == "bob" })).
		Return(domain.ErrConflict).Once()
	accounts.On("Put", mock.Anything, mock.MatchedBy(func(a *domain.Account) bool { return a.Username != "bob" })).
		Return(nil).Once()

	svc, _ := newSvc(t, accounts, stubGoogle{ident: &google.Identity{Subject: "g-1", Email: "bob@example.com", EmailVerified: true}})
	out, err := svc.GoogleLogin(context.Background(), "idtok")
	require.NoError(t, err)
	assert.Contains(t, out.Account.Username, "bob-")
}

func TestGoogleLogin_LinksExistingAccount(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("GetByEmail", mock.Anything, "bob@example.com").
		Return(&domain.Account{AccountID: "a1", Email: "bob@example.com"}, nil)
	accounts.On("Update", mock.Anything, "a1", map[string]interface{}{"google_sub": "g-1", "verified_email": true}).Return(nil)

	svc, _ := newSvc(t, accounts, stubGoogle{ident: &google.Identity{Subject: "g-1", Email: "bob@example.com", EmailVerified: true}})
	out, err := svc.GoogleLogin(context.Background(), "idtok")
	require.NoError(t, err)
	assert.True(t, out.Account.VerifiedEmail)
	accounts.AssertExpectations(t)
}

func TestGoogleLogin_UnverifiedEmail(t *testing.T) {
	svc, _ := newSvc(t, &mockAccountStore{}, stubGoogle{ident: &google.Identity{Subject: "g-1", Email: "bob@example.com"}})
	_, err := svc.GoogleLogin(context.Background(), "idtok")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestGoogleLogin_InviteOnlyRejectsNewAccounts(t *testing.T) {
	accounts := &mockAccountStore{}
	accounts.On("GetByEmail", mock.Anything, "bob@example.com").Return(nil, domain.ErrNotFound)

	svc := NewService(ServiceDeps{
		AccountRepo:    accounts,
		Tokens:         newTokens(t),
		GoogleVerifier: stubGoogle{ident: &google.Identity{Subject: "g-1", Email: "bob@example.com", EmailVerified: true}},
	})
	_, err := svc.GoogleLogin(context.Background(), "idtok")
	assert.True(t, errors.Is(err, domain.ErrForbidden))
	accounts.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}
