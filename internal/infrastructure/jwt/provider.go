package jwtinfra

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	"github.com/golang-jwt/jwt/v5"
)

// Token kinds. A token of one kind is never accepted where another is expected.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
	KindReauth  = "reauth"
)

// Claims holds the JWT payload fields. Version is the account's token_version
// at issue time; callers must compare it with the live value.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Version  int64  `json:"ver"`
	Action   string `json:"act,omitempty"`
	Kind     string `json:"typ"`
	jwt.RegisteredClaims
}

// AccountID returns the subject the token was issued to.
func (c *Claims) AccountID() string { return c.Subject }

// Provider signs and verifies HS256 JWTs.
type Provider struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	reauthTTL  time.Duration
	now        func() time.Time
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	return &Provider{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		reauthTTL:  cfg.ReauthTokenTTL,
		now:        time.Now,
	}, nil
}

// RefreshTTL is the refresh token lifetime, used for the cookie Max-Age.
func (p *Provider) RefreshTTL() time.Duration { return p.refreshTTL }

func (p *Provider) IssueAccess(accountID, email, username string, version int64) (string, error) {
	return p.sign(Claims{Email: email, Username: username, Version: version, Kind: KindAccess}, accountID, p.accessTTL)
}

func (p *Provider) IssueRefresh(accountID string, version int64) (string, error) {
	return p.sign(Claims{Version: version, Kind: KindRefresh}, accountID, p.refreshTTL)
}

// IssueReauth issues proof of a fresh OTP verification. An empty action leaves it unscoped.
func (p *Provider) IssueReauth(accountID string, version int64, action string) (string, error) {
	return p.sign(Claims{Version: version, Action: action, Kind: KindReauth}, accountID, p.reauthTTL)
}

func (p *Provider) sign(c Claims, subject string, ttl time.Duration) (string, error) {
	now := p.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        id.NewAt(now),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", c.Kind, err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry before returning any claim.
// Every failure is exactly domain.ErrInvalidToken; parser detail is only logged.
func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		slog.Debug("jwt rejected", "err", err)
		return nil, domain.ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// VerifyKind is Verify plus a check that the token is of the expected kind.
func (p *Provider) VerifyKind(tokenStr, kind string) (*Claims, error) {
	claims, err := p.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		slog.Debug("jwt kind mismatch", "want", kind, "got", claims.Kind)
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// CheckVersion rejects claims issued before the account's current token_version.
func CheckVersion(claims *Claims, liveVersion int64) error {
	if claims.Version != liveVersion {
		return domain.ErrTokenRevoked
	}
	return nil
}
